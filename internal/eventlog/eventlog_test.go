package eventlog_test

import (
	"sync"
	"testing"

	"github.com/salessupport/salesagent/internal/eventlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppend_EvictsOldest(t *testing.T) {
	log := eventlog.New[int](3)
	for i := 1; i <= 5; i++ {
		log.Append(i)
	}

	assert.Equal(t, 3, log.Len())
	assert.Equal(t, []int{3, 4, 5}, log.Chronological(0))
	assert.Equal(t, []int{5, 4, 3}, log.Recent(0))
}

func TestAppend_WrapsManyTimes(t *testing.T) {
	log := eventlog.New[int](4)
	for i := 0; i < 1003; i++ {
		log.Append(i)
	}

	assert.Equal(t, 4, log.Len())
	assert.Equal(t, []int{999, 1000, 1001, 1002}, log.Chronological(0))
	assert.Equal(t, []int{1002, 1001}, log.Recent(2))
	assert.Equal(t, []int{1001, 1002}, log.Chronological(2))
	assert.Equal(t, []int{1000, 1002}, log.Matching(func(i int) bool { return i%2 == 0 }))

	log.Clear()
	log.Append(7)
	assert.Equal(t, []int{7}, log.Recent(0))
}

func TestRecent_Limits(t *testing.T) {
	log := eventlog.New[string](10)
	for _, s := range []string{"a", "b", "c", "d"} {
		log.Append(s)
	}

	tests := []struct {
		name string
		n    int
		want []string
	}{
		{"two newest", 2, []string{"d", "c"}},
		{"zero means all", 0, []string{"d", "c", "b", "a"}},
		{"more than size", 99, []string{"d", "c", "b", "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, log.Recent(tt.n))
		})
	}

	assert.Equal(t, []string{"c", "d"}, log.Chronological(2))
}

func TestMatching_Chronological(t *testing.T) {
	log := eventlog.New[int](100)
	for i := 0; i < 10; i++ {
		log.Append(i)
	}

	even := log.Matching(func(i int) bool { return i%2 == 0 })
	assert.Equal(t, []int{0, 2, 4, 6, 8}, even)
	assert.Empty(t, log.Matching(func(i int) bool { return i > 100 }))
}

func TestCapacity_Minimum(t *testing.T) {
	log := eventlog.New[int](0)
	assert.Equal(t, 1, log.Capacity())
	log.Append(1)
	log.Append(2)
	assert.Equal(t, []int{2}, log.Recent(0))
}

func TestClear(t *testing.T) {
	log := eventlog.New[int](5)
	log.Append(1)
	log.Clear()
	assert.Zero(t, log.Len())
	assert.Empty(t, log.Recent(0))
}

func TestConcurrentAppend(t *testing.T) {
	const writers, perWriter = 8, 200
	log := eventlog.New[int](50)

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				log.Append(i)
				_ = log.Recent(5)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 50, log.Len())
}

func TestRecent_ReturnsCopy(t *testing.T) {
	log := eventlog.New[int](3)
	log.Append(1)
	got := log.Chronological(0)
	got[0] = 42
	assert.Equal(t, []int{1}, log.Chronological(0))
}
