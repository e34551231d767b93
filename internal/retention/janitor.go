// Package retention archives and purges transcripts of conversations that
// have been idle longer than a maximum age.
//
// A conversation expires as a whole once its newest entry is older than
// the cutoff. With an archiver registered, the conversation is archived
// first and purged only if archiving succeeded; without one it is purged
// directly.
//
// The janitor runs as a background goroutine and stops when its context
// is canceled.
package retention

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/salessupport/salesagent/pkg/models"
)

// DefaultInterval is the time between retention sweeps.
const DefaultInterval = time.Hour

// Transcripts is the transcript store the janitor sweeps.
// *transcript.Store satisfies it.
type Transcripts interface {
	LoadAll(ctx context.Context) (map[string][]models.TranscriptEntry, error)
	Delete(ctx context.Context, conversationID string)
}

// Archiver writes expired conversations to long-term storage and returns
// a URI describing where they went.
type Archiver interface {
	Kind() string
	Archive(ctx context.Context, conversationID string, entries []models.TranscriptEntry) (string, error)
}

// CycleStats tracks what happened in a single retention sweep.
type CycleStats struct {
	Conversations int
	Expired       int
	Archived      int
	Purged        int
	ArchiveURIs   []string
	Errors        []error
}

// Janitor periodically removes expired transcripts.
type Janitor struct {
	transcripts Transcripts
	maxAge      time.Duration
	interval    time.Duration
	archiver    Archiver
	now         func() time.Time
}

// Option configures a Janitor.
type Option func(*Janitor)

// WithArchiver archives conversations before they are purged.
func WithArchiver(a Archiver) Option {
	return func(j *Janitor) { j.archiver = a }
}

// WithInterval overrides DefaultInterval. Intervals under a minute fall
// back to the default.
func WithInterval(d time.Duration) Option {
	return func(j *Janitor) {
		if d >= time.Minute {
			j.interval = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(j *Janitor) { j.now = now }
}

// NewJanitor creates a janitor that expires conversations idle for longer
// than maxAge.
func NewJanitor(t Transcripts, maxAge time.Duration, opts ...Option) *Janitor {
	j := &Janitor{
		transcripts: t,
		maxAge:      maxAge,
		interval:    DefaultInterval,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Start runs sweeps until ctx is canceled. It blocks.
func (j *Janitor) Start(ctx context.Context) {
	archiver := "none"
	if j.archiver != nil {
		archiver = j.archiver.Kind()
	}
	log.Info().
		Dur("max_age", j.maxAge).
		Dur("interval", j.interval).
		Str("archiver", archiver).
		Msg("Retention janitor started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Retention janitor stopped")
			return
		case <-ticker.C:
			j.RunCycle(ctx)
		}
	}
}

// RunCycle performs one retention sweep.
func (j *Janitor) RunCycle(ctx context.Context) CycleStats {
	var stats CycleStats
	start := j.now()

	all, err := j.transcripts.LoadAll(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Retention janitor: failed to load transcripts")
		stats.Errors = append(stats.Errors, err)
		return stats
	}
	stats.Conversations = len(all)

	cutoff := start.Add(-j.maxAge)
	for id, entries := range all {
		if len(entries) == 0 || !entries[len(entries)-1].Timestamp.Before(cutoff) {
			continue
		}
		stats.Expired++

		if j.archiver != nil {
			uri, err := j.archiver.Archive(ctx, id, entries)
			if err != nil {
				log.Warn().Err(err).
					Str("conversation", id).
					Str("archiver", j.archiver.Kind()).
					Msg("Archive failed, keeping transcript")
				stats.Errors = append(stats.Errors, err)
				continue
			}
			stats.Archived++
			stats.ArchiveURIs = append(stats.ArchiveURIs, uri)
		}

		j.transcripts.Delete(ctx, id)
		stats.Purged++
	}

	if stats.Expired > 0 {
		log.Info().
			Int("conversations", stats.Conversations).
			Int("archived", stats.Archived).
			Int("purged", stats.Purged).
			Dur("elapsed", j.now().Sub(start)).
			Msg("Retention cycle complete")
	}
	return stats
}
