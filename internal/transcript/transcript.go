// Package transcript keeps per-conversation chat transcripts in a bounded
// in-memory cache mirrored to a durable key-value store.
//
// The cache is authoritative for reads: durable-store failures are logged
// and never roll back the cache. The cache holds at most a fixed number of
// conversations and evicts the least recently used one when full; evicted
// conversations are reloaded from the durable store on their next History
// or AppendTurn call. Statistics are computed from the cache only.
package transcript

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"
	"github.com/salessupport/salesagent/internal/store"
	"github.com/salessupport/salesagent/pkg/models"
)

const (
	// DefaultCacheSize is the number of conversations kept in memory.
	DefaultCacheSize = 100
	// DefaultSummaryLimit caps AllConversationSummaries.
	DefaultSummaryLimit = 100
	// DefaultHistoryLimit is used when History is called with limit <= 0.
	DefaultHistoryLimit = 50
	// ActiveWindow is how recent a turn must be for its conversation to count as active.
	ActiveWindow = 24 * time.Hour

	keyPrefix = "transcript:"
)

// Store is the conversation transcript store.
type Store struct {
	mu           sync.Mutex
	cache        *lru.Cache[string, []models.TranscriptEntry]
	durable      store.Store
	summaryLimit int
	now          func() time.Time
}

type options struct {
	cacheSize    int
	summaryLimit int
	now          func() time.Time
}

// Option configures a Store.
type Option func(*options)

// WithCacheSize overrides DefaultCacheSize.
func WithCacheSize(n int) Option {
	return func(o *options) { o.cacheSize = n }
}

// WithSummaryLimit overrides DefaultSummaryLimit.
func WithSummaryLimit(n int) Option {
	return func(o *options) { o.summaryLimit = n }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates a transcript store backed by durable.
func New(durable store.Store, opts ...Option) (*Store, error) {
	o := options{
		cacheSize:    DefaultCacheSize,
		summaryLimit: DefaultSummaryLimit,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	cache, err := lru.NewWithEvict(o.cacheSize, func(id string, entries []models.TranscriptEntry) {
		log.Debug().Str("conversation", id).Int("entries", len(entries)).Msg("Transcript evicted from cache")
	})
	if err != nil {
		return nil, err
	}
	return &Store{
		cache:        cache,
		durable:      durable,
		summaryLimit: o.summaryLimit,
		now:          o.now,
	}, nil
}

// Key returns the durable key of one transcript entry.
func Key(conversationID, entryID string) string {
	return keyPrefix + conversationID + ":" + entryID
}

func conversationPattern(conversationID string) string {
	return keyPrefix + store.EscapePattern(conversationID) + ":*"
}

// AppendTurn records one chat activity for conversationID and mirrors it
// to the durable store. It returns the stored entry.
func (s *Store) AppendTurn(ctx context.Context, activity models.Activity, conversationID string) models.TranscriptEntry {
	entry := s.entryFromActivity(activity, conversationID)

	s.mu.Lock()
	entries, ok := s.cache.Get(conversationID)
	if ok {
		s.cache.Add(conversationID, append(entries, entry))
	}
	s.mu.Unlock()
	if !ok {
		s.cacheMiss(ctx, conversationID, entry)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		log.Error().Err(err).Str("conversation", conversationID).Msg("Failed to encode transcript entry")
		return entry
	}
	if err := s.durable.Write(ctx, store.Item{Key: Key(conversationID, entry.ID), Value: data}); err != nil {
		log.Error().Err(err).Str("conversation", conversationID).Msg("Failed to persist transcript entry")
		return entry
	}

	log.Info().
		Str("conversation", conversationID).
		Str("from", entry.From).
		Str("text", preview(entry.Text, 50)).
		Msg("Transcript entry saved")
	return entry
}

// cacheMiss rebuilds an evicted or unseen conversation from the durable
// store before adding entry, so an eviction never truncates History. When
// the durable read fails the turn is still cached on its own.
func (s *Store) cacheMiss(ctx context.Context, conversationID string, entry models.TranscriptEntry) {
	loaded, err := s.load(ctx, conversationID)
	if err != nil {
		log.Error().Err(err).Str("conversation", conversationID).Msg("Failed to load transcript")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.cache.Peek(conversationID); ok {
		loaded = merge(loaded, current)
	}
	s.cache.Add(conversationID, merge(loaded, []models.TranscriptEntry{entry}))
}

func (s *Store) entryFromActivity(a models.Activity, conversationID string) models.TranscriptEntry {
	id := a.ID
	if id == "" {
		id = uuid.New().String()
	}
	from := a.From.Name
	if from == "" {
		from = a.From.ID
	}
	if from == "" {
		from = "Unknown"
	}
	ts := s.now().UTC()
	if a.Timestamp != nil && !a.Timestamp.IsZero() {
		ts = a.Timestamp.UTC()
	}

	entry := models.TranscriptEntry{
		ID:             id,
		ConversationID: conversationID,
		ActivityType:   a.Type,
		From:           from,
		Timestamp:      ts,
		ChannelID:      a.ChannelID,
	}
	if a.Text != "" {
		text := a.Text
		entry.Text = &text
	}
	return entry
}

// History returns the most recent limit entries of a conversation in
// chronological order. On a cache miss the conversation is loaded from the
// durable store and cached. Durable read failures yield an empty history.
func (s *Store) History(ctx context.Context, conversationID string, limit int) []models.TranscriptEntry {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	s.mu.Lock()
	cached, ok := s.cache.Get(conversationID)
	if ok {
		out := lastN(cached, limit)
		s.mu.Unlock()
		return out
	}
	s.mu.Unlock()

	loaded, err := s.load(ctx, conversationID)
	if err != nil {
		log.Error().Err(err).Str("conversation", conversationID).Msg("Failed to load transcript")
		return []models.TranscriptEntry{}
	}
	if len(loaded) == 0 {
		return []models.TranscriptEntry{}
	}

	s.mu.Lock()
	// A turn may have been appended while the durable read was in flight.
	if current, ok := s.cache.Peek(conversationID); ok {
		loaded = merge(loaded, current)
	}
	s.cache.Add(conversationID, loaded)
	out := lastN(loaded, limit)
	s.mu.Unlock()
	return out
}

func (s *Store) load(ctx context.Context, conversationID string) ([]models.TranscriptEntry, error) {
	items, err := s.durable.Read(ctx, conversationPattern(conversationID))
	if err != nil {
		return nil, err
	}
	entries := make([]models.TranscriptEntry, 0, len(items))
	for _, it := range items {
		var e models.TranscriptEntry
		if err := json.Unmarshal(it.Value, &e); err != nil {
			log.Warn().Err(err).Str("key", it.Key).Msg("Skipping unreadable transcript entry")
			continue
		}
		entries = append(entries, e)
	}
	sortByTime(entries)
	return entries, nil
}

// LoadAll reads every durable transcript entry grouped by conversation,
// each group oldest first. The cache is not consulted.
func (s *Store) LoadAll(ctx context.Context) (map[string][]models.TranscriptEntry, error) {
	items, err := s.durable.Read(ctx, keyPrefix+"*")
	if err != nil {
		return nil, err
	}
	grouped := make(map[string][]models.TranscriptEntry)
	for _, it := range items {
		var e models.TranscriptEntry
		if err := json.Unmarshal(it.Value, &e); err != nil {
			log.Warn().Err(err).Str("key", it.Key).Msg("Skipping unreadable transcript entry")
			continue
		}
		grouped[e.ConversationID] = append(grouped[e.ConversationID], e)
	}
	for _, entries := range grouped {
		sortByTime(entries)
	}
	return grouped, nil
}

// AllConversationSummaries summarises every cached conversation, most
// recent activity first, capped at the summary limit.
func (s *Store) AllConversationSummaries() []models.ConversationSummary {
	s.mu.Lock()
	summaries := make([]models.ConversationSummary, 0, s.cache.Len())
	for _, id := range s.cache.Keys() {
		entries, ok := s.cache.Peek(id)
		if !ok {
			continue
		}
		summaries = append(summaries, summarize(id, entries, s.now().UTC()))
	}
	s.mu.Unlock()

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].LastActivity.After(summaries[j].LastActivity)
	})
	if s.summaryLimit > 0 && len(summaries) > s.summaryLimit {
		summaries = summaries[:s.summaryLimit]
	}
	return summaries
}

// Delete removes a conversation from the cache and the durable store.
// Durable failures are logged.
func (s *Store) Delete(ctx context.Context, conversationID string) {
	s.mu.Lock()
	s.cache.Remove(conversationID)
	s.mu.Unlock()

	n, err := s.durable.Delete(ctx, conversationPattern(conversationID))
	if err != nil {
		log.Error().Err(err).Str("conversation", conversationID).Msg("Failed to delete transcript")
		return
	}
	log.Info().Str("conversation", conversationID).Int("entries", n).Msg("Transcript deleted")
}

// Statistics summarises the cached conversations.
func (s *Store) Statistics() models.TranscriptStatistics {
	cutoff := s.now().UTC().Add(-ActiveWindow)

	s.mu.Lock()
	var stats models.TranscriptStatistics
	for _, id := range s.cache.Keys() {
		entries, ok := s.cache.Peek(id)
		if !ok {
			continue
		}
		stats.TotalConversations++
		stats.TotalMessages += len(entries)
		for _, e := range entries {
			if e.Timestamp.After(cutoff) {
				stats.ActiveConversations++
				break
			}
		}
	}
	s.mu.Unlock()

	if stats.TotalConversations > 0 {
		stats.AverageMessagesPerConversation = float64(stats.TotalMessages) / float64(stats.TotalConversations)
	}
	return stats
}

func summarize(id string, entries []models.TranscriptEntry, fallback time.Time) models.ConversationSummary {
	sum := models.ConversationSummary{
		ConversationID: id,
		MessageCount:   len(entries),
		LastActivity:   fallback,
		Participants:   []string{},
	}
	seen := make(map[string]bool)
	for i, e := range entries {
		if i == 0 || e.Timestamp.After(sum.LastActivity) {
			sum.LastActivity = e.Timestamp
		}
		if e.From != "" && !seen[e.From] {
			seen[e.From] = true
			sum.Participants = append(sum.Participants, e.From)
		}
	}
	return sum
}

// lastN returns a sorted copy of the newest n entries.
func lastN(entries []models.TranscriptEntry, n int) []models.TranscriptEntry {
	sorted := make([]models.TranscriptEntry, len(entries))
	copy(sorted, entries)
	sortByTime(sorted)
	if len(sorted) > n {
		sorted = sorted[len(sorted)-n:]
	}
	return sorted
}

func sortByTime(entries []models.TranscriptEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
}

func merge(base, extra []models.TranscriptEntry) []models.TranscriptEntry {
	have := make(map[string]bool, len(base))
	for _, e := range base {
		have[e.ID] = true
	}
	for _, e := range extra {
		if !have[e.ID] {
			base = append(base, e)
		}
	}
	sortByTime(base)
	return base
}

func preview(text *string, max int) string {
	if text == nil {
		return ""
	}
	r := []rune(*text)
	if len(r) > max {
		return string(r[:max])
	}
	return *text
}
