package observability

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"
	"github.com/salessupport/salesagent/pkg/models"
)

// sessionStore keeps detailed trace sessions in an LRU so the dashboard
// history stays bounded. The mutex guards session mutation; the LRU has
// its own lock for membership.
type sessionStore struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *models.TraceSession]
}

func newSessionStore(capacity int) *sessionStore {
	if capacity < 1 {
		capacity = 1
	}
	cache, err := lru.New[string, *models.TraceSession](capacity)
	if err != nil {
		// lru.New only fails for a non-positive size.
		panic(err)
	}
	return &sessionStore{cache: cache}
}

// StartDetailedTrace opens a session for one user turn and returns its id.
func (s *Service) StartDetailedTrace(conversationID, userID, query string) string {
	id := uuid.New().String()
	session := &models.TraceSession{
		SessionID:      id,
		ConversationID: conversationID,
		UserID:         userID,
		UserQuery:      query,
		StartTime:      s.now().UTC(),
		Phases:         []models.TracePhase{},
	}

	s.sessions.mu.Lock()
	s.sessions.cache.Add(id, session)
	s.sessions.mu.Unlock()

	log.Info().Str("session", id).Str("conversation", conversationID).Msg("🎯 Detailed trace started")
	return id
}

// AddTracePhase appends a phase to an open session. Unknown sessions are
// ignored and reported with false.
func (s *Service) AddTracePhase(sessionID, name, description, status string, data any) bool {
	if status == "" {
		status = "Completed"
	}
	phase := models.TracePhase{
		Name:        name,
		Description: description,
		Status:      status,
		Timestamp:   s.now().UTC(),
		Data:        data,
	}

	s.sessions.mu.Lock()
	session, ok := s.sessions.cache.Peek(sessionID)
	if ok {
		session.Phases = append(session.Phases, phase)
	}
	s.sessions.mu.Unlock()
	if !ok {
		return false
	}

	log.Debug().Str("session", sessionID).Str("phase", name).Msg("📍 Trace phase")
	s.broadcast(TopicTracePhase, map[string]any{
		"sessionId": sessionID,
		"phase":     phase,
	})
	return true
}

// CompleteDetailedTrace closes a session with the final response.
func (s *Service) CompleteDetailedTrace(sessionID, finalResponse string, success bool) bool {
	s.sessions.mu.Lock()
	session, ok := s.sessions.cache.Peek(sessionID)
	var snapshot models.TraceSession
	if ok {
		end := s.now().UTC()
		duration := end.Sub(session.StartTime).Milliseconds()
		session.EndTime = &end
		session.DurationMs = &duration
		session.FinalResponse = finalResponse
		session.Success = success
		snapshot = copySession(session)
	}
	s.sessions.mu.Unlock()
	if !ok {
		return false
	}

	log.Info().Str("session", sessionID).Bool("success", success).Msg("🏁 Detailed trace completed")
	s.broadcast(TopicTraceSessionComplete, snapshot)
	return true
}

// DetailedTrace returns a copy of one session.
func (s *Service) DetailedTrace(sessionID string) (models.TraceSession, bool) {
	s.sessions.mu.Lock()
	defer s.sessions.mu.Unlock()

	session, ok := s.sessions.cache.Get(sessionID)
	if !ok {
		return models.TraceSession{}, false
	}
	return copySession(session), true
}

// AllDetailedTraces returns up to count sessions, newest start first.
// count <= 0 returns all retained sessions.
func (s *Service) AllDetailedTraces(count int) []models.TraceSession {
	result := s.collectSessions(func(*models.TraceSession) bool { return true })
	if count > 0 && len(result) > count {
		result = result[:count]
	}
	return result
}

// TracesByConversation returns the sessions of one conversation, newest first.
func (s *Service) TracesByConversation(conversationID string) []models.TraceSession {
	return s.collectSessions(func(ts *models.TraceSession) bool {
		return ts.ConversationID == conversationID
	})
}

func (s *Service) collectSessions(keep func(*models.TraceSession) bool) []models.TraceSession {
	s.sessions.mu.Lock()
	result := []models.TraceSession{}
	for _, key := range s.sessions.cache.Keys() {
		session, ok := s.sessions.cache.Peek(key)
		if ok && keep(session) {
			result = append(result, copySession(session))
		}
	}
	s.sessions.mu.Unlock()

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].StartTime.After(result[j].StartTime)
	})
	return result
}

func copySession(ts *models.TraceSession) models.TraceSession {
	cp := *ts
	cp.Phases = make([]models.TracePhase, len(ts.Phases))
	copy(cp.Phases, ts.Phases)
	if ts.EndTime != nil {
		end := *ts.EndTime
		cp.EndTime = &end
	}
	if ts.DurationMs != nil {
		d := *ts.DurationMs
		cp.DurationMs = &d
	}
	return cp
}
