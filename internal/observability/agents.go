package observability

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/salessupport/salesagent/pkg/models"
)

type agentRegistry struct {
	mu     sync.RWMutex
	agents map[string]*models.AgentInfo
}

func newAgentRegistry() *agentRegistry {
	return &agentRegistry{agents: make(map[string]*models.AgentInfo)}
}

// RegisterAgent adds an agent or refreshes the status of an existing one.
func (s *Service) RegisterAgent(id, name, agentType, status string) models.AgentInfo {
	if status == "" {
		status = "Active"
	}
	now := s.now().UTC()

	s.agents.mu.Lock()
	info, ok := s.agents.agents[id]
	if ok {
		info.Status = status
		info.LastActiveAt = now
	} else {
		info = &models.AgentInfo{
			ID:           id,
			Name:         name,
			Type:         agentType,
			Status:       status,
			Version:      "1.0.0",
			RegisteredAt: now,
			LastActiveAt: now,
		}
		s.agents.agents[id] = info
	}
	snapshot := *info
	s.broadcast(TopicAgent, snapshot)
	s.agents.mu.Unlock()

	log.Info().Str("agent", name).Str("type", agentType).Msg("🤖 Agent registered")
	return snapshot
}

// UpdateAgentActivity records an interaction for a registered agent. It
// reports false when the agent is unknown.
func (s *Service) UpdateAgentActivity(id, activity string) bool {
	s.agents.mu.Lock()
	info, ok := s.agents.agents[id]
	if !ok {
		s.agents.mu.Unlock()
		return false
	}
	info.LastActiveAt = s.now().UTC()
	info.LastActivity = activity
	info.TotalInteractions++
	s.broadcast(TopicAgent, *info)
	s.agents.mu.Unlock()
	return true
}

// ActiveAgents returns every registered agent, most recently active first.
func (s *Service) ActiveAgents() []models.AgentInfo {
	s.agents.mu.RLock()
	result := make([]models.AgentInfo, 0, len(s.agents.agents))
	for _, info := range s.agents.agents {
		result = append(result, *info)
	}
	s.agents.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].LastActiveAt.After(result[j].LastActiveAt)
	})
	return result
}
