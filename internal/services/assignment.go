package services

import (
	"context"
	"errors"

	"github.com/devki-mart/api/internal/repositories"
)

// SoleAgentStrategy assigns new orders to the delivery agent roster's only
// active member. With zero or several active agents it leaves the order
// unassigned for manual dispatch.
type SoleAgentStrategy struct {
	agents repositories.AgentRepository
}

// NewSoleAgentStrategy constructs the default assignment strategy.
func NewSoleAgentStrategy(agents repositories.AgentRepository) (*SoleAgentStrategy, error) {
	if agents == nil {
		return nil, errors.New("assignment: agent repository is required")
	}
	return &SoleAgentStrategy{agents: agents}, nil
}

// Assign returns the sole active agent's ID, or nil when assignment should be
// deferred.
func (s *SoleAgentStrategy) Assign(ctx context.Context, _ Order) (*string, error) {
	agents, err := s.agents.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	if len(agents) != 1 {
		return nil, nil
	}
	id := agents[0].ID
	return &id, nil
}
