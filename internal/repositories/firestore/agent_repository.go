package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/devki-mart/api/internal/domain"
	pfirestore "github.com/devki-mart/api/internal/platform/firestore"
	"github.com/devki-mart/api/internal/repositories"
)

const agentsCollection = "agents"

// AgentRepository persists the delivery agent roster.
type AgentRepository struct {
	provider *pfirestore.Provider
}

// NewAgentRepository constructs a Firestore-backed agent repository.
func NewAgentRepository(provider *pfirestore.Provider) (*AgentRepository, error) {
	if provider == nil {
		return nil, errors.New("agent repository requires firestore provider")
	}
	return &AgentRepository{provider: provider}, nil
}

var _ repositories.AgentRepository = (*AgentRepository)(nil)

// Get loads one agent by id.
func (r *AgentRepository) Get(ctx context.Context, agentID string) (domain.DeliveryAgent, error) {
	if r == nil || r.provider == nil {
		return domain.DeliveryAgent{}, errors.New("agent repository not initialised")
	}
	id := strings.TrimSpace(agentID)
	if id == "" {
		return domain.DeliveryAgent{}, errors.New("agent repository: agent id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.DeliveryAgent{}, pfirestore.WrapError("agents.get", err)
	}
	snap, err := client.Collection(agentsCollection).Doc(id).Get(ctx)
	if err != nil {
		return domain.DeliveryAgent{}, pfirestore.WrapError("agents.get", err)
	}
	var doc agentDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.DeliveryAgent{}, fmt.Errorf("decode agent %s: %w", id, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

// ListActive returns every agent currently able to take deliveries.
func (r *AgentRepository) ListActive(ctx context.Context) ([]domain.DeliveryAgent, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("agent repository not initialised")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, pfirestore.WrapError("agents.listActive", err)
	}
	iter := client.Collection(agentsCollection).
		Where("active", "==", true).
		OrderBy("name", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var agents []domain.DeliveryAgent
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("agents.listActive", err)
		}
		var doc agentDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode agent %s: %w", snap.Ref.ID, err)
		}
		agents = append(agents, doc.toDomain(snap.Ref.ID))
	}
	return agents, nil
}

// Upsert writes the agent document.
func (r *AgentRepository) Upsert(ctx context.Context, agent domain.DeliveryAgent) error {
	if r == nil || r.provider == nil {
		return errors.New("agent repository not initialised")
	}
	id := strings.TrimSpace(agent.ID)
	if id == "" {
		return errors.New("agent repository: agent id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError("agents.upsert", err)
	}
	if _, err := client.Collection(agentsCollection).Doc(id).Set(ctx, newAgentDocument(agent)); err != nil {
		return pfirestore.WrapError("agents.upsert", err)
	}
	return nil
}

type agentDocument struct {
	Name      string    `firestore:"name"`
	Email     string    `firestore:"email,omitempty"`
	Phone     string    `firestore:"phone,omitempty"`
	Active    bool      `firestore:"active"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func newAgentDocument(agent domain.DeliveryAgent) agentDocument {
	return agentDocument{
		Name:      strings.TrimSpace(agent.Name),
		Email:     strings.ToLower(strings.TrimSpace(agent.Email)),
		Phone:     strings.TrimSpace(agent.Phone),
		Active:    agent.Active,
		CreatedAt: agent.CreatedAt.UTC(),
	}
}

func (d agentDocument) toDomain(id string) domain.DeliveryAgent {
	return domain.DeliveryAgent{
		ID:        id,
		Name:      d.Name,
		Email:     d.Email,
		Phone:     d.Phone,
		Active:    d.Active,
		CreatedAt: d.CreatedAt,
	}
}
