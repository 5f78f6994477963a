package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/devki-mart/api/internal/platform/firestore"
	"github.com/devki-mart/api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind the
// repositories.Registry contract.
type Registry struct {
	provider *pfirestore.Provider
	catalog  *CatalogRepository
	carts    *CartRepository
	orders   *OrderRepository
	agents   *AgentRepository
	counters *CounterRepository
}

// NewRegistry wires every repository onto a shared provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}
	catalog, err := NewCatalogRepository(provider)
	if err != nil {
		return nil, err
	}
	carts, err := NewCartRepository(provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	agents, err := NewAgentRepository(provider)
	if err != nil {
		return nil, err
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, err
	}
	return &Registry{
		provider: provider,
		catalog:  catalog,
		carts:    carts,
		orders:   orders,
		agents:   agents,
		counters: counters,
	}, nil
}

var _ repositories.Registry = (*Registry)(nil)

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

// Catalog returns the product repository.
func (r *Registry) Catalog() repositories.CatalogRepository { return r.catalog }

// Carts returns the cart repository.
func (r *Registry) Carts() repositories.CartRepository { return r.carts }

// Orders returns the order repository.
func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

// Agents returns the delivery agent repository.
func (r *Registry) Agents() repositories.AgentRepository { return r.agents }

// Counters returns the sequence counter repository.
func (r *Registry) Counters() repositories.CounterRepository { return r.counters }
