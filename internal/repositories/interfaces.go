package repositories

import (
	"context"
	"time"

	domain "github.com/devki-mart/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Catalog() CatalogRepository
	Carts() CartRepository
	Orders() OrderRepository
	Agents() AgentRepository
	Counters() CounterRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CatalogRepository persists products and their purchasable variants.
type CatalogRepository interface {
	GetProduct(ctx context.Context, productID string) (domain.Product, error)
	GetProductBySlug(ctx context.Context, slug string) (domain.Product, error)
	GetVariant(ctx context.Context, productID, variantID string) (domain.ProductVariant, error)
	ListVariants(ctx context.Context, productID string) ([]domain.ProductVariant, error)
	ListProducts(ctx context.Context, filter ProductFilter) (domain.CursorPage[domain.Product], error)
	UpsertProduct(ctx context.Context, product domain.Product) error
	UpsertVariant(ctx context.Context, variant domain.ProductVariant) error
}

// ProductFilter narrows catalog listings.
type ProductFilter struct {
	ActiveOnly bool
	Pagination domain.Pagination
}

// CartRepository owns the per-user cart document: lines, buy-now selection
// and the resolved checkout intent.
type CartRepository interface {
	Get(ctx context.Context, userID string) (domain.Cart, error)
	UpsertLine(ctx context.Context, userID string, line domain.CartLine) (domain.Cart, error)
	UpdateLineQuantity(ctx context.Context, userID, lineID string, quantity int) (domain.Cart, error)
	RemoveLine(ctx context.Context, userID, lineID string) (domain.Cart, error)
	SetBuyNow(ctx context.Context, userID string, selection *domain.BuyNowSelection) (domain.Cart, error)
	SaveCheckout(ctx context.Context, userID string, intent *domain.CheckoutIntent) (domain.Cart, error)
}

// OrderRepository persists orders. Create is transactional: stock reserve,
// order insert, payment reference claim and cart clearing all commit or roll
// back together.
type OrderRepository interface {
	Create(ctx context.Context, req OrderCreateRequest) (OrderCreateResult, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByProviderOrderID(ctx context.Context, providerOrderID string) (domain.Order, error)
	ListByUser(ctx context.Context, userID string, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	ListQueue(ctx context.Context, filter QueueFilter) (domain.CursorPage[domain.Order], error)
	UpdateStatus(ctx context.Context, req OrderStatusUpdate) (domain.Order, error)
	MarkPaid(ctx context.Context, orderID string, paidAt time.Time) (domain.Order, error)
}

// OrderCreateRequest carries the order snapshot plus the side effects to
// apply atomically with the insert.
type OrderCreateRequest struct {
	Order        domain.Order
	ReserveStock bool
	ClearCart    bool
	ClearBuyNow  bool
	Now          time.Time
}

// OrderCreateResult reports the committed order. Existing is true when the
// order's provider order id had already been claimed by a previous create;
// the returned order is that earlier one and no side effects were applied.
type OrderCreateResult struct {
	Order    domain.Order
	Existing bool
}

// OrderStatusUpdate mutates fulfilment status with its coupled side effects
// inside one transaction.
type OrderStatusUpdate struct {
	OrderID      string
	Status       domain.OrderStatus
	RefundID     *string
	RestockLines bool
	Now          time.Time
}

// OrderListFilter narrows customer order history listings.
type OrderListFilter struct {
	Statuses   []domain.OrderStatus
	Pagination domain.Pagination
}

// QueueFilter narrows the fulfilment queue. AgentID scopes to orders
// assigned to that agent; IncludeUnassigned widens the scope with orders
// nobody picked up yet.
type QueueFilter struct {
	AgentID           string
	IncludeUnassigned bool
	Statuses          []domain.OrderStatus
	Pagination        domain.Pagination
}

// AgentRepository persists the delivery agent roster.
type AgentRepository interface {
	Get(ctx context.Context, agentID string) (domain.DeliveryAgent, error)
	ListActive(ctx context.Context) ([]domain.DeliveryAgent, error)
	Upsert(ctx context.Context, agent domain.DeliveryAgent) error
}

// CounterRepository provides monotonic sequences for order numbering.
type CounterRepository interface {
	Next(ctx context.Context, counterID string) (int64, error)
}

// HealthRepository aggregates dependency probes for readiness checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
