package services

import (
	"context"

	domain "github.com/devki-mart/api/internal/domain"
	"github.com/devki-mart/api/internal/platform/auth"
	"github.com/devki-mart/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	Product            = domain.Product
	ProductVariant     = domain.ProductVariant
	Cart               = domain.Cart
	CartLine           = domain.CartLine
	BuyNowSelection    = domain.BuyNowSelection
	ShippingInfo       = domain.ShippingInfo
	CheckoutIntent     = domain.CheckoutIntent
	Order              = domain.Order
	OrderStatus        = domain.OrderStatus
	DeliveryAgent      = domain.DeliveryAgent
	SystemHealthReport = domain.SystemHealthReport
)

// Actor identifies the authenticated caller for permission checks.
type Actor struct {
	ID    string
	Roles []string
}

// IsAdmin reports whether the actor carries the admin role.
func (a Actor) IsAdmin() bool { return a.hasRole(auth.RoleAdmin) }

// IsAgent reports whether the actor carries the delivery agent role.
func (a Actor) IsAgent() bool { return a.hasRole(auth.RoleAgent) }

func (a Actor) hasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// CatalogService exposes the storefront catalog plus the admin write surface.
type CatalogService interface {
	ListProducts(ctx context.Context, filter CatalogListFilter) (domain.CursorPage[Product], error)
	GetProductBySlug(ctx context.Context, slug string) (Product, []ProductVariant, error)
	UpsertProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error)
	UpsertVariant(ctx context.Context, cmd UpsertVariantCommand) (ProductVariant, error)
	UpsertAgent(ctx context.Context, cmd UpsertAgentCommand) (DeliveryAgent, error)
}

// CartService manages the per-user shopping cart.
type CartService interface {
	GetCart(ctx context.Context, userID string) (Cart, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error)
	UpdateItemQuantity(ctx context.Context, cmd UpdateCartItemCommand) (Cart, error)
	RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error)
}

// CheckoutService resolves carts and buy-now selections into priced checkout
// intents and commits cash orders.
type CheckoutService interface {
	SetBuyNow(ctx context.Context, cmd BuyNowCommand) (Cart, error)
	ResolveCheckout(ctx context.Context, cmd ResolveCheckoutCommand) (CheckoutIntent, error)
	CommitCashOrder(ctx context.Context, cmd CommitCashOrderCommand) (Order, error)
}

// PaymentService opens provider payments for a resolved checkout and turns
// verified payments into orders.
type PaymentService interface {
	CreateIntent(ctx context.Context, cmd CreatePaymentIntentCommand) (PaymentIntentResult, error)
	VerifyAndCommit(ctx context.Context, cmd VerifyPaymentCommand) (Order, error)
}

// OrderService covers order reads, the fulfilment state machine and
// cancellation with refunds.
type OrderService interface {
	ListOrders(ctx context.Context, cmd ListOrdersCommand) (domain.CursorPage[Order], error)
	GetOrder(ctx context.Context, cmd GetOrderCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	AgentQueue(ctx context.Context, cmd AgentQueueCommand) (domain.CursorPage[Order], error)
	TransitionStatus(ctx context.Context, cmd TransitionStatusCommand) (Order, error)
	MarkPaid(ctx context.Context, cmd MarkPaidCommand) (Order, error)
}

// SystemService aggregates utility operations such as readiness checks.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// AssignmentStrategy decides which delivery agent, if any, picks up a fresh
// order. A nil agent id means the order stays unassigned.
type AssignmentStrategy interface {
	Assign(ctx context.Context, order Order) (*string, error)
}

// Command and DTO definitions ------------------------------------------------

type CatalogListFilter struct {
	ActiveOnly bool
	Pagination Pagination
}

type UpsertProductCommand struct {
	ID              string
	Slug            string
	Name            string
	Description     string
	DescriptionHTML string
	Price           int64
	Currency        string
	Stock           int
	HasVariants     bool
	Active          bool
}

type UpsertVariantCommand struct {
	ID        string
	ProductID string
	SKU       string
	Options   map[string]string
	Price     *int64
	Stock     int
	Active    bool
}

type UpsertAgentCommand struct {
	ID     string
	Name   string
	Email  string
	Phone  string
	Active bool
}

type AddCartItemCommand struct {
	UserID    string
	ProductID string
	VariantID *string
	Quantity  int
}

type UpdateCartItemCommand struct {
	UserID   string
	LineID   string
	Quantity int
}

type RemoveCartItemCommand struct {
	UserID string
	LineID string
}

type BuyNowCommand struct {
	UserID    string
	ProductID string
	VariantID *string
}

type ResolveCheckoutCommand struct {
	UserID   string
	Shipping ShippingInfo
}

type CommitCashOrderCommand struct {
	UserID string
}

type CreatePaymentIntentCommand struct {
	UserID   string
	Provider string
}

// PaymentIntentResult carries the provider order the client payment widget
// needs, plus the key id identifying the merchant account.
type PaymentIntentResult struct {
	Provider        string
	ProviderOrderID string
	Amount          int64
	Currency        string
}

type VerifyPaymentCommand struct {
	UserID          string
	Provider        string
	ProviderOrderID string
	PaymentID       string
	Signature       string
}

type ListOrdersCommand struct {
	Actor      Actor
	Statuses   []OrderStatus
	Pagination Pagination
}

type GetOrderCommand struct {
	Actor   Actor
	OrderID string
}

type CancelOrderCommand struct {
	Actor   Actor
	OrderID string
	Reason  string
}

type AgentQueueCommand struct {
	Actor      Actor
	Statuses   []OrderStatus
	Pagination Pagination
}

type TransitionStatusCommand struct {
	Actor        Actor
	OrderID      string
	TargetStatus OrderStatus
}

type MarkPaidCommand struct {
	Actor   Actor
	OrderID string
}

// OrderListFilter mirrors the repository filter for handler convenience.
type OrderListFilter = repositories.OrderListFilter
