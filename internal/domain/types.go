package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage wraps a page of results alongside the token for the next page.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// OrderStatus tracks an order through the fulfilment pipeline.
type OrderStatus string

const (
	// OrderStatusPendingPickup is the initial status of every order.
	OrderStatusPendingPickup OrderStatus = "pending_pickup"
	// OrderStatusOutForDelivery marks an order handed to a delivery agent.
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	// OrderStatusDelivered is terminal.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled is terminal.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// CanTransitionTo reports whether the fulfilment pipeline permits moving
// from s to next. Cancellation is only possible before pickup.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case OrderStatusPendingPickup:
		return next == OrderStatusOutForDelivery || next == OrderStatusCancelled
	case OrderStatusOutForDelivery:
		return next == OrderStatusDelivered
	default:
		return false
	}
}

// PaymentMethod identifies how an order was (or will be) paid.
type PaymentMethod string

const (
	// PaymentMethodCOD is cash on delivery; the order starts unpaid.
	PaymentMethodCOD PaymentMethod = "cod"
	// PaymentMethodRazorpay is an online payment settled through Razorpay.
	PaymentMethodRazorpay PaymentMethod = "razorpay"
	// PaymentMethodStripe is an online payment settled through Stripe.
	PaymentMethodStripe PaymentMethod = "stripe"
)

// Product is a sellable catalog entry. Price is in minor currency units
// (paise for INR). Stock on the product applies only when the product has
// no variants.
type Product struct {
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
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ProductVariant is a concrete purchasable option of a product (size,
// colour, ...). Price, when set, overrides the parent product price.
type ProductVariant struct {
	ID        string
	ProductID string
	SKU       string
	Options   map[string]string
	Price     *int64
	Stock     int
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EffectivePrice returns the variant price override when present, falling
// back to the parent product price.
func (v ProductVariant) EffectivePrice(product Product) int64 {
	if v.Price != nil {
		return *v.Price
	}
	return product.Price
}

// CartLine is a single product (or variant) selection in a user's cart.
type CartLine struct {
	ID        string
	ProductID string
	VariantID *string
	Quantity  int
	AddedAt   time.Time
}

// BuyNowSelection is a transient single-item purchase that bypasses the
// cart. While present it takes precedence over cart lines at checkout and
// is consumed by the order that commits it.
type BuyNowSelection struct {
	ProductID string
	VariantID *string
	SetAt     time.Time
}

// Cart is the per-user mutable shopping state: regular lines, an optional
// buy-now selection and the latest resolved checkout intent.
type Cart struct {
	UserID    string
	Lines     []CartLine
	BuyNow    *BuyNowSelection
	Checkout  *CheckoutIntent
	UpdatedAt time.Time
}

// ShippingInfo captures the validated delivery destination for a checkout.
type ShippingInfo struct {
	FullName   string
	Address    string
	City       string
	PostalCode string
	Phone      string
}

// CheckoutSource records whether an intent was resolved from the cart or a
// buy-now selection.
type CheckoutSource string

const (
	// CheckoutSourceCart resolves all cart lines.
	CheckoutSourceCart CheckoutSource = "cart"
	// CheckoutSourceBuyNow resolves the single buy-now selection.
	CheckoutSourceBuyNow CheckoutSource = "buy_now"
)

// ResolvedLine is a cart or buy-now line with its price snapshot taken at
// resolution time. UnitPrice is in minor currency units.
type ResolvedLine struct {
	ProductID string
	VariantID *string
	Name      string
	SKU       string
	Options   map[string]string
	Quantity  int
	UnitPrice int64
}

// Total returns the line total in minor currency units.
func (l ResolvedLine) Total() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

// CheckoutIntent is the priced, validated snapshot a payment or cash
// commit operates on. Once a payment provider order has been created for
// it, ProviderOrderID and Provider are populated.
type CheckoutIntent struct {
	Source          CheckoutSource
	Lines           []ResolvedLine
	Shipping        ShippingInfo
	Total           int64
	Currency        string
	Provider        string
	ProviderOrderID string
	CreatedAt       time.Time
}

// OrderLine is an immutable snapshot of a purchased line. Prices never
// change after the order is created, regardless of later catalog edits.
type OrderLine struct {
	ProductID string
	VariantID *string
	Name      string
	SKU       string
	Options   map[string]string
	Quantity  int
	UnitPrice int64
	Total     int64
}

// Order is a committed purchase moving through the fulfilment pipeline.
type Order struct {
	ID                string
	Number            string
	UserID            string
	Lines             []OrderLine
	Shipping          ShippingInfo
	PaymentMethod     PaymentMethod
	Paid              bool
	Status            OrderStatus
	AssignedAgentID   *string
	Total             int64
	Currency          string
	ProviderOrderID   *string
	ProviderPaymentID *string
	ProviderRefundID  *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	PaidAt            *time.Time
	OutForDeliveryAt  *time.Time
	DeliveredAt       *time.Time
	CancelledAt       *time.Time
}

// Terminal reports whether the order can no longer change status.
func (o Order) Terminal() bool {
	return o.Status == OrderStatusDelivered || o.Status == OrderStatusCancelled
}

// DeliveryAgent is a fulfilment user who moves orders through delivery
// statuses.
type DeliveryAgent struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	Active    bool
	CreatedAt time.Time
}
