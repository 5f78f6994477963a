package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Status enumerates the normalised payment states shared across providers.
type Status string

const (
	// StatusPending indicates the payment is awaiting customer action or PSP confirmation.
	StatusPending Status = "pending"
	// StatusAuthorized indicates funds are held but not yet captured.
	StatusAuthorized Status = "authorized"
	// StatusCaptured indicates the PSP reports the payment as captured.
	StatusCaptured Status = "captured"
	// StatusFailed indicates the PSP reports a failure and no further action is possible.
	StatusFailed Status = "failed"
	// StatusRefunded indicates the payment has been fully refunded.
	StatusRefunded Status = "refunded"
)

var (
	// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
	ErrUnsupportedProvider = errors.New("payments: unsupported provider")
	// ErrSignatureMismatch is returned when a client callback signature fails verification.
	ErrSignatureMismatch = errors.New("payments: signature mismatch")
)

// OrderRequest captures the payload required to open a payment with the PSP
// before the customer authorises it. Amount is in minor currency units.
type OrderRequest struct {
	Amount   int64
	Currency string
	Receipt  string
	Notes    map[string]string
}

// ProviderOrder represents the PSP-side order handed back to the client so it
// can drive the payment widget.
type ProviderOrder struct {
	ID       string
	Provider string
	Amount   int64
	Currency string
	Raw      map[string]any
}

// SignatureRequest carries the client callback fields checked against the
// shared signing secret.
type SignatureRequest struct {
	OrderID   string
	PaymentID string
	Signature string
}

// CaptureRequest defines an explicit capture of an authorised payment.
type CaptureRequest struct {
	PaymentID string
	Amount    int64
	Currency  string
}

// RefundRequest defines a PSP refund attempt. A nil Amount refunds in full.
type RefundRequest struct {
	PaymentID string
	Amount    *int64
	Reason    string
	Notes     map[string]string
}

// RefundResult reports the PSP refund entity.
type RefundResult struct {
	ID        string
	PaymentID string
	Amount    int64
	Raw       map[string]any
}

// PaymentDetails normalises PSP specific payment fields for reconciliation.
type PaymentDetails struct {
	Provider  string
	PaymentID string
	OrderID   string
	Status    Status
	Amount    int64
	Currency  string
	Captured  bool
	Raw       map[string]any
}

// Provider defines the contract for PSP adapters to implement.
type Provider interface {
	CreateOrder(ctx context.Context, req OrderRequest) (ProviderOrder, error)
	VerifySignature(req SignatureRequest) error
	LookupPayment(ctx context.Context, paymentID string) (PaymentDetails, error)
	Capture(ctx context.Context, req CaptureRequest) (PaymentDetails, error)
	Refund(ctx context.Context, req RefundRequest) (RefundResult, error)
}

// Manager coordinates provider selection and exposes the aggregated interface.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the provider used when callers express no preference.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = provider
	}
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	copyMap := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := strings.TrimSpace(strings.ToLower(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		copyMap[key] = v
	}
	m := &Manager{
		providers: copyMap,
	}
	if _, ok := copyMap["razorpay"]; ok {
		m.defaultProvider = "razorpay"
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Resolve returns the provider registered under the given key, falling back
// to the default when key is empty.
func (m *Manager) Resolve(key string) (string, Provider, error) {
	if m == nil {
		return "", nil, errors.New("payments: manager is nil")
	}
	if len(m.providers) == 0 {
		return "", nil, errors.New("payments: no providers registered")
	}
	if trimmed := strings.TrimSpace(strings.ToLower(key)); trimmed != "" {
		if p, ok := m.providers[trimmed]; ok {
			return trimmed, p, nil
		}
		return "", nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, trimmed)
	}
	if def := strings.TrimSpace(strings.ToLower(m.defaultProvider)); def != "" {
		if p, ok := m.providers[def]; ok {
			return def, p, nil
		}
	}
	if len(m.providers) == 1 {
		for key, p := range m.providers {
			return key, p, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

// CreateOrder delegates to the resolved provider.
func (m *Manager) CreateOrder(ctx context.Context, providerKey string, req OrderRequest) (ProviderOrder, error) {
	key, provider, err := m.Resolve(providerKey)
	if err != nil {
		return ProviderOrder{}, err
	}
	order, err := provider.CreateOrder(ctx, req)
	if err != nil {
		return ProviderOrder{}, err
	}
	order.Provider = key
	return order, nil
}

// VerifySignature delegates to the resolved provider.
func (m *Manager) VerifySignature(providerKey string, req SignatureRequest) error {
	_, provider, err := m.Resolve(providerKey)
	if err != nil {
		return err
	}
	return provider.VerifySignature(req)
}

// LookupPayment delegates to the resolved provider.
func (m *Manager) LookupPayment(ctx context.Context, providerKey, paymentID string) (PaymentDetails, error) {
	key, provider, err := m.Resolve(providerKey)
	if err != nil {
		return PaymentDetails{}, err
	}
	details, err := provider.LookupPayment(ctx, paymentID)
	if err != nil {
		return PaymentDetails{}, err
	}
	if details.Provider == "" {
		details.Provider = key
	}
	return details, nil
}

// Capture delegates to the resolved provider.
func (m *Manager) Capture(ctx context.Context, providerKey string, req CaptureRequest) (PaymentDetails, error) {
	_, provider, err := m.Resolve(providerKey)
	if err != nil {
		return PaymentDetails{}, err
	}
	return provider.Capture(ctx, req)
}

// Refund delegates to the resolved provider.
func (m *Manager) Refund(ctx context.Context, providerKey string, req RefundRequest) (RefundResult, error) {
	_, provider, err := m.Resolve(providerKey)
	if err != nil {
		return RefundResult{}, err
	}
	return provider.Refund(ctx, req)
}
