package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/devki-mart/api/internal/domain"
	"github.com/devki-mart/api/internal/notifications"
	"github.com/devki-mart/api/internal/payments"
	"github.com/devki-mart/api/internal/repositories"
)

const receiptIDPrefix = "rcpt_"

// paymentGateway abstracts payments.Manager for easier testing.
type paymentGateway interface {
	CreateOrder(ctx context.Context, providerKey string, req payments.OrderRequest) (payments.ProviderOrder, error)
	VerifySignature(providerKey string, req payments.SignatureRequest) error
	LookupPayment(ctx context.Context, providerKey, paymentID string) (payments.PaymentDetails, error)
	Capture(ctx context.Context, providerKey string, req payments.CaptureRequest) (payments.PaymentDetails, error)
}

// PaymentServiceDeps wires the dependencies required by the payment service.
type PaymentServiceDeps struct {
	Carts         repositories.CartRepository
	Orders        repositories.OrderRepository
	Counters      repositories.CounterRepository
	Gateway       paymentGateway
	Assignment    AssignmentStrategy
	Notifier      notifications.Notifier
	NumberPrefix  string
	OperatorEmail string
	Clock         func() time.Time
	Logger        func(ctx context.Context, event string, fields map[string]any)
	IDGen         func() string
}

type paymentService struct {
	carts     repositories.CartRepository
	orders    repositories.OrderRepository
	gateway   paymentGateway
	committer *orderCommitter
	now       func() time.Time
	logger    func(ctx context.Context, event string, fields map[string]any)
}

// NewPaymentService constructs a PaymentService validating required dependencies.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Carts == nil {
		return nil, errors.New("payment service: cart repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("payment service: order repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("payment service: counter repository is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("payment service: payment gateway is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGen
	if idGen == nil {
		idGen = func() string { return orderIDPrefix + ulid.Make().String() }
	}
	prefix := strings.TrimSpace(deps.NumberPrefix)
	if prefix == "" {
		prefix = "DM"
	}

	now := func() time.Time { return clock().UTC() }
	return &paymentService{
		carts:   deps.Carts,
		orders:  deps.Orders,
		gateway: deps.Gateway,
		committer: &orderCommitter{
			orders:        deps.Orders,
			counters:      deps.Counters,
			assignment:    deps.Assignment,
			notifier:      deps.Notifier,
			numberPrefix:  prefix,
			operatorEmail: strings.TrimSpace(deps.OperatorEmail),
			now:           now,
			idGen:         idGen,
			logger:        logger,
		},
		now:    now,
		logger: logger,
	}, nil
}

// CreateIntent opens a provider-side order for the resolved checkout and
// records the provider order id on the pending checkout session.
func (s *paymentService) CreateIntent(ctx context.Context, cmd CreatePaymentIntentCommand) (PaymentIntentResult, error) {
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return PaymentIntentResult{}, ErrCheckoutInvalidInput
	}

	cart, err := s.carts.Get(ctx, uid)
	if err != nil {
		return PaymentIntentResult{}, translateCheckoutError(err)
	}
	if cart.Checkout == nil || len(cart.Checkout.Lines) == 0 {
		return PaymentIntentResult{}, ErrCheckoutEmpty
	}
	intent := *cart.Checkout

	providerOrder, err := s.gateway.CreateOrder(ctx, cmd.Provider, payments.OrderRequest{
		Amount:   intent.Total,
		Currency: intent.Currency,
		Receipt:  receiptIDPrefix + ulid.Make().String(),
		Notes:    map[string]string{"userId": uid},
	})
	if err != nil {
		return PaymentIntentResult{}, translatePaymentError(err)
	}

	intent.Provider = providerOrder.Provider
	intent.ProviderOrderID = providerOrder.ID
	if _, err := s.carts.SaveCheckout(ctx, uid, &intent); err != nil {
		return PaymentIntentResult{}, translateCheckoutError(err)
	}

	s.logger(ctx, "payments.intent_created", map[string]any{
		"user_id":           uid,
		"provider":          providerOrder.Provider,
		"provider_order_id": providerOrder.ID,
		"amount":            intent.Total,
	})
	return PaymentIntentResult{
		Provider:        providerOrder.Provider,
		ProviderOrderID: providerOrder.ID,
		Amount:          intent.Total,
		Currency:        intent.Currency,
	}, nil
}

// VerifyAndCommit validates a provider callback and commits the order exactly
// once. A replayed callback for an already-committed provider order returns
// the existing order unchanged.
func (s *paymentService) VerifyAndCommit(ctx context.Context, cmd VerifyPaymentCommand) (Order, error) {
	uid := strings.TrimSpace(cmd.UserID)
	providerOrderID := strings.TrimSpace(cmd.ProviderOrderID)
	paymentID := strings.TrimSpace(cmd.PaymentID)
	if uid == "" || providerOrderID == "" || paymentID == "" {
		return Order{}, ErrCheckoutInvalidInput
	}

	// Replay short-circuit before anything touches stock.
	existing, err := s.orders.FindByProviderOrderID(ctx, providerOrderID)
	if err == nil {
		s.logger(ctx, "payments.verify_replayed", map[string]any{
			"provider_order_id": providerOrderID,
			"order_id":          existing.ID,
		})
		return existing, nil
	}
	if !repositories.IsNotFound(err) {
		return Order{}, translateCheckoutError(err)
	}

	cart, err := s.carts.Get(ctx, uid)
	if err != nil {
		return Order{}, translateCheckoutError(err)
	}
	if cart.Checkout == nil || cart.Checkout.ProviderOrderID != providerOrderID {
		return Order{}, ErrCheckoutEmpty
	}
	intent := *cart.Checkout

	providerKey := cmd.Provider
	if providerKey == "" {
		providerKey = intent.Provider
	}

	if err := s.gateway.VerifySignature(providerKey, payments.SignatureRequest{
		OrderID:   providerOrderID,
		PaymentID: paymentID,
		Signature: cmd.Signature,
	}); err != nil {
		s.logger(ctx, "payments.signature_rejected", map[string]any{
			"provider_order_id": providerOrderID,
			"payment_id":        paymentID,
		})
		return Order{}, ErrPaymentVerificationFailed
	}

	details, err := s.gateway.LookupPayment(ctx, providerKey, paymentID)
	if err != nil {
		return Order{}, translatePaymentError(err)
	}
	if details.OrderID != "" && details.OrderID != providerOrderID {
		return Order{}, ErrPaymentVerificationFailed
	}
	if details.Amount != 0 && details.Amount != intent.Total {
		return Order{}, ErrPaymentVerificationFailed
	}
	if details.Status == payments.StatusFailed || details.Status == payments.StatusRefunded {
		return Order{}, ErrPaymentVerificationFailed
	}

	if !details.Captured {
		captured, err := s.gateway.Capture(ctx, providerKey, payments.CaptureRequest{
			PaymentID: paymentID,
			Amount:    intent.Total,
			Currency:  intent.Currency,
		})
		if err != nil {
			return Order{}, translatePaymentError(err)
		}
		details = captured
	}
	if !details.Captured {
		return Order{}, ErrPaymentVerificationFailed
	}

	method := domain.PaymentMethod(strings.ToLower(strings.TrimSpace(details.Provider)))
	if method == "" {
		method = domain.PaymentMethod(strings.ToLower(strings.TrimSpace(providerKey)))
	}

	order, replayed, err := s.committer.commit(ctx, commitParams{
		userID:    uid,
		intent:    intent,
		method:    method,
		paid:      true,
		paymentID: &paymentID,
	})
	if err != nil {
		return Order{}, err
	}
	if replayed {
		s.logger(ctx, "payments.verify_replayed", map[string]any{
			"provider_order_id": providerOrderID,
			"order_id":          order.ID,
		})
	}
	return order, nil
}

func translatePaymentError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, payments.ErrSignatureMismatch) {
		return ErrPaymentVerificationFailed
	}
	if errors.Is(err, payments.ErrUnsupportedProvider) {
		return ErrCheckoutInvalidInput
	}
	return ErrPaymentUnavailable
}
