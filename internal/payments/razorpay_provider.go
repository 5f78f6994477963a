package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	razorpay "github.com/razorpay/razorpay-go"
)

// RazorpayLogger defines the logging contract for Razorpay provider operations.
type RazorpayLogger func(ctx context.Context, event string, fields map[string]any)

type razorpayOrderAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type razorpayPaymentAPI interface {
	Fetch(paymentID string, queryParams map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
	Capture(paymentID string, amount int, data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
	Refund(paymentID string, amount int, data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type razorpayClients struct {
	orders   razorpayOrderAPI
	payments razorpayPaymentAPI
}

// RazorpayProviderConfig configures the RazorpayProvider.
type RazorpayProviderConfig struct {
	KeyID     string
	KeySecret string
	Timeout   time.Duration
	Logger    RazorpayLogger
	Clock     func() time.Time
	Clients   *razorpayClients
}

// RazorpayProvider implements the Provider interface using Razorpay APIs.
type RazorpayProvider struct {
	api       razorpayClients
	keySecret string
	clock     func() time.Time
	logger    RazorpayLogger
}

// NewRazorpayProvider constructs a Razorpay Provider using the given configuration.
func NewRazorpayProvider(cfg RazorpayProviderConfig) (*RazorpayProvider, error) {
	keySecret := strings.TrimSpace(cfg.KeySecret)
	if keySecret == "" {
		return nil, errors.New("razorpay: key secret is required")
	}

	var clients razorpayClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		keyID := strings.TrimSpace(cfg.KeyID)
		if keyID == "" {
			return nil, errors.New("razorpay: key id is required")
		}
		rc := razorpay.NewClient(keyID, keySecret)
		if cfg.Timeout > 0 {
			rc.SetTimeout(int16(cfg.Timeout / time.Second))
		}
		clients = razorpayClients{
			orders:   rc.Order,
			payments: rc.Payment,
		}
	}

	if clients.orders == nil || clients.payments == nil {
		return nil, errors.New("razorpay: incomplete client configuration")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &RazorpayProvider{
		api:       clients,
		keySecret: keySecret,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateOrder opens a Razorpay order the checkout widget can collect against.
func (p *RazorpayProvider) CreateOrder(ctx context.Context, req OrderRequest) (ProviderOrder, error) {
	if p == nil {
		return ProviderOrder{}, errors.New("razorpay: provider is nil")
	}
	if req.Amount <= 0 {
		return ProviderOrder{}, errors.New("razorpay: amount must be positive")
	}

	data := map[string]interface{}{
		"amount":   req.Amount,
		"currency": strings.ToUpper(req.Currency),
	}
	if receipt := strings.TrimSpace(req.Receipt); receipt != "" {
		data["receipt"] = receipt
	}
	if len(req.Notes) > 0 {
		notes := make(map[string]interface{}, len(req.Notes))
		for k, v := range req.Notes {
			notes[k] = v
		}
		data["notes"] = notes
	}

	body, err := p.api.orders.Create(data, nil)
	if err != nil {
		return ProviderOrder{}, fmt.Errorf("razorpay: create order: %w", err)
	}

	order := ProviderOrder{
		ID:       asString(body["id"]),
		Provider: "razorpay",
		Amount:   asInt64(body["amount"]),
		Currency: strings.ToUpper(asString(body["currency"])),
		Raw:      body,
	}
	if order.ID == "" {
		return ProviderOrder{}, errors.New("razorpay: order response missing id")
	}

	p.logger(ctx, "payments.razorpay.order.created", map[string]any{
		"orderId":  order.ID,
		"amount":   order.Amount,
		"currency": order.Currency,
	})

	return order, nil
}

// VerifySignature checks the checkout callback signature against the key secret.
func (p *RazorpayProvider) VerifySignature(req SignatureRequest) error {
	if p == nil {
		return errors.New("razorpay: provider is nil")
	}
	return verifyCallbackSignature(p.keySecret, req)
}

// LookupPayment fetches the payment entity for reconciliation.
func (p *RazorpayProvider) LookupPayment(ctx context.Context, paymentID string) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, errors.New("razorpay: provider is nil")
	}
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return PaymentDetails{}, errors.New("razorpay: payment id is required")
	}

	body, err := p.api.payments.Fetch(paymentID, nil, nil)
	if err != nil {
		return PaymentDetails{}, fmt.Errorf("razorpay: fetch payment: %w", err)
	}
	return razorpayPaymentDetails(body), nil
}

// Capture settles an authorised payment for the exact amount.
func (p *RazorpayProvider) Capture(ctx context.Context, req CaptureRequest) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, errors.New("razorpay: provider is nil")
	}
	if req.Amount <= 0 {
		return PaymentDetails{}, errors.New("razorpay: capture amount must be positive")
	}

	data := map[string]interface{}{
		"currency": strings.ToUpper(req.Currency),
	}
	body, err := p.api.payments.Capture(strings.TrimSpace(req.PaymentID), int(req.Amount), data, nil)
	if err != nil {
		return PaymentDetails{}, fmt.Errorf("razorpay: capture payment: %w", err)
	}

	p.logger(ctx, "payments.razorpay.payment.captured", map[string]any{
		"paymentId": req.PaymentID,
		"amount":    req.Amount,
	})

	return razorpayPaymentDetails(body), nil
}

// Refund issues a refund against a captured payment.
func (p *RazorpayProvider) Refund(ctx context.Context, req RefundRequest) (RefundResult, error) {
	if p == nil {
		return RefundResult{}, errors.New("razorpay: provider is nil")
	}
	paymentID := strings.TrimSpace(req.PaymentID)
	if paymentID == "" {
		return RefundResult{}, errors.New("razorpay: payment id is required")
	}

	data := map[string]interface{}{}
	if reason := strings.TrimSpace(req.Reason); reason != "" {
		data["notes"] = map[string]interface{}{"reason": reason}
	}
	if len(req.Notes) > 0 {
		notes, _ := data["notes"].(map[string]interface{})
		if notes == nil {
			notes = make(map[string]interface{}, len(req.Notes))
		}
		for k, v := range req.Notes {
			notes[k] = v
		}
		data["notes"] = notes
	}

	amount := int64(0)
	if req.Amount != nil {
		amount = *req.Amount
	}

	body, err := p.api.payments.Refund(paymentID, int(amount), data, nil)
	if err != nil {
		return RefundResult{}, fmt.Errorf("razorpay: refund payment: %w", err)
	}

	result := RefundResult{
		ID:        asString(body["id"]),
		PaymentID: paymentID,
		Amount:    asInt64(body["amount"]),
		Raw:       body,
	}
	if result.ID == "" {
		return RefundResult{}, errors.New("razorpay: refund response missing id")
	}

	p.logger(ctx, "payments.razorpay.payment.refunded", map[string]any{
		"paymentId": paymentID,
		"refundId":  result.ID,
	})

	return result, nil
}

func razorpayPaymentDetails(body map[string]interface{}) PaymentDetails {
	status := StatusPending
	switch strings.ToLower(asString(body["status"])) {
	case "authorized":
		status = StatusAuthorized
	case "captured":
		status = StatusCaptured
	case "refunded":
		status = StatusRefunded
	case "failed":
		status = StatusFailed
	}

	captured := false
	if v, ok := body["captured"].(bool); ok {
		captured = v
	}
	if status == StatusCaptured {
		captured = true
	}

	return PaymentDetails{
		Provider:  "razorpay",
		PaymentID: asString(body["id"]),
		OrderID:   asString(body["order_id"]),
		Status:    status,
		Amount:    asInt64(body["amount"]),
		Currency:  strings.ToUpper(asString(body["currency"])),
		Captured:  captured,
		Raw:       body,
	}
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
