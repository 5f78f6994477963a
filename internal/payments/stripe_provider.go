package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Capture(id string, params *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeRefundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

type stripeClients struct {
	intents stripePaymentIntentAPI
	refunds stripeRefundAPI
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey        string
	SigningSecret string
	Backends      *stripe.Backends
	Logger        StripeLogger
	Clock         func() time.Time
	Clients       *stripeClients
}

// StripeProvider implements the Provider interface using Stripe Payment Intents.
// The payment id and the provider order id are the same intent id.
type StripeProvider struct {
	api           stripeClients
	signingSecret string
	clock         func() time.Time
	logger        StripeLogger
}

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, errors.New("stripe: api key is required")
	}
	signingSecret := strings.TrimSpace(cfg.SigningSecret)
	if signingSecret == "" {
		return nil, errors.New("stripe: signing secret is required")
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{
			intents: sc.PaymentIntents,
			refunds: sc.Refunds,
		}
	}

	if clients.intents == nil || clients.refunds == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		api:           clients,
		signingSecret: signingSecret,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateOrder creates a Payment Intent the client confirms with Stripe.js.
func (p *StripeProvider) CreateOrder(ctx context.Context, req OrderRequest) (ProviderOrder, error) {
	if p == nil {
		return ProviderOrder{}, errors.New("stripe: provider is nil")
	}
	if req.Amount <= 0 {
		return ProviderOrder{}, errors.New("stripe: amount must be positive")
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(strings.ToLower(req.Currency)),
	}
	params.Context = ctx
	if receipt := strings.TrimSpace(req.Receipt); receipt != "" {
		params.SetIdempotencyKey(receipt)
		params.AddMetadata("receipt", receipt)
	}
	for k, v := range req.Notes {
		params.AddMetadata(k, v)
	}

	intent, err := p.api.intents.New(params)
	if err != nil {
		return ProviderOrder{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}

	p.logger(ctx, "payments.stripe.intent.created", map[string]any{
		"paymentIntent": intent.ID,
		"amount":        intent.Amount,
		"currency":      intent.Currency,
	})

	raw := map[string]any{}
	if data, err := json.Marshal(intent); err == nil {
		_ = json.Unmarshal(data, &raw)
	}

	return ProviderOrder{
		ID:       intent.ID,
		Provider: "stripe",
		Amount:   intent.Amount,
		Currency: strings.ToUpper(string(intent.Currency)),
		Raw:      raw,
	}, nil
}

// VerifySignature checks the client callback signature against the signing secret.
func (p *StripeProvider) VerifySignature(req SignatureRequest) error {
	if p == nil {
		return errors.New("stripe: provider is nil")
	}
	return verifyCallbackSignature(p.signingSecret, req)
}

// LookupPayment retrieves the Payment Intent for reconciliation.
func (p *StripeProvider) LookupPayment(ctx context.Context, paymentID string) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, errors.New("stripe: provider is nil")
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	intent, err := p.api.intents.Get(strings.TrimSpace(paymentID), params)
	if err != nil {
		return PaymentDetails{}, fmt.Errorf("stripe: lookup payment intent: %w", err)
	}
	return stripePaymentDetails(intent), nil
}

// Capture captures a Payment Intent awaiting capture.
func (p *StripeProvider) Capture(ctx context.Context, req CaptureRequest) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, errors.New("stripe: provider is nil")
	}
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	if req.Amount > 0 {
		params.AmountToCapture = stripe.Int64(req.Amount)
	}
	intent, err := p.api.intents.Capture(strings.TrimSpace(req.PaymentID), params)
	if err != nil {
		return PaymentDetails{}, fmt.Errorf("stripe: capture payment intent: %w", err)
	}
	p.logger(ctx, "payments.stripe.intent.captured", map[string]any{
		"paymentIntent":  intent.ID,
		"amountReceived": intent.AmountReceived,
	})
	return stripePaymentDetails(intent), nil
}

// Refund creates a refund for the provided Payment Intent.
func (p *StripeProvider) Refund(ctx context.Context, req RefundRequest) (RefundResult, error) {
	if p == nil {
		return RefundResult{}, errors.New("stripe: provider is nil")
	}
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(strings.TrimSpace(req.PaymentID)),
	}
	params.Context = ctx
	if req.Amount != nil {
		params.Amount = stripe.Int64(*req.Amount)
	}
	if reason := mapStripeRefundReason(req.Reason); reason != "" {
		params.Reason = stripe.String(reason)
	}
	for k, v := range req.Notes {
		params.AddMetadata(k, v)
	}

	refund, err := p.api.refunds.New(params)
	if err != nil {
		return RefundResult{}, fmt.Errorf("stripe: refund payment intent: %w", err)
	}

	p.logger(ctx, "payments.stripe.intent.refunded", map[string]any{
		"paymentIntent": req.PaymentID,
		"refundId":      refund.ID,
	})

	raw := map[string]any{}
	if data, err := json.Marshal(refund); err == nil {
		_ = json.Unmarshal(data, &raw)
	}

	return RefundResult{
		ID:        refund.ID,
		PaymentID: strings.TrimSpace(req.PaymentID),
		Amount:    refund.Amount,
		Raw:       raw,
	}, nil
}

func stripePaymentDetails(intent *stripe.PaymentIntent) PaymentDetails {
	if intent == nil {
		return PaymentDetails{}
	}

	status := StatusPending
	captured := false
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		status = StatusCaptured
		captured = true
	case stripe.PaymentIntentStatusRequiresCapture:
		status = StatusAuthorized
	case stripe.PaymentIntentStatusCanceled:
		status = StatusFailed
	}

	if charge := intent.LatestCharge; charge != nil {
		if charge.Captured {
			captured = true
			if status == StatusPending {
				status = StatusCaptured
			}
		}
		if charge.Refunded || (charge.AmountRefunded >= charge.Amount && charge.Amount > 0) {
			status = StatusRefunded
		}
	}

	currency := strings.ToUpper(string(intent.Currency))
	if currency == "" && intent.LatestCharge != nil {
		currency = strings.ToUpper(string(intent.LatestCharge.Currency))
	}

	raw := map[string]any{}
	if data, err := json.Marshal(intent); err == nil {
		_ = json.Unmarshal(data, &raw)
	}

	return PaymentDetails{
		Provider:  "stripe",
		PaymentID: intent.ID,
		OrderID:   intent.ID,
		Status:    status,
		Amount:    intent.Amount,
		Currency:  currency,
		Captured:  captured,
		Raw:       raw,
	}
}

func mapStripeRefundReason(reason string) string {
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case string(stripe.RefundReasonDuplicate):
		return string(stripe.RefundReasonDuplicate)
	case string(stripe.RefundReasonFraudulent):
		return string(stripe.RefundReasonFraudulent)
	case string(stripe.RefundReasonRequestedByCustomer):
		return string(stripe.RefundReasonRequestedByCustomer)
	default:
		return ""
	}
}
