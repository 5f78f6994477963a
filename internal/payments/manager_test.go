package payments

import (
	"context"
	"errors"
	"testing"
)

type stubProvider struct {
	createOrderFunc func(ctx context.Context, req OrderRequest) (ProviderOrder, error)
	verifyFunc      func(req SignatureRequest) error
	lookupFunc      func(ctx context.Context, paymentID string) (PaymentDetails, error)
	captureFunc     func(ctx context.Context, req CaptureRequest) (PaymentDetails, error)
	refundFunc      func(ctx context.Context, req RefundRequest) (RefundResult, error)
}

func (s *stubProvider) CreateOrder(ctx context.Context, req OrderRequest) (ProviderOrder, error) {
	if s.createOrderFunc != nil {
		return s.createOrderFunc(ctx, req)
	}
	return ProviderOrder{ID: "order_stub"}, nil
}

func (s *stubProvider) VerifySignature(req SignatureRequest) error {
	if s.verifyFunc != nil {
		return s.verifyFunc(req)
	}
	return nil
}

func (s *stubProvider) LookupPayment(ctx context.Context, paymentID string) (PaymentDetails, error) {
	if s.lookupFunc != nil {
		return s.lookupFunc(ctx, paymentID)
	}
	return PaymentDetails{PaymentID: paymentID}, nil
}

func (s *stubProvider) Capture(ctx context.Context, req CaptureRequest) (PaymentDetails, error) {
	if s.captureFunc != nil {
		return s.captureFunc(ctx, req)
	}
	return PaymentDetails{PaymentID: req.PaymentID, Captured: true}, nil
}

func (s *stubProvider) Refund(ctx context.Context, req RefundRequest) (RefundResult, error) {
	if s.refundFunc != nil {
		return s.refundFunc(ctx, req)
	}
	return RefundResult{ID: "rfnd_stub"}, nil
}

func TestNewManagerRequiresProviders(t *testing.T) {
	if _, err := NewManager(nil); err == nil {
		t.Fatal("expected error for empty provider map")
	}
	if _, err := NewManager(map[string]Provider{"": &stubProvider{}}); err == nil {
		t.Fatal("expected error for blank provider key")
	}
	if _, err := NewManager(map[string]Provider{"razorpay": nil}); err == nil {
		t.Fatal("expected error for nil provider")
	}
}

func TestManagerResolvePrefersExplicitKey(t *testing.T) {
	razorpay := &stubProvider{}
	stripe := &stubProvider{}
	manager, err := NewManager(map[string]Provider{"razorpay": razorpay, "stripe": stripe})
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}

	key, provider, err := manager.Resolve("Stripe")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if key != "stripe" || provider != Provider(stripe) {
		t.Fatalf("expected stripe provider, got %q", key)
	}
}

func TestManagerResolveDefaultsToRazorpay(t *testing.T) {
	manager, err := NewManager(map[string]Provider{
		"razorpay": &stubProvider{},
		"stripe":   &stubProvider{},
	})
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}

	key, _, err := manager.Resolve("")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if key != "razorpay" {
		t.Fatalf("expected razorpay default, got %q", key)
	}
}

func TestManagerResolveUnknownProvider(t *testing.T) {
	manager, err := NewManager(map[string]Provider{"razorpay": &stubProvider{}})
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}

	if _, _, err := manager.Resolve("paypal"); !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
}

func TestManagerResolveSingleProviderFallback(t *testing.T) {
	manager, err := NewManager(
		map[string]Provider{"stripe": &stubProvider{}},
		WithDefaultProvider("paypal"),
	)
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}

	key, _, err := manager.Resolve("")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if key != "stripe" {
		t.Fatalf("expected single registered provider, got %q", key)
	}
}

func TestManagerCreateOrderStampsProviderKey(t *testing.T) {
	manager, err := NewManager(map[string]Provider{
		"razorpay": &stubProvider{
			createOrderFunc: func(_ context.Context, req OrderRequest) (ProviderOrder, error) {
				if req.Amount != 49900 {
					t.Fatalf("unexpected amount %d", req.Amount)
				}
				return ProviderOrder{ID: "order_xyz", Amount: req.Amount}, nil
			},
		},
	})
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}

	order, err := manager.CreateOrder(context.Background(), "", OrderRequest{Amount: 49900, Currency: "INR"})
	if err != nil {
		t.Fatalf("CreateOrder returned error: %v", err)
	}
	if order.Provider != "razorpay" {
		t.Fatalf("expected provider key stamped, got %q", order.Provider)
	}
}
