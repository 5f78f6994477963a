package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	domain "github.com/devki-mart/api/internal/domain"
	"github.com/devki-mart/api/internal/notifications"
	"github.com/devki-mart/api/internal/repositories/memory"
)

var fixedNow = time.Date(2025, time.March, 1, 10, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	messages []notifications.Message
	err      error
}

func (n *recordingNotifier) Notify(ctx context.Context, msg notifications.Message) error {
	if n.err != nil {
		return n.err
	}
	n.messages = append(n.messages, msg)
	return nil
}

func (n *recordingNotifier) kinds() []notifications.Kind {
	out := make([]notifications.Kind, 0, len(n.messages))
	for _, msg := range n.messages {
		out = append(out, msg.Kind)
	}
	return out
}

type checkoutFixture struct {
	registry *memory.Registry
	notifier *recordingNotifier
	service  CheckoutService
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()
	registry := memory.NewRegistry()
	notifier := &recordingNotifier{}
	seq := 0
	service, err := NewCheckoutService(CheckoutServiceDeps{
		Carts:    registry.Carts(),
		Catalog:  registry.Catalog(),
		Orders:   registry.Orders(),
		Counters: registry.Counters(),
		Notifier: notifier,
		Shipping: ShippingRules{
			AllowedPincodes: []string{"560001", "560002"},
		},
		Currency:      "INR",
		NumberPrefix:  "DM",
		OperatorEmail: "ops@example.com",
		Clock:         func() time.Time { return fixedNow },
		IDGen: func() string {
			seq++
			return fmt.Sprintf("ord_%04d", seq)
		},
	})
	if err != nil {
		t.Fatalf("NewCheckoutService: %v", err)
	}
	return &checkoutFixture{registry: registry, notifier: notifier, service: service}
}

func (f *checkoutFixture) seedProduct(t *testing.T, id string, price int64, stock int) domain.Product {
	t.Helper()
	product := domain.Product{
		ID:       id,
		Slug:     id,
		Name:     "Product " + id,
		Price:    price,
		Currency: "INR",
		Stock:    stock,
		Active:   true,
	}
	if err := f.registry.Catalog().UpsertProduct(context.Background(), product); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}

func (f *checkoutFixture) addCartLine(t *testing.T, userID, productID string, quantity int) {
	t.Helper()
	_, err := f.registry.Carts().UpsertLine(context.Background(), userID, domain.CartLine{
		ID:        "crt_" + productID,
		ProductID: productID,
		Quantity:  quantity,
		AddedAt:   fixedNow,
	})
	if err != nil {
		t.Fatalf("seed cart line: %v", err)
	}
}

func validShipping() domain.ShippingInfo {
	return domain.ShippingInfo{
		FullName:   "Asha Rao",
		Address:    "12 MG Road",
		City:       "Bengaluru",
		PostalCode: "560001",
		Phone:      "9876543210",
	}
}

func TestResolveCheckoutValidatesShipping(t *testing.T) {
	fixture := newCheckoutFixture(t)
	fixture.seedProduct(t, "p1", 19900, 5)
	fixture.addCartLine(t, "user-1", "p1", 1)

	cases := []struct {
		name    string
		mutate  func(*domain.ShippingInfo)
		wantErr error
	}{
		{"missing name", func(s *domain.ShippingInfo) { s.FullName = " " }, ErrCheckoutInvalidShipping},
		{"missing address", func(s *domain.ShippingInfo) { s.Address = "" }, ErrCheckoutInvalidShipping},
		{"unserviceable pincode", func(s *domain.ShippingInfo) { s.PostalCode = "110001" }, ErrCheckoutInvalidShipping},
		{"phone too short", func(s *domain.ShippingInfo) { s.Phone = "98765" }, ErrCheckoutInvalidShipping},
		{"phone bad leading digit", func(s *domain.ShippingInfo) { s.Phone = "1876543210" }, ErrCheckoutInvalidShipping},
		{"phone with letters", func(s *domain.ShippingInfo) { s.Phone = "98765abcde" }, ErrCheckoutInvalidShipping},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			shipping := validShipping()
			tc.mutate(&shipping)
			_, err := fixture.service.ResolveCheckout(context.Background(), ResolveCheckoutCommand{
				UserID:   "user-1",
				Shipping: shipping,
			})
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestResolveCheckoutEmptyCart(t *testing.T) {
	fixture := newCheckoutFixture(t)

	_, err := fixture.service.ResolveCheckout(context.Background(), ResolveCheckoutCommand{
		UserID:   "user-1",
		Shipping: validShipping(),
	})
	if !errors.Is(err, ErrCheckoutEmpty) {
		t.Fatalf("expected ErrCheckoutEmpty, got %v", err)
	}
}

func TestResolveCheckoutInsufficientStock(t *testing.T) {
	fixture := newCheckoutFixture(t)
	fixture.seedProduct(t, "p1", 19900, 1)
	fixture.addCartLine(t, "user-1", "p1", 3)

	_, err := fixture.service.ResolveCheckout(context.Background(), ResolveCheckoutCommand{
		UserID:   "user-1",
		Shipping: validShipping(),
	})
	if !errors.Is(err, ErrCheckoutInsufficientStock) {
		t.Fatalf("expected ErrCheckoutInsufficientStock, got %v", err)
	}
}

func TestResolveCheckoutBuyNowTakesPrecedence(t *testing.T) {
	fixture := newCheckoutFixture(t)
	fixture.seedProduct(t, "p-cart", 10000, 10)
	fixture.seedProduct(t, "p-now", 25000, 10)
	fixture.addCartLine(t, "user-1", "p-cart", 2)

	if _, err := fixture.service.SetBuyNow(context.Background(), BuyNowCommand{
		UserID:    "user-1",
		ProductID: "p-now",
	}); err != nil {
		t.Fatalf("SetBuyNow: %v", err)
	}

	intent, err := fixture.service.ResolveCheckout(context.Background(), ResolveCheckoutCommand{
		UserID:   "user-1",
		Shipping: validShipping(),
	})
	if err != nil {
		t.Fatalf("ResolveCheckout: %v", err)
	}
	if intent.Source != domain.CheckoutSourceBuyNow {
		t.Fatalf("expected buy_now source, got %s", intent.Source)
	}
	if len(intent.Lines) != 1 || intent.Lines[0].ProductID != "p-now" {
		t.Fatalf("expected single buy-now line, got %+v", intent.Lines)
	}
	if intent.Lines[0].Quantity != 1 {
		t.Fatalf("buy-now quantity must be 1, got %d", intent.Lines[0].Quantity)
	}
	if intent.Total != 25000 {
		t.Fatalf("expected total 25000, got %d", intent.Total)
	}
}

func TestCommitCashOrderCreatesCODOrder(t *testing.T) {
	fixture := newCheckoutFixture(t)
	fixture.seedProduct(t, "p1", 19900, 5)
	fixture.addCartLine(t, "user-1", "p1", 2)

	ctx := context.Background()
	if _, err := fixture.service.ResolveCheckout(ctx, ResolveCheckoutCommand{
		UserID:   "user-1",
		Shipping: validShipping(),
	}); err != nil {
		t.Fatalf("ResolveCheckout: %v", err)
	}

	order, err := fixture.service.CommitCashOrder(ctx, CommitCashOrderCommand{UserID: "user-1"})
	if err != nil {
		t.Fatalf("CommitCashOrder: %v", err)
	}
	if order.Status != domain.OrderStatusPendingPickup {
		t.Fatalf("expected pending_pickup, got %s", order.Status)
	}
	if order.Paid || order.PaymentMethod != domain.PaymentMethodCOD {
		t.Fatalf("expected unpaid COD order, got paid=%t method=%s", order.Paid, order.PaymentMethod)
	}
	if order.Number != "DM-000001" {
		t.Fatalf("expected number DM-000001, got %s", order.Number)
	}
	if order.Total != 39800 {
		t.Fatalf("expected total 39800, got %d", order.Total)
	}

	product, err := fixture.registry.Catalog().GetProduct(ctx, "p1")
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if product.Stock != 3 {
		t.Fatalf("expected stock 3 after reserve, got %d", product.Stock)
	}

	cart, err := fixture.registry.Carts().Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("Get cart: %v", err)
	}
	if len(cart.Lines) != 0 || cart.Checkout != nil {
		t.Fatalf("expected cleared cart, got %+v", cart)
	}

	kinds := fixture.notifier.kinds()
	if len(kinds) != 2 || kinds[0] != notifications.KindOrderConfirmed || kinds[1] != notifications.KindOperatorAlert {
		t.Fatalf("unexpected notification kinds %v", kinds)
	}
}

func TestCommitCashOrderRequiresResolvedCheckout(t *testing.T) {
	fixture := newCheckoutFixture(t)
	fixture.seedProduct(t, "p1", 19900, 5)
	fixture.addCartLine(t, "user-1", "p1", 1)

	_, err := fixture.service.CommitCashOrder(context.Background(), CommitCashOrderCommand{UserID: "user-1"})
	if !errors.Is(err, ErrCheckoutEmpty) {
		t.Fatalf("expected ErrCheckoutEmpty, got %v", err)
	}
}

func TestOrderLinePriceSurvivesCatalogEdit(t *testing.T) {
	fixture := newCheckoutFixture(t)
	product := fixture.seedProduct(t, "p1", 19900, 5)
	fixture.addCartLine(t, "user-1", "p1", 1)

	ctx := context.Background()
	if _, err := fixture.service.ResolveCheckout(ctx, ResolveCheckoutCommand{
		UserID:   "user-1",
		Shipping: validShipping(),
	}); err != nil {
		t.Fatalf("ResolveCheckout: %v", err)
	}

	// A price change between resolution and commit must not leak into the order.
	product.Price = 29900
	if err := fixture.registry.Catalog().UpsertProduct(ctx, product); err != nil {
		t.Fatalf("UpsertProduct: %v", err)
	}

	order, err := fixture.service.CommitCashOrder(ctx, CommitCashOrderCommand{UserID: "user-1"})
	if err != nil {
		t.Fatalf("CommitCashOrder: %v", err)
	}
	if order.Lines[0].UnitPrice != 19900 || order.Total != 19900 {
		t.Fatalf("expected snapshot price 19900, got unit=%d total=%d", order.Lines[0].UnitPrice, order.Total)
	}
}

func TestNotifierFailureDoesNotFailCommit(t *testing.T) {
	fixture := newCheckoutFixture(t)
	fixture.notifier.err = errors.New("broker down")
	fixture.seedProduct(t, "p1", 19900, 5)
	fixture.addCartLine(t, "user-1", "p1", 1)

	ctx := context.Background()
	if _, err := fixture.service.ResolveCheckout(ctx, ResolveCheckoutCommand{
		UserID:   "user-1",
		Shipping: validShipping(),
	}); err != nil {
		t.Fatalf("ResolveCheckout: %v", err)
	}
	if _, err := fixture.service.CommitCashOrder(ctx, CommitCashOrderCommand{UserID: "user-1"}); err != nil {
		t.Fatalf("CommitCashOrder should succeed despite notifier failure: %v", err)
	}
}
