package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/devki-mart/api/internal/domain"
	"github.com/devki-mart/api/internal/repositories"
)

func seedProduct(t *testing.T, reg *Registry, id string, stock int) {
	t.Helper()
	err := reg.Catalog().UpsertProduct(context.Background(), domain.Product{
		ID:       id,
		Slug:     id,
		Name:     "Product " + id,
		Price:    19900,
		Currency: "INR",
		Stock:    stock,
		Active:   true,
	})
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
}

func testOrder(id, userID, productID string, qty int) domain.Order {
	return domain.Order{
		ID:     id,
		Number: "DM-" + id,
		UserID: userID,
		Lines: []domain.OrderLine{{
			ProductID: productID,
			Name:      "Product " + productID,
			Quantity:  qty,
			UnitPrice: 19900,
			Total:     19900 * int64(qty),
		}},
		PaymentMethod: domain.PaymentMethodCOD,
		Status:        domain.OrderStatusPendingPickup,
		Total:         19900 * int64(qty),
		Currency:      "INR",
	}
}

func TestOrderCreateReservesStock(t *testing.T) {
	reg := NewRegistry()
	seedProduct(t, reg, "prod-1", 5)

	result, err := reg.Orders().Create(context.Background(), repositories.OrderCreateRequest{
		Order: testOrder("ord-1", "user-1", "prod-1", 2),

		ReserveStock: true,
		Now:          time.Now(),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if result.Existing {
		t.Fatalf("expected new order")
	}

	product, err := reg.Catalog().GetProduct(context.Background(), "prod-1")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Stock != 3 {
		t.Fatalf("expected stock 3 after reserve, got %d", product.Stock)
	}
}

func TestOrderCreateInsufficientStock(t *testing.T) {
	reg := NewRegistry()
	seedProduct(t, reg, "prod-1", 1)

	_, err := reg.Orders().Create(context.Background(), repositories.OrderCreateRequest{
		Order:        testOrder("ord-1", "user-1", "prod-1", 2),
		ReserveStock: true,
		Now:          time.Now(),
	})
	var invErr *repositories.InventoryError
	if !errors.As(err, &invErr) {
		t.Fatalf("expected inventory error, got %v", err)
	}
	if invErr.Code != repositories.InventoryErrorInsufficientStock {
		t.Fatalf("expected insufficient stock code, got %s", invErr.Code)
	}

	product, _ := reg.Catalog().GetProduct(context.Background(), "prod-1")
	if product.Stock != 1 {
		t.Fatalf("stock must be untouched after failed create, got %d", product.Stock)
	}
}

func TestOrderCreateMultiLineShortfallDecrementsNothing(t *testing.T) {
	reg := NewRegistry()
	seedProduct(t, reg, "prod-a", 5)
	seedProduct(t, reg, "prod-b", 0)

	order := testOrder("ord-1", "user-1", "prod-a", 2)
	order.Lines[0].SKU = "prod-a"
	order.Lines = append(order.Lines, domain.OrderLine{
		ProductID: "prod-b",
		SKU:       "prod-b",
		Name:      "Product prod-b",
		Quantity:  1,
		UnitPrice: 19900,
		Total:     19900,
	})
	order.Total = 19900 * 3

	_, err := reg.Orders().Create(context.Background(), repositories.OrderCreateRequest{
		Order:        order,
		ReserveStock: true,
		Now:          time.Now(),
	})
	var invErr *repositories.InventoryError
	if !errors.As(err, &invErr) {
		t.Fatalf("expected inventory error, got %v", err)
	}
	if invErr.Code != repositories.InventoryErrorInsufficientStock {
		t.Fatalf("expected insufficient stock code, got %s", invErr.Code)
	}
	if invErr.SKU != "prod-b" {
		t.Fatalf("expected shortfall on prod-b, got %s", invErr.SKU)
	}

	productA, _ := reg.Catalog().GetProduct(context.Background(), "prod-a")
	if productA.Stock != 5 {
		t.Fatalf("covered line must not be decremented when a later line fails, got %d", productA.Stock)
	}
	productB, _ := reg.Catalog().GetProduct(context.Background(), "prod-b")
	if productB.Stock != 0 {
		t.Fatalf("failing line stock must be untouched, got %d", productB.Stock)
	}
}

func TestOrderCreateProviderOrderIDIsIdempotent(t *testing.T) {
	reg := NewRegistry()
	seedProduct(t, reg, "prod-1", 5)

	providerOrderID := "order_razorpay_123"
	first := testOrder("ord-1", "user-1", "prod-1", 1)
	first.ProviderOrderID = &providerOrderID

	created, err := reg.Orders().Create(context.Background(), repositories.OrderCreateRequest{
		Order:        first,
		ReserveStock: true,
		Now:          time.Now(),
	})
	if err != nil {
		t.Fatalf("first create: %v", err)
	}

	replay := testOrder("ord-2", "user-1", "prod-1", 1)
	replay.ProviderOrderID = &providerOrderID
	second, err := reg.Orders().Create(context.Background(), repositories.OrderCreateRequest{
		Order:        replay,
		ReserveStock: true,
		Now:          time.Now(),
	})
	if err != nil {
		t.Fatalf("replayed create: %v", err)
	}
	if !second.Existing {
		t.Fatalf("expected replay to surface the existing order")
	}
	if second.Order.ID != created.Order.ID {
		t.Fatalf("expected order %s, got %s", created.Order.ID, second.Order.ID)
	}

	product, _ := reg.Catalog().GetProduct(context.Background(), "prod-1")
	if product.Stock != 4 {
		t.Fatalf("stock must be decremented exactly once, got %d", product.Stock)
	}
}

func TestOrderCreateClearsCartAndBuyNow(t *testing.T) {
	reg := NewRegistry()
	seedProduct(t, reg, "prod-1", 5)

	if _, err := reg.Carts().UpsertLine(context.Background(), "user-1", domain.CartLine{ID: "line-1", ProductID: "prod-1", Quantity: 1}); err != nil {
		t.Fatalf("seed cart: %v", err)
	}
	if _, err := reg.Carts().SetBuyNow(context.Background(), "user-1", &domain.BuyNowSelection{ProductID: "prod-1"}); err != nil {
		t.Fatalf("seed buy now: %v", err)
	}

	_, err := reg.Orders().Create(context.Background(), repositories.OrderCreateRequest{
		Order:        testOrder("ord-1", "user-1", "prod-1", 1),
		ReserveStock: true,
		ClearCart:    true,
		ClearBuyNow:  true,
		Now:          time.Now(),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	cart, err := reg.Carts().Get(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if len(cart.Lines) != 0 {
		t.Fatalf("expected cleared cart lines, got %d", len(cart.Lines))
	}
	if cart.BuyNow != nil {
		t.Fatalf("expected cleared buy-now selection")
	}
}

func TestConcurrentCreatesNeverOversell(t *testing.T) {
	reg := NewRegistry()
	seedProduct(t, reg, "prod-1", 1)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		i := i
		go func() {
			defer wg.Done()
			_, errs[i] = reg.Orders().Create(context.Background(), repositories.OrderCreateRequest{
				Order:        testOrder(orderID(i), "user-1", "prod-1", 1),
				ReserveStock: true,
				Now:          time.Now(),
			})
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var invErr *repositories.InventoryError
		if !errors.As(err, &invErr) || invErr.Code != repositories.InventoryErrorInsufficientStock {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one create to win, got %d", succeeded)
	}

	product, _ := reg.Catalog().GetProduct(context.Background(), "prod-1")
	if product.Stock != 0 {
		t.Fatalf("expected stock 0, got %d", product.Stock)
	}
}

func TestUpdateStatusEnforcesTransitions(t *testing.T) {
	reg := NewRegistry()
	seedProduct(t, reg, "prod-1", 5)
	if _, err := reg.Orders().Create(context.Background(), repositories.OrderCreateRequest{
		Order:        testOrder("ord-1", "user-1", "prod-1", 1),
		ReserveStock: true,
		Now:          time.Now(),
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := reg.Orders().UpdateStatus(context.Background(), repositories.OrderStatusUpdate{
		OrderID: "ord-1",
		Status:  domain.OrderStatusDelivered,
		Now:     time.Now(),
	}); !repositories.IsConflict(err) {
		t.Fatalf("expected conflict skipping out_for_delivery, got %v", err)
	}

	order, err := reg.Orders().UpdateStatus(context.Background(), repositories.OrderStatusUpdate{
		OrderID: "ord-1",
		Status:  domain.OrderStatusOutForDelivery,
		Now:     time.Now(),
	})
	if err != nil {
		t.Fatalf("out for delivery: %v", err)
	}
	if order.OutForDeliveryAt == nil {
		t.Fatalf("expected out-for-delivery timestamp")
	}

	order, err = reg.Orders().UpdateStatus(context.Background(), repositories.OrderStatusUpdate{
		OrderID: "ord-1",
		Status:  domain.OrderStatusDelivered,
		Now:     time.Now(),
	})
	if err != nil {
		t.Fatalf("delivered: %v", err)
	}
	if !order.Terminal() {
		t.Fatalf("delivered order must be terminal")
	}
}

func TestCancelRestocksLines(t *testing.T) {
	reg := NewRegistry()
	seedProduct(t, reg, "prod-1", 5)
	if _, err := reg.Orders().Create(context.Background(), repositories.OrderCreateRequest{
		Order:        testOrder("ord-1", "user-1", "prod-1", 2),
		ReserveStock: true,
		Now:          time.Now(),
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	refundID := "rfnd_1"
	order, err := reg.Orders().UpdateStatus(context.Background(), repositories.OrderStatusUpdate{
		OrderID:      "ord-1",
		Status:       domain.OrderStatusCancelled,
		RefundID:     &refundID,
		RestockLines: true,
		Now:          time.Now(),
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if order.ProviderRefundID == nil || *order.ProviderRefundID != refundID {
		t.Fatalf("expected refund id recorded")
	}

	product, _ := reg.Catalog().GetProduct(context.Background(), "prod-1")
	if product.Stock != 5 {
		t.Fatalf("expected restocked quantity 5, got %d", product.Stock)
	}
}

func orderID(i int) string {
	return "ord-" + string(rune('a'+i))
}
