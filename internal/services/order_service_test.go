package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/devki-mart/api/internal/domain"
	"github.com/devki-mart/api/internal/payments"
	"github.com/devki-mart/api/internal/platform/auth"
	"github.com/devki-mart/api/internal/repositories"
	"github.com/devki-mart/api/internal/repositories/memory"
)

type stubRefunds struct {
	refundFunc func(ctx context.Context, providerKey string, req payments.RefundRequest) (payments.RefundResult, error)
	calls      int
}

func (g *stubRefunds) Refund(ctx context.Context, providerKey string, req payments.RefundRequest) (payments.RefundResult, error) {
	g.calls++
	if g.refundFunc != nil {
		return g.refundFunc(ctx, providerKey, req)
	}
	return payments.RefundResult{ID: "rfnd_1", PaymentID: req.PaymentID}, nil
}

type orderFixture struct {
	registry *memory.Registry
	refunds  *stubRefunds
	notifier *recordingNotifier
	service  OrderService
}

func newOrderFixture(t *testing.T) *orderFixture {
	t.Helper()
	registry := memory.NewRegistry()
	refunds := &stubRefunds{}
	notifier := &recordingNotifier{}
	service, err := NewOrderService(OrderServiceDeps{
		Orders:        registry.Orders(),
		Agents:        registry.Agents(),
		Gateway:       refunds,
		Notifier:      notifier,
		OperatorEmail: "ops@example.com",
		Clock:         func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	return &orderFixture{registry: registry, refunds: refunds, notifier: notifier, service: service}
}

func (f *orderFixture) seedAgent(t *testing.T, id string, active bool) {
	t.Helper()
	err := f.registry.Agents().Upsert(context.Background(), domain.DeliveryAgent{
		ID:     id,
		Name:   "Agent " + id,
		Active: active,
	})
	if err != nil {
		t.Fatalf("seed agent: %v", err)
	}
}

type seedOrderOpts struct {
	id        string
	userID    string
	status    domain.OrderStatus
	method    domain.PaymentMethod
	paid      bool
	paymentID string
	agentID   string
	stock     int
	quantity  int
}

// seedOrder creates a product with stock and an order reserving part of it.
func (f *orderFixture) seedOrder(t *testing.T, opts seedOrderOpts) domain.Order {
	t.Helper()
	ctx := context.Background()
	if opts.method == "" {
		opts.method = domain.PaymentMethodCOD
	}
	if opts.quantity == 0 {
		opts.quantity = 1
	}
	if opts.stock == 0 {
		opts.stock = 5
	}
	productID := "p-" + opts.id
	if err := f.registry.Catalog().UpsertProduct(ctx, domain.Product{
		ID:       productID,
		Slug:     productID,
		Name:     "Product " + productID,
		Price:    10000,
		Currency: "INR",
		Stock:    opts.stock,
		Active:   true,
	}); err != nil {
		t.Fatalf("seed product: %v", err)
	}

	order := domain.Order{
		ID:     opts.id,
		Number: "DM-" + opts.id,
		UserID: opts.userID,
		Lines: []domain.OrderLine{{
			ProductID: productID,
			Name:      "Product " + productID,
			Quantity:  opts.quantity,
			UnitPrice: 10000,
			Total:     10000 * int64(opts.quantity),
		}},
		PaymentMethod: opts.method,
		Paid:          opts.paid,
		Status:        domain.OrderStatusPendingPickup,
		Total:         10000 * int64(opts.quantity),
		Currency:      "INR",
	}
	if opts.paymentID != "" {
		paymentID := opts.paymentID
		order.ProviderPaymentID = &paymentID
	}
	if opts.agentID != "" {
		agentID := opts.agentID
		order.AssignedAgentID = &agentID
	}

	result, err := f.registry.Orders().Create(ctx, repositories.OrderCreateRequest{
		Order:        order,
		ReserveStock: true,
		Now:          fixedNow,
	})
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}
	created := result.Order

	if opts.status != "" && opts.status != domain.OrderStatusPendingPickup {
		created, err = f.registry.Orders().UpdateStatus(ctx, repositories.OrderStatusUpdate{
			OrderID: order.ID,
			Status:  opts.status,
			Now:     fixedNow,
		})
		if err != nil {
			t.Fatalf("seed order status: %v", err)
		}
	}
	return created
}

func (f *orderFixture) stock(t *testing.T, orderID string) int {
	t.Helper()
	product, err := f.registry.Catalog().GetProduct(context.Background(), "p-"+orderID)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	return product.Stock
}

func customer(id string) Actor { return Actor{ID: id} }
func agent(id string) Actor    { return Actor{ID: id, Roles: []string{auth.RoleAgent}} }
func admin(id string) Actor    { return Actor{ID: id, Roles: []string{auth.RoleAdmin}} }

func TestCancelPendingCODOrderRestocks(t *testing.T) {
	fixture := newOrderFixture(t)
	fixture.seedOrder(t, seedOrderOpts{id: "o1", userID: "user-1", stock: 5, quantity: 2})
	if got := fixture.stock(t, "o1"); got != 3 {
		t.Fatalf("expected stock 3 after reserve, got %d", got)
	}

	order, err := fixture.service.Cancel(context.Background(), CancelOrderCommand{
		Actor:   customer("user-1"),
		OrderID: "o1",
	})
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if order.Status != domain.OrderStatusCancelled || order.CancelledAt == nil {
		t.Fatalf("expected cancelled order, got %+v", order)
	}
	if fixture.refunds.calls != 0 {
		t.Fatalf("unpaid COD cancel must not touch the gateway, got %d calls", fixture.refunds.calls)
	}
	if got := fixture.stock(t, "o1"); got != 5 {
		t.Fatalf("expected stock restored to 5, got %d", got)
	}
}

func TestCancelRefundsOnlinePayment(t *testing.T) {
	fixture := newOrderFixture(t)
	fixture.seedOrder(t, seedOrderOpts{
		id:        "o1",
		userID:    "user-1",
		method:    domain.PaymentMethodRazorpay,
		paid:      true,
		paymentID: "pay_1",
	})

	order, err := fixture.service.Cancel(context.Background(), CancelOrderCommand{
		Actor:   customer("user-1"),
		OrderID: "o1",
		Reason:  "changed my mind",
	})
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if fixture.refunds.calls != 1 {
		t.Fatalf("expected one refund call, got %d", fixture.refunds.calls)
	}
	if order.ProviderRefundID == nil || *order.ProviderRefundID != "rfnd_1" {
		t.Fatalf("expected refund id recorded, got %v", order.ProviderRefundID)
	}
}

func TestCancelAbortsWhenRefundFails(t *testing.T) {
	fixture := newOrderFixture(t)
	fixture.seedOrder(t, seedOrderOpts{
		id:        "o1",
		userID:    "user-1",
		method:    domain.PaymentMethodRazorpay,
		paid:      true,
		paymentID: "pay_1",
		stock:     5,
		quantity:  2,
	})
	fixture.refunds.refundFunc = func(ctx context.Context, providerKey string, req payments.RefundRequest) (payments.RefundResult, error) {
		return payments.RefundResult{}, errors.New("gateway timeout")
	}

	ctx := context.Background()
	_, err := fixture.service.Cancel(ctx, CancelOrderCommand{
		Actor:   customer("user-1"),
		OrderID: "o1",
	})
	if !errors.Is(err, ErrRefundFailed) {
		t.Fatalf("expected ErrRefundFailed, got %v", err)
	}

	order, err := fixture.registry.Orders().FindByID(ctx, "o1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if order.Status != domain.OrderStatusPendingPickup {
		t.Fatalf("failed refund must leave the order untouched, got %s", order.Status)
	}
	if got := fixture.stock(t, "o1"); got != 3 {
		t.Fatalf("failed refund must not restock, got %d", got)
	}
}

func TestCancelRejectsOutForDelivery(t *testing.T) {
	fixture := newOrderFixture(t)
	fixture.seedOrder(t, seedOrderOpts{id: "o1", userID: "user-1", status: domain.OrderStatusOutForDelivery})

	_, err := fixture.service.Cancel(context.Background(), CancelOrderCommand{
		Actor:   customer("user-1"),
		OrderID: "o1",
	})
	if !errors.Is(err, ErrOrderNotCancellable) {
		t.Fatalf("expected ErrOrderNotCancellable, got %v", err)
	}
}

func TestCancelForbiddenForOtherUsers(t *testing.T) {
	fixture := newOrderFixture(t)
	fixture.seedOrder(t, seedOrderOpts{id: "o1", userID: "user-1"})

	_, err := fixture.service.Cancel(context.Background(), CancelOrderCommand{
		Actor:   customer("user-2"),
		OrderID: "o1",
	})
	if !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected ErrOrderForbidden, got %v", err)
	}
}

func TestGetOrderHidesOtherUsersOrders(t *testing.T) {
	fixture := newOrderFixture(t)
	fixture.seedOrder(t, seedOrderOpts{id: "o1", userID: "user-1"})

	_, err := fixture.service.GetOrder(context.Background(), GetOrderCommand{
		Actor:   customer("user-2"),
		OrderID: "o1",
	})
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}

	order, err := fixture.service.GetOrder(context.Background(), GetOrderCommand{
		Actor:   admin("admin-1"),
		OrderID: "o1",
	})
	if err != nil || order.ID != "o1" {
		t.Fatalf("admin should see any order, got %v %v", order.ID, err)
	}
}

func TestTransitionStatusByAssignedAgent(t *testing.T) {
	fixture := newOrderFixture(t)
	fixture.seedAgent(t, "agent-1", true)
	fixture.seedAgent(t, "agent-2", true)
	fixture.seedOrder(t, seedOrderOpts{id: "o1", userID: "user-1", agentID: "agent-1"})

	ctx := context.Background()
	_, err := fixture.service.TransitionStatus(ctx, TransitionStatusCommand{
		Actor:        agent("agent-2"),
		OrderID:      "o1",
		TargetStatus: domain.OrderStatusOutForDelivery,
	})
	if !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected ErrOrderForbidden for unassigned agent, got %v", err)
	}

	order, err := fixture.service.TransitionStatus(ctx, TransitionStatusCommand{
		Actor:        agent("agent-1"),
		OrderID:      "o1",
		TargetStatus: domain.OrderStatusOutForDelivery,
	})
	if err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}
	if order.Status != domain.OrderStatusOutForDelivery || order.OutForDeliveryAt == nil {
		t.Fatalf("expected out_for_delivery with timestamp, got %+v", order)
	}

	kinds := fixture.notifier.kinds()
	if len(kinds) != 1 || kinds[0] != "order_status_changed" {
		t.Fatalf("expected status change notification, got %v", kinds)
	}
}

func TestTransitionStatusRejectsSkippedStates(t *testing.T) {
	fixture := newOrderFixture(t)
	fixture.seedOrder(t, seedOrderOpts{id: "o1", userID: "user-1"})

	_, err := fixture.service.TransitionStatus(context.Background(), TransitionStatusCommand{
		Actor:        admin("admin-1"),
		OrderID:      "o1",
		TargetStatus: domain.OrderStatusDelivered,
	})
	if !errors.Is(err, ErrOrderInvalidTransition) {
		t.Fatalf("expected ErrOrderInvalidTransition, got %v", err)
	}
}

func TestTransitionStatusRejectsCancelTarget(t *testing.T) {
	fixture := newOrderFixture(t)
	fixture.seedOrder(t, seedOrderOpts{id: "o1", userID: "user-1"})

	_, err := fixture.service.TransitionStatus(context.Background(), TransitionStatusCommand{
		Actor:        admin("admin-1"),
		OrderID:      "o1",
		TargetStatus: domain.OrderStatusCancelled,
	})
	if !errors.Is(err, ErrOrderInvalidTransition) {
		t.Fatalf("expected ErrOrderInvalidTransition, got %v", err)
	}
}

func TestMarkPaidIsIdempotent(t *testing.T) {
	fixture := newOrderFixture(t)
	fixture.seedOrder(t, seedOrderOpts{id: "o1", userID: "user-1"})

	ctx := context.Background()
	first, err := fixture.service.MarkPaid(ctx, MarkPaidCommand{
		Actor:   admin("admin-1"),
		OrderID: "o1",
	})
	if err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	if !first.Paid || first.PaidAt == nil {
		t.Fatalf("expected paid order, got %+v", first)
	}

	second, err := fixture.service.MarkPaid(ctx, MarkPaidCommand{
		Actor:   admin("admin-1"),
		OrderID: "o1",
	})
	if err != nil {
		t.Fatalf("second MarkPaid: %v", err)
	}
	if !second.Paid {
		t.Fatalf("expected order to stay paid")
	}

	kinds := fixture.notifier.kinds()
	if len(kinds) != 1 || kinds[0] != "payment_received" {
		t.Fatalf("expected one payment notification, got %v", kinds)
	}
}

func TestAgentQueueSoleAgentSeesEverything(t *testing.T) {
	fixture := newOrderFixture(t)
	fixture.seedAgent(t, "agent-1", true)
	fixture.seedOrder(t, seedOrderOpts{id: "o1", userID: "user-1"})
	fixture.seedOrder(t, seedOrderOpts{id: "o2", userID: "user-2", agentID: "agent-1"})

	page, err := fixture.service.AgentQueue(context.Background(), AgentQueueCommand{
		Actor: agent("agent-1"),
	})
	if err != nil {
		t.Fatalf("AgentQueue: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("sole agent should see all orders, got %d", len(page.Items))
	}
}

func TestAgentQueueScopedWhenMultipleAgents(t *testing.T) {
	fixture := newOrderFixture(t)
	fixture.seedAgent(t, "agent-1", true)
	fixture.seedAgent(t, "agent-2", true)
	fixture.seedOrder(t, seedOrderOpts{id: "o1", userID: "user-1"})
	fixture.seedOrder(t, seedOrderOpts{id: "o2", userID: "user-2", agentID: "agent-1"})

	page, err := fixture.service.AgentQueue(context.Background(), AgentQueueCommand{
		Actor: agent("agent-1"),
	})
	if err != nil {
		t.Fatalf("AgentQueue: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "o2" {
		t.Fatalf("expected only the assigned order, got %+v", page.Items)
	}

	adminPage, err := fixture.service.AgentQueue(context.Background(), AgentQueueCommand{
		Actor: admin("admin-1"),
	})
	if err != nil {
		t.Fatalf("admin AgentQueue: %v", err)
	}
	if len(adminPage.Items) != 2 {
		t.Fatalf("admin should see all orders, got %d", len(adminPage.Items))
	}
}

func TestAgentQueueForbiddenForCustomers(t *testing.T) {
	fixture := newOrderFixture(t)

	_, err := fixture.service.AgentQueue(context.Background(), AgentQueueCommand{
		Actor: customer("user-1"),
	})
	if !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected ErrOrderForbidden, got %v", err)
	}
}
