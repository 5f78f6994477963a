package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/devki-mart/api/internal/domain"
	"github.com/devki-mart/api/internal/notifications"
	"github.com/devki-mart/api/internal/payments"
	"github.com/devki-mart/api/internal/repositories"
)

// refundGateway abstracts the refund slice of payments.Manager for testing.
type refundGateway interface {
	Refund(ctx context.Context, providerKey string, req payments.RefundRequest) (payments.RefundResult, error)
}

// OrderServiceDeps wires the dependencies required by the order service.
type OrderServiceDeps struct {
	Orders        repositories.OrderRepository
	Agents        repositories.AgentRepository
	Gateway       refundGateway
	Notifier      notifications.Notifier
	OperatorEmail string
	Clock         func() time.Time
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders        repositories.OrderRepository
	agents        repositories.AgentRepository
	gateway       refundGateway
	notifier      notifications.Notifier
	operatorEmail string
	now           func() time.Time
	logger        func(ctx context.Context, event string, fields map[string]any)
}

// NewOrderService constructs an OrderService validating required dependencies.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Agents == nil {
		return nil, errors.New("order service: agent repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:        deps.Orders,
		agents:        deps.Agents,
		gateway:       deps.Gateway,
		notifier:      deps.Notifier,
		operatorEmail: strings.TrimSpace(deps.OperatorEmail),
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// ListOrders pages the caller's own order history.
func (s *orderService) ListOrders(ctx context.Context, cmd ListOrdersCommand) (domain.CursorPage[Order], error) {
	uid := strings.TrimSpace(cmd.Actor.ID)
	if uid == "" {
		return domain.CursorPage[Order]{}, ErrOrderForbidden
	}
	page, err := s.orders.ListByUser(ctx, uid, repositories.OrderListFilter{
		Statuses:   cmd.Statuses,
		Pagination: cmd.Pagination,
	})
	if err != nil {
		return domain.CursorPage[Order]{}, translateOrderError(err)
	}
	return page, nil
}

// GetOrder loads one order, visible to its owner, its assigned agent and
// admins. Anyone else sees not-found rather than a hint the order exists.
func (s *orderService) GetOrder(ctx context.Context, cmd GetOrderCommand) (Order, error) {
	order, err := s.orders.FindByID(ctx, strings.TrimSpace(cmd.OrderID))
	if err != nil {
		return Order{}, translateOrderError(err)
	}
	if !s.canView(cmd.Actor, order) {
		return Order{}, ErrOrderNotFound
	}
	return order, nil
}

// Cancel aborts a pending order, refunding first when money already moved.
// A failed refund aborts the cancellation and mutates nothing.
func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	order, err := s.orders.FindByID(ctx, strings.TrimSpace(cmd.OrderID))
	if err != nil {
		return Order{}, translateOrderError(err)
	}
	if order.UserID != cmd.Actor.ID && !cmd.Actor.IsAdmin() {
		return Order{}, ErrOrderForbidden
	}
	if order.Status != domain.OrderStatusPendingPickup {
		return Order{}, ErrOrderNotCancellable
	}

	var refundID *string
	refunded := false
	if order.Paid && order.PaymentMethod != domain.PaymentMethodCOD {
		if s.gateway == nil || order.ProviderPaymentID == nil {
			return Order{}, ErrRefundFailed
		}
		result, err := s.gateway.Refund(ctx, string(order.PaymentMethod), payments.RefundRequest{
			PaymentID: *order.ProviderPaymentID,
			Reason:    strings.TrimSpace(cmd.Reason),
			Notes:     map[string]string{"orderNumber": order.Number},
		})
		if err != nil {
			s.logger(ctx, "orders.refund_failed", map[string]any{
				"order_id": order.ID,
				"error":    err.Error(),
			})
			return Order{}, fmt.Errorf("%w: %v", ErrRefundFailed, err)
		}
		refundID = &result.ID
		refunded = true
	}

	cancelled, err := s.orders.UpdateStatus(ctx, repositories.OrderStatusUpdate{
		OrderID:      order.ID,
		Status:       domain.OrderStatusCancelled,
		RefundID:     refundID,
		RestockLines: true,
		Now:          s.now(),
	})
	if err != nil {
		if repositories.IsConflict(err) {
			return Order{}, ErrOrderNotCancellable
		}
		return Order{}, translateOrderError(err)
	}

	s.logger(ctx, "orders.cancelled", map[string]any{
		"order_id": cancelled.ID,
		"refunded": refunded,
		"actor_id": cmd.Actor.ID,
	})
	s.notify(ctx, notifications.Message{
		Kind:        notifications.KindOrderCancelled,
		Recipient:   cancelled.UserID,
		OrderID:     cancelled.ID,
		OrderNumber: cancelled.Number,
		Subject:     fmt.Sprintf("Order %s cancelled", cancelled.Number),
		Fields:      map[string]string{"refunded": fmt.Sprintf("%t", refunded)},
		OccurredAt:  s.now(),
	})
	if s.operatorEmail != "" {
		s.notify(ctx, notifications.Message{
			Kind:        notifications.KindOperatorAlert,
			Recipient:   s.operatorEmail,
			OrderID:     cancelled.ID,
			OrderNumber: cancelled.Number,
			Subject:     fmt.Sprintf("Order %s cancelled", cancelled.Number),
			Fields:      map[string]string{"refunded": fmt.Sprintf("%t", refunded)},
			OccurredAt:  s.now(),
		})
	}
	return cancelled, nil
}

// AgentQueue pages the fulfilment queue. Admins see everything. An agent sees
// every order while they are the only active agent, otherwise only their own
// assignments.
func (s *orderService) AgentQueue(ctx context.Context, cmd AgentQueueCommand) (domain.CursorPage[Order], error) {
	if !cmd.Actor.IsAdmin() && !cmd.Actor.IsAgent() {
		return domain.CursorPage[Order]{}, ErrOrderForbidden
	}

	filter := repositories.QueueFilter{
		Statuses:   cmd.Statuses,
		Pagination: cmd.Pagination,
	}
	if !cmd.Actor.IsAdmin() {
		soleAgent, err := s.isSoleActiveAgent(ctx, cmd.Actor.ID)
		if err != nil {
			return domain.CursorPage[Order]{}, translateOrderError(err)
		}
		if !soleAgent {
			filter.AgentID = cmd.Actor.ID
		}
	}

	page, err := s.orders.ListQueue(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, translateOrderError(err)
	}
	return page, nil
}

// TransitionStatus advances the fulfilment state machine. Cancellation goes
// through Cancel, never through here.
func (s *orderService) TransitionStatus(ctx context.Context, cmd TransitionStatusCommand) (Order, error) {
	target := cmd.TargetStatus
	if target != domain.OrderStatusOutForDelivery && target != domain.OrderStatusDelivered {
		return Order{}, ErrOrderInvalidTransition
	}

	order, err := s.orders.FindByID(ctx, strings.TrimSpace(cmd.OrderID))
	if err != nil {
		return Order{}, translateOrderError(err)
	}
	if !s.canFulfil(ctx, cmd.Actor, order) {
		return Order{}, ErrOrderForbidden
	}
	if !order.Status.CanTransitionTo(target) {
		return Order{}, ErrOrderInvalidTransition
	}

	updated, err := s.orders.UpdateStatus(ctx, repositories.OrderStatusUpdate{
		OrderID: order.ID,
		Status:  target,
		Now:     s.now(),
	})
	if err != nil {
		if repositories.IsConflict(err) {
			return Order{}, ErrOrderInvalidTransition
		}
		return Order{}, translateOrderError(err)
	}

	s.logger(ctx, "orders.status_changed", map[string]any{
		"order_id": updated.ID,
		"status":   string(updated.Status),
		"actor_id": cmd.Actor.ID,
	})
	s.notify(ctx, notifications.Message{
		Kind:        notifications.KindOrderStatusChanged,
		Recipient:   updated.UserID,
		OrderID:     updated.ID,
		OrderNumber: updated.Number,
		Subject:     fmt.Sprintf("Order %s is %s", updated.Number, statusLabel(updated.Status)),
		Fields:      map[string]string{"status": string(updated.Status)},
		OccurredAt:  s.now(),
	})
	return updated, nil
}

// MarkPaid flips the orthogonal paid flag, typically cash collected on a COD
// delivery. It never changes the fulfilment status.
func (s *orderService) MarkPaid(ctx context.Context, cmd MarkPaidCommand) (Order, error) {
	order, err := s.orders.FindByID(ctx, strings.TrimSpace(cmd.OrderID))
	if err != nil {
		return Order{}, translateOrderError(err)
	}
	if !s.canFulfil(ctx, cmd.Actor, order) {
		return Order{}, ErrOrderForbidden
	}
	if order.Paid {
		return order, nil
	}

	updated, err := s.orders.MarkPaid(ctx, order.ID, s.now())
	if err != nil {
		return Order{}, translateOrderError(err)
	}

	s.notify(ctx, notifications.Message{
		Kind:        notifications.KindPaymentReceived,
		Recipient:   updated.UserID,
		OrderID:     updated.ID,
		OrderNumber: updated.Number,
		Subject:     fmt.Sprintf("Payment received for order %s", updated.Number),
		OccurredAt:  s.now(),
	})
	return updated, nil
}

func (s *orderService) canView(actor Actor, order Order) bool {
	if order.UserID == actor.ID {
		return true
	}
	if actor.IsAdmin() {
		return true
	}
	if actor.IsAgent() && order.AssignedAgentID != nil && *order.AssignedAgentID == actor.ID {
		return true
	}
	return false
}

func (s *orderService) canFulfil(ctx context.Context, actor Actor, order Order) bool {
	if actor.IsAdmin() {
		return true
	}
	if !actor.IsAgent() {
		return false
	}
	if order.AssignedAgentID != nil && *order.AssignedAgentID == actor.ID {
		return true
	}
	// With a single active agent, unassigned orders belong to them.
	if order.AssignedAgentID == nil || *order.AssignedAgentID == "" {
		sole, err := s.isSoleActiveAgent(ctx, actor.ID)
		return err == nil && sole
	}
	return false
}

func (s *orderService) isSoleActiveAgent(ctx context.Context, agentID string) (bool, error) {
	agents, err := s.agents.ListActive(ctx)
	if err != nil {
		return false, err
	}
	return len(agents) == 1 && agents[0].ID == agentID, nil
}

func (s *orderService) notify(ctx context.Context, msg notifications.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, msg); err != nil {
		s.logger(ctx, "notifications.dispatch_failed", map[string]any{
			"kind":     string(msg.Kind),
			"order_id": msg.OrderID,
			"error":    err.Error(),
		})
	}
}

func statusLabel(status domain.OrderStatus) string {
	return strings.ReplaceAll(string(status), "_", " ")
}

func translateOrderError(err error) error {
	if err == nil {
		return nil
	}
	if repositories.IsNotFound(err) {
		return ErrOrderNotFound
	}
	if repositories.IsUnavailable(err) {
		return ErrCheckoutUnavailable
	}
	return err
}
