package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/devki-mart/api/internal/domain"
	"github.com/devki-mart/api/internal/notifications"
	"github.com/devki-mart/api/internal/repositories"
)

const orderCounterID = "orders"

// orderCommitter turns a resolved checkout intent into a persisted order:
// sequence number, agent assignment, the transactional create and the
// post-commit notifications. Checkout (cash) and payment verification share
// it so both paths behave identically.
type orderCommitter struct {
	orders        repositories.OrderRepository
	counters      repositories.CounterRepository
	assignment    AssignmentStrategy
	notifier      notifications.Notifier
	numberPrefix  string
	operatorEmail string
	now           func() time.Time
	idGen         func() string
	logger        func(ctx context.Context, event string, fields map[string]any)
}

type commitParams struct {
	userID    string
	intent    domain.CheckoutIntent
	method    domain.PaymentMethod
	paid      bool
	paymentID *string
}

func (c *orderCommitter) commit(ctx context.Context, params commitParams) (domain.Order, bool, error) {
	now := c.now()

	seq, err := c.counters.Next(ctx, orderCounterID)
	if err != nil {
		return domain.Order{}, false, translateCheckoutError(err)
	}

	order := domain.Order{
		ID:            c.idGen(),
		Number:        fmt.Sprintf("%s-%06d", c.numberPrefix, seq),
		UserID:        params.userID,
		Shipping:      params.intent.Shipping,
		PaymentMethod: params.method,
		Status:        domain.OrderStatusPendingPickup,
		Total:         params.intent.Total,
		Currency:      params.intent.Currency,
	}
	for _, line := range params.intent.Lines {
		order.Lines = append(order.Lines, domain.OrderLine{
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Name:      line.Name,
			SKU:       line.SKU,
			Options:   line.Options,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Total:     line.Total(),
		})
	}
	if params.intent.ProviderOrderID != "" {
		providerOrderID := params.intent.ProviderOrderID
		order.ProviderOrderID = &providerOrderID
	}
	if params.paid {
		order.Paid = true
		order.PaidAt = &now
		order.ProviderPaymentID = params.paymentID
	}

	if c.assignment != nil {
		agentID, err := c.assignment.Assign(ctx, order)
		if err != nil {
			c.logger(ctx, "orders.assignment_failed", map[string]any{"order_number": order.Number, "error": err.Error()})
		} else {
			order.AssignedAgentID = agentID
		}
	}

	result, err := c.orders.Create(ctx, repositories.OrderCreateRequest{
		Order:        order,
		ReserveStock: true,
		ClearCart:    params.intent.Source == domain.CheckoutSourceCart,
		ClearBuyNow:  params.intent.Source == domain.CheckoutSourceBuyNow,
		Now:          now,
	})
	if err != nil {
		return domain.Order{}, false, translateCheckoutError(err)
	}
	if result.Existing {
		return result.Order, true, nil
	}

	c.logger(ctx, "orders.created", map[string]any{
		"order_id":     result.Order.ID,
		"order_number": result.Order.Number,
		"user_id":      result.Order.UserID,
		"method":       string(result.Order.PaymentMethod),
		"total":        result.Order.Total,
		"paid":         result.Order.Paid,
	})
	c.notifyCommitted(ctx, result.Order)
	return result.Order, false, nil
}

// notifyCommitted dispatches the post-commit fan-out. Failures are logged and
// swallowed; the order is already durable.
func (c *orderCommitter) notifyCommitted(ctx context.Context, order domain.Order) {
	if c.notifier == nil {
		return
	}
	c.notify(ctx, notifications.Message{
		Kind:        notifications.KindOrderConfirmed,
		Recipient:   order.UserID,
		OrderID:     order.ID,
		OrderNumber: order.Number,
		Subject:     fmt.Sprintf("Order %s confirmed", order.Number),
		Fields: map[string]string{
			"total":    fmt.Sprintf("%d", order.Total),
			"currency": order.Currency,
			"method":   string(order.PaymentMethod),
		},
		OccurredAt: c.now(),
	})
	if c.operatorEmail != "" {
		c.notify(ctx, notifications.Message{
			Kind:        notifications.KindOperatorAlert,
			Recipient:   c.operatorEmail,
			OrderID:     order.ID,
			OrderNumber: order.Number,
			Subject:     fmt.Sprintf("New order %s", order.Number),
			Fields: map[string]string{
				"total": fmt.Sprintf("%d", order.Total),
				"paid":  fmt.Sprintf("%t", order.Paid),
			},
			OccurredAt: c.now(),
		})
	}
	if order.AssignedAgentID != nil && *order.AssignedAgentID != "" {
		c.notify(ctx, notifications.Message{
			Kind:        notifications.KindAgentAssignment,
			Recipient:   *order.AssignedAgentID,
			OrderID:     order.ID,
			OrderNumber: order.Number,
			Subject:     fmt.Sprintf("Order %s assigned to you", order.Number),
			OccurredAt:  c.now(),
		})
	}
}

func (c *orderCommitter) notify(ctx context.Context, msg notifications.Message) {
	if err := c.notifier.Notify(ctx, msg); err != nil {
		c.logger(ctx, "notifications.dispatch_failed", map[string]any{
			"kind":     string(msg.Kind),
			"order_id": msg.OrderID,
			"error":    err.Error(),
		})
	}
}

func translateCheckoutError(err error) error {
	if err == nil {
		return nil
	}
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		switch invErr.Code {
		case repositories.InventoryErrorInsufficientStock:
			return fmt.Errorf("%w: %s", ErrCheckoutInsufficientStock, invErr.SKU)
		case repositories.InventoryErrorStockNotFound:
			return ErrCheckoutProductNotFound
		}
		return err
	}
	if repositories.IsNotFound(err) {
		return ErrCheckoutProductNotFound
	}
	if repositories.IsUnavailable(err) {
		return ErrCheckoutUnavailable
	}
	return err
}
