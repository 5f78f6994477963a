package notifications

import (
	"context"
	"strings"
	"time"
)

// Kind identifies the notification template a downstream worker renders.
type Kind string

const (
	// KindOrderConfirmed is sent to the customer after an order commits.
	KindOrderConfirmed Kind = "order_confirmed"
	// KindPaymentReceived is sent when an order is marked paid.
	KindPaymentReceived Kind = "payment_received"
	// KindOrderStatusChanged is sent on fulfilment status transitions.
	KindOrderStatusChanged Kind = "order_status_changed"
	// KindOrderCancelled is sent to the customer when an order is cancelled.
	KindOrderCancelled Kind = "order_cancelled"
	// KindAgentAssignment is sent to a delivery agent picking up an order.
	KindAgentAssignment Kind = "agent_assignment"
	// KindOperatorAlert is sent to the store operator mailbox.
	KindOperatorAlert Kind = "operator_alert"
)

// Message is a single outbound notification. Fields carry template
// parameters; delivery (email rendering, retries) happens downstream.
type Message struct {
	Kind        Kind              `json:"kind"`
	Recipient   string            `json:"recipient"`
	OrderID     string            `json:"orderId,omitempty"`
	OrderNumber string            `json:"orderNumber,omitempty"`
	Subject     string            `json:"subject,omitempty"`
	Fields      map[string]string `json:"fields,omitempty"`
	OccurredAt  time.Time         `json:"occurredAt"`
}

// Notifier delivers notification messages. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

func normaliseRecipient(recipient string) string {
	return strings.ToLower(strings.TrimSpace(recipient))
}
