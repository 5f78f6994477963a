package notifications

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier writes notifications to the structured log. It is the fallback
// used when no Pub/Sub topic is configured (local development, tests).
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs a LogNotifier backed by the supplied logger.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs the message instead of delivering it.
func (n *LogNotifier) Notify(_ context.Context, msg Message) error {
	logger := n.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("notification",
		zap.String("kind", string(msg.Kind)),
		zap.String("recipient", normaliseRecipient(msg.Recipient)),
		zap.String("order_id", msg.OrderID),
		zap.String("order_number", msg.OrderNumber),
	)
	return nil
}
