package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"
)

// PubSubNotifier publishes notification messages on a Pub/Sub topic for the
// mailer worker to consume.
type PubSubNotifier struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubNotifier constructs a Pub/Sub backed notifier.
func NewPubSubNotifier(topic *pubsub.Topic) (*PubSubNotifier, error) {
	if topic == nil {
		return nil, errors.New("pubsub notifier: topic is required")
	}
	return &PubSubNotifier{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// Notify enqueues the message on the configured topic.
func (n *PubSubNotifier) Notify(ctx context.Context, msg Message) error {
	if n == nil || n.topic == nil {
		return errors.New("pubsub notifier: not initialised")
	}

	msg.Recipient = normaliseRecipient(msg.Recipient)
	if msg.Recipient == "" {
		return errors.New("pubsub notifier: recipient is required")
	}
	if strings.TrimSpace(string(msg.Kind)) == "" {
		return errors.New("pubsub notifier: kind is required")
	}

	data, err := n.marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "kind", string(msg.Kind))
	setAttr(attrs, "orderId", msg.OrderID)
	setAttr(attrs, "orderNumber", msg.OrderNumber)

	result := n.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
