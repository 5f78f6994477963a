package notifications

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func TestPubSubNotifierPublishesMessage(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	topic, err := client.CreateTopic(ctx, "notifications")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	notifier, err := NewPubSubNotifier(topic)
	if err != nil {
		t.Fatalf("NewPubSubNotifier: %v", err)
	}

	msg := Message{
		Kind:        KindOrderConfirmed,
		Recipient:   "Customer@Example.COM",
		OrderID:     "ord_01H",
		OrderNumber: "DM-1042",
		Fields:      map[string]string{"total": "49900"},
		OccurredAt:  time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC),
	}

	if err := notifier.Notify(ctx, msg); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload Message
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Recipient != "customer@example.com" {
		t.Fatalf("expected normalised recipient, got %q", payload.Recipient)
	}
	if payload.OrderID != msg.OrderID || payload.Kind != KindOrderConfirmed {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if attr := messages[0].Attributes["kind"]; attr != string(KindOrderConfirmed) {
		t.Fatalf("expected kind attribute, got %q", attr)
	}
	if attr := messages[0].Attributes["orderNumber"]; attr != "DM-1042" {
		t.Fatalf("expected order number attribute, got %q", attr)
	}
}

func TestPubSubNotifierRejectsMissingRecipient(t *testing.T) {
	notifier := &PubSubNotifier{topic: &pubsub.Topic{}, marshal: json.Marshal}
	err := notifier.Notify(context.Background(), Message{Kind: KindOperatorAlert})
	if err == nil {
		t.Fatal("expected error for missing recipient")
	}
}
