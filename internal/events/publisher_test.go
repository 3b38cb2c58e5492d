package events

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/SAP-F-2025/english-practice-service/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestWatermillPublisher_InProcessDelivery(t *testing.T) {
	pub, err := NewPublisher(config.KafkaConfig{Topic: "test"}, testLogger())
	if err != nil {
		t.Fatalf("NewPublisher() error = %v", err)
	}
	defer pub.Close()

	if got := pub.Topic(RecordSaved); got != "test.record.saved" {
		t.Errorf("Topic() = %q", got)
	}

	// A second subscriber sees the same messages the audit log consumes.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	messages, err := pub.channel.Subscribe(ctx, pub.Topic(UserRegistered))
	if err != nil {
		t.Fatal(err)
	}

	sent := NewEvent(UserRegistered, "admin", "kim", map[string]interface{}{"role": "student"})
	if err := pub.Publish(ctx, sent); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	var msg *message.Message
	select {
	case msg = <-messages:
	case <-time.After(2 * time.Second):
		t.Fatal("no message delivered")
	}
	msg.Ack()

	got, err := Unmarshal(msg.Payload)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != sent.ID || got.Type != UserRegistered || got.Subject != "kim" || got.Data["role"] != "student" {
		t.Errorf("event = %+v", got)
	}
	if msg.Metadata.Get("event_type") != string(UserRegistered) || msg.Metadata.Get("actor") != "admin" {
		t.Errorf("metadata = %v", msg.Metadata)
	}
}

func TestNewPublisher_Kafka(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that needs a Kafka broker")
	}
	brokers := os.Getenv("KAFKA_BROKERS")
	if brokers == "" {
		t.Skip("KAFKA_BROKERS not set")
	}

	pub, err := NewPublisher(config.KafkaConfig{Brokers: []string{brokers}}, testLogger())
	if err != nil {
		t.Fatalf("NewPublisher() error = %v", err)
	}
	defer pub.Close()

	if err := pub.Publish(context.Background(), NewEvent(DataRestored, "admin", "document", nil)); err != nil {
		t.Errorf("Publish() error = %v", err)
	}
}

func TestMockEventPublisher(t *testing.T) {
	mock := NewMockEventPublisher(testLogger())
	ctx := context.Background()

	_ = mock.Publish(ctx, NewEvent(ProblemCreated, "lee", "p1", nil))
	_ = mock.Publish(ctx, NewEvent(ProblemDeleted, "lee", "p1", nil))

	if n := len(mock.GetPublishedEvents()); n != 2 {
		t.Fatalf("published = %d, want 2", n)
	}
	if n := len(mock.EventsOfType(ProblemDeleted)); n != 1 {
		t.Errorf("EventsOfType() = %d, want 1", n)
	}

	mock.Clear()
	if n := len(mock.GetPublishedEvents()); n != 0 {
		t.Errorf("after Clear() = %d", n)
	}
}
