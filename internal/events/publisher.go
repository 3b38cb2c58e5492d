package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/SAP-F-2025/english-practice-service/internal/config"
)

const defaultTopicPrefix = "english-practice"

// WatermillPublisher sends events to one topic per event type, named
// "<prefix>.<type>".
type WatermillPublisher struct {
	publisher message.Publisher
	prefix    string
	logger    *slog.Logger

	// Set only for the in-process channel, which also runs the audit log.
	channel *gochannel.GoChannel
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPublisher connects to Kafka when brokers are configured and otherwise
// uses an in-process channel whose events are written to the log.
func NewPublisher(cfg config.KafkaConfig, logger *slog.Logger) (*WatermillPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	prefix := cfg.Topic
	if prefix == "" {
		prefix = defaultTopicPrefix
	}
	wmLogger := watermill.NewSlogLogger(logger)

	if len(cfg.Brokers) > 0 {
		pub, err := kafka.NewPublisher(kafka.PublisherConfig{
			Brokers:   cfg.Brokers,
			Marshaler: kafka.DefaultMarshaler{},
		}, wmLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka publisher: %w", err)
		}
		logger.Info("Event publisher connected to Kafka", "brokers", cfg.Brokers, "topic_prefix", prefix)
		return &WatermillPublisher{publisher: pub, prefix: prefix, logger: logger}, nil
	}

	channel := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, wmLogger)
	p := &WatermillPublisher{publisher: channel, prefix: prefix, logger: logger, channel: channel}
	if err := p.startAudit(); err != nil {
		channel.Close()
		return nil, err
	}
	logger.Info("Event publisher using in-process channel", "topic_prefix", prefix)
	return p, nil
}

func (p *WatermillPublisher) Topic(eventType EventType) string {
	return p.prefix + "." + string(eventType)
}

func (p *WatermillPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := event.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("event_type", string(event.Type))
	msg.Metadata.Set("actor", event.Actor)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.Topic(event.Type), msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}
	return nil
}

// startAudit subscribes to every event topic and logs what it receives.
func (p *WatermillPublisher) startAudit() error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	for _, eventType := range AllEventTypes {
		messages, err := p.channel.Subscribe(ctx, p.Topic(eventType))
		if err != nil {
			cancel()
			return fmt.Errorf("failed to subscribe to %s: %w", eventType, err)
		}

		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for msg := range messages {
				p.audit(msg)
				msg.Ack()
			}
		}()
	}
	return nil
}

func (p *WatermillPublisher) audit(msg *message.Message) {
	event, err := Unmarshal(msg.Payload)
	if err != nil {
		p.logger.Warn("Dropping malformed event", "message_id", msg.UUID, "error", err)
		return
	}
	p.logger.Info("Audit event",
		"event_id", event.ID,
		"type", event.Type,
		"actor", event.Actor,
		"subject", event.Subject,
		"occurred_at", event.OccurredAt)
}

func (p *WatermillPublisher) Close() error {
	err := p.publisher.Close()
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	return err
}
