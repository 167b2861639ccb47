package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	"github.com/starkspartacus/ecompetition-sub002/models"
)

// EventsExchange is the fanout exchange all competition events are published to.
const EventsExchange = "competition-events"

const (
	routingKeyTransition = "competition.status_changed"
	dialAttempts         = 5
)

// AMQPPublisher publishes events as JSON messages to a RabbitMQ fanout exchange.
type AMQPPublisher struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	mu   sync.Mutex
}

// DialAMQP connects with exponential backoff and declares the events exchange.
func DialAMQP(url string, logger *slog.Logger) (*AMQPPublisher, error) {
	var (
		conn *amqp.Connection
		err  error
	)
	wait := time.Second
	for attempt := 1; attempt <= dialAttempts; attempt++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		if attempt == dialAttempts {
			return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
		}
		logger.Warn("RabbitMQ not reachable, retrying", slog.Int("attempt", attempt), slog.Duration("wait", wait))
		time.Sleep(wait)
		wait *= 2
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		EventsExchange,
		"fanout",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", EventsExchange, err)
	}

	logger.Info("Connected to rabbitmq", slog.String("exchange", EventsExchange))
	return &AMQPPublisher{conn: conn, ch: ch}, nil
}

func (p *AMQPPublisher) NotifyTransition(_ context.Context, event models.TransitionEvent) error {
	return p.publish(routingKeyTransition, event)
}

func (p *AMQPPublisher) NotifyParticipation(_ context.Context, event models.ParticipationEvent) error {
	return p.publish(string(event.Type), event)
}

func (p *AMQPPublisher) publish(eventType string, payload interface{}) error {
	msg, err := newPublishing(eventType, payload, time.Now().UTC())
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.Publish(EventsExchange, eventType, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", eventType, err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}

func newPublishing(eventType string, payload interface{}, now time.Time) (amqp.Publishing, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to encode %s: %w", eventType, err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    now,
		Type:         eventType,
		Body:         body,
	}, nil
}
