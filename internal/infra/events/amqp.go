// Package events forwards committed store events to RabbitMQ so other
// services (automation workers, analytics) can react to CRM changes.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
)

var tracer = otel.Tracer("infra/events")

// RoutingKey is the topic key for an event kind, e.g. "crm.contacts_added".
func RoutingKey(kind domain.EventKind) string {
	return "crm." + string(kind)
}

// Publisher implements port.EventSink. With no URL configured it is
// disabled and Handle does nothing.
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	enabled  bool
	logger   *zap.Logger
}

// NewPublisher connects and declares the topic exchange. An empty url
// returns a disabled publisher.
func NewPublisher(url, exchange string, logger *zap.Logger) (*Publisher, error) {
	p := &Publisher{exchange: exchange, logger: logger}
	if url == "" {
		logger.Info("rabbitmq url not set, event publishing disabled")
		return p, nil
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "rabbitmq", Err: err}
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, &domain.ErrExternalService{Service: "rabbitmq", Err: fmt.Errorf("opening channel: %w", err)}
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, &domain.ErrExternalService{Service: "rabbitmq", Err: fmt.Errorf("declaring exchange %s: %w", exchange, err)}
	}

	p.conn = conn
	p.ch = ch
	p.enabled = true
	logger.Info("rabbitmq publisher ready", zap.String("exchange", exchange))
	return p, nil
}

// Enabled reports whether events are actually published.
func (p *Publisher) Enabled() bool {
	return p.enabled
}

// Handle publishes ev as JSON under its routing key.
func (p *Publisher) Handle(ctx context.Context, ev domain.Event) error {
	if !p.enabled {
		return nil
	}

	ctx, span := tracer.Start(ctx, "Publisher.Handle")
	defer span.End()
	span.SetAttributes(
		attribute.String("event.kind", string(ev.Kind)),
		attribute.String("messaging.destination", p.exchange),
	)

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshalling event %d: %w", ev.Seq, err)
	}

	// amqp channels are not safe for concurrent publishing
	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.PublishWithContext(ctx, p.exchange, RoutingKey(ev.Kind), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    fmt.Sprintf("%d", ev.Seq),
		Timestamp:    ev.Timestamp,
		Headers:      amqp.Table{"tenant_id": ev.TenantID},
		Body:         body,
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "rabbitmq", Err: err}
	}
	return nil
}

// Close shuts the channel and connection.
func (p *Publisher) Close() error {
	if !p.enabled {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = false
	if err := p.ch.Close(); err != nil {
		p.logger.Warn("closing rabbitmq channel", zap.Error(err))
	}
	return p.conn.Close()
}
