// internal/services/event_publisher.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

// Routing keys of the domain events published on every read-model transition.
const (
	RoutingProductRegistered = "product.registered"
	RoutingInvoiceCreated    = "invoice.created"
	RoutingTransferInitiated = "transfer.initiated"
	RoutingTransferSigned    = "transfer.signed"
	RoutingTransferCompleted = "transfer.completed"
)

const publishTimeout = 5 * time.Second

type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload interface{}) error
	Close() error
}

// NoopPublisher is used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, routingKey string, payload interface{}) error {
	logrus.WithField("routing_key", routingKey).Debug("Domain event dropped, no broker configured")
	return nil
}

func (NoopPublisher) Close() error { return nil }

// AMQPPublisher publishes JSON events to a durable topic exchange with
// publisher confirms.
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	confirms chan amqp.Confirmation
	exchange string
}

func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("channel could not be put into confirm mode: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	logrus.WithField("exchange", exchange).Info("RabbitMQ publisher ready")
	return &AMQPPublisher{
		conn:     conn,
		channel:  ch,
		confirms: ch.NotifyPublish(make(chan amqp.Confirmation, 1)),
		exchange: exchange,
	}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, routingKey string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", routingKey, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.Publish(p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", routingKey, err)
	}

	timer := time.NewTimer(publishTimeout)
	defer timer.Stop()

	select {
	case confirm, ok := <-p.confirms:
		if !ok {
			return fmt.Errorf("confirm channel closed while publishing %s", routingKey)
		}
		if !confirm.Ack {
			return fmt.Errorf("broker nacked %s (delivery tag %d)", routingKey, confirm.DeliveryTag)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("timed out waiting for confirm of %s", routingKey)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.channel.Close(); err != nil {
		logrus.WithError(err).Warn("Error closing RabbitMQ channel")
	}
	return p.conn.Close()
}

// RecordingPublisher keeps published events in memory.
type RecordingPublisher struct {
	mu     sync.Mutex
	Events []PublishedEvent
}

type PublishedEvent struct {
	RoutingKey string
	Payload    interface{}
}

func (r *RecordingPublisher) Publish(ctx context.Context, routingKey string, payload interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, PublishedEvent{RoutingKey: routingKey, Payload: payload})
	return nil
}

func (r *RecordingPublisher) Close() error { return nil }

// Keys returns the routing keys published so far, in order.
func (r *RecordingPublisher) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.Events))
	for _, e := range r.Events {
		keys = append(keys, e.RoutingKey)
	}
	return keys
}

// ProductEvent is the payload of product.registered.
type ProductEvent struct {
	ProductID  uint64    `json:"product_id"`
	Owner      string    `json:"owner"`
	Name       string    `json:"name"`
	ChainID    uint64    `json:"chain_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// InvoiceEvent is the payload of invoice.created.
type InvoiceEvent struct {
	InvoiceID  uint64    `json:"invoice_id"`
	ProductID  uint64    `json:"product_id"`
	Seller     string    `json:"seller"`
	Buyer      string    `json:"buyer"`
	ChainID    uint64    `json:"chain_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// TransferEvent is the payload of the transfer.* events.
type TransferEvent struct {
	CertificateID uint64    `json:"certificate_id"`
	ProductID     uint64    `json:"product_id"`
	InvoiceID     uint64    `json:"invoice_id"`
	Seller        string    `json:"seller"`
	Buyer         string    `json:"buyer"`
	Signer        string    `json:"signer,omitempty"`
	Phase         string    `json:"phase"`
	ChainID       uint64    `json:"chain_id"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// publish sends an event and only logs failures.
func publish(ctx context.Context, p EventPublisher, routingKey string, payload interface{}) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, routingKey, payload); err != nil {
		logrus.WithError(err).WithField("routing_key", routingKey).Warn("Failed to publish domain event")
	}
}
