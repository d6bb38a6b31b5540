package events

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/budgetlog/logbook/logging"
)

const publishTimeout = 5 * time.Second

// Channel is the part of an AMQP channel the publisher uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// Publisher sends events to a durable topic exchange, routed by kind.
type Publisher struct {
	conn     io.Closer
	channel  Channel
	exchange string
	logger   *logging.Logger
}

// Dial connects to the broker at url and declares exchange.
func Dial(url, exchange string, logger *logging.Logger) (*Publisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	p, err := NewPublisher(channel, exchange, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

// NewPublisher declares exchange on channel and returns a publisher using it.
func NewPublisher(channel Channel, exchange string, logger *logging.Logger) (*Publisher, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	err := channel.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Publisher{channel: channel, exchange: exchange, logger: logger.WithComponent("events")}, nil
}

// Publish sends e with its kind as routing key.
func (p *Publisher) Publish(ctx context.Context, e Event) error {
	body, err := e.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange, // exchange
		e.Kind,     // routing key
		false,      // mandatory
		false,      // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    e.ID.String(),
			Type:         e.Kind,
			Timestamp:    e.Timestamp,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", e.Kind, err)
	}
	p.logger.Debug("event published", "kind", e.Kind, "id", e.ID, "exchange", p.exchange)
	return nil
}

// Close closes the channel and, for dialed publishers, the connection.
func (p *Publisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
