// Package bus wraps the durable AMQP topology described in SPEC_FULL.md
// §6.1: a topic exchange carrying inbound order commands, a direct
// exchange carrying outbound order/account/position updates, durable
// queues, persistent delivery, JSON bodies, prefetch=1.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"tqsdk-broker-bridge/internal/constants"
)

// Envelope is one bus delivery (raw body) handed to a consumer's handler. Ack
// is called on success, Nack(requeue) on failure, per SPEC_FULL.md §7.
type Envelope struct {
	Body    []byte
	Ack     func()
	Nack    func(requeue bool)
}

// Conn owns a single AMQP connection/channel pair and can be used to build
// both a Consumer and a Publisher against it.
type Conn struct {
	url  string
	conn *amqp.Connection
	ch   *amqp.Channel
}

// Dial connects and opens a channel with prefetch=1, declaring the two
// exchanges used throughout the bridge.
func Dial(url string) (*Conn, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqp qos: %w", err)
	}
	if err := ch.ExchangeDeclare(constants.ExternalOrdersExchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare %s: %w", constants.ExternalOrdersExchange, err)
	}
	if err := ch.ExchangeDeclare(constants.InternalEventsExchange, "direct", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare %s: %w", constants.InternalEventsExchange, err)
	}
	return &Conn{url: url, conn: conn, ch: ch}, nil
}

// Close tears down the channel and connection.
func (c *Conn) Close() error {
	c.ch.Close()
	return c.conn.Close()
}

// Consumer reads one durable queue, declared and bound by DeclareOrderQueue
// or DeclareInternalQueue, and hands each delivery's raw body to a handler.
type Consumer struct {
	conn      *Conn
	queue     string
	handlerFn func(context.Context, Envelope)
}

// DeclareOrderQueue declares and binds queueName on the external orders
// exchange using routingKey, returning a Consumer ready to Run.
func (c *Conn) DeclareOrderQueue(queueName, routingKey string) (*Consumer, error) {
	if _, err := c.ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", queueName, err)
	}
	if err := c.ch.QueueBind(queueName, routingKey, constants.ExternalOrdersExchange, false, nil); err != nil {
		return nil, fmt.Errorf("bind queue %s to %s: %w", queueName, routingKey, err)
	}
	return &Consumer{conn: c, queue: queueName}, nil
}

// DeclareInternalQueue declares and binds queueName on the internal
// events exchange using routingKey (order_updates/account_updates/
// position_updates).
func (c *Conn) DeclareInternalQueue(queueName, routingKey string) (*Consumer, error) {
	if _, err := c.ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", queueName, err)
	}
	if err := c.ch.QueueBind(queueName, routingKey, constants.InternalEventsExchange, false, nil); err != nil {
		return nil, fmt.Errorf("bind queue %s to %s: %w", queueName, routingKey, err)
	}
	return &Consumer{conn: c, queue: queueName}, nil
}

// Run consumes deliveries until ctx is canceled, handing each off to
// handle. handle must call env.Ack or env.Nack exactly once.
func (cs *Consumer) Run(ctx context.Context, handle func(context.Context, Envelope)) error {
	deliveries, err := cs.conn.ch.Consume(cs.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", cs.queue, err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("consumer channel closed for %s", cs.queue)
			}
			delivery := d
			handle(ctx, Envelope{
				Body: delivery.Body,
				Ack:  func() { _ = delivery.Ack(false) },
				Nack: func(requeue bool) { _ = delivery.Nack(false, requeue) },
			})
		}
	}
}

// Publisher publishes persistent JSON messages to the internal events
// exchange.
type Publisher struct {
	conn *Conn
}

// NewPublisher returns a Publisher bound to conn.
func NewPublisher(conn *Conn) *Publisher { return &Publisher{conn: conn} }

// PublishInternal marshals v to JSON and publishes it to the internal
// events exchange under routingKey, with persistent delivery mode.
func (p *Publisher) PublishInternal(ctx context.Context, routingKey string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err = p.conn.ch.PublishWithContext(pubCtx, constants.InternalEventsExchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         raw,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	return nil
}

// Reconnect dials url, retrying after backoff on each failure and logging
// every failed attempt, until a dial succeeds or ctx is canceled. It does
// not close any existing Conn.
func Reconnect(ctx context.Context, url string, backoff time.Duration) (*Conn, error) {
	for {
		conn, err := Dial(url)
		if err == nil {
			return conn, nil
		}
		log.Warn().Err(err).Dur("backoff", backoff).Msg("bus reconnect failed, retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
}
