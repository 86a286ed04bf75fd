// Package amqp carries goal-completion events between the API server and
// the notify worker over a durable direct exchange.
package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/jefersonfloz/ahorraplus/internal/ledger"
)

const publishTimeout = 5 * time.Second

// Client holds one connection and one channel. The queue is bound to the
// exchange under its own name as routing key, so publisher and consumer
// only need to agree on the two names.
type Client struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
	queue    string
}

var _ ledger.EventPublisher = (*Client)(nil)

// NewClient dials the broker and declares the exchange, the queue and the
// binding. Declarations are idempotent, so server and worker can both run
// them at startup in any order.
func NewClient(url, exchange, queue string) (*Client, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	c := &Client{conn: conn, channel: channel, exchange: exchange, queue: queue}
	if err := c.declareTopology(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) declareTopology() error {
	if err := c.channel.ExchangeDeclare(c.exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %q: %w", c.exchange, err)
	}
	if _, err := c.channel.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %q: %w", c.queue, err)
	}
	if err := c.channel.QueueBind(c.queue, c.queue, c.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %q: %w", c.queue, err)
	}
	return nil
}

// PublishGoalCompleted sends one completion event as a persistent message.
func (c *Client) PublishGoalCompleted(ctx context.Context, ev ledger.CompletedEvent) error {
	msg := NewGoalCompletedMessage(ev.GoalID, ev.UserID, ev.GoalName, ev.UserEmail, ev.CompletedAt)
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal completion message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = c.channel.PublishWithContext(ctx, c.exchange, c.queue, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish completion message: %w", err)
	}

	slog.InfoContext(ctx, "Published goal completed message",
		"goal_id", ev.GoalID,
		"user_id", ev.UserID,
		"exchange", c.exchange)
	return nil
}

// ConsumeGoalCompleted delivers completion messages to handler until the
// context is cancelled. A message is acked only after the handler returns
// nil; handler failures requeue, unparseable payloads are dropped.
func (c *Client) ConsumeGoalCompleted(ctx context.Context, handler func(*GoalCompletedMessage) error) error {
	deliveries, err := c.channel.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming %q: %w", c.queue, err)
	}

	slog.InfoContext(ctx, "Consuming goal completed messages", "queue", c.queue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			msg, err := GoalCompletedMessageFromJSON(d.Body)
			if err != nil {
				slog.ErrorContext(ctx, "Dropping unparseable message", "error", err)
				d.Nack(false, false)
				continue
			}
			if err := handler(msg); err != nil {
				slog.ErrorContext(ctx, "Handler failed, requeueing",
					"error", err,
					"goal_id", msg.GoalID,
					"user_id", msg.UserID)
				d.Nack(false, true)
				continue
			}
			d.Ack(false)
		}
	}
}

func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
