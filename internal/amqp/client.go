package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rabbitmq/amqp091-go"
)

// RoutingKey is used for every table.replaced publication.
const RoutingKey = "table.replaced"

// ErrChannelClosed is returned by Consume when the broker closes the delivery channel.
var ErrChannelClosed = errors.New("message channel closed")

type Client struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
	queueName    string

	publishMu sync.Mutex
}

// NewClient dials the broker, retrying with exponential backoff until
// maxWait elapses, then declares the exchange and queue.
func NewClient(ctx context.Context, url, exchangeName, queueName string, maxWait time.Duration) (*Client, error) {
	var conn *amqp091.Connection
	dial := func() error {
		var err error
		conn, err = amqp091.Dial(url)
		return err
	}
	notify := func(err error, next time.Duration) {
		slog.WarnContext(ctx, "AMQP dial failed, retrying", "error", err, "next_in", next)
	}
	if err := backoff.RetryNotify(dial, backoff.WithContext(newBackoff(maxWait), ctx), notify); err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	client := &Client{
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
		queueName:    queueName,
	}

	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}

	return client, nil
}

func newBackoff(maxWait time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = maxWait
	return b
}

func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = c.channel.QueueDeclare(
		c.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	err = c.channel.QueueBind(c.queueName, RoutingKey, c.exchangeName, false, nil)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	// One unacked mirror job at a time.
	if err := c.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	return nil
}

// PublishTableReplaced announces a completed full-table write.
func (c *Client) PublishTableReplaced(ctx context.Context, revision string, rows int, reason string) error {
	body, err := NewTableReplacedMessage(revision, rows, reason).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	c.publishMu.Lock()
	err = c.channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		RoutingKey,     // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	c.publishMu.Unlock()
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	slog.InfoContext(ctx, "Published table.replaced",
		"revision", revision,
		"rows", rows,
		"reason", reason,
		"exchange", c.exchangeName)
	return nil
}

// ConsumeTableReplaced blocks, handing each message to handler until ctx is
// done. Failed messages are requeued; undecodable ones are dropped.
func (c *Client) ConsumeTableReplaced(ctx context.Context, handler func(context.Context, *TableReplacedMessage) error) error {
	msgs, err := c.channel.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming table.replaced", "queue", c.queueName)
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return ErrChannelClosed
			}
			handleDelivery(ctx, delivery, handler)
		}
	}
}

// acknowledger is the subset of a delivery needed to settle it.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func handleDelivery(ctx context.Context, d amqp091.Delivery, handler func(context.Context, *TableReplacedMessage) error) {
	settle(ctx, d.Body, &d, handler)
}

func settle(ctx context.Context, body []byte, ack acknowledger, handler func(context.Context, *TableReplacedMessage) error) {
	msg, err := TableReplacedMessageFromJSON(body)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to unmarshal message", "error", err)
		_ = ack.Nack(false, false)
		return
	}
	if err := handler(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to handle message", "error", err, "revision", msg.Revision)
		_ = ack.Nack(false, true)
		return
	}
	_ = ack.Ack(false)
	slog.InfoContext(ctx, "Processed table.replaced", "revision", msg.Revision)
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
