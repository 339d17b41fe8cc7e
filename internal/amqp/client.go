// Package amqp carries dataset change notifications between processes.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"fluxo/internal/events"
	"fluxo/internal/log"
)

var ErrNotConnected = errors.New("amqp client is not connected")

// publishTimeout bounds a single publish.
const publishTimeout = 5 * time.Second

// Handler processes one dataset change. Returning an error requeues the message.
type Handler func(ctx context.Context, msg *DatasetChangedMessage) error

// Client publishes and consumes DatasetChangedMessage on a direct exchange.
// Messages are routed by routingKey, which is the shared queue name.
type Client struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
	queueName    string
	routingKey   string
	exclusive    bool
	logger       *log.Logger
}

// NewClient dials url and declares the exchange, the durable queue and its
// binding. Consumers of the same queue compete for messages.
func NewClient(url, exchangeName, queueName string, logger *log.Logger) (*Client, error) {
	return dial(url, &Client{
		exchangeName: exchangeName,
		queueName:    queueName,
		routingKey:   queueName,
	}, logger)
}

// NewListener dials url and binds a private, auto-deleted queue to
// routingKey, so every listener receives its own copy of each message.
func NewListener(url, exchangeName, routingKey string, logger *log.Logger) (*Client, error) {
	return dial(url, &Client{
		exchangeName: exchangeName,
		routingKey:   routingKey,
		exclusive:    true,
	}, logger)
}

func dial(url string, client *Client, logger *log.Logger) (*Client, error) {
	if logger == nil {
		logger = log.Default()
	}
	client.logger = logger.WithComponent(log.ComponentAMQP)

	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}
	client.conn = conn

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	client.channel = channel

	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}

	return client, nil
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

	q, err := c.channel.QueueDeclare(
		c.queueName,  // name, empty lets the broker pick one
		!c.exclusive, // durable
		c.exclusive,  // delete when unused
		c.exclusive,  // exclusive
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	c.queueName = q.Name

	err = c.channel.QueueBind(c.queueName, c.routingKey, c.exchangeName, false, nil)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	return nil
}

// Publish sends a DataChanged event to the exchange. Other event kinds are ignored.
func (c *Client) Publish(ctx context.Context, e events.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.Kind != events.DataChanged {
		return nil
	}
	if c.channel == nil {
		return ErrNotConnected
	}

	msg := NewDatasetChangedMessage(e)
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = c.channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		c.routingKey,   // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    msg.ID,
			Timestamp:    msg.Timestamp,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	c.logger.InfoContext(ctx, "Published dataset change",
		log.FieldMessageID, msg.ID,
		log.FieldFiles, msg.Files,
		"exchange", c.exchangeName,
		"queue", c.queueName)

	return nil
}

// Consume delivers dataset changes to handler until ctx is done.
func (c *Client) Consume(ctx context.Context, handler Handler) error {
	if c.channel == nil {
		return ErrNotConnected
	}
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

	c.logger.InfoContext(ctx, "Started consuming dataset changes", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return errors.New("message channel closed")
			}
			c.process(ctx, delivery, handler)
		}
	}
}

// process acks on success, requeues on handler failure and drops
// messages that cannot be parsed.
func (c *Client) process(ctx context.Context, d amqp091.Delivery, handler Handler) {
	msg, err := DatasetChangedMessageFromJSON(d.Body)
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to unmarshal message", log.FieldError, err)
		d.Nack(false, false)
		return
	}

	c.logger.InfoContext(ctx, "Processing dataset change", log.FieldMessageID, msg.ID)

	if err := handler(ctx, msg); err != nil {
		c.logger.ErrorContext(ctx, "Failed to handle message", log.FieldError, err, log.FieldMessageID, msg.ID)
		d.Nack(false, true)
		return
	}

	d.Ack(false)
	c.logger.InfoContext(ctx, "Processed dataset change", log.FieldMessageID, msg.ID)
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
