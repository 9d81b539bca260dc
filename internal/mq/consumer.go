package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrQueueEmpty — в очереди нет сообщений.
var ErrQueueEmpty = errors.New("queue is empty")

// Delivery — полученное сообщение с методами ack/nack.
type Delivery struct {
	// Body — тело сообщения.
	Body []byte

	// Raw — сырое AMQP сообщение.
	Raw amqp.Delivery
}

// Ack подтверждает успешную обработку сообщения.
func (d *Delivery) Ack() error {
	return d.Raw.Ack(false)
}

// Nack отклоняет сообщение.
// requeue=true — вернуть в очередь.
func (d *Delivery) Nack(requeue bool) error {
	return d.Raw.Nack(false, requeue)
}

// Consumer забирает сообщения из очереди по одному.
type Consumer struct {
	conn   *Connection
	logger *slog.Logger
	queue  string
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, queue string) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		conn:   conn,
		logger: logger,
		queue:  queue,
	}
}

// Get забирает одно сообщение без auto-ack.
// Сообщение нужно подтвердить через Ack, иначе после закрытия
// канала RabbitMQ вернёт его в очередь.
func (c *Consumer) Get(ctx context.Context) (*Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var delivery *Delivery
	err := c.conn.WithChannel(func(ch *amqp.Channel) error {
		raw, ok, err := ch.Get(c.queue, false)
		if err != nil {
			return fmt.Errorf("get from %s: %w", c.queue, err)
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrQueueEmpty, c.queue)
		}
		delivery = &Delivery{Body: raw.Body, Raw: raw}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug("received message",
		"queue", c.queue,
		"message_id", delivery.Raw.MessageId,
		"bytes", len(delivery.Body),
	)
	return delivery, nil
}
