package mq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultContentType — Content-Type сообщения, если он не задан.
const DefaultContentType = "application/octet-stream"

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения. Пусто — генерируется.
	ID string

	// ContentType — тип содержимого. Пусто — DefaultContentType.
	ContentType string

	// Body — тело сообщения как есть.
	Body []byte
}

// Publish публикует сообщение в указанный exchange с routing key.
// Сообщение помечается persistent и переживёт рестарт RabbitMQ.
func (p *Publisher) Publish(ctx context.Context, exchange, routingKey string, msg Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.ContentType == "" {
		msg.ContentType = DefaultContentType
	}

	return p.conn.WithChannel(func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			exchange,   // exchange
			routingKey, // routing key
			false,      // mandatory
			false,      // immediate
			amqp.Publishing{
				ContentType:  msg.ContentType,
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Timestamp:    time.Now(),
				Body:         msg.Body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"bytes", len(msg.Body),
		)

		return nil
	})
}
