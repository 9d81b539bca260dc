package connector

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/dash/internal/cache"
	"github.com/shaiso/dash/internal/domain"
	"github.com/shaiso/dash/internal/mq"
	"github.com/shaiso/dash/internal/telemetry"
)

// ErrBrokerDisconnected — соединение с брокером потеряно после Open.
var ErrBrokerDisconnected = errors.New("broker connection lost")

// AMQPReader — read/amqp: забирает одно сообщение из очереди
// и кладёт его тело в кэш. Сообщение подтверждается только после
// записи в кэш; пустая очередь — ErrNetwork.
type AMQPReader struct {
	cfg  domain.AMQPConfig
	conn *mq.Connection
}

// NewAMQPReader создаёт AMQPReader.
func NewAMQPReader(req *Request) (Connector, error) {
	return &AMQPReader{cfg: *req.Step.Connection.AMQP}, nil
}

// Open подключается к брокеру.
func (c *AMQPReader) Open(ctx context.Context) error {
	conn, err := mq.Dial(ctx, c.cfg.URL, telemetry.FromContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	c.conn = conn
	return nil
}

// Execute получает сообщение.
func (c *AMQPReader) Execute(ctx context.Context, scope *cache.Scope) error {
	if !c.conn.IsConnected() {
		return fmt.Errorf("%w: %w", ErrNetwork, ErrBrokerDisconnected)
	}

	consumer := mq.NewConsumer(c.conn, telemetry.FromContext(ctx), c.cfg.Queue)

	delivery, err := consumer.Get(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	}

	return settle(ctx, scope, delivery.Body, delivery)
}

// Close закрывает соединение. Неподтверждённое сообщение возвращается в очередь.
func (c *AMQPReader) Close() error {
	return closeConn(c.conn)
}

// acknowledger — подтверждение полученного сообщения.
type acknowledger interface {
	Ack() error
	Nack(requeue bool) error
}

// settle кладёт тело сообщения в кэш и подтверждает его.
// Если шаг отменён до записи, сообщение возвращается в очередь,
// а кэш не изменяется.
func settle(ctx context.Context, scope *cache.Scope, body []byte, ack acknowledger) error {
	if err := ctx.Err(); err != nil {
		if nackErr := ack.Nack(true); nackErr != nil {
			telemetry.FromContext(ctx).Warn("failed to requeue message", "error", nackErr)
		}
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	}

	scope.Output(body)

	if err := ack.Ack(); err != nil {
		return fmt.Errorf("%w: ack: %v", ErrNetwork, err)
	}
	return nil
}

// AMQPWriter — write/amqp: публикует значение из кэша
// в exchange с routing key. Пустой exchange — default exchange,
// где routing key совпадает с именем очереди.
type AMQPWriter struct {
	cfg  domain.AMQPConfig
	conn *mq.Connection
}

// NewAMQPWriter создаёт AMQPWriter.
func NewAMQPWriter(req *Request) (Connector, error) {
	return &AMQPWriter{cfg: *req.Step.Connection.AMQP}, nil
}

// Open подключается к брокеру.
func (c *AMQPWriter) Open(ctx context.Context) error {
	conn, err := mq.Dial(ctx, c.cfg.URL, telemetry.FromContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	c.conn = conn
	return nil
}

// Execute публикует сообщение.
func (c *AMQPWriter) Execute(ctx context.Context, scope *cache.Scope) error {
	data, ok := scope.Input()
	if !ok {
		return fmt.Errorf("%w: key %q", ErrCacheMiss, scope.InputKey())
	}

	if !c.conn.IsConnected() {
		return fmt.Errorf("%w: %w", ErrNetwork, ErrBrokerDisconnected)
	}

	publisher := mq.NewPublisher(c.conn, telemetry.FromContext(ctx))
	err := publisher.Publish(ctx, c.cfg.Exchange, c.cfg.RoutingKey, mq.Message{
		ContentType: c.cfg.ContentType,
		Body:        data,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return nil
}

// Close закрывает соединение.
func (c *AMQPWriter) Close() error {
	return closeConn(c.conn)
}

func closeConn(conn *mq.Connection) error {
	if conn == nil {
		return nil
	}
	if err := conn.Close(); err != nil && !errors.Is(err, mq.ErrNoChannel) {
		return fmt.Errorf("%w: close: %v", ErrNetwork, err)
	}
	return nil
}
