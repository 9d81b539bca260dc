package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultDialTimeout — таймаут установки TCP-соединения.
const DefaultDialTimeout = 10 * time.Second

// ErrNoChannel — канал не открыт или соединение уже закрыто.
var ErrNoChannel = errors.New("no channel available")

// Connection — обёртка над AMQP соединением и одним каналом.
//
// Особенности:
// - Потокобезопасный доступ к каналу
// - Повторный Close безопасен
type Connection struct {
	url    string
	logger *slog.Logger

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel
	closed  bool
}

// Dial создаёт соединение с RabbitMQ и открывает канал.
//
// amqp091 не принимает context при подключении, поэтому отмена
// учитывается только до начала dial; время dial ограничено DefaultDialTimeout.
func Dial(ctx context.Context, url string, logger *slog.Logger) (*Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := amqp.DialConfig(url, amqp.Config{
		Dial: amqp.DefaultDial(DefaultDialTimeout),
	})
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	logger.Debug("connected to RabbitMQ")

	return &Connection{
		url:     url,
		logger:  logger,
		conn:    conn,
		channel: ch,
	}, nil
}

// Channel возвращает текущий AMQP канал.
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// WithChannel выполняет функцию с текущим каналом.
func (c *Connection) WithChannel(fn func(ch *amqp.Channel) error) error {
	c.mu.RLock()
	ch := c.channel
	closed := c.closed
	c.mu.RUnlock()

	if ch == nil || closed {
		return ErrNoChannel
	}

	return fn(ch)
}

// IsConnected проверяет, установлено ли соединение.
// Для nil возвращает false.
func (c *Connection) IsConnected() bool {
	if c == nil {
		return false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.conn == nil || c.closed {
		return false
	}

	return !c.conn.IsClosed()
}

// Close закрывает канал и соединение.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error

	if c.channel != nil {
		if err := c.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	c.logger.Debug("connection closed")
	return nil
}
