package connector

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/shaiso/dash/internal/cache"
	"github.com/shaiso/dash/internal/domain"
)

// closeTimeout — таймаут корректного закрытия соединения с БД.
const closeTimeout = 5 * time.Second

// PostgresReader — read/postgresql.
//
// Открывает новое соединение на каждый шаг, выполняет запрос
// и кладёт в кэш первую колонку первой строки в текстовом виде.
// Запрос выполняется по simple protocol, поэтому сервер возвращает
// значения в текстовом формате независимо от типа колонки.
type PostgresReader struct {
	cfg  domain.DatabaseConfig
	conn *pgx.Conn
}

// NewPostgresReader создаёт PostgresReader.
func NewPostgresReader(req *Request) (Connector, error) {
	return &PostgresReader{cfg: *req.Step.Connection.Database}, nil
}

// Open подключается к БД по DSN.
func (c *PostgresReader) Open(ctx context.Context) error {
	cfg, err := pgx.ParseConfig(c.cfg.Connection)
	if err != nil {
		return fmt.Errorf("%w: parse dsn: %v", ErrDatabase, err)
	}

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("%w: connect: %v", ErrDatabase, err)
	}
	c.conn = conn
	return nil
}

// Execute выполняет запрос.
func (c *PostgresReader) Execute(ctx context.Context, scope *cache.Scope) error {
	value, err := c.firstValue(ctx)
	if err != nil {
		return err
	}

	scope.Output(value)
	return nil
}

// firstValue возвращает копию первой колонки первой строки.
func (c *PostgresReader) firstValue(ctx context.Context) ([]byte, error) {
	rows, err := c.conn.Query(ctx, c.cfg.Query, pgx.QueryExecModeSimpleProtocol)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", ErrDatabase, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("%w: query: %v", ErrDatabase, err)
		}
		return nil, fmt.Errorf("%w: empty result set", ErrDatabase)
	}

	raw := rows.RawValues()
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: result has no columns", ErrDatabase)
	}
	if raw[0] == nil {
		return nil, fmt.Errorf("%w: first column is NULL", ErrDatabase)
	}

	// RawValues переиспользует буфер соединения
	value := make([]byte, len(raw[0]))
	copy(value, raw[0])

	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: query: %v", ErrDatabase, err)
	}
	return value, nil
}

// Close закрывает соединение.
func (c *PostgresReader) Close() error {
	if c.conn == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	err := c.conn.Close(ctx)
	c.conn = nil
	if err != nil {
		return fmt.Errorf("%w: close: %v", ErrDatabase, err)
	}
	return nil
}

// PostgresWriter — write/postgresql. Не реализован: Open всегда возвращает ErrNotImplemented.
type PostgresWriter struct{}

// NewPostgresWriter создаёт PostgresWriter.
func NewPostgresWriter(*Request) (Connector, error) {
	return &PostgresWriter{}, nil
}

// Open возвращает ErrNotImplemented.
func (c *PostgresWriter) Open(context.Context) error {
	return fmt.Errorf("%w: write to %s", ErrNotImplemented, domain.MediumPostgres)
}

// Execute возвращает ErrNotImplemented.
func (c *PostgresWriter) Execute(context.Context, *cache.Scope) error {
	return fmt.Errorf("%w: write to %s", ErrNotImplemented, domain.MediumPostgres)
}

// Close ничего не делает.
func (c *PostgresWriter) Close() error { return nil }
