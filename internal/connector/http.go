package connector

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/shaiso/dash/internal/cache"
	"github.com/shaiso/dash/internal/domain"
	"github.com/shaiso/dash/internal/telemetry"
)

const (
	// defaultContentType — Content-Type тела write-запроса, если он не задан в headers.
	defaultContentType = "application/octet-stream"

	// errorBodyLimit — сколько байт тела неуспешного ответа попадает в ошибку.
	errorBodyLimit = 200
)

// HTTPConnector — read/http и write/http.
//
// Config:
//   - url (string): адрес запроса (обязательно)
//   - method (GET|POST|PUT|PATCH|DELETE): default GET для read и POST для write
//   - headers (map[string]string): заголовки запроса
//
// Read кладёт тело ответа в кэш. Write отправляет значение из кэша телом запроса.
// Любой статус вне 2xx даёт ErrNetwork, кэш при этом не изменяется.
type HTTPConnector struct {
	cfg    domain.HTTPConfig
	write  bool
	client *http.Client
}

// NewHTTPReader создаёт HTTPConnector для read-шага.
func NewHTTPReader(req *Request) (Connector, error) {
	return &HTTPConnector{cfg: *req.Step.Connection.HTTP}, nil
}

// NewHTTPWriter создаёт HTTPConnector для write-шага.
func NewHTTPWriter(req *Request) (Connector, error) {
	return &HTTPConnector{cfg: *req.Step.Connection.HTTP, write: true}, nil
}

// Method возвращает метод, с которым будет выполнен запрос.
func (c *HTTPConnector) Method() string {
	if c.cfg.Method != "" {
		return string(c.cfg.Method)
	}
	if c.write {
		return http.MethodPost
	}
	return http.MethodGet
}

// Open создаёт HTTP-клиент. Клиент не переиспользуется между шагами.
// Таймаут задаётся контекстом шага.
func (c *HTTPConnector) Open(context.Context) error {
	c.client = &http.Client{}
	return nil
}

// Execute выполняет HTTP-запрос.
func (c *HTTPConnector) Execute(ctx context.Context, scope *cache.Scope) error {
	var body io.Reader
	if c.write {
		data, ok := scope.Input()
		if !ok {
			return fmt.Errorf("%w: key %q", ErrCacheMiss, scope.InputKey())
		}
		body = bytes.NewReader(data)
	}

	method := c.Method()
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.URL, body)
	if err != nil {
		return fmt.Errorf("%w: create request: %v", ErrNetwork, err)
	}

	for key, value := range c.cfg.Headers {
		req.Header.Set(key, value)
	}
	if c.write && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", defaultContentType)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrNetwork, err)
	}

	telemetry.FromContext(ctx).Debug("http response",
		"method", method,
		"url", c.cfg.URL,
		"status", resp.StatusCode,
		"bytes", len(respBody),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %w", ErrNetwork, &HTTPError{
			Method:     method,
			URL:        c.cfg.URL,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       truncate(string(respBody), errorBodyLimit),
		})
	}

	if !c.write {
		scope.Output(respBody)
	}
	return nil
}

// Close закрывает простаивающие соединения клиента.
func (c *HTTPConnector) Close() error {
	if c.client != nil {
		c.client.CloseIdleConnections()
	}
	return nil
}
