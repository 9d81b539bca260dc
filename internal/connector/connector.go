package connector

import (
	"context"

	"github.com/shaiso/dash/internal/cache"
	"github.com/shaiso/dash/internal/domain"
)

// Connector — реализация одной пары (направление, среда).
//
// Диспетчер вызывает методы строго по порядку: Open, Execute, Close.
// Close вызывается всегда, даже если Open или Execute вернули ошибку,
// и должен быть безопасен для неоткрытого коннектора.
type Connector interface {
	// Open захватывает ресурсы: соединения, клиенты.
	Open(ctx context.Context) error

	// Execute выполняет шаг. Читает и пишет кэш только через scope.
	// Коннектор должен прекращать работу при ctx.Done().
	// Логгер шага доступен через telemetry.FromContext(ctx).
	Execute(ctx context.Context, scope *cache.Scope) error

	// Close освобождает ресурсы.
	Close() error
}

// Request — входные данные для создания коннектора.
type Request struct {
	// Index — индекс шага в pipeline.
	Index int

	// Step — конфигурация шага.
	Step *domain.Step

	// Env — окружение pipeline (без учёта Step.Env).
	Env map[string]string
}

// NewRequest создаёт новый Request.
func NewRequest(index int, step *domain.Step, env map[string]string) *Request {
	return &Request{
		Index: index,
		Step:  step,
		Env:   env,
	}
}

// Factory создаёт коннектор для шага.
type Factory func(req *Request) (Connector, error)
