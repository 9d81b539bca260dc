package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/dash/internal/connector"
	"github.com/shaiso/dash/internal/engine"
)

// Ошибки диспетчера.
var (
	// ErrStepPanic — коннектор запаниковал во время выполнения.
	ErrStepPanic = errors.New("step panicked")

	// ErrInvalidTransition — недопустимый переход state machine.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// ErrorKind — класс ошибки шага.
type ErrorKind string

const (
	KindConfig         ErrorKind = "ConfigError"
	KindIO             ErrorKind = "IoError"
	KindNetwork        ErrorKind = "NetworkError"
	KindDatabase       ErrorKind = "DatabaseError"
	KindProcess        ErrorKind = "ProcessError"
	KindCacheMiss      ErrorKind = "CacheMissError"
	KindNotImplemented ErrorKind = "NotImplementedError"
	KindTimeout        ErrorKind = "TimeoutError"
	KindCanceled       ErrorKind = "CanceledError"
	KindPanic          ErrorKind = "PanicError"
	KindUnknown        ErrorKind = "Error"
)

// kinds — порядок важен: ошибка коннектора может одновременно
// оборачивать context.DeadlineExceeded, и класс коннектора приоритетнее.
var kinds = []struct {
	err  error
	kind ErrorKind
}{
	{engine.ErrInvalidConfig, KindConfig},
	{connector.ErrUnsupported, KindConfig},
	{connector.ErrCacheMiss, KindCacheMiss},
	{connector.ErrNotImplemented, KindNotImplemented},
	{connector.ErrIO, KindIO},
	{connector.ErrNetwork, KindNetwork},
	{connector.ErrDatabase, KindDatabase},
	{connector.ErrProcess, KindProcess},
	{ErrStepPanic, KindPanic},
	{context.DeadlineExceeded, KindTimeout},
	{context.Canceled, KindCanceled},
}

// Kind классифицирует ошибку.
func Kind(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}

// StepError — ошибка шага с контекстом: индекс, имя и класс ошибки.
type StepError struct {
	Index   int       // индекс шага
	Name    string    // имя шага, если задано
	Binding string    // "kind/medium"
	Kind    ErrorKind // класс ошибки
	Err     error     // исходная ошибка
}

// Error реализует интерфейс error.
func (e *StepError) Error() string {
	label := fmt.Sprintf("step #%d", e.Index)
	if e.Name != "" {
		label += fmt.Sprintf(" %q", e.Name)
	}
	return fmt.Sprintf("%s (%s) failed: %s: %v", label, e.Binding, e.Kind, e.Err)
}

// Unwrap возвращает исходную ошибку.
func (e *StepError) Unwrap() error {
	return e.Err
}
