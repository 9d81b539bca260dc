package engine

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig — общий sentinel для всех ошибок конфигурации.
// Любая ошибка загрузки, рендеринга или валидации оборачивает его.
var ErrInvalidConfig = errors.New("invalid pipeline config")

// Ошибки валидации pipeline.
var (
	// ErrEmptySteps — pipeline не содержит шагов.
	ErrEmptySteps = errors.New("pipeline has no steps")

	// ErrStepKind — у шага не ровно одно из read/write/run.
	ErrStepKind = errors.New("step must have exactly one of read, write, run")

	// ErrStepMedium — у read/write не ровно одна среда.
	ErrStepMedium = errors.New("connection must have exactly one of file, http, postgresql, amqp")

	// ErrMissingField — не заполнено обязательное поле.
	ErrMissingField = errors.New("required field is missing")

	// ErrDuplicateStepName — несколько шагов с одинаковым именем.
	ErrDuplicateStepName = errors.New("duplicate step name")

	// ErrReservedStepName — имя шага совпадает с зарезервированным ключом кэша.
	ErrReservedStepName = errors.New("reserved step name")

	// ErrUnknownInput — input ссылается на ключ, который не производит ни один предыдущий шаг.
	ErrUnknownInput = errors.New("input refers to unknown key")

	// ErrInvalidMethod — неизвестный HTTP-метод.
	ErrInvalidMethod = errors.New("invalid http method")

	// ErrInvalidTimeout — отрицательный таймаут.
	ErrInvalidTimeout = errors.New("invalid timeout")
)

// Ошибки рендеринга шаблонов.
var (
	// ErrTemplateRender — ошибка рендеринга шаблона.
	ErrTemplateRender = errors.New("template render failed")

	// ErrTemplateParse — ошибка парсинга шаблона.
	ErrTemplateParse = errors.New("template parse failed")
)

// ValidationError — ошибка валидации с контекстом.
type ValidationError struct {
	StepIndex int    // индекс шага, -1 для ошибок уровня pipeline
	StepName  string // имя шага, если задано
	Field     string // поле, вызвавшее ошибку
	Message   string // описание ошибки
	Err       error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	switch {
	case e.StepIndex < 0:
		return e.Message
	case e.StepName != "":
		return fmt.Sprintf("step #%d %q: %s", e.StepIndex, e.StepName, e.Message)
	default:
		return fmt.Sprintf("step #%d: %s", e.StepIndex, e.Message)
	}
}

// Unwrap возвращает базовую ошибку и ErrInvalidConfig.
func (e *ValidationError) Unwrap() []error {
	return []error{e.Err, ErrInvalidConfig}
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(index int, name, field, message string, err error) *ValidationError {
	return &ValidationError{
		StepIndex: index,
		StepName:  name,
		Field:     field,
		Message:   message,
		Err:       err,
	}
}
