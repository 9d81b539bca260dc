package engine

import (
	"fmt"

	"github.com/shaiso/dash/internal/domain"
)

// Validate выполняет полную валидацию pipeline.
//
// Проверяет:
// - Наличие шагов
// - Ровно одно направление и одну среду у каждого шага
// - Обязательные поля коннекторов
// - Уникальность имён шагов
// - Что input ссылается на ключ, произведённый одним из предыдущих шагов
//
// Validate вызывается и для pipeline, собранных в коде, поэтому
// повторяет часть проверок парсера.
func Validate(p *domain.Pipeline) error {
	if p == nil || len(p.Steps) == 0 {
		return NewValidationError(-1, "", "steps", "pipeline has no steps", ErrEmptySteps)
	}

	names := make(map[string]bool)
	produced := map[string]bool{domain.CurrentKey: true}

	for i := range p.Steps {
		step := &p.Steps[i]

		if err := ValidateStep(i, step, names, produced); err != nil {
			return err
		}

		if step.Kind.Produces() {
			produced[step.Key(i)] = true
		}
	}
	return nil
}

// ValidateStep валидирует один шаг.
// names — уже встреченные имена, produced — ключи кэша, доступные шагу.
func ValidateStep(index int, step *domain.Step, names, produced map[string]bool) error {
	if step.Name != "" {
		if domain.IsReservedKey(step.Name) {
			return NewValidationError(index, step.Name, "name",
				fmt.Sprintf("name %q is reserved", step.Name), ErrReservedStepName)
		}
		if names[step.Name] {
			return NewValidationError(index, step.Name, "name",
				fmt.Sprintf("duplicate step name: %s", step.Name), ErrDuplicateStepName)
		}
		names[step.Name] = true
	}

	if step.Timeout < 0 {
		return NewValidationError(index, step.Name, "timeout_sec",
			"timeout_sec must not be negative", ErrInvalidTimeout)
	}

	switch step.Kind {
	case domain.StepKindRun:
		if step.Command == "" {
			return missing(index, step, "run")
		}
	case domain.StepKindRead:
		if step.Input != "" {
			return NewValidationError(index, step.Name, "input",
				"read steps do not consume input", ErrStepKind)
		}
		if err := validateConnection(index, step); err != nil {
			return err
		}
	case domain.StepKindWrite:
		if err := validateConnection(index, step); err != nil {
			return err
		}
	default:
		return NewValidationError(index, step.Name, "",
			fmt.Sprintf("unknown step kind %q", step.Kind), ErrStepKind)
	}

	// input "_" без предыдущего read даёт промах кэша во время выполнения, а не ошибку конфигурации
	if step.Input != "" && !produced[step.Input] {
		return NewValidationError(index, step.Name, "input",
			fmt.Sprintf("input %q is not produced by any earlier step", step.Input), ErrUnknownInput)
	}
	return nil
}

// validateConnection проверяет обязательные поля среды шага.
func validateConnection(index int, step *domain.Step) error {
	c := step.Connection

	media := 0
	for _, set := range []bool{c.File != nil, c.HTTP != nil, c.Database != nil, c.AMQP != nil} {
		if set {
			media++
		}
	}
	if media != 1 {
		return NewValidationError(index, step.Name, "",
			fmt.Sprintf("connection declares %d media", media), ErrStepMedium)
	}

	switch {
	case c.File != nil:
		if c.File.Location == "" {
			return missing(index, step, "file.location")
		}
	case c.HTTP != nil:
		if c.HTTP.URL == "" {
			return missing(index, step, "http.url")
		}
		if _, err := domain.ParseHTTPMethod(string(c.HTTP.Method)); err != nil {
			return NewValidationError(index, step.Name, "http.method", err.Error(), ErrInvalidMethod)
		}
	case c.Database != nil:
		if c.Database.Connection == "" {
			return missing(index, step, "postgresql.connection")
		}
		if step.Kind == domain.StepKindRead && c.Database.Query == "" {
			return missing(index, step, "postgresql.query")
		}
	case c.AMQP != nil:
		if c.AMQP.URL == "" {
			return missing(index, step, "amqp.url")
		}
		if step.Kind == domain.StepKindRead && c.AMQP.Queue == "" {
			return missing(index, step, "amqp.queue")
		}
		if step.Kind == domain.StepKindWrite && c.AMQP.RoutingKey == "" {
			return missing(index, step, "amqp.routing_key")
		}
	}
	return nil
}

func missing(index int, step *domain.Step, field string) error {
	return NewValidationError(index, step.Name, field,
		fmt.Sprintf("%s is required", field), ErrMissingField)
}
