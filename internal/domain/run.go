package domain

import (
	"time"

	"github.com/google/uuid"
)

// Run — одно выполнение pipeline.
//
// Run живёт только в памяти процесса: кэш и результаты шагов
// уничтожаются вместе с ним.
type Run struct {
	// ID — уникальный идентификатор run (попадает в логи как run_id).
	ID uuid.UUID `json:"id"`

	// Status — текущий статус выполнения.
	Status RunStatus `json:"status"`

	// StartedAt — время начала выполнения.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения (успешного или с ошибкой).
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Error — текст ошибки, если run завершился с FAILED.
	Error string `json:"error,omitempty"`

	// Steps — результаты шагов в порядке конфигурации.
	Steps []StepResult `json:"steps"`
}

// StepResult — результат выполнения одного шага.
type StepResult struct {
	Index    int           `json:"index"`
	Name     string        `json:"name,omitempty"`
	Kind     StepKind      `json:"kind"`
	Medium   Medium        `json:"medium"`
	Key      string        `json:"key,omitempty"`
	Status   StepStatus    `json:"status"`
	Duration time.Duration `json:"duration_ns"`
	Bytes    int           `json:"bytes"`
	Error    string        `json:"error,omitempty"`
}

// NewRun создаёт run в статусе IDLE с результатами PENDING для каждого шага.
func NewRun(p *Pipeline) *Run {
	steps := make([]StepResult, len(p.Steps))
	for i := range p.Steps {
		step := &p.Steps[i]
		steps[i] = StepResult{
			Index:  i,
			Name:   step.Name,
			Kind:   step.Kind,
			Medium: step.Medium(),
			Status: StepStatusPending,
		}
		if step.Kind.Produces() {
			steps[i].Key = step.Key(i)
		}
	}
	return &Run{
		ID:     uuid.New(),
		Status: RunStatusIdle,
		Steps:  steps,
	}
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// IsFinished возвращает true, если run завершён (в любом статусе).
func (r *Run) IsFinished() bool {
	return r.Status.IsTerminal()
}

// MarkRunning переводит run в статус RUNNING.
func (r *Run) MarkRunning() {
	now := time.Now()
	r.Status = RunStatusRunning
	r.StartedAt = &now
}

// MarkDone переводит run в статус DONE.
func (r *Run) MarkDone() {
	now := time.Now()
	r.Status = RunStatusDone
	r.FinishedAt = &now
}

// MarkFailed переводит run в статус FAILED и помечает оставшиеся шаги пропущенными.
func (r *Run) MarkFailed(errMsg string) {
	now := time.Now()
	r.Status = RunStatusFailed
	r.FinishedAt = &now
	r.Error = errMsg
	for i := range r.Steps {
		if r.Steps[i].Status == StepStatusPending {
			r.Steps[i].Status = StepStatusSkipped
		}
	}
}
