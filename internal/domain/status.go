package domain

// RunStatus — состояние выполнения pipeline.
//
// Жизненный цикл:
//
//	IDLE → RUNNING → DONE
//	             ↘ FAILED
type RunStatus string

const (
	// RunStatusIdle — run создан, шаги ещё не запускались.
	RunStatusIdle RunStatus = "IDLE"

	// RunStatusRunning — выполняется шаг с текущим индексом.
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusDone — все шаги выполнены успешно.
	RunStatusDone RunStatus = "DONE"

	// RunStatusFailed — один из шагов завершился ошибкой.
	RunStatusFailed RunStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный (run завершён).
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusDone, RunStatusFailed:
		return true
	default:
		return false
	}
}

// StepStatus — статус отдельного шага в рамках run.
type StepStatus string

const (
	// StepStatusPending — шаг ещё не запускался.
	StepStatusPending StepStatus = "PENDING"

	// StepStatusSucceeded — шаг завершился успешно.
	StepStatusSucceeded StepStatus = "SUCCEEDED"

	// StepStatusFailed — шаг завершился ошибкой.
	StepStatusFailed StepStatus = "FAILED"

	// StepStatusSkipped — шаг не запускался из-за падения предыдущего.
	StepStatusSkipped StepStatus = "SKIPPED"
)
