package dispatcher

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/dash/internal/domain"
)

// State — состояние state machine одного run.
//
//	Idle → Running(0) → ... → Running(n-1) → Done
//	                Running(i) → Failed(i)
type State struct {
	Status domain.RunStatus
	Index  int // индекс текущего (или упавшего) шага; -1 для Idle и Done
}

// String возвращает "Idle", "Running(2)", "Done" или "Failed(2)".
func (s State) String() string {
	switch s.Status {
	case domain.RunStatusIdle:
		return "Idle"
	case domain.RunStatusRunning:
		return fmt.Sprintf("Running(%d)", s.Index)
	case domain.RunStatusDone:
		return "Done"
	case domain.RunStatusFailed:
		return fmt.Sprintf("Failed(%d)", s.Index)
	default:
		return string(s.Status)
	}
}

// Transition — переход state machine.
type Transition struct {
	RunID uuid.UUID
	From  State
	To    State
	Err   error // ошибка шага для перехода в Failed
}

// Observer получает переходы в порядке их выполнения.
// Вызывается синхронно из диспетчера.
type Observer func(Transition)

// runState — состояние выполнения одного run в памяти.
//
// runState создаётся диспетчером в начале run и отбрасывается вместе
// с кэшем после его завершения. Переходы только вперёд: обратного
// перехода и повторного выполнения шага нет.
type runState struct {
	run      *domain.Run
	state    State
	observer Observer

	mu sync.RWMutex
}

// newRunState создаёт runState в состоянии Idle.
func newRunState(run *domain.Run, observer Observer) *runState {
	return &runState{
		run:      run,
		state:    State{Status: domain.RunStatusIdle, Index: -1},
		observer: observer,
	}
}

// Current возвращает текущее состояние.
func (s *runState) Current() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Start выполняет переход Idle → Running(0).
func (s *runState) Start() error {
	s.mu.Lock()
	if s.state.Status != domain.RunStatusIdle || len(s.run.Steps) == 0 {
		err := s.invalid("start")
		s.mu.Unlock()
		return err
	}

	s.run.MarkRunning()
	t := s.set(State{Status: domain.RunStatusRunning, Index: 0}, nil)
	s.mu.Unlock()

	s.notify(t)
	return nil
}

// Advance фиксирует успех текущего шага и выполняет переход
// Running(i) → Running(i+1) или Running(last) → Done.
func (s *runState) Advance(result domain.StepResult) error {
	s.mu.Lock()
	if s.state.Status != domain.RunStatusRunning || result.Index != s.state.Index {
		err := s.invalid("advance")
		s.mu.Unlock()
		return err
	}

	result.Status = domain.StepStatusSucceeded
	s.run.Steps[result.Index] = result

	var t Transition
	if next := s.state.Index + 1; next < len(s.run.Steps) {
		t = s.set(State{Status: domain.RunStatusRunning, Index: next}, nil)
	} else {
		s.run.MarkDone()
		t = s.set(State{Status: domain.RunStatusDone, Index: -1}, nil)
	}
	s.mu.Unlock()

	s.notify(t)
	return nil
}

// Fail фиксирует ошибку текущего шага и выполняет переход Running(i) → Failed(i).
// Оставшиеся шаги помечаются SKIPPED.
func (s *runState) Fail(result domain.StepResult, stepErr error) error {
	s.mu.Lock()
	if s.state.Status != domain.RunStatusRunning || result.Index != s.state.Index {
		err := s.invalid("fail")
		s.mu.Unlock()
		return err
	}

	result.Status = domain.StepStatusFailed
	result.Error = stepErr.Error()
	s.run.Steps[result.Index] = result
	s.run.MarkFailed(stepErr.Error())

	t := s.set(State{Status: domain.RunStatusFailed, Index: result.Index}, stepErr)
	s.mu.Unlock()

	s.notify(t)
	return nil
}

// set меняет состояние. Вызывается под захваченным мьютексом.
func (s *runState) set(to State, err error) Transition {
	t := Transition{RunID: s.run.ID, From: s.state, To: to, Err: err}
	s.state = to
	return t
}

// notify уведомляет observer. Вызывается без мьютекса.
func (s *runState) notify(t Transition) {
	if s.observer != nil {
		s.observer(t)
	}
}

func (s *runState) invalid(op string) error {
	return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, op, s.state)
}
