package dispatcher

import (
	"errors"
	"testing"

	"github.com/shaiso/dash/internal/domain"
)

func newTestRun(n int) *domain.Run {
	return domain.NewRun(runPipeline(n))
}

func TestRunState_Lifecycle(t *testing.T) {
	var got []string
	s := newRunState(newTestRun(2), func(tr Transition) {
		got = append(got, tr.To.String())
	})

	if s.Current().String() != "Idle" {
		t.Fatalf("expected Idle, got %s", s.Current())
	}

	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	if err := s.Advance(domain.StepResult{Index: 0}); err != nil {
		t.Fatal(err)
	}
	if err := s.Advance(domain.StepResult{Index: 1}); err != nil {
		t.Fatal(err)
	}

	want := []string{"Running(0)", "Running(1)", "Done"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition %d: expected %s, got %s", i, want[i], got[i])
		}
	}

	if s.run.Status != domain.RunStatusDone {
		t.Errorf("expected run DONE, got %s", s.run.Status)
	}
	if s.run.StartedAt == nil || s.run.FinishedAt == nil {
		t.Error("run timestamps should be set")
	}
}

func TestRunState_InvalidTransitions(t *testing.T) {
	s := newRunState(newTestRun(2), nil)

	// Нельзя продвинуться до старта
	if err := s.Advance(domain.StepResult{Index: 0}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("advance from Idle: expected ErrInvalidTransition, got %v", err)
	}

	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	// Повторный старт
	if err := s.Start(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("double start: expected ErrInvalidTransition, got %v", err)
	}

	// Шаг не по порядку
	if err := s.Advance(domain.StepResult{Index: 1}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("skip step: expected ErrInvalidTransition, got %v", err)
	}

	if err := s.Fail(domain.StepResult{Index: 0}, errors.New("boom")); err != nil {
		t.Fatal(err)
	}
	if s.Current().String() != "Failed(0)" {
		t.Errorf("expected Failed(0), got %s", s.Current())
	}

	// Из Failed переходов нет
	if err := s.Advance(domain.StepResult{Index: 0}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("advance from Failed: expected ErrInvalidTransition, got %v", err)
	}
	if s.run.Steps[1].Status != domain.StepStatusSkipped {
		t.Errorf("expected remaining step SKIPPED, got %s", s.run.Steps[1].Status)
	}
}

func TestRunState_EmptyRunCannotStart(t *testing.T) {
	s := newRunState(&domain.Run{}, nil)
	if err := s.Start(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}
