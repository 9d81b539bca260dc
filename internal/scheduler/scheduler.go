package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// RunFunc выполняет один run pipeline.
type RunFunc func(ctx context.Context) error

// Scheduler — планировщик, повторно запускающий pipeline по расписанию.
//
// Run выполняются последовательно: следующий срок вычисляется после
// завершения предыдущего run, поэтому пропущенные сроки не догоняются.
type Scheduler struct {
	schedule Schedule
	run      RunFunc
	logger   *slog.Logger
	maxRuns  int

	// now — источник времени
	now func() time.Time

	runs     atomic.Int64
	failures atomic.Int64
}

// Config — конфигурация Scheduler.
type Config struct {
	Schedule Schedule
	Run      RunFunc
	Logger   *slog.Logger
	MaxRuns  int // остановиться после MaxRuns run (0 — без ограничения)
}

// New создаёт новый Scheduler.
func New(cfg Config) (*Scheduler, error) {
	if err := cfg.Schedule.Validate(); err != nil {
		return nil, err
	}
	if cfg.Run == nil {
		return nil, fmt.Errorf("%w: run function is required", ErrInvalidSchedule)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		schedule: cfg.Schedule,
		run:      cfg.Run,
		logger:   logger,
		maxRuns:  cfg.MaxRuns,
		now:      time.Now,
	}, nil
}

// Start запускает цикл планировщика и блокируется до отмены ctx
// или до выполнения MaxRuns. Отмена ctx не считается ошибкой.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("starting scheduler",
		"cron", s.schedule.CronExpr,
		"interval", s.schedule.Interval,
		"timezone", s.schedule.Timezone,
	)

	for {
		nextDue, err := CalculateNextDue(s.schedule, s.now())
		if err != nil {
			return err
		}

		s.logger.Debug("next run scheduled", "next_due_at", nextDue)

		timer := time.NewTimer(time.Until(nextDue))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("scheduler stopped",
				"runs", s.runs.Load(),
				"failures", s.failures.Load(),
			)
			return nil
		case <-timer.C:
		}

		s.Tick(ctx)

		if s.maxRuns > 0 && int(s.runs.Load()) >= s.maxRuns {
			s.logger.Info("scheduler reached max runs", "runs", s.maxRuns)
			return nil
		}
	}
}

// Tick выполняет один run.
// Ошибка run логируется и учитывается, но не останавливает планировщик.
func (s *Scheduler) Tick(ctx context.Context) {
	s.runs.Add(1)

	if err := s.run(ctx); err != nil {
		s.failures.Add(1)
		s.logger.Error("scheduled run failed", "error", err)
		return
	}

	s.logger.Debug("scheduled run completed")
}

// Stats возвращает количество выполненных и упавших run.
func (s *Scheduler) Stats() (runs, failures int64) {
	return s.runs.Load(), s.failures.Load()
}
