package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shaiso/dash/internal/cache"
	"github.com/shaiso/dash/internal/connector"
	"github.com/shaiso/dash/internal/domain"
	"github.com/shaiso/dash/internal/engine"
	"github.com/shaiso/dash/internal/telemetry"
)

// Dispatcher выполняет pipeline.
//
// Dispatcher:
//   - Валидирует pipeline до запуска первого шага
//   - Выбирает коннектор по направлению и среде шага
//   - Выполняет шаги строго последовательно, по одному
//   - Передаёт каждому шагу ограниченный доступ к кэшу
//   - Останавливает run на первой ошибке
//
// Один Dispatcher можно использовать для многих run,
// в том числе конкурентно: состояние run не хранится в Dispatcher.
type Dispatcher struct {
	registry    *connector.Registry
	stepTimeout time.Duration
	metrics     *telemetry.Metrics
	observer    Observer
	logger      *slog.Logger
}

// Config — конфигурация Dispatcher.
type Config struct {
	// Registry — реестр коннекторов (default: connector.DefaultRegistry()).
	Registry *connector.Registry

	// StepTimeout — таймаут шага, если у шага не задан свой. 0 — без таймаута.
	StepTimeout time.Duration

	// Metrics — Prometheus метрики (опционально).
	Metrics *telemetry.Metrics

	// Observer — получатель переходов state machine (опционально).
	Observer Observer

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Dispatcher.
func New(cfg Config) *Dispatcher {
	registry := cfg.Registry
	if registry == nil {
		registry = connector.DefaultRegistry()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		registry:    registry,
		stepTimeout: cfg.StepTimeout,
		metrics:     cfg.Metrics,
		observer:    cfg.Observer,
		logger:      logger,
	}
}

// Run выполняет pipeline с новым кэшем и уничтожает кэш по завершении.
//
// Ошибка конфигурации возвращается с nil *domain.Run: ни один шаг
// не был запущен. Ошибка шага возвращается как *StepError вместе с
// run в статусе FAILED.
func (d *Dispatcher) Run(ctx context.Context, p *domain.Pipeline) (*domain.Run, error) {
	c := cache.New()
	defer c.Close()

	return d.Execute(ctx, p, c)
}

// Execute выполняет pipeline с переданным кэшем.
// Кэш не закрывается: им владеет вызывающий.
func (d *Dispatcher) Execute(ctx context.Context, p *domain.Pipeline, c *cache.Cache) (*domain.Run, error) {
	if err := d.Check(p); err != nil {
		return nil, err
	}

	run := domain.NewRun(p)
	state := newRunState(run, d.observer)
	logger := telemetry.WithRunID(d.logger, run.ID.String())

	if err := state.Start(); err != nil {
		return nil, err
	}
	logger.Info("run started", "steps", len(p.Steps))

	for i := range p.Steps {
		step := &p.Steps[i]
		result, err := d.runStep(ctx, logger, p, i, step, c)
		if err != nil {
			if ferr := state.Fail(result, err); ferr != nil {
				return run, ferr
			}
			d.metrics.ObserveRun(string(run.Status), *run.FinishedAt)
			logger.Error("run failed",
				"step_index", i,
				"error_kind", Kind(err),
				"error", err,
				"duration", run.Duration(),
			)
			return run, err
		}

		if err := state.Advance(result); err != nil {
			return run, err
		}
	}

	d.metrics.ObserveRun(string(run.Status), *run.FinishedAt)
	logger.Info("run completed", "duration", run.Duration())
	return run, nil
}

// Check проверяет pipeline до запуска: валидация и наличие
// коннектора для каждого шага. Любая ошибка оборачивает engine.ErrInvalidConfig.
func (d *Dispatcher) Check(p *domain.Pipeline) error {
	if err := engine.Validate(p); err != nil {
		return err
	}

	for i := range p.Steps {
		step := &p.Steps[i]
		binding := connector.BindingOf(step)
		if !d.registry.Has(binding) {
			return engine.NewValidationError(i, step.Name, string(step.Kind),
				fmt.Sprintf("no connector for %s", binding), connector.ErrUnsupported)
		}
	}
	return nil
}

// runStep выполняет один шаг и возвращает его результат.
// Ошибка всегда *StepError.
func (d *Dispatcher) runStep(
	ctx context.Context,
	logger *slog.Logger,
	p *domain.Pipeline,
	index int,
	step *domain.Step,
	c *cache.Cache,
) (domain.StepResult, error) {
	binding := connector.BindingOf(step)
	logger = telemetry.WithStep(logger, index, step.Name, binding.String())

	result := domain.StepResult{
		Index:  index,
		Name:   step.Name,
		Kind:   step.Kind,
		Medium: step.Medium(),
	}

	output := ""
	if step.Kind.Produces() {
		output = step.Key(index)
		result.Key = output
	}
	scope := c.Scope(step.InputKey(), output)

	logger.Debug("step started", "input", scope.InputKey(), "output", output)

	start := time.Now()
	err := d.execute(ctx, logger, connector.NewRequest(index, step, p.Env), scope)
	result.Duration = time.Since(start)

	if err != nil {
		stepErr := &StepError{
			Index:   index,
			Name:    step.Name,
			Binding: binding.String(),
			Kind:    Kind(err),
			Err:     err,
		}
		d.metrics.ObserveStep(string(step.Kind), string(result.Medium), string(domain.StepStatusFailed), result.Duration)
		logger.Warn("step failed", "error_kind", stepErr.Kind, "error", err, "duration", result.Duration)
		return result, stepErr
	}

	if output != "" {
		if data, ok := c.Get(output); ok {
			result.Bytes = len(data)
			d.metrics.ObserveCacheEntry(result.Bytes)
		}
	}

	d.metrics.ObserveStep(string(step.Kind), string(result.Medium), string(domain.StepStatusSucceeded), result.Duration)
	logger.Info("step completed", "duration", result.Duration, "bytes", result.Bytes)
	return result, nil
}

// execute запускает коннектор отдельной единицей работы и дожидается
// её завершения. Паника коннектора превращается в ErrStepPanic.
func (d *Dispatcher) execute(ctx context.Context, logger *slog.Logger, req *connector.Request, scope *cache.Scope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ctx, cancel := d.stepContext(ctx, req.Step)
	defer cancel()

	conn, err := d.registry.Build(req)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("step panicked", "panic", r, "stack", string(debug.Stack()))
				err = fmt.Errorf("%w: %v", ErrStepPanic, r)
			}
		}()
		return lifecycle(telemetry.WithLogger(gctx, logger), logger, conn, scope)
	})

	err = g.Wait()
	if err != nil && ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
		// коннектор мог вернуть ошибку транспорта без причины отмены
		err = fmt.Errorf("%w (%w)", err, ctx.Err())
	}
	return err
}

// lifecycle вызывает Open, Execute и Close коннектора.
// Close вызывается всегда; его ошибка только логируется.
func lifecycle(ctx context.Context, logger *slog.Logger, conn connector.Connector, scope *cache.Scope) error {
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Warn("failed to close connector", "error", err)
		}
	}()

	if err := conn.Open(ctx); err != nil {
		return err
	}
	return conn.Execute(ctx, scope)
}

// stepContext возвращает контекст с таймаутом шага.
func (d *Dispatcher) stepContext(ctx context.Context, step *domain.Step) (context.Context, context.CancelFunc) {
	timeout := step.Timeout
	if timeout == 0 {
		timeout = d.stepTimeout
	}
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
