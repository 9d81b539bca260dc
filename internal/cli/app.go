package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/dash/internal/connector"
	"github.com/shaiso/dash/internal/dispatcher"
	"github.com/shaiso/dash/internal/domain"
	"github.com/shaiso/dash/internal/engine"
	"github.com/shaiso/dash/internal/telemetry"
)

// Коды завершения процесса.
const (
	ExitOK          = 0
	ExitStepFailure = 1
	ExitConfigError = 2
)

// ErrUsage — некорректные аргументы командной строки.
var ErrUsage = errors.New("usage error")

// App — общее состояние команд: значения persistent flags и зависимости.
type App struct {
	configPath  string
	stepTimeout time.Duration
	jsonOutput  bool
	metricsFile string

	stdout   io.Writer
	stderr   io.Writer
	logger   *slog.Logger
	registry *connector.Registry
}

// Options — зависимости App.
type Options struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger

	// Registry — реестр коннекторов (default: connector.DefaultRegistry()).
	Registry *connector.Registry
}

// NewApp создаёт App.
func NewApp(opts Options) *App {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := opts.Registry
	if registry == nil {
		registry = connector.DefaultRegistry()
	}
	return &App{
		stdout:   opts.Stdout,
		stderr:   opts.Stderr,
		logger:   logger,
		registry: registry,
	}
}

// Output создаёт Output с учётом флага --json.
func (a *App) Output() *Output {
	return NewOutput(a.stdout, a.stderr, a.jsonOutput)
}

// Load загружает pipeline из --config.
func (a *App) Load() (*domain.Pipeline, error) {
	p, err := engine.Load(a.configPath, nil)
	if err != nil {
		return nil, err
	}
	if err := a.dispatcher(nil).Check(p); err != nil {
		return nil, err
	}
	return p, nil
}

// dispatcher создаёт Dispatcher с флагами App.
func (a *App) dispatcher(metrics *telemetry.Metrics) *dispatcher.Dispatcher {
	return dispatcher.New(dispatcher.Config{
		Registry:    a.registry,
		StepTimeout: a.stepTimeout,
		Metrics:     metrics,
		Logger:      a.logger,
	})
}

// NewRootCmd создаёт корневую команду dash.
// Без подкоманды dash выполняет pipeline, как dash run.
func (a *App) NewRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "dash",
		Short:         "dash — declarative pipeline runner",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.Run(cmd.Context())
		},
	}

	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	})

	flags := cmd.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", engine.DefaultConfigPath, "Path to pipeline configuration")
	flags.DurationVar(&a.stepTimeout, "step-timeout", 0, "Default per-step timeout (0 disables)")
	flags.BoolVar(&a.jsonOutput, "json", false, "Output in JSON format")
	flags.StringVar(&a.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file after the run")

	cmd.AddCommand(
		a.newRunCmd(),
		a.newValidateCmd(),
		a.newScheduleCmd(),
		a.newConnectorsCmd(),
	)

	return cmd
}

// Execute выполняет команду с аргументами args и возвращает код завершения.
func (a *App) Execute(ctx context.Context, args []string, version string) int {
	cmd := a.NewRootCmd(version)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	if err != nil {
		a.Output().Error(err.Error())
	}
	return ExitCode(err)
}

// ExitCode возвращает код завершения для ошибки команды.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, engine.ErrInvalidConfig), errors.Is(err, ErrUsage):
		return ExitConfigError
	default:
		return ExitStepFailure
	}
}

// usageArgs оборачивает ошибки валидации позиционных аргументов.
func usageArgs(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			return fmt.Errorf("%w: %v", ErrUsage, err)
		}
		return nil
	}
}
