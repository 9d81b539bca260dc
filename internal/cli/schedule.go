package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/dash/internal/scheduler"
	"github.com/shaiso/dash/internal/telemetry"
)

// shutdownTimeout — таймаут остановки HTTP-сервера метрик.
const shutdownTimeout = 5 * time.Second

func (a *App) newScheduleCmd() *cobra.Command {
	var (
		sched       scheduler.Schedule
		metricsAddr string
		maxRuns     int
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the pipeline repeatedly on a cron schedule or interval",
		Long: `Schedule runs the pipeline until interrupted. The configuration is
reloaded before every run, and every run gets a fresh cache.
A failed run is logged and the loop continues.`,
		Example: `  dash schedule --cron "*/5 * * * *"
  dash schedule --cron "0 9 * * 1-5" --timezone Europe/Moscow
  dash schedule --every 30s --metrics-addr :9100`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := sched.Validate(); err != nil {
				return fmt.Errorf("%w: %v", ErrUsage, err)
			}

			// Конфигурация с ошибкой не запускается даже один раз
			if _, err := a.Load(); err != nil {
				return err
			}

			return a.Schedule(cmd.Context(), sched, metricsAddr, maxRuns)
		},
	}

	cmd.Flags().StringVar(&sched.CronExpr, "cron", "", "Cron expression (5 fields or @hourly/@daily)")
	cmd.Flags().DurationVar(&sched.Interval, "every", 0, "Fixed interval between runs")
	cmd.Flags().StringVar(&sched.Timezone, "timezone", "", "IANA timezone for --cron (default UTC)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve /metrics and /healthz on this address")
	cmd.Flags().IntVar(&maxRuns, "max-runs", 0, "Stop after this many runs (0 runs forever)")

	return cmd
}

// Schedule запускает pipeline по расписанию до отмены ctx.
func (a *App) Schedule(ctx context.Context, sched scheduler.Schedule, metricsAddr string, maxRuns int) error {
	metrics := telemetry.NewMetrics(true)
	d := a.dispatcher(metrics)

	runOnce := func(ctx context.Context) error {
		p, err := a.Load()
		if err != nil {
			return err
		}
		run, err := d.Run(ctx, p)
		if run != nil && a.jsonOutput {
			a.Output().JSON(run)
		}
		return err
	}

	s, err := scheduler.New(scheduler.Config{
		Schedule: sched,
		Run:      runOnce,
		Logger:   a.logger,
		MaxRuns:  maxRuns,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}

	ctx, stop := context.WithCancelCause(ctx)
	defer stop(nil)

	if metricsAddr != "" {
		ln, err := net.Listen("tcp", metricsAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", metricsAddr, err)
		}
		srv := a.serveMetrics(ctx, ln, metrics, stop)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	err = s.Start(ctx)
	if cause := context.Cause(ctx); err == nil && errors.Is(cause, ErrMetricsServer) {
		err = cause
	}

	if a.metricsFile != "" {
		if werr := metrics.WriteTextfile(a.metricsFile); werr != nil {
			a.logger.Warn("failed to write metrics", "path", a.metricsFile, "error", werr)
		}
	}
	return err
}

// ErrMetricsServer — HTTP-сервер метрик завершился с ошибкой.
var ErrMetricsServer = errors.New("metrics server failed")

// serveMetrics запускает HTTP-сервер с /metrics и /healthz на ln.
// Ошибка сервера после старта логируется и останавливает планировщик через stop.
func (a *App) serveMetrics(ctx context.Context, ln net.Listener, metrics *telemetry.Metrics, stop context.CancelCauseFunc) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	a.logger.Info("serving metrics", "addr", ln.Addr().String())
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", "error", err)
			stop(fmt.Errorf("%w: %v", ErrMetricsServer, err))
		}
	}()

	return srv
}
