package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/shaiso/dash/internal/telemetry"
)

func (a *App) newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once",
		Long: `Run loads the configuration, renders ${{ env.X }} expressions and
executes the steps in order. The first failing step aborts the run.

Exit codes: 0 success, 1 step failure, 2 configuration error.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.Run(cmd.Context())
		},
	}
}

// Run выполняет pipeline один раз и выводит итог.
func (a *App) Run(ctx context.Context) error {
	p, err := a.Load()
	if err != nil {
		return err
	}

	var metrics *telemetry.Metrics
	if a.metricsFile != "" {
		metrics = telemetry.NewMetrics(false)
	}

	run, runErr := a.dispatcher(metrics).Run(ctx, p)
	if run != nil {
		a.Output().PrintRun(run)
	}

	if metrics != nil {
		if err := metrics.WriteTextfile(a.metricsFile); err != nil {
			a.logger.Warn("failed to write metrics", "path", a.metricsFile, "error", err)
		}
	}

	return runErr
}
