package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (a *App) newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration without running it",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.Load()
			if err != nil {
				return err
			}

			out := a.Output()
			out.PrintPipeline(p)
			out.Success(fmt.Sprintf("%s: %d steps OK", a.configPath, len(p.Steps)))
			return nil
		},
	}
}

func (a *App) newConnectorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connectors",
		Short: "List supported step kinds and media",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.Output().PrintBindings(a.registry.Bindings())
			return nil
		},
	}
}
