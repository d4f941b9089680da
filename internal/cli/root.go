// Package cli implements the forecaster command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mj-status/forecaster/internal/app"
	"github.com/mj-status/forecaster/pkg/config"
	"github.com/mj-status/forecaster/pkg/logger"
)

// standalone marks commands that need neither config nor stores.
const standalone = "standalone"

// NewCommand returns the root command of the forecaster CLI.
func NewCommand() (cmd *cobra.Command) {
	var configPath string
	var verbose bool
	var a *app.App

	cmd = &cobra.Command{
		Use:          "forecaster",
		Short:        "status metric forecaster",
		Long:         `forecaster extracts status metrics and alert events into daily artifacts, fits forecast models over them and predicts the next day.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[standalone] != "" {
				return nil
			}
			cfg, err := config.LoadFile(configPath)
			if err != nil {
				return err
			}
			if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath); err != nil {
				return err
			}
			if verbose {
				if err := logger.SetLevel("debug"); err != nil {
					return err
				}
			}
			a, err = app.New(cmd.Context(), cfg)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a != nil {
				a.Close()
			}
			logger.Sync()
		},
	}

	cmd.AddCommand(
		NewRunCommand(&a, "fit", "Fit a model over the configured window of days"),
		NewRunCommand(&a, "predict", "Predict the next day with a fitted model"),
		NewExtractCommand(&a),
		NewIngestCommand(&a),
		NewCacheCommand(&a),
		NewModelsCommand(),
	)

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default searches ./config.yaml, ./config, /etc/forecaster)")

	return cmd
}

func printJSON(w io.Writer, v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(output))
	return err
}
