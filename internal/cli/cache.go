package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mj-status/forecaster/internal/app"
	"github.com/mj-status/forecaster/internal/forecast"
)

// NewCacheCommand returns the artifact cache maintenance commands.
func NewCacheCommand(a **app.App) (cmd *cobra.Command) {
	cmd = &cobra.Command{
		Use:   "cache",
		Short: "Manage the artifact cache",
	}

	var prefix string
	purge := &cobra.Command{
		Use:     "purge",
		Short:   "Drop cached artifacts under a key prefix",
		Example: `forecaster cache purge --prefix models/`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (*a).Cache == nil {
				return errors.New("artifact cache is not enabled")
			}
			n, err := (*a).Cache.Invalidate(cmd.Context(), prefix)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "purged %d cached artifacts\n", n)
			return err
		},
	}
	purge.Flags().StringVar(&prefix, "prefix", "", "Key prefix to drop (empty drops every artifact)")

	cmd.AddCommand(purge)
	return cmd
}

// NewModelsCommand returns the command that lists the forecast models.
func NewModelsCommand() (cmd *cobra.Command) {
	return &cobra.Command{
		Use:         "models",
		Short:       "List the forecast models",
		Annotations: map[string]string{standalone: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range forecast.Names() {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), name); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func modelList() string {
	return strings.Join(forecast.Names(), ", ")
}
