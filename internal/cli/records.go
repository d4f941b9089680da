package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mj-status/forecaster/internal/app"
	"github.com/mj-status/forecaster/internal/ingestion"
)

// NewExtractCommand returns the command that writes daily artifacts from stored records.
func NewExtractCommand(a **app.App) (cmd *cobra.Command) {
	var date string

	cmd = &cobra.Command{
		Use:     "extract",
		Short:   "Write daily metric and event artifacts from stored records",
		Example: `forecaster extract --date 2023-05-01_2023-05-15`,
		RunE: func(cmd *cobra.Command, args []string) error {
			before, after, err := ingestion.ParseWindow(date, time.Now())
			if err != nil {
				return err
			}
			days, err := (*a).Extractor.Extract(cmd.Context(), before, after)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), days)
		},
	}

	cmd.Flags().StringVar(&date, "date", "yesterday", `Window to extract: "yesterday", "today" or "YYYY-MM-DD_YYYY-MM-DD"`)

	return cmd
}

// NewIngestCommand returns the command that loads record batches from JSON files.
func NewIngestCommand(a **app.App) (cmd *cobra.Command) {
	cmd = &cobra.Command{
		Use:   "ingest FILE...",
		Short: "Store raw event and metric records from JSON batch files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var results []*ingestion.Result
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				var batch ingestion.Batch
				if err := json.Unmarshal(data, &batch); err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				res, err := (*a).Processor.Ingest(cmd.Context(), batch)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				results = append(results, res)
			}
			return printJSON(cmd.OutOrStdout(), results)
		},
	}

	return cmd
}
