package cli

import (
	"github.com/spf13/cobra"

	"github.com/mj-status/forecaster/internal/app"
	"github.com/mj-status/forecaster/internal/flow"
)

// NewRunCommand returns the fit or predict command.
func NewRunCommand(a **app.App, action, short string) (cmd *cobra.Command) {
	var model string
	var start, end, steps int
	var full bool

	cmd = &cobra.Command{
		Use:     action,
		Short:   short,
		Example: `forecaster ` + action + ` --model dense --start 28 --end 0`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := flow.RunRequest{
				Model:  model,
				Action: flow.Action{Type: action},
				Steps:  steps,
			}
			if cmd.Flag("start").Changed {
				req.Action.Start = &start
			}
			if cmd.Flag("end").Changed {
				req.Action.End = &end
			}
			if err := req.Validate(); err != nil {
				return err
			}

			res, err := (*a).Flow.Run(cmd.Context(), req)
			if err != nil {
				return err
			}
			if !full {
				res.Prediction = nil
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringVar(&model, "model", "", "Forecast model: "+modelList())
	cmd.Flags().IntVar(&start, "start", 0, "Oldest day offset back from today")
	cmd.Flags().IntVar(&end, "end", 0, "Newest day offset back from today")
	cmd.Flags().IntVar(&steps, "steps", 0, "Forecast horizon in samples (0 uses the configured default)")
	cmd.Flags().BoolVar(&full, "full", false, "Include the predicted table in the output")

	if err := cmd.MarkFlagRequired("model"); err != nil {
		panic(err)
	}

	return cmd
}
