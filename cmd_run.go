package main

import (
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/refset/churn-decision-agent/internal/config"
	"github.com/refset/churn-decision-agent/internal/cycle"
	"github.com/refset/churn-decision-agent/internal/pipeline"
)

// shownErrors caps how many cycle errors the summary prints.
const shownErrors = 5

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run a single decision cycle and print its summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPipeline(cmd.Context(), func(_ *config.Config, p *pipeline.Pipeline, _ *zap.Logger) error {
				res, err := p.RunOnce(cmd.Context())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					if err := printJSON(res); err != nil {
						return err
					}
				} else {
					printSummary(os.Stdout, res)
				}
				if !res.Completed() {
					return fmt.Errorf("cycle %s stopped at %s", res.CycleID, res.Stage)
				}
				return nil
			})
		},
	}
}

func printSummary(w io.Writer, res *cycle.Result) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetTitle("Cycle " + res.CycleID)
	tw.AppendRows([]table.Row{
		{"Stage", res.Stage},
		{"Duration", fmt.Sprintf("%.2fs", res.DurationSeconds)},
		{"Customers analyzed", res.CustomersAnalyzed},
		{"Churn predictions", res.Predictions},
		{"Anomalies detected", res.Anomalies},
		{"Actions executed", res.ActionsExecuted},
		{"Successful actions", res.SuccessfulActions},
		{"Failed actions", res.FailedActions},
		{"Errors", len(res.Errors)},
	})
	tw.Render()

	if len(res.Errors) == 0 {
		return
	}
	fmt.Fprintln(w, "Errors:")
	for i, e := range res.Errors {
		if i == shownErrors {
			fmt.Fprintf(w, "  ... and %d more\n", len(res.Errors)-shownErrors)
			break
		}
		fmt.Fprintf(w, "  - %s\n", e)
	}
}
