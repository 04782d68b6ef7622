package main

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/refset/churn-decision-agent/internal/journal"
)

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent cycles from the local journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			j, err := journal.Open(cmd.Context(), cfg.Pipeline.JournalPath)
			if err != nil {
				return err
			}
			defer j.Close()

			cycles, err := j.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cycles)
			}
			if len(cycles) == 0 {
				fmt.Println("No cycles recorded")
				return nil
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Cycle", "Started", "Duration", "Stage", "Predictions", "Anomalies", "Actions", "OK", "Failed", "Errors"})
			for _, c := range cycles {
				tw.AppendRow(table.Row{
					c.CycleID,
					c.CycleStart.Local().Format(time.DateTime),
					fmt.Sprintf("%.1fs", c.DurationSeconds),
					c.Stage,
					c.Predictions,
					c.Anomalies,
					c.ActionsExecuted,
					c.SuccessfulActions,
					c.FailedActions,
					len(c.Errors),
				})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of cycles to show")
	return cmd
}
