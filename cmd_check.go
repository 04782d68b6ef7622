package main

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/refset/churn-decision-agent/internal/config"
	"github.com/refset/churn-decision-agent/internal/pipeline"
)

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Probe every component the cycle depends on",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPipeline(cmd.Context(), func(_ *config.Config, p *pipeline.Pipeline, _ *zap.Logger) error {
				results := p.Check(cmd.Context())
				if viper.GetBool("json") {
					if err := printJSON(results); err != nil {
						return err
					}
				} else {
					tw := table.NewWriter()
					tw.SetOutputMirror(os.Stdout)
					tw.AppendHeader(table.Row{"", "Component", "Status", "Detail"})
					for _, r := range results {
						mark := "✅"
						if r.Status != pipeline.CheckSuccess {
							mark = "❌"
						}
						tw.AppendRow(table.Row{mark, r.Component, r.Status, r.Detail})
					}
					tw.Render()
				}

				failed := 0
				for _, r := range results {
					if r.Status != pipeline.CheckSuccess {
						failed++
					}
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d components failed", failed, len(results))
				}
				return nil
			})
		},
	}
}
