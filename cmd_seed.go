package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/refset/churn-decision-agent/internal/warehouse"
)

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the warehouse schema and load demo customers and predictions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			store, err := warehouse.Open(cmd.Context(), cfg.Warehouse.ConnString, log, cfg.Pipeline.WindowDays)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Seed(cmd.Context(), time.Now()); err != nil {
				return err
			}
			fmt.Printf("Seeded %d demo customers\n", len(warehouse.DemoCustomers))
			return nil
		},
	}
}
