package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chargeq/chargeq/app"
	"github.com/chargeq/chargeq/config"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drain the queue of every location flagged for daily reset, once",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		svc, err := app.New(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = svc.Close() }()
		return svc.ResetQueues(context.Background())
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)
}
