package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"crypto-market-pulse/internal/app"
)

var (
	backfillDays   int
	backfillDryRun bool
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Backfill daily samples from historical market data",
	RunE: func(cmd *cobra.Command, args []string) error {
		if backfillDays <= 0 {
			return fmt.Errorf("--days must be greater than zero")
		}

		opts := app.BackfillOptions{
			Days:   backfillDays,
			DryRun: backfillDryRun,
		}

		return getApp().Backfill(cmd.Context(), opts)
	},
}

func init() {
	backfillCmd.Flags().IntVar(&backfillDays, "days", 365, "Number of days of history to backfill")
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "Run without writing to storage")
}
