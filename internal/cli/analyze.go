package cli

import (
	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run a one-shot full market analysis and print the report",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Analyze(cmd.Context())
	},
}
