package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "screener",
	Short: "Daily market metrics and screening engine",
	Long: `Screener CLI

Batch pipeline that converts daily OHLCV bars into per-security
technical metrics, cross-sectional rankings, sector rotation snapshots
and market breadth, then serves the named screens over HTTP.

Examples:
  go run ./cmd/screener api
  go run ./cmd/screener calculate --date 2025-06-13
  go run ./cmd/screener calculate --from 2025-01-01 --to 2025-06-13
  go run ./cmd/screener scheduler
  go run ./cmd/screener status`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
