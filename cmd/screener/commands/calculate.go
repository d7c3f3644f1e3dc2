package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tradelens/screener/internal/contracts"
)

// calculateCmd represents the calculate command
var calculateCmd = &cobra.Command{
	Use:   "calculate",
	Short: "Run the daily metrics calculation",
	Long: `Calculate and persist all metrics for one trading date or a
date range (backfill). Without flags the latest trading day is used.

Re-running a date is safe: rows are replaced whole.

Examples:
  go run ./cmd/screener calculate
  go run ./cmd/screener calculate --date 2025-06-13
  go run ./cmd/screener calculate --from 2025-01-01 --to 2025-06-13`,
	RunE: runCalculate,
}

var (
	calcDate string
	calcFrom string
	calcTo   string
)

func init() {
	rootCmd.AddCommand(calculateCmd)

	calculateCmd.Flags().StringVar(&calcDate, "date", "", "target date (YYYY-MM-DD)")
	calculateCmd.Flags().StringVar(&calcFrom, "from", "", "backfill range start (YYYY-MM-DD)")
	calculateCmd.Flags().StringVar(&calcTo, "to", "", "backfill range end (YYYY-MM-DD)")
}

func runCalculate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	from, to, err := resolveCalcRange(ctx, a)
	if err != nil {
		return err
	}

	results, err := a.engine.CalculateRange(ctx, from, to)
	for _, res := range results {
		printRunResult(res)
	}
	if err != nil {
		return err
	}

	if len(results) == 0 {
		fmt.Println("No trading days in range")
	}
	return nil
}

func resolveCalcRange(ctx context.Context, a *app) (time.Time, time.Time, error) {
	if calcDate != "" {
		d, err := time.Parse("2006-01-02", calcDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --date: %w", err)
		}
		return d, d, nil
	}

	if calcFrom != "" || calcTo != "" {
		if calcFrom == "" || calcTo == "" {
			return time.Time{}, time.Time{}, fmt.Errorf("--from and --to must be used together")
		}
		from, err := time.Parse("2006-01-02", calcFrom)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --from: %w", err)
		}
		to, err := time.Parse("2006-01-02", calcTo)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --to: %w", err)
		}
		return from, to, nil
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	latest, err := a.bars.LatestTradingDay(ctx, today)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("resolve latest trading day: %w", err)
	}
	return latest, latest, nil
}

func printRunResult(res *contracts.RunResult) {
	fmt.Printf("%s  processed=%d  metrics=%d  sectors=%d  skipped=%d  errors=%d  (%s)\n",
		res.Date.Format("2006-01-02"),
		res.SecuritiesProcessed,
		res.MetricsCalculated,
		res.SectorsAggregated,
		res.Skipped,
		len(res.Errors),
		res.Duration.Round(time.Millisecond),
	)
	for _, msg := range res.Errors {
		fmt.Printf("  error: %s\n", msg)
	}
}
