package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show data and system status",
	Long: `Show database health, the latest persisted metrics date and
its row counts.

Example:
  go run ./cmd/screener status`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	health, err := a.db.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	fmt.Printf("database: healthy (%s, %d/%d conns)\n",
		health.ResponseTime.Round(time.Millisecond),
		health.Stats.TotalConns, health.Stats.MaxConns)

	latest, err := a.metricsStore.LatestDate(ctx)
	if err != nil {
		fmt.Println("metrics:  no data")
		return nil
	}

	rows, err := a.metricsStore.GetByDate(ctx, latest)
	if err != nil {
		return fmt.Errorf("load metrics for %s: %w", latest.Format("2006-01-02"), err)
	}
	fmt.Printf("metrics:  %s (%d securities)\n", latest.Format("2006-01-02"), len(rows))

	snaps, err := a.sectorRepo.GetByDate(ctx, latest)
	if err != nil {
		return fmt.Errorf("load sector snapshots: %w", err)
	}
	fmt.Printf("sectors:  %d snapshots\n", len(snaps))

	breadthSnap, err := a.breadthRepo.GetByDate(ctx, latest)
	if err != nil {
		return fmt.Errorf("load breadth snapshot: %w", err)
	}
	if breadthSnap == nil {
		fmt.Println("breadth:  missing")
	} else {
		fmt.Printf("breadth:  %d advancing / %d declining (of %d)\n",
			breadthSnap.AdvanceCount, breadthSnap.DeclineCount, breadthSnap.TotalSymbols)
	}

	return nil
}
