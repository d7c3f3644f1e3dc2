package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tradelens/screener/internal/scheduler"
	"github.com/tradelens/screener/internal/scheduler/jobs"
)

var (
	schedulerCmd = &cobra.Command{
		Use:   "scheduler",
		Short: "Run the job scheduler",
		Long: `Run the cron scheduler in the foreground.

Jobs:
  daily_metrics - calculates metrics for the latest trading day after
                  market close (DAILY_METRICS_CRON)

Example:
  go run ./cmd/screener scheduler
  go run ./cmd/screener scheduler list
  go run ./cmd/screener scheduler run daily_metrics`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "List registered jobs",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "Run a job immediately, outside its schedule",
		Args:  cobra.ExactArgs(1),
		RunE:  runJobNow,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
}

func initScheduler(a *app) (*scheduler.Scheduler, error) {
	sched := scheduler.New(a.log)

	dailyJob := jobs.NewDailyMetricsJob(a.engine, a.bars, a.cfg, a.log)
	if err := sched.AddJob(dailyJob); err != nil {
		return nil, fmt.Errorf("add daily metrics job: %w", err)
	}

	return sched, nil
}

func runScheduler(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := initScheduler(a)
	if err != nil {
		return err
	}

	sched.Start()

	fmt.Println("Scheduler running. Registered jobs:")
	for _, jobName := range sched.GetAllJobs() {
		fmt.Printf("  - %s\n", jobName)
	}
	fmt.Println("Press Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	sched.Stop()
	printJobHistory(sched)
	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := initScheduler(a)
	if err != nil {
		return err
	}

	fmt.Println("Registered jobs:")
	for _, jobName := range sched.GetAllJobs() {
		fmt.Printf("  - %s\n", jobName)
	}
	return nil
}

func runJobNow(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := initScheduler(a)
	if err != nil {
		return err
	}

	fmt.Printf("Running job: %s\n", jobName)
	if err := sched.RunJob(jobName); err != nil {
		return fmt.Errorf("run job: %w", err)
	}

	printJobHistory(sched)
	return nil
}

func printJobHistory(sched *scheduler.Scheduler) {
	for _, jobName := range sched.GetAllJobs() {
		history, err := sched.GetJobHistory(jobName)
		if err != nil {
			continue
		}

		results := history.GetLatestResults(5)
		if len(results) == 0 {
			continue
		}

		fmt.Printf("\n%s (success rate %.0f%%):\n", jobName, history.GetSuccessRate()*100)
		for _, r := range results {
			status := "ok"
			if !r.Success {
				status = "failed: " + r.Error
			}
			fmt.Printf("  %s  %-8s %s\n",
				r.StartTime.Format("2006-01-02 15:04:05"), r.Duration.Round(0), status)
		}
	}
}
