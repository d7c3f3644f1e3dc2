package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/tradelens/screener/internal/contracts"
	"github.com/tradelens/screener/internal/pipeline"
	"github.com/tradelens/screener/pkg/config"
	"github.com/tradelens/screener/pkg/logger"
)

// DailyMetricsJob runs the metrics pipeline after market close
type DailyMetricsJob struct {
	engine *pipeline.Engine
	bars   contracts.BarRepository
	config *config.Config
	logger *logger.Logger
}

// NewDailyMetricsJob creates a new daily metrics job
func NewDailyMetricsJob(engine *pipeline.Engine, bars contracts.BarRepository, cfg *config.Config, log *logger.Logger) *DailyMetricsJob {
	return &DailyMetricsJob{
		engine: engine,
		bars:   bars,
		config: cfg,
		logger: log,
	}
}

// Name returns the job name
func (j *DailyMetricsJob) Name() string {
	return "daily_metrics"
}

// Schedule returns the cron schedule expression
func (j *DailyMetricsJob) Schedule() string {
	return j.config.Scheduler.DailyMetricsCron
}

// Run calculates metrics for the latest trading day
func (j *DailyMetricsJob) Run(ctx context.Context) error {
	today := time.Now().UTC().Truncate(24 * time.Hour)

	target, err := j.bars.LatestTradingDay(ctx, today)
	if err != nil {
		return fmt.Errorf("resolve latest trading day: %w", err)
	}

	j.logger.WithField("date", target.Format("2006-01-02")).Info("Starting scheduled metrics calculation")

	result, err := j.engine.CalculateDaily(ctx, target)
	if err != nil {
		return fmt.Errorf("calculate daily metrics: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"date":     result.Date.Format("2006-01-02"),
		"metrics":  result.MetricsCalculated,
		"skipped":  result.Skipped,
		"errors":   len(result.Errors),
		"duration": result.Duration.String(),
	}).Info("Scheduled metrics calculation completed")

	return nil
}
