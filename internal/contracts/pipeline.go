package contracts

import "time"

// RunResult summarizes one daily calculation run. Returned to the
// orchestration layer, which owns retry and alerting policy.
type RunResult struct {
	Date                time.Time     `json:"date"`
	SecuritiesProcessed int           `json:"securities_processed"`
	MetricsCalculated   int           `json:"metrics_calculated"`
	SectorsAggregated   int           `json:"sectors_aggregated"`
	Skipped             int           `json:"skipped"`
	Errors              []string      `json:"errors,omitempty"`
	Duration            time.Duration `json:"duration"`
}

// ProgressEvent is emitted by the pipeline as a run advances, for
// operational dashboards watching a backfill.
type ProgressEvent struct {
	Date      time.Time `json:"date"`
	Stage     string    `json:"stage"`
	Done      int       `json:"done"`
	Total     int       `json:"total"`
	Timestamp time.Time `json:"timestamp"`
}
