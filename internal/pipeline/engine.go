package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tradelens/screener/internal/breadth"
	"github.com/tradelens/screener/internal/calc"
	"github.com/tradelens/screener/internal/contracts"
	"github.com/tradelens/screener/internal/ranker"
	"github.com/tradelens/screener/internal/sector"
	"github.com/tradelens/screener/pkg/logger"
)

// Config holds pipeline tuning parameters
type Config struct {
	Workers      int
	LookbackBars int

	// SectorLookbackDays is the RS-Momentum comparison window.
	SectorLookbackDays int
}

// Engine runs the daily metrics calculation: per-security indicators in a
// worker pool, then the cross-sectional stages (ranking, sector
// aggregation, breadth) on the joined results, then a single idempotent
// persist. A failed run can be re-invoked for the same date and converges
// to the same stored state.
type Engine struct {
	bars        contracts.BarRepository
	refs        contracts.ReferenceRepository
	metrics     contracts.MetricsRepository
	sectorRepo  contracts.SectorSnapshotRepository
	breadthRepo contracts.BreadthRepository

	calculator *calc.Calculator
	ranker     *ranker.Ranker
	sectors    *sector.Aggregator
	breadth    *breadth.Calculator

	progress *Broadcaster
	cfg      Config
	logger   *logger.Logger
}

// NewEngine creates a new pipeline engine
func NewEngine(
	bars contracts.BarRepository,
	refs contracts.ReferenceRepository,
	metrics contracts.MetricsRepository,
	sectorRepo contracts.SectorSnapshotRepository,
	breadthRepo contracts.BreadthRepository,
	progress *Broadcaster,
	cfg Config,
	log *logger.Logger,
) *Engine {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Engine{
		bars:        bars,
		refs:        refs,
		metrics:     metrics,
		sectorRepo:  sectorRepo,
		breadthRepo: breadthRepo,
		calculator:  calc.NewCalculator(log),
		ranker:      ranker.NewRanker(log),
		sectors:     sector.NewAggregator(sectorRepo, cfg.SectorLookbackDays, log),
		breadth:     breadth.NewCalculator(breadthRepo, log),
		progress:    progress,
		cfg:         cfg,
		logger:      log.WithField("module", "pipeline"),
	}
}

type calcResult struct {
	symbol string
	row    *contracts.MetricsRow
	err    error
}

// CalculateDaily computes and persists all metrics for one trading date.
func (e *Engine) CalculateDaily(ctx context.Context, date time.Time) (*contracts.RunResult, error) {
	start := time.Now()
	result := &contracts.RunResult{Date: date}

	securities, err := e.refs.GetActiveSecurities(ctx)
	if err != nil {
		return nil, fmt.Errorf("get active securities: %w", err)
	}
	if len(securities) == 0 {
		return nil, contracts.ErrEmptyUniverse
	}

	hasBars, err := e.bars.HasBars(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("check bar data: %w", err)
	}
	if !hasBars {
		return nil, fmt.Errorf("%w: no bars on %s", contracts.ErrNoBarData, date.Format("2006-01-02"))
	}

	e.logger.WithFields(map[string]interface{}{
		"date":       date.Format("2006-01-02"),
		"securities": len(securities),
		"workers":    e.cfg.Workers,
	}).Info("Starting daily metrics calculation")

	rows := e.calculateAll(ctx, date, securities, result)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if err := e.ranker.Rank(rows); err != nil {
		return nil, fmt.Errorf("rank universe: %w", err)
	}
	e.progress.Publish(date, "rank", len(rows), len(rows))

	refsBySymbol := make(map[string]contracts.SecurityRef, len(securities))
	for _, ref := range securities {
		refsBySymbol[ref.Symbol] = ref
	}

	snaps, err := e.sectors.Aggregate(ctx, date, rows, refsBySymbol)
	if err != nil {
		return nil, fmt.Errorf("aggregate sectors: %w", err)
	}
	if err := e.sectorRepo.Upsert(ctx, snaps); err != nil {
		return nil, &contracts.PersistenceError{Op: "upsert sector snapshots", Err: err}
	}
	result.SectorsAggregated = len(snaps)
	e.progress.Publish(date, "sectors", len(snaps), len(snaps))

	breadthSnap, err := e.breadth.Compute(ctx, date, rows)
	if err != nil {
		return nil, fmt.Errorf("compute breadth: %w", err)
	}
	if err := e.breadthRepo.Upsert(ctx, breadthSnap); err != nil {
		return nil, &contracts.PersistenceError{Op: "upsert breadth snapshot", Err: err}
	}
	e.progress.Publish(date, "breadth", 1, 1)

	if err := e.metrics.UpsertRows(ctx, rows); err != nil {
		return nil, err
	}
	result.MetricsCalculated = len(rows)
	e.progress.Publish(date, "persist", len(rows), len(rows))

	result.Duration = time.Since(start)
	e.logger.WithFields(map[string]interface{}{
		"date":     date.Format("2006-01-02"),
		"metrics":  result.MetricsCalculated,
		"sectors":  result.SectorsAggregated,
		"skipped":  result.Skipped,
		"errors":   len(result.Errors),
		"duration": result.Duration.String(),
	}).Info("Daily metrics calculation completed")

	return result, nil
}

// calculateAll runs the per-security indicator stage in a worker pool.
// Per-symbol failures are skip-and-log: one malformed security never
// aborts the batch.
func (e *Engine) calculateAll(ctx context.Context, date time.Time, securities []contracts.SecurityRef, result *contracts.RunResult) []*contracts.MetricsRow {
	jobCh := make(chan contracts.SecurityRef, len(securities))
	resultCh := make(chan calcResult, len(securities))

	var wg sync.WaitGroup
	for i := 0; i < e.cfg.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			e.calcWorker(ctx, workerID, date, jobCh, resultCh)
		}(i)
	}

	for _, sec := range securities {
		jobCh <- sec
	}
	close(jobCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	rows := make([]*contracts.MetricsRow, 0, len(securities))
	done := 0
	for res := range resultCh {
		done++
		result.SecuritiesProcessed++

		if res.err != nil {
			result.Skipped++
			if !errors.Is(res.err, contracts.ErrInsufficientHistory) && !errors.Is(res.err, contracts.ErrNoBarData) {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", res.symbol, res.err))
			}
			continue
		}
		rows = append(rows, res.row)

		if done%100 == 0 {
			e.progress.Publish(date, "calculate", done, len(securities))
		}
	}
	e.progress.Publish(date, "calculate", done, len(securities))

	return rows
}

func (e *Engine) calcWorker(ctx context.Context, workerID int, date time.Time, jobCh <-chan contracts.SecurityRef, resultCh chan<- calcResult) {
	for sec := range jobCh {
		select {
		case <-ctx.Done():
			resultCh <- calcResult{symbol: sec.Symbol, err: ctx.Err()}
			return
		default:
		}

		resultCh <- e.calcOne(ctx, workerID, date, sec)
	}
}

func (e *Engine) calcOne(ctx context.Context, workerID int, date time.Time, sec contracts.SecurityRef) calcResult {
	bars, err := e.bars.GetBars(ctx, sec.Symbol, date, e.cfg.LookbackBars)
	if err != nil {
		e.logger.WithError(err).WithFields(map[string]interface{}{
			"worker": workerID,
			"symbol": sec.Symbol,
		}).Error("Failed to load bars")
		return calcResult{symbol: sec.Symbol, err: err}
	}
	if len(bars) == 0 {
		return calcResult{symbol: sec.Symbol, err: contracts.ErrNoBarData}
	}

	row, err := e.calculator.Calculate(sec.Symbol, bars, date)
	if err != nil {
		var integrityErr *contracts.DataIntegrityError
		switch {
		case errors.As(err, &integrityErr):
			e.logger.WithFields(map[string]interface{}{
				"worker": workerID,
				"symbol": sec.Symbol,
				"reason": integrityErr.Reason,
			}).Warn("Skipping security with malformed data")
		case errors.Is(err, contracts.ErrInsufficientHistory):
			e.logger.WithFields(map[string]interface{}{
				"worker": workerID,
				"symbol": sec.Symbol,
			}).Debug("Skipping security with insufficient history")
		default:
			e.logger.WithError(err).WithFields(map[string]interface{}{
				"worker": workerID,
				"symbol": sec.Symbol,
			}).Error("Failed to calculate metrics")
		}
		return calcResult{symbol: sec.Symbol, err: err}
	}

	return calcResult{symbol: sec.Symbol, row: row}
}

// CalculateRange runs CalculateDaily for every trading day in [from, to].
// Calendar days with no bar data are skipped silently, so weekends and
// holidays need no special handling by callers.
func (e *Engine) CalculateRange(ctx context.Context, from, to time.Time) ([]*contracts.RunResult, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("invalid range: %s after %s", from.Format("2006-01-02"), to.Format("2006-01-02"))
	}

	var results []*contracts.RunResult
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}

		res, err := e.CalculateDaily(ctx, d)
		if err != nil {
			if errors.Is(err, contracts.ErrNoBarData) {
				continue
			}
			return results, fmt.Errorf("calculate %s: %w", d.Format("2006-01-02"), err)
		}
		results = append(results, res)
	}
	return results, nil
}
