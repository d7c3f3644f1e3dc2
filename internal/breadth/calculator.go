package breadth

import (
	"context"
	"time"

	"github.com/tradelens/screener/internal/contracts"
	"github.com/tradelens/screener/pkg/logger"
)

// McClellan smoothing factors: the classic 19-day and 39-day EMAs of net
// advances, i.e. alphas 0.10 and 0.05.
const (
	mcClellanFastAlpha = 0.10
	mcClellanSlowAlpha = 0.05
)

// Calculator computes market-wide breadth statistics from a date's
// complete row set. Output is one BreadthSnapshot per date, its own
// entity, not a field stashed on some arbitrary security's row.
type Calculator struct {
	repo   contracts.BreadthRepository
	logger *logger.Logger
}

// NewCalculator creates a new breadth calculator
func NewCalculator(repo contracts.BreadthRepository, log *logger.Logger) *Calculator {
	return &Calculator{
		repo:   repo,
		logger: log,
	}
}

// Compute derives the BreadthSnapshot for date. The McClellan EMAs are
// carried forward incrementally from the prior date's snapshot, seeded
// with today's net advances on cold start.
func (c *Calculator) Compute(ctx context.Context, date time.Time, rows []*contracts.MetricsRow) (*contracts.BreadthSnapshot, error) {
	if len(rows) == 0 {
		return nil, contracts.ErrEmptyUniverse
	}

	snap := &contracts.BreadthSnapshot{
		Date:         date,
		TotalSymbols: len(rows),
	}

	var above20, with20, above50, with50, above200, with200 int

	for _, row := range rows {
		if row.Change1DPct != nil {
			switch {
			case *row.Change1DPct > 0:
				snap.AdvanceCount++
			case *row.Change1DPct < 0:
				snap.DeclineCount++
			default:
				snap.UnchangedCount++
			}
		}

		// Symbols with a null MA are excluded from that denominator.
		if row.SMA20 != nil {
			with20++
			if row.Close > *row.SMA20 {
				above20++
			}
		}
		if row.SMA50 != nil {
			with50++
			if row.Close > *row.SMA50 {
				above50++
			}
		}
		if row.SMA200 != nil {
			with200++
			if row.Close > *row.SMA200 {
				above200++
			}
		}

		if row.IsNew20DHigh {
			snap.NewHighs20D++
		}
		if row.IsNew20DLow {
			snap.NewLows20D++
		}
	}

	// Zero decliners means the ratio is undefined, not infinity.
	if snap.DeclineCount > 0 {
		ratio := float64(snap.AdvanceCount) / float64(snap.DeclineCount)
		snap.AdvanceDecline = &ratio
	}

	snap.PctAboveSMA20 = pctOf(above20, with20)
	snap.PctAboveSMA50 = pctOf(above50, with50)
	snap.PctAboveSMA200 = pctOf(above200, with200)

	if err := c.mcClellan(ctx, snap); err != nil {
		return nil, err
	}

	c.logger.WithFields(map[string]interface{}{
		"date":      date.Format("2006-01-02"),
		"advances":  snap.AdvanceCount,
		"declines":  snap.DeclineCount,
		"new_highs": snap.NewHighs20D,
		"new_lows":  snap.NewLows20D,
	}).Info("Breadth snapshot computed")

	return snap, nil
}

// mcClellan updates the oscillator state from the prior snapshot.
// Recomputing the same date is stable because the prior date's persisted
// snapshot, not today's, seeds the EMAs.
func (c *Calculator) mcClellan(ctx context.Context, snap *contracts.BreadthSnapshot) error {
	net := snap.AdvanceCount - snap.DeclineCount
	snap.NetAdvances = net

	prior, err := c.repo.GetLatestBefore(ctx, snap.Date)
	if err != nil {
		return err
	}

	netF := float64(net)
	var ema19, ema39, sum float64

	if prior == nil || prior.McClellanEMA19 == nil || prior.McClellanEMA39 == nil {
		// Cold start: seed both EMAs with today's reading.
		ema19 = netF
		ema39 = netF
		sum = 0
	} else {
		ema19 = *prior.McClellanEMA19 + mcClellanFastAlpha*(netF-*prior.McClellanEMA19)
		ema39 = *prior.McClellanEMA39 + mcClellanSlowAlpha*(netF-*prior.McClellanEMA39)
		if prior.McClellanSum != nil {
			sum = *prior.McClellanSum
		}
	}

	osc := ema19 - ema39
	sum += osc

	snap.McClellanEMA19 = &ema19
	snap.McClellanEMA39 = &ema39
	snap.McClellanOsc = &osc
	snap.McClellanSum = &sum
	return nil
}

// pctOf returns done/total*100, nil on an empty denominator
func pctOf(count, total int) *float64 {
	if total == 0 {
		return nil
	}
	pct := float64(count) / float64(total) * 100
	return &pct
}
