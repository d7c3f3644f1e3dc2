package sector

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/tradelens/screener/internal/contracts"
	"github.com/tradelens/screener/pkg/logger"
)

// neutralMomentum is the RS-Momentum assigned when no prior snapshot
// exists (cold start or gap in the history).
const neutralMomentum = 100.0

// defaultLookbackDays is the RS-Momentum comparison window in calendar
// days, roughly one trading week.
const defaultLookbackDays = 5

// Aggregator groups a date's rows by sector and computes rotation metrics.
// Momentum is a pure function of two snapshots: today's ratio and the
// one from lookbackDays earlier, read back from immutable history.
type Aggregator struct {
	snapRepo     contracts.SectorSnapshotRepository
	lookbackDays int
	logger       *logger.Logger
}

// NewAggregator creates a new sector aggregator
func NewAggregator(snapRepo contracts.SectorSnapshotRepository, lookbackDays int, log *logger.Logger) *Aggregator {
	if lookbackDays < 1 {
		lookbackDays = defaultLookbackDays
	}
	return &Aggregator{
		snapRepo:     snapRepo,
		lookbackDays: lookbackDays,
		logger:       log,
	}
}

// Aggregate computes one SectorSnapshot per sector for the date's complete
// row set. Symbols without a sector classification are excluded from
// grouping only; their own rows are untouched. The returned snapshots are
// sorted by sector for deterministic persistence.
func (a *Aggregator) Aggregate(ctx context.Context, date time.Time, rows []*contracts.MetricsRow, refs map[string]contracts.SecurityRef) ([]contracts.SectorSnapshot, error) {
	type bucket struct {
		sum   float64
		count int
	}

	buckets := make(map[string]*bucket)
	marketSum := 0.0
	marketCount := 0
	unclassified := 0

	for _, row := range rows {
		if row.Change1MPct == nil {
			continue
		}
		marketSum += *row.Change1MPct
		marketCount++

		ref, ok := refs[row.Symbol]
		if !ok || ref.Sector == "" {
			unclassified++
			continue
		}

		b := buckets[ref.Sector]
		if b == nil {
			b = &bucket{}
			buckets[ref.Sector] = b
		}
		b.sum += *row.Change1MPct
		b.count++
	}

	if marketCount == 0 {
		return nil, fmt.Errorf("sector aggregation: %w", contracts.ErrEmptyUniverse)
	}
	marketAvg := marketSum / float64(marketCount)

	sectors := make([]string, 0, len(buckets))
	for s := range buckets {
		sectors = append(sectors, s)
	}
	sort.Strings(sectors)

	snaps := make([]contracts.SectorSnapshot, 0, len(sectors))
	for _, s := range sectors {
		b := buckets[s]
		avg := b.sum / float64(b.count)
		strength := avg - marketAvg
		rsRatio := 100 + strength

		momentum, err := a.momentum(ctx, s, date, rsRatio)
		if err != nil {
			return nil, fmt.Errorf("sector momentum for %s: %w", s, err)
		}

		snaps = append(snaps, contracts.SectorSnapshot{
			Sector:         s,
			Date:           date,
			MemberCount:    b.count,
			AvgChange1MPct: avg,
			SectorStrength: strength,
			RSRatio:        rsRatio,
			RSMomentum:     momentum,
		})
	}

	a.logger.WithFields(map[string]interface{}{
		"date":         date.Format("2006-01-02"),
		"sectors":      len(snaps),
		"market_avg":   marketAvg,
		"unclassified": unclassified,
	}).Info("Sector aggregation completed")

	return snaps, nil
}

// momentum computes 100 + (rsRatio - prior rsRatio), where prior is the
// snapshot at or nearest before date - lookbackDays. Snapshots newer than
// the lookback cutoff are never used: the comparison window stays fixed
// even though a snapshot exists for every trading day. Neutral when no
// history reaches back that far.
func (a *Aggregator) momentum(ctx context.Context, sector string, date time.Time, rsRatio float64) (float64, error) {
	cutoff := date.AddDate(0, 0, -(a.lookbackDays - 1))
	prior, err := a.snapRepo.GetLatestBefore(ctx, sector, cutoff)
	if err != nil {
		return 0, err
	}
	if prior == nil {
		return neutralMomentum, nil
	}
	return 100 + (rsRatio - prior.RSRatio), nil
}
