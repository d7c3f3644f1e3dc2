package sector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradelens/screener/internal/contracts"
	"github.com/tradelens/screener/pkg/logger"
)

type fakeSnapRepo struct {
	snaps []contracts.SectorSnapshot
}

func (f *fakeSnapRepo) Upsert(ctx context.Context, snaps []contracts.SectorSnapshot) error {
	return nil
}

func (f *fakeSnapRepo) GetByDate(ctx context.Context, date time.Time) ([]contracts.SectorSnapshot, error) {
	return nil, nil
}

func (f *fakeSnapRepo) GetLatestBefore(ctx context.Context, sector string, date time.Time) (*contracts.SectorSnapshot, error) {
	var best *contracts.SectorSnapshot
	for i := range f.snaps {
		s := &f.snaps[i]
		if s.Sector == sector && s.Date.Before(date) && (best == nil || s.Date.After(best.Date)) {
			best = s
		}
	}
	return best, nil
}

func (f *fakeSnapRepo) GetTail(ctx context.Context, sector string, date time.Time, n int) ([]contracts.SectorSnapshot, error) {
	return nil, nil
}

func fptr(v float64) *float64 {
	return &v
}

func mkRow(symbol string, change1m *float64) *contracts.MetricsRow {
	return &contracts.MetricsRow{Symbol: symbol, Change1MPct: change1m}
}

func mkRefs(sectors map[string]string) map[string]contracts.SecurityRef {
	refs := make(map[string]contracts.SecurityRef)
	for symbol, sector := range sectors {
		refs[symbol] = contracts.SecurityRef{Symbol: symbol, Sector: sector}
	}
	return refs
}

func TestAggregate_SectorStrength(t *testing.T) {
	a := NewAggregator(&fakeSnapRepo{}, 5, logger.NewNop())
	date := time.Date(2025, 6, 13, 0, 0, 0, 0, time.UTC)

	rows := []*contracts.MetricsRow{
		mkRow("A", fptr(10.0)), // IT
		mkRow("B", fptr(6.0)),  // IT
		mkRow("C", fptr(2.0)),  // Energy
	}
	refs := mkRefs(map[string]string{"A": "IT", "B": "IT", "C": "Energy"})

	snaps, err := a.Aggregate(context.Background(), date, rows, refs)
	require.NoError(t, err)
	require.Len(t, snaps, 2)

	// market average is (10+6+2)/3 = 6
	energy, it := snaps[0], snaps[1]
	assert.Equal(t, "Energy", energy.Sector)
	assert.Equal(t, 1, energy.MemberCount)
	assert.InDelta(t, 2.0, energy.AvgChange1MPct, 1e-9)
	assert.InDelta(t, -4.0, energy.SectorStrength, 1e-9)
	assert.InDelta(t, 96.0, energy.RSRatio, 1e-9)

	assert.Equal(t, "IT", it.Sector)
	assert.Equal(t, 2, it.MemberCount)
	assert.InDelta(t, 8.0, it.AvgChange1MPct, 1e-9)
	assert.InDelta(t, 2.0, it.SectorStrength, 1e-9)
	assert.InDelta(t, 102.0, it.RSRatio, 1e-9)
}

func TestAggregate_MomentumColdStart(t *testing.T) {
	a := NewAggregator(&fakeSnapRepo{}, 5, logger.NewNop())
	date := time.Date(2025, 6, 13, 0, 0, 0, 0, time.UTC)

	rows := []*contracts.MetricsRow{mkRow("A", fptr(5.0))}
	refs := mkRefs(map[string]string{"A": "IT"})

	snaps, err := a.Aggregate(context.Background(), date, rows, refs)
	require.NoError(t, err)
	require.Len(t, snaps, 1)

	// no prior snapshot: neutral momentum, never an error
	assert.InDelta(t, 100.0, snaps[0].RSMomentum, 1e-9)
}

func TestAggregate_MomentumFromPriorSnapshot(t *testing.T) {
	date := time.Date(2025, 6, 13, 0, 0, 0, 0, time.UTC)
	repo := &fakeSnapRepo{
		snaps: []contracts.SectorSnapshot{
			{Sector: "IT", Date: date.AddDate(0, 0, -5), RSRatio: 98.0},
		},
	}
	a := NewAggregator(repo, 5, logger.NewNop())

	rows := []*contracts.MetricsRow{mkRow("A", fptr(5.0))}
	refs := mkRefs(map[string]string{"A": "IT"})

	snaps, err := a.Aggregate(context.Background(), date, rows, refs)
	require.NoError(t, err)
	require.Len(t, snaps, 1)

	// lone sector: rsRatio 100, prior 98 -> momentum 102
	assert.InDelta(t, 100.0, snaps[0].RSRatio, 1e-9)
	assert.InDelta(t, 102.0, snaps[0].RSMomentum, 1e-9)
}

func TestAggregate_MomentumUsesConfiguredLookback(t *testing.T) {
	date := time.Date(2025, 6, 13, 0, 0, 0, 0, time.UTC)
	repo := &fakeSnapRepo{
		snaps: []contracts.SectorSnapshot{
			{Sector: "IT", Date: date.AddDate(0, 0, -5), RSRatio: 90.0},
			{Sector: "IT", Date: date.AddDate(0, 0, -1), RSRatio: 99.0},
		},
	}
	a := NewAggregator(repo, 5, logger.NewNop())

	rows := []*contracts.MetricsRow{mkRow("A", fptr(5.0))}
	refs := mkRefs(map[string]string{"A": "IT"})

	snaps, err := a.Aggregate(context.Background(), date, rows, refs)
	require.NoError(t, err)
	require.Len(t, snaps, 1)

	// comparison anchors five days back, not on yesterday's snapshot:
	// 100 + (100 - 90), never 100 + (100 - 99)
	assert.InDelta(t, 110.0, snaps[0].RSMomentum, 1e-9)
}

func TestAggregate_MomentumNeutralWhenHistoryTooShallow(t *testing.T) {
	date := time.Date(2025, 6, 13, 0, 0, 0, 0, time.UTC)
	repo := &fakeSnapRepo{
		snaps: []contracts.SectorSnapshot{
			// only yesterday exists, inside the lookback window
			{Sector: "IT", Date: date.AddDate(0, 0, -1), RSRatio: 99.0},
		},
	}
	a := NewAggregator(repo, 5, logger.NewNop())

	rows := []*contracts.MetricsRow{mkRow("A", fptr(5.0))}
	refs := mkRefs(map[string]string{"A": "IT"})

	snaps, err := a.Aggregate(context.Background(), date, rows, refs)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.InDelta(t, 100.0, snaps[0].RSMomentum, 1e-9)
}

func TestAggregate_UnclassifiedSymbolsExcluded(t *testing.T) {
	a := NewAggregator(&fakeSnapRepo{}, 5, logger.NewNop())
	date := time.Date(2025, 6, 13, 0, 0, 0, 0, time.UTC)

	rows := []*contracts.MetricsRow{
		mkRow("A", fptr(4.0)),
		mkRow("B", fptr(8.0)), // no sector
	}
	refs := mkRefs(map[string]string{"A": "IT", "B": ""})

	snaps, err := a.Aggregate(context.Background(), date, rows, refs)
	require.NoError(t, err)
	require.Len(t, snaps, 1)

	// B still moves the market average even without a sector
	assert.Equal(t, "IT", snaps[0].Sector)
	assert.Equal(t, 1, snaps[0].MemberCount)
	assert.InDelta(t, 4.0-6.0, snaps[0].SectorStrength, 1e-9)
}

func TestAggregate_NullChangesSkipped(t *testing.T) {
	a := NewAggregator(&fakeSnapRepo{}, 5, logger.NewNop())
	date := time.Date(2025, 6, 13, 0, 0, 0, 0, time.UTC)

	rows := []*contracts.MetricsRow{
		mkRow("A", fptr(4.0)),
		mkRow("B", nil), // too young for the 1M window
	}
	refs := mkRefs(map[string]string{"A": "IT", "B": "IT"})

	snaps, err := a.Aggregate(context.Background(), date, rows, refs)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, 1, snaps[0].MemberCount)
}

func TestAggregate_EmptyUniverse(t *testing.T) {
	a := NewAggregator(&fakeSnapRepo{}, 5, logger.NewNop())
	date := time.Date(2025, 6, 13, 0, 0, 0, 0, time.UTC)

	rows := []*contracts.MetricsRow{mkRow("A", nil)}
	_, err := a.Aggregate(context.Background(), date, rows, mkRefs(map[string]string{"A": "IT"}))
	assert.ErrorIs(t, err, contracts.ErrEmptyUniverse)
}
