package screener

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradelens/screener/internal/contracts"
	"github.com/tradelens/screener/pkg/logger"
)

var testDate = time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC)

func fp(v float64) *float64 { return &v }
func ip(v int) *int         { return &v }

func sp(s contracts.Stage) *contracts.Stage { return &s }

type fakeMetricsRepo struct {
	rows   []*contracts.MetricsRow
	latest time.Time
}

func (f *fakeMetricsRepo) UpsertRows(ctx context.Context, rows []*contracts.MetricsRow) error {
	return nil
}

func (f *fakeMetricsRepo) GetByDate(ctx context.Context, date time.Time) ([]*contracts.MetricsRow, error) {
	var out []*contracts.MetricsRow
	for _, r := range f.rows {
		if r.Date.Equal(date) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeMetricsRepo) GetBySymbolAndDate(ctx context.Context, symbol string, date time.Time) (*contracts.MetricsRow, error) {
	for _, r := range f.rows {
		if r.Symbol == symbol && r.Date.Equal(date) {
			return r, nil
		}
	}
	return nil, nil
}

func (f *fakeMetricsRepo) LatestDate(ctx context.Context) (time.Time, error) {
	return f.latest, nil
}

type fakeRefRepo struct {
	refs []contracts.SecurityRef
}

func (f *fakeRefRepo) GetActiveSecurities(ctx context.Context) ([]contracts.SecurityRef, error) {
	return f.refs, nil
}

type fakeSectorRepo struct {
	snaps []contracts.SectorSnapshot
	tails map[string][]contracts.SectorSnapshot
}

func (f *fakeSectorRepo) Upsert(ctx context.Context, snaps []contracts.SectorSnapshot) error {
	return nil
}

func (f *fakeSectorRepo) GetByDate(ctx context.Context, date time.Time) ([]contracts.SectorSnapshot, error) {
	var out []contracts.SectorSnapshot
	for _, s := range f.snaps {
		if s.Date.Equal(date) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSectorRepo) GetLatestBefore(ctx context.Context, sector string, date time.Time) (*contracts.SectorSnapshot, error) {
	return nil, nil
}

func (f *fakeSectorRepo) GetTail(ctx context.Context, sector string, date time.Time, n int) ([]contracts.SectorSnapshot, error) {
	return f.tails[sector], nil
}

type fakeBreadthRepo struct {
	snap *contracts.BreadthSnapshot
}

func (f *fakeBreadthRepo) Upsert(ctx context.Context, snap *contracts.BreadthSnapshot) error {
	return nil
}

func (f *fakeBreadthRepo) GetByDate(ctx context.Context, date time.Time) (*contracts.BreadthSnapshot, error) {
	return f.snap, nil
}

func (f *fakeBreadthRepo) GetLatestBefore(ctx context.Context, date time.Time) (*contracts.BreadthSnapshot, error) {
	return nil, nil
}

// row builds a metrics row with sensible neutral defaults; tests override
// only the fields a screen inspects.
func row(symbol string, mutate func(*contracts.MetricsRow)) *contracts.MetricsRow {
	r := &contracts.MetricsRow{
		Symbol: symbol,
		Date:   testDate,
		Close:  100,
	}
	if mutate != nil {
		mutate(r)
	}
	return r
}

func newTestEngine(rows []*contracts.MetricsRow, refs []contracts.SecurityRef) *Engine {
	return newTestEngineFull(rows, refs, nil, nil)
}

func newTestEngineFull(
	rows []*contracts.MetricsRow,
	refs []contracts.SecurityRef,
	snaps *fakeSectorRepo,
	breadth *fakeBreadthRepo,
) *Engine {
	if snaps == nil {
		snaps = &fakeSectorRepo{}
	}
	if breadth == nil {
		breadth = &fakeBreadthRepo{}
	}
	return NewEngine(
		&fakeMetricsRepo{rows: rows, latest: testDate},
		&fakeRefRepo{refs: refs},
		snaps,
		breadth,
		nil,
		logger.NewNop(),
	)
}

func TestQuery_UnknownScreen(t *testing.T) {
	e := newTestEngine([]*contracts.MetricsRow{row("AAA", nil)}, nil)

	_, err := e.Query(context.Background(), "no-such-screen", Filters{}, testDate)
	assert.ErrorIs(t, err, ErrUnknownScreen)
}

func TestQuery_ZeroDateUsesLatest(t *testing.T) {
	rows := []*contracts.MetricsRow{
		row("AAA", func(r *contracts.MetricsRow) {
			r.Change1DPct = fp(5)
			r.RVOL = fp(2)
		}),
	}
	e := newTestEngine(rows, nil)

	result, err := e.Query(context.Background(), ScreenBreakouts, Filters{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, testDate, result.Date)
}

func TestBreakouts_DefaultThresholds(t *testing.T) {
	rows := []*contracts.MetricsRow{
		row("BIG", func(r *contracts.MetricsRow) { r.Change1DPct = fp(8); r.RVOL = fp(3) }),
		row("MID", func(r *contracts.MetricsRow) { r.Change1DPct = fp(4.5); r.RVOL = fp(1.6) }),
		row("LOWVOL", func(r *contracts.MetricsRow) { r.Change1DPct = fp(6); r.RVOL = fp(1.0) }),
		row("FLAT", func(r *contracts.MetricsRow) { r.Change1DPct = fp(1); r.RVOL = fp(5) }),
		row("NODATA", nil),
	}
	e := newTestEngine(rows, nil)

	result, err := e.Query(context.Background(), ScreenBreakouts, Filters{}, testDate)
	require.NoError(t, err)

	hits := result.Data.([]Row)
	require.Len(t, hits, 2)
	assert.Equal(t, "BIG", hits[0].Symbol)
	assert.Equal(t, "MID", hits[1].Symbol)
	assert.Equal(t, 2, result.Total)
}

func TestBreakouts_CustomThreshold(t *testing.T) {
	rows := []*contracts.MetricsRow{
		row("A", func(r *contracts.MetricsRow) { r.Change1DPct = fp(2.5); r.RVOL = fp(2) }),
		row("B", func(r *contracts.MetricsRow) { r.Change1DPct = fp(1); r.RVOL = fp(2) }),
	}
	e := newTestEngine(rows, nil)

	result, err := e.Query(context.Background(), ScreenBreakouts, Filters{MinChangePct: fp(2), MinRVOL: fp(1)}, testDate)
	require.NoError(t, err)

	hits := result.Data.([]Row)
	require.Len(t, hits, 1)
	assert.Equal(t, "A", hits[0].Symbol)
}

func TestRSLeaders(t *testing.T) {
	rows := []*contracts.MetricsRow{
		row("LEAD", func(r *contracts.MetricsRow) {
			r.RSPercentile = fp(99)
			r.VARS = fp(12)
			r.Stage = sp(contracts.StageUptrend)
		}),
		row("LEAD2", func(r *contracts.MetricsRow) {
			r.RSPercentile = fp(98)
			r.VARS = fp(30)
			r.Stage = sp(contracts.StageTopping)
		}),
		row("WEAKRS", func(r *contracts.MetricsRow) {
			r.RSPercentile = fp(80)
			r.VARS = fp(50)
			r.Stage = sp(contracts.StageUptrend)
		}),
		row("BASING", func(r *contracts.MetricsRow) {
			r.RSPercentile = fp(99)
			r.VARS = fp(5)
			r.Stage = sp(contracts.StageBasing)
		}),
	}
	e := newTestEngine(rows, nil)

	result, err := e.Query(context.Background(), ScreenRSLeaders, Filters{}, testDate)
	require.NoError(t, err)

	hits := result.Data.([]Row)
	require.Len(t, hits, 2)
	// sorted by VARS descending
	assert.Equal(t, "LEAD2", hits[0].Symbol)
	assert.Equal(t, "LEAD", hits[1].Symbol)
}

func TestHighVolume(t *testing.T) {
	rows := []*contracts.MetricsRow{
		row("SURGE", func(r *contracts.MetricsRow) { r.RVOL = fp(4); r.Change1DPct = fp(1) }),
		row("MILD", func(r *contracts.MetricsRow) { r.RVOL = fp(2.1); r.Change1DPct = fp(0.5) }),
		row("QUIET", func(r *contracts.MetricsRow) { r.RVOL = fp(1.2); r.Change1DPct = fp(3) }),
		row("DOWN", func(r *contracts.MetricsRow) { r.RVOL = fp(5); r.Change1DPct = fp(-2) }),
	}
	e := newTestEngine(rows, nil)

	result, err := e.Query(context.Background(), ScreenHighVolume, Filters{}, testDate)
	require.NoError(t, err)

	hits := result.Data.([]Row)
	require.Len(t, hits, 2)
	assert.Equal(t, "SURGE", hits[0].Symbol)
	assert.Equal(t, "MILD", hits[1].Symbol)
}

func TestMAStacked(t *testing.T) {
	rows := []*contracts.MetricsRow{
		row("GOOD", func(r *contracts.MetricsRow) {
			r.IsMAStacked = true
			r.VCPScore = ip(3)
			r.Stage = sp(contracts.StageUptrend)
			r.Change1DPct = fp(1)
			r.RSPercentile = fp(90)
		}),
		row("BETTER", func(r *contracts.MetricsRow) {
			r.IsMAStacked = true
			r.VCPScore = ip(4)
			r.Stage = sp(contracts.StageUptrend)
			r.Change1DPct = fp(0.5)
			r.RSPercentile = fp(95)
		}),
		row("NOTSTACKED", func(r *contracts.MetricsRow) {
			r.IsMAStacked = false
			r.VCPScore = ip(5)
			r.Stage = sp(contracts.StageUptrend)
			r.Change1DPct = fp(1)
		}),
		row("LOWVCP", func(r *contracts.MetricsRow) {
			r.IsMAStacked = true
			r.VCPScore = ip(1)
			r.Stage = sp(contracts.StageUptrend)
			r.Change1DPct = fp(1)
		}),
		row("TOPPING", func(r *contracts.MetricsRow) {
			r.IsMAStacked = true
			r.VCPScore = ip(3)
			r.Stage = sp(contracts.StageTopping)
			r.Change1DPct = fp(1)
		}),
	}
	e := newTestEngine(rows, nil)

	result, err := e.Query(context.Background(), ScreenMAStacked, Filters{}, testDate)
	require.NoError(t, err)

	hits := result.Data.([]Row)
	require.Len(t, hits, 2)
	// sorted by RS percentile descending
	assert.Equal(t, "BETTER", hits[0].Symbol)
	assert.Equal(t, "GOOD", hits[1].Symbol)
}

func TestWeeklyMovers(t *testing.T) {
	rows := []*contracts.MetricsRow{
		row("UP1", func(r *contracts.MetricsRow) { r.Change1WPct = fp(35) }),
		row("UP2", func(r *contracts.MetricsRow) { r.Change1WPct = fp(22) }),
		row("DOWN1", func(r *contracts.MetricsRow) { r.Change1WPct = fp(-40) }),
		row("DOWN2", func(r *contracts.MetricsRow) { r.Change1WPct = fp(-21) }),
		row("CALM", func(r *contracts.MetricsRow) { r.Change1WPct = fp(5) }),
		row("NOWEEK", nil),
	}
	e := newTestEngine(rows, nil)

	result, err := e.Query(context.Background(), ScreenWeeklyMovers, Filters{}, testDate)
	require.NoError(t, err)

	movers := result.Data.(WeeklyMovers)
	require.Len(t, movers.Gainers, 2)
	require.Len(t, movers.Losers, 2)
	assert.Equal(t, "UP1", movers.Gainers[0].Symbol)
	assert.Equal(t, "DOWN1", movers.Losers[0].Symbol) // biggest loser first
	assert.Equal(t, 4, result.Total)
}

func TestWeeklyMovers_DirectionUp(t *testing.T) {
	rows := []*contracts.MetricsRow{
		row("UP", func(r *contracts.MetricsRow) { r.Change1WPct = fp(25) }),
		row("DOWN", func(r *contracts.MetricsRow) { r.Change1WPct = fp(-25) }),
	}
	e := newTestEngine(rows, nil)

	result, err := e.Query(context.Background(), ScreenWeeklyMovers, Filters{Direction: "up"}, testDate)
	require.NoError(t, err)

	movers := result.Data.(WeeklyMovers)
	assert.Len(t, movers.Gainers, 1)
	assert.Empty(t, movers.Losers)
}

func TestWeeklyMovers_OffsetAppliesPerPartition(t *testing.T) {
	rows := []*contracts.MetricsRow{
		row("UP1", func(r *contracts.MetricsRow) { r.Change1WPct = fp(40) }),
		row("UP2", func(r *contracts.MetricsRow) { r.Change1WPct = fp(30) }),
		row("UP3", func(r *contracts.MetricsRow) { r.Change1WPct = fp(25) }),
		row("DOWN1", func(r *contracts.MetricsRow) { r.Change1WPct = fp(-35) }),
		row("DOWN2", func(r *contracts.MetricsRow) { r.Change1WPct = fp(-22) }),
	}
	e := newTestEngine(rows, nil)

	result, err := e.Query(context.Background(), ScreenWeeklyMovers, Filters{Limit: 2, Offset: 1}, testDate)
	require.NoError(t, err)

	movers := result.Data.(WeeklyMovers)
	require.Len(t, movers.Gainers, 2)
	assert.Equal(t, "UP2", movers.Gainers[0].Symbol)
	assert.Equal(t, "UP3", movers.Gainers[1].Symbol)
	require.Len(t, movers.Losers, 1)
	assert.Equal(t, "DOWN2", movers.Losers[0].Symbol)

	assert.Equal(t, 5, result.Total)
	assert.Equal(t, 1, result.Offset)
	assert.Equal(t, 3, result.Count)
}

func TestStageAnalysis(t *testing.T) {
	rows := []*contracts.MetricsRow{
		row("A", func(r *contracts.MetricsRow) {
			r.Stage = sp(contracts.StageUptrend)
			r.StageDetail = "2A"
			r.LoDATRPct = fp(-40)
			r.IsLoDTight = true
		}),
		row("B", func(r *contracts.MetricsRow) {
			r.Stage = sp(contracts.StageUptrend)
			r.StageDetail = "2A"
			r.LoDATRPct = fp(-80)
		}),
		row("C", func(r *contracts.MetricsRow) {
			r.Stage = sp(contracts.StageBasing)
			r.StageDetail = ""
		}),
		row("D", nil), // no stage computed
	}
	e := newTestEngine(rows, nil)

	result, err := e.Query(context.Background(), ScreenStageAnalysis, Filters{}, testDate)
	require.NoError(t, err)

	buckets := result.Data.([]StageBucket)
	require.Len(t, buckets, 3)

	// ordered by stage ascending, nil stage sorts as 0
	assert.Nil(t, buckets[0].Stage)
	assert.Equal(t, 1, *buckets[1].Stage)
	assert.Equal(t, 2, *buckets[2].Stage)

	uptrend := buckets[2]
	assert.Equal(t, 2, uptrend.Count)
	assert.InDelta(t, 50.0, uptrend.Percentage, 1e-9)
	require.NotNil(t, uptrend.AvgLoDATRPct)
	assert.InDelta(t, -60.0, *uptrend.AvgLoDATRPct, 1e-9)
	assert.Equal(t, 1, uptrend.TightLoDCount)
}

func TestMomentumWatchlist(t *testing.T) {
	rows := []*contracts.MetricsRow{
		row("NEAR", func(r *contracts.MetricsRow) {
			r.IsMAStacked = true
			r.RSPercentile = fp(85)
			r.Stage = sp(contracts.StageUptrend)
			r.ATRExtFromSMA50 = fp(1.5)
		}),
		row("FAR", func(r *contracts.MetricsRow) {
			r.IsMAStacked = true
			r.RSPercentile = fp(95)
			r.Stage = sp(contracts.StageUptrend)
			r.ATRExtFromSMA50 = fp(6)
		}),
		row("EXTENDED", func(r *contracts.MetricsRow) {
			r.IsMAStacked = true
			r.RSPercentile = fp(99)
			r.Stage = sp(contracts.StageUptrend)
			r.ATRExtFromSMA50 = fp(9)
		}),
		row("WEAK", func(r *contracts.MetricsRow) {
			r.IsMAStacked = true
			r.RSPercentile = fp(50)
			r.Stage = sp(contracts.StageUptrend)
			r.ATRExtFromSMA50 = fp(1)
		}),
		row("UNSTACKED", func(r *contracts.MetricsRow) {
			r.RSPercentile = fp(90)
			r.Stage = sp(contracts.StageUptrend)
			r.ATRExtFromSMA50 = fp(1)
		}),
	}
	e := newTestEngine(rows, nil)

	result, err := e.Query(context.Background(), ScreenMomentumWatchlist, Filters{}, testDate)
	require.NoError(t, err)

	hits := result.Data.([]Row)
	require.Len(t, hits, 2)
	// least extended first
	assert.Equal(t, "NEAR", hits[0].Symbol)
	assert.Equal(t, "FAR", hits[1].Symbol)
}

func TestBreadthDashboard(t *testing.T) {
	rows := []*contracts.MetricsRow{
		row("A", func(r *contracts.MetricsRow) { r.Stage = sp(contracts.StageUptrend); r.StageDetail = "2A" }),
		row("B", func(r *contracts.MetricsRow) { r.Stage = sp(contracts.StageDowntrend) }),
	}
	snap := &contracts.BreadthSnapshot{
		Date:         testDate,
		TotalSymbols: 2,
		NewHighs20D:  30,
		NewLows20D:   10,
	}
	e := newTestEngineFull(rows, nil, nil, &fakeBreadthRepo{snap: snap})

	result, err := e.Query(context.Background(), ScreenBreadth, Filters{}, testDate)
	require.NoError(t, err)

	dashboard := result.Data.(BreadthDashboard)
	assert.Same(t, snap, dashboard.Snapshot)
	require.NotNil(t, dashboard.HighLowRatio)
	assert.InDelta(t, 3.0, *dashboard.HighLowRatio, 1e-9)
	assert.Len(t, dashboard.Stages, 2)
}

func TestLeadingIndustries(t *testing.T) {
	refs := []contracts.SecurityRef{
		{Symbol: "S1", Name: "Soft One", Sector: "IT", Industry: "Software"},
		{Symbol: "S2", Name: "Soft Two", Sector: "IT", Industry: "Software"},
		{Symbol: "B1", Name: "Bank One", Sector: "Financials", Industry: "Banks"},
		{Symbol: "M1", Name: "Mine One", Sector: "Materials", Industry: "Mining"},
		{Symbol: "P1", Name: "Pharma One", Sector: "Healthcare", Industry: "Pharma"},
		{Symbol: "E1", Name: "Energy One", Sector: "Energy", Industry: "Oil"},
	}
	rows := []*contracts.MetricsRow{
		row("S1", func(r *contracts.MetricsRow) { r.Change1MPct = fp(20) }),
		row("S2", func(r *contracts.MetricsRow) { r.Change1MPct = fp(10) }),
		row("B1", func(r *contracts.MetricsRow) { r.Change1MPct = fp(5) }),
		row("M1", func(r *contracts.MetricsRow) { r.Change1MPct = fp(2) }),
		row("P1", func(r *contracts.MetricsRow) { r.Change1MPct = fp(1) }),
		row("E1", func(r *contracts.MetricsRow) { r.Change1MPct = fp(-3) }),
	}
	e := newTestEngine(rows, refs)

	result, err := e.Query(context.Background(), ScreenLeadingIndustries, Filters{}, testDate)
	require.NoError(t, err)

	// 5 industries, top 20% rounded up keeps 1
	assert.Equal(t, 5, result.Total)
	groups := result.Data.([]IndustryGroup)
	require.Len(t, groups, 1)

	software := groups[0]
	assert.Equal(t, "Software", software.Industry)
	assert.Equal(t, 2, software.StockCount)
	require.NotNil(t, software.AvgChange1M)
	assert.InDelta(t, 15.0, *software.AvgChange1M, 1e-9)
	require.Len(t, software.TopPerformers, 2)
	assert.Equal(t, "S1", software.TopPerformers[0].Symbol)
}

func TestLeadingIndustries_CustomFraction(t *testing.T) {
	refs := []contracts.SecurityRef{
		{Symbol: "A", Sector: "IT", Industry: "Software"},
		{Symbol: "B", Sector: "Financials", Industry: "Banks"},
	}
	rows := []*contracts.MetricsRow{
		row("A", func(r *contracts.MetricsRow) { r.Change1MPct = fp(10) }),
		row("B", func(r *contracts.MetricsRow) { r.Change1MPct = fp(5) }),
	}
	e := newTestEngine(rows, refs)

	result, err := e.Query(context.Background(), ScreenLeadingIndustries, Filters{TopFraction: fp(1.0)}, testDate)
	require.NoError(t, err)

	groups := result.Data.([]IndustryGroup)
	assert.Len(t, groups, 2)
}

func TestRRGCharts(t *testing.T) {
	snaps := &fakeSectorRepo{
		snaps: []contracts.SectorSnapshot{
			{Sector: "IT", Date: testDate, RSRatio: 103, RSMomentum: 102, MemberCount: 10},
			{Sector: "Energy", Date: testDate, RSRatio: 97, RSMomentum: 101, MemberCount: 5},
			{Sector: "Financials", Date: testDate, RSRatio: 101, RSMomentum: 99, MemberCount: 8},
			{Sector: "Materials", Date: testDate, RSRatio: 95, RSMomentum: 96, MemberCount: 4},
		},
		tails: map[string][]contracts.SectorSnapshot{
			"IT": {
				{Sector: "IT", Date: testDate.AddDate(0, 0, -1), RSRatio: 102, RSMomentum: 101},
				{Sector: "IT", Date: testDate, RSRatio: 103, RSMomentum: 102},
			},
		},
	}
	e := newTestEngineFull([]*contracts.MetricsRow{row("AAA", nil)}, nil, snaps, nil)

	result, err := e.Query(context.Background(), ScreenRRG, Filters{}, testDate)
	require.NoError(t, err)

	sectors := result.Data.([]RRGSector)
	require.Len(t, sectors, 4)

	// sorted by RS ratio descending
	assert.Equal(t, "IT", sectors[0].Sector)
	assert.Equal(t, "Leading", sectors[0].Quadrant)
	assert.Len(t, sectors[0].Tail, 2)

	assert.Equal(t, "Financials", sectors[1].Sector)
	assert.Equal(t, "Weakening", sectors[1].Quadrant)

	assert.Equal(t, "Energy", sectors[2].Sector)
	assert.Equal(t, "Improving", sectors[2].Quadrant)

	assert.Equal(t, "Materials", sectors[3].Sector)
	assert.Equal(t, "Lagging", sectors[3].Quadrant)
}

func TestATRExtensionMatrix(t *testing.T) {
	refs := []contracts.SecurityRef{
		{Symbol: "A", Sector: "IT"},
		{Symbol: "B", Sector: "IT"},
		{Symbol: "C", Sector: "IT"},
		{Symbol: "D", Sector: "Energy"},
		{Symbol: "E", Sector: ""},
	}
	rows := []*contracts.MetricsRow{
		row("A", func(r *contracts.MetricsRow) { r.ATRExtFromSMA50 = fp(-1.5) }),
		row("B", func(r *contracts.MetricsRow) { r.ATRExtFromSMA50 = fp(3.0) }),
		row("C", func(r *contracts.MetricsRow) { r.ATRExtFromSMA50 = fp(8.2) }),
		row("D", func(r *contracts.MetricsRow) { r.ATRExtFromSMA50 = fp(0.5) }),
		row("E", func(r *contracts.MetricsRow) { r.ATRExtFromSMA50 = fp(2) }), // no sector
		row("F", nil), // no extension value
	}
	e := newTestEngine(rows, refs)

	result, err := e.Query(context.Background(), ScreenATRExtension, Filters{}, testDate)
	require.NoError(t, err)

	matrix := result.Data.([]SectorExtensionRow)
	require.Len(t, matrix, 2)

	energy := matrix[0]
	assert.Equal(t, "Energy", energy.Sector)
	assert.Equal(t, 1, energy.Total)
	assert.Equal(t, 1, energy.Buckets[1].Count) // 0-2

	it := matrix[1]
	assert.Equal(t, "IT", it.Sector)
	assert.Equal(t, 3, it.Total)
	assert.Equal(t, 1, it.Buckets[0].Count) // below_sma50
	assert.Equal(t, 1, it.Buckets[2].Count) // 2-4
	assert.Equal(t, 1, it.Buckets[4].Count) // 7+
}

func TestPagination(t *testing.T) {
	var rows []*contracts.MetricsRow
	for i := 0; i < 10; i++ {
		symbol := string(rune('A' + i))
		change := float64(20 - i)
		rows = append(rows, row(symbol, func(r *contracts.MetricsRow) {
			r.Change1DPct = fp(change)
			r.RVOL = fp(3)
		}))
	}
	e := newTestEngine(rows, nil)

	result, err := e.Query(context.Background(), ScreenBreakouts, Filters{Limit: 3, Offset: 3}, testDate)
	require.NoError(t, err)

	assert.Equal(t, 10, result.Total)
	assert.Equal(t, 3, result.Count)
	hits := result.Data.([]Row)
	require.Len(t, hits, 3)
	assert.Equal(t, "D", hits[0].Symbol)

	// offset past the end returns an empty page, not an error
	result, err = e.Query(context.Background(), ScreenBreakouts, Filters{Offset: 50}, testDate)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Count)
}

func TestReferenceJoin(t *testing.T) {
	refs := []contracts.SecurityRef{
		{Symbol: "KNOWN", Name: "Known Corp", Sector: "IT", Industry: "Software"},
	}
	rows := []*contracts.MetricsRow{
		row("KNOWN", func(r *contracts.MetricsRow) { r.Change1DPct = fp(6); r.RVOL = fp(2) }),
		row("ORPHAN", func(r *contracts.MetricsRow) { r.Change1DPct = fp(5); r.RVOL = fp(2) }),
	}
	e := newTestEngine(rows, refs)

	result, err := e.Query(context.Background(), ScreenBreakouts, Filters{}, testDate)
	require.NoError(t, err)

	hits := result.Data.([]Row)
	require.Len(t, hits, 2)
	assert.Equal(t, "Known Corp", hits[0].Name)
	assert.Equal(t, "IT", hits[0].Sector)
	// missing from the master still screens, with blank reference fields
	assert.Equal(t, "", hits[1].Name)
}
