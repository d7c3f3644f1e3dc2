package screener

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"time"

	"github.com/tradelens/screener/internal/contracts"
	"github.com/tradelens/screener/pkg/logger"
	"github.com/tradelens/screener/pkg/redis"
)

// ErrUnknownScreen is returned for a screen name Query does not recognize.
var ErrUnknownScreen = fmt.Errorf("unknown screen")

// Engine answers the named screening queries over persisted metrics.
// It is stateless and read-only: every screen is a deterministic
// filter+sort+paginate over already-computed rows, never new math.
type Engine struct {
	metrics     contracts.MetricsRepository
	refs        contracts.ReferenceRepository
	sectors     contracts.SectorSnapshotRepository
	breadthRepo contracts.BreadthRepository

	cache    *redis.Cache
	cacheTTL time.Duration
	logger   *logger.Logger
}

// NewEngine creates a new screener engine. cache may be nil.
func NewEngine(
	metrics contracts.MetricsRepository,
	refs contracts.ReferenceRepository,
	sectors contracts.SectorSnapshotRepository,
	breadthRepo contracts.BreadthRepository,
	cache *redis.Cache,
	log *logger.Logger,
) *Engine {
	return &Engine{
		metrics:     metrics,
		refs:        refs,
		sectors:     sectors,
		breadthRepo: breadthRepo,
		cache:       cache,
		cacheTTL:    5 * time.Minute,
		logger:      log.WithField("module", "screener"),
	}
}

// Query runs one named screen. A zero date means the latest date with
// persisted metrics.
func (e *Engine) Query(ctx context.Context, name string, f Filters, date time.Time) (*Result, error) {
	f = normalize(f)

	if date.IsZero() {
		latest, err := e.metrics.LatestDate(ctx)
		if err != nil {
			return nil, fmt.Errorf("no metrics data available: %w", err)
		}
		date = latest
	}

	cacheKey := e.cacheKey(name, f, date)
	if e.cache != nil {
		var cached Result
		if hit, _ := e.cache.Get(ctx, cacheKey, &cached); hit {
			return &cached, nil
		}
	}

	result, err := e.run(ctx, name, f, date)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		if err := e.cache.Set(ctx, cacheKey, result, e.cacheTTL); err != nil {
			e.logger.WithError(err).Warn("Failed to cache screen result")
		}
	}
	return result, nil
}

func (e *Engine) run(ctx context.Context, name string, f Filters, date time.Time) (*Result, error) {
	switch name {
	case ScreenBreakouts:
		return e.breakouts(ctx, f, date)
	case ScreenRSLeaders:
		return e.rsLeaders(ctx, f, date)
	case ScreenHighVolume:
		return e.highVolume(ctx, f, date)
	case ScreenMAStacked:
		return e.maStacked(ctx, f, date)
	case ScreenWeeklyMovers:
		return e.weeklyMovers(ctx, f, date)
	case ScreenStageAnalysis:
		return e.stageAnalysis(ctx, f, date)
	case ScreenMomentumWatchlist:
		return e.momentumWatchlist(ctx, f, date)
	case ScreenBreadth:
		return e.breadthDashboard(ctx, f, date)
	case ScreenLeadingIndustries:
		return e.leadingIndustries(ctx, f, date)
	case ScreenRRG:
		return e.rrgCharts(ctx, f, date)
	case ScreenATRExtension:
		return e.atrExtensionMatrix(ctx, f, date)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScreen, name)
	}
}

func normalize(f Filters) Filters {
	if f.Limit <= 0 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.Direction == "" {
		f.Direction = "both"
	}
	if f.TailLength <= 0 {
		f.TailLength = defaultRRGTailLength
	}
	return f
}

func (e *Engine) cacheKey(name string, f Filters, date time.Time) string {
	h := fnv.New64a()
	if data, err := json.Marshal(f); err == nil {
		h.Write(data)
	}
	return fmt.Sprintf("screen:%s:%s:%x", name, date.Format("2006-01-02"), h.Sum64())
}

// loadRows joins the date's metrics with the security master in memory.
// Securities missing from the master still screen, with blank reference
// fields.
func (e *Engine) loadRows(ctx context.Context, date time.Time) ([]Row, error) {
	metricRows, err := e.metrics.GetByDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("load metrics: %w", err)
	}
	if len(metricRows) == 0 {
		return nil, fmt.Errorf("no metrics for %s", date.Format("2006-01-02"))
	}

	refs, err := e.refs.GetActiveSecurities(ctx)
	if err != nil {
		return nil, fmt.Errorf("load securities: %w", err)
	}
	bySymbol := make(map[string]contracts.SecurityRef, len(refs))
	for _, ref := range refs {
		bySymbol[ref.Symbol] = ref
	}

	rows := make([]Row, 0, len(metricRows))
	for _, m := range metricRows {
		row := Row{MetricsRow: *m}
		if ref, ok := bySymbol[m.Symbol]; ok {
			row.Name = ref.Name
			row.Sector = ref.Sector
			row.Industry = ref.Industry
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// --- individual screens ---

func (e *Engine) breakouts(ctx context.Context, f Filters, date time.Time) (*Result, error) {
	rows, err := e.loadRows(ctx, date)
	if err != nil {
		return nil, err
	}

	minChange := orDefault(f.MinChangePct, defaultBreakoutMinChange)
	minRVOL := orDefault(f.MinRVOL, defaultBreakoutMinRVOL)

	hits := filterRows(rows, func(r Row) bool {
		return ge(r.Change1DPct, minChange) && ge(r.RVOL, minRVOL)
	})
	sortByDesc(hits, func(r Row) *float64 { return r.Change1DPct })

	return envelope(ScreenBreakouts, date, f, hits), nil
}

func (e *Engine) rsLeaders(ctx context.Context, f Filters, date time.Time) (*Result, error) {
	rows, err := e.loadRows(ctx, date)
	if err != nil {
		return nil, err
	}

	minRS := orDefault(f.MinRS, defaultRSLeadersMinRS)
	minStage := orDefaultInt(f.MinStage, int(contracts.StageUptrend))

	hits := filterRows(rows, func(r Row) bool {
		if !ge(r.RSPercentile, minRS) || !stageAtLeast(r.Stage, minStage) {
			return false
		}
		if f.MinVARS != nil && !ge(r.VARS, *f.MinVARS) {
			return false
		}
		return true
	})
	sortByDesc(hits, func(r Row) *float64 { return r.VARS })

	return envelope(ScreenRSLeaders, date, f, hits), nil
}

func (e *Engine) highVolume(ctx context.Context, f Filters, date time.Time) (*Result, error) {
	rows, err := e.loadRows(ctx, date)
	if err != nil {
		return nil, err
	}

	minRVOL := orDefault(f.MinRVOL, defaultHighVolumeMinRVOL)
	minChange := orDefault(f.MinChangePct, 0)

	hits := filterRows(rows, func(r Row) bool {
		return ge(r.RVOL, minRVOL) && ge(r.Change1DPct, minChange)
	})
	sortByDesc(hits, func(r Row) *float64 { return r.RVOL })

	return envelope(ScreenHighVolume, date, f, hits), nil
}

func (e *Engine) maStacked(ctx context.Context, f Filters, date time.Time) (*Result, error) {
	rows, err := e.loadRows(ctx, date)
	if err != nil {
		return nil, err
	}

	minVCP := orDefaultInt(f.MinVCP, defaultMAStackedMinVCP)
	minChange := orDefault(f.MinChangePct, 0)

	hits := filterRows(rows, func(r Row) bool {
		return r.IsMAStacked &&
			ge(r.Change1DPct, minChange) &&
			r.VCPScore != nil && *r.VCPScore >= minVCP &&
			r.Stage != nil && *r.Stage == contracts.StageUptrend
	})
	sortByDesc(hits, func(r Row) *float64 { return r.RSPercentile })

	return envelope(ScreenMAStacked, date, f, hits), nil
}

func (e *Engine) weeklyMovers(ctx context.Context, f Filters, date time.Time) (*Result, error) {
	rows, err := e.loadRows(ctx, date)
	if err != nil {
		return nil, err
	}

	minChange := orDefault(f.MinChangePct, defaultWeeklyMinChange)

	var movers WeeklyMovers
	for _, r := range rows {
		if r.Change1WPct == nil {
			continue
		}
		switch {
		case *r.Change1WPct >= minChange && f.Direction != "down":
			movers.Gainers = append(movers.Gainers, r)
		case *r.Change1WPct <= -minChange && f.Direction != "up":
			movers.Losers = append(movers.Losers, r)
		}
	}
	sortByDesc(movers.Gainers, func(r Row) *float64 { return r.Change1WPct })
	sort.SliceStable(movers.Losers, func(i, j int) bool {
		return *movers.Losers[i].Change1WPct < *movers.Losers[j].Change1WPct
	})

	total := len(movers.Gainers) + len(movers.Losers)
	// offset and limit apply to each partition independently
	movers.Gainers = paginate(movers.Gainers, f.Offset, f.Limit)
	movers.Losers = paginate(movers.Losers, f.Offset, f.Limit)

	return &Result{
		Screen:  ScreenWeeklyMovers,
		Date:    date,
		Total:   total,
		Count:   len(movers.Gainers) + len(movers.Losers),
		Offset:  f.Offset,
		Applied: f,
		Data:    movers,
	}, nil
}

func (e *Engine) stageAnalysis(ctx context.Context, f Filters, date time.Time) (*Result, error) {
	rows, err := e.loadRows(ctx, date)
	if err != nil {
		return nil, err
	}

	buckets := stageBuckets(rows)
	return &Result{
		Screen:  ScreenStageAnalysis,
		Date:    date,
		Total:   len(rows),
		Count:   len(buckets),
		Applied: f,
		Data:    buckets,
	}, nil
}

func (e *Engine) momentumWatchlist(ctx context.Context, f Filters, date time.Time) (*Result, error) {
	rows, err := e.loadRows(ctx, date)
	if err != nil {
		return nil, err
	}

	minRS := orDefault(f.MinRS, defaultMomentumMinRS)
	maxExt := orDefault(f.MaxExtension, defaultMomentumMaxExt)
	minStage := orDefaultInt(f.MinStage, int(contracts.StageUptrend))

	hits := filterRows(rows, func(r Row) bool {
		return r.IsMAStacked &&
			ge(r.RSPercentile, minRS) &&
			stageAtLeast(r.Stage, minStage) &&
			r.ATRExtFromSMA50 != nil && *r.ATRExtFromSMA50 <= maxExt
	})

	// least extended first: closest to a low-risk entry
	sort.SliceStable(hits, func(i, j int) bool {
		return *hits[i].ATRExtFromSMA50 < *hits[j].ATRExtFromSMA50
	})

	return envelope(ScreenMomentumWatchlist, date, f, hits), nil
}

func (e *Engine) breadthDashboard(ctx context.Context, f Filters, date time.Time) (*Result, error) {
	snap, err := e.breadthRepo.GetByDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("load breadth snapshot: %w", err)
	}
	if snap == nil {
		return nil, fmt.Errorf("no breadth snapshot for %s", date.Format("2006-01-02"))
	}

	rows, err := e.loadRows(ctx, date)
	if err != nil {
		return nil, err
	}

	dashboard := BreadthDashboard{
		Snapshot: snap,
		Stages:   stageBuckets(rows),
	}
	if snap.NewLows20D > 0 {
		ratio := float64(snap.NewHighs20D) / float64(snap.NewLows20D)
		dashboard.HighLowRatio = &ratio
	}

	return &Result{
		Screen:  ScreenBreadth,
		Date:    date,
		Total:   snap.TotalSymbols,
		Count:   1,
		Applied: f,
		Data:    dashboard,
	}, nil
}

func (e *Engine) leadingIndustries(ctx context.Context, f Filters, date time.Time) (*Result, error) {
	rows, err := e.loadRows(ctx, date)
	if err != nil {
		return nil, err
	}

	byIndustry := make(map[string][]Row)
	for _, r := range rows {
		if r.Industry == "" {
			continue
		}
		byIndustry[r.Industry] = append(byIndustry[r.Industry], r)
	}

	groups := make([]IndustryGroup, 0, len(byIndustry))
	for industry, members := range byIndustry {
		group := IndustryGroup{
			Industry:    industry,
			Sector:      members[0].Sector,
			StockCount:  len(members),
			AvgChange1M: avgOf(members, func(r Row) *float64 { return r.Change1MPct }),
			AvgChange1W: avgOf(members, func(r Row) *float64 { return r.Change1WPct }),
			AvgVARS:     avgOf(members, func(r Row) *float64 { return r.VARS }),
			AvgVARW:     avgOf(members, func(r Row) *float64 { return r.VARW }),
		}

		sortByDesc(members, func(r Row) *float64 { return r.Change1MPct })
		for _, m := range clip(members, 4) {
			group.TopPerformers = append(group.TopPerformers, TopStock{
				Symbol:      m.Symbol,
				Name:        m.Name,
				Change1MPct: m.Change1MPct,
			})
		}
		groups = append(groups, group)
	}

	// rank industries by mean monthly change, nil averages last
	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i].AvgChange1M, groups[j].AvgChange1M
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		case *a != *b:
			return *a > *b
		default:
			return groups[i].Industry < groups[j].Industry
		}
	})

	fraction := orDefault(f.TopFraction, defaultTopFraction)
	keep := int(math.Ceil(fraction * float64(len(groups))))
	if keep < 1 && len(groups) > 0 {
		keep = 1
	}
	if keep > len(groups) {
		keep = len(groups)
	}
	top := groups[:keep]

	return &Result{
		Screen:  ScreenLeadingIndustries,
		Date:    date,
		Total:   len(groups),
		Count:   len(top),
		Applied: f,
		Data:    top,
	}, nil
}

func (e *Engine) rrgCharts(ctx context.Context, f Filters, date time.Time) (*Result, error) {
	snaps, err := e.sectors.GetByDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("load sector snapshots: %w", err)
	}
	if len(snaps) == 0 {
		return nil, fmt.Errorf("no sector snapshots for %s", date.Format("2006-01-02"))
	}

	sectors := make([]RRGSector, 0, len(snaps))
	for i := range snaps {
		snap := snaps[i]
		tail, err := e.sectors.GetTail(ctx, snap.Sector, date, f.TailLength)
		if err != nil {
			return nil, fmt.Errorf("load tail for %s: %w", snap.Sector, err)
		}
		sectors = append(sectors, RRGSector{
			Sector:      snap.Sector,
			RSRatio:     snap.RSRatio,
			RSMomentum:  snap.RSMomentum,
			Quadrant:    snap.RRGQuadrant(),
			MemberCount: snap.MemberCount,
			Tail:        tail,
		})
	}

	sort.SliceStable(sectors, func(i, j int) bool {
		return sectors[i].RSRatio > sectors[j].RSRatio
	})

	return &Result{
		Screen:  ScreenRRG,
		Date:    date,
		Total:   len(sectors),
		Count:   len(sectors),
		Applied: f,
		Data:    sectors,
	}, nil
}

// extensionBuckets are the matrix columns, in display order.
var extensionBuckets = []struct {
	label string
	lo    float64
	hi    float64
}{
	{"below_sma50", math.Inf(-1), 0},
	{"0-2", 0, 2},
	{"2-4", 2, 4},
	{"4-7", 4, 7},
	{"7+", 7, math.Inf(1)},
}

func (e *Engine) atrExtensionMatrix(ctx context.Context, f Filters, date time.Time) (*Result, error) {
	rows, err := e.loadRows(ctx, date)
	if err != nil {
		return nil, err
	}

	type counts struct {
		total   int
		buckets [5]int
	}
	bySector := make(map[string]*counts)
	for _, r := range rows {
		if r.Sector == "" || r.ATRExtFromSMA50 == nil {
			continue
		}
		c := bySector[r.Sector]
		if c == nil {
			c = &counts{}
			bySector[r.Sector] = c
		}
		c.total++
		for i, b := range extensionBuckets {
			if *r.ATRExtFromSMA50 >= b.lo && *r.ATRExtFromSMA50 < b.hi {
				c.buckets[i]++
				break
			}
		}
	}

	matrix := make([]SectorExtensionRow, 0, len(bySector))
	for sec, c := range bySector {
		row := SectorExtensionRow{Sector: sec, Total: c.total}
		for i, b := range extensionBuckets {
			row.Buckets = append(row.Buckets, ExtensionBucket{Label: b.label, Count: c.buckets[i]})
		}
		matrix = append(matrix, row)
	}
	sort.SliceStable(matrix, func(i, j int) bool {
		return matrix[i].Sector < matrix[j].Sector
	})

	return &Result{
		Screen:  ScreenATRExtension,
		Date:    date,
		Total:   len(matrix),
		Count:   len(matrix),
		Applied: f,
		Data:    matrix,
	}, nil
}

// --- helpers ---

func envelope(name string, date time.Time, f Filters, hits []Row) *Result {
	total := len(hits)
	page := paginate(hits, f.Offset, f.Limit)
	return &Result{
		Screen:  name,
		Date:    date,
		Total:   total,
		Count:   len(page),
		Offset:  f.Offset,
		Applied: f,
		Data:    page,
	}
}

func filterRows(rows []Row, keep func(Row) bool) []Row {
	var hits []Row
	for _, r := range rows {
		if keep(r) {
			hits = append(hits, r)
		}
	}
	return hits
}

func paginate(rows []Row, offset, limit int) []Row {
	if offset >= len(rows) {
		return []Row{}
	}
	end := offset + limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end]
}

func clip(rows []Row, n int) []Row {
	if len(rows) > n {
		return rows[:n]
	}
	return rows
}

// sortByDesc orders by key descending with nil keys last, symbol as the
// deterministic tiebreak.
func sortByDesc(rows []Row, key func(Row) *float64) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := key(rows[i]), key(rows[j])
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		case *a != *b:
			return *a > *b
		default:
			return rows[i].Symbol < rows[j].Symbol
		}
	})
}

func stageBuckets(rows []Row) []StageBucket {
	type key struct {
		stage  int
		detail string
	}
	type acc struct {
		bucket StageBucket
		lodSum float64
		lodN   int
	}
	grouped := make(map[key]*acc)
	total := len(rows)

	for _, r := range rows {
		k := key{detail: r.StageDetail}
		if r.Stage != nil {
			k.stage = int(*r.Stage)
		}
		a := grouped[k]
		if a == nil {
			a = &acc{bucket: StageBucket{StageDetail: k.detail}}
			if r.Stage != nil {
				s := k.stage
				a.bucket.Stage = &s
			}
			grouped[k] = a
		}
		a.bucket.Count++
		if r.IsLoDTight {
			a.bucket.TightLoDCount++
		}
		if r.LoDATRPct != nil {
			a.lodSum += *r.LoDATRPct
			a.lodN++
		}
	}

	buckets := make([]StageBucket, 0, len(grouped))
	for _, a := range grouped {
		b := a.bucket
		if total > 0 {
			b.Percentage = math.Round(float64(b.Count)/float64(total)*10000) / 100
		}
		if a.lodN > 0 {
			avg := a.lodSum / float64(a.lodN)
			b.AvgLoDATRPct = &avg
		}
		buckets = append(buckets, b)
	}

	sort.SliceStable(buckets, func(i, j int) bool {
		a, b := 0, 0
		if buckets[i].Stage != nil {
			a = *buckets[i].Stage
		}
		if buckets[j].Stage != nil {
			b = *buckets[j].Stage
		}
		if a != b {
			return a < b
		}
		return buckets[i].StageDetail < buckets[j].StageDetail
	})
	return buckets
}

func avgOf(rows []Row, key func(Row) *float64) *float64 {
	var sum float64
	var n int
	for _, r := range rows {
		if v := key(r); v != nil {
			sum += *v
			n++
		}
	}
	if n == 0 {
		return nil
	}
	avg := sum / float64(n)
	return &avg
}

func ge(v *float64, threshold float64) bool {
	return v != nil && *v >= threshold
}

func stageAtLeast(s *contracts.Stage, min int) bool {
	return s != nil && int(*s) >= min
}

func orDefault(v *float64, def float64) float64 {
	if v != nil {
		return *v
	}
	return def
}

func orDefaultInt(v *int, def int) int {
	if v != nil {
		return *v
	}
	return def
}
