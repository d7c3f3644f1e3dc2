package calc

import (
	"fmt"
	"math"
	"time"

	"github.com/tradelens/screener/internal/contracts"
	"github.com/tradelens/screener/pkg/logger"
)

// Trading-day offsets for percent-change windows.
const (
	offset1D = 1
	offset1W = 5
	offset1M = 21
	offset3M = 63
	offset6M = 126
)

const (
	atrPeriod      = 14
	adrPeriod      = 20
	rvolPeriod     = 50
	darvasPeriod   = 20
	week52Period   = 252
	vcpWindow      = 5
	volSurgeRVOL   = 1.5
	lodTightATRPct = 60.0
	extendedATRExt = 7.0
	darvasTopPct   = 90.0
)

// Calculator derives one MetricsRow from a single security's bar history.
// It performs no I/O: given the same bars it always produces the same row,
// which is what makes the per-symbol stage embarrassingly parallel.
type Calculator struct {
	logger *logger.Logger
}

// NewCalculator creates a new indicator calculator
func NewCalculator(log *logger.Logger) *Calculator {
	return &Calculator{logger: log}
}

// Calculate produces the MetricsRow for symbol on date from its ordered
// bar history. Only bars dated on or before date are used; anything later
// is discarded up front so no field can leak future data. Fields whose
// window is unsatisfied stay nil.
//
// RSPercentile, VARS and VARW are left nil here; they are cross-sectional
// and filled in by the ranker after every symbol's row exists.
func (c *Calculator) Calculate(symbol string, bars []contracts.Bar, date time.Time) (*contracts.MetricsRow, error) {
	bars = truncateAfter(bars, date)

	if err := validateHistory(symbol, bars); err != nil {
		return nil, err
	}

	idx := len(bars) - 1
	if idx < 0 || !sameDay(bars[idx].Date, date) {
		return nil, fmt.Errorf("%s: no bar on %s: %w", symbol, date.Format("2006-01-02"), contracts.ErrInsufficientHistory)
	}

	cur := bars[idx]
	row := &contracts.MetricsRow{
		Symbol: symbol,
		Date:   cur.Date,
		Close:  cur.Close,
	}

	c.priceChanges(bars, idx, row)
	c.volatility(bars, idx, row)
	c.volume(bars, idx, row)
	c.movingAverages(bars, idx, row)
	c.atrExtension(bars, idx, row)
	c.darvas(bars, idx, row)
	c.newHighsLows(bars, idx, row)
	c.vcp(bars, idx, row)
	c.stage(bars, idx, row)
	c.candle(bars, idx, row)

	return row, nil
}

// truncateAfter drops bars dated after d
func truncateAfter(bars []contracts.Bar, d time.Time) []contracts.Bar {
	cut := len(bars)
	for cut > 0 && bars[cut-1].Date.After(endOfDay(d)) {
		cut--
	}
	return bars[:cut]
}

func endOfDay(d time.Time) time.Time {
	y, m, day := d.Date()
	return time.Date(y, m, day, 23, 59, 59, 0, d.Location())
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// validateHistory rejects malformed bar sequences before anything is
// computed from them. A failed symbol is skipped, never partially scored.
func validateHistory(symbol string, bars []contracts.Bar) error {
	for i, b := range bars {
		if b.High < b.Low {
			return &contracts.DataIntegrityError{Symbol: symbol, Reason: fmt.Sprintf("high < low on %s", b.Date.Format("2006-01-02"))}
		}
		if b.Open < b.Low || b.Open > b.High {
			return &contracts.DataIntegrityError{Symbol: symbol, Reason: fmt.Sprintf("open outside range on %s", b.Date.Format("2006-01-02"))}
		}
		if b.Close < b.Low || b.Close > b.High {
			return &contracts.DataIntegrityError{Symbol: symbol, Reason: fmt.Sprintf("close outside range on %s", b.Date.Format("2006-01-02"))}
		}
		if b.Volume != nil && *b.Volume < 0 {
			return &contracts.DataIntegrityError{Symbol: symbol, Reason: fmt.Sprintf("negative volume on %s", b.Date.Format("2006-01-02"))}
		}
		if i > 0 && !bars[i-1].Date.Before(b.Date) {
			return &contracts.DataIntegrityError{Symbol: symbol, Reason: fmt.Sprintf("non-monotonic dates at %s", b.Date.Format("2006-01-02"))}
		}
	}
	return nil
}

// priceChanges fills 1d/1w/1m/3m/6m percent changes and 1d value change
func (c *Calculator) priceChanges(bars []contracts.Bar, idx int, row *contracts.MetricsRow) {
	close := bars[idx].Close

	row.Change1DPct = pctChange(bars, idx, offset1D)
	row.Change1WPct = pctChange(bars, idx, offset1W)
	row.Change1MPct = pctChange(bars, idx, offset1M)
	row.Change3MPct = pctChange(bars, idx, offset3M)
	row.Change6MPct = pctChange(bars, idx, offset6M)

	if idx >= 1 {
		row.Change1DValue = fptr(close - bars[idx-1].Close)
	}
}

// pctChange returns (close[idx] - close[idx-k]) / close[idx-k] * 100,
// or nil when fewer than k+1 bars exist or the base close is zero.
func pctChange(bars []contracts.Bar, idx, k int) *float64 {
	prev := idx - k
	if prev < 0 {
		return nil
	}
	base := bars[prev].Close
	if base == 0 {
		return nil
	}
	return fptr((bars[idx].Close - base) / base * 100)
}

// volatility fills ATR14, ATR%, ADR% and today's range
func (c *Calculator) volatility(bars []contracts.Bar, idx int, row *contracts.MetricsRow) {
	cur := bars[idx]

	// ATR: simple mean of the last 14 true ranges. Each true range needs
	// the previous close, so the first one exists at index 1.
	if idx >= atrPeriod {
		sum := 0.0
		for i := idx - atrPeriod + 1; i <= idx; i++ {
			sum += trueRange(bars, i)
		}
		atr := sum / atrPeriod
		row.ATR14 = fptr(atr)
		if cur.Close != 0 {
			row.ATRPct = fptr(atr / cur.Close * 100)
		}
	}

	// ADR%: 20-day mean of (high-low)/close
	if idx >= adrPeriod-1 {
		sum := 0.0
		ok := true
		for i := idx - adrPeriod + 1; i <= idx; i++ {
			if bars[i].Close == 0 {
				ok = false
				break
			}
			sum += (bars[i].High - bars[i].Low) / bars[i].Close * 100
		}
		if ok {
			row.ADRPct = fptr(sum / adrPeriod)
		}
	}

	if cur.Close != 0 {
		row.TodayRangePct = fptr((cur.High - cur.Low) / cur.Close * 100)
	}
}

// trueRange computes max(high-low, |high-prevClose|, |low-prevClose|)
func trueRange(bars []contracts.Bar, i int) float64 {
	hl := bars[i].High - bars[i].Low
	if i == 0 {
		return hl
	}
	prevClose := bars[i-1].Close
	return math.Max(hl, math.Max(
		math.Abs(bars[i].High-prevClose),
		math.Abs(bars[i].Low-prevClose),
	))
}

// volume fills the 50-day average, RVOL and the surge flag
func (c *Calculator) volume(bars []contracts.Bar, idx int, row *contracts.MetricsRow) {
	if idx < rvolPeriod || bars[idx].Volume == nil {
		return
	}

	sum := 0.0
	for i := idx - rvolPeriod; i < idx; i++ {
		if bars[i].Volume == nil {
			return
		}
		sum += float64(*bars[i].Volume)
	}
	avg := sum / rvolPeriod
	row.Volume50DAvg = fptr(avg)

	if avg == 0 {
		return
	}
	rvol := float64(*bars[idx].Volume) / avg
	row.RVOL = fptr(rvol)
	row.IsVolumeSurge = rvol >= volSurgeRVOL
}

// movingAverages fills EMA10, the SMAs, distances and the stacked flag
func (c *Calculator) movingAverages(bars []contracts.Bar, idx int, row *contracts.MetricsRow) {
	close := bars[idx].Close

	row.EMA10 = emaClose(bars, idx, 10)
	row.SMA20 = smaClose(bars, idx, 20)
	row.SMA50 = smaClose(bars, idx, 50)
	row.SMA100 = smaClose(bars, idx, 100)
	row.SMA200 = smaClose(bars, idx, 200)

	row.DistFromEMA10Pct = distPct(close, row.EMA10)
	row.DistFromSMA50Pct = distPct(close, row.SMA50)
	row.DistFromSMA200Pct = distPct(close, row.SMA200)

	// Strictly ordered close > EMA10 > SMA20 > SMA50 > SMA100 > SMA200.
	// A missing MA makes the condition false, not unknown.
	if row.EMA10 != nil && row.SMA20 != nil && row.SMA50 != nil && row.SMA100 != nil && row.SMA200 != nil {
		row.IsMAStacked = close > *row.EMA10 &&
			*row.EMA10 > *row.SMA20 &&
			*row.SMA20 > *row.SMA50 &&
			*row.SMA50 > *row.SMA100 &&
			*row.SMA100 > *row.SMA200
	}
}

// smaClose returns the arithmetic mean of the trailing n closes ending at
// idx, or nil when fewer than n bars exist.
func smaClose(bars []contracts.Bar, idx, n int) *float64 {
	if idx+1 < n {
		return nil
	}
	sum := 0.0
	for i := idx - n + 1; i <= idx; i++ {
		sum += bars[i].Close
	}
	return fptr(sum / float64(n))
}

// emaClose returns the n-period EMA of closes ending at idx, seeded with
// the SMA of the first n closes and smoothed forward with alpha = 2/(n+1).
func emaClose(bars []contracts.Bar, idx, n int) *float64 {
	if idx+1 < n {
		return nil
	}

	sum := 0.0
	for i := 0; i < n; i++ {
		sum += bars[i].Close
	}
	ema := sum / float64(n)

	alpha := 2.0 / (float64(n) + 1.0)
	for i := n; i <= idx; i++ {
		ema = bars[i].Close*alpha + ema*(1-alpha)
	}
	return fptr(ema)
}

// distPct returns (close - ma) / ma * 100
func distPct(close float64, ma *float64) *float64 {
	if ma == nil || *ma == 0 {
		return nil
	}
	return fptr((close - *ma) / *ma * 100)
}

// atrExtension fills the SMA50 extension and low-of-day tightness fields
func (c *Calculator) atrExtension(bars []contracts.Bar, idx int, row *contracts.MetricsRow) {
	cur := bars[idx]

	if row.SMA50 != nil && *row.SMA50 != 0 && row.ATR14 != nil && *row.ATR14 != 0 && cur.Close != 0 {
		// How many ATRs the close sits above SMA50.
		row.ATRExtFromSMA50 = fptr(((cur.Close / *row.SMA50) - 1) / (*row.ATR14 / cur.Close))
	}

	if row.ATR14 != nil && *row.ATR14 != 0 {
		lod := (cur.Low - cur.Close) / *row.ATR14 * 100
		row.LoDATRPct = fptr(lod)
		row.IsLoDTight = math.Abs(lod) < lodTightATRPct
	}
}

// darvas fills the 20-day box and the position of close within it
func (c *Calculator) darvas(bars []contracts.Bar, idx int, row *contracts.MetricsRow) {
	if idx+1 < darvasPeriod {
		return
	}

	high := bars[idx].High
	low := bars[idx].Low
	for i := idx - darvasPeriod + 1; i <= idx; i++ {
		if bars[i].High > high {
			high = bars[i].High
		}
		if bars[i].Low < low {
			low = bars[i].Low
		}
	}

	row.Darvas20DHigh = fptr(high)
	row.Darvas20DLow = fptr(low)

	close := bars[idx].Close
	if close != 0 {
		row.DarvasBoxRangePct = fptr((high - low) / close * 100)
	}
	if span := high - low; span > 0 {
		row.DarvasPositionPct = fptr((close - low) / span * 100)
	} else {
		// Degenerate box: every bar at the same price.
		row.DarvasPositionPct = fptr(50.0)
	}
}

// newHighsLows compares today's extremes against the trailing window
// excluding today
func (c *Calculator) newHighsLows(bars []contracts.Bar, idx int, row *contracts.MetricsRow) {
	if h, l, ok := priorExtrema(bars, idx, darvasPeriod); ok {
		row.IsNew20DHigh = bars[idx].High >= h
		row.IsNew20DLow = bars[idx].Low <= l
	}
	if h, l, ok := priorExtrema(bars, idx, week52Period); ok {
		row.IsNew52WHigh = bars[idx].High >= h
		row.IsNew52WLow = bars[idx].Low <= l
	}
}

// priorExtrema returns the max high and min low over the n bars before idx
func priorExtrema(bars []contracts.Bar, idx, n int) (float64, float64, bool) {
	if idx < n {
		return 0, 0, false
	}
	high := bars[idx-n].High
	low := bars[idx-n].Low
	for i := idx - n + 1; i < idx; i++ {
		if bars[i].High > high {
			high = bars[i].High
		}
		if bars[i].Low < low {
			low = bars[i].Low
		}
	}
	return high, low, true
}

// vcp scores volatility contraction as the length of the strictly
// decreasing run of daily range percents ending today, over 5 bars.
func (c *Calculator) vcp(bars []contracts.Bar, idx int, row *contracts.MetricsRow) {
	if idx+1 < vcpWindow {
		return
	}

	ranges := make([]float64, vcpWindow)
	for i := 0; i < vcpWindow; i++ {
		b := bars[idx-vcpWindow+1+i]
		if b.Close == 0 {
			return
		}
		ranges[i] = (b.High - b.Low) / b.Close * 100
	}

	run := 1
	for i := vcpWindow - 1; i > 0 && ranges[i] < ranges[i-1]; i-- {
		run++
	}

	score := run
	if score < 1 {
		score = 1
	}
	row.VCPScore = &score
}

// stage classifies the Weinstein trend stage from close vs SMA50/SMA200
func (c *Calculator) stage(bars []contracts.Bar, idx int, row *contracts.MetricsRow) {
	if row.SMA50 == nil || row.SMA200 == nil {
		return
	}

	close := bars[idx].Close
	sma50 := *row.SMA50
	sma200 := *row.SMA200

	var stage contracts.Stage
	switch {
	case close > sma50 && sma50 > sma200:
		stage = contracts.StageUptrend
	case close > sma200 && close <= sma50:
		stage = contracts.StageTopping
	case close < sma50 && close < sma200 && sma50 < sma200:
		stage = contracts.StageDowntrend
	default:
		stage = contracts.StageBasing
	}
	row.Stage = &stage

	if stage == contracts.StageUptrend {
		switch {
		case row.DarvasPositionPct != nil && *row.DarvasPositionPct >= darvasTopPct:
			row.StageDetail = "2B" // at the top of the Darvas range
		case row.ATRExtFromSMA50 != nil && *row.ATRExtFromSMA50 >= extendedATRExt:
			row.StageDetail = "2C" // extended
		default:
			row.StageDetail = "2A"
		}
	}
}

// candle fills the candle color and body percent
func (c *Calculator) candle(bars []contracts.Bar, idx int, row *contracts.MetricsRow) {
	cur := bars[idx]
	if cur.Close >= cur.Open {
		row.Candle = contracts.CandleGreen
	} else {
		row.Candle = contracts.CandleRed
	}
	if cur.Open != 0 {
		row.BodyPct = fptr((cur.Close - cur.Open) / cur.Open * 100)
	}
}

func fptr(v float64) *float64 {
	return &v
}
