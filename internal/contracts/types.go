package contracts

import "time"

// Bar represents one daily OHLCV bar. Bars are read-only inputs owned by
// the ingestion layer; Volume is nil for index-type symbols.
type Bar struct {
	Symbol string    `json:"symbol"`
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume *int64    `json:"volume,omitempty"`
}

// SecurityRef represents reference data for one security
type SecurityRef struct {
	Symbol        string    `json:"symbol"`
	Name          string    `json:"name"`
	IsActive      bool      `json:"is_active"`
	ListingDate   time.Time `json:"listing_date"`
	Sector        string    `json:"sector"`
	Industry      string    `json:"industry"`
	BasicIndustry string    `json:"basic_industry"`
}

// Stage is the Weinstein trend classification.
type Stage int

const (
	StageBasing    Stage = 1
	StageUptrend   Stage = 2
	StageTopping   Stage = 3
	StageDowntrend Stage = 4
)

// String returns the stage name
func (s Stage) String() string {
	switch s {
	case StageBasing:
		return "basing"
	case StageUptrend:
		return "uptrend"
	case StageTopping:
		return "topping"
	case StageDowntrend:
		return "downtrend"
	default:
		return "unknown"
	}
}

// Candle is the daily candle color.
type Candle string

const (
	CandleGreen Candle = "green"
	CandleRed   Candle = "red"
)

// MetricsRow holds all derived metrics for one (symbol, date).
// Pointer fields are nullable: nil means the computation window was not
// satisfied, which is a first-class outcome and never a computed zero.
// Exactly one row exists per (symbol, date); rows are replaced whole on
// recomputation, never patched.
type MetricsRow struct {
	Symbol string    `json:"symbol"`
	Date   time.Time `json:"date"`
	Close  float64   `json:"close"`

	// Price changes (trading-day offsets 1/5/21/63/126)
	Change1DPct   *float64 `json:"change_1d_percent"`
	Change1DValue *float64 `json:"change_1d_value"`
	Change1WPct   *float64 `json:"change_1w_percent"`
	Change1MPct   *float64 `json:"change_1m_percent"`
	Change3MPct   *float64 `json:"change_3m_percent"`
	Change6MPct   *float64 `json:"change_6m_percent"`

	// Relative strength (filled in by the cross-sectional ranker)
	RSPercentile *float64 `json:"rs_percentile"`
	VARS         *float64 `json:"vars_score"`
	VARW         *float64 `json:"varw_score"`

	// Volatility
	ATR14         *float64 `json:"atr_14"`
	ATRPct        *float64 `json:"atr_percent"`
	ADRPct        *float64 `json:"adr_percent"`
	TodayRangePct *float64 `json:"today_range_percent"`

	// Volume
	Volume50DAvg  *float64 `json:"volume_50d_avg"`
	RVOL          *float64 `json:"rvol"`
	IsVolumeSurge bool     `json:"is_volume_surge"`

	// Moving averages
	EMA10             *float64 `json:"ema_10"`
	SMA20             *float64 `json:"sma_20"`
	SMA50             *float64 `json:"sma_50"`
	SMA100            *float64 `json:"sma_100"`
	SMA200            *float64 `json:"sma_200"`
	DistFromEMA10Pct  *float64 `json:"distance_from_ema10_percent"`
	DistFromSMA50Pct  *float64 `json:"distance_from_sma50_percent"`
	DistFromSMA200Pct *float64 `json:"distance_from_sma200_percent"`

	// False when any required MA is missing, by design not null.
	IsMAStacked bool `json:"is_ma_stacked"`

	// ATR extension
	ATRExtFromSMA50 *float64 `json:"atr_extension_from_sma50"`
	LoDATRPct       *float64 `json:"lod_atr_percent"`
	IsLoDTight      bool     `json:"is_lod_tight"`

	// Darvas box (20-day)
	Darvas20DHigh     *float64 `json:"darvas_20d_high"`
	Darvas20DLow      *float64 `json:"darvas_20d_low"`
	DarvasBoxRangePct *float64 `json:"darvas_box_range_percent"`
	DarvasPositionPct *float64 `json:"darvas_position_percent"`

	// New highs/lows vs trailing extrema excluding today
	IsNew20DHigh bool `json:"is_new_20d_high"`
	IsNew20DLow  bool `json:"is_new_20d_low"`
	IsNew52WHigh bool `json:"is_new_52w_high"`
	IsNew52WLow  bool `json:"is_new_52w_low"`

	// VCP score 1-5 (length of terminal narrowing run over 5 bars)
	VCPScore *int `json:"vcp_score"`

	// Stage classification
	Stage       *Stage `json:"stage"`
	StageDetail string `json:"stage_detail,omitempty"` // "2A", "2B", "2C" for uptrend variants

	// Candle
	Candle  Candle   `json:"candle_type"`
	BodyPct *float64 `json:"body_percent"`
}

// SectorSnapshot holds sector-level rotation metrics for one (sector, date).
// History is append-only (upsert on the key) and forms the RRG tail.
type SectorSnapshot struct {
	Sector         string    `json:"sector"`
	Date           time.Time `json:"date"`
	MemberCount    int       `json:"member_count"`
	AvgChange1MPct float64   `json:"avg_change_1m_percent"`
	SectorStrength float64   `json:"sector_strength"`
	RSRatio        float64   `json:"rs_ratio"`
	RSMomentum     float64   `json:"rs_momentum"`
}

// RRGQuadrant classifies a snapshot on the rotation graph
func (s *SectorSnapshot) RRGQuadrant() string {
	switch {
	case s.RSRatio > 100 && s.RSMomentum > 100:
		return "Leading"
	case s.RSRatio > 100:
		return "Weakening"
	case s.RSMomentum > 100:
		return "Improving"
	default:
		return "Lagging"
	}
}

// BreadthSnapshot holds market-wide participation statistics for one date.
// It is its own entity keyed solely by date, never a field stashed on an
// individual security's row.
type BreadthSnapshot struct {
	Date         time.Time `json:"date"`
	TotalSymbols int       `json:"total_symbols"`

	AdvanceCount   int      `json:"advance_count"`
	DeclineCount   int      `json:"decline_count"`
	UnchangedCount int      `json:"unchanged_count"`
	AdvanceDecline *float64 `json:"advance_decline_ratio"` // nil when no decliners

	PctAboveSMA20  *float64 `json:"pct_above_sma20"`
	PctAboveSMA50  *float64 `json:"pct_above_sma50"`
	PctAboveSMA200 *float64 `json:"pct_above_sma200"`

	NewHighs20D int `json:"new_20d_highs"`
	NewLows20D  int `json:"new_20d_lows"`

	// McClellan oscillator state. The EMAs are persisted so the next
	// date's snapshot can be computed incrementally.
	NetAdvances    int      `json:"net_advances"`
	McClellanEMA19 *float64 `json:"mcclellan_ema19"`
	McClellanEMA39 *float64 `json:"mcclellan_ema39"`
	McClellanOsc   *float64 `json:"mcclellan_oscillator"`
	McClellanSum   *float64 `json:"mcclellan_summation"`
}
