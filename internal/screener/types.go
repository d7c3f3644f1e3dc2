package screener

import (
	"time"

	"github.com/tradelens/screener/internal/contracts"
)

// Screen names accepted by Engine.Query.
const (
	ScreenBreakouts         = "breakouts-4percent"
	ScreenRSLeaders         = "rs-leaders"
	ScreenHighVolume        = "high-volume"
	ScreenMAStacked         = "ma-stacked"
	ScreenWeeklyMovers      = "weekly-movers"
	ScreenStageAnalysis     = "stage-analysis"
	ScreenMomentumWatchlist = "momentum-watchlist"
	ScreenBreadth           = "breadth-metrics"
	ScreenLeadingIndustries = "leading-industries"
	ScreenRRG               = "rrg-charts"
	ScreenATRExtension      = "atr-extension"
)

// Default thresholds, matching the production screen definitions.
const (
	defaultBreakoutMinChange = 4.0
	defaultBreakoutMinRVOL   = 1.5
	defaultRSLeadersMinRS    = 97.0
	defaultHighVolumeMinRVOL = 2.0
	defaultMAStackedMinVCP   = 2
	defaultWeeklyMinChange   = 20.0
	defaultMomentumMinRS     = 70.0
	defaultMomentumMaxExt    = 7.0
	defaultTopFraction       = 0.2
	defaultRRGTailLength     = 10
	defaultLimit             = 100
	maxLimit                 = 500
)

// Filters carries the optional per-screen thresholds. Nil means "use the
// screen's default". Unrelated fields are ignored by each screen.
type Filters struct {
	MinChangePct *float64 `json:"min_change_percent,omitempty"`
	MinRVOL      *float64 `json:"min_rvol,omitempty"`
	MinRS        *float64 `json:"min_rs_percentile,omitempty"`
	MinVARS      *float64 `json:"min_vars,omitempty"`
	MinStage     *int     `json:"min_stage,omitempty"`
	MinVCP       *int     `json:"min_vcp_score,omitempty"`
	MaxExtension *float64 `json:"max_atr_extension,omitempty"`

	// weekly-movers: "up", "down", or "both" (default "both")
	Direction string `json:"direction,omitempty"`

	// leading-industries
	TopFraction *float64 `json:"top_fraction,omitempty"`

	// rrg-charts tail length
	TailLength int `json:"tail_length,omitempty"`

	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// Row is one screen hit: the persisted metrics joined with reference data.
type Row struct {
	contracts.MetricsRow
	Name     string `json:"name"`
	Sector   string `json:"sector,omitempty"`
	Industry string `json:"industry,omitempty"`
}

// Result is the envelope every screen returns.
type Result struct {
	Screen  string      `json:"screener"`
	Date    time.Time   `json:"date"`
	Total   int         `json:"total"`
	Count   int         `json:"count"`
	Offset  int         `json:"offset,omitempty"`
	Applied Filters     `json:"filters"`
	Data    interface{} `json:"results"`
}

// WeeklyMovers partitions symbols by weekly change direction.
type WeeklyMovers struct {
	Gainers []Row `json:"gainers"`
	Losers  []Row `json:"losers"`
}

// StageBucket is one (stage, detail) group in the stage breakdown.
type StageBucket struct {
	Stage         *int     `json:"stage"`
	StageDetail   string   `json:"stage_detail,omitempty"`
	Count         int      `json:"count"`
	Percentage    float64  `json:"percentage"`
	AvgLoDATRPct  *float64 `json:"avg_lod_atr_percent"`
	TightLoDCount int      `json:"tight_lod_count"`
}

// BreadthDashboard is the breadth snapshot plus the stage distribution.
type BreadthDashboard struct {
	Snapshot     *contracts.BreadthSnapshot `json:"snapshot"`
	HighLowRatio *float64                   `json:"high_low_ratio"`
	Stages       []StageBucket              `json:"stage_distribution"`
}

// IndustryGroup is one industry in the leading-industries ranking.
type IndustryGroup struct {
	Industry      string     `json:"industry"`
	Sector        string     `json:"sector"`
	StockCount    int        `json:"stock_count"`
	AvgChange1M   *float64   `json:"avg_change_1m_percent"`
	AvgChange1W   *float64   `json:"avg_change_1w_percent"`
	AvgVARS       *float64   `json:"avg_vars"`
	AvgVARW       *float64   `json:"avg_varw"`
	TopPerformers []TopStock `json:"top_performers"`
}

// TopStock is one leading symbol within an industry group.
type TopStock struct {
	Symbol      string   `json:"symbol"`
	Name        string   `json:"name"`
	Change1MPct *float64 `json:"change_1m_percent"`
}

// RRGSector is one sector's rotation coordinates plus its tail history.
type RRGSector struct {
	Sector      string                     `json:"sector"`
	RSRatio     float64                    `json:"rs_ratio"`
	RSMomentum  float64                    `json:"rs_momentum"`
	Quadrant    string                     `json:"quadrant"`
	MemberCount int                        `json:"member_count"`
	Tail        []contracts.SectorSnapshot `json:"tail"`
}

// ExtensionBucket labels one column of the ATR-extension matrix.
type ExtensionBucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// SectorExtensionRow is one row of the sector x extension matrix.
type SectorExtensionRow struct {
	Sector  string            `json:"sector"`
	Total   int               `json:"total"`
	Buckets []ExtensionBucket `json:"buckets"`
}
