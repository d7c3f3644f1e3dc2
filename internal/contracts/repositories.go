package contracts

import (
	"context"
	"time"
)

// BarRepository supplies ordered daily bars. Read-only; the bar tables are
// owned by the ingestion layer.
type BarRepository interface {
	// GetBars returns up to limit bars for symbol with date <= upTo,
	// ordered ascending by date. limit <= 0 means no limit.
	GetBars(ctx context.Context, symbol string, upTo time.Time, limit int) ([]Bar, error)

	// HasBars reports whether any symbol has a bar exactly on date.
	HasBars(ctx context.Context, date time.Time) (bool, error)

	// LatestTradingDay returns the most recent date with bar data that is
	// on or before the given date.
	LatestTradingDay(ctx context.Context, onOrBefore time.Time) (time.Time, error)
}

// ReferenceRepository supplies the active-security list with
// sector/industry classification. Read-only.
type ReferenceRepository interface {
	GetActiveSecurities(ctx context.Context) ([]SecurityRef, error)
}

// MetricsRepository is the idempotent sink for computed rows.
type MetricsRepository interface {
	// UpsertRows replaces rows whole, keyed (symbol, date).
	UpsertRows(ctx context.Context, rows []*MetricsRow) error
	GetByDate(ctx context.Context, date time.Time) ([]*MetricsRow, error)
	GetBySymbolAndDate(ctx context.Context, symbol string, date time.Time) (*MetricsRow, error)
	LatestDate(ctx context.Context) (time.Time, error)
}

// SectorSnapshotRepository stores sector rotation history.
type SectorSnapshotRepository interface {
	Upsert(ctx context.Context, snaps []SectorSnapshot) error
	GetByDate(ctx context.Context, date time.Time) ([]SectorSnapshot, error)

	// GetLatestBefore returns the most recent snapshot for sector strictly
	// before date, or nil when none exists (cold start).
	GetLatestBefore(ctx context.Context, sector string, date time.Time) (*SectorSnapshot, error)

	// GetTail returns the last n snapshots for sector up to and including
	// date, ordered ascending, for rotation-chart rendering.
	GetTail(ctx context.Context, sector string, date time.Time, n int) ([]SectorSnapshot, error)
}

// BreadthRepository stores one breadth snapshot per date.
type BreadthRepository interface {
	Upsert(ctx context.Context, snap *BreadthSnapshot) error
	GetByDate(ctx context.Context, date time.Time) (*BreadthSnapshot, error)

	// GetLatestBefore returns the most recent snapshot strictly before
	// date, or nil when none exists. Used for incremental McClellan EMAs.
	GetLatestBefore(ctx context.Context, date time.Time) (*BreadthSnapshot, error)
}
