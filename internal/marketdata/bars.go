package marketdata

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradelens/screener/internal/contracts"
)

// BarRepository reads daily OHLCV bars from PostgreSQL. The ohlcv_daily
// table is owned by the ingestion pipeline; this repository never writes.
type BarRepository struct {
	pool *pgxpool.Pool
}

// NewBarRepository creates a new bar repository
func NewBarRepository(pool *pgxpool.Pool) *BarRepository {
	return &BarRepository{pool: pool}
}

// GetBars returns up to limit bars for symbol with date <= upTo, ordered
// ascending. The subquery takes the most recent bars first so the limit
// trims old history, not recent bars.
func (r *BarRepository) GetBars(ctx context.Context, symbol string, upTo time.Time, limit int) ([]contracts.Bar, error) {
	query := `
		SELECT symbol, date, open, high, low, close, volume
		FROM (
			SELECT symbol, date, open, high, low, close, volume
			FROM ohlcv_daily
			WHERE symbol = $1 AND date <= $2
			ORDER BY date DESC
			LIMIT $3
		) recent
		ORDER BY date ASC
	`

	// pgx treats a NULL limit as LIMIT ALL
	var lim *int
	if limit > 0 {
		lim = &limit
	}

	rows, err := r.pool.Query(ctx, query, symbol, upTo, lim)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bars []contracts.Bar
	for rows.Next() {
		var b contracts.Bar
		if err := rows.Scan(&b.Symbol, &b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, err
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// HasBars reports whether any symbol has a bar exactly on date
func (r *BarRepository) HasBars(ctx context.Context, date time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM ohlcv_daily WHERE date = $1)`, date,
	).Scan(&exists)
	return exists, err
}

// LatestTradingDay returns the most recent date with bar data on or before
// the given date
func (r *BarRepository) LatestTradingDay(ctx context.Context, onOrBefore time.Time) (time.Time, error) {
	var latest *time.Time
	err := r.pool.QueryRow(ctx,
		`SELECT MAX(date) FROM ohlcv_daily WHERE date <= $1`, onOrBefore,
	).Scan(&latest)
	if err != nil {
		return time.Time{}, err
	}
	if latest == nil {
		return time.Time{}, pgx.ErrNoRows
	}
	return *latest, nil
}
