package breadth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradelens/screener/internal/contracts"
)

// Repository implements contracts.BreadthRepository on PostgreSQL.
// One row per date, replaced whole on recomputation.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new breadth repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const breadthColumns = `
	date, total_symbols, advance_count, decline_count, unchanged_count,
	advance_decline_ratio, pct_above_sma20, pct_above_sma50, pct_above_sma200,
	new_20d_highs, new_20d_lows, net_advances,
	mcclellan_ema19, mcclellan_ema39, mcclellan_oscillator, mcclellan_summation
`

// Upsert writes the snapshot keyed by date
func (r *Repository) Upsert(ctx context.Context, snap *contracts.BreadthSnapshot) error {
	query := `
		INSERT INTO breadth_snapshots (` + breadthColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (date) DO UPDATE SET
			total_symbols = EXCLUDED.total_symbols,
			advance_count = EXCLUDED.advance_count,
			decline_count = EXCLUDED.decline_count,
			unchanged_count = EXCLUDED.unchanged_count,
			advance_decline_ratio = EXCLUDED.advance_decline_ratio,
			pct_above_sma20 = EXCLUDED.pct_above_sma20,
			pct_above_sma50 = EXCLUDED.pct_above_sma50,
			pct_above_sma200 = EXCLUDED.pct_above_sma200,
			new_20d_highs = EXCLUDED.new_20d_highs,
			new_20d_lows = EXCLUDED.new_20d_lows,
			net_advances = EXCLUDED.net_advances,
			mcclellan_ema19 = EXCLUDED.mcclellan_ema19,
			mcclellan_ema39 = EXCLUDED.mcclellan_ema39,
			mcclellan_oscillator = EXCLUDED.mcclellan_oscillator,
			mcclellan_summation = EXCLUDED.mcclellan_summation
	`

	_, err := r.pool.Exec(ctx, query,
		snap.Date, snap.TotalSymbols, snap.AdvanceCount, snap.DeclineCount,
		snap.UnchangedCount, snap.AdvanceDecline,
		snap.PctAboveSMA20, snap.PctAboveSMA50, snap.PctAboveSMA200,
		snap.NewHighs20D, snap.NewLows20D, snap.NetAdvances,
		snap.McClellanEMA19, snap.McClellanEMA39, snap.McClellanOsc, snap.McClellanSum,
	)
	return err
}

// GetByDate returns the snapshot for a date, or nil when absent
func (r *Repository) GetByDate(ctx context.Context, date time.Time) (*contracts.BreadthSnapshot, error) {
	query := `SELECT ` + breadthColumns + ` FROM breadth_snapshots WHERE date = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, date))
}

// GetLatestBefore returns the most recent snapshot strictly before date,
// or nil when none exists.
func (r *Repository) GetLatestBefore(ctx context.Context, date time.Time) (*contracts.BreadthSnapshot, error) {
	query := `
		SELECT ` + breadthColumns + `
		FROM breadth_snapshots
		WHERE date < $1
		ORDER BY date DESC
		LIMIT 1
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, date))
}

func (r *Repository) scanOne(row pgx.Row) (*contracts.BreadthSnapshot, error) {
	var s contracts.BreadthSnapshot
	err := row.Scan(
		&s.Date, &s.TotalSymbols, &s.AdvanceCount, &s.DeclineCount,
		&s.UnchangedCount, &s.AdvanceDecline,
		&s.PctAboveSMA20, &s.PctAboveSMA50, &s.PctAboveSMA200,
		&s.NewHighs20D, &s.NewLows20D, &s.NetAdvances,
		&s.McClellanEMA19, &s.McClellanEMA39, &s.McClellanOsc, &s.McClellanSum,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
