package sector

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradelens/screener/internal/contracts"
)

// Repository implements contracts.SectorSnapshotRepository on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new sector snapshot repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Upsert writes snapshots keyed (sector, date). Re-computation replaces,
// never duplicate-appends.
func (r *Repository) Upsert(ctx context.Context, snaps []contracts.SectorSnapshot) error {
	query := `
		INSERT INTO sector_snapshots (
			sector, date, member_count, avg_change_1m_percent,
			sector_strength, rs_ratio, rs_momentum
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (sector, date) DO UPDATE SET
			member_count = EXCLUDED.member_count,
			avg_change_1m_percent = EXCLUDED.avg_change_1m_percent,
			sector_strength = EXCLUDED.sector_strength,
			rs_ratio = EXCLUDED.rs_ratio,
			rs_momentum = EXCLUDED.rs_momentum
	`

	for _, s := range snaps {
		_, err := r.pool.Exec(ctx, query,
			s.Sector, s.Date, s.MemberCount, s.AvgChange1MPct,
			s.SectorStrength, s.RSRatio, s.RSMomentum,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// GetByDate returns all sector snapshots for a date
func (r *Repository) GetByDate(ctx context.Context, date time.Time) ([]contracts.SectorSnapshot, error) {
	query := `
		SELECT sector, date, member_count, avg_change_1m_percent,
		       sector_strength, rs_ratio, rs_momentum
		FROM sector_snapshots
		WHERE date = $1
		ORDER BY sector
	`

	rows, err := r.pool.Query(ctx, query, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// GetLatestBefore returns the most recent snapshot for sector strictly
// before date, or nil when none exists.
func (r *Repository) GetLatestBefore(ctx context.Context, sector string, date time.Time) (*contracts.SectorSnapshot, error) {
	query := `
		SELECT sector, date, member_count, avg_change_1m_percent,
		       sector_strength, rs_ratio, rs_momentum
		FROM sector_snapshots
		WHERE sector = $1 AND date < $2
		ORDER BY date DESC
		LIMIT 1
	`

	var s contracts.SectorSnapshot
	err := r.pool.QueryRow(ctx, query, sector, date).Scan(
		&s.Sector, &s.Date, &s.MemberCount, &s.AvgChange1MPct,
		&s.SectorStrength, &s.RSRatio, &s.RSMomentum,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetTail returns the last n snapshots for sector up to and including
// date, oldest first.
func (r *Repository) GetTail(ctx context.Context, sector string, date time.Time, n int) ([]contracts.SectorSnapshot, error) {
	query := `
		SELECT sector, date, member_count, avg_change_1m_percent,
		       sector_strength, rs_ratio, rs_momentum
		FROM (
			SELECT * FROM sector_snapshots
			WHERE sector = $1 AND date <= $2
			ORDER BY date DESC
			LIMIT $3
		) t
		ORDER BY date ASC
	`

	rows, err := r.pool.Query(ctx, query, sector, date, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

func scanSnapshots(rows pgx.Rows) ([]contracts.SectorSnapshot, error) {
	var snaps []contracts.SectorSnapshot
	for rows.Next() {
		var s contracts.SectorSnapshot
		if err := rows.Scan(
			&s.Sector, &s.Date, &s.MemberCount, &s.AvgChange1MPct,
			&s.SectorStrength, &s.RSRatio, &s.RSMomentum,
		); err != nil {
			return nil, err
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}
