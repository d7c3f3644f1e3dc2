package marketdata

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradelens/screener/internal/contracts"
)

// ReferenceRepository reads the security master from PostgreSQL. Read-only.
type ReferenceRepository struct {
	pool *pgxpool.Pool
}

// NewReferenceRepository creates a new reference repository
func NewReferenceRepository(pool *pgxpool.Pool) *ReferenceRepository {
	return &ReferenceRepository{pool: pool}
}

// GetActiveSecurities returns all active securities with their
// sector/industry classification, ordered by symbol
func (r *ReferenceRepository) GetActiveSecurities(ctx context.Context) ([]contracts.SecurityRef, error) {
	query := `
		SELECT symbol, name, is_active, listing_date,
		       COALESCE(sector, ''), COALESCE(industry, ''), COALESCE(basic_industry, '')
		FROM securities
		WHERE is_active = true
		ORDER BY symbol
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []contracts.SecurityRef
	for rows.Next() {
		var ref contracts.SecurityRef
		if err := rows.Scan(&ref.Symbol, &ref.Name, &ref.IsActive, &ref.ListingDate,
			&ref.Sector, &ref.Industry, &ref.BasicIndustry); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}
