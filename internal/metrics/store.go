package metrics

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradelens/screener/internal/contracts"
	"github.com/tradelens/screener/pkg/logger"
)

// Store implements contracts.MetricsRepository on PostgreSQL.
// Writes are idempotent upserts keyed (symbol, date): re-running a date
// after a crash or cancellation converges to the same persisted state,
// which is the correctness property that substitutes for transactions
// spanning the whole batch.
type Store struct {
	pool       *pgxpool.Pool
	retries    int
	retryDelay time.Duration
	logger     *logger.Logger
}

// NewStore creates a new metrics store
func NewStore(pool *pgxpool.Pool, retries int, retryDelay time.Duration, log *logger.Logger) *Store {
	if retries < 1 {
		retries = 1
	}
	return &Store{
		pool:       pool,
		retries:    retries,
		retryDelay: retryDelay,
		logger:     log,
	}
}

const metricsColumns = `
	symbol, date, close,
	change_1d_percent, change_1d_value, change_1w_percent,
	change_1m_percent, change_3m_percent, change_6m_percent,
	rs_percentile, vars_score, varw_score,
	atr_14, atr_percent, adr_percent, today_range_percent,
	volume_50d_avg, rvol, is_volume_surge,
	ema_10, sma_20, sma_50, sma_100, sma_200,
	distance_from_ema10_percent, distance_from_sma50_percent, distance_from_sma200_percent,
	is_ma_stacked,
	atr_extension_from_sma50, lod_atr_percent, is_lod_tight,
	darvas_20d_high, darvas_20d_low, darvas_box_range_percent, darvas_position_percent,
	is_new_20d_high, is_new_20d_low, is_new_52w_high, is_new_52w_low,
	vcp_score, stage, stage_detail, candle_type, body_percent
`

const upsertQuery = `
	INSERT INTO metrics_daily (` + metricsColumns + `)
	VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		$11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
		$21, $22, $23, $24, $25, $26, $27, $28, $29, $30,
		$31, $32, $33, $34, $35, $36, $37, $38, $39, $40,
		$41, $42, $43, $44
	)
	ON CONFLICT (symbol, date) DO UPDATE SET
		close = EXCLUDED.close,
		change_1d_percent = EXCLUDED.change_1d_percent,
		change_1d_value = EXCLUDED.change_1d_value,
		change_1w_percent = EXCLUDED.change_1w_percent,
		change_1m_percent = EXCLUDED.change_1m_percent,
		change_3m_percent = EXCLUDED.change_3m_percent,
		change_6m_percent = EXCLUDED.change_6m_percent,
		rs_percentile = EXCLUDED.rs_percentile,
		vars_score = EXCLUDED.vars_score,
		varw_score = EXCLUDED.varw_score,
		atr_14 = EXCLUDED.atr_14,
		atr_percent = EXCLUDED.atr_percent,
		adr_percent = EXCLUDED.adr_percent,
		today_range_percent = EXCLUDED.today_range_percent,
		volume_50d_avg = EXCLUDED.volume_50d_avg,
		rvol = EXCLUDED.rvol,
		is_volume_surge = EXCLUDED.is_volume_surge,
		ema_10 = EXCLUDED.ema_10,
		sma_20 = EXCLUDED.sma_20,
		sma_50 = EXCLUDED.sma_50,
		sma_100 = EXCLUDED.sma_100,
		sma_200 = EXCLUDED.sma_200,
		distance_from_ema10_percent = EXCLUDED.distance_from_ema10_percent,
		distance_from_sma50_percent = EXCLUDED.distance_from_sma50_percent,
		distance_from_sma200_percent = EXCLUDED.distance_from_sma200_percent,
		is_ma_stacked = EXCLUDED.is_ma_stacked,
		atr_extension_from_sma50 = EXCLUDED.atr_extension_from_sma50,
		lod_atr_percent = EXCLUDED.lod_atr_percent,
		is_lod_tight = EXCLUDED.is_lod_tight,
		darvas_20d_high = EXCLUDED.darvas_20d_high,
		darvas_20d_low = EXCLUDED.darvas_20d_low,
		darvas_box_range_percent = EXCLUDED.darvas_box_range_percent,
		darvas_position_percent = EXCLUDED.darvas_position_percent,
		is_new_20d_high = EXCLUDED.is_new_20d_high,
		is_new_20d_low = EXCLUDED.is_new_20d_low,
		is_new_52w_high = EXCLUDED.is_new_52w_high,
		is_new_52w_low = EXCLUDED.is_new_52w_low,
		vcp_score = EXCLUDED.vcp_score,
		stage = EXCLUDED.stage,
		stage_detail = EXCLUDED.stage_detail,
		candle_type = EXCLUDED.candle_type,
		body_percent = EXCLUDED.body_percent
`

// UpsertRows replaces the rows whole. The batch is retried as a unit with
// bounded backoff; upserts make the retry safe even when a previous
// attempt wrote part of the batch.
func (s *Store) UpsertRows(ctx context.Context, rows []*contracts.MetricsRow) error {
	if len(rows) == 0 {
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= s.retries; attempt++ {
		lastErr = s.upsertBatch(ctx, rows)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			break
		}

		s.logger.WithFields(map[string]interface{}{
			"attempt": attempt,
			"rows":    len(rows),
			"error":   lastErr.Error(),
		}).Warn("Metrics upsert failed, retrying")

		if attempt < s.retries {
			select {
			case <-time.After(s.retryDelay * time.Duration(attempt)):
			case <-ctx.Done():
				return &contracts.PersistenceError{Op: "upsert metrics", Err: ctx.Err()}
			}
		}
	}

	return &contracts.PersistenceError{Op: "upsert metrics", Err: lastErr}
}

func (s *Store) upsertBatch(ctx context.Context, rows []*contracts.MetricsRow) error {
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(upsertQuery, upsertArgs(row)...)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range rows {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func upsertArgs(row *contracts.MetricsRow) []interface{} {
	var stage *int
	if row.Stage != nil {
		v := int(*row.Stage)
		stage = &v
	}

	return []interface{}{
		row.Symbol, row.Date, row.Close,
		row.Change1DPct, row.Change1DValue, row.Change1WPct,
		row.Change1MPct, row.Change3MPct, row.Change6MPct,
		row.RSPercentile, row.VARS, row.VARW,
		row.ATR14, row.ATRPct, row.ADRPct, row.TodayRangePct,
		row.Volume50DAvg, row.RVOL, row.IsVolumeSurge,
		row.EMA10, row.SMA20, row.SMA50, row.SMA100, row.SMA200,
		row.DistFromEMA10Pct, row.DistFromSMA50Pct, row.DistFromSMA200Pct,
		row.IsMAStacked,
		row.ATRExtFromSMA50, row.LoDATRPct, row.IsLoDTight,
		row.Darvas20DHigh, row.Darvas20DLow, row.DarvasBoxRangePct, row.DarvasPositionPct,
		row.IsNew20DHigh, row.IsNew20DLow, row.IsNew52WHigh, row.IsNew52WLow,
		row.VCPScore, stage, row.StageDetail, string(row.Candle), row.BodyPct,
	}
}

// GetByDate returns all rows for a date
func (s *Store) GetByDate(ctx context.Context, date time.Time) ([]*contracts.MetricsRow, error) {
	query := `SELECT ` + metricsColumns + ` FROM metrics_daily WHERE date = $1 ORDER BY symbol`

	rows, err := s.pool.Query(ctx, query, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*contracts.MetricsRow
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// GetBySymbolAndDate returns one row, or nil when absent
func (s *Store) GetBySymbolAndDate(ctx context.Context, symbol string, date time.Time) (*contracts.MetricsRow, error) {
	query := `SELECT ` + metricsColumns + ` FROM metrics_daily WHERE symbol = $1 AND date = $2`

	rows, err := s.pool.Query(ctx, query, symbol, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanRow(rows)
}

// LatestDate returns the most recent date with persisted metrics
func (s *Store) LatestDate(ctx context.Context) (time.Time, error) {
	var latest *time.Time
	err := s.pool.QueryRow(ctx, `SELECT MAX(date) FROM metrics_daily`).Scan(&latest)
	if err != nil {
		return time.Time{}, err
	}
	if latest == nil {
		return time.Time{}, pgx.ErrNoRows
	}
	return *latest, nil
}

func scanRow(rows pgx.Rows) (*contracts.MetricsRow, error) {
	var row contracts.MetricsRow
	var stage *int
	var candle string

	err := rows.Scan(
		&row.Symbol, &row.Date, &row.Close,
		&row.Change1DPct, &row.Change1DValue, &row.Change1WPct,
		&row.Change1MPct, &row.Change3MPct, &row.Change6MPct,
		&row.RSPercentile, &row.VARS, &row.VARW,
		&row.ATR14, &row.ATRPct, &row.ADRPct, &row.TodayRangePct,
		&row.Volume50DAvg, &row.RVOL, &row.IsVolumeSurge,
		&row.EMA10, &row.SMA20, &row.SMA50, &row.SMA100, &row.SMA200,
		&row.DistFromEMA10Pct, &row.DistFromSMA50Pct, &row.DistFromSMA200Pct,
		&row.IsMAStacked,
		&row.ATRExtFromSMA50, &row.LoDATRPct, &row.IsLoDTight,
		&row.Darvas20DHigh, &row.Darvas20DLow, &row.DarvasBoxRangePct, &row.DarvasPositionPct,
		&row.IsNew20DHigh, &row.IsNew20DLow, &row.IsNew52WHigh, &row.IsNew52WLow,
		&row.VCPScore, &stage, &row.StageDetail, &candle, &row.BodyPct,
	)
	if err != nil {
		return nil, err
	}

	if stage != nil {
		s := contracts.Stage(*stage)
		row.Stage = &s
	}
	row.Candle = contracts.Candle(candle)

	return &row, nil
}
