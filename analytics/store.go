package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"encore.dev/storage/sqldb"
)

// ErrNotFound is returned when no analytics row exists for the key.
var ErrNotFound = errors.New("analytics: not found")

// Row is the persisted analytics row for one (scheme_code, window) pair,
// matching spec.md §3's "Analytics row" relation.
type Row struct {
	SchemeCode    string
	Window        string
	ReturnMin     float64
	ReturnMax     float64
	ReturnMedian  float64
	ReturnP25     float64
	ReturnP75     float64
	MaxDrawdown   float64
	CAGRMin       float64
	CAGRMax       float64
	CAGRMedian    float64
	DataStartDate string
	DataEndDate   string
	ComputedAt    time.Time
}

// Store is the Postgres-backed analytics-row repository.
type Store struct {
	db *sqldb.Database
}

// NewStore constructs a Store and ensures its schema exists.
func NewStore(db *sqldb.Database) (*Store, error) {
	s := &Store{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("analytics: initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS analytics (
			scheme_code TEXT NOT NULL,
			window_type TEXT NOT NULL,
			return_min DOUBLE PRECISION,
			return_max DOUBLE PRECISION,
			return_median DOUBLE PRECISION,
			return_p25 DOUBLE PRECISION,
			return_p75 DOUBLE PRECISION,
			max_drawdown DOUBLE PRECISION,
			cagr_min DOUBLE PRECISION,
			cagr_max DOUBLE PRECISION,
			cagr_median DOUBLE PRECISION,
			data_start_date DATE,
			data_end_date DATE,
			computed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (scheme_code, window_type)
		);
	`
	_, err := s.db.Exec(ctx, query)
	return err
}

// Replace recomputes and overwrites every window row for a scheme: windows
// present in rows are upserted, windows absent (insufficient history) have
// their existing row deleted so stale analytics never linger.
func (s *Store) Replace(ctx context.Context, schemeCode string, rows []Result) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("analytics: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(ctx, `DELETE FROM analytics WHERE scheme_code = $1`, schemeCode); err != nil {
		return fmt.Errorf("analytics: clear stale rows for %s: %w", schemeCode, err)
	}

	const insert = `
		INSERT INTO analytics (
			scheme_code, window_type, return_min, return_max, return_median,
			return_p25, return_p75, max_drawdown, cagr_min, cagr_max, cagr_median,
			data_start_date, data_end_date, computed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW())
	`
	for _, r := range rows {
		_, err := tx.Exec(ctx, insert, schemeCode, r.Window, r.ReturnMin, r.ReturnMax, r.ReturnMedian,
			r.ReturnP25, r.ReturnP75, r.MaxDrawdown, r.CAGRMin, r.CAGRMax, r.CAGRMedian,
			r.DataStartDate, r.DataEndDate)
		if err != nil {
			return fmt.Errorf("analytics: insert row %s/%s: %w", schemeCode, r.Window, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("analytics: commit replace: %w", err)
	}
	return nil
}

// Get fetches one (scheme_code, window) analytics row.
func (s *Store) Get(ctx context.Context, schemeCode, window string) (*Row, error) {
	query := `
		SELECT scheme_code, window_type, return_min, return_max, return_median,
		       return_p25, return_p75, max_drawdown, cagr_min, cagr_max, cagr_median,
		       data_start_date, data_end_date, computed_at
		FROM analytics WHERE scheme_code = $1 AND window_type = $2
	`
	var row Row
	var start, end time.Time
	err := s.db.QueryRow(ctx, query, schemeCode, window).Scan(
		&row.SchemeCode, &row.Window, &row.ReturnMin, &row.ReturnMax, &row.ReturnMedian,
		&row.ReturnP25, &row.ReturnP75, &row.MaxDrawdown, &row.CAGRMin, &row.CAGRMax, &row.CAGRMedian,
		&start, &end, &row.ComputedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("analytics: get %s/%s: %w", schemeCode, window, err)
	}
	row.DataStartDate = start.Format("2006-01-02")
	row.DataEndDate = end.Format("2006-01-02")
	return &row, nil
}

// ListByWindow returns every scheme's row for a given window, used by the
// rank endpoint.
func (s *Store) ListByWindow(ctx context.Context, window string) ([]Row, error) {
	query := `
		SELECT scheme_code, window_type, return_min, return_max, return_median,
		       return_p25, return_p75, max_drawdown, cagr_min, cagr_max, cagr_median,
		       data_start_date, data_end_date, computed_at
		FROM analytics WHERE window_type = $1
	`
	rows, err := s.db.Query(ctx, query, window)
	if err != nil {
		return nil, fmt.Errorf("analytics: list by window %s: %w", window, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var row Row
		var start, end time.Time
		if err := rows.Scan(&row.SchemeCode, &row.Window, &row.ReturnMin, &row.ReturnMax, &row.ReturnMedian,
			&row.ReturnP25, &row.ReturnP75, &row.MaxDrawdown, &row.CAGRMin, &row.CAGRMax, &row.CAGRMedian,
			&start, &end, &row.ComputedAt); err != nil {
			return nil, fmt.Errorf("analytics: scan row: %w", err)
		}
		row.DataStartDate = start.Format("2006-01-02")
		row.DataEndDate = end.Format("2006-01-02")
		out = append(out, row)
	}
	return out, rows.Err()
}
