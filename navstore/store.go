// Package navstore persists fund metadata and NAV history, and answers the
// range/latest/max-date queries the orchestrators and read API need
// (spec.md §3, §4.4, §4.5).
//
// Design Notes:
//   - Fund rows are upserted on every ingestion (authoritative upstream
//     values win); NAV points are upserted keyed on (scheme_code, nav_date)
//     so repeated writes from a resumed backfill are idempotent.
//   - Grounded on invalidation/audit.go's sqldb.Database + ensureSchema
//     pattern: a Store struct wraps *sqldb.Database, creates its own
//     tables on construction, and exposes a narrow interface
//     (Interface) so orchestrators and tests can substitute an in-memory
//     fake, mirroring invalidation's AuditLoggerInterface/MockAuditLogger.
package navstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"encore.dev/storage/sqldb"
	"golang.org/x/sync/singleflight"

	"encore.app/pkg/dateutil"
	"encore.app/pkg/money"
)

// ErrNotFound is returned when a fund or NAV lookup finds nothing.
var ErrNotFound = errors.New("navstore: not found")

// Fund is the persisted fund metadata row.
type Fund struct {
	SchemeCode string
	SchemeName string
	AMC        string
	Category   string
	SchemeType string
}

// NAVPoint is one persisted NAV observation.
type NAVPoint struct {
	SchemeCode string
	Date       dateutil.Date
	NAV        money.Decimal
}

// Interface is the narrow surface orchestrators, analytics, and the read
// API depend on, so tests can substitute an in-memory fake.
type Interface interface {
	UpsertFund(ctx context.Context, fund Fund) error
	UpsertNAVPoints(ctx context.Context, points []NAVPoint) (int, error)
	GetFund(ctx context.Context, schemeCode string) (*Fund, error)
	ListFunds(ctx context.Context, category, amc string) ([]Fund, error)
	LatestNAV(ctx context.Context, schemeCode string) (*NAVPoint, error)
	MaxNAVDate(ctx context.Context, schemeCode string) (dateutil.Date, bool, error)
	History(ctx context.Context, schemeCode string) ([]NAVPoint, error)
}

// Store is the Postgres-backed implementation.
type Store struct {
	db    *sqldb.Database
	group singleflight.Group
}

// NewStore constructs a Store and ensures its schema exists.
func NewStore(db *sqldb.Database) (*Store, error) {
	s := &Store{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("navstore: initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS funds (
			scheme_code TEXT PRIMARY KEY,
			scheme_name TEXT NOT NULL,
			amc TEXT NOT NULL,
			category TEXT NOT NULL,
			scheme_type TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS nav_points (
			scheme_code TEXT NOT NULL REFERENCES funds(scheme_code),
			nav_date DATE NOT NULL,
			nav NUMERIC(15,4) NOT NULL,
			PRIMARY KEY (scheme_code, nav_date)
		);

		CREATE INDEX IF NOT EXISTS idx_nav_points_scheme_date
		ON nav_points(scheme_code, nav_date DESC);
	`
	_, err := s.db.Exec(ctx, query)
	return err
}

// UpsertFund inserts or updates a fund row with authoritative upstream
// values, per spec.md §4.4 step 4.
func (s *Store) UpsertFund(ctx context.Context, fund Fund) error {
	query := `
		INSERT INTO funds (scheme_code, scheme_name, amc, category, scheme_type, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (scheme_code) DO UPDATE SET
			scheme_name = EXCLUDED.scheme_name,
			amc = EXCLUDED.amc,
			category = EXCLUDED.category,
			scheme_type = EXCLUDED.scheme_type,
			updated_at = NOW()
	`
	_, err := s.db.Exec(ctx, query, fund.SchemeCode, fund.SchemeName, fund.AMC, fund.Category, fund.SchemeType)
	if err != nil {
		return fmt.Errorf("navstore: upsert fund %s: %w", fund.SchemeCode, err)
	}
	return nil
}

// UpsertNAVPoints bulk-upserts NAV points, overwriting the price on a
// duplicate (scheme_code, nav_date) per spec.md §3's NAV-point invariant.
// Returns the number of points written.
func (s *Store) UpsertNAVPoints(ctx context.Context, points []NAVPoint) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("navstore: begin tx: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT INTO nav_points (scheme_code, nav_date, nav)
		VALUES ($1, $2, $3)
		ON CONFLICT (scheme_code, nav_date) DO UPDATE SET nav = EXCLUDED.nav
	`
	for _, p := range points {
		if _, err := tx.Exec(ctx, query, p.SchemeCode, p.Date.Time(), p.NAV); err != nil {
			return 0, fmt.Errorf("navstore: upsert nav point %s/%s: %w", p.SchemeCode, p.Date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("navstore: commit nav points: %w", err)
	}
	return len(points), nil
}

// GetFund fetches one fund by scheme code.
func (s *Store) GetFund(ctx context.Context, schemeCode string) (*Fund, error) {
	query := `SELECT scheme_code, scheme_name, amc, category, scheme_type FROM funds WHERE scheme_code = $1`
	var f Fund
	err := s.db.QueryRow(ctx, query, schemeCode).Scan(&f.SchemeCode, &f.SchemeName, &f.AMC, &f.Category, &f.SchemeType)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("navstore: get fund %s: %w", schemeCode, err)
	}
	return &f, nil
}

// ListFunds returns funds matching case-insensitive LIKE filters on
// category and amc (spec.md §6 `/funds`); empty filters match everything.
func (s *Store) ListFunds(ctx context.Context, category, amc string) ([]Fund, error) {
	query := `
		SELECT scheme_code, scheme_name, amc, category, scheme_type
		FROM funds
		WHERE ($1 = '' OR category ILIKE '%' || $1 || '%')
		  AND ($2 = '' OR amc ILIKE '%' || $2 || '%')
		ORDER BY scheme_code
	`
	rows, err := s.db.Query(ctx, query, category, amc)
	if err != nil {
		return nil, fmt.Errorf("navstore: list funds: %w", err)
	}
	defer rows.Close()

	var out []Fund
	for rows.Next() {
		var f Fund
		if err := rows.Scan(&f.SchemeCode, &f.SchemeName, &f.AMC, &f.Category, &f.SchemeType); err != nil {
			return nil, fmt.Errorf("navstore: scan fund: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// LatestNAV returns the most recent NAV point for a scheme, coalescing
// concurrent duplicate lookups for the same scheme code via singleflight,
// the same shape as cache-manager's request coalescer.
func (s *Store) LatestNAV(ctx context.Context, schemeCode string) (*NAVPoint, error) {
	v, err, _ := s.group.Do(schemeCode, func() (interface{}, error) {
		return s.latestNAVUncached(ctx, schemeCode)
	})
	if err != nil {
		return nil, err
	}
	return v.(*NAVPoint), nil
}

func (s *Store) latestNAVUncached(ctx context.Context, schemeCode string) (*NAVPoint, error) {
	query := `
		SELECT scheme_code, nav_date, nav FROM nav_points
		WHERE scheme_code = $1
		ORDER BY nav_date DESC
		LIMIT 1
	`
	var p NAVPoint
	var date time.Time
	err := s.db.QueryRow(ctx, query, schemeCode).Scan(&p.SchemeCode, &date, &p.NAV)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("navstore: latest nav %s: %w", schemeCode, err)
	}
	p.Date = dateutil.FromTime(date)
	return &p, nil
}

// MaxNAVDate returns the latest nav_date for a scheme, used by the
// incremental orchestrator to compute its delta-fetch filter.
func (s *Store) MaxNAVDate(ctx context.Context, schemeCode string) (dateutil.Date, bool, error) {
	query := `SELECT MAX(nav_date) FROM nav_points WHERE scheme_code = $1`
	var date *time.Time
	err := s.db.QueryRow(ctx, query, schemeCode).Scan(&date)
	if err != nil {
		return dateutil.Date{}, false, fmt.Errorf("navstore: max nav date %s: %w", schemeCode, err)
	}
	if date == nil {
		return dateutil.Date{}, false, nil
	}
	return dateutil.FromTime(*date), true, nil
}

// History returns the full ascending-by-date NAV series for a scheme, the
// input the analytics engine operates over.
func (s *Store) History(ctx context.Context, schemeCode string) ([]NAVPoint, error) {
	query := `
		SELECT scheme_code, nav_date, nav FROM nav_points
		WHERE scheme_code = $1
		ORDER BY nav_date ASC
	`
	rows, err := s.db.Query(ctx, query, schemeCode)
	if err != nil {
		return nil, fmt.Errorf("navstore: history %s: %w", schemeCode, err)
	}
	defer rows.Close()

	var out []NAVPoint
	for rows.Next() {
		var p NAVPoint
		var date time.Time
		if err := rows.Scan(&p.SchemeCode, &date, &p.NAV); err != nil {
			return nil, fmt.Errorf("navstore: scan nav point: %w", err)
		}
		p.Date = dateutil.FromTime(date)
		out = append(out, p)
	}
	return out, rows.Err()
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
