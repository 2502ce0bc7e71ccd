// Package readapi exposes the public HTTP read surface over funds and
// analytics (spec.md §6), the out-of-core-scope "external collaborator"
// read API the ingestion pipeline feeds.
package readapi

import (
	"context"
	"errors"
	"math"
	"sort"

	"encore.dev/beta/errs"
	"encore.dev/storage/sqldb"

	"encore.app/analytics"
	"encore.app/navstore"
	"encore.app/ratelimiter"
)

// Service holds readapi's collaborators as injectable values, the same
// dependency-as-function-value shape pipeline.Orchestrator uses, so its
// handlers can run against hand-rolled fakes in tests without an Encore
// runtime or a Postgres instance.
//
//encore:service
type Service struct {
	navStore      navstore.Interface
	getAnalytics  func(ctx context.Context, req analytics.GetRequest) (*analytics.Row, error)
	rankAnalytics func(ctx context.Context, window string) ([]analytics.Row, error)
	limiterStatus func(ctx context.Context) (*ratelimiter.StatusResponse, error)
	pingPostgres  func(ctx context.Context) error
}

// New wires a Service from explicit collaborators.
func New(
	navStore navstore.Interface,
	getAnalytics func(ctx context.Context, req analytics.GetRequest) (*analytics.Row, error),
	rankAnalytics func(ctx context.Context, window string) ([]analytics.Row, error),
	limiterStatus func(ctx context.Context) (*ratelimiter.StatusResponse, error),
	pingPostgres func(ctx context.Context) error,
) *Service {
	return &Service{
		navStore:      navStore,
		getAnalytics:  getAnalytics,
		rankAnalytics: rankAnalytics,
		limiterStatus: limiterStatus,
		pingPostgres:  pingPostgres,
	}
}

var healthDB = sqldb.Named("navstore_db")

var svc *Service

func initService() (*Service, error) {
	return New(
		navstore.Get(),
		analytics.Get,
		analytics.Rank,
		ratelimiter.GetStatus,
		func(ctx context.Context) error {
			rows, err := healthDB.Query(ctx, `SELECT 1`)
			if err != nil {
				return err
			}
			rows.Close()
			return nil
		},
	), nil
}

func init() {
	var err error
	svc, err = initService()
	if err != nil {
		panic(err)
	}
}

// FundsResponse wraps a fund listing.
type FundsResponse struct {
	Funds []navstore.Fund `json:"funds"`
}

// ListFundsRequest filters the fund catalog.
type ListFundsRequest struct {
	Category string `query:"category"`
	AMC      string `query:"amc"`
}

func (s *Service) listFunds(ctx context.Context, req *ListFundsRequest) (*FundsResponse, error) {
	funds, err := s.navStore.ListFunds(ctx, req.Category, req.AMC)
	if err != nil {
		return nil, err
	}
	return &FundsResponse{Funds: funds}, nil
}

// ListFunds returns every tracked fund, optionally filtered by category
// and/or AMC (spec.md §6 GET /funds).
//
//encore:api public method=GET path=/funds
func ListFunds(ctx context.Context, req *ListFundsRequest) (*FundsResponse, error) {
	return svc.listFunds(ctx, req)
}

// FundView is the wire shape for GET /funds/:code: the fund's metadata plus
// its latest NAV, per spec.md §6's "Fund + latest NAV" contract. LatestNAV
// fields are left zero when a fund has been discovered but never backfilled.
type FundView struct {
	navstore.Fund
	LatestNAVDate string `json:"latest_nav_date,omitempty"`
	LatestNAV     string `json:"latest_nav,omitempty"`
}

func (s *Service) getFund(ctx context.Context, code string) (*FundView, error) {
	fund, err := s.navStore.GetFund(ctx, code)
	if err != nil {
		if errors.Is(err, navstore.ErrNotFound) {
			return nil, &errs.Error{Code: errs.NotFound, Message: "fund not found: " + code}
		}
		return nil, err
	}

	view := &FundView{Fund: *fund}
	nav, err := s.navStore.LatestNAV(ctx, code)
	switch {
	case err == nil:
		view.LatestNAVDate = nav.Date.String()
		view.LatestNAV = nav.NAV.String()
	case errors.Is(err, navstore.ErrNotFound):
		// discovered but not yet backfilled: no NAV to report.
	default:
		return nil, err
	}
	return view, nil
}

// GetFund returns one fund's metadata plus its latest NAV, 404 if untracked
// (spec.md §6 GET /funds/:code).
//
//encore:api public method=GET path=/funds/:code
func GetFund(ctx context.Context, code string) (*FundView, error) {
	return svc.getFund(ctx, code)
}

// GetFundAnalyticsRequest names the rolling window to fetch.
type GetFundAnalyticsRequest struct {
	Window string `query:"window"` // "1Y", "3Y", "5Y", or "10Y"
}

// AnalyticsView is the wire shape for one fund's analytics row: every
// return/drawdown/CAGR ratio is scaled to a percentage and rounded to one
// decimal place (spec.md §6), distinct from the stored analytics.Row's
// raw ratios which stay full-precision for ranking and internal reuse.
type AnalyticsView struct {
	SchemeCode      string  `json:"scheme_code"`
	Window          string  `json:"window"`
	ReturnMinPct    float64 `json:"return_min_pct"`
	ReturnMaxPct    float64 `json:"return_max_pct"`
	ReturnP25Pct    float64 `json:"return_p25_pct"`
	ReturnMedianPct float64 `json:"return_median_pct"`
	ReturnP75Pct    float64 `json:"return_p75_pct"`
	MaxDrawdownPct  float64 `json:"max_drawdown_pct"`
	CAGRMinPct      float64 `json:"cagr_min_pct"`
	CAGRMaxPct      float64 `json:"cagr_max_pct"`
	CAGRMedianPct   float64 `json:"cagr_median_pct"`
	DataStartDate   string  `json:"data_start_date"`
	DataEndDate     string  `json:"data_end_date"`
}

func toPercentView(row analytics.Row) AnalyticsView {
	return AnalyticsView{
		SchemeCode:      row.SchemeCode,
		Window:          row.Window,
		ReturnMinPct:    roundPct(row.ReturnMin),
		ReturnMaxPct:    roundPct(row.ReturnMax),
		ReturnP25Pct:    roundPct(row.ReturnP25),
		ReturnMedianPct: roundPct(row.ReturnMedian),
		ReturnP75Pct:    roundPct(row.ReturnP75),
		MaxDrawdownPct:  roundPct(row.MaxDrawdown),
		CAGRMinPct:      roundPct(row.CAGRMin),
		CAGRMaxPct:      roundPct(row.CAGRMax),
		CAGRMedianPct:   roundPct(row.CAGRMedian),
		DataStartDate:   row.DataStartDate,
		DataEndDate:     row.DataEndDate,
	}
}

func roundPct(ratio float64) float64 {
	return math.Round(ratio*100*10) / 10
}

func (s *Service) getFundAnalytics(ctx context.Context, code string, req *GetFundAnalyticsRequest) (*AnalyticsView, error) {
	row, err := s.getAnalytics(ctx, analytics.GetRequest{SchemeCode: code, Window: req.Window})
	if err != nil {
		if errors.Is(err, analytics.ErrNotFound) {
			return nil, &errs.Error{Code: errs.NotFound, Message: "no analytics for " + code + "/" + req.Window}
		}
		return nil, err
	}
	view := toPercentView(*row)
	return &view, nil
}

// GetFundAnalytics returns one fund's analytics row for a window, 404 if
// absent (no analytics computed, or insufficient history for that window,
// per spec.md §4.6's sufficiency test).
//
//encore:api public method=GET path=/funds/:code/analytics
func GetFundAnalytics(ctx context.Context, code string, req *GetFundAnalyticsRequest) (*AnalyticsView, error) {
	return svc.getFundAnalytics(ctx, code, req)
}

// RankRequest parameterizes the /funds/rank endpoint.
type RankRequest struct {
	Category string `query:"category"`
	Window   string `query:"window"`
	SortBy   string `query:"sort_by"` // "median_return" or "max_drawdown"
	Limit    int    `query:"limit"`
}

// RankResponse is the ordered, limited rank listing.
type RankResponse struct {
	Funds []RankedFund `json:"funds"`
}

// RankedFund pairs a fund's metadata with its analytics view for the
// ranked window.
type RankedFund struct {
	navstore.Fund
	Analytics AnalyticsView `json:"analytics"`
	rawRow    analytics.Row // kept for full-precision sorting before rounding
}

func (s *Service) rankFunds(ctx context.Context, req *RankRequest) (*RankResponse, error) {
	if req.Window == "" || req.SortBy == "" {
		return nil, &errs.Error{Code: errs.InvalidArgument, Message: "window and sort_by are required"}
	}
	if req.SortBy != "median_return" && req.SortBy != "max_drawdown" {
		return nil, &errs.Error{Code: errs.InvalidArgument, Message: `sort_by must be "median_return" or "max_drawdown"`}
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.rankAnalytics(ctx, req.Window)
	if err != nil {
		return nil, err
	}

	ranked := make([]RankedFund, 0, len(rows))
	for _, row := range rows {
		fund, err := s.navStore.GetFund(ctx, row.SchemeCode)
		if err != nil {
			continue // fund deleted from catalog but analytics row not yet cleared
		}
		if req.Category != "" && fund.Category != req.Category {
			continue
		}
		ranked = append(ranked, RankedFund{Fund: *fund, Analytics: toPercentView(row), rawRow: row})
	}

	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		switch req.SortBy {
		case "median_return":
			if a.rawRow.ReturnMedian != b.rawRow.ReturnMedian {
				return a.rawRow.ReturnMedian > b.rawRow.ReturnMedian
			}
		case "max_drawdown":
			if a.rawRow.MaxDrawdown != b.rawRow.MaxDrawdown {
				return a.rawRow.MaxDrawdown < b.rawRow.MaxDrawdown // ascending, most negative first
			}
		}
		return a.SchemeCode < b.SchemeCode
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return &RankResponse{Funds: ranked}, nil
}

// RankFunds ranks funds within a category by a window's median return
// (descending) or max drawdown (ascending, most-negative first), ties
// broken by scheme_code (spec.md §6 GET /funds/rank).
//
//encore:api public method=GET path=/funds/rank
func RankFunds(ctx context.Context, req *RankRequest) (*RankResponse, error) {
	return svc.rankFunds(ctx, req)
}

// HealthResponse reports downstream dependency reachability, mirroring
// monitoring/service.go's aggregator shape.
type HealthResponse struct {
	Postgres string `json:"postgres"`
	Redis    string `json:"redis"`
}

func (s *Service) health(ctx context.Context) (*HealthResponse, error) {
	resp := &HealthResponse{Postgres: "ok", Redis: "ok"}
	if err := s.pingPostgres(ctx); err != nil {
		resp.Postgres = "unreachable: " + err.Error()
	}
	if _, err := s.limiterStatus(ctx); err != nil {
		resp.Redis = "unreachable: " + err.Error()
	}
	return resp, nil
}

// Health pings Postgres and the rate limiter's Redis client (spec.md §6
// GET /health). The limiter fails open on a Redis error (spec.md §4.1), so
// a genuinely unreachable Redis still reports "ok" here; this mirrors the
// pipeline's own liveness-over-strict-admission tradeoff rather than
// double-reporting an outage the limiter already absorbs.
//
//encore:api public method=GET path=/health
func Health(ctx context.Context) (*HealthResponse, error) {
	return svc.health(ctx)
}
