// Package upstream fetches the mutual-fund scheme catalog and per-scheme
// NAV history from the public upstream API, gating every request on the
// rate limiter (spec.md §4.2).
//
// Design Notes:
//   - Both operations call ratelimiter.WaitForToken before issuing HTTP,
//     the same "gate then call" shape as warming.Service's rate-limited
//     origin fetches in the teacher repo.
//   - A 429 response is treated as fatal: it means the limiter is
//     miscalibrated, not that the caller should back off and retry.
//   - No automatic retry on 5xx/transport errors; recovery is a
//     higher-layer (pipeline re-run) concern, matching spec.md §4.2 and §7.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"encore.app/pkg/dateutil"
	"encore.app/pkg/money"
	"encore.app/ratelimiter"
)

// localFastPathRPS bounds this process's own call rate to the upstream API
// before it ever consults the distributed limiter, the same local
// rate.Limiter fast-path warming.Service keeps in front of its origin
// fetches.
const localFastPathRPS = 5

// Config holds the upstream client's base URL and timeout, named from
// MFAPI_BASE_URL / MFAPI_TIMEOUT in spec.md §6.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// DefaultConfig returns the upstream client's default settings.
func DefaultConfig() Config {
	return Config{
		BaseURL: "https://api.mfapi.in/mf",
		Timeout: 30 * time.Second,
	}
}

// SchemeListEntry is one row of the full upstream catalog.
type SchemeListEntry struct {
	SchemeCode string `json:"schemeCode"`
	SchemeName string `json:"schemeName"`
}

// NAVPoint is a single normalized, ISO-dated NAV observation.
type NAVPoint struct {
	Date dateutil.Date
	NAV  money.Decimal
}

// SchemeHistory is the normalized response for one scheme: authoritative
// fund metadata plus the ascending-by-date NAV series.
type SchemeHistory struct {
	SchemeCode     string
	SchemeName     string
	FundHouse      string
	SchemeType     string
	SchemeCategory string
	History        []NAVPoint
}

// rawSchemeResponse mirrors the upstream JSON shape verbatim before
// normalization: meta.fund_house/scheme_type/scheme_category/scheme_code/
// scheme_name, and data[] entries with "DD-MM-YYYY" dates and string NAVs,
// newest-first.
type rawSchemeResponse struct {
	Meta struct {
		FundHouse      string `json:"fund_house"`
		SchemeType     string `json:"scheme_type"`
		SchemeCategory string `json:"scheme_category"`
		SchemeCode     string `json:"scheme_code"`
		SchemeName     string `json:"scheme_name"`
	} `json:"meta"`
	Data []struct {
		Date string `json:"date"`
		NAV  string `json:"nav"`
	} `json:"data"`
}

// ErrRateLimitBreach signals an upstream 429: the limiter is miscalibrated
// and the caller must surface a fatal signal rather than retry (spec.md §7).
type ErrRateLimitBreach struct {
	Path string
}

func (e *ErrRateLimitBreach) Error() string {
	return fmt.Sprintf("upstream: 429 rate limit breach calling %s — limiter miscalibrated", e.Path)
}

// Client fetches from the upstream mfapi-shaped API.
type Client struct {
	httpClient   *http.Client
	config       Config
	localLimiter *rate.Limiter
}

// New constructs a Client with the given config.
func New(config Config) *Client {
	return &Client{
		httpClient:   &http.Client{Timeout: config.Timeout},
		config:       config,
		localLimiter: rate.NewLimiter(rate.Limit(localFastPathRPS), localFastPathRPS),
	}
}

// ListSchemes fetches the full upstream catalog.
func (c *Client) ListSchemes(ctx context.Context) ([]SchemeListEntry, error) {
	if err := c.localLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("upstream: local rate limiter wait failed: %w", err)
	}
	if err := ratelimiter.WaitForToken(ctx); err != nil {
		return nil, fmt.Errorf("upstream: rate limiter wait failed: %w", err)
	}

	body, err := c.get(ctx, c.config.BaseURL)
	if err != nil {
		return nil, err
	}

	var entries []SchemeListEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("upstream: decode scheme list: %w", err)
	}
	return entries, nil
}

// FetchScheme fetches and normalizes the full NAV history for one scheme.
func (c *Client) FetchScheme(ctx context.Context, schemeCode string) (*SchemeHistory, error) {
	if err := c.localLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("upstream: local rate limiter wait failed: %w", err)
	}
	if err := ratelimiter.WaitForToken(ctx); err != nil {
		return nil, fmt.Errorf("upstream: rate limiter wait failed: %w", err)
	}

	path := c.config.BaseURL + "/" + schemeCode
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}

	var raw rawSchemeResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("upstream: decode scheme %s: %w", schemeCode, err)
	}

	return normalize(&raw)
}

// get issues the HTTP GET and classifies the response per spec.md §4.2/§7:
// 429 is fatal, other non-2xx propagates as a plain error for the caller to
// record and let a later pipeline run retry.
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("upstream: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream: request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &ErrRateLimitBreach{Path: url}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream: %s returned status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("upstream: read response body: %w", err)
	}
	return body, nil
}

// normalize converts the raw upstream shape into a SchemeHistory:
// DD-MM-YYYY dates become ISO dates, NAV strings become fixed-point
// decimals, and the upstream's newest-first ordering is reversed to
// ascending-by-date.
func normalize(raw *rawSchemeResponse) (*SchemeHistory, error) {
	history := make([]NAVPoint, 0, len(raw.Data))
	for _, d := range raw.Data {
		date, err := dateutil.ParseUpstream(d.Date)
		if err != nil {
			return nil, fmt.Errorf("upstream: parse date %q for scheme %s: %w", d.Date, raw.Meta.SchemeCode, err)
		}
		nav, err := money.Parse(d.NAV)
		if err != nil {
			return nil, fmt.Errorf("upstream: parse nav %q for scheme %s: %w", d.NAV, raw.Meta.SchemeCode, err)
		}
		history = append(history, NAVPoint{Date: date, NAV: nav})
	}

	// Reverse: upstream order is newest-first, we want ascending.
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}

	return &SchemeHistory{
		SchemeCode:     raw.Meta.SchemeCode,
		SchemeName:     raw.Meta.SchemeName,
		FundHouse:      raw.Meta.FundHouse,
		SchemeType:     raw.Meta.SchemeType,
		SchemeCategory: raw.Meta.SchemeCategory,
		History:        history,
	}, nil
}
