// Package kabu provides a Go client for the kabu results API served by
// kabu-server.
package kabu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNotFound is returned when the API reports a missing session.
var ErrNotFound = errors.New("not found")

// Session is one backtest session as reported by the API.
type Session struct {
	ID          string `json:"id"`
	Strategy    string `json:"strategy"`
	BaseSeed    int64  `json:"baseSeed"`
	Runs        int    `json:"runs"`
	SampleSize  int    `json:"sampleSize"`
	WindowStart string `json:"windowStart"`
	WindowEnd   string `json:"windowEnd"`
	StartedAt   string `json:"startedAt"`
	FinishedAt  string `json:"finishedAt,omitempty"`
}

// Run is one run's reduced metrics within a session.
type Run struct {
	RunID       int                `json:"runId"`
	Seed        int64              `json:"seed"`
	Instruments int                `json:"instruments"`
	Failures    int                `json:"failures,omitempty"`
	Metrics     map[string]float64 `json:"metrics"`
}

// SessionDetail pairs a session with its runs.
type SessionDetail struct {
	Session Session `json:"session"`
	Runs    []Run   `json:"runs"`
}

// MetricSummary is one metric's distribution across a session's runs.
type MetricSummary struct {
	Metric string  `json:"metric"`
	Runs   int     `json:"runs"`
	Mean   float64 `json:"mean"`
	Stddev float64 `json:"stddev"`
	CILow  float64 `json:"ciLow"`
	CIHigh float64 `json:"ciHigh"`
	Min    float64 `json:"min"`
	Q25    float64 `json:"q25"`
	Median float64 `json:"median"`
	Q75    float64 `json:"q75"`
	Max    float64 `json:"max"`
}

// Usage is one symbol's sampling counters within a session.
type Usage struct {
	Symbol  string `json:"symbol"`
	Sampled int    `json:"sampled"`
	Traded  int    `json:"traded"`
}

// Client provides a Go SDK for the kabu-server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// ListSessions retrieves all sessions, most recent first. A non-empty
// strategy restricts the list to that strategy.
func (c *Client) ListSessions(ctx context.Context, strategy string) ([]Session, error) {
	path := "/api/sessions"
	if strategy != "" {
		path += "?strategy=" + url.QueryEscape(strategy)
	}
	var resp struct {
		Sessions []Session `json:"sessions"`
	}
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// Session retrieves one session and its per-run metrics.
func (c *Client) Session(ctx context.Context, id string) (*SessionDetail, error) {
	var resp SessionDetail
	if err := c.get(ctx, "/api/sessions/"+url.PathEscape(id), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Summary retrieves a session's aggregated metric statistics.
func (c *Client) Summary(ctx context.Context, id string) ([]MetricSummary, error) {
	var resp struct {
		Summary []MetricSummary `json:"summary"`
	}
	if err := c.get(ctx, "/api/sessions/"+url.PathEscape(id)+"/summary", &resp); err != nil {
		return nil, err
	}
	return resp.Summary, nil
}

// Usage retrieves a session's per-symbol sampling counters.
func (c *Client) Usage(ctx context.Context, id string) ([]Usage, error) {
	var resp struct {
		Usage []Usage `json:"usage"`
	}
	if err := c.get(ctx, "/api/sessions/"+url.PathEscape(id)+"/usage", &resp); err != nil {
		return nil, err
	}
	return resp.Usage, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request for %s: %w", path, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s: %s (status %d)", path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
