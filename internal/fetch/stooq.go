package fetch

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"kabu/internal/domain"
	"kabu/internal/util"
)

// Compile-time interface check.
var _ Source = (*StooqSource)(nil)

// StooqSource fetches daily, weekly, and monthly bars from the Stooq CSV
// endpoint. Stooq covers both US and Tokyo listings, which makes it the
// default source for mixed universes.
type StooqSource struct {
	// BaseURL is overridable for tests.
	BaseURL string

	client  *http.Client
	limiter *util.RateLimiter
}

// NewStooqSource creates a StooqSource limited to perMinute requests.
func NewStooqSource(perMinute int) *StooqSource {
	return &StooqSource{
		BaseURL: "https://stooq.com",
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: util.NewRateLimiter(perMinute),
	}
}

// --- Symbol and interval translation ---

// stooqSymbol maps our symbol convention to Stooq's: "7203.T" becomes
// "7203.jp", a bare US symbol like "AAPL" becomes "aapl.us".
func stooqSymbol(symbol string) string {
	s := strings.ToLower(symbol)
	if strings.HasSuffix(s, ".t") {
		return strings.TrimSuffix(s, ".t") + ".jp"
	}
	if strings.Contains(s, ".") {
		// Already carries an exchange suffix.
		return s
	}
	return s + ".us"
}

// stooqInterval maps an interval to Stooq's i= parameter.
func stooqInterval(interval domain.Interval) string {
	switch interval {
	case domain.IntervalWeekly:
		return "w"
	case domain.IntervalMonthly:
		return "m"
	default:
		return "d"
	}
}

// --- Fetching ---

// Fetch downloads the CSV history for the symbol and parses it into bars.
func (s *StooqSource) Fetch(ctx context.Context, symbol string, interval domain.Interval, start, end time.Time) ([]domain.Bar, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/q/d/l/?s=%s&d1=%s&d2=%s&i=%s",
		s.BaseURL,
		stooqSymbol(symbol),
		start.Format("20060102"),
		end.Format("20060102"),
		stooqInterval(interval),
	)

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, transientErr("stooq request", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, permanentErr("stooq", fmt.Errorf("symbol %s not found", symbol))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, transientErr("stooq", fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, permanentErr("stooq", fmt.Errorf("status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transientErr("stooq read", err)
	}

	return parseStooqCSV(symbol, body)
}

// parseStooqCSV parses the Stooq CSV payload. Stooq answers unknown symbols
// with a plain "No data" body instead of an error status.
func parseStooqCSV(symbol string, body []byte) ([]domain.Bar, error) {
	text := strings.TrimSpace(string(body))
	if text == "" || strings.HasPrefix(text, "No data") {
		return nil, permanentErr("stooq", fmt.Errorf("no data for symbol %s", symbol))
	}

	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, transientErr("stooq parse", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"date", "open", "high", "low", "close"} {
		if _, ok := col[required]; !ok {
			return nil, transientErr("stooq parse", fmt.Errorf("missing column %q", required))
		}
	}
	volIdx, hasVolume := col["volume"]

	var bars []domain.Bar
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, transientErr("stooq parse", err)
		}

		date, err := time.Parse("2006-01-02", record[col["date"]])
		if err != nil {
			return nil, transientErr("stooq parse", fmt.Errorf("bad date %q: %w", record[col["date"]], err))
		}

		open, err := parseFloat(record[col["open"]])
		if err != nil {
			return nil, transientErr("stooq parse", err)
		}
		high, err := parseFloat(record[col["high"]])
		if err != nil {
			return nil, transientErr("stooq parse", err)
		}
		low, err := parseFloat(record[col["low"]])
		if err != nil {
			return nil, transientErr("stooq parse", err)
		}
		closePx, err := parseFloat(record[col["close"]])
		if err != nil {
			return nil, transientErr("stooq parse", err)
		}

		// Volume is absent for some instruments (indices); treat as zero.
		var volume int64
		if hasVolume && volIdx < len(record) {
			if v, err := parseFloat(record[volIdx]); err == nil {
				volume = int64(v)
			}
		}

		bars = append(bars, domain.Bar{
			Date:   date,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePx,
			Volume: volume,
		})
	}
	return bars, nil
}

func parseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("bad number %q: %w", s, err)
	}
	return v, nil
}
