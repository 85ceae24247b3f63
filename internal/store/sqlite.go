package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"kabu/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ ResultStore = (*SQLiteStore)(nil)

// SQLiteStore implements ResultStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id           TEXT PRIMARY KEY,
	strategy     TEXT NOT NULL,
	base_seed    INTEGER NOT NULL,
	runs         INTEGER NOT NULL,
	sample_size  INTEGER NOT NULL,
	window_start TEXT NOT NULL,
	window_end   TEXT NOT NULL,
	started_at   TEXT NOT NULL,
	finished_at  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS runs (
	session_id  TEXT NOT NULL,
	run_id      INTEGER NOT NULL,
	seed        INTEGER NOT NULL,
	instruments INTEGER NOT NULL,
	failures    INTEGER NOT NULL,
	PRIMARY KEY (session_id, run_id)
);

CREATE TABLE IF NOT EXISTS run_metrics (
	session_id TEXT NOT NULL,
	run_id     INTEGER NOT NULL,
	metric     TEXT NOT NULL,
	value      REAL NOT NULL,
	PRIMARY KEY (session_id, run_id, metric)
);

CREATE TABLE IF NOT EXISTS metric_summary (
	session_id TEXT NOT NULL,
	metric     TEXT NOT NULL,
	runs       INTEGER NOT NULL,
	mean       REAL NOT NULL,
	stddev     REAL NOT NULL,
	ci_low     REAL NOT NULL,
	ci_high    REAL NOT NULL,
	min        REAL NOT NULL,
	q25        REAL NOT NULL,
	median     REAL NOT NULL,
	q75        REAL NOT NULL,
	max        REAL NOT NULL,
	PRIMARY KEY (session_id, metric)
);

CREATE TABLE IF NOT EXISTS symbol_usage (
	session_id TEXT NOT NULL,
	symbol     TEXT NOT NULL,
	sampled    INTEGER NOT NULL,
	traded     INTEGER NOT NULL,
	PRIMARY KEY (session_id, symbol)
);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, ensures the
// schema exists, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

// SaveSession inserts or updates a session record.
func (s *SQLiteStore) SaveSession(ctx context.Context, sess *domain.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sessions
			(id, strategy, base_seed, runs, sample_size, window_start, window_end, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID,
		sess.Strategy,
		sess.BaseSeed,
		sess.Runs,
		sess.SampleSize,
		formatTime(sess.WindowStart),
		formatTime(sess.WindowEnd),
		formatTime(sess.StartedAt),
		formatTime(sess.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("saving session %s: %w", sess.ID, err)
	}
	return nil
}

// GetSession retrieves a single session by ID, or nil when it does not exist.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, strategy, base_seed, runs, sample_size, window_start, window_end, started_at, finished_at
		FROM sessions WHERE id = ?`, id)

	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", id, err)
	}
	return sess, nil
}

// ListSessions returns all sessions, most recent first.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]domain.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, strategy, base_seed, runs, sample_size, window_start, window_end, started_at, finished_at
		FROM sessions ORDER BY started_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		sess                   domain.Session
		windowStart, windowEnd string
		startedAt, finishedAt  string
	)
	err := row.Scan(&sess.ID, &sess.Strategy, &sess.BaseSeed, &sess.Runs, &sess.SampleSize,
		&windowStart, &windowEnd, &startedAt, &finishedAt)
	if err != nil {
		return nil, err
	}
	sess.WindowStart = parseTime(windowStart)
	sess.WindowEnd = parseTime(windowEnd)
	sess.StartedAt = parseTime(startedAt)
	sess.FinishedAt = parseTime(finishedAt)
	return &sess, nil
}

// ---------------------------------------------------------------------------
// Per-run metrics
// ---------------------------------------------------------------------------

// SaveRuns persists the per-run metrics of a session in one transaction.
func (s *SQLiteStore) SaveRuns(ctx context.Context, sessionID string, runs []domain.RunMetrics) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, r := range runs {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO runs (session_id, run_id, seed, instruments, failures)
			VALUES (?, ?, ?, ?, ?)`,
			sessionID, r.RunID, r.Seed, r.Instruments, r.Failures,
		); err != nil {
			return fmt.Errorf("saving run %d: %w", r.RunID, err)
		}
		for metric, value := range r.Metrics {
			if _, err := tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO run_metrics (session_id, run_id, metric, value)
				VALUES (?, ?, ?, ?)`,
				sessionID, r.RunID, metric, value,
			); err != nil {
				return fmt.Errorf("saving run %d metric %s: %w", r.RunID, metric, err)
			}
		}
	}
	return tx.Commit()
}

// ListRuns returns the per-run metrics of a session ordered by run ID.
func (s *SQLiteStore) ListRuns(ctx context.Context, sessionID string) ([]domain.RunMetrics, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seed, instruments, failures
		FROM runs WHERE session_id = ? ORDER BY run_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.RunMetrics
	index := make(map[int]int)
	for rows.Next() {
		var r domain.RunMetrics
		if err := rows.Scan(&r.RunID, &r.Seed, &r.Instruments, &r.Failures); err != nil {
			return nil, err
		}
		r.Metrics = make(map[string]float64)
		index[r.RunID] = len(runs)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	metricRows, err := s.db.QueryContext(ctx, `
		SELECT run_id, metric, value
		FROM run_metrics WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing run metrics: %w", err)
	}
	defer metricRows.Close()

	for metricRows.Next() {
		var (
			runID  int
			metric string
			value  float64
		)
		if err := metricRows.Scan(&runID, &metric, &value); err != nil {
			return nil, err
		}
		if i, ok := index[runID]; ok {
			runs[i].Metrics[metric] = value
		}
	}
	return runs, metricRows.Err()
}

// ---------------------------------------------------------------------------
// Aggregated statistics
// ---------------------------------------------------------------------------

// SaveSummary persists the aggregated metric statistics of a session.
func (s *SQLiteStore) SaveSummary(ctx context.Context, sessionID string, summary []domain.MetricSummary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, m := range summary {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO metric_summary
				(session_id, metric, runs, mean, stddev, ci_low, ci_high, min, q25, median, q75, max)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sessionID, m.Metric, m.Runs, m.Mean, m.Stddev, m.CILow, m.CIHigh,
			m.Min, m.Q25, m.Median, m.Q75, m.Max,
		); err != nil {
			return fmt.Errorf("saving summary for %s: %w", m.Metric, err)
		}
	}
	return tx.Commit()
}

// ListSummary returns the aggregated metric statistics of a session.
func (s *SQLiteStore) ListSummary(ctx context.Context, sessionID string) ([]domain.MetricSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT metric, runs, mean, stddev, ci_low, ci_high, min, q25, median, q75, max
		FROM metric_summary WHERE session_id = ? ORDER BY metric`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing summary: %w", err)
	}
	defer rows.Close()

	var summary []domain.MetricSummary
	for rows.Next() {
		var m domain.MetricSummary
		if err := rows.Scan(&m.Metric, &m.Runs, &m.Mean, &m.Stddev, &m.CILow, &m.CIHigh,
			&m.Min, &m.Q25, &m.Median, &m.Q75, &m.Max); err != nil {
			return nil, err
		}
		summary = append(summary, m)
	}
	return summary, rows.Err()
}

// ---------------------------------------------------------------------------
// Symbol usage
// ---------------------------------------------------------------------------

// SaveUsage persists the per-symbol usage counters of a session.
func (s *SQLiteStore) SaveUsage(ctx context.Context, sessionID string, rows []domain.UsageCount) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, u := range rows {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO symbol_usage (session_id, symbol, sampled, traded)
			VALUES (?, ?, ?, ?)`,
			sessionID, u.Symbol, u.Sampled, u.Traded,
		); err != nil {
			return fmt.Errorf("saving usage for %s: %w", u.Symbol, err)
		}
	}
	return tx.Commit()
}

// ListUsage returns the per-symbol usage counters of a session, most used
// first.
func (s *SQLiteStore) ListUsage(ctx context.Context, sessionID string) ([]domain.UsageCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, sampled, traded
		FROM symbol_usage WHERE session_id = ?
		ORDER BY sampled DESC, symbol`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing usage: %w", err)
	}
	defer rows.Close()

	var usage []domain.UsageCount
	for rows.Next() {
		var u domain.UsageCount
		if err := rows.Scan(&u.Symbol, &u.Sampled, &u.Traded); err != nil {
			return nil, err
		}
		usage = append(usage, u)
	}
	return usage, rows.Err()
}

// ---------------------------------------------------------------------------
// Time helpers
// ---------------------------------------------------------------------------

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
