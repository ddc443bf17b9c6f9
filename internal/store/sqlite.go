package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/helios-advisory/nbo-cli/internal/eligibility"
	"github.com/helios-advisory/nbo-cli/internal/model"
)

// SQLiteStore implements Store on an embedded database file. It is the
// default backend for local single-operator runs; the schema mirrors the
// Postgres one with timestamps stored as RFC 3339 UTC text.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at path and applies the
// connection pragmas. Use ":memory:" for an ephemeral store in tests.
func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}

	// WAL keeps readers unblocked during snapshot refreshes; a single
	// writer connection avoids SQLITE_BUSY under concurrent saves.
	db.SetMaxOpenConns(1)
	pragmas := []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA synchronous = NORMAL`,
		`PRAGMA busy_timeout = 5000`,
		`PRAGMA foreign_keys = ON`,
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: %s", p)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS clients (
	id         TEXT PRIMARY KEY,
	features   TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS interactions (
	id          TEXT PRIMARY KEY,
	client_id   TEXT NOT NULL REFERENCES clients(id),
	kind        TEXT NOT NULL,
	occurred_at TEXT NOT NULL,
	resolved_at TEXT
);

CREATE TABLE IF NOT EXISTS scoring_runs (
	id          TEXT PRIMARY KEY,
	weights     TEXT NOT NULL,
	config_hash TEXT NOT NULL DEFAULT '',
	filtered    INTEGER NOT NULL DEFAULT 0,
	candidates  TEXT NOT NULL,
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_interactions_client_kind ON interactions(client_id, kind, occurred_at DESC);
CREATE INDEX IF NOT EXISTS idx_scoring_runs_created_at ON scoring_runs(created_at DESC);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) LoadClients(ctx context.Context) ([]model.RawClient, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT features FROM clients ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load clients")
	}
	defer rows.Close()

	var clients []model.RawClient
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan client")
		}
		var raw model.RawClient
		if err := json.Unmarshal([]byte(data), &raw); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal client")
		}
		clients = append(clients, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate clients")
	}
	return clients, nil
}

func (s *SQLiteStore) SaveClients(ctx context.Context, clients []model.RawClient) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: save clients: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO clients (id, features, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET features = excluded.features, updated_at = excluded.updated_at`)
	if err != nil {
		return eris.Wrap(err, "sqlite: save clients: prepare")
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, c := range clients {
		data, err := json.Marshal(c)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal client %s", c.ID)
		}
		if _, err := stmt.ExecContext(ctx, c.ID, string(data), now); err != nil {
			return eris.Wrapf(err, "sqlite: upsert client %s", c.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: save clients: commit")
}

func (s *SQLiteStore) FetchIndicators(ctx context.Context, ids []string, now time.Time, w eligibility.Windows) (map[string]eligibility.Indicators, error) {
	if len(ids) == 0 {
		return map[string]eligibility.Indicators{}, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	// RFC 3339 UTC text compares correctly as strings.
	query := fmt.Sprintf(`
		SELECT client_id,
		       MAX(CASE WHEN kind = 'email' AND occurred_at >= ? THEN 1 ELSE 0 END),
		       MAX(CASE WHEN kind = 'call' AND occurred_at >= ? THEN 1 ELSE 0 END),
		       MAX(CASE WHEN kind = 'new_policy' AND occurred_at >= ? THEN 1 ELSE 0 END),
		       MAX(CASE WHEN kind = 'complaint' AND resolved_at IS NULL THEN 1 ELSE 0 END),
		       MAX(CASE WHEN kind = 'claim' AND occurred_at >= ? THEN 1 ELSE 0 END)
		FROM interactions
		WHERE client_id IN (%s)
		GROUP BY client_id`, placeholders)

	args := []any{
		eligibility.BusinessDaysAgo(now, w.EmailBusinessDays).UTC().Format(time.RFC3339),
		now.AddDate(0, 0, -w.PhoneDays).UTC().Format(time.RFC3339),
		now.AddDate(0, 0, -w.NewPolicyDays).UTC().Format(time.RFC3339),
		now.AddDate(0, 0, -w.ClaimDays).UTC().Format(time.RFC3339),
	}
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: fetch indicators")
	}
	defer rows.Close()

	out := make(map[string]eligibility.Indicators, len(ids))
	for rows.Next() {
		var id string
		var ind eligibility.Indicators
		if err := rows.Scan(&id, &ind.EmailedRecently, &ind.CalledRecently,
			&ind.NewPolicyRecently, &ind.OpenComplaint, &ind.RecentClaim); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan indicators")
		}
		out[id] = ind
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate indicators")
	}
	return out, nil
}

// RecordInteraction appends one contact event to a client's history.
func (s *SQLiteStore) RecordInteraction(ctx context.Context, clientID, kind string, occurredAt time.Time, resolvedAt *time.Time) error {
	var resolved any
	if resolvedAt != nil {
		resolved = resolvedAt.UTC().Format(time.RFC3339)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO interactions (id, client_id, kind, occurred_at, resolved_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), clientID, kind, occurredAt.UTC().Format(time.RFC3339), resolved,
	)
	return eris.Wrapf(err, "sqlite: record interaction for %s", clientID)
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run *ScoringRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	weights, err := json.Marshal(run.Weights)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal weights")
	}
	candidates, err := json.Marshal(run.Candidates)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal candidates")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scoring_runs (id, weights, config_hash, filtered, candidates, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, string(weights), run.ConfigHash, boolToInt(run.Filtered),
		string(candidates), run.CreatedAt.UTC().Format(time.RFC3339),
	)
	return eris.Wrapf(err, "sqlite: insert run %s", run.ID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*ScoringRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, weights, config_hash, filtered, candidates, created_at FROM scoring_runs WHERE id = ?`,
		runID,
	)
	run, err := scanSQLiteRun(row.Scan)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, eris.Errorf("sqlite: run %s not found", runID)
		}
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]ScoringRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, weights, config_hash, filtered, candidates, created_at FROM scoring_runs ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []ScoringRun
	for rows.Next() {
		run, err := scanSQLiteRun(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate runs")
	}
	return runs, nil
}

func scanSQLiteRun(scan func(dest ...any) error) (*ScoringRun, error) {
	var run ScoringRun
	var weights, candidates, createdAt string
	var filtered int
	if err := scan(&run.ID, &weights, &run.ConfigHash, &filtered, &candidates, &createdAt); err != nil {
		return nil, err
	}
	run.Filtered = filtered != 0
	if err := json.Unmarshal([]byte(weights), &run.Weights); err != nil {
		return nil, eris.Wrap(err, "unmarshal weights")
	}
	if err := json.Unmarshal([]byte(candidates), &run.Candidates); err != nil {
		return nil, eris.Wrap(err, "unmarshal candidates")
	}
	ts, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, eris.Wrap(err, "parse created_at")
	}
	run.CreatedAt = ts
	return &run, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
