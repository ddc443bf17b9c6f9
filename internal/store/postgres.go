package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/helios-advisory/nbo-cli/internal/db"
	"github.com/helios-advisory/nbo-cli/internal/eligibility"
	"github.com/helios-advisory/nbo-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for the
// hottest store operations.
var preparedStatements = map[string]string{
	"insert_run":   `INSERT INTO scoring_runs (id, weights, config_hash, filtered, candidates, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
	"get_run":      `SELECT id, weights, config_hash, filtered, candidates, created_at FROM scoring_runs WHERE id = $1`,
	"load_clients": `SELECT features FROM clients ORDER BY id`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: pool.Close}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS clients (
	id         TEXT PRIMARY KEY,
	features   JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS interactions (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	client_id   TEXT NOT NULL REFERENCES clients(id),
	kind        TEXT NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL,
	resolved_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS scoring_runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	weights     JSONB NOT NULL,
	config_hash TEXT NOT NULL DEFAULT '',
	filtered    BOOLEAN NOT NULL DEFAULT false,
	candidates  JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_interactions_client_kind ON interactions(client_id, kind, occurred_at DESC);
CREATE INDEX IF NOT EXISTS idx_scoring_runs_created_at ON scoring_runs(created_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) LoadClients(ctx context.Context) ([]model.RawClient, error) {
	rows, err := s.pool.Query(ctx, `SELECT features FROM clients ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load clients")
	}
	defer rows.Close()

	var clients []model.RawClient
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan client")
		}
		var raw model.RawClient
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal client")
		}
		clients = append(clients, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate clients")
	}
	return clients, nil
}

// SaveClients refreshes the client snapshot with a bulk temp-table upsert.
func (s *PostgresStore) SaveClients(ctx context.Context, clients []model.RawClient) error {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(clients))
	for _, c := range clients {
		data, err := json.Marshal(c)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal client %s", c.ID)
		}
		rows = append(rows, []any{c.ID, data, now})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "clients",
		Columns:      []string{"id", "features", "updated_at"},
		ConflictKeys: []string{"id"},
	}, rows)
	if err != nil {
		return eris.Wrap(err, "postgres: save clients")
	}
	_ = n
	return nil
}

// indicatorSQL aggregates the five interaction flags for a batch of clients
// in a single query; cutoffs are computed by the caller from the configured
// windows.
const indicatorSQL = `
SELECT client_id,
       BOOL_OR(kind = 'email' AND occurred_at >= $2)      AS emailed,
       BOOL_OR(kind = 'call' AND occurred_at >= $3)       AS called,
       BOOL_OR(kind = 'new_policy' AND occurred_at >= $4) AS new_policy,
       BOOL_OR(kind = 'complaint' AND resolved_at IS NULL) AS open_complaint,
       BOOL_OR(kind = 'claim' AND occurred_at >= $5)      AS claimed
FROM interactions
WHERE client_id = ANY($1)
GROUP BY client_id`

func (s *PostgresStore) FetchIndicators(ctx context.Context, ids []string, now time.Time, w eligibility.Windows) (map[string]eligibility.Indicators, error) {
	if len(ids) == 0 {
		return map[string]eligibility.Indicators{}, nil
	}

	rows, err := s.pool.Query(ctx, indicatorSQL,
		ids,
		eligibility.BusinessDaysAgo(now, w.EmailBusinessDays),
		now.AddDate(0, 0, -w.PhoneDays),
		now.AddDate(0, 0, -w.NewPolicyDays),
		now.AddDate(0, 0, -w.ClaimDays),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: fetch indicators")
	}
	defer rows.Close()

	out := make(map[string]eligibility.Indicators, len(ids))
	for rows.Next() {
		var id string
		var ind eligibility.Indicators
		if err := rows.Scan(&id, &ind.EmailedRecently, &ind.CalledRecently,
			&ind.NewPolicyRecently, &ind.OpenComplaint, &ind.RecentClaim); err != nil {
			return nil, eris.Wrap(err, "postgres: scan indicators")
		}
		out[id] = ind
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate indicators")
	}
	return out, nil
}

// RecordInteraction appends one contact event to a client's history.
func (s *PostgresStore) RecordInteraction(ctx context.Context, clientID, kind string, occurredAt time.Time, resolvedAt *time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO interactions (id, client_id, kind, occurred_at, resolved_at) VALUES ($1, $2, $3, $4, $5)`,
		uuid.New().String(), clientID, kind, occurredAt, resolvedAt,
	)
	return eris.Wrapf(err, "postgres: record interaction for %s", clientID)
}

func (s *PostgresStore) SaveRun(ctx context.Context, run *ScoringRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	weights, err := json.Marshal(run.Weights)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal weights")
	}
	candidates, err := json.Marshal(run.Candidates)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal candidates")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO scoring_runs (id, weights, config_hash, filtered, candidates, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, weights, run.ConfigHash, run.Filtered, candidates, run.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert run %s", run.ID)
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*ScoringRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, weights, config_hash, filtered, candidates, created_at FROM scoring_runs WHERE id = $1`,
		runID,
	)
	run, err := scanRun(row)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, eris.Errorf("postgres: run %s not found", runID)
		}
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]ScoringRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, weights, config_hash, filtered, candidates, created_at FROM scoring_runs ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []ScoringRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate runs")
	}
	return runs, nil
}

func scanRun(row pgx.Row) (*ScoringRun, error) {
	var run ScoringRun
	var weights, candidates []byte
	if err := row.Scan(&run.ID, &weights, &run.ConfigHash, &run.Filtered, &candidates, &run.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(weights, &run.Weights); err != nil {
		return nil, eris.Wrap(err, "unmarshal weights")
	}
	if err := json.Unmarshal(candidates, &run.Candidates); err != nil {
		return nil, eris.Wrap(err, "unmarshal candidates")
	}
	return &run, nil
}
