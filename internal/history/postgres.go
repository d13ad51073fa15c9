package history

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/pipewarden/internal/db"
	"github.com/sells-group/pipewarden/internal/model"
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

// preparedStatements lists queries to prepare on each new connection for
// the hot append/list paths.
var preparedStatements = map[string]string{
	"insert_decision":  `INSERT INTO decisions (id, action, priority, payload, created_at) VALUES ($1, $2, $3, $4, $5)`,
	"insert_action":    `INSERT INTO action_results (id, decision_id, action, success, payload, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
	"insert_run":       `INSERT INTO orchestration_runs (id, state, success, payload, created_at) VALUES ($1, $2, $3, $4, $5)`,
	"recent_decisions": `SELECT payload FROM decisions ORDER BY created_at DESC LIMIT $1`,
	"recent_actions":   `SELECT payload FROM action_results ORDER BY created_at DESC LIMIT $1`,
	"recent_runs":      `SELECT payload FROM orchestration_runs ORDER BY created_at DESC LIMIT $1`,
	"save_baseline":    `INSERT INTO schema_baselines (table_name, payload, captured_at) VALUES ($1, $2, $3) ON CONFLICT (table_name) DO UPDATE SET payload = EXCLUDED.payload, captured_at = EXCLUDED.captured_at`,
	"load_baseline":    `SELECT payload FROM schema_baselines WHERE table_name = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
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

const postgresMigration = `
CREATE TABLE IF NOT EXISTS decisions (
	id         TEXT PRIMARY KEY,
	action     TEXT NOT NULL,
	priority   TEXT NOT NULL,
	payload    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS action_results (
	id          TEXT PRIMARY KEY,
	decision_id TEXT NOT NULL,
	action      TEXT NOT NULL,
	success     BOOLEAN NOT NULL,
	payload     JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS orchestration_runs (
	id         TEXT PRIMARY KEY,
	state      TEXT NOT NULL,
	success    BOOLEAN NOT NULL,
	payload    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS schema_baselines (
	table_name  TEXT PRIMARY KEY,
	payload     JSONB NOT NULL,
	captured_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_created_at ON decisions(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_decisions_action ON decisions(action);
CREATE INDEX IF NOT EXISTS idx_action_results_created_at ON action_results(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_action_results_decision_id ON action_results(decision_id);
CREATE INDEX IF NOT EXISTS idx_orchestration_runs_created_at ON orchestration_runs(created_at DESC);
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

// Pool returns the underlying database pool for subsystems that share the
// history database (e.g. a warehouse client pointed at the same instance).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func (s *PostgresStore) AppendDecision(ctx context.Context, d model.Decision) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal decision")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO decisions (id, action, priority, payload, created_at) VALUES ($1, $2, $3, $4, $5)`,
		d.ID, string(d.Action), string(d.Priority), payload, d.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: insert decision %s", d.ID)
}

func (s *PostgresStore) AppendAction(ctx context.Context, a model.ActionResult) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal action result")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO action_results (id, decision_id, action, success, payload, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.DecisionID, string(a.Action), a.Success, payload, a.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: insert action result %s", a.ID)
}

func (s *PostgresStore) AppendRun(ctx context.Context, r model.OrchestrationRun) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO orchestration_runs (id, state, success, payload, created_at) VALUES ($1, $2, $3, $4, $5)`,
		r.ID, string(r.State), r.Success, payload, r.StartedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: insert run %s", r.ID)
}

func (s *PostgresStore) RecentDecisions(ctx context.Context, limit int) ([]model.Decision, error) {
	return recentPayloads[model.Decision](ctx, s.pool,
		`SELECT payload FROM decisions ORDER BY created_at DESC LIMIT $1`, limit, "decisions")
}

func (s *PostgresStore) RecentActions(ctx context.Context, limit int) ([]model.ActionResult, error) {
	return recentPayloads[model.ActionResult](ctx, s.pool,
		`SELECT payload FROM action_results ORDER BY created_at DESC LIMIT $1`, limit, "action results")
}

func (s *PostgresStore) RecentRuns(ctx context.Context, limit int) ([]model.OrchestrationRun, error) {
	return recentPayloads[model.OrchestrationRun](ctx, s.pool,
		`SELECT payload FROM orchestration_runs ORDER BY created_at DESC LIMIT $1`, limit, "runs")
}

// recentPayloads runs a single-column payload query and unmarshals each row.
func recentPayloads[T any](ctx context.Context, pool db.Pool, query string, limit int, what string) ([]T, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	rows, err := pool.Query(ctx, query, limit)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list %s", what)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrapf(err, "postgres: scan %s", what)
		}
		var entry T
		if err := json.Unmarshal(payload, &entry); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal %s", what)
		}
		out = append(out, entry)
	}
	return out, eris.Wrapf(rows.Err(), "postgres: iterate %s", what)
}

func (s *PostgresStore) SaveBaseline(ctx context.Context, b model.SchemaBaseline) error {
	payload, err := json.Marshal(b)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal baseline")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO schema_baselines (table_name, payload, captured_at) VALUES ($1, $2, $3) ON CONFLICT (table_name) DO UPDATE SET payload = EXCLUDED.payload, captured_at = EXCLUDED.captured_at`,
		b.Table, payload, b.CapturedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: save baseline %s", b.Table)
}

func (s *PostgresStore) LoadBaseline(ctx context.Context, table string) (*model.SchemaBaseline, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM schema_baselines WHERE table_name = $1`, table,
	).Scan(&payload)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: load baseline %s", table)
	}

	var b model.SchemaBaseline
	if err := json.Unmarshal(payload, &b); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal baseline")
	}
	return &b, nil
}
