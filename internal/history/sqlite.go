package history

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/pipewarden/internal/model"
)

// sqliteTimeLayout is fixed-width so lexicographic order matches
// chronological order in ORDER BY clauses.
const sqliteTimeLayout = "2006-01-02 15:04:05.000000000"

// SQLiteStore implements Store using modernc.org/sqlite, for local runs
// without a Postgres history database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS decisions (
	id         TEXT PRIMARY KEY,
	action     TEXT NOT NULL,
	priority   TEXT NOT NULL,
	payload    TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS action_results (
	id          TEXT PRIMARY KEY,
	decision_id TEXT NOT NULL,
	action      TEXT NOT NULL,
	success     INTEGER NOT NULL,
	payload     TEXT NOT NULL,
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS orchestration_runs (
	id         TEXT PRIMARY KEY,
	state      TEXT NOT NULL,
	success    INTEGER NOT NULL,
	payload    TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_baselines (
	table_name  TEXT PRIMARY KEY,
	payload     TEXT NOT NULL,
	captured_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_created_at ON decisions(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_action_results_created_at ON action_results(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_orchestration_runs_created_at ON orchestration_runs(created_at DESC);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) AppendDecision(ctx context.Context, d model.Decision) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal decision")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO decisions (id, action, priority, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		d.ID, string(d.Action), string(d.Priority), string(payload), d.CreatedAt.UTC().Format(sqliteTimeLayout),
	)
	return eris.Wrapf(err, "sqlite: insert decision %s", d.ID)
}

func (s *SQLiteStore) AppendAction(ctx context.Context, a model.ActionResult) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal action result")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO action_results (id, decision_id, action, success, payload, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.DecisionID, string(a.Action), a.Success, string(payload), a.CreatedAt.UTC().Format(sqliteTimeLayout),
	)
	return eris.Wrapf(err, "sqlite: insert action result %s", a.ID)
}

func (s *SQLiteStore) AppendRun(ctx context.Context, r model.OrchestrationRun) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO orchestration_runs (id, state, success, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		r.ID, string(r.State), r.Success, string(payload), r.StartedAt.UTC().Format(sqliteTimeLayout),
	)
	return eris.Wrapf(err, "sqlite: insert run %s", r.ID)
}

func (s *SQLiteStore) RecentDecisions(ctx context.Context, limit int) ([]model.Decision, error) {
	return sqliteRecent[model.Decision](ctx, s.db,
		`SELECT payload FROM decisions ORDER BY created_at DESC LIMIT ?`, limit, "decisions")
}

func (s *SQLiteStore) RecentActions(ctx context.Context, limit int) ([]model.ActionResult, error) {
	return sqliteRecent[model.ActionResult](ctx, s.db,
		`SELECT payload FROM action_results ORDER BY created_at DESC LIMIT ?`, limit, "action results")
}

func (s *SQLiteStore) RecentRuns(ctx context.Context, limit int) ([]model.OrchestrationRun, error) {
	return sqliteRecent[model.OrchestrationRun](ctx, s.db,
		`SELECT payload FROM orchestration_runs ORDER BY created_at DESC LIMIT ?`, limit, "runs")
}

func sqliteRecent[T any](ctx context.Context, db *sql.DB, query string, limit int, what string) ([]T, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	rows, err := db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list %s", what)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan %s", what)
		}
		var entry T
		if err := json.Unmarshal([]byte(payload), &entry); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal %s", what)
		}
		out = append(out, entry)
	}
	return out, eris.Wrapf(rows.Err(), "sqlite: iterate %s", what)
}

func (s *SQLiteStore) SaveBaseline(ctx context.Context, b model.SchemaBaseline) error {
	payload, err := json.Marshal(b)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal baseline")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO schema_baselines (table_name, payload, captured_at) VALUES (?, ?, ?)
		 ON CONFLICT (table_name) DO UPDATE SET payload = excluded.payload, captured_at = excluded.captured_at`,
		b.Table, string(payload), b.CapturedAt.UTC().Format(sqliteTimeLayout),
	)
	return eris.Wrapf(err, "sqlite: save baseline %s", b.Table)
}

func (s *SQLiteStore) LoadBaseline(ctx context.Context, table string) (*model.SchemaBaseline, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM schema_baselines WHERE table_name = ?`, table,
	).Scan(&payload)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: load baseline %s", table)
	}

	var b model.SchemaBaseline
	if err := json.Unmarshal([]byte(payload), &b); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal baseline")
	}
	return &b, nil
}
