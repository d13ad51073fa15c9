// Package warehouse is the Postgres client for the monitored table: schema
// introspection for the guardian, row sampling for the detective, and the
// quarantine side table for the executor.
package warehouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pipewarden/internal/config"
	"github.com/sells-group/pipewarden/internal/db"
	"github.com/sells-group/pipewarden/internal/model"
)

// Client queries the monitored warehouse table through a shared pool.
type Client struct {
	pool db.Pool
	cfg  config.WarehouseConfig
}

// New creates a warehouse client.
func New(pool db.Pool, cfg config.WarehouseConfig) *Client {
	return &Client{pool: pool, cfg: cfg}
}

// queryCtx bounds a single warehouse query by the configured timeout.
func (c *Client) queryCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.TimeoutSecs <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, time.Duration(c.cfg.TimeoutSecs)*time.Second)
}

// SampleQuery selects which recent rows to hand to the anomaly detective.
type SampleQuery struct {
	Limit           int
	LookbackDays    int
	TimestampColumn string
}

// Table returns the fully qualified monitored table name.
func (c *Client) Table() string {
	return fmt.Sprintf("%s.%s", quoteIdent(c.cfg.Schema), quoteIdent(c.cfg.Table))
}

// QuarantineTable returns the fully qualified quarantine table name.
func (c *Client) QuarantineTable() string {
	return fmt.Sprintf("%s.%s", quoteIdent(c.cfg.Schema), quoteIdent(c.cfg.QuarantineTable))
}

// Columns introspects information_schema for the given table, ordered by
// ordinal position.
func (c *Client) Columns(ctx context.Context, table string) ([]model.Column, error) {
	ctx, cancel := c.queryCtx(ctx)
	defer cancel()

	rows, err := c.pool.Query(ctx, `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`,
		c.cfg.Schema, table,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "warehouse: columns of %s", table)
	}
	defer rows.Close()

	var cols []model.Column
	for rows.Next() {
		var col model.Column
		var nullable string
		if err := rows.Scan(&col.Name, &col.DataType, &nullable); err != nil {
			return nil, eris.Wrap(err, "warehouse: scan column")
		}
		col.Nullable = nullable == "YES"
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "warehouse: iterate columns of %s", table)
	}
	if len(cols) == 0 {
		return nil, eris.Errorf("warehouse: table %s.%s not found or has no columns", c.cfg.Schema, table)
	}
	return cols, nil
}

// PartitionKey returns the table's partition key expression, or "" for
// unpartitioned tables.
func (c *Client) PartitionKey(ctx context.Context, table string) (string, error) {
	ctx, cancel := c.queryCtx(ctx)
	defer cancel()

	var key *string
	err := c.pool.QueryRow(ctx, `
		SELECT pg_get_partkeydef(c.oid)
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1 AND c.relname = $2`,
		c.cfg.Schema, table,
	).Scan(&key)
	if err != nil {
		return "", eris.Wrapf(err, "warehouse: partition key of %s", table)
	}
	if key == nil {
		return "", nil
	}
	return *key, nil
}

// RowCount counts rows in the given table.
func (c *Client) RowCount(ctx context.Context, table string) (int64, error) {
	ctx, cancel := c.queryCtx(ctx)
	defer cancel()

	var count int64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s.%s`, quoteIdent(c.cfg.Schema), quoteIdent(table))
	if err := c.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, eris.Wrapf(err, "warehouse: count %s", table)
	}
	return count, nil
}

// SampleRows returns recent rows from the monitored table as generic
// records, newest first by the configured timestamp column.
func (c *Client) SampleRows(ctx context.Context, q SampleQuery) ([]map[string]any, error) {
	ctx, cancel := c.queryCtx(ctx)
	defer cancel()

	if q.Limit <= 0 {
		q.Limit = 20
	}
	if q.LookbackDays <= 0 {
		q.LookbackDays = 30
	}
	tsCol := q.TimestampColumn
	if tsCol == "" {
		tsCol = c.cfg.TimestampColumn
	}

	query := fmt.Sprintf(`
		SELECT * FROM %s
		WHERE %s >= now() - ($1 * interval '1 day')
		ORDER BY %s DESC
		LIMIT $2`,
		c.Table(), quoteIdent(tsCol), quoteIdent(tsCol),
	)

	rows, err := c.pool.Query(ctx, query, q.LookbackDays, q.Limit)
	if err != nil {
		return nil, eris.Wrap(err, "warehouse: sample rows")
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, eris.Wrap(err, "warehouse: read sample row")
		}
		record := make(map[string]any, len(fields))
		for i, fd := range fields {
			record[fd.Name] = values[i]
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "warehouse: iterate sample rows")
	}
	return out, nil
}

// EnsureQuarantineTable creates the quarantine side table when missing:
// the source table's columns plus quarantined_at and quarantine_reason.
// Idempotent.
func (c *Client) EnsureQuarantineTable(ctx context.Context) error {
	ctx, cancel := c.queryCtx(ctx)
	defer cancel()

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s AS
		SELECT *,
			now() AS quarantined_at,
			''::text AS quarantine_reason
		FROM %s
		WHERE FALSE`,
		c.QuarantineTable(), c.Table(),
	)
	if _, err := c.pool.Exec(ctx, query); err != nil {
		return eris.Wrapf(err, "warehouse: ensure quarantine table %s", c.cfg.QuarantineTable)
	}
	return nil
}

// CopyRowsByID copies matching source rows into the quarantine table,
// tagged with the reason and a capture timestamp, and returns the number
// of rows copied. Source rows are never deleted; the ingestion buffer is
// append-only and the rollback script is the manual path back.
func (c *Client) CopyRowsByID(ctx context.Context, ids []string, reason string) (int64, error) {
	ctx, cancel := c.queryCtx(ctx)
	defer cancel()

	if len(ids) == 0 {
		return 0, eris.New("warehouse: no ids to quarantine")
	}

	query := fmt.Sprintf(`
		INSERT INTO %s
		SELECT *,
			now() AS quarantined_at,
			$2::text AS quarantine_reason
		FROM %s
		WHERE %s = ANY($1)`,
		c.QuarantineTable(), c.Table(), quoteIdent(c.cfg.IDColumn),
	)

	start := time.Now()
	tag, err := c.pool.Exec(ctx, query, ids, reason)
	if err != nil {
		return 0, eris.Wrap(err, "warehouse: copy rows to quarantine")
	}

	zap.L().Info("warehouse: rows quarantined",
		zap.Int64("rows", tag.RowsAffected()),
		zap.Int("ids", len(ids)),
		zap.String("reason", reason),
		zap.Duration("took", time.Since(start)),
	)
	return tag.RowsAffected(), nil
}

// quoteIdent double-quotes a SQL identifier sourced from configuration.
func quoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
