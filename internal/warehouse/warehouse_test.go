package warehouse

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pipewarden/internal/config"
)

func testConfig() config.WarehouseConfig {
	return config.WarehouseConfig{
		Schema:          "public",
		Table:           "raw_news",
		QuarantineTable: "raw_news_quarantine",
		IDColumn:        "article_id",
		TimestampColumn: "published_at",
	}
}

// newMockClient creates a Client backed by pgxmock.
func newMockClient(t *testing.T) (*Client, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return New(mock, testConfig()), mock
}

func TestColumns(t *testing.T) {
	c, mock := newMockClient(t)

	mock.ExpectQuery(`SELECT column_name, data_type, is_nullable`).
		WithArgs("public", "raw_news").
		WillReturnRows(pgxmock.NewRows([]string{"column_name", "data_type", "is_nullable"}).
			AddRow("article_id", "text", "NO").
			AddRow("title", "text", "YES").
			AddRow("published_at", "timestamp with time zone", "YES"))

	cols, err := c.Columns(context.Background(), "raw_news")
	require.NoError(t, err)
	require.Len(t, cols, 3)
	assert.Equal(t, "article_id", cols[0].Name)
	assert.False(t, cols[0].Nullable)
	assert.True(t, cols[1].Nullable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestColumnsUnknownTable(t *testing.T) {
	c, mock := newMockClient(t)

	mock.ExpectQuery(`SELECT column_name, data_type, is_nullable`).
		WithArgs("public", "missing").
		WillReturnRows(pgxmock.NewRows([]string{"column_name", "data_type", "is_nullable"}))

	_, err := c.Columns(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestEnsureQuarantineTable(t *testing.T) {
	c, mock := newMockClient(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "public"."raw_news_quarantine"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, c.EnsureQuarantineTable(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyRowsByID(t *testing.T) {
	c, mock := newMockClient(t)

	ids := []string{"TEST_001", "TEST_002"}
	mock.ExpectExec(`INSERT INTO "public"."raw_news_quarantine"`).
		WithArgs(ids, "anomaly_detected").
		WillReturnResult(pgxmock.NewResult("INSERT", 2))

	n, err := c.CopyRowsByID(context.Background(), ids, "anomaly_detected")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyRowsByIDEmpty(t *testing.T) {
	c, mock := newMockClient(t)

	_, err := c.CopyRowsByID(context.Background(), nil, "anomaly_detected")
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSampleRows(t *testing.T) {
	c, mock := newMockClient(t)

	mock.ExpectQuery(`SELECT \* FROM "public"."raw_news"`).
		WithArgs(30, 2).
		WillReturnRows(pgxmock.NewRows([]string{"article_id", "title"}).
			AddRow("A1", "Quarterly earnings beat").
			AddRow("A2", "Merger announced"))

	rows, err := c.SampleRows(context.Background(), SampleQuery{Limit: 2, LookbackDays: 30})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "A1", rows[0]["article_id"])
	assert.Equal(t, "Merger announced", rows[1]["title"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRowCount(t *testing.T) {
	c, mock := newMockClient(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM "public"."raw_news"`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1234)))

	n, err := c.RowCount(context.Background(), "raw_news")
	require.NoError(t, err)
	assert.Equal(t, int64(1234), n)
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"published_at"`, quoteIdent("published_at"))
	assert.Equal(t, `"wei""rd"`, quoteIdent(`wei"rd`))
}
