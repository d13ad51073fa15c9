package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pipewarden/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestSQLiteRoundTrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.AppendDecision(ctx, decisionAt("d1", base)))
	require.NoError(t, s.AppendDecision(ctx, decisionAt("d2", base.Add(time.Minute))))
	require.NoError(t, s.AppendAction(ctx, model.ActionResult{
		ID:         "a1",
		DecisionID: "d2",
		Action:     model.ActionFlagForReview,
		CreatedAt:  base,
		StepsTaken: []model.StepName{model.StepSendAlert},
		Success:    true,
	}))
	require.NoError(t, s.AppendRun(ctx, model.OrchestrationRun{
		ID:        "r1",
		StartedAt: base,
		State:     model.StateIdle,
		Success:   true,
	}))

	decisions, err := s.RecentDecisions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, decisions, 2)
	assert.Equal(t, "d2", decisions[0].ID)
	assert.Equal(t, "d1", decisions[1].ID)

	actions, err := s.RecentActions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, model.ActionFlagForReview, actions[0].Action)
	assert.Equal(t, []model.StepName{model.StepSendAlert}, actions[0].StepsTaken)

	runs, err := s.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Success)
}

func TestSQLiteRecentLimit(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < DefaultRecentLimit+2; i++ {
		d := decisionAt("", base.Add(time.Duration(i)*time.Second))
		d.ID = d.CreatedAt.Format("150405")
		require.NoError(t, s.AppendDecision(ctx, d))
	}

	capped, err := s.RecentDecisions(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, capped, 3)

	defaulted, err := s.RecentDecisions(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, defaulted, DefaultRecentLimit)
}

func TestSQLiteBaselineUpsert(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	missing, err := s.LoadBaseline(ctx, "public.raw_news")
	require.NoError(t, err)
	assert.Nil(t, missing)

	b := model.SchemaBaseline{
		Table:        "public.raw_news",
		Columns:      []model.Column{{Name: "article_id", DataType: "text"}},
		PartitionKey: "published_at",
		CapturedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.SaveBaseline(ctx, b))

	b.Columns = append(b.Columns, model.Column{Name: "title", DataType: "text", Nullable: true})
	b.CapturedAt = b.CapturedAt.Add(time.Hour)
	require.NoError(t, s.SaveBaseline(ctx, b))

	got, err := s.LoadBaseline(ctx, "public.raw_news")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Len(t, got.Columns, 2)
	assert.Equal(t, "published_at", got.PartitionKey)
	assert.Equal(t, b.CapturedAt, got.CapturedAt.UTC())
}
