package schema

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pipewarden/internal/config"
	"github.com/sells-group/pipewarden/internal/history"
	"github.com/sells-group/pipewarden/internal/model"
)

type mockInspector struct {
	mock.Mock
}

func (m *mockInspector) Columns(ctx context.Context, table string) ([]model.Column, error) {
	args := m.Called(ctx, table)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Column), args.Error(1)
}

func (m *mockInspector) PartitionKey(ctx context.Context, table string) (string, error) {
	args := m.Called(ctx, table)
	return args.String(0), args.Error(1)
}

func testColumns() []model.Column {
	return []model.Column{
		{Name: "article_id", DataType: "text", Nullable: false},
		{Name: "title", DataType: "text", Nullable: true},
		{Name: "sentiment_score", DataType: "double precision", Nullable: true},
		{Name: "published_at", DataType: "timestamp with time zone", Nullable: true},
	}
}

func newTestGuardian(t *testing.T, inspector *mockInspector) (*Guardian, *history.MemoryStore) {
	t.Helper()
	store := history.NewMemoryStore()
	cfg := config.WarehouseConfig{Schema: "public", Table: "raw_news"}
	g := NewGuardian(inspector, store, cfg,
		WithClock(func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }))
	t.Cleanup(func() { inspector.AssertExpectations(t) })
	return g, store
}

func TestCaptureBaselinePersists(t *testing.T) {
	inspector := &mockInspector{}
	inspector.On("Columns", mock.Anything, "raw_news").Return(testColumns(), nil).Once()
	inspector.On("PartitionKey", mock.Anything, "raw_news").Return("RANGE (published_at)", nil).Once()

	g, _ := newTestGuardian(t, inspector)

	baseline, err := g.CaptureBaseline(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "public.raw_news", baseline.Table)
	assert.Len(t, baseline.Columns, 4)
	assert.Equal(t, "RANGE (published_at)", baseline.PartitionKey)

	stored, err := g.Baseline(context.Background())
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, baseline.Columns, stored.Columns)
}

func TestDetectDriftRequiresBaseline(t *testing.T) {
	g, _ := newTestGuardian(t, &mockInspector{})

	_, err := g.DetectDrift(context.Background())
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNoBaseline))
}

func TestDetectDriftNoChanges(t *testing.T) {
	inspector := &mockInspector{}
	inspector.On("Columns", mock.Anything, "raw_news").Return(testColumns(), nil)
	inspector.On("PartitionKey", mock.Anything, "raw_news").Return("", nil)

	g, _ := newTestGuardian(t, inspector)
	_, err := g.CaptureBaseline(context.Background())
	require.NoError(t, err)

	changes, err := g.DetectDrift(context.Background())
	require.NoError(t, err)
	assert.Nil(t, changes)
}

func TestDetectDriftFindsEveryChangeKind(t *testing.T) {
	inspector := &mockInspector{}
	inspector.On("Columns", mock.Anything, "raw_news").Return(testColumns(), nil).Once()
	inspector.On("PartitionKey", mock.Anything, "raw_news").Return("", nil).Once()

	g, _ := newTestGuardian(t, inspector)
	_, err := g.CaptureBaseline(context.Background())
	require.NoError(t, err)

	drifted := []model.Column{
		{Name: "article_id", DataType: "text", Nullable: false},
		// title removed.
		{Name: "sentiment_score", DataType: "text", Nullable: true},           // type change
		{Name: "published_at", DataType: "timestamp with time zone"},          // now NOT NULL
		{Name: "embedding", DataType: "vector", Nullable: true},               // new
	}
	inspector.On("Columns", mock.Anything, "raw_news").Return(drifted, nil).Once()
	inspector.On("PartitionKey", mock.Anything, "raw_news").Return("RANGE (synced_at)", nil).Once()

	changes, err := g.DetectDrift(context.Background())
	require.NoError(t, err)
	require.NotNil(t, changes)

	require.Len(t, changes.NewColumns, 1)
	assert.Equal(t, "embedding", changes.NewColumns[0].Name)

	require.Len(t, changes.RemovedColumns, 1)
	assert.Equal(t, "title", changes.RemovedColumns[0].Name)

	require.Len(t, changes.TypeChanges, 1)
	assert.Equal(t, model.TypeChange{
		Column: "sentiment_score", OldType: "double precision", NewType: "text",
	}, changes.TypeChanges[0])

	require.Len(t, changes.NullabilityChanges, 1)
	assert.Equal(t, "published_at", changes.NullabilityChanges[0].Column)

	require.Len(t, changes.PartitionChanges, 1)
	assert.Contains(t, changes.PartitionChanges[0], "RANGE (synced_at)")

	assert.Equal(t, 5, changes.Total())
}

func TestDetectDriftPropagatesInspectorError(t *testing.T) {
	inspector := &mockInspector{}
	inspector.On("Columns", mock.Anything, "raw_news").Return(testColumns(), nil).Once()
	inspector.On("PartitionKey", mock.Anything, "raw_news").Return("", nil).Once()

	g, _ := newTestGuardian(t, inspector)
	_, err := g.CaptureBaseline(context.Background())
	require.NoError(t, err)

	inspector.On("Columns", mock.Anything, "raw_news").
		Return(nil, eris.New("warehouse: connection refused")).Once()

	_, err = g.DetectDrift(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestBuildAlertSeverityLadder(t *testing.T) {
	g, _ := newTestGuardian(t, &mockInspector{})

	cases := []struct {
		name    string
		changes model.SchemaChanges
		want    model.Severity
	}{
		{
			name: "type change outranks everything",
			changes: model.SchemaChanges{
				TypeChanges:    []model.TypeChange{{Column: "a"}},
				RemovedColumns: []model.Column{{Name: "b"}},
				NewColumns:     []model.Column{{Name: "c"}},
			},
			want: model.SeverityCritical,
		},
		{
			name:    "removed column",
			changes: model.SchemaChanges{RemovedColumns: []model.Column{{Name: "b"}}},
			want:    model.SeverityHigh,
		},
		{
			name:    "partition change",
			changes: model.SchemaChanges{PartitionChanges: []string{"changed"}},
			want:    model.SeverityHigh,
		},
		{
			name:    "nullability change",
			changes: model.SchemaChanges{NullabilityChanges: []model.NullabilityChange{{Column: "a"}}},
			want:    model.SeverityMedium,
		},
		{
			name:    "new column only",
			changes: model.SchemaChanges{NewColumns: []model.Column{{Name: "c"}}},
			want:    model.SeverityLow,
		},
		{
			name: "empty",
			want: model.SeverityInfo,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			alert := g.BuildAlert(tc.changes)
			assert.Equal(t, tc.want, alert.Severity)
			assert.Equal(t, tc.changes.Total(), alert.ChangeCount)
			assert.Equal(t, "public.raw_news", alert.Table)
			assert.NotEmpty(t, alert.ID)
		})
	}
}

func TestBuildAlertImpactAndRecommendations(t *testing.T) {
	g, _ := newTestGuardian(t, &mockInspector{})

	alert := g.BuildAlert(model.SchemaChanges{
		TypeChanges: []model.TypeChange{{Column: "sentiment_score", OldType: "double precision", NewType: "text"}},
	})

	assert.Contains(t, alert.Impact, "break queries expecting previous types")
	assert.Contains(t, alert.Recommendations, "Pause Fivetran connector immediately")

	clean := g.BuildAlert(model.SchemaChanges{})
	assert.Equal(t, "No significant impact detected", clean.Impact)
	assert.Empty(t, clean.Recommendations)
}
