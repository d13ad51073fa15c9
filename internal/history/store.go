package history

import (
	"context"

	"github.com/sells-group/pipewarden/internal/model"
)

// Store persists decision, action, and run records beyond process lifetime,
// and keeps the schema baselines the guardian diffs against. Appends are
// fire-and-forget from the orchestrator's perspective: a failed archive is
// logged and never fails a cycle.
type Store interface {
	AppendDecision(ctx context.Context, d model.Decision) error
	AppendAction(ctx context.Context, a model.ActionResult) error
	AppendRun(ctx context.Context, r model.OrchestrationRun) error

	RecentDecisions(ctx context.Context, limit int) ([]model.Decision, error)
	RecentActions(ctx context.Context, limit int) ([]model.ActionResult, error)
	RecentRuns(ctx context.Context, limit int) ([]model.OrchestrationRun, error)

	// SaveBaseline upserts the baseline for its table; LoadBaseline returns
	// nil (no error) when none has been captured.
	SaveBaseline(ctx context.Context, b model.SchemaBaseline) error
	LoadBaseline(ctx context.Context, table string) (*model.SchemaBaseline, error)

	Migrate(ctx context.Context) error
	Close() error
}
