// Package schema watches the monitored table's structure for drift
// against a persisted baseline and classifies any changes by severity.
package schema

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pipewarden/internal/config"
	"github.com/sells-group/pipewarden/internal/model"
)

// ColumnInspector reads live table structure, implemented by the
// warehouse client.
type ColumnInspector interface {
	Columns(ctx context.Context, table string) ([]model.Column, error)
	PartitionKey(ctx context.Context, table string) (string, error)
}

// BaselineStore persists schema baselines between runs, implemented by
// the history store.
type BaselineStore interface {
	SaveBaseline(ctx context.Context, b model.SchemaBaseline) error
	LoadBaseline(ctx context.Context, table string) (*model.SchemaBaseline, error)
}

// Guardian compares the monitored table against its captured baseline.
type Guardian struct {
	inspector ColumnInspector
	baselines BaselineStore
	cfg       config.WarehouseConfig
	now       func() time.Time
}

// Option configures a Guardian.
type Option func(*Guardian)

// WithClock overrides the timestamp source, for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Guardian) { g.now = now }
}

// NewGuardian creates a Guardian over the given inspector and baseline
// store.
func NewGuardian(inspector ColumnInspector, baselines BaselineStore, cfg config.WarehouseConfig, opts ...Option) *Guardian {
	g := &Guardian{
		inspector: inspector,
		baselines: baselines,
		cfg:       cfg,
		now:       time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// table is the monitored table's schema-qualified name.
func (g *Guardian) table() string {
	return g.cfg.Schema + "." + g.cfg.Table
}

// CaptureBaseline snapshots the monitored table's current structure and
// persists it as the new drift reference point.
func (g *Guardian) CaptureBaseline(ctx context.Context) (model.SchemaBaseline, error) {
	cols, err := g.inspector.Columns(ctx, g.cfg.Table)
	if err != nil {
		return model.SchemaBaseline{}, eris.Wrapf(err, "schema: capture baseline for %s", g.table())
	}

	partKey, err := g.inspector.PartitionKey(ctx, g.cfg.Table)
	if err != nil {
		return model.SchemaBaseline{}, eris.Wrapf(err, "schema: read partition key for %s", g.table())
	}

	baseline := model.SchemaBaseline{
		Table:        g.table(),
		Columns:      cols,
		PartitionKey: partKey,
		CapturedAt:   g.now().UTC(),
	}

	if err := g.baselines.SaveBaseline(ctx, baseline); err != nil {
		return model.SchemaBaseline{}, eris.Wrap(err, "schema: persist baseline")
	}

	zap.L().Info("schema: baseline captured",
		zap.String("table", baseline.Table),
		zap.Int("columns", len(cols)),
		zap.String("partition_key", partKey),
	)
	return baseline, nil
}

// Baseline returns the persisted baseline, or nil when none was captured.
func (g *Guardian) Baseline(ctx context.Context) (*model.SchemaBaseline, error) {
	b, err := g.baselines.LoadBaseline(ctx, g.table())
	if err != nil {
		return nil, eris.Wrap(err, "schema: load baseline")
	}
	return b, nil
}

// ErrNoBaseline signals that drift detection ran before any baseline was
// captured.
var ErrNoBaseline = eris.New("schema: no baseline captured")

// DetectDrift diffs the live table structure against the persisted
// baseline. Returns nil when the structure is unchanged.
func (g *Guardian) DetectDrift(ctx context.Context) (*model.SchemaChanges, error) {
	baseline, err := g.Baseline(ctx)
	if err != nil {
		return nil, err
	}
	if baseline == nil {
		return nil, ErrNoBaseline
	}

	cols, err := g.inspector.Columns(ctx, g.cfg.Table)
	if err != nil {
		return nil, eris.Wrapf(err, "schema: inspect columns for %s", g.table())
	}

	partKey, err := g.inspector.PartitionKey(ctx, g.cfg.Table)
	if err != nil {
		return nil, eris.Wrapf(err, "schema: read partition key for %s", g.table())
	}

	changes := diff(baseline, cols, partKey)
	if changes.Empty() {
		return nil, nil
	}

	zap.L().Warn("schema: drift detected",
		zap.String("table", g.table()),
		zap.Int("changes", changes.Total()),
	)
	return &changes, nil
}

// diff computes the structural delta between a baseline and the live
// columns and partition key.
func diff(baseline *model.SchemaBaseline, current []model.Column, partKey string) model.SchemaChanges {
	var changes model.SchemaChanges

	baseCols := make(map[string]model.Column, len(baseline.Columns))
	for _, c := range baseline.Columns {
		baseCols[c.Name] = c
	}
	liveCols := make(map[string]model.Column, len(current))
	for _, c := range current {
		liveCols[c.Name] = c
	}

	// Walk the live columns in their table order so change lists are
	// stable across runs.
	for _, c := range current {
		old, ok := baseCols[c.Name]
		if !ok {
			changes.NewColumns = append(changes.NewColumns, c)
			continue
		}
		if old.DataType != c.DataType {
			changes.TypeChanges = append(changes.TypeChanges, model.TypeChange{
				Column:  c.Name,
				OldType: old.DataType,
				NewType: c.DataType,
			})
		}
		if old.Nullable != c.Nullable {
			changes.NullabilityChanges = append(changes.NullabilityChanges, model.NullabilityChange{
				Column:      c.Name,
				OldNullable: old.Nullable,
				NewNullable: c.Nullable,
			})
		}
	}
	for _, c := range baseline.Columns {
		if _, ok := liveCols[c.Name]; !ok {
			changes.RemovedColumns = append(changes.RemovedColumns, c)
		}
	}

	if baseline.PartitionKey != partKey {
		changes.PartitionChanges = append(changes.PartitionChanges,
			"partition key changed from "+orNone(baseline.PartitionKey)+" to "+orNone(partKey))
	}

	return changes
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

// BuildAlert classifies a set of changes into a structured alert with
// severity, impact text, and operator recommendations.
func (g *Guardian) BuildAlert(changes model.SchemaChanges) model.SchemaAlert {
	return model.SchemaAlert{
		ID:              uuid.NewString(),
		CreatedAt:       g.now().UTC(),
		Table:           g.table(),
		Severity:        severityFor(changes),
		Changes:         changes,
		Impact:          impactFor(changes),
		Recommendations: recommendationsFor(changes),
		ChangeCount:     changes.Total(),
	}
}

// severityFor applies the fixed severity ladder. Type changes outrank
// everything because they break downstream queries silently.
func severityFor(changes model.SchemaChanges) model.Severity {
	switch {
	case len(changes.TypeChanges) > 0:
		return model.SeverityCritical
	case len(changes.RemovedColumns) > 0:
		return model.SeverityHigh
	case len(changes.PartitionChanges) > 0:
		return model.SeverityHigh
	case len(changes.NullabilityChanges) > 0:
		return model.SeverityMedium
	case len(changes.NewColumns) > 0:
		return model.SeverityLow
	default:
		return model.SeverityInfo
	}
}

func impactFor(changes model.SchemaChanges) string {
	var impacts []string

	if len(changes.TypeChanges) > 0 {
		impacts = append(impacts,
			"Type changes will break queries expecting previous types",
			"Dashboards may show incorrect data",
		)
	}
	if len(changes.RemovedColumns) > 0 {
		impacts = append(impacts,
			"Queries referencing removed columns will fail",
			"ETL pipelines need immediate updates",
		)
	}
	if len(changes.NewColumns) > 0 {
		impacts = append(impacts,
			"New columns detected - no immediate impact",
			"Consider updating documentation",
		)
	}

	if len(impacts) == 0 {
		return "No significant impact detected"
	}
	return strings.Join(impacts, " | ")
}

func recommendationsFor(changes model.SchemaChanges) []string {
	var recs []string

	if len(changes.TypeChanges) > 0 {
		recs = append(recs,
			"Pause Fivetran connector immediately",
			"Review source data for type inconsistencies",
			"Update downstream transformations",
		)
	}
	if len(changes.RemovedColumns) > 0 {
		recs = append(recs,
			"Check Fivetran connector configuration",
			"Verify source API hasn't changed",
			"Update dependent queries and views",
		)
	}
	if len(changes.NewColumns) > 0 {
		recs = append(recs,
			"Document new column purpose",
			"Update schema documentation",
		)
	}
	return recs
}
