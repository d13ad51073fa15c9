// Package orchestrator runs the monitoring cycle: gather detector
// alerts, evaluate them into a decision, execute the required action,
// and record the run. One orchestrator instance owns the cycle; there is
// no cross-process mutual exclusion.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/pipewarden/internal/action"
	"github.com/sells-group/pipewarden/internal/decision"
	"github.com/sells-group/pipewarden/internal/history"
	"github.com/sells-group/pipewarden/internal/metrics"
	"github.com/sells-group/pipewarden/internal/model"
	"github.com/sells-group/pipewarden/pkg/fivetran"
)

// SchemaChecker detects structural drift, implemented by the schema
// guardian.
type SchemaChecker interface {
	DetectDrift(ctx context.Context) (*model.SchemaChanges, error)
	BuildAlert(changes model.SchemaChanges) model.SchemaAlert
}

// AnomalyChecker detects content anomalies, implemented by the anomaly
// detective.
type AnomalyChecker interface {
	Check(ctx context.Context) (*model.AnomalyAlert, error)
}

// Orchestrator drives the evaluate/act cycle over the two detectors.
type Orchestrator struct {
	guardian  SchemaChecker
	detective AnomalyChecker
	engine    *decision.Engine
	executor  *action.Executor
	connector fivetran.Client
	runs      history.Log[model.OrchestrationRun]
	archiver  history.Store
	metrics   *metrics.Metrics
	now       func() time.Time

	mu               sync.Mutex
	state            model.OrchestratorState
	lastSchemaCheck  *time.Time
	lastAnomalyCheck *time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithArchiver mirrors every run to durable storage. Archive failures are
// logged, never surfaced to the cycle.
func WithArchiver(store history.Store) Option {
	return func(o *Orchestrator) { o.archiver = store }
}

// WithMetrics wires Prometheus collectors into the cycle.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithClock overrides the timestamp source, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an Orchestrator. A nil runs log gets an in-memory default.
func New(guardian SchemaChecker, detective AnomalyChecker, engine *decision.Engine, executor *action.Executor, connector fivetran.Client, runs history.Log[model.OrchestrationRun], opts ...Option) *Orchestrator {
	o := &Orchestrator{
		guardian:  guardian,
		detective: detective,
		engine:    engine,
		executor:  executor,
		connector: connector,
		runs:      runs,
		now:       time.Now,
		state:     model.StateIdle,
	}
	if o.runs == nil {
		o.runs = history.NewMemoryLog[model.OrchestrationRun]()
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the orchestrator's current cycle state.
func (o *Orchestrator) State() model.OrchestratorState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s model.OrchestratorState) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Cycle runs one full monitoring pass and returns its record. A cycle
// never returns an error: detector failures degrade to missing alerts,
// and a panic is converted into a failed run.
func (o *Orchestrator) Cycle(ctx context.Context) model.OrchestrationRun {
	run := model.OrchestrationRun{
		ID:        uuid.NewString(),
		StartedAt: o.now().UTC(),
		Success:   true,
	}

	o.cycle(ctx, &run)

	run.FinishedAt = o.now().UTC()
	run.State = o.State()

	result := "ok"
	if !run.Success {
		result = "failed"
	}
	o.metrics.ObserveCycle(result, run.FinishedAt.Sub(run.StartedAt).Seconds())

	o.runs.Append(run)
	o.archive(ctx, run)
	return run
}

// cycle performs the evaluate/act sequence, mutating run. Split out so
// the panic boundary covers exactly one cycle and always restores IDLE.
func (o *Orchestrator) cycle(ctx context.Context, run *model.OrchestrationRun) {
	defer func() {
		if r := recover(); r != nil {
			run.Success = false
			run.Error = fmt.Sprintf("panic: %v", r)
			o.setState(model.StateError)
			zap.L().Error("orchestrator: cycle panicked",
				zap.String("run_id", run.ID),
				zap.Any("panic", r),
			)
		}
		o.setState(model.StateIdle)
	}()

	o.setState(model.StateEvaluating)

	schemaAlert, anomalyAlert, err := o.gatherAlerts(ctx)
	if err != nil {
		run.Success = false
		run.Error = err.Error()
		o.setState(model.StateError)
		zap.L().Error("orchestrator: detector panicked",
			zap.String("run_id", run.ID),
			zap.Error(err),
		)
		return
	}
	run.SchemaAlert = schemaAlert
	run.AnomalyAlert = anomalyAlert

	run.Decision = o.engine.Evaluate(schemaAlert, anomalyAlert)
	o.metrics.ObserveDecision(string(run.Decision.Action), string(run.Decision.Priority))

	if run.Decision.Action == model.ActionContinue {
		return
	}

	o.setState(model.StateActing)
	result := o.executor.Execute(ctx, run.Decision)
	run.ActionResult = &result
}

// gatherAlerts runs both detectors concurrently and absorbs their
// failures: a broken detector means a missing alert, never a failed
// cycle. A detector panic is the exception and comes back as an error.
// Results are attached only after both return.
func (o *Orchestrator) gatherAlerts(ctx context.Context) (*model.SchemaAlert, *model.AnomalyAlert, error) {
	var (
		schemaAlert  *model.SchemaAlert
		anomalyAlert *model.AnomalyAlert
	)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		defer recoverDetector("schema", &err)

		changes, derr := o.guardian.DetectDrift(gCtx)
		now := o.now().UTC()
		o.mu.Lock()
		o.lastSchemaCheck = &now
		o.mu.Unlock()

		if derr != nil {
			zap.L().Warn("orchestrator: schema check failed", zap.Error(derr))
			o.metrics.ObserveDetectorFailure("schema")
			return nil
		}
		if changes != nil {
			alert := o.guardian.BuildAlert(*changes)
			schemaAlert = &alert
		}
		return nil
	})

	g.Go(func() (err error) {
		defer recoverDetector("anomaly", &err)

		alert, derr := o.detective.Check(gCtx)
		now := o.now().UTC()
		o.mu.Lock()
		o.lastAnomalyCheck = &now
		o.mu.Unlock()

		if derr != nil {
			zap.L().Warn("orchestrator: anomaly check failed", zap.Error(derr))
			o.metrics.ObserveDetectorFailure("anomaly")
			return nil
		}
		anomalyAlert = alert
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return schemaAlert, anomalyAlert, nil
}

// recoverDetector converts a detector goroutine panic into an error, so
// it fails the run instead of crashing the process.
func recoverDetector(name string, err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("panic in %s detector: %v", name, r)
	}
}

// archive mirrors the run and its decision/action records to durable
// storage. Failures are logged and dropped.
func (o *Orchestrator) archive(ctx context.Context, run model.OrchestrationRun) {
	if o.archiver == nil {
		return
	}

	if err := o.archiver.AppendRun(ctx, run); err != nil {
		zap.L().Warn("orchestrator: archive run failed", zap.Error(err))
	}
	if err := o.archiver.AppendDecision(ctx, run.Decision); err != nil {
		zap.L().Warn("orchestrator: archive decision failed", zap.Error(err))
	}
	if run.ActionResult != nil {
		if err := o.archiver.AppendAction(ctx, *run.ActionResult); err != nil {
			zap.L().Warn("orchestrator: archive action failed", zap.Error(err))
		}
	}
}

// Status assembles the full status snapshot. The connector lookup is
// best-effort; an unreachable control API degrades to health "unknown".
func (o *Orchestrator) Status(ctx context.Context) model.OrchestratorStatus {
	o.mu.Lock()
	status := model.OrchestratorStatus{
		State:            o.state,
		LastSchemaCheck:  o.lastSchemaCheck,
		LastAnomalyCheck: o.lastAnomalyCheck,
	}
	o.mu.Unlock()

	status.Connector = o.connectorHealth(ctx)
	status.Totals = model.Totals{
		Runs:      o.runs.Len(),
		Decisions: o.engine.Metrics().Total,
		Actions:   o.executor.Len(),
	}

	if recent := o.runs.Recent(1); len(recent) > 0 {
		last := recent[0]
		status.LastRun = &model.RunDigest{
			ID:         last.ID,
			FinishedAt: last.FinishedAt,
			Action:     last.Decision.Action,
			Priority:   last.Decision.Priority,
			Success:    last.Success,
		}
	}
	return status
}

func (o *Orchestrator) connectorHealth(ctx context.Context) model.ConnectorHealth {
	cs, err := o.connector.Status(ctx)
	if err != nil {
		zap.L().Warn("orchestrator: connector status unavailable", zap.Error(err))
		return model.ConnectorHealth{Health: "unknown"}
	}
	return model.ConnectorHealth{
		ConnectorID: cs.ConnectorID,
		Paused:      &cs.Paused,
		SetupState:  cs.SetupState,
		SyncState:   cs.SyncState,
		Health:      cs.Health,
	}
}

// RecentRuns returns up to limit run records, newest first.
func (o *Orchestrator) RecentRuns(limit int) []model.OrchestrationRun {
	return o.runs.Recent(limit)
}

// RecentDecisions returns up to limit decisions, newest first.
func (o *Orchestrator) RecentDecisions(limit int) []model.Decision {
	return o.engine.Recent(limit)
}

// RecentActions returns up to limit action results, newest first.
func (o *Orchestrator) RecentActions(limit int) []model.ActionResult {
	return o.executor.Recent(limit)
}

// Summary renders a human-readable status digest with the five most
// recent runs.
func (o *Orchestrator) Summary(ctx context.Context) string {
	status := o.Status(ctx)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Pipeline watchdog status\n")
	fmt.Fprintf(&sb, "  State:     %s\n", status.State)
	fmt.Fprintf(&sb, "  Connector: %s", status.Connector.Health)
	if status.Connector.ConnectorID != "" {
		fmt.Fprintf(&sb, " (%s)", status.Connector.ConnectorID)
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "  Totals:    %d runs, %d decisions, %d actions\n",
		status.Totals.Runs, status.Totals.Decisions, status.Totals.Actions)

	runs := o.runs.Recent(5)
	if len(runs) == 0 {
		sb.WriteString("  No runs recorded yet\n")
		return sb.String()
	}

	sb.WriteString("  Recent runs:\n")
	for _, r := range runs {
		outcome := "ok"
		if !r.Success {
			outcome = "FAILED"
		}
		fmt.Fprintf(&sb, "    %s  %-20s %-8s %s\n",
			r.StartedAt.Format(time.RFC3339), r.Decision.Action, r.Decision.Priority, outcome)
	}
	return sb.String()
}
