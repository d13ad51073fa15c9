// Package action turns a decision into concrete effects: pausing the
// ingestion connector, quarantining suspect rows, generating a rollback
// script, and dispatching alerts. Steps run in a fixed order behind a
// single failure boundary; effects already applied when a later step
// fails are not rolled back.
package action

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/pipewarden/internal/config"
	"github.com/sells-group/pipewarden/internal/history"
	"github.com/sells-group/pipewarden/internal/metrics"
	"github.com/sells-group/pipewarden/internal/model"
	"github.com/sells-group/pipewarden/internal/notify"
	"github.com/sells-group/pipewarden/pkg/fivetran"
)

// Quarantiner is the quarantine-store contract, implemented by the
// warehouse client.
type Quarantiner interface {
	QuarantineTable() string
	EnsureQuarantineTable(ctx context.Context) error
	CopyRowsByID(ctx context.Context, ids []string, reason string) (int64, error)
}

// quarantineReason tags every quarantined row.
const quarantineReason = "anomaly_detected"

// Executor executes a decision's required sub-steps against the external
// systems.
type Executor struct {
	connector fivetran.Client
	store     Quarantiner
	notifier  notify.Notifier
	log       history.Log[model.ActionResult]
	cfg       config.WarehouseConfig
	metrics   *metrics.Metrics
	now       func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithMetrics wires Prometheus counters into step execution.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithClock overrides the timestamp source, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// NewExecutor creates an Executor. A nil log gets an in-memory default;
// a nil notifier gets the console channel.
func NewExecutor(connector fivetran.Client, store Quarantiner, notifier notify.Notifier, log history.Log[model.ActionResult], cfg config.WarehouseConfig, opts ...Option) *Executor {
	e := &Executor{
		connector: connector,
		store:     store,
		notifier:  notifier,
		log:       log,
		cfg:       cfg,
		now:       time.Now,
	}
	if e.log == nil {
		e.log = history.NewMemoryLog[model.ActionResult]()
	}
	if e.notifier == nil {
		e.notifier = notify.NewConsole()
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Execute performs the decision's required sub-steps in fixed order:
// pause, quarantine, rollback generation, alert. The first hard failure
// halts the sequence; the result records every step attempted, and
// Success is false only when the sequence halted. Every result is
// appended to the action log.
func (e *Executor) Execute(ctx context.Context, decision model.Decision) model.ActionResult {
	result := model.ActionResult{
		ID:         uuid.NewString(),
		DecisionID: decision.ID,
		Action:     decision.Action,
		CreatedAt:  e.now().UTC(),
		Success:    true,
	}

	e.run(ctx, decision, &result)

	e.logAction(result)
	e.log.Append(result)
	return result
}

// run executes the gated steps, mutating result. Split out so the panic
// boundary covers exactly the step sequence.
func (e *Executor) run(ctx context.Context, decision model.Decision, result *model.ActionResult) {
	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.Errors = append(result.Errors, fmt.Sprintf("panic during %s: %v", decision.Action, r))
			zap.L().Error("action: execution panicked",
				zap.String("decision_id", decision.ID),
				zap.Any("panic", r),
			)
		}
	}()

	req := decision.Requirements

	if req.PauseConnector {
		step := e.PauseConnector(ctx)
		result.StepsTaken = append(result.StepsTaken, model.StepPauseConnector)
		result.Pause = &step
		e.metrics.ObserveStep(string(model.StepPauseConnector), step.Success)
	}

	// Quarantine and rollback generation share one id extraction.
	var affectedIDs []string
	if req.QuarantineData || req.GenerateRollback {
		affectedIDs = AffectedIDs(decision.AnomalyAlert)
	}

	if req.QuarantineData {
		step := e.QuarantineData(ctx, affectedIDs)
		result.StepsTaken = append(result.StepsTaken, model.StepQuarantineData)
		result.Quarantine = &step
		e.metrics.ObserveStep(string(model.StepQuarantineData), step.Success)
		e.metrics.ObserveQuarantinedRows(step.RowsQuarantined)
		if step.Error != "" {
			// A store failure is a hard stop; an empty id set is not.
			result.Success = false
			result.Errors = append(result.Errors, step.Error)
			return
		}
	}

	if req.GenerateRollback {
		result.RollbackSQL = e.RollbackSQL(affectedIDs, e.now().UTC())
		result.StepsTaken = append(result.StepsTaken, model.StepGenerateRollback)
		e.metrics.ObserveStep(string(model.StepGenerateRollback), true)
	}

	if req.SendAlert {
		alert := e.SendAlert(ctx, decision)
		result.StepsTaken = append(result.StepsTaken, model.StepSendAlert)
		result.Alert = &alert
		e.metrics.ObserveStep(string(model.StepSendAlert), true)
	}
}

// PauseConnector pauses the ingestion connector. Collaborator failures
// are wrapped into the step result, never propagated.
func (e *Executor) PauseConnector(ctx context.Context) model.ConnectorStepResult {
	return e.connectorCall(ctx, "pause", e.connector.Pause)
}

// ResumeConnector resumes the ingestion connector, same failure handling
// as PauseConnector.
func (e *Executor) ResumeConnector(ctx context.Context) model.ConnectorStepResult {
	return e.connectorCall(ctx, "resume", e.connector.Resume)
}

func (e *Executor) connectorCall(ctx context.Context, what string, call func(context.Context) (*fivetran.Connector, error)) model.ConnectorStepResult {
	step := model.ConnectorStepResult{At: e.now().UTC()}

	conn, err := call(ctx)
	if err != nil {
		step.Error = err.Error()
		zap.L().Warn("action: connector "+what+" failed", zap.Error(err))
		return step
	}

	step.Success = true
	step.Paused = conn.Paused
	step.ConnectorID = conn.ID
	zap.L().Info("action: connector "+what+"d",
		zap.String("connector_id", conn.ID),
		zap.Bool("paused", conn.Paused),
	)
	return step
}

// QuarantineData copies the affected rows into the quarantine table. An
// empty id set is a recorded no-op that never touches the store; rows are
// never deleted from the source table.
func (e *Executor) QuarantineData(ctx context.Context, ids []string) model.QuarantineStepResult {
	if len(ids) == 0 {
		zap.L().Warn("action: no affected ids to quarantine")
		return model.QuarantineStepResult{
			Success: false,
			Reason:  "no affected ids",
		}
	}

	step := model.QuarantineStepResult{
		Table:  e.store.QuarantineTable(),
		Reason: quarantineReason,
	}

	if err := e.store.EnsureQuarantineTable(ctx); err != nil {
		step.Error = err.Error()
		return step
	}

	rows, err := e.store.CopyRowsByID(ctx, ids, quarantineReason)
	if err != nil {
		step.Error = err.Error()
		return step
	}

	step.Success = true
	step.RowsQuarantined = rows
	return step
}

// SendAlert builds the structured notification for a decision and hands
// it to the notifier. Channel failures are the notifier's concern; this
// step always succeeds.
func (e *Executor) SendAlert(ctx context.Context, decision model.Decision) model.AlertPayload {
	alert := model.AlertPayload{
		ID:         uuid.NewString(),
		CreatedAt:  e.now().UTC(),
		DecisionID: decision.ID,
		Action:     decision.Action,
		Priority:   decision.Priority,
		Confidence: decision.Confidence,
		Reasoning:  decision.Reasoning,
		Evidence:   extractEvidence(decision),
		Urgent:     decision.Requirements.Urgent,
	}

	_ = e.notifier.Dispatch(ctx, alert)
	return alert
}

// Recent returns up to limit action results, newest first.
func (e *Executor) Recent(limit int) []model.ActionResult {
	return e.log.Recent(limit)
}

// Len returns the number of executions recorded so far.
func (e *Executor) Len() int {
	return e.log.Len()
}

// logAction writes the structured execution record.
func (e *Executor) logAction(result model.ActionResult) {
	steps := make([]string, len(result.StepsTaken))
	for i, s := range result.StepsTaken {
		steps[i] = string(s)
	}

	fields := []zap.Field{
		zap.String("action_id", result.ID),
		zap.String("decision_id", result.DecisionID),
		zap.String("action", string(result.Action)),
		zap.Strings("steps", steps),
		zap.Bool("success", result.Success),
	}
	if len(result.Errors) > 0 {
		fields = append(fields, zap.Strings("errors", result.Errors))
	}

	if result.Success {
		zap.L().Info("action: executed", fields...)
	} else {
		zap.L().Error("action: execution failed", fields...)
	}
}
