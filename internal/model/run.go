package model

import "time"

// Timestamped is implemented by every record kept in an append-only log;
// Recent queries order by this value, newest first.
type Timestamped interface {
	Timestamp() time.Time
}

// OrchestratorState is the orchestrator's position in its cycle state machine.
type OrchestratorState string

const (
	StateIdle       OrchestratorState = "IDLE"
	StateEvaluating OrchestratorState = "EVALUATING"
	StateActing     OrchestratorState = "ACTING"
	StateError      OrchestratorState = "ERROR"
)

// OrchestrationRun is the record of one monitoring cycle: the gathered
// alerts, the decision, and the action outcome when one was required.
// Success reflects the orchestration itself, not action sub-steps.
type OrchestrationRun struct {
	ID           string            `json:"id"`
	StartedAt    time.Time         `json:"started_at"`
	FinishedAt   time.Time         `json:"finished_at"`
	SchemaAlert  *SchemaAlert      `json:"schema_alert,omitempty"`
	AnomalyAlert *AnomalyAlert     `json:"anomaly_alert,omitempty"`
	Decision     Decision          `json:"decision"`
	ActionResult *ActionResult     `json:"action_result,omitempty"`
	State        OrchestratorState `json:"state"`
	Success      bool              `json:"success"`
	Error        string            `json:"error,omitempty"`
}

// Timestamp implements Timestamped for log ordering.
func (r OrchestrationRun) Timestamp() time.Time { return r.StartedAt }

// ConnectorHealth is the orchestrator's best-effort view of the ingestion
// connector; Health degrades to "unknown" when the control API is
// unreachable.
type ConnectorHealth struct {
	ConnectorID string `json:"connector_id,omitempty"`
	Paused      *bool  `json:"paused,omitempty"`
	SetupState  string `json:"setup_state,omitempty"`
	SyncState   string `json:"sync_state,omitempty"`
	Health      string `json:"health"`
}

// Totals counts log entries across the three append-only histories.
type Totals struct {
	Runs      int `json:"runs"`
	Decisions int `json:"decisions"`
	Actions   int `json:"actions"`
}

// RunDigest is the compact last-run view embedded in status output.
type RunDigest struct {
	ID         string     `json:"id"`
	FinishedAt time.Time  `json:"finished_at"`
	Action     ActionType `json:"action"`
	Priority   Priority   `json:"priority"`
	Success    bool       `json:"success"`
}

// OrchestratorStatus is the full status snapshot served by the API and CLI.
type OrchestratorStatus struct {
	State            OrchestratorState `json:"state"`
	LastSchemaCheck  *time.Time        `json:"last_schema_check,omitempty"`
	LastAnomalyCheck *time.Time        `json:"last_anomaly_check,omitempty"`
	Connector        ConnectorHealth   `json:"connector"`
	LastRun          *RunDigest        `json:"last_run,omitempty"`
	Totals           Totals            `json:"totals"`
}
