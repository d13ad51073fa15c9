package model

import "time"

// StepName identifies an executor sub-step.
type StepName string

const (
	StepPauseConnector   StepName = "pause_connector"
	StepQuarantineData   StepName = "quarantine_data"
	StepGenerateRollback StepName = "generate_rollback"
	StepSendAlert        StepName = "send_alert"
)

// ConnectorStepResult is the outcome of a single pause or resume call.
// Collaborator failures are wrapped here, not propagated; callers must
// inspect Success.
type ConnectorStepResult struct {
	Success     bool      `json:"success"`
	Paused      bool      `json:"paused"`
	ConnectorID string    `json:"connector_id,omitempty"`
	Error       string    `json:"error,omitempty"`
	At          time.Time `json:"at"`
}

// QuarantineStepResult is the outcome of a quarantine attempt.
type QuarantineStepResult struct {
	Success         bool   `json:"success"`
	RowsQuarantined int64  `json:"rows_quarantined"`
	Table           string `json:"table,omitempty"`
	Reason          string `json:"reason,omitempty"`
	Error           string `json:"error,omitempty"`
}

// AlertPayload is the structured notification built for a decision and
// handed to the notification fan-out.
type AlertPayload struct {
	ID         string     `json:"id"`
	CreatedAt  time.Time  `json:"created_at"`
	DecisionID string     `json:"decision_id"`
	Action     ActionType `json:"action"`
	Priority   Priority   `json:"priority"`
	Confidence float64    `json:"confidence"`
	Reasoning  []string   `json:"reasoning"`
	Evidence   []string   `json:"evidence,omitempty"`
	Urgent     bool       `json:"urgent"`
}

// ActionResult records one execution of a decision's required sub-steps.
// Success is false only when a step failed hard enough to halt the
// sequence; soft per-step failures live in the step results.
type ActionResult struct {
	ID          string                `json:"id"`
	DecisionID  string                `json:"decision_id"`
	Action      ActionType            `json:"action"`
	CreatedAt   time.Time             `json:"created_at"`
	StepsTaken  []StepName            `json:"steps_taken"`
	Success     bool                  `json:"success"`
	Pause       *ConnectorStepResult  `json:"pause,omitempty"`
	Quarantine  *QuarantineStepResult `json:"quarantine,omitempty"`
	RollbackSQL string                `json:"rollback_sql,omitempty"`
	Alert       *AlertPayload         `json:"alert,omitempty"`
	Errors      []string              `json:"errors,omitempty"`
}

// Timestamp implements Timestamped for log ordering.
func (r ActionResult) Timestamp() time.Time { return r.CreatedAt }
