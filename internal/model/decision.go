package model

import "time"

// ActionType is the closed set of actions the decision engine can choose.
type ActionType string

const (
	ActionEmergencyPause     ActionType = "EMERGENCY_PAUSE"
	ActionQuarantineAndPause ActionType = "QUARANTINE_AND_PAUSE"
	ActionPauseAndAlert      ActionType = "PAUSE_AND_ALERT"
	ActionQuarantineAndFlag  ActionType = "QUARANTINE_AND_FLAG"
	ActionFlagForReview      ActionType = "FLAG_FOR_REVIEW"
	ActionLogAndContinue     ActionType = "LOG_AND_CONTINUE"
	ActionContinue           ActionType = "CONTINUE"
)

// Actions returns every member of the action set, in escalation order.
func Actions() []ActionType {
	return []ActionType{
		ActionEmergencyPause,
		ActionQuarantineAndPause,
		ActionPauseAndAlert,
		ActionQuarantineAndFlag,
		ActionFlagForReview,
		ActionLogAndContinue,
		ActionContinue,
	}
}

// Priority ranks a decision's urgency for operators.
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityMedium   Priority = "MEDIUM"
	PriorityLow      Priority = "LOW"
)

// ActionRequirements is the static effect-set for an action: which
// executor sub-steps must be attempted.
type ActionRequirements struct {
	PauseConnector   bool `json:"pause_connector"`
	QuarantineData   bool `json:"quarantine_data"`
	SendAlert        bool `json:"send_alert"`
	GenerateRollback bool `json:"generate_rollback"`
	HumanReview      bool `json:"human_review"`
	Urgent           bool `json:"urgent"`
}

// Any reports whether at least one sub-step is required.
func (r ActionRequirements) Any() bool {
	return r.PauseConnector || r.QuarantineData || r.SendAlert ||
		r.GenerateRollback || r.HumanReview || r.Urgent
}

// Decision is one classification of the current alert pair. Never mutated
// after Evaluate returns; appended to the decision log.
type Decision struct {
	ID            string             `json:"id"`
	CreatedAt     time.Time          `json:"created_at"`
	Action        ActionType         `json:"action"`
	Priority      Priority           `json:"priority"`
	Confidence    float64            `json:"confidence"`
	Reasoning     []string           `json:"reasoning"`
	SeverityScore int                `json:"severity_score"`
	Rule          string             `json:"rule"`
	SchemaAlert   *SchemaAlert       `json:"schema_alert,omitempty"`
	AnomalyAlert  *AnomalyAlert      `json:"anomaly_alert,omitempty"`
	Requirements  ActionRequirements `json:"requirements"`
}

// Timestamp implements Timestamped for log ordering.
func (d Decision) Timestamp() time.Time { return d.CreatedAt }

// DecisionMetrics aggregates the decision log for status reporting.
type DecisionMetrics struct {
	Total          int                `json:"total"`
	ByAction       map[ActionType]int `json:"by_action"`
	ByPriority     map[Priority]int   `json:"by_priority"`
	MeanConfidence float64            `json:"mean_confidence"`
}
