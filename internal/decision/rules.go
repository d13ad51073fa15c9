package decision

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/pipewarden/internal/model"
)

// inputs is the view of the current alert pair the rule predicates see.
// Absent alerts contribute nothing: a nil schema alert has no severity,
// a nil anomaly alert has confidence 0 and no finding types.
type inputs struct {
	schema  *model.SchemaAlert
	anomaly *model.AnomalyAlert
}

func (in inputs) schemaSeverity() model.Severity {
	if in.schema == nil {
		return ""
	}
	return in.schema.Severity
}

func (in inputs) anomalyConfidence() float64 {
	if in.anomaly == nil {
		return 0
	}
	return in.anomaly.Confidence
}

func (in inputs) removedColumns() int {
	if in.schema == nil {
		return 0
	}
	return len(in.schema.Changes.RemovedColumns)
}

func (in inputs) anomalyTypes() []string {
	if in.anomaly == nil || !in.anomaly.HasAnomalies {
		return nil
	}
	types := make([]string, 0, len(in.anomaly.Anomalies))
	for _, a := range in.anomaly.Anomalies {
		types = append(types, a.Type)
	}
	return types
}

func (in inputs) hasAnomalyType(t string) bool {
	for _, at := range in.anomalyTypes() {
		if at == t {
			return true
		}
	}
	return false
}

// outcome is what a matched rule produces. Confidence < 0 means "use the
// anomaly detector's reported confidence"; priority and score funcs allow
// the one rule whose outcome depends on the schema severity.
type outcome struct {
	action     model.ActionType
	priority   model.Priority
	confidence float64
	score      int
	reasoning  func(in inputs) []string
}

// rule is one entry in the ordered classification table.
type rule struct {
	name    string
	match   func(in inputs) bool
	outcome func(in inputs) outcome
}

// useAnomalyConfidence marks outcomes whose confidence is the detector's own.
const useAnomalyConfidence = -1

// rules is the classification table, evaluated first-match-wins. Ordering
// is load-bearing: more severe, more specific conditions come first. Rule 7
// intentionally maps schema HIGH to decision priority MEDIUM and schema
// MEDIUM to LOW.
var rules = []rule{
	{
		name:  "critical_schema_with_anomalies",
		match: func(in inputs) bool { return in.schemaSeverity() == model.SeverityCritical && in.anomalyConfidence() > 0.70 },
		outcome: func(in inputs) outcome {
			return outcome{
				action:     model.ActionEmergencyPause,
				priority:   model.PriorityCritical,
				confidence: 0.95,
				score:      100,
				reasoning: func(in inputs) []string {
					return []string{
						"EMERGENCY: critical schema change and data quality issues detected simultaneously",
						fmt.Sprintf("Schema severity: %s, anomaly confidence: %.0f%%",
							in.schemaSeverity(), in.anomalyConfidence()*100),
					}
				},
			}
		},
	},
	{
		name: "test_data_detected",
		match: func(in inputs) bool {
			return in.hasAnomalyType(model.AnomalyTestData) && in.anomalyConfidence() >= 0.85
		},
		outcome: func(in inputs) outcome {
			return outcome{
				action:     model.ActionQuarantineAndPause,
				priority:   model.PriorityCritical,
				confidence: useAnomalyConfidence,
				score:      90,
				reasoning: func(in inputs) []string {
					return []string{
						fmt.Sprintf("Test data detected in production with %.0f%% confidence", in.anomalyConfidence()*100),
						"Action: quarantine contaminated data and pause sync to prevent further pollution",
					}
				},
			}
		},
	},
	{
		name:  "critical_schema_change",
		match: func(in inputs) bool { return in.schemaSeverity() == model.SeverityCritical },
		outcome: func(in inputs) outcome {
			return outcome{
				action:     model.ActionPauseAndAlert,
				priority:   model.PriorityCritical,
				confidence: 0.90,
				score:      85,
				reasoning: func(in inputs) []string {
					out := []string{"Critical schema change detected - high risk of downstream breakage"}
					if in.schema != nil {
						if n := len(in.schema.Changes.TypeChanges); n > 0 {
							out = append(out, fmt.Sprintf("Column type changes: %d detected", n))
						}
						if n := len(in.schema.Changes.RemovedColumns); n > 0 {
							out = append(out, fmt.Sprintf("Removed columns: %d detected", n))
						}
					}
					return out
				},
			}
		},
	},
	{
		name: "high_schema_with_strong_anomalies",
		match: func(in inputs) bool {
			return in.schemaSeverity() == model.SeverityHigh && in.removedColumns() > 0 && in.anomalyConfidence() > 0.80
		},
		outcome: func(in inputs) outcome {
			return outcome{
				action:     model.ActionPauseAndAlert,
				priority:   model.PriorityHigh,
				confidence: 0.85,
				score:      80,
				reasoning: func(in inputs) []string {
					return []string{
						fmt.Sprintf("Data loss (%d removed columns) combined with quality issues at %.0f%% confidence",
							in.removedColumns(), in.anomalyConfidence()*100),
						"Pausing to prevent cascading failures",
					}
				},
			}
		},
	},
	{
		name:  "strong_anomalies",
		match: func(in inputs) bool { return in.anomalyConfidence() > 0.80 },
		outcome: func(in inputs) outcome {
			return outcome{
				action:     model.ActionQuarantineAndFlag,
				priority:   model.PriorityHigh,
				confidence: useAnomalyConfidence,
				score:      70,
				reasoning: func(in inputs) []string {
					out := []string{
						fmt.Sprintf("High-confidence data anomalies detected (%.0f%%)", in.anomalyConfidence()*100),
						"Action: quarantine suspicious data for investigation",
					}
					if types := uniqueTypes(in.anomalyTypes()); len(types) > 0 {
						out = append(out, fmt.Sprintf("Anomaly types: %s", strings.Join(types, ", ")))
					}
					return out
				},
			}
		},
	},
	{
		name:  "moderate_anomalies",
		match: func(in inputs) bool { return in.anomalyConfidence() > 0.70 },
		outcome: func(in inputs) outcome {
			return outcome{
				action:     model.ActionFlagForReview,
				priority:   model.PriorityMedium,
				confidence: useAnomalyConfidence,
				score:      50,
				reasoning: func(in inputs) []string {
					return []string{
						fmt.Sprintf("Moderate-confidence anomalies detected (%.0f%%)", in.anomalyConfidence()*100),
						"Action: flag for human review, continue monitoring",
					}
				},
			}
		},
	},
	{
		name: "notable_schema_change",
		match: func(in inputs) bool {
			sev := in.schemaSeverity()
			return sev == model.SeverityHigh || sev == model.SeverityMedium
		},
		outcome: func(in inputs) outcome {
			priority := model.PriorityLow
			score := 30
			if in.schemaSeverity() == model.SeverityHigh {
				priority = model.PriorityMedium
				score = 40
			}
			return outcome{
				action:     model.ActionFlagForReview,
				priority:   priority,
				confidence: 0.80,
				score:      score,
				reasoning: func(in inputs) []string {
					return []string{
						fmt.Sprintf("%s schema changes detected (%d changes)",
							in.schemaSeverity(), in.schema.Changes.Total()),
						"Action: monitor and flag for review",
					}
				},
			}
		},
	},
	{
		name:  "weak_anomalies",
		match: func(in inputs) bool { return in.anomalyConfidence() > 0.50 },
		outcome: func(in inputs) outcome {
			return outcome{
				action:     model.ActionLogAndContinue,
				priority:   model.PriorityLow,
				confidence: useAnomalyConfidence,
				score:      20,
				reasoning: func(in inputs) []string {
					return []string{
						fmt.Sprintf("Low-confidence anomalies (%.0f%%) - monitoring only", in.anomalyConfidence()*100),
					}
				},
			}
		},
	},
	{
		name:  "all_clear",
		match: func(inputs) bool { return true },
		outcome: func(in inputs) outcome {
			return outcome{
				action:     model.ActionContinue,
				priority:   model.PriorityLow,
				confidence: 1.0,
				score:      0,
				reasoning: func(inputs) []string {
					return []string{"All systems operational - no issues detected"}
				},
			}
		},
	},
}

// RuleNames returns the classification table's rule names in evaluation
// order, for audit output and tests that pin the ordering.
func RuleNames() []string {
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.name
	}
	return names
}

func uniqueTypes(types []string) []string {
	seen := make(map[string]struct{}, len(types))
	var out []string
	for _, t := range types {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// requirementsTable is the static effect-set per action. Total over the
// action set; lookups for unknown actions return the zero record.
var requirementsTable = map[model.ActionType]model.ActionRequirements{
	model.ActionEmergencyPause: {
		PauseConnector: true,
		SendAlert:      true,
		HumanReview:    true,
		Urgent:         true,
	},
	model.ActionQuarantineAndPause: {
		PauseConnector:   true,
		QuarantineData:   true,
		SendAlert:        true,
		GenerateRollback: true,
		HumanReview:      true,
	},
	model.ActionPauseAndAlert: {
		PauseConnector: true,
		SendAlert:      true,
		HumanReview:    true,
	},
	model.ActionQuarantineAndFlag: {
		QuarantineData:   true,
		SendAlert:        true,
		GenerateRollback: true,
		HumanReview:      true,
	},
	model.ActionFlagForReview: {
		SendAlert:   true,
		HumanReview: true,
	},
	model.ActionLogAndContinue: {},
	model.ActionContinue:       {},
}
