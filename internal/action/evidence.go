package action

import (
	"fmt"
	"strings"

	"github.com/sells-group/pipewarden/internal/model"
)

// AffectedIDs collects the row ids implicated by an anomaly alert.
// Structured per-anomaly AffectedIDs are preferred; for anomalies that
// carry only prose evidence, the first single-quoted token of each line
// mentioning a row id is parsed out as a fallback. That parse is a
// heuristic for uncooperative upstreams, not a contract: evidence like
// "Article ID 'TEST_001' contains placeholder text" yields TEST_001.
// Returns nil when the alert is absent or reports no anomalies. The
// result is deduplicated, insertion-ordered.
func AffectedIDs(alert *model.AnomalyAlert) []string {
	if alert == nil || !alert.HasAnomalies {
		return nil
	}

	seen := make(map[string]struct{})
	var ids []string
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	for _, a := range alert.Anomalies {
		if len(a.AffectedIDs) > 0 {
			for _, id := range a.AffectedIDs {
				add(id)
			}
			continue
		}
		for _, line := range a.Evidence {
			if !mentionsRowID(line) {
				continue
			}
			add(firstQuotedToken(line))
		}
	}
	return ids
}

// mentionsRowID reports whether an evidence line talks about a row id.
func mentionsRowID(line string) bool {
	lower := strings.ToLower(line)
	return strings.Contains(lower, "article id") || strings.Contains(lower, "article_id")
}

// firstQuotedToken returns the first single-quoted substring of line, or
// "" when the line carries no quoted token.
func firstQuotedToken(line string) string {
	parts := strings.SplitN(line, "'", 3)
	if len(parts) < 3 {
		return ""
	}
	return parts[1]
}

// extractEvidence gathers the alert payload's evidence lines from both
// input alerts: the schema diff summary plus up to three evidence lines
// per anomaly.
func extractEvidence(decision model.Decision) []string {
	var evidence []string

	if sa := decision.SchemaAlert; sa != nil {
		if n := len(sa.Changes.TypeChanges); n > 0 {
			cols := make([]string, n)
			for i, tc := range sa.Changes.TypeChanges {
				cols[i] = fmt.Sprintf("%s (%s -> %s)", tc.Column, tc.OldType, tc.NewType)
			}
			evidence = append(evidence, "Schema type changes: "+strings.Join(cols, ", "))
		}
		if n := len(sa.Changes.RemovedColumns); n > 0 {
			cols := make([]string, n)
			for i, c := range sa.Changes.RemovedColumns {
				cols[i] = c.Name
			}
			evidence = append(evidence, "Removed columns: "+strings.Join(cols, ", "))
		}
		if sa.Impact != "" {
			evidence = append(evidence, "Impact: "+sa.Impact)
		}
	}

	if aa := decision.AnomalyAlert; aa != nil && aa.HasAnomalies {
		for _, a := range aa.Anomalies {
			header := fmt.Sprintf("%s anomaly in %s (%s, %d rows)", a.Severity, a.Field, a.Type, a.AffectedRowCount)
			evidence = append(evidence, header)
			for i, line := range a.Evidence {
				if i == 3 {
					break
				}
				evidence = append(evidence, "  "+line)
			}
		}
	}

	return evidence
}
