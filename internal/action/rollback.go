package action

import (
	"fmt"
	"strings"
	"time"
)

// RollbackSQL generates the manual-restore script for quarantined rows:
// copy them back to the source table without the bookkeeping columns,
// remove them from quarantine, then verify the restored count and date
// range. The script is a text artifact for an operator, never executed by
// this process. Deterministic apart from the embedded timestamp.
func (e *Executor) RollbackSQL(ids []string, now time.Time) string {
	if len(ids) == 0 {
		return "-- No affected ids to roll back\n"
	}

	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = "'" + strings.ReplaceAll(id, "'", "''") + "'"
	}
	idList := strings.Join(quoted, ", ")

	source := e.cfg.Schema + "." + e.cfg.Table
	quarantine := e.cfg.Schema + "." + e.cfg.QuarantineTable
	idCol := e.cfg.IDColumn
	tsCol := e.cfg.TimestampColumn

	var sb strings.Builder
	fmt.Fprintf(&sb, "-- ROLLBACK SQL: restore quarantined rows\n")
	fmt.Fprintf(&sb, "-- Generated: %s\n", now.UTC().Format(time.RFC3339))
	fmt.Fprintf(&sb, "-- Affected ids: %d\n\n", len(ids))

	// Step 1 strips the quarantined_at/quarantine_reason bookkeeping
	// columns by rebuilding each row against the source table's type.
	fmt.Fprintf(&sb, "-- Step 1: restore rows to the source table\n")
	fmt.Fprintf(&sb, "INSERT INTO %s\n", source)
	fmt.Fprintf(&sb, "SELECT (jsonb_populate_record(\n")
	fmt.Fprintf(&sb, "    NULL::%s,\n", source)
	fmt.Fprintf(&sb, "    to_jsonb(q) - 'quarantined_at' - 'quarantine_reason'\n")
	fmt.Fprintf(&sb, ")).*\n")
	fmt.Fprintf(&sb, "FROM %s q\n", quarantine)
	fmt.Fprintf(&sb, "WHERE %s IN (%s);\n\n", idCol, idList)

	fmt.Fprintf(&sb, "-- Step 2: remove restored rows from quarantine\n")
	fmt.Fprintf(&sb, "DELETE FROM %s\n", quarantine)
	fmt.Fprintf(&sb, "WHERE %s IN (%s);\n\n", idCol, idList)

	fmt.Fprintf(&sb, "-- Step 3: verify restoration\n")
	fmt.Fprintf(&sb, "SELECT\n")
	fmt.Fprintf(&sb, "    COUNT(*) AS restored_count,\n")
	fmt.Fprintf(&sb, "    MIN(%s) AS earliest_date,\n", tsCol)
	fmt.Fprintf(&sb, "    MAX(%s) AS latest_date\n", tsCol)
	fmt.Fprintf(&sb, "FROM %s\n", source)
	fmt.Fprintf(&sb, "WHERE %s IN (%s);\n", idCol, idList)

	return sb.String()
}
