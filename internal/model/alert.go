package model

import "time"

// Severity ranks how disruptive a detected problem is.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

// Rank returns an integer ordering for severity comparisons
// (CRITICAL highest). Unknown severities rank below INFO.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	case SeverityInfo:
		return 0
	default:
		return -1
	}
}

// Column describes a single warehouse table column.
type Column struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Nullable bool   `json:"nullable"`
}

// TypeChange records a column whose data type differs from the baseline.
type TypeChange struct {
	Column  string `json:"column"`
	OldType string `json:"old_type"`
	NewType string `json:"new_type"`
}

// NullabilityChange records a column whose nullability differs from the baseline.
type NullabilityChange struct {
	Column      string `json:"column"`
	OldNullable bool   `json:"old_nullable"`
	NewNullable bool   `json:"new_nullable"`
}

// SchemaChanges is the structural diff between a table and its baseline.
type SchemaChanges struct {
	NewColumns         []Column            `json:"new_columns,omitempty"`
	RemovedColumns     []Column            `json:"removed_columns,omitempty"`
	TypeChanges        []TypeChange        `json:"type_changes,omitempty"`
	NullabilityChanges []NullabilityChange `json:"nullability_changes,omitempty"`
	PartitionChanges   []string            `json:"partition_changes,omitempty"`
}

// Total returns the number of individual changes across all categories.
func (c SchemaChanges) Total() int {
	return len(c.NewColumns) + len(c.RemovedColumns) + len(c.TypeChanges) +
		len(c.NullabilityChanges) + len(c.PartitionChanges)
}

// Empty reports whether the diff contains no changes.
func (c SchemaChanges) Empty() bool {
	return c.Total() == 0
}

// SchemaAlert is the schema guardian's report of detected drift.
// Consumed read-only by the decision engine.
type SchemaAlert struct {
	ID              string        `json:"id"`
	CreatedAt       time.Time     `json:"created_at"`
	Table           string        `json:"table"`
	Severity        Severity      `json:"severity"`
	Changes         SchemaChanges `json:"changes"`
	Impact          string        `json:"impact"`
	Recommendations []string      `json:"recommendations"`
	ChangeCount     int           `json:"change_count"`
}

// SchemaBaseline is a persisted snapshot of a table's structure, the
// reference point for drift detection.
type SchemaBaseline struct {
	Table        string    `json:"table"`
	Columns      []Column  `json:"columns"`
	PartitionKey string    `json:"partition_key,omitempty"`
	CapturedAt   time.Time `json:"captured_at"`
}

// Known anomaly finding types. The detector may report others; these are
// the ones the rule table and prompt vocabulary name explicitly.
const (
	AnomalyTestData         = "test_data"
	AnomalyInvalidSymbol    = "invalid_stock_symbol"
	AnomalyTemporal         = "temporal_anomaly"
	AnomalySentimentOutlier = "sentiment_outlier"
	AnomalyMissingField     = "missing_critical_field"
	AnomalyDuplicate        = "duplicate_content"
)

// Anomaly is a single content-level finding within a sampled batch of rows.
type Anomaly struct {
	Type             string   `json:"type"`
	Severity         Severity `json:"severity"`
	Field            string   `json:"field"`
	Evidence         []string `json:"evidence"`
	AffectedRowCount int      `json:"affected_row_count"`
	AffectedIDs      []string `json:"affected_ids,omitempty"`
}

// AnomalyAlert is the anomaly detective's verdict over a row sample.
// Consumed read-only by the decision engine.
type AnomalyAlert struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Table        string    `json:"table"`
	HasAnomalies bool      `json:"has_anomalies"`
	Confidence   float64   `json:"confidence"`
	Anomalies    []Anomaly `json:"anomalies"`
	Summary      string    `json:"summary"`
	SampleSize   int       `json:"sample_size"`
}
