package anomaly

import (
	"encoding/json"
	"fmt"
	"strings"
)

// systemPrompt is the cached analyst persona sent with every check.
const systemPrompt = "You are a data quality analyst reviewing rows from a financial news warehouse. You respond with strict JSON only."

// buildPrompt renders the data-quality analysis prompt over a row sample.
// The output contract is strict JSON; the taxonomy names the finding
// types the decision rules understand.
func buildPrompt(table string, sample []map[string]any) string {
	rows, err := json.MarshalIndent(sample, "", "  ")
	if err != nil {
		rows = []byte("[]")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `Analyze this financial news data from %s for anomalies.

DATA SAMPLE:
%s

CHECK FOR:
1. Test data: "test_", "dummy", "fake", placeholder values
2. Invalid stock symbols: non-existent tickers
3. Temporal anomalies: future dates, dates before 2000
4. Sentiment issues: values outside [-1, 1], all identical
5. Missing critical fields: null in required columns
6. Duplicate content: repeated titles or bodies

OUTPUT ONLY VALID JSON:
{
  "has_anomalies": true/false,
  "confidence": 0.0-1.0,
  "anomalies": [
    {
      "type": "test_data|invalid_stock_symbol|temporal_anomaly|sentiment_outlier|missing_critical_field|duplicate_content",
      "severity": "CRITICAL|HIGH|MEDIUM|LOW",
      "field": "column_name",
      "evidence": ["specific example 1", "example 2"],
      "affected_row_count": 5,
      "affected_ids": ["id1", "id2"]
    }
  ],
  "summary": "Brief description of issues found"
}

Be conservative. Only flag if confidence > 70%%.`, table, rows)

	return sb.String()
}

// cleanJSON strips markdown code fences and surrounding prose from a
// model response, leaving the outermost JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
