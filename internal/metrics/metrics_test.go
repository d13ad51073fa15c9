package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilReceiverIsSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveCycle("success", 1.5)
		m.ObserveDecision("CONTINUE", "LOW")
		m.ObserveStep("pause_connector", true)
		m.ObserveDetectorFailure("schema")
		m.ObserveQuarantinedRows(3)
	})
}

func TestObservations(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveCycle("success", 0.2)
	m.ObserveCycle("success", 0.4)
	m.ObserveCycle("error", 1.0)
	m.ObserveDecision("PAUSE_AND_ALERT", "HIGH")
	m.ObserveStep("quarantine_data", false)
	m.ObserveDetectorFailure("anomaly")
	m.ObserveQuarantinedRows(7)
	m.ObserveQuarantinedRows(0) // ignored

	assert.Equal(t, 2.0, testutil.ToFloat64(m.cyclesTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cyclesTotal.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.decisionsTotal.WithLabelValues("PAUSE_AND_ALERT", "HIGH")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.actionStepsTotal.WithLabelValues("quarantine_data", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.detectorFailures.WithLabelValues("anomaly")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.rowsQuarantined))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
