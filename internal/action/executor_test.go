package action

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pipewarden/internal/config"
	"github.com/sells-group/pipewarden/internal/history"
	"github.com/sells-group/pipewarden/internal/model"
	"github.com/sells-group/pipewarden/pkg/fivetran"
)

func testWarehouseConfig() config.WarehouseConfig {
	return config.WarehouseConfig{
		Schema:          "public",
		Table:           "raw_news",
		QuarantineTable: "raw_news_quarantine",
		IDColumn:        "article_id",
		TimestampColumn: "published_at",
	}
}

type harness struct {
	executor  *Executor
	connector *mockConnector
	store     *mockQuarantiner
	notifier  *mockNotifier
	log       *history.MemoryLog[model.ActionResult]
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		connector: &mockConnector{},
		store:     &mockQuarantiner{},
		notifier:  &mockNotifier{},
		log:       history.NewMemoryLog[model.ActionResult](),
	}
	h.executor = NewExecutor(h.connector, h.store, h.notifier, h.log, testWarehouseConfig())
	t.Cleanup(func() {
		h.connector.AssertExpectations(t)
		h.store.AssertExpectations(t)
		h.notifier.AssertExpectations(t)
	})
	return h
}

func decisionFor(action model.ActionType, req model.ActionRequirements, anomaly *model.AnomalyAlert) model.Decision {
	return model.Decision{
		ID:           "dec-1",
		CreatedAt:    time.Now().UTC(),
		Action:       action,
		Priority:     model.PriorityCritical,
		Confidence:   0.9,
		Reasoning:    []string{"Test data detected in production with 90% confidence"},
		AnomalyAlert: anomaly,
		Requirements: req,
	}
}

func testAnomaly(ids ...string) *model.AnomalyAlert {
	return &model.AnomalyAlert{
		ID:           "anom-1",
		HasAnomalies: true,
		Confidence:   0.9,
		Anomalies: []model.Anomaly{{
			Type:        model.AnomalyTestData,
			Severity:    model.SeverityCritical,
			Field:       "title",
			AffectedIDs: ids,
		}},
	}
}

func TestExecuteContinueTouchesNothing(t *testing.T) {
	h := newHarness(t)

	result := h.executor.Execute(context.Background(),
		decisionFor(model.ActionContinue, model.ActionRequirements{}, nil))

	assert.True(t, result.Success)
	assert.Empty(t, result.StepsTaken)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 1, h.log.Len())
}

func TestExecuteFullSequence(t *testing.T) {
	h := newHarness(t)

	h.connector.On("Pause", mock.Anything).
		Return(&fivetran.Connector{ID: "conn_1", Paused: true}, nil).Once()
	h.store.On("QuarantineTable").Return("public.raw_news_quarantine")
	h.store.On("EnsureQuarantineTable", mock.Anything).Return(nil).Once()
	h.store.On("CopyRowsByID", mock.Anything, []string{"TEST_001", "TEST_002"}, "anomaly_detected").
		Return(int64(2), nil).Once()
	h.notifier.On("Dispatch", mock.Anything, mock.Anything).Return(nil).Once()

	decision := decisionFor(model.ActionQuarantineAndPause, model.ActionRequirements{
		PauseConnector: true, QuarantineData: true, SendAlert: true,
		GenerateRollback: true, HumanReview: true,
	}, testAnomaly("TEST_001", "TEST_002"))

	result := h.executor.Execute(context.Background(), decision)

	require.True(t, result.Success)
	assert.Equal(t, []model.StepName{
		model.StepPauseConnector,
		model.StepQuarantineData,
		model.StepGenerateRollback,
		model.StepSendAlert,
	}, result.StepsTaken)

	require.NotNil(t, result.Pause)
	assert.True(t, result.Pause.Success)
	assert.True(t, result.Pause.Paused)

	require.NotNil(t, result.Quarantine)
	assert.True(t, result.Quarantine.Success)
	assert.Equal(t, int64(2), result.Quarantine.RowsQuarantined)

	assert.Contains(t, result.RollbackSQL, "TEST_001")
	require.NotNil(t, result.Alert)
	assert.Equal(t, "dec-1", result.Alert.DecisionID)
}

func TestExecutePauseSoftFailureDoesNotHalt(t *testing.T) {
	h := newHarness(t)

	h.connector.On("Pause", mock.Anything).
		Return(nil, eris.New("fivetran: api unreachable")).Once()
	h.notifier.On("Dispatch", mock.Anything, mock.Anything).Return(nil).Once()

	decision := decisionFor(model.ActionPauseAndAlert, model.ActionRequirements{
		PauseConnector: true, SendAlert: true, HumanReview: true,
	}, nil)

	result := h.executor.Execute(context.Background(), decision)

	// The pause failure is recorded in its step result; the sequence
	// still runs to the alert and the execution itself succeeds.
	assert.True(t, result.Success)
	require.NotNil(t, result.Pause)
	assert.False(t, result.Pause.Success)
	assert.Contains(t, result.Pause.Error, "unreachable")
	assert.Contains(t, result.StepsTaken, model.StepSendAlert)
}

func TestExecuteQuarantineFailureHaltsSequence(t *testing.T) {
	h := newHarness(t)

	h.store.On("QuarantineTable").Return("public.raw_news_quarantine")
	h.store.On("EnsureQuarantineTable", mock.Anything).Return(nil).Once()
	h.store.On("CopyRowsByID", mock.Anything, []string{"TEST_001"}, "anomaly_detected").
		Return(int64(0), eris.New("warehouse: copy rows to quarantine: connection refused")).Once()

	decision := decisionFor(model.ActionQuarantineAndFlag, model.ActionRequirements{
		QuarantineData: true, SendAlert: true, GenerateRollback: true, HumanReview: true,
	}, testAnomaly("TEST_001"))

	result := h.executor.Execute(context.Background(), decision)

	require.False(t, result.Success)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "connection refused")
	// Halted before rollback generation and alert dispatch.
	assert.Equal(t, []model.StepName{model.StepQuarantineData}, result.StepsTaken)
	assert.Empty(t, result.RollbackSQL)
	assert.Nil(t, result.Alert)
	// The failed execution is still logged.
	assert.Equal(t, 1, h.log.Len())
}

func TestExecuteQuarantineWithoutIDsIsRecordedNoop(t *testing.T) {
	h := newHarness(t)

	h.notifier.On("Dispatch", mock.Anything, mock.Anything).Return(nil).Once()

	// Anomaly alert with neither structured ids nor parsable evidence.
	anomaly := &model.AnomalyAlert{
		ID:           "anom-1",
		HasAnomalies: true,
		Confidence:   0.9,
		Anomalies:    []model.Anomaly{{Type: model.AnomalyDuplicate, Evidence: []string{"many repeated rows"}}},
	}

	decision := decisionFor(model.ActionQuarantineAndFlag, model.ActionRequirements{
		QuarantineData: true, SendAlert: true, GenerateRollback: true, HumanReview: true,
	}, anomaly)

	result := h.executor.Execute(context.Background(), decision)

	// No ids is a soft no-op: the store is never touched and the rest
	// of the sequence still runs.
	assert.True(t, result.Success)
	require.NotNil(t, result.Quarantine)
	assert.False(t, result.Quarantine.Success)
	assert.Equal(t, "no affected ids", result.Quarantine.Reason)
	assert.Zero(t, result.Quarantine.RowsQuarantined)
	assert.Contains(t, result.StepsTaken, model.StepSendAlert)
	assert.Contains(t, result.RollbackSQL, "No affected ids")
}

func TestResumeConnector(t *testing.T) {
	h := newHarness(t)

	h.connector.On("Resume", mock.Anything).
		Return(&fivetran.Connector{ID: "conn_1", Paused: false}, nil).Once()

	step := h.executor.ResumeConnector(context.Background())
	assert.True(t, step.Success)
	assert.False(t, step.Paused)
	assert.Equal(t, "conn_1", step.ConnectorID)
}

func TestSendAlertBuildsEvidence(t *testing.T) {
	h := newHarness(t)

	var captured model.AlertPayload
	h.notifier.On("Dispatch", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(model.AlertPayload)
		}).
		Return(nil).Once()

	decision := decisionFor(model.ActionQuarantineAndPause, model.ActionRequirements{SendAlert: true}, testAnomaly("TEST_001"))
	decision.SchemaAlert = &model.SchemaAlert{
		Severity: model.SeverityCritical,
		Changes: model.SchemaChanges{
			TypeChanges: []model.TypeChange{{Column: "sentiment_score", OldType: "double precision", NewType: "text"}},
		},
		Impact: "Type changes will break queries expecting previous types",
	}

	h.executor.SendAlert(context.Background(), decision)

	assert.Equal(t, "dec-1", captured.DecisionID)
	require.NotEmpty(t, captured.Evidence)
	assert.Contains(t, captured.Evidence[0], "sentiment_score")
	assert.Contains(t, captured.Evidence[1], "Impact:")
}

func TestExecuteRecoversFromPanic(t *testing.T) {
	log := history.NewMemoryLog[model.ActionResult]()
	// A nil connector makes the pause step panic.
	executor := NewExecutor(nil, nil, &mockNotifier{}, log, testWarehouseConfig())

	decision := decisionFor(model.ActionEmergencyPause, model.ActionRequirements{
		PauseConnector: true, SendAlert: true, HumanReview: true, Urgent: true,
	}, nil)

	result := executor.Execute(context.Background(), decision)

	require.False(t, result.Success)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "panic")
	assert.Equal(t, 1, log.Len())
}

func TestRecentNewestFirst(t *testing.T) {
	h := newHarness(t)

	for i := 0; i < 3; i++ {
		h.executor.Execute(context.Background(),
			decisionFor(model.ActionContinue, model.ActionRequirements{}, nil))
	}

	recent := h.executor.Recent(2)
	require.Len(t, recent, 2)
	assert.False(t, recent[0].CreatedAt.Before(recent[1].CreatedAt))
}
