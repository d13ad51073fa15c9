package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pipewarden/internal/model"
)

func testAlert() model.AlertPayload {
	return model.AlertPayload{
		ID:         "alert_1",
		DecisionID: "dec_1",
		Action:     model.ActionPauseAndAlert,
		Priority:   model.PriorityHigh,
		Confidence: 0.92,
		Reasoning:  []string{"critical schema change detected"},
		Evidence:   []string{"column 'sentiment' type changed"},
		Urgent:     true,
	}
}

type stubChannel struct {
	name       string
	err        error
	dispatched []model.AlertPayload
}

func (s *stubChannel) Name() string { return s.name }

func (s *stubChannel) Dispatch(_ context.Context, alert model.AlertPayload) error {
	s.dispatched = append(s.dispatched, alert)
	return s.err
}

func TestFanoutDispatchesToAllChannels(t *testing.T) {
	a := &stubChannel{name: "a"}
	b := &stubChannel{name: "b"}
	f := NewFanout(a, b)

	require.NoError(t, f.Dispatch(context.Background(), testAlert()))
	assert.Len(t, a.dispatched, 1)
	assert.Len(t, b.dispatched, 1)
}

func TestFanoutAbsorbsChannelFailures(t *testing.T) {
	failing := &stubChannel{name: "broken", err: eris.New("boom")}
	working := &stubChannel{name: "ok"}
	f := NewFanout(failing, working)

	// A failing channel must not stop later channels or surface an error.
	require.NoError(t, f.Dispatch(context.Background(), testAlert()))
	assert.Len(t, failing.dispatched, 1)
	assert.Len(t, working.dispatched, 1)
}

func TestConsoleDispatch(t *testing.T) {
	c := NewConsole()
	assert.Equal(t, "console", c.Name())
	assert.NoError(t, c.Dispatch(context.Background(), testAlert()))
}

func TestWebhookDispatch(t *testing.T) {
	var got model.AlertPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL)
	require.NoError(t, w.Dispatch(context.Background(), testAlert()))
	assert.Equal(t, "alert_1", got.ID)
	assert.Equal(t, model.ActionPauseAndAlert, got.Action)
	assert.True(t, got.Urgent)
}

func TestWebhookDispatchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL).Dispatch(context.Background(), testAlert())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestWebhookDispatchUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	err := NewWebhook(srv.URL).Dispatch(context.Background(), testAlert())
	require.Error(t, err)
}

func TestFormatText(t *testing.T) {
	text := FormatText(testAlert())

	assert.Contains(t, text, "[HIGH] PAUSE_AND_ALERT (confidence 92%)")
	assert.Contains(t, text, "  - critical schema change detected")
	assert.Contains(t, text, "Evidence:")
	assert.Contains(t, text, "  - column 'sentiment' type changed")
}

func TestFormatTextNoEvidence(t *testing.T) {
	alert := testAlert()
	alert.Evidence = nil

	assert.NotContains(t, FormatText(alert), "Evidence:")
}
