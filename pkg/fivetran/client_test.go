package fivetran

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pipewarden/internal/resilience"
)

func connectorJSON(paused bool, setupState string) string {
	return `{
		"code": "Success",
		"data": {
			"id": "conn_1",
			"group_id": "grp_1",
			"service": "alpha_vantage",
			"schema": "raw_news",
			"paused": ` + map[bool]string{true: "true", false: "false"}[paused] + `,
			"status": {"setup_state": "` + setupState + `", "sync_state": "scheduled"}
		}
	}`
}

func newTestClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New("key", "secret", "conn_1",
		WithBaseURL(srv.URL),
		WithRateLimit(3600*1000),
		WithRetry(resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: 1}),
	)
}

func TestDetails(t *testing.T) {
	var gotAuth, gotPath string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.Method + " " + r.URL.Path
		w.Write([]byte(connectorJSON(false, "connected"))) //nolint:errcheck
	})

	conn, err := client.Details(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "conn_1", conn.ID)
	assert.False(t, conn.Paused)
	assert.Equal(t, "GET /connectors/conn_1", gotPath)
	// key:secret base64-encoded.
	assert.Equal(t, "Basic a2V5OnNlY3JldA==", gotAuth)
}

func TestPausePatchesBody(t *testing.T) {
	var gotMethod string
	var gotBody map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(connectorJSON(true, "connected"))) //nolint:errcheck
	})

	conn, err := client.Pause(context.Background())
	require.NoError(t, err)
	assert.True(t, conn.Paused)
	assert.Equal(t, http.MethodPatch, gotMethod)
	assert.Equal(t, map[string]any{"paused": true}, gotBody)
}

func TestResumePatchesBody(t *testing.T) {
	var gotBody map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(connectorJSON(false, "connected"))) //nolint:errcheck
	})

	conn, err := client.Resume(context.Background())
	require.NoError(t, err)
	assert.False(t, conn.Paused)
	assert.Equal(t, map[string]any{"paused": false}, gotBody)
}

func TestStatusDerivesHealth(t *testing.T) {
	tests := []struct {
		name       string
		paused     bool
		setupState string
		wantHealth string
	}{
		{"running", false, "connected", "running"},
		{"paused", true, "connected", "paused"},
		{"broken setup", false, "incomplete", "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte(connectorJSON(tt.paused, tt.setupState))) //nolint:errcheck
			})

			status, err := client.Status(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.wantHealth, status.Health)
			assert.Equal(t, tt.paused, status.Paused)
		})
	}
}

func TestTriggerSync(t *testing.T) {
	var gotPath string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
		w.Write([]byte(`{"code":"Success","data":{}}`)) //nolint:errcheck
	})

	require.NoError(t, client.TriggerSync(context.Background()))
	assert.Equal(t, "POST /connectors/conn_1/force", gotPath)
}

func TestClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"code":"AuthFailed","message":"invalid credentials"}`)) //nolint:errcheck
	})

	_, err := client.Details(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid credentials")
	assert.Equal(t, int32(1), calls.Load())
}

func TestCircuitOpensOnRepeatedServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	client := New("key", "secret", "conn_1",
		WithBaseURL(srv.URL),
		WithRateLimit(3600*1000),
		WithRetry(resilience.RetryConfig{MaxAttempts: 1, InitialBackoff: 1}),
		WithCircuitBreaker(resilience.CircuitBreakerConfig{
			FailureThreshold: 2,
			ResetTimeout:     time.Hour,
			ShouldTrip:       resilience.IsTransient,
		}),
	)

	_, err := client.Details(context.Background())
	require.Error(t, err)
	_, err = client.Details(context.Background())
	require.Error(t, err)

	// Third call is rejected without reaching the API.
	_, err = client.Details(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClientErrorDoesNotTripCircuit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"code":"AuthFailed","message":"invalid credentials"}`)) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)

	client := New("key", "secret", "conn_1",
		WithBaseURL(srv.URL),
		WithRateLimit(3600*1000),
		WithRetry(resilience.RetryConfig{MaxAttempts: 1, InitialBackoff: 1}),
		WithCircuitBreaker(resilience.CircuitBreakerConfig{
			FailureThreshold: 1,
			ResetTimeout:     time.Hour,
			ShouldTrip:       resilience.IsTransient,
		}),
	)

	for i := 0; i < 3; i++ {
		_, err := client.Details(context.Background())
		require.Error(t, err)
		assert.NotErrorIs(t, err, resilience.ErrCircuitOpen)
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestServerErrorRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(connectorJSON(false, "connected"))) //nolint:errcheck
	})

	conn, err := client.Details(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "conn_1", conn.ID)
	assert.Equal(t, int32(2), calls.Load())
}
