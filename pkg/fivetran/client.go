// Package fivetran is a REST client for the Fivetran v1 connector API,
// covering the pause/resume/status/sync surface the control loop needs.
package fivetran

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/pipewarden/internal/resilience"
)

const defaultBaseURL = "https://api.fivetran.com/v1"

// fivetranRequestsPerHour is the documented account rate limit.
const fivetranRequestsPerHour = 120

// Client performs connector-control operations against the Fivetran API.
type Client interface {
	Details(ctx context.Context) (*Connector, error)
	Status(ctx context.Context) (*ConnectorStatus, error)
	Pause(ctx context.Context) (*Connector, error)
	Resume(ctx context.Context) (*Connector, error)
	TriggerSync(ctx context.Context) error
}

// Connector is the API's view of a connector.
type Connector struct {
	ID       string `json:"id"`
	GroupID  string `json:"group_id"`
	Service  string `json:"service"`
	Schema   string `json:"schema"`
	Paused   bool   `json:"paused"`
	SyncFreq int    `json:"sync_frequency"`
	Status   struct {
		SetupState       string `json:"setup_state"`
		SyncState        string `json:"sync_state"`
		UpdateState      string `json:"update_state"`
		IsHistoricalSync bool   `json:"is_historical_sync"`
	} `json:"status"`
}

// ConnectorStatus is the derived health view consumed by the orchestrator.
type ConnectorStatus struct {
	ConnectorID string `json:"connector_id"`
	Paused      bool   `json:"paused"`
	SetupState  string `json:"setup_state"`
	SyncState   string `json:"sync_state"`
	Health      string `json:"health"` // running, paused, error, unknown
}

// apiResponse is the envelope every Fivetran endpoint returns.
type apiResponse struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) { c.baseURL = url }
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithRateLimit overrides the default request rate limit.
func WithRateLimit(perHour int) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(float64(perHour)/3600.0), 1)
	}
}

// WithRetry overrides the default retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) { c.retry = cfg }
}

// WithCircuitBreaker overrides the default circuit breaker policy.
func WithCircuitBreaker(cfg resilience.CircuitBreakerConfig) Option {
	return func(c *httpClient) { c.breaker = resilience.NewCircuitBreaker(cfg) }
}

type httpClient struct {
	apiKey      string
	apiSecret   string
	connectorID string
	baseURL     string
	http        *http.Client
	limiter     *rate.Limiter
	retry       resilience.RetryConfig
	breaker     *resilience.CircuitBreaker
}

// New creates a Fivetran client for one connector. Requests are
// basic-authenticated, rate-limited to the account budget, retried on
// transient failures, and run behind a circuit breaker so a down API is
// reported fast instead of hammered every cycle.
func New(apiKey, apiSecret, connectorID string, opts ...Option) Client {
	c := &httpClient{
		apiKey:      apiKey,
		apiSecret:   apiSecret,
		connectorID: connectorID,
		baseURL:     defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(float64(fivetranRequestsPerHour)/3600.0), 1),
		retry:   resilience.DefaultRetryConfig(),
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			// Only transient failures trip the circuit; a 4xx means the
			// request is wrong, not that the API is down.
			ShouldTrip: resilience.IsTransient,
			OnStateChange: func(from, to resilience.CircuitState) {
				zap.L().Warn("fivetran: circuit state changed",
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Details fetches the connector record.
func (c *httpClient) Details(ctx context.Context) (*Connector, error) {
	return c.connectorCall(ctx, http.MethodGet, nil)
}

// Pause sets paused=true on the connector.
func (c *httpClient) Pause(ctx context.Context) (*Connector, error) {
	return c.connectorCall(ctx, http.MethodPatch, map[string]any{"paused": true})
}

// Resume sets paused=false on the connector.
func (c *httpClient) Resume(ctx context.Context) (*Connector, error) {
	return c.connectorCall(ctx, http.MethodPatch, map[string]any{"paused": false})
}

// TriggerSync forces an immediate sync.
func (c *httpClient) TriggerSync(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/connectors/"+c.connectorID+"/force", nil)
	return err
}

// Status derives the orchestrator's health view from connector details.
func (c *httpClient) Status(ctx context.Context) (*ConnectorStatus, error) {
	conn, err := c.Details(ctx)
	if err != nil {
		return nil, err
	}

	health := "running"
	switch {
	case conn.Paused:
		health = "paused"
	case conn.Status.SetupState != "connected" && conn.Status.SetupState != "":
		health = "error"
	}

	return &ConnectorStatus{
		ConnectorID: conn.ID,
		Paused:      conn.Paused,
		SetupState:  conn.Status.SetupState,
		SyncState:   conn.Status.SyncState,
		Health:      health,
	}, nil
}

func (c *httpClient) connectorCall(ctx context.Context, method string, body map[string]any) (*Connector, error) {
	data, err := c.do(ctx, method, "/connectors/"+c.connectorID, body)
	if err != nil {
		return nil, err
	}

	var conn Connector
	if err := json.Unmarshal(data, &conn); err != nil {
		return nil, eris.Wrap(err, "fivetran: unmarshal connector")
	}
	return &conn, nil
}

func (c *httpClient) do(ctx context.Context, method, path string, body map[string]any) (json.RawMessage, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, eris.Wrap(err, "fivetran: marshal request")
		}
	}

	return resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) (json.RawMessage, error) {
		return c.request(ctx, method, path, payload)
	})
}

func (c *httpClient) request(ctx context.Context, method, path string, payload []byte) (json.RawMessage, error) {
	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) (json.RawMessage, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "fivetran: rate limit")
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, eris.Wrap(err, "fivetran: create request")
		}
		req.SetBasicAuth(c.apiKey, c.apiSecret)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, eris.Wrap(err, "fivetran: send request")
		}
		defer resp.Body.Close() //nolint:errcheck

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrap(err, "fivetran: read response")
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, resilience.NewTransientError(
				eris.Errorf("fivetran: %s %s returned status %d", method, path, resp.StatusCode),
				resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			var env apiResponse
			if json.Unmarshal(respBody, &env) == nil && env.Message != "" {
				return nil, eris.Errorf("fivetran: %s %s failed: %s (%s)", method, path, env.Message, env.Code)
			}
			return nil, eris.Errorf("fivetran: %s %s returned status %d", method, path, resp.StatusCode)
		}

		var env apiResponse
		if err := json.Unmarshal(respBody, &env); err != nil {
			return nil, eris.Wrap(err, "fivetran: unmarshal response")
		}
		return env.Data, nil
	})
}
