// Package anomaly samples recent warehouse rows and asks an LLM for a
// structured data-quality verdict over them.
package anomaly

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pipewarden/internal/config"
	"github.com/sells-group/pipewarden/internal/model"
	"github.com/sells-group/pipewarden/internal/resilience"
	"github.com/sells-group/pipewarden/internal/warehouse"
	"github.com/sells-group/pipewarden/pkg/anthropic"
)

// RowSampler fetches recent rows for analysis, implemented by the
// warehouse client.
type RowSampler interface {
	Table() string
	SampleRows(ctx context.Context, q warehouse.SampleQuery) ([]map[string]any, error)
}

// analysisTemperature keeps verdicts near-deterministic.
const analysisTemperature = 0.1

// Detective runs LLM-backed content checks over sampled rows.
type Detective struct {
	llm        anthropic.Client
	sampler    RowSampler
	cfg        config.AnomalyConfig
	llmModel   string
	maxTok     int64
	llmTimeout time.Duration
	tsColumn   string
	breaker    *resilience.CircuitBreaker
	now        func() time.Time
}

// Option configures a Detective.
type Option func(*Detective)

// WithClock overrides the timestamp source, for tests.
func WithClock(now func() time.Time) Option {
	return func(d *Detective) { d.now = now }
}

// WithCircuitBreaker overrides the default circuit breaker policy.
func WithCircuitBreaker(cfg resilience.CircuitBreakerConfig) Option {
	return func(d *Detective) { d.breaker = resilience.NewCircuitBreaker(cfg) }
}

// NewDetective creates a Detective over the given LLM client and row
// sampler.
func NewDetective(llm anthropic.Client, sampler RowSampler, cfg config.AnomalyConfig, llmCfg config.AnthropicConfig, tsColumn string, opts ...Option) *Detective {
	d := &Detective{
		llm:        llm,
		sampler:    sampler,
		cfg:        cfg,
		llmModel:   llmCfg.Model,
		maxTok:     llmCfg.MaxTokens,
		llmTimeout: time.Duration(llmCfg.TimeoutSecs) * time.Second,
		tsColumn:   tsColumn,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			OnStateChange: func(from, to resilience.CircuitState) {
				zap.L().Warn("anomaly: circuit state changed",
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}),
		now: time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Check samples the monitored table's recent rows and returns the LLM's
// verdict. An empty sample yields a clean alert without an LLM call; LLM
// and parse failures propagate to the caller. Repeated LLM failures open
// a circuit that fails later checks fast until the reset window passes.
func (d *Detective) Check(ctx context.Context) (*model.AnomalyAlert, error) {
	sample, err := d.sampler.SampleRows(ctx, warehouse.SampleQuery{
		Limit:           d.cfg.SampleLimit,
		LookbackDays:    d.cfg.LookbackDays,
		TimestampColumn: d.tsColumn,
	})
	if err != nil {
		return nil, eris.Wrap(err, "anomaly: sample rows")
	}

	alert := &model.AnomalyAlert{
		ID:         uuid.NewString(),
		CreatedAt:  d.now().UTC(),
		Table:      d.sampler.Table(),
		SampleSize: len(sample),
	}

	if len(sample) == 0 {
		zap.L().Info("anomaly: no recent rows to analyze",
			zap.String("table", alert.Table),
		)
		return alert, nil
	}

	llmCtx := ctx
	if d.llmTimeout > 0 {
		var cancel context.CancelFunc
		llmCtx, cancel = context.WithTimeout(ctx, d.llmTimeout)
		defer cancel()
	}

	temp := analysisTemperature
	resp, err := resilience.ExecuteVal(llmCtx, d.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return d.llm.CreateMessage(ctx, anthropic.MessageRequest{
			Model:       d.llmModel,
			MaxTokens:   d.maxTok,
			Temperature: &temp,
			System:      anthropic.BuildCachedSystemBlocks(systemPrompt),
			Messages: []anthropic.Message{
				{Role: "user", Content: buildPrompt(alert.Table, sample)},
			},
		})
	})
	if err != nil {
		return nil, eris.Wrap(err, "anomaly: analyze sample")
	}
	resp.Usage.LogCost(d.llmModel, "anomaly_check")

	if err := d.parseVerdict(resp.Text(), alert); err != nil {
		return nil, err
	}

	zap.L().Info("anomaly: check complete",
		zap.String("table", alert.Table),
		zap.Int("sample_size", alert.SampleSize),
		zap.Bool("has_anomalies", alert.HasAnomalies),
		zap.Float64("confidence", alert.Confidence),
		zap.Int("findings", len(alert.Anomalies)),
	)
	return alert, nil
}

// verdict is the LLM's JSON output shape.
type verdict struct {
	HasAnomalies bool            `json:"has_anomalies"`
	Confidence   float64         `json:"confidence"`
	Anomalies    []model.Anomaly `json:"anomalies"`
	Summary      string          `json:"summary"`
}

// parseVerdict decodes the model response into the alert, clamping
// confidence to [0,1] and applying the configured confidence floor.
func (d *Detective) parseVerdict(text string, alert *model.AnomalyAlert) error {
	var v verdict
	if err := json.Unmarshal([]byte(cleanJSON(text)), &v); err != nil {
		return eris.Wrap(err, "anomaly: parse verdict")
	}

	alert.Confidence = clamp01(v.Confidence)
	alert.Summary = v.Summary

	if !v.HasAnomalies || alert.Confidence < d.cfg.MinConfidence {
		if v.HasAnomalies {
			zap.L().Info("anomaly: findings below confidence floor",
				zap.Float64("confidence", alert.Confidence),
				zap.Float64("floor", d.cfg.MinConfidence),
			)
		}
		return nil
	}

	alert.HasAnomalies = true
	alert.Anomalies = v.Anomalies
	return nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
