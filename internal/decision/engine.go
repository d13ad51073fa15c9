// Package decision classifies the current alert pair into a single
// autonomous action. Classification is an ordered rule table evaluated
// first-match-wins; every evaluation is appended to an injected
// append-only log.
package decision

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/pipewarden/internal/history"
	"github.com/sells-group/pipewarden/internal/model"
)

// Engine maps zero, one, or two input alerts to a Decision.
type Engine struct {
	log history.Log[model.Decision]
	now func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the decision timestamp source, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an Engine writing to the given decision log. A nil
// log gets an in-memory default.
func NewEngine(log history.Log[model.Decision], opts ...Option) *Engine {
	e := &Engine{log: log, now: time.Now}
	if e.log == nil {
		e.log = history.NewMemoryLog[model.Decision]()
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Evaluate classifies the alert pair. Either input may be nil, meaning
// that detector found nothing to report. The returned Decision carries
// its action requirements and is already appended to the decision log;
// it must not be mutated afterwards.
func (e *Engine) Evaluate(schema *model.SchemaAlert, anomaly *model.AnomalyAlert) model.Decision {
	in := inputs{schema: schema, anomaly: anomaly}

	var matched rule
	for _, r := range rules {
		if r.match(in) {
			matched = r
			break
		}
	}

	out := matched.outcome(in)
	confidence := out.confidence
	if confidence == useAnomalyConfidence {
		confidence = in.anomalyConfidence()
	}

	d := model.Decision{
		ID:            uuid.NewString(),
		CreatedAt:     e.now().UTC(),
		Action:        out.action,
		Priority:      out.priority,
		Confidence:    confidence,
		Reasoning:     out.reasoning(in),
		SeverityScore: out.score,
		Rule:          matched.name,
		SchemaAlert:   schema,
		AnomalyAlert:  anomaly,
		Requirements:  requirementsTable[out.action],
	}

	e.log.Append(d)

	zap.L().Info("decision: evaluated",
		zap.String("decision_id", d.ID),
		zap.String("rule", d.Rule),
		zap.String("action", string(d.Action)),
		zap.String("priority", string(d.Priority)),
		zap.Float64("confidence", d.Confidence),
		zap.Int("severity_score", d.SeverityScore),
	)

	return d
}

// Requirements returns the static effect-set for an action. Unknown
// actions return the zero record; this never fails.
func (e *Engine) Requirements(action model.ActionType) model.ActionRequirements {
	return requirementsTable[action]
}

// Recent returns up to limit decisions, newest first.
func (e *Engine) Recent(limit int) []model.Decision {
	return e.log.Recent(limit)
}

// Metrics aggregates the full decision log. All values are zero when no
// decision has been made yet.
func (e *Engine) Metrics() model.DecisionMetrics {
	all := e.log.All()

	m := model.DecisionMetrics{
		Total:      len(all),
		ByAction:   make(map[model.ActionType]int),
		ByPriority: make(map[model.Priority]int),
	}
	if len(all) == 0 {
		return m
	}

	var sum float64
	for _, d := range all {
		m.ByAction[d.Action]++
		m.ByPriority[d.Priority]++
		sum += d.Confidence
	}
	m.MeanConfidence = sum / float64(len(all))
	return m
}
