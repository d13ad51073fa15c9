// Package notify dispatches decision alerts to operator channels. Dispatch
// is best-effort: a failing channel is logged and never blocks the control
// loop.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pipewarden/internal/model"
)

// Notifier delivers one alert payload to a channel.
type Notifier interface {
	Name() string
	Dispatch(ctx context.Context, alert model.AlertPayload) error
}

// Fanout dispatches to every channel and logs per-channel failures. It
// always reports success to the caller.
type Fanout struct {
	channels []Notifier
}

// NewFanout creates a Fanout over the given channels.
func NewFanout(channels ...Notifier) *Fanout {
	return &Fanout{channels: channels}
}

// Name implements Notifier.
func (f *Fanout) Name() string { return "fanout" }

// Dispatch sends the alert to every channel. Failures are logged, never
// returned; the control loop must not stall on a notification channel.
func (f *Fanout) Dispatch(ctx context.Context, alert model.AlertPayload) error {
	for _, ch := range f.channels {
		if err := ch.Dispatch(ctx, alert); err != nil {
			zap.L().Error("notify: channel dispatch failed",
				zap.String("channel", ch.Name()),
				zap.String("alert_id", alert.ID),
				zap.Error(err),
			)
			continue
		}
		zap.L().Debug("notify: alert dispatched",
			zap.String("channel", ch.Name()),
			zap.String("alert_id", alert.ID),
		)
	}
	return nil
}

// Console logs the full alert through zap. Always configured; the minimum
// viable channel.
type Console struct{}

// NewConsole creates the console channel.
func NewConsole() *Console { return &Console{} }

// Name implements Notifier.
func (c *Console) Name() string { return "console" }

// Dispatch implements Notifier.
func (c *Console) Dispatch(_ context.Context, alert model.AlertPayload) error {
	zap.L().Warn("ALERT: "+string(alert.Action),
		zap.String("alert_id", alert.ID),
		zap.String("decision_id", alert.DecisionID),
		zap.String("priority", string(alert.Priority)),
		zap.Float64("confidence", alert.Confidence),
		zap.Bool("urgent", alert.Urgent),
		zap.Strings("reasoning", alert.Reasoning),
		zap.Strings("evidence", alert.Evidence),
	)
	return nil
}

// Webhook POSTs the alert as JSON to a configured URL.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook creates the webhook channel.
func NewWebhook(url string) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Name implements Notifier.
func (w *Webhook) Name() string { return "webhook" }

// Dispatch implements Notifier.
func (w *Webhook) Dispatch(ctx context.Context, alert model.AlertPayload) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "notify: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "notify: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "notify: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("notify: webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// FormatText renders the alert as a short human-readable block, shared by
// channels that post prose rather than JSON.
func FormatText(alert model.AlertPayload) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s (confidence %.0f%%)\n", alert.Priority, alert.Action, alert.Confidence*100)
	for _, r := range alert.Reasoning {
		fmt.Fprintf(&sb, "  - %s\n", r)
	}
	if len(alert.Evidence) > 0 {
		sb.WriteString("Evidence:\n")
		for _, e := range alert.Evidence {
			fmt.Fprintf(&sb, "  - %s\n", e)
		}
	}
	return sb.String()
}
