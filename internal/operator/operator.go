// Package operator posts run outcomes to the on-call webhook. The payload is
// Slack-compatible (a "text" field) with the structured counts alongside.
// Notification failures are logged and swallowed; a digest run never fails
// because the operator channel is down, and an unset URL disables the
// reporter entirely.
package operator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"citybrief/internal/config"
	"citybrief/internal/core"
	"citybrief/internal/ingest"
	"citybrief/internal/logger"

	"github.com/rs/zerolog"
)

// Reporter sends operational notifications.
type Reporter struct {
	webhookURL string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewReporter builds a reporter from config.
func NewReporter(cfg config.Operator) *Reporter {
	return &Reporter{
		webhookURL: cfg.WebhookURL,
		httpClient: &http.Client{Timeout: cfg.TimeoutDuration()},
		log:        logger.With("operator"),
	}
}

// Enabled reports whether a webhook URL is configured.
func (r *Reporter) Enabled() bool {
	return r.webhookURL != ""
}

type payload struct {
	Text     string `json:"text"`
	RunID    string `json:"run_id,omitempty"`
	Slot     string `json:"slot,omitempty"`
	Mode     string `json:"mode,omitempty"`
	Sent     int    `json:"sent"`
	Skipped  int    `json:"skipped"`
	Failed   int    `json:"failed"`
	Rejected int    `json:"rejected,omitempty"`
}

// DigestRun reports the outcome of a slot job.
func (r *Reporter) DigestRun(ctx context.Context, report core.JobReport) {
	if !report.Locked {
		r.send(ctx, payload{
			Text:  fmt.Sprintf("citybrief: %s digest skipped, another run holds the lock", report.Slot),
			RunID: report.RunID,
			Slot:  string(report.Slot),
		})
		return
	}

	text := fmt.Sprintf("citybrief: %s digest (%s) sent %d, skipped %d, failed %d",
		report.Slot, report.Mode, report.Sent, report.Skipped, report.Failed)
	if report.Failed > 0 {
		text = ":warning: " + text
	}

	r.send(ctx, payload{
		Text:    text,
		RunID:   report.RunID,
		Slot:    string(report.Slot),
		Mode:    string(report.Mode),
		Sent:    report.Sent,
		Skipped: report.Skipped,
		Failed:  report.Failed,
	})
}

// UrgentSweep reports an urgent sweep that delivered something or failed.
// Quiet sweeps stay quiet.
func (r *Reporter) UrgentSweep(ctx context.Context, report core.JobReport) {
	if report.Sent == 0 && report.Failed == 0 {
		return
	}

	text := fmt.Sprintf("citybrief: urgent sweep sent %d, failed %d", report.Sent, report.Failed)
	if report.Failed > 0 {
		text = ":warning: " + text
	}

	r.send(ctx, payload{
		Text:   text,
		RunID:  report.RunID,
		Sent:   report.Sent,
		Failed: report.Failed,
	})
}

// IngestRun reports ingest trouble: source errors, malformed records, or a
// run-level failure. Clean runs are not worth a ping every half hour.
func (r *Reporter) IngestRun(ctx context.Context, report ingest.Report) {
	var broken []string
	for _, source := range report.Sources {
		if source.Err != nil {
			broken = append(broken, fmt.Sprintf("%s (%v)", source.Source, source.Err))
		}
	}
	total := report.Total()
	if report.Err == nil && len(broken) == 0 && total.Rejected == 0 {
		return
	}

	var text string
	switch {
	case report.Err != nil:
		text = fmt.Sprintf(":warning: citybrief: ingest run failed: %v", report.Err)
	case len(broken) > 0:
		text = fmt.Sprintf(":warning: citybrief: ingest sources failing: %s", strings.Join(broken, ", "))
	default:
		text = fmt.Sprintf(":warning: citybrief: ingest rejected %d malformed records: %s",
			total.Rejected, summarize(total.Invalid, 3))
	}

	r.send(ctx, payload{Text: text, RunID: report.RunID, Rejected: total.Rejected})
}

// summarize joins the first few messages and notes how many were elided.
func summarize(msgs []string, max int) string {
	if len(msgs) <= max {
		return strings.Join(msgs, "; ")
	}
	return fmt.Sprintf("%s; and %d more", strings.Join(msgs[:max], "; "), len(msgs)-max)
}

func (r *Reporter) send(ctx context.Context, p payload) {
	if r.webhookURL == "" {
		return
	}

	jsonData, err := json.Marshal(p)
	if err != nil {
		r.log.Error().Err(err).Msg("failed to marshal operator payload")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.webhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		r.log.Error().Err(err).Msg("failed to build operator request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.log.Warn().Err(err).Msg("operator webhook unreachable")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		r.log.Warn().
			Int("status", resp.StatusCode).
			Str("body", strings.TrimSpace(string(body))).
			Msg("operator webhook rejected notification")
	}
}
