package operator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"citybrief/internal/config"
	"citybrief/internal/core"
	"citybrief/internal/ingest"
)

func captureReporter(t *testing.T) (*Reporter, *[]payload) {
	t.Helper()
	var received []payload

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p payload
		_ = json.NewDecoder(r.Body).Decode(&p)
		received = append(received, p)
	}))
	t.Cleanup(server.Close)

	return NewReporter(config.Operator{WebhookURL: server.URL, Timeout: "5s"}), &received
}

func TestDigestRun(t *testing.T) {
	reporter, received := captureReporter(t)

	reporter.DigestRun(context.Background(), core.JobReport{
		RunID:   "run-1",
		Slot:    core.SlotMorning,
		Mode:    core.ModeEnhanced,
		Sent:    42,
		Skipped: 3,
		Failed:  0,
		Locked:  true,
	})

	if len(*received) != 1 {
		t.Fatalf("Expected 1 notification, got %d", len(*received))
	}
	got := (*received)[0]
	if got.Sent != 42 || got.Skipped != 3 {
		t.Errorf("Unexpected counts: %+v", got)
	}
	if !strings.Contains(got.Text, "morning digest (enhanced) sent 42") {
		t.Errorf("Unexpected text %q", got.Text)
	}
	if strings.Contains(got.Text, ":warning:") {
		t.Error("Expected no warning prefix for a clean run")
	}
}

func TestDigestRun_FailuresFlagged(t *testing.T) {
	reporter, received := captureReporter(t)

	reporter.DigestRun(context.Background(), core.JobReport{
		RunID: "run-2", Slot: core.SlotEvening, Mode: core.ModeStandard,
		Sent: 10, Failed: 2, Locked: true,
	})

	if !strings.HasPrefix((*received)[0].Text, ":warning:") {
		t.Errorf("Expected a warning prefix, got %q", (*received)[0].Text)
	}
}

func TestDigestRun_LockContention(t *testing.T) {
	reporter, received := captureReporter(t)

	reporter.DigestRun(context.Background(), core.JobReport{
		RunID: "run-3", Slot: core.SlotMidday, Locked: false,
	})

	if !strings.Contains((*received)[0].Text, "another run holds the lock") {
		t.Errorf("Expected the lock-contention message, got %q", (*received)[0].Text)
	}
}

func TestUrgentSweep_QuietWhenNothingHappened(t *testing.T) {
	reporter, received := captureReporter(t)

	reporter.UrgentSweep(context.Background(), core.JobReport{RunID: "run-4", Locked: true})

	if len(*received) != 0 {
		t.Errorf("Expected no notification for an empty sweep, got %d", len(*received))
	}
}

func TestUrgentSweep_ReportsDeliveries(t *testing.T) {
	reporter, received := captureReporter(t)

	reporter.UrgentSweep(context.Background(), core.JobReport{RunID: "run-5", Sent: 7, Locked: true})

	if len(*received) != 1 {
		t.Fatalf("Expected 1 notification, got %d", len(*received))
	}
	if !strings.Contains((*received)[0].Text, "urgent sweep sent 7") {
		t.Errorf("Unexpected text %q", (*received)[0].Text)
	}
}

func TestIngestRun_QuietOnCleanRun(t *testing.T) {
	reporter, received := captureReporter(t)

	reporter.IngestRun(context.Background(), ingest.Report{
		RunID:   "run-6",
		Sources: []ingest.SourceResult{{Source: "mta", Fetched: 10, Accepted: 2}},
	})

	if len(*received) != 0 {
		t.Errorf("Expected no notification for a clean ingest, got %d", len(*received))
	}
}

func TestIngestRun_ReportsBrokenSources(t *testing.T) {
	reporter, received := captureReporter(t)

	reporter.IngestRun(context.Background(), ingest.Report{
		RunID: "run-7",
		Sources: []ingest.SourceResult{
			{Source: "mta", Fetched: 10},
			{Source: "gothamist", Err: fmt.Errorf("connection refused")},
		},
	})

	if len(*received) != 1 {
		t.Fatalf("Expected 1 notification, got %d", len(*received))
	}
	if !strings.Contains((*received)[0].Text, "gothamist") {
		t.Errorf("Expected the broken source named, got %q", (*received)[0].Text)
	}
}

func TestIngestRun_ReportsMalformedRecords(t *testing.T) {
	reporter, received := captureReporter(t)

	reporter.IngestRun(context.Background(), ingest.Report{
		RunID: "run-8",
		Sources: []ingest.SourceResult{
			{Source: "mta", Fetched: 10, Accepted: 8},
			{Source: "gothamist", Fetched: 3, Rejected: 2, Invalid: []string{
				"title too short",
				"unknown content type \"podcast\"",
			}},
		},
	})

	if len(*received) != 1 {
		t.Fatalf("Expected 1 notification, got %d", len(*received))
	}
	got := (*received)[0]
	if got.Rejected != 2 {
		t.Errorf("Expected rejected count 2, got %d", got.Rejected)
	}
	if !strings.Contains(got.Text, "rejected 2 malformed records") ||
		!strings.Contains(got.Text, "title too short") {
		t.Errorf("Expected the rejection reasons in the text, got %q", got.Text)
	}
}

func TestSummarize_ElidesLongLists(t *testing.T) {
	msgs := []string{"one", "two", "three", "four", "five"}
	got := summarize(msgs, 3)
	if got != "one; two; three; and 2 more" {
		t.Errorf("Unexpected summary %q", got)
	}
	if short := summarize(msgs[:2], 3); short != "one; two" {
		t.Errorf("Unexpected summary %q", short)
	}
}

func TestReporter_DisabledWithoutURL(t *testing.T) {
	reporter := NewReporter(config.Operator{})
	if reporter.Enabled() {
		t.Error("Expected reporter to be disabled without a URL")
	}
	// Must be a silent no-op, not a panic or an error
	reporter.DigestRun(context.Background(), core.JobReport{Slot: core.SlotMorning, Locked: true})
}

func TestReporter_SurvivesWebhookFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer server.Close()

	reporter := NewReporter(config.Operator{WebhookURL: server.URL, Timeout: "5s"})
	// A rejecting webhook must not panic or propagate
	reporter.DigestRun(context.Background(), core.JobReport{Slot: core.SlotMorning, Locked: true})
}
