package email

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"citybrief/internal/config"
	"citybrief/internal/core"
	"citybrief/internal/render"
)

func testDigest() render.Digest {
	items := []core.ContentItem{
		{ID: "t1", ModuleID: core.ModuleTransit, Title: "G train suspended", Body: "No service in both directions.", URL: "https://mta.test/1", PriorityScore: 95, UrgencyClass: core.UrgencyUrgent},
		{ID: "p1", ModuleID: core.ModuleParking, Title: "ASP suspended today", Body: "No need to move the car.", PriorityScore: 88, UrgencyClass: core.UrgencyTimeSensitive},
	}
	return render.BuildStandard(core.SlotMorning, items, time.Date(2026, 8, 24, 7, 0, 0, 0, time.UTC), time.UTC)
}

func TestRenderHTML(t *testing.T) {
	html, err := RenderHTML(testDigest(), GetDefaultTemplate())
	if err != nil {
		t.Fatalf("RenderHTML failed: %v", err)
	}

	checks := []string{
		"CityBrief",
		"Morning Edition",
		"Monday, August 24",
		"Transit",
		"G train suspended",
		`href="https://mta.test/1"`,
		`<span class="badge">URGENT</span>`,
		"#0f766e", // Header color from the default template
		"unsubscribe",
	}
	for _, want := range checks {
		if !strings.Contains(html, want) {
			t.Errorf("Expected rendered HTML to contain %q", want)
		}
	}

	// The non-urgent item gets no badge
	if strings.Count(html, `class="badge"`) != 1 {
		t.Errorf("Expected exactly one urgent badge, got %d", strings.Count(html, `class="badge"`))
	}
}

func TestRenderHTML_NilTemplateUsesDefault(t *testing.T) {
	html, err := RenderHTML(testDigest(), nil)
	if err != nil {
		t.Fatalf("RenderHTML failed: %v", err)
	}
	if !strings.Contains(html, "#0f766e") {
		t.Error("Expected the default template to be applied")
	}
}

func TestRenderHTML_EscapesContent(t *testing.T) {
	digest := render.BuildStandard(core.SlotMidday, []core.ContentItem{
		{ID: "n1", ModuleID: core.ModuleGeneral, Title: `Vendor sells "<script>" shirts`, PriorityScore: 50},
	}, time.Now(), time.UTC)

	html, err := RenderHTML(digest, nil)
	if err != nil {
		t.Fatalf("RenderHTML failed: %v", err)
	}
	if strings.Contains(html, "<script>") {
		t.Error("Expected item text to be HTML-escaped")
	}
}

func TestClientSend(t *testing.T) {
	var gotAuth, gotContentType string
	var gotRequest sendRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotRequest)
		_ = json.NewEncoder(w).Encode(SendResult{ID: "msg-123", Success: true})
	}))
	defer server.Close()

	client := NewClient(config.Delivery{
		Endpoint:    server.URL,
		Token:       "secret-token",
		FromAddress: "digest@citybrief.nyc",
		FromName:    "CityBrief",
		Timeout:     "5s",
	}, t.TempDir())

	result, err := client.Send(context.Background(), "ana@example.com", "Morning brief", "<html></html>", "text body")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if result.ID != "msg-123" {
		t.Errorf("Expected endpoint message ID, got %q", result.ID)
	}
	if !result.Success {
		t.Error("Expected success")
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("Expected bearer auth, got %q", gotAuth)
	}
	if gotContentType != "application/json" {
		t.Errorf("Expected JSON content type, got %q", gotContentType)
	}
	if gotRequest.To != "ana@example.com" || gotRequest.From != "digest@citybrief.nyc" {
		t.Errorf("Unexpected envelope: %+v", gotRequest)
	}
	if gotRequest.Subject != "Morning brief" || gotRequest.HTML == "" || gotRequest.Text == "" {
		t.Errorf("Expected subject and both bodies, got %+v", gotRequest)
	}
}

func TestClientSend_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(config.Delivery{Endpoint: server.URL, Timeout: "5s"}, t.TempDir())
	_, err := client.Send(context.Background(), "ana@example.com", "Subject", "<html></html>", "")
	if err == nil {
		t.Fatal("Expected error for a non-2xx response")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("Expected the status code in the error, got: %v", err)
	}
}

func TestClientSend_OpaqueResponseBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OK"))
	}))
	defer server.Close()

	client := NewClient(config.Delivery{Endpoint: server.URL, Timeout: "5s"}, t.TempDir())
	result, err := client.Send(context.Background(), "ana@example.com", "Subject", "<html></html>", "")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if !result.Success || result.ID == "" {
		t.Errorf("Expected a synthesized successful result, got %+v", result)
	}
}

func TestClientSend_DryRun(t *testing.T) {
	outputDir := filepath.Join(t.TempDir(), "digests")
	client := NewClient(config.Delivery{DryRun: true, Timeout: "5s"}, outputDir)

	result, err := client.Send(context.Background(), "ana@example.com", "Morning brief", "<html>content</html>", "")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if !result.Success || !strings.HasPrefix(result.ID, "dryrun-") {
		t.Errorf("Expected a dry-run result, got %+v", result)
	}

	entries, err := os.ReadDir(outputDir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 written file, got %d", len(entries))
	}
	content, _ := os.ReadFile(filepath.Join(outputDir, entries[0].Name()))
	if string(content) != "<html>content</html>" {
		t.Error("Expected the HTML body on disk")
	}
}

func TestClientSend_NoEndpoint(t *testing.T) {
	client := NewClient(config.Delivery{Timeout: "5s"}, t.TempDir())
	if _, err := client.Send(context.Background(), "ana@example.com", "Subject", "<html></html>", ""); err == nil {
		t.Error("Expected error when no endpoint is configured and dry run is off")
	}
}

func TestWriteHTMLEmail(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	path, err := WriteHTMLEmail("<html></html>", dir, "digest.html")
	if err != nil {
		t.Fatalf("WriteHTMLEmail failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Expected the file to exist: %v", err)
	}
}
