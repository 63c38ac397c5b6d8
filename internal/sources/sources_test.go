package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"citybrief/internal/core"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>MTA Service Alerts</title>
  <link>https://mta.test/alerts</link>
  <description>Subway service alerts</description>
  <item>
    <title>G train delays after signal problem</title>
    <link>https://mta.test/alerts/1</link>
    <guid>alert-1</guid>
    <description>&lt;p&gt;Expect delays in both directions.&lt;/p&gt;</description>
    <category>G</category>
    <pubDate>Mon, 24 Aug 2026 08:00:00 GMT</pubDate>
  </item>
  <item>
    <title>L trains running with delays</title>
    <link>https://mta.test/alerts/2</link>
    <guid>alert-2</guid>
    <description>Residual delays after an earlier incident.</description>
  </item>
</channel>
</rss>`

func TestRSSSource_Fetch(t *testing.T) {
	var gotUserAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(sampleRSS))
	}))
	defer server.Close()

	feed := core.Feed{
		Name:        "mta",
		URL:         server.URL,
		ContentType: core.TypeTransitAlert,
		ModuleID:    core.ModuleTransit,
		TrustTier:   1,
		Active:      true,
	}
	source := NewRSSSource(feed, "CityBrief/1.0")

	records, err := source.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if gotUserAgent != "CityBrief/1.0" {
		t.Errorf("Expected the configured user agent, got %q", gotUserAgent)
	}

	first := records[0]
	if first.Source != "mta" {
		t.Errorf("Expected source mta, got %s", first.Source)
	}
	if first.ExternalID != "alert-1" {
		t.Errorf("Expected GUID as external ID, got %s", first.ExternalID)
	}
	if first.ContentType != core.TypeTransitAlert || first.ModuleID != core.ModuleTransit {
		t.Errorf("Expected the feed's type and module to be inherited, got %s/%s", first.ContentType, first.ModuleID)
	}
	if first.Title != "G train delays after signal problem" {
		t.Errorf("Unexpected title %q", first.Title)
	}
	if len(first.RouteTags) != 1 || first.RouteTags[0] != "G" {
		t.Errorf("Expected categories as route tags, got %v", first.RouteTags)
	}
	if first.PublishedAt.IsZero() {
		t.Error("Expected pubDate to be parsed")
	}

	// The second item has no pubDate; validation defaults it later
	if !records[1].PublishedAt.IsZero() {
		t.Error("Expected zero published time when the feed omits pubDate")
	}
}

func TestRSSSource_Fetch_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broken", http.StatusInternalServerError)
	}))
	defer server.Close()

	source := NewRSSSource(core.Feed{Name: "mta", URL: server.URL}, "")
	if _, err := source.Fetch(context.Background()); err == nil {
		t.Error("Expected error for a failing feed server")
	}
}

func TestFromFeeds_SkipsInactive(t *testing.T) {
	feeds := []core.Feed{
		{Name: "mta", URL: "https://mta.test/alerts", Active: true},
		{Name: "defunct", URL: "https://defunct.test/rss", Active: false},
		{Name: "gothamist", URL: "https://gothamist.test/feed", Active: true},
	}

	scrapers := FromFeeds(feeds, "CityBrief/1.0")
	if len(scrapers) != 2 {
		t.Fatalf("Expected 2 scrapers, got %d", len(scrapers))
	}
	if scrapers[0].Name() != "mta" || scrapers[1].Name() != "gothamist" {
		t.Errorf("Expected active feeds in order, got %s and %s", scrapers[0].Name(), scrapers[1].Name())
	}
}
