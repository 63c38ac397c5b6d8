// Package sources adapts registered feeds into ingest scrapers. Every feed
// in the registry is RSS/Atom; the feed row carries the content type, module,
// and trust tier that its items inherit.
package sources

import (
	"context"
	"fmt"

	"citybrief/internal/core"
	"citybrief/internal/ingest"

	"github.com/mmcdole/gofeed"
)

// RSSSource fetches one registered feed.
type RSSSource struct {
	feed   core.Feed
	parser *gofeed.Parser
}

// NewRSSSource builds a scraper for one feed registration.
func NewRSSSource(feed core.Feed, userAgent string) *RSSSource {
	parser := gofeed.NewParser()
	if userAgent != "" {
		parser.UserAgent = userAgent
	}
	return &RSSSource{feed: feed, parser: parser}
}

// Name returns the registry name items from this source carry.
func (s *RSSSource) Name() string {
	return s.feed.Name
}

// Fetch parses the feed and maps its items to raw records.
func (s *RSSSource) Fetch(ctx context.Context) ([]ingest.RawRecord, error) {
	feed, err := s.parser.ParseURLWithContext(s.feed.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed %s: %w", s.feed.Name, err)
	}

	records := make([]ingest.RawRecord, 0, len(feed.Items))
	for _, item := range feed.Items {
		record := ingest.RawRecord{
			Source:      s.feed.Name,
			ExternalID:  item.GUID,
			ContentType: s.feed.ContentType,
			ModuleID:    s.feed.ModuleID,
			Title:       item.Title,
			Body:        itemBody(item),
			URL:         item.Link,
			RouteTags:   item.Categories,
		}
		if item.PublishedParsed != nil {
			record.PublishedAt = *item.PublishedParsed
		}
		records = append(records, record)
	}
	return records, nil
}

// itemBody prefers the short description over full content; digests only
// ever show an excerpt.
func itemBody(item *gofeed.Item) string {
	if item.Description != "" {
		return item.Description
	}
	return item.Content
}

// FromFeeds builds a scraper for every active feed in the registry.
func FromFeeds(feeds []core.Feed, userAgent string) []ingest.Scraper {
	scrapers := make([]ingest.Scraper, 0, len(feeds))
	for _, feed := range feeds {
		if !feed.Active {
			continue
		}
		scrapers = append(scrapers, NewRSSSource(feed, userAgent))
	}
	return scrapers
}
