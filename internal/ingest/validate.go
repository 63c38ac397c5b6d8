// Package ingest turns raw scraped records into stored content items: it
// validates and normalizes each record, drops duplicates within and across
// sources, scores what survives, and upserts the result.
package ingest

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"citybrief/internal/core"
	"citybrief/internal/dedupe"

	"github.com/PuerkitoBio/goquery"
)

const maxTitleLength = 240

// RawRecord is what a source hands the pipeline before validation.
type RawRecord struct {
	Source      string
	ExternalID  string
	ContentType core.ContentType
	ModuleID    core.ModuleID // Optional; derived from the content type when empty
	Title       string
	Body        string
	URL         string
	RouteTags   []string
	PublishedAt time.Time // Zero means "first seen now"
	StartsAt    *time.Time
	EndsAt      *time.Time
}

// ValidationError describes why a record was rejected.
type ValidationError struct {
	Source string
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid record from %s: %s %s", e.Source, e.Field, e.Reason)
}

// defaultModules maps each content type to the module it belongs to when the
// source does not say.
var defaultModules = map[core.ContentType]core.ModuleID{
	core.TypeNews:            core.ModuleGeneral,
	core.TypeTransitAlert:    core.ModuleTransit,
	core.TypeParkingAlert:    core.ModuleParking,
	core.TypeParkingForecast: core.ModuleParking,
	core.TypeWeather:         core.ModuleGeneral,
	core.TypeEvent:           core.ModuleEvents,
	core.TypeHousing:         core.ModuleHousing,
	core.TypeSampleSale:      core.ModuleDeals,
	core.TypeTip:             core.ModuleGeneral,
}

// defaultUrgencies gives each content type its starting urgency class. The
// transit classifier can escalate an alert to urgent afterwards.
var defaultUrgencies = map[core.ContentType]core.UrgencyClass{
	core.TypeNews:            core.UrgencyEvergreen,
	core.TypeTransitAlert:    core.UrgencyTimeSensitive,
	core.TypeParkingAlert:    core.UrgencyTimeSensitive,
	core.TypeParkingForecast: core.UrgencyEvergreen,
	core.TypeWeather:         core.UrgencyTimeSensitive,
	core.TypeEvent:           core.UrgencyEvergreen,
	core.TypeHousing:         core.UrgencyBatchable,
	core.TypeSampleSale:      core.UrgencyEvergreen,
	core.TypeTip:             core.UrgencyBatchable,
}

// ValidateRecord normalizes a raw record into a content item ready for
// deduplication, or returns a ValidationError naming the offending field.
func ValidateRecord(r RawRecord, now time.Time) (core.ContentItem, error) {
	if strings.TrimSpace(r.Source) == "" {
		return core.ContentItem{}, ValidationError{Source: r.Source, Field: "source", Reason: "is required"}
	}
	if !r.ContentType.Valid() {
		return core.ContentItem{}, ValidationError{Source: r.Source, Field: "content_type", Reason: fmt.Sprintf("%q is unknown", string(r.ContentType))}
	}

	externalID := strings.TrimSpace(r.ExternalID)
	if externalID == "" {
		externalID = strings.TrimSpace(r.URL)
	}
	if externalID == "" {
		return core.ContentItem{}, ValidationError{Source: r.Source, Field: "external_id", Reason: "is required (no URL to fall back on)"}
	}

	title := StripHTML(r.Title)
	if utf8.RuneCountInString(title) < 3 {
		return core.ContentItem{}, ValidationError{Source: r.Source, Field: "title", Reason: "is too short"}
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		runes := []rune(title)
		title = string(runes[:maxTitleLength]) + "..."
	}

	moduleID := r.ModuleID
	if moduleID == "" {
		moduleID = defaultModules[r.ContentType]
	}
	if !moduleID.Valid() {
		return core.ContentItem{}, ValidationError{Source: r.Source, Field: "module_id", Reason: fmt.Sprintf("%q is unknown", string(moduleID))}
	}

	if r.StartsAt != nil && r.EndsAt != nil && r.EndsAt.Before(*r.StartsAt) {
		return core.ContentItem{}, ValidationError{Source: r.Source, Field: "ends_at", Reason: "is before starts_at"}
	}

	createdAt := r.PublishedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	item := core.ContentItem{
		Source:       r.Source,
		ExternalID:   externalID,
		ContentType:  r.ContentType,
		ModuleID:     moduleID,
		Title:        title,
		Body:         StripHTML(r.Body),
		URL:          strings.TrimSpace(r.URL),
		RouteTags:    r.RouteTags,
		UrgencyClass: defaultUrgencies[r.ContentType],
		Actionable:   true,
		CreatedAt:    createdAt.UTC(),
		StartsAt:     r.StartsAt,
		EndsAt:       r.EndsAt,
	}
	item.DedupKey = dedupe.GenerateKey(item.ContentType, item.Title)

	return item, nil
}

// StripHTML reduces feed HTML to whitespace-normalized plain text. Invalid
// markup falls back to the raw string; goquery tolerates most of it anyway.
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	doc.Find("script, style").Remove()

	return strings.Join(strings.Fields(doc.Text()), " ")
}
