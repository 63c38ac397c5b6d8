package ingest

import (
	"context"
	"time"

	"citybrief/internal/config"
	"citybrief/internal/core"
	"citybrief/internal/dedupe"
	"citybrief/internal/logger"
	"citybrief/internal/relevance"
	"citybrief/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Scraper fetches raw records from one registered source.
type Scraper interface {
	Name() string
	Fetch(ctx context.Context) ([]RawRecord, error)
}

// SourceResult is one source's accounting for a run.
type SourceResult struct {
	Source     string
	Fetched    int
	Accepted   int      // New items stored
	Updated    int      // Existing items with a material change
	Rejected   int      // Failed validation
	Duplicates int      // Dropped by same-source or cross-source dedup
	Invalid    []string // Validation failures, one message per rejected record
	Err        error
}

// Report summarizes one ingest run.
type Report struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration
	Sources   []SourceResult
	Err       error
}

// Total aggregates the per-source counts.
func (r Report) Total() SourceResult {
	total := SourceResult{Source: "total"}
	for _, s := range r.Sources {
		total.Fetched += s.Fetched
		total.Accepted += s.Accepted
		total.Updated += s.Updated
		total.Rejected += s.Rejected
		total.Duplicates += s.Duplicates
		total.Invalid = append(total.Invalid, s.Invalid...)
	}
	return total
}

// Pipeline runs scraped records through validation, dedup, and scoring into
// the store.
type Pipeline struct {
	store         *store.Store
	scorer        *relevance.Scorer
	transitTables relevance.TransitTables
	threshold     float64
	ingestWindow  time.Duration
	crossWindow   time.Duration
	fetchTimeout  time.Duration
	maxPerFeed    int
	log           zerolog.Logger
}

// NewPipeline builds a pipeline with the engine tables tuned from config.
func NewPipeline(st *store.Store, engine config.Engine, ing config.Ingest) *Pipeline {
	tables := relevance.DefaultScoringTables()
	tables.TierBase = map[int]int{
		1: engine.Scoring.Tier1Base,
		2: engine.Scoring.Tier2Base,
		3: engine.Scoring.Tier3Base,
		4: engine.Scoring.Tier4Base,
	}

	transit := relevance.DefaultTransitTables()
	transit.OutageBoost = engine.Scoring.OutageBoost
	transit.MajorBoost = engine.Scoring.MajorBoost
	transit.MinorPenalty = engine.Scoring.MinorPenalty

	maxPerFeed := ing.MaxItemsPerFeed
	if maxPerFeed <= 0 {
		maxPerFeed = 50
	}

	return &Pipeline{
		store:         st,
		scorer:        relevance.NewScorer(tables),
		transitTables: transit,
		threshold:     engine.Dedup.SimilarityThreshold,
		ingestWindow:  engine.Dedup.IngestWindowDuration(),
		crossWindow:   engine.Dedup.CrossSourceWindowDuration(),
		fetchTimeout:  ing.TimeoutDuration(),
		maxPerFeed:    maxPerFeed,
		log:           logger.With("ingest"),
	}
}

// Run ingests every scraper in order and reports per-source counts.
func (p *Pipeline) Run(ctx context.Context, scrapers []Scraper) Report {
	report := Report{
		RunID:     uuid.New().String(),
		StartedAt: time.Now(),
	}
	log := p.log.With().Str("run_id", report.RunID).Logger()

	tiers, err := p.store.TrustTiers()
	if err != nil {
		report.Err = err
		log.Error().Err(err).Msg("failed to load trust tiers, aborting run")
		return report
	}

	for _, scraper := range scrapers {
		if ctx.Err() != nil {
			report.Err = ctx.Err()
			break
		}

		result := p.ingestSource(ctx, scraper, tiers)
		report.Sources = append(report.Sources, result)

		event := log.Info()
		if result.Err != nil {
			event = log.Warn().Err(result.Err)
		}
		event.
			Str("source", result.Source).
			Int("fetched", result.Fetched).
			Int("accepted", result.Accepted).
			Int("updated", result.Updated).
			Int("rejected", result.Rejected).
			Int("duplicates", result.Duplicates).
			Msg("source ingested")
	}

	report.Duration = time.Since(report.StartedAt)
	total := report.Total()
	log.Info().
		Int("sources", len(report.Sources)).
		Int("accepted", total.Accepted).
		Int("updated", total.Updated).
		Dur("elapsed", report.Duration).
		Msg("ingest run complete")

	return report
}

func (p *Pipeline) ingestSource(ctx context.Context, scraper Scraper, tiers map[string]int) SourceResult {
	result := SourceResult{Source: scraper.Name()}

	fetchCtx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	records, err := scraper.Fetch(fetchCtx)
	cancel()
	if err != nil {
		result.Err = err
		return result
	}

	if len(records) > p.maxPerFeed {
		records = records[:p.maxPerFeed]
	}
	result.Fetched = len(records)

	resolver := dedupe.NewCrossSourceResolver(p.threshold, tiers)
	now := time.Now()

	for _, raw := range records {
		item, err := ValidateRecord(raw, now)
		if err != nil {
			result.Rejected++
			result.Invalid = append(result.Invalid, err.Error())
			p.log.Debug().Err(err).Str("source", result.Source).Msg("record rejected")
			continue
		}

		recent, err := p.store.FindRecent(item.ContentType, now.Add(-p.crossWindow))
		if err != nil {
			result.Err = err
			break
		}

		// A re-scrape of the same external ID must reach the upsert, so the
		// stored copy of this record never counts as its own duplicate.
		others := withoutSelf(recent, item)

		if !dedupe.AcceptFromSource(item, inWindow(others, now.Add(-p.ingestWindow))) {
			result.Duplicates++
			p.log.Debug().Str("source", result.Source).Str("dedup_key", item.DedupKey).Msg("same-source duplicate dropped")
			continue
		}

		verdict := resolver.Resolve(item, others)
		if !verdict.Accept {
			result.Duplicates++
			p.log.Debug().
				Str("source", result.Source).
				Str("duplicate_of", verdict.DuplicateOf).
				Float64("similarity", verdict.Similarity).
				Msg("cross-source duplicate dropped")
			continue
		}

		item.PriorityScore = p.scorer.Score(item, tiers[item.Source])
		if item.ContentType == core.TypeTransitAlert {
			cls := relevance.ClassifyTransitAlert(item, item.PriorityScore, p.transitTables)
			item.Severity = cls.Severity
			item.PriorityScore = cls.Score
			item.Actionable = cls.Actionable
			item.UrgencyClass = cls.Urgency
		}

		stored, changed, err := p.store.UpsertByExternalID(item)
		if err != nil {
			result.Err = err
			break
		}
		if changed {
			if stored.Version == 1 {
				result.Accepted++
			} else {
				result.Updated++
			}
		}

		if verdict.Displaces != "" {
			if err := p.store.SupersedeItem(verdict.Displaces); err != nil {
				result.Err = err
				break
			}
			p.log.Debug().
				Str("kept", stored.ID).
				Str("superseded", verdict.Displaces).
				Msg("lower-trust duplicate superseded")
		}
	}

	return result
}

func withoutSelf(items []core.ContentItem, candidate core.ContentItem) []core.ContentItem {
	kept := make([]core.ContentItem, 0, len(items))
	for _, item := range items {
		if item.Source == candidate.Source && item.ExternalID == candidate.ExternalID {
			continue
		}
		kept = append(kept, item)
	}
	return kept
}

func inWindow(items []core.ContentItem, cutoff time.Time) []core.ContentItem {
	kept := make([]core.ContentItem, 0, len(items))
	for _, item := range items {
		if item.CreatedAt.Before(cutoff) {
			continue
		}
		kept = append(kept, item)
	}
	return kept
}
