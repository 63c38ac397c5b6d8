// Package relevance assigns every content item a numeric priority and, for
// transit content, a severity class. Scoring runs at digest-assembly read
// time; the tables are built once at process start and passed in explicitly
// so tests can override them.
package relevance

import (
	"strings"

	"citybrief/internal/core"
)

// ScoringTables holds the trust-tier bases and keyword signal lists the
// scorer works from.
type ScoringTables struct {
	TierBase      map[int]int                // trust tier (1-4) -> base score
	ModuleBoosts  map[core.ModuleID][]string // per-module keywords that lift the score
	BoostPerHit   int
	BoostCap      int
	OffTopic      []string // keywords that drag the score down
	PenaltyPerHit int
	PenaltyCap    int
}

// DefaultScoringTables returns the shipped scoring configuration.
func DefaultScoringTables() ScoringTables {
	return ScoringTables{
		TierBase: map[int]int{1: 80, 2: 70, 3: 60, 4: 40},
		ModuleBoosts: map[core.ModuleID][]string{
			core.ModuleTransit: {
				"suspended", "no service", "delays", "rerouted", "signal problem",
				"service change", "shuttle bus", "bypass",
			},
			core.ModuleParking: {
				"alternate side", "asp", "suspended", "meters", "street cleaning",
				"tow", "holiday schedule",
			},
			core.ModuleEvents: {
				"free", "this weekend", "open streets", "festival", "outdoor",
				"last chance", "tonight",
			},
			core.ModuleHousing: {
				"lottery", "affordable", "application deadline", "income-restricted",
				"below market",
			},
			core.ModuleFood: {
				"opening", "new location", "pop-up", "restaurant week", "happy hour",
			},
			core.ModuleDeals: {
				"sample sale", "up to", "percent off", "clearance", "warehouse sale",
				"final days",
			},
			core.ModuleGeneral: {
				"breaking", "citywide", "mayor", "mta", "rent", "subway", "heat advisory",
				"air quality",
			},
		},
		BoostPerHit: 4,
		BoostCap:    12,
		OffTopic: []string{
			"sponsored", "advertisement", "horoscope", "celebrity", "viral",
			"you won't believe", "quiz", "listicle",
		},
		PenaltyPerHit: 5,
		PenaltyCap:    15,
	}
}

// Scorer computes the 0-100 priority score for an item.
type Scorer struct {
	tables ScoringTables
}

func NewScorer(tables ScoringTables) *Scorer {
	return &Scorer{tables: tables}
}

// Score combines the source trust tier's base score with keyword signals
// from the item's title and body, clamped to 0-100. Transit severity
// adjustments are applied separately by the classifier.
func (s *Scorer) Score(item core.ContentItem, trustTier int) int {
	base, ok := s.tables.TierBase[trustTier]
	if !ok {
		base = s.tables.TierBase[4]
	}

	text := strings.ToLower(item.Title + " " + item.Body)

	boost := 0
	for _, kw := range s.tables.ModuleBoosts[item.ModuleID] {
		if strings.Contains(text, kw) {
			boost += s.tables.BoostPerHit
		}
	}
	if boost > s.tables.BoostCap {
		boost = s.tables.BoostCap
	}

	penalty := 0
	for _, kw := range s.tables.OffTopic {
		if strings.Contains(text, kw) {
			penalty += s.tables.PenaltyPerHit
		}
	}
	if penalty > s.tables.PenaltyCap {
		penalty = s.tables.PenaltyCap
	}

	return clampScore(base + boost - penalty)
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
