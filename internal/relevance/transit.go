package relevance

import (
	"strings"

	"citybrief/internal/core"
)

// TransitTables holds the pattern sets for transit alert classification.
type TransitTables struct {
	OutagePatterns   []string // severity: outage
	MajorPatterns    []string // severity: major
	SuppressPatterns []string // force non-actionable, independent of score
	OutageBoost      int
	MajorBoost       int
	MinorPenalty     int
}

// DefaultTransitTables returns the shipped transit classification patterns.
func DefaultTransitTables() TransitTables {
	return TransitTables{
		OutagePatterns: []string{
			"suspended", "no service", "not running", "service has been halted",
			"trains are not stopping",
		},
		MajorPatterns: []string{
			"significant delays", "rerouted", "major delays", "running with delays",
			"skipping stops", "part suspended", "shuttle bus",
		},
		SuppressPatterns: []string{
			// Accessibility equipment outages are real but not digest material.
			"elevator", "escalator",
			// Sub-10-minute delay notices are noise at digest cadence.
			"delays under 10 minutes", "delays of under 10 minutes",
			"delays of less than 10 minutes", "expect delays under 10 minutes",
			// Boarding-instruction boilerplate attached to otherwise-normal service.
			"board the first open door", "board at the front", "board at the rear",
			"listen for announcements",
		},
		OutageBoost:  15,
		MajorBoost:   8,
		MinorPenalty: 10,
	}
}

// TransitClassification is the classifier's verdict for one transit item.
type TransitClassification struct {
	Severity   core.Severity
	Score      int  // base score with the severity adjustment applied
	Actionable bool // false excludes the item from all routing
	Urgency    core.UrgencyClass
}

// ClassifyTransitAlert derives severity, the adjusted score, and
// actionability for a transit item. Suppression patterns win over
// everything: an elevator outage stays non-actionable no matter how its
// keywords score. Outages escalate urgency to urgent.
func ClassifyTransitAlert(item core.ContentItem, baseScore int, tables TransitTables) TransitClassification {
	text := strings.ToLower(item.Title + " " + item.Body)

	for _, p := range tables.SuppressPatterns {
		if strings.Contains(text, p) {
			return TransitClassification{
				Severity:   core.SeverityMinor,
				Score:      clampScore(baseScore - tables.MinorPenalty),
				Actionable: false,
				Urgency:    item.UrgencyClass,
			}
		}
	}

	for _, p := range tables.OutagePatterns {
		if strings.Contains(text, p) {
			return TransitClassification{
				Severity:   core.SeverityOutage,
				Score:      clampScore(baseScore + tables.OutageBoost),
				Actionable: true,
				Urgency:    core.UrgencyUrgent,
			}
		}
	}

	for _, p := range tables.MajorPatterns {
		if strings.Contains(text, p) {
			return TransitClassification{
				Severity:   core.SeverityMajor,
				Score:      clampScore(baseScore + tables.MajorBoost),
				Actionable: true,
				Urgency:    item.UrgencyClass,
			}
		}
	}

	return TransitClassification{
		Severity:   core.SeverityMinor,
		Score:      clampScore(baseScore - tables.MinorPenalty),
		Actionable: true,
		Urgency:    item.UrgencyClass,
	}
}
