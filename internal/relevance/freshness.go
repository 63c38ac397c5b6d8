package relevance

import (
	"time"

	"citybrief/internal/core"
)

// FreshnessWindows holds the maximum age per urgency class.
type FreshnessWindows struct {
	Urgent        time.Duration
	TimeSensitive time.Duration
	Evergreen     time.Duration
	Batchable     time.Duration
}

// DefaultFreshnessWindows returns the shipped windows.
func DefaultFreshnessWindows() FreshnessWindows {
	return FreshnessWindows{
		Urgent:        1 * time.Hour,
		TimeSensitive: 6 * time.Hour,
		Evergreen:     24 * time.Hour,
		Batchable:     72 * time.Hour,
	}
}

// Window returns the freshness window for an urgency class. Unknown classes
// get the tightest window rather than the loosest.
func (w FreshnessWindows) Window(class core.UrgencyClass) time.Duration {
	switch class {
	case core.UrgencyUrgent:
		return w.Urgent
	case core.UrgencyTimeSensitive:
		return w.TimeSensitive
	case core.UrgencyEvergreen:
		return w.Evergreen
	case core.UrgencyBatchable:
		return w.Batchable
	default:
		return w.Urgent
	}
}

// IsFresh reports whether the item's age is within its urgency class window.
// Age exactly equal to the window still counts as fresh; one instant past is
// stale. Stale items are skipped, never deferred.
func IsFresh(item core.ContentItem, now time.Time, windows FreshnessWindows) bool {
	return item.Age(now) <= windows.Window(item.UrgencyClass)
}

// IsRoutable combines the read-time exclusion rules: expired items are out
// regardless of class or score, non-actionable items are out regardless of
// score, and stale items are out.
func IsRoutable(item core.ContentItem, now time.Time, windows FreshnessWindows) bool {
	if item.Expired(now) {
		return false
	}
	if !item.Actionable {
		return false
	}
	return IsFresh(item, now, windows)
}
