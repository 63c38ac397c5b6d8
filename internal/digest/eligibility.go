// Package digest composes and delivers the per-slot editions: it applies the
// per-user don't-repeat and send-eligibility rules to routed content, attempts
// the LLM-assisted enhanced layout with graceful fallback to the standard one,
// and fans sends out across recipients under a distributed run-lock.
package digest

import (
	"time"

	"citybrief/internal/config"
	"citybrief/internal/core"
)

// SkipReason says why a recipient did not get a digest for a slot.
type SkipReason string

const (
	SkipNone         SkipReason = ""
	SkipNoContent    SkipReason = "no_content"    // the slot routed nothing for this user's modules
	SkipNothingNew   SkipReason = "nothing_new"   // everything routed was already delivered today
	SkipBelowMinimum SkipReason = "below_minimum" // under the slot minimum with no Required item
	SkipFrequencyCap SkipReason = "frequency_cap" // per-tier daily digest cap reached
	SkipQuietHours   SkipReason = "quiet_hours"   // inside the recipient's quiet window
)

// Decision is the outcome of the send-eligibility check for one recipient.
type Decision struct {
	Send   bool
	Reason SkipReason
}

// Rules holds the send-eligibility knobs: quiet hours and the per-tier daily
// frequency caps.
type Rules struct {
	QuietStart      string // HH:MM local
	QuietEnd        string // HH:MM local
	FreeDailyCap    int
	PremiumDailyCap int
}

// DefaultRules returns the shipped eligibility rules.
func DefaultRules() Rules {
	return Rules{
		QuietStart:      "22:00",
		QuietEnd:        "07:00",
		FreeDailyCap:    2,
		PremiumDailyCap: 4,
	}
}

// RulesFromConfig builds the rules from the delivery config section.
func RulesFromConfig(cfg config.Delivery) Rules {
	r := DefaultRules()
	if cfg.QuietStart != "" {
		r.QuietStart = cfg.QuietStart
	}
	if cfg.QuietEnd != "" {
		r.QuietEnd = cfg.QuietEnd
	}
	if cfg.FreeDailyCap > 0 {
		r.FreeDailyCap = cfg.FreeDailyCap
	}
	if cfg.PremiumDailyCap > 0 {
		r.PremiumDailyCap = cfg.PremiumDailyCap
	}
	return r
}

// DailyCap returns the digest-per-day cap for a tier.
func (r Rules) DailyCap(tier core.Tier) int {
	if tier == core.TierPremium {
		return r.PremiumDailyCap
	}
	return r.FreeDailyCap
}

// InQuietHours reports whether the local wall-clock time falls inside the
// quiet window. The window may wrap midnight (the shipped 22:00-07:00 does);
// identical start and end disables it.
func (r Rules) InQuietHours(localNow time.Time) bool {
	start, err := time.Parse("15:04", r.QuietStart)
	if err != nil {
		return false
	}
	end, err := time.Parse("15:04", r.QuietEnd)
	if err != nil {
		return false
	}

	startMin := start.Hour()*60 + start.Minute()
	endMin := end.Hour()*60 + end.Minute()
	nowMin := localNow.Hour()*60 + localNow.Minute()

	if startMin == endMin {
		return false
	}
	if startMin < endMin {
		return nowMin >= startMin && nowMin < endMin
	}
	return nowMin >= startMin || nowMin < endMin
}

// Decide applies the send-eligibility rules to one recipient's filtered slot
// content. hasRequired must reflect the filtered set, not the whole placement:
// a Required item suppressed by the don't-repeat rule no longer overrides the
// slot minimum. force bypasses the minimum, the cap, and quiet hours, but
// never manufactures content.
func (r Rules) Decide(items []core.ContentItem, hasRequired bool, slotMin, sentToday int, tier core.Tier, localNow time.Time, force bool) Decision {
	if len(items) == 0 {
		return Decision{Reason: SkipNoContent}
	}
	if force {
		return Decision{Send: true}
	}

	nonBatchable := 0
	hasUrgent := false
	for _, item := range items {
		if item.UrgencyClass != core.UrgencyBatchable {
			nonBatchable++
		}
		if item.UrgencyClass == core.UrgencyUrgent {
			hasUrgent = true
		}
	}

	// Batchable items never trigger a send by themselves: the slot minimum
	// counts only non-batchable content, and a Required item overrides it.
	if nonBatchable < slotMin && !hasRequired {
		return Decision{Reason: SkipBelowMinimum}
	}
	if sentToday >= r.DailyCap(tier) {
		return Decision{Reason: SkipFrequencyCap}
	}
	if r.InQuietHours(localNow) && !hasUrgent {
		return Decision{Reason: SkipQuietHours}
	}
	return Decision{Send: true}
}

// VersionLookup returns the highest version of an item already delivered to
// the user today, or 0 when nothing was sent.
type VersionLookup func(userID, itemID string) (int, error)

// FilterForUser narrows routed items to one recipient: drops modules the user
// is not subscribed to, then applies the don't-repeat rule. An item delivered
// earlier today comes back only at a higher version with the escalation flag
// still set.
func FilterForUser(items []core.ContentItem, r core.Recipient, lastSent VersionLookup) ([]core.ContentItem, error) {
	kept := make([]core.ContentItem, 0, len(items))
	for _, item := range items {
		if !r.SubscribedTo(item.ModuleID) {
			continue
		}
		last, err := lastSent(r.ID, item.ID)
		if err != nil {
			return nil, err
		}
		if last == 0 {
			kept = append(kept, item)
			continue
		}
		if item.Version > last && item.StatusChanged {
			kept = append(kept, item)
		}
	}
	return kept, nil
}
