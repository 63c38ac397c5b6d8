package dedupe

import "citybrief/internal/core"

// AcceptFromSource reports whether a freshly scraped candidate should be
// persisted, given everything accepted from the same source in the trailing
// window. Upstream feeds routinely reissue the same event under a new
// external ID, so content identity is the dedup key plus the route-tag set;
// the tag comparison keeps same-titled alerts on different lines apart.
func AcceptFromSource(candidate core.ContentItem, sameSourceRecent []core.ContentItem) bool {
	for _, existing := range sameSourceRecent {
		if existing.Source != candidate.Source {
			continue
		}
		if existing.DedupKey == candidate.DedupKey && sameTagSet(existing.RouteTags, candidate.RouteTags) {
			return false
		}
	}
	return true
}

// sameTagSet compares route tags order-insensitively.
func sameTagSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[string]int, len(a))
	for _, t := range a {
		counts[t]++
	}
	for _, t := range b {
		counts[t]--
		if counts[t] < 0 {
			return false
		}
	}
	return true
}
