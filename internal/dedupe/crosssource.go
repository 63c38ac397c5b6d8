package dedupe

import "citybrief/internal/core"

// Verdict is the outcome of the cross-source pass for one candidate.
type Verdict struct {
	Accept      bool    // persist the candidate
	DuplicateOf string  // incumbent ID the candidate duplicates, when rejected
	Displaces   string  // incumbent ID the candidate supersedes, when accepted over a match
	Similarity  float64 // similarity of the matched pair; 1 for exact key hits
}

// CrossSourceResolver decides whether a candidate duplicates content already
// accepted from a different source: the same underlying event reported by
// two outlets. A match is an exact dedup key or title similarity at or above
// Threshold. Comparison stays within one content type; collisions across
// types are resolved at digest assembly.
type CrossSourceResolver struct {
	Threshold float64
	Tiers     map[string]int // source name -> trust tier, 1 (best) to 4
}

func NewCrossSourceResolver(threshold float64, tiers map[string]int) *CrossSourceResolver {
	return &CrossSourceResolver{Threshold: threshold, Tiers: tiers}
}

// Resolve scans items from other sources (callers pass the trailing window)
// and returns the verdict for the candidate. On a match the higher trust
// tier wins; on equal tiers the earlier CreatedAt wins. The first matching
// incumbent decides.
func (r *CrossSourceResolver) Resolve(candidate core.ContentItem, otherSourceRecent []core.ContentItem) Verdict {
	for _, other := range otherSourceRecent {
		if other.Source == candidate.Source || other.ContentType != candidate.ContentType {
			continue
		}
		if other.Superseded {
			continue
		}
		sim, matched := r.match(candidate, other)
		if !matched {
			continue
		}
		if r.candidateWins(candidate, other) {
			return Verdict{Accept: true, Displaces: other.ID, Similarity: sim}
		}
		return Verdict{Accept: false, DuplicateOf: other.ID, Similarity: sim}
	}
	return Verdict{Accept: true}
}

func (r *CrossSourceResolver) match(a, b core.ContentItem) (float64, bool) {
	if a.DedupKey != "" && a.DedupKey == b.DedupKey {
		return 1, true
	}
	sim := Similarity(a.Title, b.Title)
	return sim, sim >= r.Threshold
}

func (r *CrossSourceResolver) candidateWins(candidate, incumbent core.ContentItem) bool {
	ct, it := r.tier(candidate.Source), r.tier(incumbent.Source)
	if ct != it {
		return ct < it
	}
	return candidate.CreatedAt.Before(incumbent.CreatedAt)
}

// tier looks up a source's trust tier, defaulting to the least trusted.
func (r *CrossSourceResolver) tier(source string) int {
	if t, ok := r.Tiers[source]; ok && t >= 1 && t <= 4 {
		return t
	}
	return 4
}
