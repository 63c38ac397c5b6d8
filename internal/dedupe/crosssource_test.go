package dedupe

import (
	"testing"
	"time"

	"citybrief/internal/core"
)

func newsItem(id, source, title string, createdAt time.Time) core.ContentItem {
	return core.ContentItem{
		ID:          id,
		Source:      source,
		ContentType: core.TypeNews,
		DedupKey:    GenerateKey(core.TypeNews, title),
		Title:       title,
		CreatedAt:   createdAt,
	}
}

func TestResolve_NoMatchAccepts(t *testing.T) {
	r := NewCrossSourceResolver(0.80, map[string]int{"gothamist": 2, "amny": 3})
	now := time.Now().UTC()

	incumbent := newsItem("1", "gothamist", "Sample sale opens in SoHo this weekend", now.Add(-2*time.Hour))
	candidate := newsItem("2", "amny", "Ferry schedule changes for Labor Day", now)

	v := r.Resolve(candidate, []core.ContentItem{incumbent})
	if !v.Accept {
		t.Error("Expected unrelated candidate to be accepted")
	}
	if v.DuplicateOf != "" || v.Displaces != "" {
		t.Errorf("Expected empty verdict references, got duplicateOf=%q displaces=%q", v.DuplicateOf, v.Displaces)
	}
}

func TestResolve_HigherTrustIncumbentWins(t *testing.T) {
	// Gothamist (tier 2) reported the signal problem first; amNY (tier 3)
	// files a reworded version of the same story.
	r := NewCrossSourceResolver(0.80, map[string]int{"gothamist": 2, "amny": 3})
	now := time.Now().UTC()

	gothamist := newsItem("1", "gothamist", "G train delays — signal problem", now.Add(-1*time.Hour))
	gothamist.PriorityScore = 70
	amny := newsItem("2", "amny", "G Train Service Disrupted by Signal Issue", now)
	amny.PriorityScore = 60

	v := r.Resolve(amny, []core.ContentItem{gothamist})
	if v.Accept {
		t.Error("Expected lower-trust duplicate to be rejected")
	}
	if v.DuplicateOf != "1" {
		t.Errorf("Expected duplicateOf to reference the Gothamist item, got %q", v.DuplicateOf)
	}
	if v.Similarity < 0.80 {
		t.Errorf("Expected matched similarity >= 0.80, got %f", v.Similarity)
	}
}

func TestResolve_HigherTrustCandidateDisplaces(t *testing.T) {
	r := NewCrossSourceResolver(0.80, map[string]int{"gothamist": 2, "amny": 3})
	now := time.Now().UTC()

	amny := newsItem("1", "amny", "Signal problem delays G train", now.Add(-1*time.Hour))
	gothamist := newsItem("2", "gothamist", "G train delays after signal problem", now)

	v := r.Resolve(gothamist, []core.ContentItem{amny})
	if !v.Accept {
		t.Error("Expected higher-trust candidate to be accepted")
	}
	if v.Displaces != "1" {
		t.Errorf("Expected candidate to displace the amNY item, got %q", v.Displaces)
	}
}

func TestResolve_ExactKeyMatch(t *testing.T) {
	r := NewCrossSourceResolver(0.80, map[string]int{"official": 1, "blog": 4})
	now := time.Now().UTC()

	official := newsItem("1", "official", "Alternate side parking suspended Monday", now.Add(-1*time.Hour))
	blog := newsItem("2", "blog", "Alternate Side Parking suspended Monday!", now)

	v := r.Resolve(blog, []core.ContentItem{official})
	if v.Accept {
		t.Error("Expected exact-key duplicate from lower-trust source to be rejected")
	}
	if v.Similarity != 1 {
		t.Errorf("Expected similarity 1 for exact key match, got %f", v.Similarity)
	}
}

func TestResolve_EqualTierEarlierCreatedAtWins(t *testing.T) {
	r := NewCrossSourceResolver(0.80, map[string]int{"gothamist": 2, "amny": 2})
	now := time.Now().UTC()

	earlier := newsItem("1", "gothamist", "G train delays after signal problem", now.Add(-2*time.Hour))
	later := newsItem("2", "amny", "Signal problem delays G train", now)

	v := r.Resolve(later, []core.ContentItem{earlier})
	if v.Accept {
		t.Error("Expected later equal-tier duplicate to lose to the earlier item")
	}

	// Backfilled candidate that predates the incumbent wins the tie.
	backfilled := newsItem("3", "amny", "Signal problem delays G train", now.Add(-3*time.Hour))
	v = r.Resolve(backfilled, []core.ContentItem{earlier})
	if !v.Accept {
		t.Error("Expected earlier equal-tier candidate to win the tie")
	}
	if v.Displaces != "1" {
		t.Errorf("Expected tie winner to displace the incumbent, got %q", v.Displaces)
	}
}

func TestResolve_DifferentTypesNeverMatch(t *testing.T) {
	r := NewCrossSourceResolver(0.80, map[string]int{"mta": 1, "gothamist": 2})
	now := time.Now().UTC()

	alert := core.ContentItem{
		ID:          "1",
		Source:      "mta",
		ContentType: core.TypeTransitAlert,
		DedupKey:    GenerateKey(core.TypeTransitAlert, "G train delays after signal problem"),
		Title:       "G train delays after signal problem",
		CreatedAt:   now.Add(-1 * time.Hour),
	}
	story := newsItem("2", "gothamist", "G train delays after signal problem", now)

	v := r.Resolve(story, []core.ContentItem{alert})
	if !v.Accept {
		t.Error("Expected cross-type pair to pass the cross-source stage untouched")
	}
}

func TestResolve_SupersededIncumbentIgnored(t *testing.T) {
	r := NewCrossSourceResolver(0.80, map[string]int{"gothamist": 2, "amny": 3})
	now := time.Now().UTC()

	incumbent := newsItem("1", "gothamist", "G train delays after signal problem", now.Add(-1*time.Hour))
	incumbent.Superseded = true
	candidate := newsItem("2", "amny", "Signal problem delays G train", now)

	v := r.Resolve(candidate, []core.ContentItem{incumbent})
	if !v.Accept {
		t.Error("Expected superseded incumbent to be skipped during matching")
	}
}

func TestResolve_UnknownSourceDefaultsToLowestTier(t *testing.T) {
	r := NewCrossSourceResolver(0.80, map[string]int{"gothamist": 2})
	now := time.Now().UTC()

	known := newsItem("1", "gothamist", "G train delays after signal problem", now.Add(-1*time.Hour))
	unknown := newsItem("2", "randomblog", "Signal problem delays G train", now)

	v := r.Resolve(unknown, []core.ContentItem{known})
	if v.Accept {
		t.Error("Expected unknown-source candidate to lose against a tiered incumbent")
	}
}
