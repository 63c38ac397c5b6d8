package dedupe

import (
	"sort"

	"citybrief/internal/core"
)

// typeRank fixes the priority order for the cross-type collapse:
// news > alerts > events > sample sales > everything else.
func typeRank(t core.ContentType) int {
	switch t {
	case core.TypeNews:
		return 0
	case core.TypeTransitAlert, core.TypeParkingAlert, core.TypeParkingForecast, core.TypeWeather:
		return 1
	case core.TypeEvent:
		return 2
	case core.TypeSampleSale:
		return 3
	default:
		return 4
	}
}

// CollapseAcrossTypes runs the digest-assembly dedup pass over the union of
// surviving items across all content types. Items are visited in fixed type
// priority order, higher score first within a rank; the first item seen for
// a normalized title wins and later ones drop. This closes the gap the
// type-prefixed dedup key leaves open: a news article and an alert that
// describe the same underlying event.
func CollapseAcrossTypes(items []core.ContentItem) []core.ContentItem {
	ordered := make([]core.ContentItem, len(items))
	copy(ordered, items)
	sort.SliceStable(ordered, func(i, j int) bool {
		ri, rj := typeRank(ordered[i].ContentType), typeRank(ordered[j].ContentType)
		if ri != rj {
			return ri < rj
		}
		return ordered[i].PriorityScore > ordered[j].PriorityScore
	})

	seen := make(map[string]struct{}, len(ordered))
	kept := make([]core.ContentItem, 0, len(ordered))
	for _, item := range ordered {
		key := TitleKey(item.Title)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, item)
	}
	return kept
}
