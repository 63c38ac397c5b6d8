package slots

import (
	"sort"

	"citybrief/internal/core"
)

// Capacity bounds one slot's item count. Required items may push a slot past
// Max; everything else respects it.
type Capacity struct {
	Min int
	Max int
}

// Capacities holds the per-slot bounds.
type Capacities map[core.Slot]Capacity

// DefaultCapacities returns the shipped slot bounds.
func DefaultCapacities() Capacities {
	return Capacities{
		core.SlotMorning: {Min: 2, Max: 8},
		core.SlotMidday:  {Min: 3, Max: 6},
		core.SlotEvening: {Min: 2, Max: 10},
	}
}

// For looks up a slot's capacity, defaulting to the loosest shipped bounds.
func (c Capacities) For(s core.Slot) Capacity {
	if cap, ok := c[s]; ok {
		return cap
	}
	return Capacity{Min: 2, Max: 8}
}

// Placement is the routing outcome for one slot.
type Placement struct {
	Slot          core.Slot
	Included      []core.ContentItem // in placement order: required, preferred, allowed, fallback, batchable fill
	Deferred      []core.ContentItem // eligible but unplaced; the next slot's read picks them up
	ExcludedCount int
	HasRequired   bool
	RequiredIDs   map[string]bool // ids of the Required items, for per-user override checks
}

// NonBatchableCount returns how many included items count toward the slot
// minimum. Batchable items fill capacity but never justify a send on their
// own.
func (p *Placement) NonBatchableCount() int {
	n := 0
	for _, item := range p.Included {
		if item.UrgencyClass != core.UrgencyBatchable {
			n++
		}
	}
	return n
}

// HasUrgent reports whether any included item is in the urgent class.
func (p *Placement) HasUrgent() bool {
	for _, item := range p.Included {
		if item.UrgencyClass == core.UrgencyUrgent {
			return true
		}
	}
	return false
}

// Router assigns items to a slot per the eligibility matrix and capacities.
type Router struct {
	matrix Matrix
	caps   Capacities
}

func NewRouter(matrix Matrix, caps Capacities) *Router {
	return &Router{matrix: matrix, caps: caps}
}

// Route places items into the slot. Order of operations: all Required items
// unconditionally; Preferred up to max; Allowed by score to max; Fallback
// items only while the slot is under its minimum; batchable items last,
// filling whatever capacity is left. Unplaced non-excluded items are
// deferred, never dropped.
func (r *Router) Route(slot core.Slot, items []core.ContentItem) Placement {
	bounds := r.caps.For(slot)
	p := Placement{Slot: slot}

	var required, preferred, allowed, fallback []core.ContentItem
	var batchPreferred, batchAllowed, batchFallback []core.ContentItem

	for _, item := range items {
		elig := r.matrix.For(item.ContentType, slot)
		if elig == Excluded {
			p.ExcludedCount++
			continue
		}
		if elig == Required {
			required = append(required, item)
			continue
		}
		batch := item.UrgencyClass == core.UrgencyBatchable
		switch elig {
		case Preferred:
			if batch {
				batchPreferred = append(batchPreferred, item)
			} else {
				preferred = append(preferred, item)
			}
		case Allowed:
			if batch {
				batchAllowed = append(batchAllowed, item)
			} else {
				allowed = append(allowed, item)
			}
		case Fallback:
			if batch {
				batchFallback = append(batchFallback, item)
			} else {
				fallback = append(fallback, item)
			}
		}
	}

	for _, bucket := range [][]core.ContentItem{
		required, preferred, allowed, fallback,
		batchPreferred, batchAllowed, batchFallback,
	} {
		byScoreDesc(bucket)
	}

	p.Included = append(p.Included, required...)
	p.HasRequired = len(required) > 0
	if p.HasRequired {
		p.RequiredIDs = make(map[string]bool, len(required))
		for _, item := range required {
			p.RequiredIDs[item.ID] = true
		}
	}

	room := bounds.Max - len(p.Included)
	take := func(bucket []core.ContentItem) []core.ContentItem {
		taken := 0
		for _, item := range bucket {
			if room <= 0 {
				break
			}
			p.Included = append(p.Included, item)
			room--
			taken++
		}
		return bucket[taken:]
	}

	preferred = take(preferred)
	allowed = take(allowed)
	if p.NonBatchableCount() < bounds.Min {
		fallback = take(fallback)
	}

	// Batchable leftover fill. Fallback-class batchable items are still
	// gated on the slot being under its minimum.
	batchPreferred = take(batchPreferred)
	batchAllowed = take(batchAllowed)
	if p.NonBatchableCount() < bounds.Min {
		batchFallback = take(batchFallback)
	}

	for _, bucket := range [][]core.ContentItem{
		preferred, allowed, fallback,
		batchPreferred, batchAllowed, batchFallback,
	} {
		p.Deferred = append(p.Deferred, bucket...)
	}

	return p
}

func byScoreDesc(items []core.ContentItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].PriorityScore > items[j].PriorityScore
	})
}
