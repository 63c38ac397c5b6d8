// Package slots routes curated content items into the three daily delivery
// slots using a per-content-type eligibility matrix and per-slot capacity
// bounds.
package slots

import "citybrief/internal/core"

// Eligibility says how strongly a content type belongs in a slot.
type Eligibility int

const (
	Excluded  Eligibility = iota // never appears in this slot
	Fallback                     // pulled only when the slot is under its minimum
	Allowed                      // fills remaining capacity by score
	Preferred                    // placed before Allowed items
	Required                     // always included, ignores capacity
)

func (e Eligibility) String() string {
	switch e {
	case Excluded:
		return "excluded"
	case Fallback:
		return "fallback"
	case Allowed:
		return "allowed"
	case Preferred:
		return "preferred"
	case Required:
		return "required"
	default:
		return "unknown"
	}
}

// Matrix maps content type and slot to an eligibility level.
type Matrix map[core.ContentType]map[core.Slot]Eligibility

// DefaultMatrix returns the shipped eligibility matrix. Morning anchors the
// day (weather, today's parking); evening anchors tomorrow (parking
// forecast); midday leans editorial (news, sales).
func DefaultMatrix() Matrix {
	return Matrix{
		core.TypeWeather: {
			core.SlotMorning: Required,
			core.SlotMidday:  Excluded,
			core.SlotEvening: Excluded,
		},
		core.TypeParkingAlert: {
			core.SlotMorning: Required,
			core.SlotMidday:  Allowed,
			core.SlotEvening: Allowed,
		},
		core.TypeParkingForecast: {
			core.SlotMorning: Excluded,
			core.SlotMidday:  Excluded,
			core.SlotEvening: Required,
		},
		core.TypeTransitAlert: {
			core.SlotMorning: Preferred,
			core.SlotMidday:  Allowed,
			core.SlotEvening: Preferred,
		},
		core.TypeNews: {
			core.SlotMorning: Allowed,
			core.SlotMidday:  Preferred,
			core.SlotEvening: Allowed,
		},
		core.TypeEvent: {
			core.SlotMorning: Allowed,
			core.SlotMidday:  Allowed,
			core.SlotEvening: Preferred,
		},
		core.TypeSampleSale: {
			core.SlotMorning: Fallback,
			core.SlotMidday:  Preferred,
			core.SlotEvening: Allowed,
		},
		core.TypeHousing: {
			core.SlotMorning: Fallback,
			core.SlotMidday:  Allowed,
			core.SlotEvening: Allowed,
		},
		core.TypeTip: {
			core.SlotMorning: Fallback,
			core.SlotMidday:  Fallback,
			core.SlotEvening: Fallback,
		},
	}
}

// For looks up the eligibility of a content type in a slot. Types the matrix
// does not know get the neutral Allowed so new content is not silently
// dropped.
func (m Matrix) For(t core.ContentType, s core.Slot) Eligibility {
	row, ok := m[t]
	if !ok {
		return Allowed
	}
	e, ok := row[s]
	if !ok {
		return Allowed
	}
	return e
}
