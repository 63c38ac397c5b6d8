// Package render assembles routed items into a digest document: subject
// line, ordered per-module sections, and a plain-text body. The email
// package turns the same document into HTML.
package render

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"citybrief/internal/core"
	"citybrief/internal/llm"
)

const maxSubjectLength = 78

// Section is one module's block in a digest.
type Section struct {
	Module core.ModuleID
	Title  string
	Lead   string // Enhanced digests only
	Items  []core.ContentItem
}

// Digest is a fully assembled edition for one recipient-facing send.
type Digest struct {
	Slot         core.Slot
	Mode         core.DigestMode
	Date         string
	Subject      string
	Overview     string // Enhanced digests only
	Sections     []Section
	LookingAhead string // Enhanced digests only
}

var moduleTitles = map[core.ModuleID]string{
	core.ModuleParking: "Parking",
	core.ModuleTransit: "Transit",
	core.ModuleEvents:  "Events",
	core.ModuleHousing: "Housing",
	core.ModuleFood:    "Food",
	core.ModuleDeals:   "Deals",
	core.ModuleGeneral: "Around the City",
}

var slotTitles = map[core.Slot]string{
	core.SlotMorning: "Morning",
	core.SlotMidday:  "Midday",
	core.SlotEvening: "Evening",
}

// ModuleTitle returns the display name for a module.
func ModuleTitle(id core.ModuleID) string {
	if title, ok := moduleTitles[id]; ok {
		return title
	}
	return string(id)
}

// SlotTitle returns the display name for a slot.
func SlotTitle(slot core.Slot) string {
	if title, ok := slotTitles[slot]; ok {
		return title
	}
	return string(slot)
}

// BuildStandard assembles the deterministic digest layout: sections appear
// in order of their strongest item, items within a section by score.
func BuildStandard(slot core.Slot, items []core.ContentItem, now time.Time, loc *time.Location) Digest {
	digest := Digest{
		Slot: slot,
		Mode: core.ModeStandard,
		Date: now.In(loc).Format("Monday, January 2"),
	}

	sorted := byScore(items)

	index := make(map[core.ModuleID]int)
	for _, item := range sorted {
		i, ok := index[item.ModuleID]
		if !ok {
			i = len(digest.Sections)
			index[item.ModuleID] = i
			digest.Sections = append(digest.Sections, Section{
				Module: item.ModuleID,
				Title:  ModuleTitle(item.ModuleID),
			})
		}
		digest.Sections[i].Items = append(digest.Sections[i].Items, item)
	}

	digest.Subject = standardSubject(slot, sorted)
	return digest
}

// BuildEnhanced assembles a digest from a validated plan. Routed items the
// plan left out are appended to their module's section rather than dropped.
func BuildEnhanced(slot core.Slot, items []core.ContentItem, plan *llm.DigestPlan, now time.Time, loc *time.Location) Digest {
	digest := Digest{
		Slot:         slot,
		Mode:         core.ModeEnhanced,
		Date:         now.In(loc).Format("Monday, January 2"),
		Subject:      truncate(strings.TrimSpace(plan.Subject), maxSubjectLength),
		Overview:     strings.TrimSpace(plan.Overview),
		LookingAhead: strings.TrimSpace(plan.LookingAhead),
	}

	byID := make(map[string]core.ContentItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	used := make(map[string]bool)
	for _, planSection := range plan.Sections {
		section := Section{Lead: strings.TrimSpace(planSection.Lead)}
		for _, id := range planSection.ItemIDs {
			item, ok := byID[id]
			if !ok || used[id] {
				continue
			}
			used[id] = true
			section.Items = append(section.Items, item)
		}
		if len(section.Items) == 0 {
			continue
		}

		moduleID := core.ModuleID(strings.ToLower(strings.TrimSpace(planSection.Module)))
		if !moduleID.Valid() {
			moduleID = section.Items[0].ModuleID
		}
		section.Module = moduleID
		section.Title = ModuleTitle(moduleID)
		digest.Sections = append(digest.Sections, section)
	}

	for _, item := range byScore(items) {
		if used[item.ID] {
			continue
		}
		placed := false
		for i := range digest.Sections {
			if digest.Sections[i].Module == item.ModuleID {
				digest.Sections[i].Items = append(digest.Sections[i].Items, item)
				placed = true
				break
			}
		}
		if !placed {
			digest.Sections = append(digest.Sections, Section{
				Module: item.ModuleID,
				Title:  ModuleTitle(item.ModuleID),
				Items:  []core.ContentItem{item},
			})
		}
	}

	return digest
}

// ItemCount returns the number of items across all sections.
func (d Digest) ItemCount() int {
	count := 0
	for _, section := range d.Sections {
		count += len(section.Items)
	}
	return count
}

// AllItems returns every item in display order.
func (d Digest) AllItems() []core.ContentItem {
	items := make([]core.ContentItem, 0, d.ItemCount())
	for _, section := range d.Sections {
		items = append(items, section.Items...)
	}
	return items
}

// Text renders the plain-text alternative body.
func (d Digest) Text() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("CityBrief — %s Edition\n%s\n\n", SlotTitle(d.Slot), d.Date))

	if d.Overview != "" {
		b.WriteString(d.Overview)
		b.WriteString("\n\n")
	}

	for _, section := range d.Sections {
		b.WriteString(fmt.Sprintf("== %s ==\n", section.Title))
		if section.Lead != "" {
			b.WriteString(section.Lead)
			b.WriteString("\n")
		}
		for _, item := range section.Items {
			b.WriteString(fmt.Sprintf("* %s\n", item.Title))
			if body := truncate(item.Body, 200); body != "" {
				b.WriteString(fmt.Sprintf("  %s\n", body))
			}
			if item.URL != "" {
				b.WriteString(fmt.Sprintf("  %s\n", item.URL))
			}
		}
		b.WriteString("\n")
	}

	if d.LookingAhead != "" {
		b.WriteString(fmt.Sprintf("Looking ahead: %s\n\n", d.LookingAhead))
	}

	b.WriteString("You're receiving CityBrief because you subscribed. Reply STOP to unsubscribe.\n")
	return b.String()
}

// UrgentSubject builds the subject line for an out-of-band urgent send.
func UrgentSubject(items []core.ContentItem) string {
	sorted := byScore(items)
	if len(sorted) == 0 {
		return "CityBrief urgent alert"
	}
	return truncate(fmt.Sprintf("Urgent: %s", sorted[0].Title), maxSubjectLength)
}

func standardSubject(slot core.Slot, sorted []core.ContentItem) string {
	if len(sorted) == 0 {
		return fmt.Sprintf("CityBrief %s edition", strings.ToLower(SlotTitle(slot)))
	}
	return truncate(fmt.Sprintf("%s brief: %s", SlotTitle(slot), sorted[0].Title), maxSubjectLength)
}

func byScore(items []core.ContentItem) []core.ContentItem {
	sorted := make([]core.ContentItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PriorityScore > sorted[j].PriorityScore
	})
	return sorted
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
