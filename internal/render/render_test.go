package render

import (
	"strings"
	"testing"
	"time"

	"citybrief/internal/core"
	"citybrief/internal/llm"
)

var testTime = time.Date(2026, 8, 24, 7, 0, 0, 0, time.UTC)

func renderItems() []core.ContentItem {
	return []core.ContentItem{
		{ID: "t1", ModuleID: core.ModuleTransit, Title: "G train suspended", Body: "No service in both directions.", URL: "https://mta.test/1", PriorityScore: 95},
		{ID: "p1", ModuleID: core.ModuleParking, Title: "ASP suspended today", Body: "No need to move the car.", PriorityScore: 88},
		{ID: "t2", ModuleID: core.ModuleTransit, Title: "L train delays", PriorityScore: 60},
		{ID: "g1", ModuleID: core.ModuleGeneral, Title: "Heat advisory through Tuesday", PriorityScore: 72},
	}
}

func TestBuildStandard(t *testing.T) {
	digest := BuildStandard(core.SlotMorning, renderItems(), testTime, time.UTC)

	if digest.Mode != core.ModeStandard {
		t.Errorf("Expected standard mode, got %s", digest.Mode)
	}
	if digest.Date != "Monday, August 24" {
		t.Errorf("Unexpected date %q", digest.Date)
	}
	if len(digest.Sections) != 3 {
		t.Fatalf("Expected 3 sections, got %d", len(digest.Sections))
	}

	// Sections ordered by their strongest item
	if digest.Sections[0].Module != core.ModuleTransit {
		t.Errorf("Expected transit first, got %s", digest.Sections[0].Module)
	}
	if digest.Sections[1].Module != core.ModuleParking {
		t.Errorf("Expected parking second, got %s", digest.Sections[1].Module)
	}
	if digest.Sections[2].Module != core.ModuleGeneral {
		t.Errorf("Expected general third, got %s", digest.Sections[2].Module)
	}

	// Items within a section by score
	transit := digest.Sections[0]
	if len(transit.Items) != 2 || transit.Items[0].ID != "t1" || transit.Items[1].ID != "t2" {
		t.Errorf("Expected transit items ordered by score, got %+v", transit.Items)
	}

	if digest.Subject != "Morning brief: G train suspended" {
		t.Errorf("Unexpected subject %q", digest.Subject)
	}
	if digest.ItemCount() != 4 {
		t.Errorf("Expected 4 items, got %d", digest.ItemCount())
	}
}

func TestBuildStandard_Empty(t *testing.T) {
	digest := BuildStandard(core.SlotEvening, nil, testTime, time.UTC)
	if len(digest.Sections) != 0 {
		t.Errorf("Expected no sections, got %d", len(digest.Sections))
	}
	if digest.Subject != "CityBrief evening edition" {
		t.Errorf("Unexpected empty-slot subject %q", digest.Subject)
	}
}

func TestBuildStandard_SubjectTruncation(t *testing.T) {
	items := []core.ContentItem{{
		ID: "t1", ModuleID: core.ModuleTransit, PriorityScore: 90,
		Title: strings.Repeat("very long alert text ", 10),
	}}
	digest := BuildStandard(core.SlotMorning, items, testTime, time.UTC)
	if len([]rune(digest.Subject)) > maxSubjectLength {
		t.Errorf("Expected subject capped at %d runes, got %d", maxSubjectLength, len([]rune(digest.Subject)))
	}
	if !strings.HasSuffix(digest.Subject, "...") {
		t.Error("Expected truncated subject to end with ellipsis")
	}
}

func TestBuildEnhanced(t *testing.T) {
	items := renderItems()
	plan := &llm.DigestPlan{
		Subject:  "G train out; skip moving the car",
		Overview: "The G is suspended and ASP is off.",
		Sections: []llm.PlanSection{
			{Module: "transit", Lead: "The G is out, the L is slow.", ItemIDs: []string{"t1", "t2"}},
			{Module: "parking", Lead: "ASP is suspended.", ItemIDs: []string{"p1"}},
		},
		LookingAhead: "Heat sticks around through Tuesday.",
	}

	digest := BuildEnhanced(core.SlotMorning, items, plan, testTime, time.UTC)

	if digest.Mode != core.ModeEnhanced {
		t.Errorf("Expected enhanced mode, got %s", digest.Mode)
	}
	if digest.Subject != "G train out; skip moving the car" {
		t.Errorf("Unexpected subject %q", digest.Subject)
	}
	if digest.Overview == "" || digest.LookingAhead == "" {
		t.Error("Expected overview and looking-ahead to carry over")
	}

	// Plan sections first, in plan order, with leads
	if len(digest.Sections) != 3 {
		t.Fatalf("Expected 3 sections (2 planned + 1 leftover), got %d", len(digest.Sections))
	}
	if digest.Sections[0].Module != core.ModuleTransit || digest.Sections[0].Lead == "" {
		t.Errorf("Expected a led transit section first, got %+v", digest.Sections[0])
	}

	// The item the plan ignored is still delivered
	leftover := digest.Sections[2]
	if leftover.Module != core.ModuleGeneral || len(leftover.Items) != 1 || leftover.Items[0].ID != "g1" {
		t.Errorf("Expected the unplanned general item appended, got %+v", leftover)
	}
	if digest.ItemCount() != 4 {
		t.Errorf("Expected all 4 routed items delivered, got %d", digest.ItemCount())
	}
}

func TestBuildEnhanced_LeftoverJoinsMatchingSection(t *testing.T) {
	items := renderItems()
	plan := &llm.DigestPlan{
		Subject: "G train out",
		Sections: []llm.PlanSection{
			{Module: "transit", Lead: "The G is out.", ItemIDs: []string{"t1"}},
			{Module: "parking", Lead: "ASP is off.", ItemIDs: []string{"p1"}},
		},
	}

	digest := BuildEnhanced(core.SlotMorning, items, plan, testTime, time.UTC)

	transit := digest.Sections[0]
	if len(transit.Items) != 2 {
		t.Fatalf("Expected the unplanned transit item to join the transit section, got %d items", len(transit.Items))
	}
	if transit.Items[1].ID != "t2" {
		t.Errorf("Expected t2 appended after the planned item, got %s", transit.Items[1].ID)
	}
}

func TestBuildEnhanced_UnknownModuleName(t *testing.T) {
	items := renderItems()[:1]
	plan := &llm.DigestPlan{
		Subject: "G train out",
		Sections: []llm.PlanSection{
			{Module: "Subway Service", Lead: "The G is out.", ItemIDs: []string{"t1"}},
		},
	}

	digest := BuildEnhanced(core.SlotMorning, items, plan, testTime, time.UTC)
	if digest.Sections[0].Module != core.ModuleTransit {
		t.Errorf("Expected the module to fall back to the item's module, got %s", digest.Sections[0].Module)
	}
}

func TestDigestText(t *testing.T) {
	digest := BuildStandard(core.SlotMorning, renderItems(), testTime, time.UTC)
	text := digest.Text()

	if !strings.Contains(text, "CityBrief — Morning Edition") {
		t.Error("Expected the masthead in the text body")
	}
	if !strings.Contains(text, "== Transit ==") {
		t.Error("Expected a transit section header")
	}
	if !strings.Contains(text, "* G train suspended") {
		t.Error("Expected item titles as bullets")
	}
	if !strings.Contains(text, "https://mta.test/1") {
		t.Error("Expected item URLs in the text body")
	}
	if !strings.Contains(text, "unsubscribe") {
		t.Error("Expected the footer")
	}
}

func TestDigestText_Enhanced(t *testing.T) {
	plan := &llm.DigestPlan{
		Subject:  "G train out",
		Overview: "The G is suspended this morning.",
		Sections: []llm.PlanSection{
			{Module: "transit", Lead: "Plan for shuttle buses.", ItemIDs: []string{"t1"}},
		},
		LookingAhead: "ASP resumes Thursday.",
	}
	digest := BuildEnhanced(core.SlotMorning, renderItems()[:1], plan, testTime, time.UTC)
	text := digest.Text()

	if !strings.Contains(text, "The G is suspended this morning.") {
		t.Error("Expected the overview before the sections")
	}
	if !strings.Contains(text, "Plan for shuttle buses.") {
		t.Error("Expected the section lead")
	}
	if !strings.Contains(text, "Looking ahead: ASP resumes Thursday.") {
		t.Error("Expected the looking-ahead line")
	}
}
