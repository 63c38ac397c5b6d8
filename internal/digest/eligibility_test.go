package digest

import (
	"testing"
	"time"

	"citybrief/internal/core"
)

func eligItem(id string, urgency core.UrgencyClass, version int, statusChanged bool) core.ContentItem {
	return core.ContentItem{
		ID:            id,
		Title:         id,
		ModuleID:      core.ModuleGeneral,
		UrgencyClass:  urgency,
		Version:       version,
		StatusChanged: statusChanged,
	}
}

func daytime(t *testing.T) time.Time {
	t.Helper()
	return time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
}

func TestInQuietHours_WrapsMidnight(t *testing.T) {
	rules := DefaultRules() // 22:00-07:00

	cases := []struct {
		hour, min int
		want      bool
	}{
		{21, 59, false},
		{22, 0, true},
		{23, 30, true},
		{0, 0, true},
		{6, 59, true},
		{7, 0, false},
		{12, 0, false},
	}
	for _, tc := range cases {
		now := time.Date(2025, 6, 2, tc.hour, tc.min, 0, 0, time.UTC)
		if got := rules.InQuietHours(now); got != tc.want {
			t.Errorf("InQuietHours(%02d:%02d) = %v, want %v", tc.hour, tc.min, got, tc.want)
		}
	}
}

func TestInQuietHours_SameStartEndDisabled(t *testing.T) {
	rules := DefaultRules()
	rules.QuietStart = "08:00"
	rules.QuietEnd = "08:00"

	if rules.InQuietHours(time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)) {
		t.Error("Expected identical start and end to disable quiet hours")
	}
}

func TestDecide_NoContent(t *testing.T) {
	d := DefaultRules().Decide(nil, false, 2, 0, core.TierFree, daytime(t), false)
	if d.Send || d.Reason != SkipNoContent {
		t.Errorf("Expected no_content skip, got %+v", d)
	}
}

func TestDecide_BelowMinimumSkips(t *testing.T) {
	items := []core.ContentItem{eligItem("a", core.UrgencyTimeSensitive, 1, false)}

	d := DefaultRules().Decide(items, false, 2, 0, core.TierFree, daytime(t), false)
	if d.Send || d.Reason != SkipBelowMinimum {
		t.Errorf("Expected below_minimum skip, got %+v", d)
	}
}

func TestDecide_RequiredOverridesMinimum(t *testing.T) {
	// One item under a minimum of 2 still sends when it is Required.
	items := []core.ContentItem{eligItem("weather", core.UrgencyTimeSensitive, 1, false)}

	d := DefaultRules().Decide(items, true, 2, 0, core.TierFree, daytime(t), false)
	if !d.Send {
		t.Errorf("Expected Required item to override the slot minimum, got %+v", d)
	}
}

func TestDecide_BatchableDoesNotCountTowardMinimum(t *testing.T) {
	items := []core.ContentItem{
		eligItem("a", core.UrgencyTimeSensitive, 1, false),
		eligItem("tip-1", core.UrgencyBatchable, 1, false),
		eligItem("tip-2", core.UrgencyBatchable, 1, false),
	}

	d := DefaultRules().Decide(items, false, 2, 0, core.TierFree, daytime(t), false)
	if d.Send || d.Reason != SkipBelowMinimum {
		t.Errorf("Expected batchable items not to satisfy the minimum, got %+v", d)
	}
}

func TestDecide_FrequencyCap(t *testing.T) {
	items := []core.ContentItem{
		eligItem("a", core.UrgencyTimeSensitive, 1, false),
		eligItem("b", core.UrgencyTimeSensitive, 1, false),
	}
	rules := DefaultRules()

	d := rules.Decide(items, false, 2, rules.FreeDailyCap, core.TierFree, daytime(t), false)
	if d.Send || d.Reason != SkipFrequencyCap {
		t.Errorf("Expected frequency_cap skip at the free cap, got %+v", d)
	}

	// The same count is fine for premium.
	d = rules.Decide(items, false, 2, rules.FreeDailyCap, core.TierPremium, daytime(t), false)
	if !d.Send {
		t.Errorf("Expected premium tier to send under its higher cap, got %+v", d)
	}
}

func TestDecide_QuietHoursUrgentBypass(t *testing.T) {
	night := time.Date(2025, 6, 2, 23, 0, 0, 0, time.UTC)
	quiet := []core.ContentItem{
		eligItem("a", core.UrgencyTimeSensitive, 1, false),
		eligItem("b", core.UrgencyTimeSensitive, 1, false),
	}

	d := DefaultRules().Decide(quiet, false, 2, 0, core.TierFree, night, false)
	if d.Send || d.Reason != SkipQuietHours {
		t.Errorf("Expected quiet_hours skip at 23:00, got %+v", d)
	}

	withUrgent := append([]core.ContentItem{eligItem("u", core.UrgencyUrgent, 1, false)}, quiet...)
	d = DefaultRules().Decide(withUrgent, false, 2, 0, core.TierFree, night, false)
	if !d.Send {
		t.Errorf("Expected an urgent item to bypass quiet hours, got %+v", d)
	}
}

func TestDecide_ForceBypassesRulesButNotContent(t *testing.T) {
	night := time.Date(2025, 6, 2, 23, 0, 0, 0, time.UTC)
	items := []core.ContentItem{eligItem("a", core.UrgencyTimeSensitive, 1, false)}

	d := DefaultRules().Decide(items, false, 3, 99, core.TierFree, night, true)
	if !d.Send {
		t.Errorf("Expected force to bypass minimum, cap, and quiet hours, got %+v", d)
	}

	d = DefaultRules().Decide(nil, false, 3, 0, core.TierFree, night, true)
	if d.Send {
		t.Error("Expected force not to manufacture content")
	}
}

func TestFilterForUser_DontRepeat(t *testing.T) {
	recipient := core.Recipient{ID: "u1", Modules: []core.ModuleID{core.ModuleParking}}
	sent := map[string]int{"asp-v1": 1}
	lookup := func(userID, itemID string) (int, error) { return sent[itemID], nil }

	fresh := eligItem("fresh", core.UrgencyTimeSensitive, 1, false)
	repeat := eligItem("asp-v1", core.UrgencyTimeSensitive, 1, false)

	kept, err := FilterForUser([]core.ContentItem{fresh, repeat}, recipient, lookup)
	if err != nil {
		t.Fatalf("FilterForUser failed: %v", err)
	}
	if len(kept) != 1 || kept[0].ID != "fresh" {
		t.Errorf("Expected only the undelivered item, got %v", kept)
	}
}

func TestFilterForUser_EscalationReappears(t *testing.T) {
	// ASP suspended sent as v1 in the morning; the suspension is revoked and
	// the item comes back as v2 with status_changed, so midday includes it.
	recipient := core.Recipient{ID: "u1"}
	lookup := func(userID, itemID string) (int, error) { return 1, nil }

	escalated := eligItem("asp", core.UrgencyTimeSensitive, 2, true)
	sameVersion := eligItem("asp-2", core.UrgencyTimeSensitive, 1, true)
	bumpedQuietly := eligItem("asp-3", core.UrgencyTimeSensitive, 2, false)

	kept, err := FilterForUser([]core.ContentItem{escalated, sameVersion, bumpedQuietly}, recipient, lookup)
	if err != nil {
		t.Fatalf("FilterForUser failed: %v", err)
	}
	if len(kept) != 1 || kept[0].ID != "asp" {
		t.Errorf("Expected only the escalated v2 item to reappear, got %v", kept)
	}
}

func TestFilterForUser_ModuleSubscription(t *testing.T) {
	recipient := core.Recipient{ID: "u1", Modules: []core.ModuleID{core.ModuleTransit}}
	lookup := func(userID, itemID string) (int, error) { return 0, nil }

	transit := eligItem("g-train", core.UrgencyUrgent, 1, false)
	transit.ModuleID = core.ModuleTransit
	deals := eligItem("sale", core.UrgencyEvergreen, 1, false)
	deals.ModuleID = core.ModuleDeals
	general := eligItem("citywide", core.UrgencyTimeSensitive, 1, false)
	general.ModuleID = core.ModuleGeneral

	kept, err := FilterForUser([]core.ContentItem{transit, deals, general}, recipient, lookup)
	if err != nil {
		t.Fatalf("FilterForUser failed: %v", err)
	}
	if len(kept) != 2 {
		t.Fatalf("Expected transit and general items, got %v", kept)
	}
	for _, item := range kept {
		if item.ModuleID == core.ModuleDeals {
			t.Error("Expected unsubscribed deals item to be filtered out")
		}
	}
}
