package core

import (
	"testing"
	"time"
)

func TestSlotNext(t *testing.T) {
	next, ok := SlotMorning.Next()
	if !ok || next != SlotMidday {
		t.Errorf("Expected morning to defer to midday, got %s (ok=%v)", next, ok)
	}

	next, ok = SlotMidday.Next()
	if !ok || next != SlotEvening {
		t.Errorf("Expected midday to defer to evening, got %s (ok=%v)", next, ok)
	}

	if _, ok := SlotEvening.Next(); ok {
		t.Error("Expected evening to have no next slot today")
	}
}

func TestSeverityRank(t *testing.T) {
	if SeverityOutage.Rank() <= SeverityMajor.Rank() {
		t.Error("Expected outage to rank above major")
	}
	if SeverityMajor.Rank() <= SeverityMinor.Rank() {
		t.Error("Expected major to rank above minor")
	}
	if Severity("").Rank() >= SeverityMinor.Rank() {
		t.Error("Expected empty severity to rank below minor")
	}
}

func TestContentItemExpired(t *testing.T) {
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	past := now.Add(-1 * time.Minute)
	future := now.Add(1 * time.Hour)

	item := ContentItem{ID: "item-1"}
	if item.Expired(now) {
		t.Error("Expected item without EndsAt to never expire")
	}

	item.EndsAt = &future
	if item.Expired(now) {
		t.Error("Expected item ending in the future to not be expired")
	}

	item.EndsAt = &past
	if !item.Expired(now) {
		t.Error("Expected item ending in the past to be expired")
	}

	item.EndsAt = &now
	if item.Expired(now) {
		t.Error("Expected item ending exactly now to not be expired yet")
	}
}

func TestContentItemAge(t *testing.T) {
	created := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	item := ContentItem{CreatedAt: created}

	age := item.Age(created.Add(90 * time.Minute))
	if age != 90*time.Minute {
		t.Errorf("Expected age 90m, got %v", age)
	}
}

func TestRecipientSubscribedTo(t *testing.T) {
	r := Recipient{
		ID:      "user-1",
		Email:   "rider@example.com",
		Tier:    TierFree,
		Modules: []ModuleID{ModuleTransit, ModuleParking},
	}

	if !r.SubscribedTo(ModuleTransit) {
		t.Error("Expected subscription to transit to hold")
	}
	if r.SubscribedTo(ModuleDeals) {
		t.Error("Expected no subscription to deals")
	}
	if !r.SubscribedTo(ModuleGeneral) {
		t.Error("Expected general content to reach every recipient")
	}
}

func TestEnumValidity(t *testing.T) {
	for _, ct := range AllContentTypes {
		if !ct.Valid() {
			t.Errorf("Expected content type %s to be valid", ct)
		}
	}
	if ContentType("podcast").Valid() {
		t.Error("Expected unknown content type to be invalid")
	}

	for _, m := range AllModules {
		if !m.Valid() {
			t.Errorf("Expected module %s to be valid", m)
		}
	}
	if ModuleID("weather").Valid() {
		t.Error("Expected unknown module to be invalid")
	}

	if !UrgencyBatchable.Valid() {
		t.Error("Expected batchable urgency to be valid")
	}
	if UrgencyClass("someday").Valid() {
		t.Error("Expected unknown urgency class to be invalid")
	}

	for _, s := range AllSlots {
		if !s.Valid() {
			t.Errorf("Expected slot %s to be valid", s)
		}
	}
	if Slot("overnight").Valid() {
		t.Error("Expected unknown slot to be invalid")
	}
}
