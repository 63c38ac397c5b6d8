package relevance

import (
	"testing"

	"citybrief/internal/core"
)

func transitItem(title, body string) core.ContentItem {
	return core.ContentItem{
		ContentType:  core.TypeTransitAlert,
		ModuleID:     core.ModuleTransit,
		Title:        title,
		Body:         body,
		UrgencyClass: core.UrgencyTimeSensitive,
	}
}

func TestClassifyTransitAlert_ElevatorOutageSuppressed(t *testing.T) {
	item := transitItem("Elevator out of service at 42nd St", "The elevator to the downtown platform is out of service.")

	c := ClassifyTransitAlert(item, 90, DefaultTransitTables())

	if c.Actionable {
		t.Error("Expected elevator outage to be classified non-actionable")
	}
	if c.Severity != core.SeverityMinor {
		t.Errorf("Expected minor severity for suppressed item, got %s", c.Severity)
	}
}

func TestClassifyTransitAlert_SuppressionBeatsOutagePattern(t *testing.T) {
	// "out of service" style equipment notices often carry outage wording;
	// the suppression set must win.
	item := transitItem("Escalator suspended at Atlantic Av", "")

	c := ClassifyTransitAlert(item, 80, DefaultTransitTables())
	if c.Actionable {
		t.Error("Expected escalator notice to stay suppressed despite outage wording")
	}
}

func TestClassifyTransitAlert_MinorDelaySuppressed(t *testing.T) {
	item := transitItem("N trains: expect delays under 10 minutes", "")

	c := ClassifyTransitAlert(item, 70, DefaultTransitTables())
	if c.Actionable {
		t.Error("Expected sub-10-minute delay notice to be non-actionable")
	}
}

func TestClassifyTransitAlert_Outage(t *testing.T) {
	item := transitItem("L train suspended in both directions", "Service is suspended between Bedford Av and 8 Av.")

	c := ClassifyTransitAlert(item, 70, DefaultTransitTables())

	if !c.Actionable {
		t.Error("Expected outage to be actionable")
	}
	if c.Severity != core.SeverityOutage {
		t.Errorf("Expected outage severity, got %s", c.Severity)
	}
	if c.Score != 85 {
		t.Errorf("Expected score 70+15=85, got %d", c.Score)
	}
	if c.Urgency != core.UrgencyUrgent {
		t.Errorf("Expected outage to escalate urgency to urgent, got %s", c.Urgency)
	}
}

func TestClassifyTransitAlert_Major(t *testing.T) {
	item := transitItem("A trains rerouted over the F line", "")

	c := ClassifyTransitAlert(item, 70, DefaultTransitTables())

	if c.Severity != core.SeverityMajor {
		t.Errorf("Expected major severity, got %s", c.Severity)
	}
	if c.Score != 78 {
		t.Errorf("Expected score 70+8=78, got %d", c.Score)
	}
	if c.Urgency != core.UrgencyTimeSensitive {
		t.Errorf("Expected major alert to keep its urgency class, got %s", c.Urgency)
	}
}

func TestClassifyTransitAlert_MinorByDefault(t *testing.T) {
	item := transitItem("7 trains are running on a Saturday schedule", "")

	c := ClassifyTransitAlert(item, 70, DefaultTransitTables())

	if !c.Actionable {
		t.Error("Expected minor alert to remain actionable")
	}
	if c.Severity != core.SeverityMinor {
		t.Errorf("Expected minor severity, got %s", c.Severity)
	}
	if c.Score != 60 {
		t.Errorf("Expected score 70-10=60, got %d", c.Score)
	}
}

func TestClassifyTransitAlert_ScoreClamped(t *testing.T) {
	item := transitItem("L train suspended", "")

	c := ClassifyTransitAlert(item, 95, DefaultTransitTables())
	if c.Score != 100 {
		t.Errorf("Expected adjusted score clamped at 100, got %d", c.Score)
	}

	low := transitItem("7 trains are running on a Saturday schedule", "")
	c = ClassifyTransitAlert(low, 5, DefaultTransitTables())
	if c.Score != 0 {
		t.Errorf("Expected adjusted score clamped at 0, got %d", c.Score)
	}
}
