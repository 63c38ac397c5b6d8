package core

import "time"

// ContentType classifies what kind of fact a content item describes. It is a
// closed set; the router's eligibility matrix has a row for every value.
type ContentType string

const (
	TypeNews            ContentType = "news"             // City news coverage
	TypeTransitAlert    ContentType = "transit_alert"    // MTA service alerts
	TypeParkingAlert    ContentType = "parking_alert"    // Today's ASP/meter status
	TypeParkingForecast ContentType = "parking_forecast" // Tomorrow's ASP/meter status
	TypeWeather         ContentType = "weather"          // Daily weather brief
	TypeEvent           ContentType = "event"            // Happenings around the city
	TypeHousing         ContentType = "housing"          // Housing lottery openings
	TypeSampleSale      ContentType = "sample_sale"      // Sample sales and pop-up deals
	TypeTip             ContentType = "tip"              // Evergreen city tips
)

// AllContentTypes lists every known content type in a stable order.
var AllContentTypes = []ContentType{
	TypeNews, TypeTransitAlert, TypeParkingAlert, TypeParkingForecast,
	TypeWeather, TypeEvent, TypeHousing, TypeSampleSale, TypeTip,
}

// Valid reports whether the content type is one of the known values.
func (c ContentType) Valid() bool {
	for _, t := range AllContentTypes {
		if c == t {
			return true
		}
	}
	return false
}

// ModuleID is the subscription category a content item is routed under. The six
// named modules are user-subscribable; ModuleGeneral is delivered to everyone.
type ModuleID string

const (
	ModuleParking ModuleID = "parking"
	ModuleTransit ModuleID = "transit"
	ModuleEvents  ModuleID = "events"
	ModuleHousing ModuleID = "housing"
	ModuleFood    ModuleID = "food"
	ModuleDeals   ModuleID = "deals"
	ModuleGeneral ModuleID = "general"
)

// AllModules lists every module in a stable order, ModuleGeneral last.
var AllModules = []ModuleID{
	ModuleParking, ModuleTransit, ModuleEvents, ModuleHousing,
	ModuleFood, ModuleDeals, ModuleGeneral,
}

// Valid reports whether the module is one of the known values.
func (m ModuleID) Valid() bool {
	for _, id := range AllModules {
		if m == id {
			return true
		}
	}
	return false
}

// UrgencyClass governs an item's freshness window and how aggressively the
// router treats it. Batchable items never trigger a send on their own.
type UrgencyClass string

const (
	UrgencyUrgent        UrgencyClass = "urgent"
	UrgencyTimeSensitive UrgencyClass = "time_sensitive"
	UrgencyEvergreen     UrgencyClass = "evergreen"
	UrgencyBatchable     UrgencyClass = "batchable"
)

// Valid reports whether the urgency class is one of the known values.
func (u UrgencyClass) Valid() bool {
	switch u {
	case UrgencyUrgent, UrgencyTimeSensitive, UrgencyEvergreen, UrgencyBatchable:
		return true
	}
	return false
}

// Severity grades transit alerts. Empty for every other content type.
type Severity string

const (
	SeverityMinor  Severity = "minor"
	SeverityMajor  Severity = "major"
	SeverityOutage Severity = "outage"
)

// Rank orders severities for escalation checks. Higher is worse; the zero
// value ranks below minor so "severity appeared" counts as an increase.
func (s Severity) Rank() int {
	switch s {
	case SeverityMinor:
		return 1
	case SeverityMajor:
		return 2
	case SeverityOutage:
		return 3
	default:
		return 0
	}
}

// Slot is one of the three fixed daily delivery windows.
type Slot string

const (
	SlotMorning Slot = "morning"
	SlotMidday  Slot = "midday"
	SlotEvening Slot = "evening"
)

// AllSlots lists the slots in chronological order.
var AllSlots = []Slot{SlotMorning, SlotMidday, SlotEvening}

// Valid reports whether the slot is one of the known values.
func (s Slot) Valid() bool {
	switch s {
	case SlotMorning, SlotMidday, SlotEvening:
		return true
	}
	return false
}

// Next returns the next chronological slot for overflow deferral, or false
// when there is none today (evening overflow waits for tomorrow's read).
func (s Slot) Next() (Slot, bool) {
	switch s {
	case SlotMorning:
		return SlotMidday, true
	case SlotMidday:
		return SlotEvening, true
	default:
		return "", false
	}
}

// ContentItem is the unit of curation: one fact scraped from one source.
type ContentItem struct {
	ID            string       `json:"id"`             // Unique identifier, one per (source, external_id)
	Source        string       `json:"source"`         // Scraper/feed name that produced the item
	ExternalID    string       `json:"external_id"`    // Upstream identifier, not trusted for dedup
	ContentType   ContentType  `json:"content_type"`   // What kind of fact this is
	ModuleID      ModuleID     `json:"module_id"`      // Subscription category for routing
	DedupKey      string       `json:"dedup_key"`      // Normalized type+title fingerprint
	Title         string       `json:"title"`          // Display title
	Body          string       `json:"body"`           // Display body, HTML already stripped
	URL           string       `json:"url"`            // Canonical link for the item
	RouteTags     []string     `json:"route_tags"`     // Line/route/location tags (e.g. ["G"])
	UrgencyClass  UrgencyClass `json:"urgency_class"`  // Governs freshness window and routing
	PriorityScore int          `json:"priority_score"` // 0-100, computed at read time
	Severity      Severity     `json:"severity"`       // Transit only; empty otherwise
	Actionable    bool         `json:"actionable"`     // False excludes the item from all routing
	CreatedAt     time.Time    `json:"created_at"`     // First sighting of this fact
	StartsAt      *time.Time   `json:"starts_at"`      // Validity window start, if any
	EndsAt        *time.Time   `json:"ends_at"`        // Validity window end; past end means expired
	Version       int          `json:"version"`        // Monotonic, bumped on material upstream change
	StatusChanged bool         `json:"status_changed"` // Set when version bumps, cleared after one send
	Superseded    bool         `json:"superseded"`     // Lost a cross-source dedup; kept for audit only
}

// Expired reports whether the item's validity window has closed. Expiration
// overrides urgency class and score everywhere.
func (c *ContentItem) Expired(now time.Time) bool {
	return c.EndsAt != nil && c.EndsAt.Before(now)
}

// Age returns how long ago the item was first seen.
func (c *ContentItem) Age(now time.Time) time.Duration {
	return now.Sub(c.CreatedAt)
}

// Tier is a recipient's subscription plan; it bounds daily digest frequency.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// Recipient is one digest subscriber.
type Recipient struct {
	ID       string     `json:"id"`       // Unique identifier
	Email    string     `json:"email"`    // Delivery address
	Tier     Tier       `json:"tier"`     // Plan, bounds daily sends
	Timezone string     `json:"timezone"` // IANA zone for quiet hours (default America/New_York)
	Modules  []ModuleID `json:"modules"`  // Subscribed modules; general is always implied
	Active   bool       `json:"active"`   // Inactive recipients are skipped entirely
}

// SubscribedTo reports whether the recipient should receive items for the
// module. ModuleGeneral content goes to everyone.
func (r *Recipient) SubscribedTo(m ModuleID) bool {
	if m == ModuleGeneral {
		return true
	}
	for _, id := range r.Modules {
		if id == m {
			return true
		}
	}
	return false
}

// SendRecord is the idempotency guard: one row per delivered
// (user, item, version) per day.
type SendRecord struct {
	ID       string    `json:"id"`        // Unique identifier
	UserID   string    `json:"user_id"`   // Recipient the item went to
	ItemID   string    `json:"item_id"`   // Delivered content item
	Version  int       `json:"version"`   // Item version at delivery time
	Slot     Slot      `json:"slot"`      // Slot the delivery happened in
	DigestID string    `json:"digest_id"` // Digest the item rode in
	SentOn   string    `json:"sent_on"`   // Delivery day, YYYY-MM-DD in product local time
	SentAt   time.Time `json:"sent_at"`   // Exact delivery timestamp
}

// Feed is a registered content source polled by the ingestion pipeline.
type Feed struct {
	ID          string      `json:"id"`           // Unique identifier
	Name        string      `json:"name"`         // Stable source name used in dedup windows
	URL         string      `json:"url"`          // Feed endpoint
	ContentType ContentType `json:"content_type"` // Type assigned to items from this feed
	ModuleID    ModuleID    `json:"module_id"`    // Module assigned to items from this feed
	TrustTier   int         `json:"trust_tier"`   // 1 (official) .. 4 (unknown)
	Active      bool        `json:"active"`       // Inactive feeds are not polled
	AddedAt     time.Time   `json:"added_at"`     // When the feed was registered
}

// DigestMode distinguishes the LLM-assisted digest from the plain fallback.
type DigestMode string

const (
	ModeEnhanced DigestMode = "enhanced"
	ModeStandard DigestMode = "standard"
)

// DigestRecord is the audit row written for every digest actually sent.
type DigestRecord struct {
	ID        string     `json:"id"`         // Unique identifier
	UserID    string     `json:"user_id"`    // Recipient
	Slot      Slot       `json:"slot"`       // Slot the digest was built for
	Mode      DigestMode `json:"mode"`       // enhanced or standard
	Subject   string     `json:"subject"`    // Email subject line as sent
	ItemCount int        `json:"item_count"` // Items included after per-user filtering
	SentOn    string     `json:"sent_on"`    // Delivery day, YYYY-MM-DD
	SentAt    time.Time  `json:"sent_at"`    // Exact delivery timestamp
}

// JobReport is the outcome of one digest job invocation.
type JobReport struct {
	RunID   string     `json:"run_id"`  // Correlation id for the run's log lines
	Slot    Slot       `json:"slot"`    // Slot the job ran for
	Mode    DigestMode `json:"mode"`    // Mode the run settled on
	Sent    int        `json:"sent"`    // Digests delivered
	Skipped int        `json:"skipped"` // Recipients skipped by eligibility rules
	Failed  int        `json:"failed"`  // Recipients whose send failed
	Locked  bool       `json:"locked"`  // False when another run held the lock (no-op)
}
