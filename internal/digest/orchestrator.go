package digest

import (
	"context"
	"time"

	"citybrief/internal/core"
	"citybrief/internal/dedupe"
	"citybrief/internal/email"
	"citybrief/internal/llm"
	"citybrief/internal/logger"
	"citybrief/internal/relevance"
	"citybrief/internal/render"
	"citybrief/internal/slots"
	"citybrief/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Planner proposes the enhanced digest layout. Any error means the run falls
// back to the standard layout.
type Planner interface {
	GenerateDigestPlan(ctx context.Context, slot core.Slot, items []core.ContentItem) (*llm.DigestPlan, error)
}

// Sender delivers one rendered digest.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody, textBody string) (*email.SendResult, error)
}

// Locker guards a job against overlapping runs. Losing the acquire race is a
// no-op for the caller, not an error.
type Locker interface {
	Acquire(ctx context.Context, name string) (string, bool, error)
	Release(ctx context.Context, name, token string) error
}

// Notifier reports run outcomes to the operator channel.
type Notifier interface {
	DigestRun(ctx context.Context, report core.JobReport)
	UrgentSweep(ctx context.Context, report core.JobReport)
}

// Options tunes a single run. Configuration, not control flow: the same code
// path executes either way.
type Options struct {
	Force        bool // send even when eligibility rules would skip
	SkipEnhanced bool // go straight to the standard layout
	DryRun       bool // full pipeline, but nothing is delivered or recorded
}

// Deps wires the orchestrator's collaborators. Planner, Notifier, and Lock
// are optional; leaving them nil disables the enhanced path, operator
// reporting, and the run-lock respectively.
type Deps struct {
	Store       *store.Store
	Router      *slots.Router
	Caps        slots.Capacities
	Windows     relevance.FreshnessWindows
	Rules       Rules
	Scorer      *relevance.Scorer
	Transit     relevance.TransitTables
	Planner     Planner
	Sender      Sender
	Notifier    Notifier
	Lock        Locker
	Concurrency int
	Location    *time.Location
	Clock       func() time.Time
}

// Orchestrator runs the per-slot digest job end to end: assemble the slot,
// attempt the enhanced plan, then build and deliver per recipient.
type Orchestrator struct {
	store       *store.Store
	router      *slots.Router
	caps        slots.Capacities
	windows     relevance.FreshnessWindows
	rules       Rules
	scorer      *relevance.Scorer
	transit     relevance.TransitTables
	planner     Planner
	sender      Sender
	notifier    Notifier
	lock        Locker
	concurrency int
	loc         *time.Location
	clock       func() time.Time
	log         zerolog.Logger
}

// New builds an orchestrator, filling in defaults for optional deps.
func New(d Deps) *Orchestrator {
	if d.Router == nil {
		d.Router = slots.NewRouter(slots.DefaultMatrix(), slots.DefaultCapacities())
	}
	if d.Caps == nil {
		d.Caps = slots.DefaultCapacities()
	}
	if d.Windows == (relevance.FreshnessWindows{}) {
		d.Windows = relevance.DefaultFreshnessWindows()
	}
	if d.Rules == (Rules{}) {
		d.Rules = DefaultRules()
	}
	if d.Scorer == nil {
		d.Scorer = relevance.NewScorer(relevance.DefaultScoringTables())
	}
	if d.Transit.OutagePatterns == nil && d.Transit.SuppressPatterns == nil {
		d.Transit = relevance.DefaultTransitTables()
	}
	if d.Concurrency < 1 {
		d.Concurrency = 4
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	return &Orchestrator{
		store:       d.Store,
		router:      d.Router,
		caps:        d.Caps,
		windows:     d.Windows,
		rules:       d.Rules,
		scorer:      d.Scorer,
		transit:     d.Transit,
		planner:     d.Planner,
		sender:      d.Sender,
		notifier:    d.Notifier,
		lock:        d.Lock,
		concurrency: d.Concurrency,
		loc:         d.Location,
		clock:       d.Clock,
		log:         logger.With("digest"),
	}
}

// RunDigestJob builds and delivers one slot's digests for every active
// recipient. Two concurrent invocations of the same slot cannot both run; the
// loser observes Locked=false and does nothing.
func (o *Orchestrator) RunDigestJob(ctx context.Context, slot core.Slot, opts Options) core.JobReport {
	report := core.JobReport{
		RunID:  uuid.New().String(),
		Slot:   slot,
		Mode:   core.ModeStandard,
		Locked: true,
	}
	log := o.log.With().Str("run_id", report.RunID).Str("slot", string(slot)).Logger()

	if o.lock != nil {
		token, ok, err := o.lock.Acquire(ctx, "digest:"+string(slot))
		if err != nil {
			log.Warn().Err(err).Msg("lock backend unavailable, skipping run")
			report.Locked = false
			o.notifyDigest(ctx, report)
			return report
		}
		if !ok {
			log.Info().Msg("another run holds the lock, skipping")
			report.Locked = false
			o.notifyDigest(ctx, report)
			return report
		}
		defer func() {
			if err := o.lock.Release(ctx, "digest:"+string(slot), token); err != nil {
				log.Warn().Err(err).Msg("failed to release run lock")
			}
		}()
	}

	now := o.clock()
	placement, err := o.assembleSlot(slot, now)
	if err != nil {
		log.Error().Err(err).Msg("failed to assemble slot")
		o.notifyDigest(ctx, report)
		return report
	}
	log.Info().
		Int("included", len(placement.Included)).
		Int("deferred", len(placement.Deferred)).
		Int("excluded", placement.ExcludedCount).
		Bool("has_required", placement.HasRequired).
		Msg("slot assembled")

	if len(placement.Included) == 0 {
		log.Info().Msg("nothing routed to this slot, no digests to send")
		o.notifyDigest(ctx, report)
		return report
	}

	var plan *llm.DigestPlan
	if o.planner != nil && !opts.SkipEnhanced {
		plan, err = o.planner.GenerateDigestPlan(ctx, slot, placement.Included)
		if err != nil {
			log.Warn().Err(err).Msg("enhanced generation failed, falling back to standard")
			plan = nil
		} else {
			report.Mode = core.ModeEnhanced
		}
	}

	recipients, err := o.store.ListActiveRecipients()
	if err != nil {
		log.Error().Err(err).Msg("failed to list recipients")
		o.notifyDigest(ctx, report)
		return report
	}

	sentOn := now.In(o.loc).Format("2006-01-02")
	tasks := make([]Task, 0, len(recipients))
	for _, r := range recipients {
		recipient := r
		tasks = append(tasks, Task{
			UserID: recipient.ID,
			Do: func(ctx context.Context) Result {
				return o.processRecipient(ctx, slot, placement, plan, recipient, now, sentOn, opts)
			},
		})
	}

	results := NewPool(o.concurrency).Run(ctx, tasks)
	o.tally(&report, results, log)

	if err := o.consumeEscalations(results); err != nil {
		log.Warn().Err(err).Msg("failed to clear escalation flags")
	}

	log.Info().
		Str("mode", string(report.Mode)).
		Bool("dry_run", opts.DryRun).
		Int("sent", report.Sent).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Msg("digest run complete")
	o.notifyDigest(ctx, report)
	return report
}

// PreviewSlot assembles one slot without sending anything, for the operator
// preview.
func (o *Orchestrator) PreviewSlot(slot core.Slot, now time.Time) (slots.Placement, error) {
	return o.assembleSlot(slot, now)
}

// assembleSlot runs the read-time half of the engine: re-scoring against the
// current tables, freshness and actionability filtering, the cross-type
// collapse, then slot routing.
func (o *Orchestrator) assembleSlot(slot core.Slot, now time.Time) (slots.Placement, error) {
	items, err := o.store.FindRecentAll(now.Add(-o.windows.Batchable))
	if err != nil {
		return slots.Placement{}, err
	}
	items, err = o.rescore(items)
	if err != nil {
		return slots.Placement{}, err
	}

	routable := make([]core.ContentItem, 0, len(items))
	for _, item := range items {
		if relevance.IsRoutable(item, now, o.windows) {
			routable = append(routable, item)
		}
	}

	collapsed := dedupe.CollapseAcrossTypes(routable)
	return o.router.Route(slot, collapsed), nil
}

// rescore recomputes priority and transit classification against the current
// tables. The ingest-time values stay persisted for audit; every read applies
// whatever the tables say today, so table changes reach already-stored items.
func (o *Orchestrator) rescore(items []core.ContentItem) ([]core.ContentItem, error) {
	tiers, err := o.store.TrustTiers()
	if err != nil {
		return nil, err
	}

	rescored := make([]core.ContentItem, 0, len(items))
	for _, item := range items {
		item.PriorityScore = o.scorer.Score(item, tiers[item.Source])
		if item.ContentType == core.TypeTransitAlert {
			cls := relevance.ClassifyTransitAlert(item, item.PriorityScore, o.transit)
			item.Severity = cls.Severity
			item.PriorityScore = cls.Score
			item.Actionable = cls.Actionable
			item.UrgencyClass = cls.Urgency
		}
		rescored = append(rescored, item)
	}
	return rescored, nil
}

// processRecipient builds and sends one recipient's digest.
func (o *Orchestrator) processRecipient(ctx context.Context, slot core.Slot, placement slots.Placement, plan *llm.DigestPlan, r core.Recipient, now time.Time, sentOn string, opts Options) Result {
	result := Result{UserID: r.ID}

	filtered, err := FilterForUser(placement.Included, r, func(userID, itemID string) (int, error) {
		return o.store.LastSentVersion(userID, itemID, sentOn)
	})
	if err != nil {
		result.Err = err
		return result
	}
	if len(filtered) == 0 {
		result.Reason = SkipNothingNew
		return result
	}

	hasRequired := false
	for _, item := range filtered {
		if placement.RequiredIDs[item.ID] {
			hasRequired = true
			break
		}
	}

	sentToday, err := o.store.CountDigestsToday(r.ID, sentOn)
	if err != nil {
		result.Err = err
		return result
	}

	localNow := now.In(o.recipientLocation(r))
	decision := o.rules.Decide(filtered, hasRequired, o.caps.For(slot).Min, sentToday, r.Tier, localNow, opts.Force)
	if !decision.Send {
		result.Reason = decision.Reason
		return result
	}

	var doc render.Digest
	if plan != nil {
		doc = render.BuildEnhanced(slot, filtered, plan, now, o.loc)
	} else {
		doc = render.BuildStandard(slot, filtered, now, o.loc)
	}

	// Dry runs stop after rendering: no delivery, no audit row, no send
	// records. Delivered stays empty so escalation flags survive too.
	if opts.DryRun {
		result.Sent = true
		return result
	}

	if err := o.deliver(ctx, r, doc, sentOn, now); err != nil {
		result.Err = err
		return result
	}

	result.Sent = true
	result.Delivered = filtered
	return result
}

// deliver renders, sends, and records one digest. The audit row and the send
// records are written only after the endpoint accepts the message.
func (o *Orchestrator) deliver(ctx context.Context, r core.Recipient, doc render.Digest, sentOn string, now time.Time) error {
	html, err := email.RenderHTML(doc, nil)
	if err != nil {
		return err
	}

	res, err := o.sender.Send(ctx, r.Email, doc.Subject, html, doc.Text())
	if err != nil {
		return err
	}

	digestID := res.ID
	if digestID == "" {
		digestID = uuid.New().String()
	}

	if err := o.store.InsertDigest(core.DigestRecord{
		ID:        digestID,
		UserID:    r.ID,
		Slot:      doc.Slot,
		Mode:      doc.Mode,
		Subject:   doc.Subject,
		ItemCount: doc.ItemCount(),
		SentOn:    sentOn,
		SentAt:    now,
	}); err != nil {
		return err
	}
	return o.store.MarkSent(r.ID, doc.Slot, digestID, doc.AllItems(), sentOn, now)
}

func (o *Orchestrator) recipientLocation(r core.Recipient) *time.Location {
	if r.Timezone == "" {
		return o.loc
	}
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return o.loc
	}
	return loc
}

func (o *Orchestrator) tally(report *core.JobReport, results []Result, log zerolog.Logger) {
	for _, res := range results {
		switch {
		case res.Err != nil:
			report.Failed++
			log.Warn().Err(res.Err).Str("user_id", res.UserID).Msg("recipient failed")
		case res.Sent:
			report.Sent++
		default:
			report.Skipped++
			log.Debug().Str("user_id", res.UserID).Str("reason", string(res.Reason)).Msg("recipient skipped")
		}
	}
}

// consumeEscalations clears status_changed on every escalated item that
// reached at least one recipient, so the flag justifies exactly one re-send.
func (o *Orchestrator) consumeEscalations(results []Result) error {
	seen := make(map[string]bool)
	var ids []string
	for _, res := range results {
		if !res.Sent {
			continue
		}
		for _, item := range res.Delivered {
			if item.StatusChanged && !seen[item.ID] {
				seen[item.ID] = true
				ids = append(ids, item.ID)
			}
		}
	}
	return o.store.ClearStatusChanged(ids)
}

// CurrentSlot maps a local wall-clock time onto the slot whose window it
// falls in, for out-of-band urgent sends that still need a slot label.
func CurrentSlot(localNow time.Time) core.Slot {
	switch hour := localNow.Hour(); {
	case hour < 11:
		return core.SlotMorning
	case hour < 16:
		return core.SlotMidday
	default:
		return core.SlotEvening
	}
}

// RunUrgentSweep delivers fresh urgent items outside the slot schedule. It
// bypasses quiet hours and slot minimums; the frequency cap and the
// don't-repeat rule still apply, so a sweep firing every few minutes sends
// each urgent fact once and never past the recipient's daily cap.
func (o *Orchestrator) RunUrgentSweep(ctx context.Context) core.JobReport {
	now := o.clock()
	slot := CurrentSlot(now.In(o.loc))
	report := core.JobReport{
		RunID:  uuid.New().String(),
		Slot:   slot,
		Mode:   core.ModeStandard,
		Locked: true,
	}
	log := o.log.With().Str("run_id", report.RunID).Str("job", "urgent-sweep").Logger()

	if o.lock != nil {
		token, ok, err := o.lock.Acquire(ctx, "urgent-sweep")
		if err != nil || !ok {
			report.Locked = false
			return report
		}
		defer o.lock.Release(ctx, "urgent-sweep", token)
	}

	items, err := o.store.FindRecentAll(now.Add(-o.windows.Urgent))
	if err != nil {
		log.Error().Err(err).Msg("failed to read urgent window")
		return report
	}

	items, err = o.rescore(items)
	if err != nil {
		log.Error().Err(err).Msg("failed to rescore urgent window")
		return report
	}

	urgent := make([]core.ContentItem, 0, len(items))
	for _, item := range items {
		if item.UrgencyClass == core.UrgencyUrgent && relevance.IsRoutable(item, now, o.windows) {
			urgent = append(urgent, item)
		}
	}
	urgent = dedupe.CollapseAcrossTypes(urgent)
	if len(urgent) == 0 {
		return report
	}

	recipients, err := o.store.ListActiveRecipients()
	if err != nil {
		log.Error().Err(err).Msg("failed to list recipients")
		return report
	}

	sentOn := now.In(o.loc).Format("2006-01-02")
	tasks := make([]Task, 0, len(recipients))
	for _, r := range recipients {
		recipient := r
		tasks = append(tasks, Task{
			UserID: recipient.ID,
			Do: func(ctx context.Context) Result {
				return o.processUrgent(ctx, slot, urgent, recipient, now, sentOn)
			},
		})
	}

	results := NewPool(o.concurrency).Run(ctx, tasks)
	o.tally(&report, results, log)

	if err := o.consumeEscalations(results); err != nil {
		log.Warn().Err(err).Msg("failed to clear escalation flags")
	}

	if report.Sent > 0 {
		log.Info().Int("sent", report.Sent).Int("items", len(urgent)).Msg("urgent sweep delivered")
	}
	if o.notifier != nil {
		o.notifier.UrgentSweep(ctx, report)
	}
	return report
}

func (o *Orchestrator) processUrgent(ctx context.Context, slot core.Slot, urgent []core.ContentItem, r core.Recipient, now time.Time, sentOn string) Result {
	result := Result{UserID: r.ID}

	filtered, err := FilterForUser(urgent, r, func(userID, itemID string) (int, error) {
		return o.store.LastSentVersion(userID, itemID, sentOn)
	})
	if err != nil {
		result.Err = err
		return result
	}
	if len(filtered) == 0 {
		result.Reason = SkipNothingNew
		return result
	}

	// Urgency does not buy extra sends: the per-tier daily cap holds.
	sentToday, err := o.store.CountDigestsToday(r.ID, sentOn)
	if err != nil {
		result.Err = err
		return result
	}
	if sentToday >= o.rules.DailyCap(r.Tier) {
		result.Reason = SkipFrequencyCap
		return result
	}

	doc := render.BuildStandard(slot, filtered, now, o.loc)
	doc.Subject = render.UrgentSubject(filtered)

	if err := o.deliver(ctx, r, doc, sentOn, now); err != nil {
		result.Err = err
		return result
	}
	result.Sent = true
	result.Delivered = filtered
	return result
}

func (o *Orchestrator) notifyDigest(ctx context.Context, report core.JobReport) {
	if o.notifier != nil {
		o.notifier.DigestRun(ctx, report)
	}
}
