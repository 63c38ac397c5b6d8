package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"citybrief/internal/config"
	"citybrief/internal/core"
	"citybrief/internal/digest"
	"citybrief/internal/ingest"
	"citybrief/internal/logger"
	"citybrief/internal/operator"
	"citybrief/internal/sources"
	"citybrief/internal/store"

	"github.com/robfig/cron"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler daemon",
	Long: `Runs CityBrief as a long-lived process: feeds are polled on the ingest
interval, an urgent sweep fires between slots, and the three digest jobs run
at their configured local times. Every job takes its distributed lock first,
so running several daemons behind the same Valkey is safe.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		orch, cleanup := buildOrchestrator(ctx, st)
		defer cleanup()

		cfg := config.Get()
		log := logger.With("serve")
		reporter := operator.NewReporter(cfg.Operator)

		cr := cron.NewWithLocation(cfg.App.Location())

		slotTimes := map[core.Slot]string{
			core.SlotMorning: cfg.Slots.Morning.Time,
			core.SlotMidday:  cfg.Slots.Midday.Time,
			core.SlotEvening: cfg.Slots.Evening.Time,
		}
		for _, slot := range core.AllSlots {
			slot := slot
			spec, err := clockToCron(slotTimes[slot])
			if err != nil {
				return fmt.Errorf("slots.%s.time: %w", slot, err)
			}
			if err := cr.AddFunc(spec, func() {
				orch.RunDigestJob(ctx, slot, digest.Options{})
			}); err != nil {
				return fmt.Errorf("failed to schedule %s digest: %w", slot, err)
			}
			log.Info().Str("slot", string(slot)).Str("cron", spec).Msg("digest job scheduled")
		}

		if err := cr.AddFunc("@every "+cfg.Ingest.UrgentSweep, func() {
			orch.RunUrgentSweep(ctx)
		}); err != nil {
			return fmt.Errorf("failed to schedule urgent sweep: %w", err)
		}

		pipeline := ingest.NewPipeline(st, cfg.Engine, cfg.Ingest)
		if err := cr.AddFunc("@every "+cfg.Ingest.Interval, func() {
			runIngest(ctx, st, pipeline, cfg, reporter, log)
		}); err != nil {
			return fmt.Errorf("failed to schedule ingest: %w", err)
		}

		cr.Start()
		defer cr.Stop()
		log.Info().
			Str("timezone", cfg.App.Timezone).
			Str("ingest_every", cfg.Ingest.Interval).
			Str("urgent_every", cfg.Ingest.UrgentSweep).
			Msg("scheduler started")

		// One immediate poll so a fresh daemon has content before the first slot.
		runIngest(ctx, st, pipeline, cfg, reporter, log)

		// Blocks here while the cron process runs
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		received := <-sig
		log.Info().Str("signal", received.String()).Msg("shutting down")
		return nil
	},
}

func runIngest(ctx context.Context, st *store.Store, pipeline *ingest.Pipeline, cfg *config.Config, reporter *operator.Reporter, log zerolog.Logger) {
	feeds, err := st.ListFeeds(true)
	if err != nil {
		log.Error().Err(err).Msg("failed to list feeds")
		return
	}
	report := pipeline.Run(ctx, sources.FromFeeds(feeds, cfg.Ingest.UserAgent))
	reporter.IngestRun(ctx, report)
}

// clockToCron turns an HH:MM wall-clock time into a daily cron spec.
func clockToCron(clock string) (string, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return "", fmt.Errorf("invalid time of day %q (want HH:MM)", clock)
	}
	return fmt.Sprintf("0 %d %d * * *", t.Minute(), t.Hour()), nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
