// Package cmd wires the CityBrief CLI: digest jobs, feed ingestion, the
// scheduler daemon, and the operator utilities around them.
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"citybrief/internal/config"
	"citybrief/internal/core"
	"citybrief/internal/digest"
	"citybrief/internal/email"
	"citybrief/internal/joblock"
	"citybrief/internal/llm"
	"citybrief/internal/logger"
	"citybrief/internal/operator"
	"citybrief/internal/relevance"
	"citybrief/internal/slots"
	"citybrief/internal/store"

	"github.com/spf13/cobra"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "citybrief",
	Short: "CityBrief curates NYC civic data into scheduled email digests",
	Long: `CityBrief ingests NYC civic and commerce feeds (transit alerts, parking
status, housing lotteries, news, sample sales), de-duplicates and scores the
items, and emails subscribers a curated digest up to three times a day.

Run "citybrief serve" for the scheduled daemon, or trigger individual jobs
with "citybrief digest" and "citybrief ingest".`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.citybrief.yaml)")
}

// initConfig loads configuration before any subcommand runs.
func initConfig() {
	if _, err := config.Load(cfgFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
}

// openStore opens the configured SQLite database.
func openStore() (*store.Store, error) {
	return store.NewStore(config.GetDatabasePath())
}

// capsFromConfig translates the slot config section into router capacities.
func capsFromConfig(cfg config.Slots) slots.Capacities {
	return slots.Capacities{
		core.SlotMorning: {Min: cfg.Morning.MinItems, Max: cfg.Morning.MaxItems},
		core.SlotMidday:  {Min: cfg.Midday.MinItems, Max: cfg.Midday.MaxItems},
		core.SlotEvening: {Min: cfg.Evening.MinItems, Max: cfg.Evening.MaxItems},
	}
}

// windowsFromConfig translates the freshness config section.
func windowsFromConfig(cfg config.Freshness) relevance.FreshnessWindows {
	return relevance.FreshnessWindows{
		Urgent:        cfg.UrgentDuration(),
		TimeSensitive: cfg.TimeSensitiveDuration(),
		Evergreen:     cfg.EvergreenDuration(),
		Batchable:     cfg.BatchableDuration(),
	}
}

// scoringFromConfig translates the scoring config section into engine tables.
func scoringFromConfig(cfg config.Scoring) (relevance.ScoringTables, relevance.TransitTables) {
	tables := relevance.DefaultScoringTables()
	tables.TierBase = map[int]int{
		1: cfg.Tier1Base,
		2: cfg.Tier2Base,
		3: cfg.Tier3Base,
		4: cfg.Tier4Base,
	}
	transit := relevance.DefaultTransitTables()
	transit.OutageBoost = cfg.OutageBoost
	transit.MajorBoost = cfg.MajorBoost
	transit.MinorPenalty = cfg.MinorPenalty
	return tables, transit
}

// buildOrchestrator assembles the digest engine and its collaborators from
// config. Valkey being down degrades to lockless single-process operation
// with a warning; a missing Gemini key disables the enhanced path.
func buildOrchestrator(ctx context.Context, st *store.Store) (*digest.Orchestrator, func()) {
	cfg := config.Get()
	log := logger.With("cli")

	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	var lock digest.Locker
	if client, err := joblock.Connect(cfg.Valkey); err != nil {
		log.Warn().Err(err).Msg("valkey unavailable, running without the run lock")
	} else {
		lock = joblock.New(client, cfg.Valkey.LockTTLDuration())
		cleanups = append(cleanups, client.Close)
	}

	var planner digest.Planner
	if cfg.AI.Gemini.APIKey != "" {
		client, err := llm.NewClient(ctx, cfg.AI.Gemini)
		if err != nil {
			log.Warn().Err(err).Msg("gemini unavailable, enhanced digests disabled")
		} else {
			planner = client
			cleanups = append(cleanups, func() { _ = client.Close() })
		}
	} else {
		log.Debug().Msg("no gemini API key, enhanced digests disabled")
	}

	caps := capsFromConfig(cfg.Slots)
	tables, transit := scoringFromConfig(cfg.Engine.Scoring)
	orch := digest.New(digest.Deps{
		Store:       st,
		Router:      slots.NewRouter(slots.DefaultMatrix(), caps),
		Caps:        caps,
		Windows:     windowsFromConfig(cfg.Engine.Freshness),
		Scorer:      relevance.NewScorer(tables),
		Transit:     transit,
		Rules:       digest.RulesFromConfig(cfg.Delivery),
		Planner:     planner,
		Sender:      email.NewClient(cfg.Delivery, filepath.Join(cfg.App.DataDir, "outbox")),
		Notifier:    operator.NewReporter(cfg.Operator),
		Lock:        lock,
		Concurrency: cfg.Delivery.Concurrency,
		Location:    cfg.App.Location(),
	})
	return orch, cleanup
}
