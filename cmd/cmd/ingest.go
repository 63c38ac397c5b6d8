package cmd

import (
	"context"
	"fmt"
	"time"

	"citybrief/internal/config"
	"citybrief/internal/ingest"
	"citybrief/internal/operator"
	"citybrief/internal/sources"

	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Poll every active feed once",
	Long: `Fetches every active registered feed, validates and de-duplicates the
records, scores the survivors, and upserts them into the content store.
Broken sources are reported to the operator channel, not fatal to the run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		cfg := config.Get()
		feeds, err := st.ListFeeds(true)
		if err != nil {
			return err
		}
		if len(feeds) == 0 {
			fmt.Println("No active sources registered. Add one with: citybrief sources add")
			return nil
		}

		ctx := context.Background()
		pipeline := ingest.NewPipeline(st, cfg.Engine, cfg.Ingest)
		report := pipeline.Run(ctx, sources.FromFeeds(feeds, cfg.Ingest.UserAgent))
		operator.NewReporter(cfg.Operator).IngestRun(ctx, report)

		total := report.Total()
		fmt.Printf("ingested %d sources: %d new, %d updated, %d rejected, %d duplicates (%s)\n",
			len(report.Sources), total.Accepted, total.Updated, total.Rejected, total.Duplicates,
			report.Duration.Round(time.Millisecond))
		if report.Err != nil {
			return report.Err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
