package cmd

import (
	"context"
	"fmt"

	"citybrief/internal/core"
	"citybrief/internal/digest"

	"github.com/spf13/cobra"
)

var (
	digestForce        bool
	digestSkipEnhanced bool
	digestDryRun       bool
)

var digestCmd = &cobra.Command{
	Use:   "digest [morning|midday|evening]",
	Short: "Run one slot's digest job now",
	Long: `Assembles the slot from the stored content items and delivers the digest
to every eligible subscriber. The run takes the slot's distributed lock, so
triggering it next to a running daemon is safe: the loser is a no-op.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		slot := core.Slot(args[0])
		if !slot.Valid() {
			return fmt.Errorf("unknown slot %q (want morning, midday, or evening)", args[0])
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		ctx := context.Background()
		orch, cleanup := buildOrchestrator(ctx, st)
		defer cleanup()

		report := orch.RunDigestJob(ctx, slot, digest.Options{
			Force:        digestForce,
			SkipEnhanced: digestSkipEnhanced,
			DryRun:       digestDryRun,
		})

		if !report.Locked {
			fmt.Printf("Skipped: another %s run holds the lock.\n", slot)
			return nil
		}
		if digestDryRun {
			fmt.Printf("%s digest (%s, dry run): would send %d, skipped %d, failed %d\n",
				slot, report.Mode, report.Sent, report.Skipped, report.Failed)
			return nil
		}
		fmt.Printf("%s digest (%s): sent %d, skipped %d, failed %d\n",
			slot, report.Mode, report.Sent, report.Skipped, report.Failed)
		return nil
	},
}

var urgentCmd = &cobra.Command{
	Use:   "urgent-sweep",
	Short: "Deliver fresh urgent items outside the slot schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		ctx := context.Background()
		orch, cleanup := buildOrchestrator(ctx, st)
		defer cleanup()

		report := orch.RunUrgentSweep(ctx)
		if !report.Locked {
			fmt.Println("Skipped: another sweep holds the lock.")
			return nil
		}
		fmt.Printf("urgent sweep: sent %d, failed %d\n", report.Sent, report.Failed)
		return nil
	},
}

func init() {
	digestCmd.Flags().BoolVar(&digestForce, "force", false, "send even when eligibility rules would skip")
	digestCmd.Flags().BoolVar(&digestSkipEnhanced, "skip-enhanced", false, "go straight to the standard layout")
	digestCmd.Flags().BoolVar(&digestDryRun, "dry-run", false, "run the full pipeline but deliver and record nothing")
	rootCmd.AddCommand(digestCmd)
	rootCmd.AddCommand(urgentCmd)
}
