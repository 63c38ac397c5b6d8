package cmd

import (
	"context"
	"time"

	"citybrief/internal/core"
	"citybrief/internal/slots"
	"citybrief/internal/tui"

	"github.com/spf13/cobra"
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Preview what each slot would contain right now",
	Long: `Assembles all three slots from the stored content without sending
anything and opens an interactive view: routed items per slot, with the
deferred and excluded counts alongside.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		orch, cleanup := buildOrchestrator(context.Background(), st)
		defer cleanup()

		now := time.Now()
		placements := make(map[core.Slot]slots.Placement, len(core.AllSlots))
		for _, slot := range core.AllSlots {
			placement, err := orch.PreviewSlot(slot, now)
			if err != nil {
				return err
			}
			placements[slot] = placement
		}

		tui.StartPreview(placements)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(previewCmd)
}
