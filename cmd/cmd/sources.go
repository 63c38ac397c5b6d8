package cmd

import (
	"fmt"
	"strings"

	"citybrief/internal/core"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage registered content sources",
}

var (
	sourceType   string
	sourceModule string
	sourceTier   int
)

var sourcesAddCmd = &cobra.Command{
	Use:   "add <name> <url>",
	Short: "Register a source",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		contentType := core.ContentType(sourceType)
		if !contentType.Valid() {
			return fmt.Errorf("unknown content type %q", sourceType)
		}
		moduleID := core.ModuleID(sourceModule)
		if !moduleID.Valid() {
			return fmt.Errorf("unknown module %q", sourceModule)
		}
		if sourceTier < 1 || sourceTier > 4 {
			return fmt.Errorf("trust tier must be 1-4, got %d", sourceTier)
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.SaveFeed(core.Feed{
			Name:        args[0],
			URL:         args[1],
			ContentType: contentType,
			ModuleID:    moduleID,
			TrustTier:   sourceTier,
			Active:      true,
		}); err != nil {
			return err
		}
		fmt.Printf("Registered source %q (%s, tier %d)\n", args[0], sourceType, sourceTier)
		return nil
	},
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		feeds, err := st.ListFeeds(false)
		if err != nil {
			return err
		}
		if len(feeds) == 0 {
			fmt.Println("No sources registered.")
			return nil
		}

		for _, f := range feeds {
			state := "active"
			if !f.Active {
				state = "disabled"
			}
			fmt.Printf("%-24s %-16s tier %d  %-8s  %s\n", f.Name, f.ContentType, f.TrustTier, state, f.URL)
		}
		return nil
	},
}

func setSourceActiveCmd(use, short string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <name>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			return st.SetFeedActive(args[0], active)
		},
	}
}

var subscribersCmd = &cobra.Command{
	Use:   "subscribers",
	Short: "Manage digest subscribers",
}

var (
	subscriberTier    string
	subscriberTZ      string
	subscriberModules string
)

var subscribersAddCmd = &cobra.Command{
	Use:   "add <email>",
	Short: "Add or update a subscriber",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tier := core.Tier(subscriberTier)
		if tier != core.TierFree && tier != core.TierPremium {
			return fmt.Errorf("unknown tier %q (want free or premium)", subscriberTier)
		}

		var modules []core.ModuleID
		for _, name := range strings.Split(subscriberModules, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			id := core.ModuleID(name)
			if !id.Valid() {
				return fmt.Errorf("unknown module %q", name)
			}
			modules = append(modules, id)
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.SaveRecipient(core.Recipient{
			Email:    args[0],
			Tier:     tier,
			Timezone: subscriberTZ,
			Modules:  modules,
			Active:   true,
		}); err != nil {
			return err
		}
		fmt.Printf("Saved subscriber %s (%s, %d modules)\n", args[0], tier, len(modules))
		return nil
	},
}

var subscribersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active subscribers",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		recipients, err := st.ListActiveRecipients()
		if err != nil {
			return err
		}
		if len(recipients) == 0 {
			fmt.Println("No active subscribers.")
			return nil
		}

		for _, r := range recipients {
			names := make([]string, len(r.Modules))
			for i, m := range r.Modules {
				names[i] = string(m)
			}
			fmt.Printf("%-32s %-8s %s\n", r.Email, r.Tier, strings.Join(names, ","))
		}
		return nil
	},
}

func init() {
	sourcesAddCmd.Flags().StringVar(&sourceType, "type", string(core.TypeNews), "content type for items from this source")
	sourcesAddCmd.Flags().StringVar(&sourceModule, "module", string(core.ModuleGeneral), "module items are routed under")
	sourcesAddCmd.Flags().IntVar(&sourceTier, "tier", 3, "source trust tier, 1 (official) to 4 (unknown)")

	sourcesCmd.AddCommand(sourcesAddCmd)
	sourcesCmd.AddCommand(sourcesListCmd)
	sourcesCmd.AddCommand(setSourceActiveCmd("enable", "Enable a source", true))
	sourcesCmd.AddCommand(setSourceActiveCmd("disable", "Disable a source", false))
	rootCmd.AddCommand(sourcesCmd)

	subscribersAddCmd.Flags().StringVar(&subscriberTier, "tier", string(core.TierFree), "subscription tier (free or premium)")
	subscribersAddCmd.Flags().StringVar(&subscriberTZ, "timezone", "America/New_York", "IANA timezone for quiet hours")
	subscribersAddCmd.Flags().StringVar(&subscriberModules, "modules", "transit,parking", "comma-separated module subscriptions")

	subscribersCmd.AddCommand(subscribersAddCmd)
	subscribersCmd.AddCommand(subscribersListCmd)
	rootCmd.AddCommand(subscribersCmd)
}
