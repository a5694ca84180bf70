package fanctl

import (
	"bytes"
	"sort"

	"github.com/fantuned/fantuned/cmd/global"
	"github.com/fantuned/fantuned/internal/ui"
	"github.com/spf13/cobra"
	"github.com/tomlazar/table"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "List or switch fan control profiles",
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every profile and mark the active one",
	Run: func(cmd *cobra.Command, args []string) {
		client, ctx, cancel, err := dial()
		if err != nil {
			ui.Fatal("%v", err)
		}
		defer cancel()
		defer client.Close()

		cfg, err := client.GetConfig(ctx)
		if err != nil {
			ui.Fatal("Error fetching configuration: %v", err)
		}

		ids := make([]string, 0, len(cfg.Profiles))
		for id := range cfg.Profiles {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		rows := make([][]string, 0, len(ids))
		for _, id := range ids {
			profile := cfg.Profiles[id]
			active := ""
			if id == cfg.ActiveProfileId {
				active = "*"
			}
			def := ""
			if profile.IsDefault {
				def = "yes"
			}
			rows = append(rows, []string{active, profile.Id, profile.Name, def})
		}

		tab := table.Table{
			Headers: []string{"", "Id", "Name", "Default"},
			Rows:    rows,
		}
		var buf bytes.Buffer
		if err := tab.WriteTable(&buf, &table.Config{ShowIndex: false, Color: !global.NoColor}); err != nil {
			ui.Fatal("Error rendering table: %v", err)
		}
		ui.Printfln(buf.String())
	},
}

var profileSetCmd = &cobra.Command{
	Use:   "set <profile-id>",
	Short: "Switch the daemon's active profile",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client, ctx, cancel, err := dial()
		if err != nil {
			ui.Fatal("%v", err)
		}
		defer cancel()
		defer client.Close()

		if err := client.SetProfile(ctx, args[0]); err != nil {
			ui.Fatal("Error switching profile: %v", err)
		}
		ui.Printfln("Active profile set to %s", args[0])
	},
}

func init() {
	profileCmd.AddCommand(profileListCmd, profileSetCmd)
}
