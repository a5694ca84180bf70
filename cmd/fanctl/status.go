package fanctl

import (
	"github.com/fantuned/fantuned/internal/ui"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the running daemon's status",
	Run: func(cmd *cobra.Command, args []string) {
		client, ctx, cancel, err := dial()
		if err != nil {
			ui.Fatal("%v", err)
		}
		defer cancel()
		defer client.Close()

		status, err := client.GetStatus(ctx)
		if err != nil {
			ui.Fatal("Error fetching status: %v", err)
		}

		ui.Printfln("Version:         %s", status.Version)
		ui.Printfln("Uptime:          %.0fs", status.UptimeSeconds)
		ui.Printfln("Active profile:  %s (%s)", status.ActiveProfileName, status.ActiveProfileId)
		ui.Printfln("Connected clients: %d", status.ConnectedClientCount)
		if status.Emergency {
			ui.Printfln("EMERGENCY: %s", status.EmergencyReason)
		} else {
			ui.Printfln("Emergency state: normal")
		}
		for _, w := range status.Warnings {
			ui.Printfln("warning: %s", w)
		}
	},
}
