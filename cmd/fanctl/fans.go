package fanctl

import (
	"bytes"
	"fmt"

	"github.com/fantuned/fantuned/cmd/global"
	"github.com/fantuned/fantuned/internal/ui"
	"github.com/spf13/cobra"
	"github.com/tomlazar/table"
)

var fansCmd = &cobra.Command{
	Use:   "fans",
	Short: "List every fan known to the daemon",
	Run: func(cmd *cobra.Command, args []string) {
		client, ctx, cancel, err := dial()
		if err != nil {
			ui.Fatal("%v", err)
		}
		defer cancel()
		defer client.Close()

		fans, err := client.GetFans(ctx)
		if err != nil {
			ui.Fatal("Error fetching fans: %v", err)
		}

		rows := make([][]string, 0, len(fans))
		for _, f := range fans {
			duty := "n/a"
			if f.DutyPercent != nil {
				duty = fmt.Sprintf("%.1f%%", *f.DutyPercent)
			}
			rows = append(rows, []string{f.Key, f.DisplayName, f.HardwareName, f.Capability, fmt.Sprintf("%d", f.Rpm), duty})
		}

		tab := table.Table{
			Headers: []string{"Key", "Name", "Hardware", "Capability", "RPM", "Duty"},
			Rows:    rows,
		}
		var buf bytes.Buffer
		if err := tab.WriteTable(&buf, &table.Config{ShowIndex: false, Color: !global.NoColor}); err != nil {
			ui.Fatal("Error rendering table: %v", err)
		}
		ui.Printfln(buf.String())
	},
}

var setSpeedCmd = &cobra.Command{
	Use:   "set-speed <fan-key> <percent>",
	Short: "Manually set a fan's duty cycle percent",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		var percent float64
		if _, err := fmt.Sscanf(args[1], "%f", &percent); err != nil {
			ui.Fatal("Invalid percent %q: %v", args[1], err)
		}

		client, ctx, cancel, err := dial()
		if err != nil {
			ui.Fatal("%v", err)
		}
		defer cancel()
		defer client.Close()

		if err := client.SetFanSpeed(ctx, args[0], percent); err != nil {
			ui.Fatal("Error setting fan speed: %v", err)
		}
		ui.Printfln("Set %s to %.1f%%", args[0], percent)
	},
}
