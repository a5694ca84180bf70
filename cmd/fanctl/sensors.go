package fanctl

import (
	"bytes"
	"fmt"

	"github.com/fantuned/fantuned/cmd/global"
	"github.com/fantuned/fantuned/internal/ui"
	"github.com/spf13/cobra"
	"github.com/tomlazar/table"
)

var sensorsCmd = &cobra.Command{
	Use:   "sensors",
	Short: "List every sensor reading known to the daemon",
	Run: func(cmd *cobra.Command, args []string) {
		client, ctx, cancel, err := dial()
		if err != nil {
			ui.Fatal("%v", err)
		}
		defer cancel()
		defer client.Close()

		sensors, err := client.GetSensors(ctx)
		if err != nil {
			ui.Fatal("Error fetching sensors: %v", err)
		}

		rows := make([][]string, 0, len(sensors))
		for _, s := range sensors {
			status := "ok"
			if s.IsStale {
				status = "stale"
			}
			rows = append(rows, []string{s.Key, s.DisplayName, s.HardwareName, s.HardwareKind, fmt.Sprintf("%.1f%s", s.Value, s.Unit), status})
		}

		tab := table.Table{
			Headers: []string{"Key", "Name", "Hardware", "Kind", "Value", "Status"},
			Rows:    rows,
		}
		var buf bytes.Buffer
		if err := tab.WriteTable(&buf, &table.Config{ShowIndex: false, Color: !global.NoColor}); err != nil {
			ui.Fatal("Error rendering table: %v", err)
		}
		ui.Printfln(buf.String())
	},
}
