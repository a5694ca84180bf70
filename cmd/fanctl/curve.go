package fanctl

import (
	"sort"

	"github.com/fantuned/fantuned/internal/model"
	"github.com/fantuned/fantuned/internal/ui"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"
)

var curveCmd = &cobra.Command{
	Use:   "curve",
	Short: "Print every configured fan curve as an ASCII graph",
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

		if len(cfg.Curves) == 0 {
			ui.Printfln("No curves configured")
			return
		}

		ids := make([]string, 0, len(cfg.Curves))
		for id := range cfg.Curves {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		for idx, id := range ids {
			curve := cfg.Curves[id]
			if idx > 0 {
				ui.Printfln("")
			}
			ui.Printfln("%s (%s)", curve.Name, curve.Id)

			points := append([]model.CurvePoint(nil), curve.Points...)
			sort.Slice(points, func(i, j int) bool { return points[i].TemperatureC < points[j].TemperatureC })

			values := make([]float64, len(points))
			for i, p := range points {
				values[i] = p.Percent
			}
			if len(values) < 2 {
				ui.Printfln("Not enough points to plot")
				continue
			}

			graph := asciigraph.Plot(values,
				asciigraph.Height(12),
				asciigraph.Width(60),
				asciigraph.Caption("duty percent by curve point"),
			)
			ui.Printfln(graph)
		}
	},
}
