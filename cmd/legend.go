package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/riskgrid/internal/overlay"
	"github.com/sells-group/riskgrid/internal/scoring"
)

var legendCmd = &cobra.Command{
	Use:   "legend [attribute]",
	Short: "Print the map legend for a view mode",
	Long: `Print the color legend of the overall rating, or of a single attribute
(lighting_r, lst_celsiu, no2, uhi_intens, landcove_1, police_station).`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode := overlay.Mode{Overall: true}
		if len(args) == 1 {
			if !scoring.IsCriterion(args[0]) {
				return eris.Errorf("legend: unknown attribute %q", args[0])
			}
			mode = overlay.Mode{Attribute: args[0]}
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(overlay.Legend(mode))
		}
		formatLegend(os.Stdout, overlay.Legend(mode))
		return nil
	},
}

func init() {
	legendCmd.Flags().Bool("json", false, "print the legend as JSON")
	rootCmd.AddCommand(legendCmd)
}

// formatLegend writes the legend as a small table.
func formatLegend(out io.Writer, l overlay.LegendSpec) {
	_, _ = fmt.Fprintln(out, l.Title)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, e := range l.Entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", e.Color, e.Range, e.Label)
	}
	_ = w.Flush()
}
