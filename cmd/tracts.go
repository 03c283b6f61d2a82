package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/pollsite-census/internal/census"
)

var tractsCmd = &cobra.Command{
	Use:   "tracts",
	Short: "Load census tracts with their population",
	Long: `Downloads (or reads the configured local copies of) the TIGER/Line tract
polygons and the ACS population extract for the configured counties, joins
them by GEOID and lists the result.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext(cmd)
		defer stop()

		if err := cfg.Validate("tracts"); err != nil {
			return err
		}

		tracts, err := census.NewLoader(cfg.Census, newFetcher()).Tracts(ctx)
		if err != nil {
			return err
		}
		formatTracts(os.Stdout, tracts)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tractsCmd)
}

// formatTracts writes a tabular list of tracts to w.
func formatTracts(out io.Writer, tracts []census.Tract) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "GEOID\tCOUNTY\tNAME\tPOPULATION\tPOLYGONS")
	for _, t := range tracts {
		pop := ""
		if t.Population != nil {
			pop = strconv.FormatFloat(*t.Population, 'f', -1, 64)
		}
		polygons := 0
		if t.Geometry != nil {
			polygons = t.Geometry.NumPolygons()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", t.GEOID, t.CountyFIPS, t.Name, pop, polygons)
	}
	_ = w.Flush()
	_, _ = fmt.Fprintf(out, "%d tracts\n", len(tracts))
}
