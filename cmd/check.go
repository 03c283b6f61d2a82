package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sells-group/pollsite-census/internal/quality"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Report duplicates and missing values in the inputs",
	Long: `Loads the poll-site extract and prints its duplicate rows and per-column
missing counts. With --census the demographic extract is loaded too and
checked for repeated (tract, variable) records. Nothing is modified.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext(cmd)
		defer stop()

		withCensus, _ := cmd.Flags().GetBool("census")
		if err := cfg.Validate("check"); err != nil {
			return err
		}
		if withCensus {
			if err := cfg.Validate("tracts"); err != nil {
				return err
			}
		}

		p, closeGeocoder, err := newPipeline(ctx)
		if err != nil {
			return err
		}
		defer closeGeocoder() //nolint:errcheck

		_, q, err := p.LoadSites()
		if err != nil {
			return err
		}
		printQuality(os.Stdout, q)

		if withCensus {
			_, _, rr, err := p.LoadCensus(ctx)
			if err != nil {
				return err
			}
			printRecords(os.Stdout, rr)
		}
		return nil
	},
}

func init() {
	checkCmd.Flags().Bool("census", false, "also load and check the census demographic extract")
	rootCmd.AddCommand(checkCmd)
}

// printQuality writes a table report with problems highlighted.
func printQuality(w io.Writer, q *quality.Report) {
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	_, _ = fmt.Fprintf(w, "%s: %d rows\n", q.Name, q.Rows)
	if q.DuplicateRows > 0 {
		_, _ = red.Fprintf(w, "  %d duplicate rows\n", q.DuplicateRows)
	} else {
		_, _ = green.Fprintln(w, "  no duplicate rows")
	}
	for _, c := range q.Columns {
		n := q.Missing[c]
		if n == 0 {
			continue
		}
		_, _ = yellow.Fprintf(w, "  %-14s %d missing\n", c, n)
	}
	if q.Clean() {
		_, _ = green.Fprintln(w, "  clean")
	}
}

// printRecords writes the demographic record check.
func printRecords(w io.Writer, rr *quality.RecordReport) {
	green := color.New(color.FgGreen, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	_, _ = fmt.Fprintf(w, "demographics: %d records, %d tracts, %d variables, %d missing estimates\n",
		rr.Records, rr.Tracts, rr.Variables, rr.MissingEstimates)
	if rr.Unique() {
		_, _ = green.Fprintln(w, "  one record per (tract, variable)")
		return
	}
	for _, d := range rr.Duplicates {
		_, _ = red.Fprintf(w, "  %s appears %d times\n", d.Key, d.Count)
	}
}
