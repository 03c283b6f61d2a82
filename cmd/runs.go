package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/pollsite-census/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List runs exported to Postgres, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext(cmd)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		if st == nil {
			return eris.New("runs: store.database_url is not set")
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := st.ListRuns(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "runs")
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No exported runs.")
			return nil
		}
		formatRunsList(os.Stdout, runs)
		return nil
	},
}

func init() {
	runsCmd.Flags().Int("limit", 20, "max number of runs to list")
	rootCmd.AddCommand(runsCmd)
}

var runsHeader = []string{"RUN", "STARTED", "TOOK", "TRACTS", "SITES", "R2_A", "R2_B", "GAIN"}

// formatRunsList prints one line per run. GAIN is how much R² the
// demographic covariates add over population alone.
func formatRunsList(out io.Writer, runs []store.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	rule := make([]string, len(runsHeader))
	for i, h := range runsHeader {
		rule[i] = strings.Repeat("-", len(h))
	}
	_, _ = fmt.Fprintln(w, strings.Join(runsHeader, "\t"))
	_, _ = fmt.Fprintln(w, strings.Join(rule, "\t"))
	for _, r := range runs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%.4f\t%.4f\t%+.4f\n",
			shortID(r.ID),
			r.StartedAt.Format("2006-01-02 15:04"),
			r.FinishedAt.Sub(r.StartedAt).Round(time.Second),
			r.Tracts, r.Sites,
			r.RSquaredA, r.RSquaredB, r.RSquaredB-r.RSquaredA,
		)
	}
	_ = w.Flush()
}

// shortID keeps the first group of a UUID run id.
func shortID(id string) string {
	head, _, _ := strings.Cut(id, "-")
	return head
}
