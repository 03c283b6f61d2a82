package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pollsite-census/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full analysis and write the report",
	Long: `Loads poll sites and census data, geocodes sites without coordinates,
joins sites to tracts, fits both regression models and writes the report
directory. With store.database_url set the run is also exported to Postgres.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext(cmd)
		defer stop()

		if out, _ := cmd.Flags().GetString("out"); out != "" {
			cfg.Report.OutputDir = out
		}
		if err := cfg.Validate("run"); err != nil {
			return err
		}

		var opts []pipeline.Option
		if noMaps, _ := cmd.Flags().GetBool("no-maps"); noMaps {
			opts = append(opts, pipeline.WithoutMaps())
		}
		if noStore, _ := cmd.Flags().GetBool("no-store"); !noStore {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			if st != nil {
				defer st.Close() //nolint:errcheck
				opts = append(opts, pipeline.WithStore(st))
			}
		}

		p, closeGeocoder, err := newPipeline(ctx, opts...)
		if err != nil {
			return err
		}
		defer closeGeocoder() //nolint:errcheck

		res, err := p.Run(ctx)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("analysis complete",
			zap.String("run_id", res.RunID),
			zap.Int("tracts", len(res.Summaries)),
			zap.Float64("r_squared_a", res.Models.A.RSquared),
			zap.Float64("r_squared_b", res.Models.B.RSquared),
		)
		formatRunResult(os.Stdout, res)
		return nil
	},
}

func init() {
	runCmd.Flags().String("out", "", "report directory (overrides report.output_dir)")
	runCmd.Flags().Bool("no-maps", false, "skip rendering the borough maps")
	runCmd.Flags().Bool("no-store", false, "skip the Postgres export even when configured")
	rootCmd.AddCommand(runCmd)
}

// formatRunResult writes the phase timings and written files of a run to w.
func formatRunResult(out io.Writer, res *pipeline.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", res.RunID)
	_, _ = fmt.Fprintf(w, "Tracts:\t%d\n", len(res.Summaries))
	_, _ = fmt.Fprintf(w, "Sites:\t%d\n", len(res.Sites))
	if res.Models != nil {
		_, _ = fmt.Fprintf(w, "R-squared A:\t%.4f\n", res.Models.A.RSquared)
		_, _ = fmt.Fprintf(w, "R-squared B:\t%.4f\n", res.Models.B.RSquared)
	}
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "PHASE\tDURATION")
	for _, p := range res.Phases {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", p.Name, p.Duration.Round(time.Millisecond))
	}
	_, _ = fmt.Fprintln(w)
	for _, f := range res.Files {
		_, _ = fmt.Fprintf(w, "wrote\t%s\n", f)
	}
	_ = w.Flush()
}
