package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pollsite-census/internal/pollsite"
)

var geocodeCmd = &cobra.Command{
	Use:   "geocode",
	Short: "Geocode poll sites without coordinates and write the repaired extract",
	Long: `Assembles a postal address for every poll site lacking coordinates,
geocodes it, retries failures once through the corrections table, and writes
the repaired extract as CSV. Any site still unresolved fails the command.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext(cmd)
		defer stop()

		if err := cfg.Validate("geocode"); err != nil {
			return err
		}

		p, closeGeocoder, err := newPipeline(ctx)
		if err != nil {
			return err
		}
		defer closeGeocoder() //nolint:errcheck

		ext, _, err := p.LoadSites()
		if err != nil {
			return err
		}
		stats, err := p.Repair(ctx, ext.Sites)
		if err != nil {
			return err
		}

		out := os.Stdout
		if path, _ := cmd.Flags().GetString("out"); path != "" {
			f, err := os.Create(path)
			if err != nil {
				return eris.Wrapf(err, "geocode: create %s", path)
			}
			defer f.Close() //nolint:errcheck
			out = f
		}
		if err := pollsite.Write(out, ext.Sites); err != nil {
			return err
		}

		zap.L().Info("geocoding complete",
			zap.Int("missing", stats.Missing),
			zap.Int("first_pass", stats.FirstPass),
			zap.Int("corrected", stats.Corrected),
		)
		_, _ = fmt.Fprintf(os.Stderr, "%d sites missing coordinates: %d resolved, %d resolved after correction\n",
			stats.Missing, stats.FirstPass, stats.Corrected)
		return nil
	},
}

func init() {
	geocodeCmd.Flags().String("out", "", "write the repaired CSV here instead of stdout")
	rootCmd.AddCommand(geocodeCmd)
}
