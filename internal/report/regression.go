package report

import (
	"fmt"
	"io"
	"math"
	"text/tabwriter"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pollsite-census/internal/regress"
)

// WriteRegression prints both model summaries as fixed-width tables.
func WriteRegression(w io.Writer, m *regress.Models) error {
	for i, r := range []*regress.Result{m.A, m.B} {
		if r == nil {
			continue
		}
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return eris.Wrap(err, "report: write regression")
			}
		}
		if err := writeModel(w, r); err != nil {
			return err
		}
	}
	return nil
}

func writeModel(w io.Writer, r *regress.Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "Model %s\n", r.Name)
	fmt.Fprintf(tw, "Observations:\t%d\tDropped (missing values):\t%d\t\n", r.N, r.Dropped)
	fmt.Fprintf(tw, "R-squared:\t%.4f\tAdj. R-squared:\t%.4f\t\n", r.RSquared, r.AdjRSquared)
	fmt.Fprintf(tw, "F-statistic:\t%s\tProb (F):\t%s\t\n", num(r.F, "%.3f"), pvalue(r.FPValue))
	fmt.Fprintf(tw, "Df model:\t%d\tDf residuals:\t%d\t\n", r.DFModel, r.DFResid)
	fmt.Fprintf(tw, "Residual std. error:\t%.4f\tCondition number:\t%.3g\t\n", r.ResidualStdErr, r.Cond)
	if r.RankDeficient() {
		fmt.Fprintf(tw, "Rank:\t%d of %d\t(collinear columns, minimum-norm solution)\t\t\n", r.Rank, len(r.Coefficients))
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "\tcoef\tstd err\tt\tP>|t|\t")
	for _, c := range r.Coefficients {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t\n",
			c.Name, num(c.Estimate, "%.6g"), num(c.StdErr, "%.6g"), num(c.T, "%.3f"), pvalue(c.P))
	}
	return eris.Wrap(tw.Flush(), "report: write regression")
}

func num(v float64, format string) string {
	if math.IsNaN(v) {
		return "nan"
	}
	if math.IsInf(v, 0) {
		return "inf"
	}
	return fmt.Sprintf(format, v)
}

func pvalue(p float64) string {
	if math.IsNaN(p) {
		return "nan"
	}
	if p < 0.001 {
		return "<0.001"
	}
	return fmt.Sprintf("%.3f", p)
}
