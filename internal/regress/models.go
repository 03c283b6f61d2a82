package regress

import (
	"go.uber.org/zap"

	"github.com/sells-group/pollsite-census/internal/aggregate"
	"github.com/sells-group/pollsite-census/internal/census"
)

// Model names.
const (
	ModelA = "A: count ~ population"
	ModelB = "B: count ~ population + income + race"
)

// Covariate column names.
const (
	PopulationColumn = "population"
	IncomeColumn     = "income_to_poverty"
)

type covariate struct {
	name  string
	value func(aggregate.TractSummary) *float64
}

func population() covariate {
	return covariate{PopulationColumn, func(s aggregate.TractSummary) *float64 { return s.Population }}
}

func covariatesB() []covariate {
	cols := []covariate{
		population(),
		{IncomeColumn, func(s aggregate.TractSummary) *float64 { return s.IncomeToPoverty }},
	}
	for _, c := range census.RaceCategories {
		cols = append(cols, covariate{c.Column(), func(s aggregate.TractSummary) *float64 { return s.RacePercent[c] }})
	}
	return cols
}

// Models holds both fitted models.
type Models struct {
	A *Result
	B *Result
}

// frame builds the response and design rows for the given covariates,
// dropping any tract with a missing value (listwise).
func frame(rows []aggregate.TractSummary, cols []covariate) (y []float64, x [][]float64, names []string, dropped int) {
	names = make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.name
	}
next:
	for _, r := range rows {
		obs := make([]float64, len(cols))
		for i, c := range cols {
			v := c.value(r)
			if v == nil {
				dropped++
				continue next
			}
			obs[i] = *v
		}
		y = append(y, float64(r.PollSiteCount))
		x = append(x, obs)
	}
	return y, x, names, dropped
}

// FitModels fits Model A (count on population) and Model B (count on
// population, income-to-poverty and the race shares). The race shares sum to
// 100 and are collinear with the intercept, so Model B is solved with the
// pseudo-inverse.
func FitModels(rows []aggregate.TractSummary) (*Models, error) {
	log := zap.L().With(zap.String("component", "regress"))

	y, x, names, dropped := frame(rows, []covariate{population()})
	a, err := Fit(ModelA, y, x, names)
	if err != nil {
		return nil, err
	}
	a.Dropped = dropped

	y, x, names, dropped = frame(rows, covariatesB())
	b, err := Fit(ModelB, y, x, names, WithPseudoInverse())
	if err != nil {
		return nil, err
	}
	b.Dropped = dropped

	for _, m := range []*Result{a, b} {
		log.Info("fitted model",
			zap.String("model", m.Name),
			zap.Int("n", m.N),
			zap.Int("dropped", m.Dropped),
			zap.Float64("r_squared", m.RSquared),
			zap.Float64("f", m.F),
		)
	}
	return &Models{A: a, B: b}, nil
}
