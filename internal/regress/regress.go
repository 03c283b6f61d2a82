// Package regress fits ordinary least squares models of poll-site counts on
// tract demographics.
package regress

import (
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// rcond is the relative singular-value cutoff used to determine rank.
const rcond = 1e-12

// ErrSingular is returned when the design matrix is rank deficient and the
// fit was not allowed to fall back to the pseudo-inverse.
var ErrSingular = eris.New("regress: design matrix is singular")

// InterceptName labels the constant term.
const InterceptName = "const"

// Coefficient is one fitted parameter.
type Coefficient struct {
	Name     string
	Estimate float64
	StdErr   float64
	T        float64
	P        float64 // two-sided
}

// Result is a fitted OLS model.
type Result struct {
	Name           string
	N              int
	Rank           int
	DFModel        int
	DFResid        int
	Coefficients   []Coefficient
	RSquared       float64
	AdjRSquared    float64
	F              float64
	FPValue        float64
	ResidualStdErr float64
	Cond           float64
	// Dropped counts input rows removed for missing values before fitting.
	Dropped int
}

// Coefficient looks up a parameter by name.
func (r *Result) Coefficient(name string) (Coefficient, bool) {
	for _, c := range r.Coefficients {
		if c.Name == name {
			return c, true
		}
	}
	return Coefficient{}, false
}

// RankDeficient reports whether the design had collinear columns.
func (r *Result) RankDeficient() bool {
	return r.Rank < len(r.Coefficients)
}

type options struct {
	pinv bool
}

// Option configures Fit.
type Option func(*options)

// WithPseudoInverse lets Fit solve a rank-deficient design with the
// minimum-norm pseudo-inverse instead of returning ErrSingular.
func WithPseudoInverse() Option {
	return func(o *options) { o.pinv = true }
}

// Fit regresses y on the columns of x plus an intercept. x holds one slice
// per observation; names labels its columns.
func Fit(name string, y []float64, x [][]float64, names []string, opts ...Option) (*Result, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	n := len(y)
	if n != len(x) {
		return nil, eris.Errorf("regress: %s has %d responses but %d observations", name, n, len(x))
	}
	p := len(names) + 1
	if n == 0 {
		return nil, eris.Errorf("regress: %s has no observations", name)
	}

	design := mat.NewDense(n, p, nil)
	for i, row := range x {
		if len(row) != len(names) {
			return nil, eris.Errorf("regress: %s observation %d has %d values, want %d", name, i, len(row), len(names))
		}
		design.Set(i, 0, 1)
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, eris.Errorf("regress: %s observation %d has non-finite %s", name, i, names[j])
			}
			design.Set(i, j+1, v)
		}
	}

	var svd mat.SVD
	if !svd.Factorize(design, mat.SVDThin) {
		return nil, eris.Errorf("regress: %s: SVD factorization failed", name)
	}
	rank := svd.Rank(rcond)
	if rank < p && !o.pinv {
		return nil, eris.Wrapf(ErrSingular, "regress: %s has rank %d with %d columns", name, rank, p)
	}
	dfResid := n - rank
	if dfResid < 1 {
		return nil, eris.Errorf("regress: %s has %d observations for %d parameters", name, n, rank)
	}
	if rank < p {
		zap.L().With(zap.String("component", "regress")).Warn("rank-deficient design, using pseudo-inverse",
			zap.String("model", name), zap.Int("rank", rank), zap.Int("columns", p))
	}

	yv := mat.NewVecDense(n, append([]float64(nil), y...))
	var beta mat.VecDense
	svd.SolveVecTo(&beta, yv, rank)

	var fitted mat.VecDense
	fitted.MulVec(design, &beta)
	var mean float64
	for _, v := range y {
		mean += v
	}
	mean /= float64(n)
	var rss, tss float64
	for i, v := range y {
		e := v - fitted.AtVec(i)
		rss += e * e
		d := v - mean
		tss += d * d
	}
	if tss == 0 {
		return nil, eris.Errorf("regress: %s response has no variance", name)
	}

	sigma2 := rss / float64(dfResid)
	cov := pseudoCovariance(&svd, rank, p)

	tdist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(dfResid)}
	labels := append([]string{InterceptName}, names...)
	coefs := make([]Coefficient, p)
	for j := range p {
		c := Coefficient{Name: labels[j], Estimate: beta.AtVec(j)}
		c.StdErr = math.Sqrt(sigma2 * cov.At(j, j))
		if c.StdErr > 0 {
			c.T = c.Estimate / c.StdErr
			c.P = 2 * tdist.Survival(math.Abs(c.T))
		} else {
			c.T = math.NaN()
			c.P = math.NaN()
		}
		coefs[j] = c
	}

	dfModel := rank - 1
	r2 := 1 - rss/tss
	res := &Result{
		Name:           name,
		N:              n,
		Rank:           rank,
		DFModel:        dfModel,
		DFResid:        dfResid,
		Coefficients:   coefs,
		RSquared:       r2,
		AdjRSquared:    1 - (1-r2)*float64(n-1)/float64(dfResid),
		ResidualStdErr: math.Sqrt(sigma2),
		Cond:           svd.Cond(),
		F:              math.NaN(),
		FPValue:        math.NaN(),
	}
	if dfModel > 0 {
		if rss == 0 {
			res.F, res.FPValue = math.Inf(1), 0
		} else {
			res.F = ((tss - rss) / float64(dfModel)) / sigma2
			res.FPValue = distuv.F{D1: float64(dfModel), D2: float64(dfResid)}.Survival(res.F)
		}
	}
	return res, nil
}

// pseudoCovariance returns (XᵀX)⁺ = V Σ⁻² Vᵀ over the leading rank singular
// values.
func pseudoCovariance(svd *mat.SVD, rank, p int) *mat.Dense {
	var v mat.Dense
	svd.VTo(&v)
	s := svd.Values(nil)

	cov := mat.NewDense(p, p, nil)
	for i := range p {
		for j := i; j < p; j++ {
			var sum float64
			for k := range rank {
				sum += v.At(i, k) * v.At(j, k) / (s[k] * s[k])
			}
			cov.Set(i, j, sum)
			cov.Set(j, i, sum)
		}
	}
	return cov
}
