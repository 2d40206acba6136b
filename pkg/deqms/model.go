// Package deqms tests protein log-ratios against zero with peptide-count dependent
// variance shrinkage, following the limma/DEqMS empirical Bayes procedure.
package deqms

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// linearFit is the least squares fit of one protein.
type linearFit struct {
	coef          float64 // intercept, the mean log-ratio
	stdevUnscaled float64 // sqrt((X'X)^-1)
	s2            float64 // residual variance
	df            float64 // residual degrees of freedom
	n             int
}

// lmFit fits an intercept-only linear model to the finite values of y.
func lmFit(y []float64) (linearFit, error) {
	var obs []float64
	for _, v := range y {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			obs = append(obs, v)
		}
	}

	n, p := len(obs), 1
	if n <= p {
		return linearFit{}, fmt.Errorf("%w: %d observations for %d coefficients", ErrDegenerateDesign, n, p)
	}

	design := mat.NewDense(n, p, nil)
	for i := 0; i < n; i++ {
		design.Set(i, 0, 1)
	}
	response := mat.NewVecDense(n, obs)

	var beta mat.VecDense
	if err := beta.SolveVec(design, response); err != nil {
		return linearFit{}, fmt.Errorf("failed to solve least squares: %w", err)
	}

	var fitted, resid mat.VecDense
	fitted.MulVec(design, &beta)
	resid.SubVec(response, &fitted)

	var xtx, xtxInv mat.Dense
	xtx.Mul(design.T(), design)
	if err := xtxInv.Inverse(&xtx); err != nil {
		return linearFit{}, fmt.Errorf("%w: %v", ErrDegenerateDesign, err)
	}

	df := float64(n - p)
	return linearFit{
		coef:          beta.AtVec(0),
		stdevUnscaled: math.Sqrt(xtxInv.At(0, 0)),
		s2:            mat.Dot(&resid, &resid) / df,
		df:            df,
		n:             n,
	}, nil
}

// ordinaryT returns the unmoderated t statistic and its two-sided p-value.
func (f linearFit) ordinaryT() (float64, float64) {
	t := f.coef / f.stdevUnscaled / math.Sqrt(f.s2)
	return t, twoSidedP(t, f.df)
}

// twoSidedP returns P(|T| > |t|) for a Student t with df degrees of freedom. An
// infinite df gives the normal limit.
func twoSidedP(t, df float64) float64 {
	if math.IsNaN(t) {
		return math.NaN()
	}
	if math.IsInf(df, 1) {
		return 2 * distuv.UnitNormal.Survival(math.Abs(t))
	}
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return 2 * dist.Survival(math.Abs(t))
}
