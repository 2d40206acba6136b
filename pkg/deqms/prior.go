package deqms

import (
	"math"

	"gonum.org/v1/gonum/mathext"
)

func digamma(x float64) float64 {
	return mathext.Digamma(x)
}

func trigamma(x float64) float64 {
	return mathext.Zeta(2, x)
}

func tetragamma(x float64) float64 {
	return -2 * mathext.Zeta(3, x)
}

// trigammaInverse solves trigamma(y) = x for y by Newton iteration.
func trigammaInverse(x float64) float64 {
	switch {
	case math.IsNaN(x) || x < 0:
		return math.NaN()
	case x > 1e7:
		return 1 / math.Sqrt(x)
	case x < 1e-6:
		return 1 / x
	}

	y := 0.5 + 1/x
	for iter := 0; iter < 50; iter++ {
		tri := trigamma(y)
		dif := tri * (1 - tri/x) / tetragamma(y)
		y += dif
		if -dif/y < 1e-8 {
			break
		}
	}
	return y
}

// floorVariances clamps residual variances away from zero at 1e-5 times their median.
func floorVariances(s2 []float64) []float64 {
	m := median(s2)
	if m <= 0 {
		m = 1
	}
	out := make([]float64, len(s2))
	for i, v := range s2 {
		out[i] = math.Max(v, 1e-5*m)
	}
	return out
}

// countPrior is the peptide-count dependent prior of the residual variances.
type countPrior struct {
	df  float64   // prior degrees of freedom, +Inf when the data show no extra variability
	s02 []float64 // prior variance per protein
}

// estimateCountPrior estimates the prior variance trend over log2 peptide count and
// the prior degrees of freedom by the method of moments.
func estimateCountPrior(s2, df []float64, counts []int, span float64) countPrior {
	n := len(s2)
	logVar := make([]float64, n)
	logCount := make([]float64, n)
	for i := range s2 {
		logVar[i] = math.Log(s2[i])
		logCount[i] = math.Log2(float64(counts[i]))
	}

	trend := localRegression(logCount, logVar, span)

	temp := make([]float64, n)
	var meanTemp, meanTri float64
	for i := range temp {
		temp[i] = logVar[i] - trend[i] - digamma(df[i]/2) + math.Log(df[i]/2)
		meanTemp += temp[i]
		meanTri += trigamma(df[i] / 2)
	}
	meanTemp /= float64(n)
	meanTri /= float64(n)

	// Sample variance of temp less its expected sampling variance
	evar := -meanTri
	if n > 1 {
		var ss float64
		for _, v := range temp {
			ss += (v - meanTemp) * (v - meanTemp)
		}
		evar += ss / float64(n-1)
	}

	prior := countPrior{s02: make([]float64, n)}
	if evar > 0 {
		prior.df = 2 * trigammaInverse(evar)
		for i := range prior.s02 {
			prior.s02[i] = math.Exp(trend[i] + meanTemp + digamma(prior.df/2) - math.Log(prior.df/2))
		}
	} else {
		prior.df = math.Inf(1)
		for i := range prior.s02 {
			prior.s02[i] = math.Exp(trend[i] + meanTemp)
		}
	}
	return prior
}

// posterior combines a residual variance with the prior.
func (p countPrior) posterior(i int, s2, df float64) (postVar, postDF float64) {
	if math.IsInf(p.df, 1) {
		return p.s02[i], math.Inf(1)
	}
	return (p.df*p.s02[i] + df*s2) / (p.df + df), p.df + df
}
