package deqms

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// localRegression returns the fitted values of a tricube weighted local linear
// regression of y on x. Each fit uses the nearest ceil(span*n) points.
func localRegression(x, y []float64, span float64) []float64 {
	n := len(x)
	q := int(math.Ceil(span * float64(n)))
	if q < 1 {
		q = 1
	}
	if q > n {
		q = n
	}

	fitted := make([]float64, n)
	dist := make([]float64, n)
	sorted := make([]float64, n)
	weights := make([]float64, n)

	for i := range x {
		for j := range x {
			dist[j] = math.Abs(x[j] - x[i])
		}
		copy(sorted, dist)
		sort.Float64s(sorted)
		maxDist := sorted[q-1]

		for j := range x {
			switch {
			case maxDist == 0:
				if dist[j] == 0 {
					weights[j] = 1
				} else {
					weights[j] = 0
				}
			case dist[j] < maxDist:
				u := dist[j] / maxDist
				weights[j] = math.Pow(1-u*u*u, 3)
			default:
				weights[j] = 0
			}
		}

		if constantWhereWeighted(x, weights) {
			fitted[i] = stat.Mean(y, weights)
			continue
		}
		alpha, beta := stat.LinearRegression(x, y, weights, false)
		fitted[i] = alpha + beta*x[i]
	}
	return fitted
}

// constantWhereWeighted reports whether all x with positive weight are equal
func constantWhereWeighted(x, weights []float64) bool {
	first := math.NaN()
	for j, w := range weights {
		if w <= 0 {
			continue
		}
		if math.IsNaN(first) {
			first = x[j]
			continue
		}
		if x[j] != first {
			return false
		}
	}
	return true
}
