package protein

import (
	"errors"
	"math"
	"sort"
)

// SummaryFunc summarises the finite peptide ratios of one protein in one replicate.
type SummaryFunc func(values []float64) float64

// FlagFunc summarises one boolean peptide attribute to protein level.
type FlagFunc func(flags []bool) bool

// Policy names the aggregation applied to each protein-level field. Every field must
// be set; there is no implicit "first value wins" fallback.
type Policy struct {
	Ratio                  SummaryFunc
	AnyTreatmentNotMatched FlagFunc
	AnyControlNotMatched   FlagFunc
	AnyProvenanceUnknown   FlagFunc
}

// DefaultPolicy summarises ratios by median and flags a protein if any constituent
// peptide was not directly matched.
func DefaultPolicy() Policy {
	return Policy{
		Ratio:                  Median,
		AnyTreatmentNotMatched: Any,
		AnyControlNotMatched:   Any,
		AnyProvenanceUnknown:   Any,
	}
}

func (p Policy) validate() error {
	if p.Ratio == nil || p.AnyTreatmentNotMatched == nil || p.AnyControlNotMatched == nil || p.AnyProvenanceUnknown == nil {
		return errors.New("aggregation policy must set every field")
	}
	return nil
}

// Median returns the median of values, the mean of the two middle values for even
// counts, or NaN for no values.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// Any is true if any flag is set.
func Any(flags []bool) bool {
	for _, f := range flags {
		if f {
			return true
		}
	}
	return false
}

// All is true if every flag is set and there is at least one.
func All(flags []bool) bool {
	if len(flags) == 0 {
		return false
	}
	for _, f := range flags {
		if !f {
			return false
		}
	}
	return true
}
