// Package quant turns isotope-labelled peptide features into condition ratios and
// attaches spectrum-match provenance.
package quant

import (
	"math"
	"sort"

	"github.com/ChrisMcGann/silacde/pkg/core"
)

// SwapRule maps a replicate index to the isotope channel carrying the treatment
// condition. It must name every replicate; there is no default.
type SwapRule map[int]core.Channel

// TreatmentChannel returns the treatment channel of a replicate.
func (r SwapRule) TreatmentChannel(replicate int) (core.Channel, error) {
	ch, ok := r[replicate]
	if !ok {
		return 0, &core.ConfigError{Replicate: replicate, Err: core.ErrUnmappedReplicate}
	}
	return ch, nil
}

// ControlChannel returns the channel opposite to the treatment channel.
func (r SwapRule) ControlChannel(replicate int) (core.Channel, error) {
	ch, err := r.TreatmentChannel(replicate)
	if err != nil {
		return 0, err
	}
	if ch == core.ChannelHeavy {
		return core.ChannelLight, nil
	}
	return core.ChannelHeavy, nil
}

// Check verifies that every replicate is mapped. The lowest unmapped index is reported.
func (r SwapRule) Check(replicates []int) error {
	sorted := append([]int(nil), replicates...)
	sort.Ints(sorted)
	for _, rep := range sorted {
		if _, err := r.TreatmentChannel(rep); err != nil {
			return err
		}
	}
	return nil
}

// Annotate relabels heavy/light intensities as treatment/control using the swap rule.
func Annotate(features []core.PeptideFeature, rule SwapRule) ([]core.ConditionIntensity, error) {
	out := make([]core.ConditionIntensity, 0, len(features))
	for i := range features {
		f := &features[i]
		treatment, err := rule.TreatmentChannel(f.Replicate)
		if err != nil {
			return nil, err
		}
		control, _ := rule.ControlChannel(f.Replicate)

		out = append(out, core.ConditionIntensity{
			Sequence:      f.Sequence,
			Modifications: f.Modifications,
			Protein:       f.MasterProteinAccessions,
			Replicate:     f.Replicate,
			Treatment:     f.Intensity(treatment),
			Control:       f.Intensity(control),
		})
	}
	return out, nil
}

// LogTransform returns a copy of records with intensities on the log2 scale.
// Non-positive and missing intensities become NaN.
func LogTransform(records []core.ConditionIntensity) []core.ConditionIntensity {
	out := make([]core.ConditionIntensity, len(records))
	for i, rec := range records {
		rec.Treatment = log2OrNaN(rec.Treatment)
		rec.Control = log2OrNaN(rec.Control)
		out[i] = rec
	}
	return out
}

func log2OrNaN(v float64) float64 {
	if !core.IsFinite(v) || v <= 0 {
		return math.NaN()
	}
	return math.Log2(v)
}
