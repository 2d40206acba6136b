package quant

import (
	"math"

	"github.com/ChrisMcGann/silacde/pkg/core"
)

// CalculateRatios computes log2(treatment/control) for log-scale condition intensities.
// Records with both conditions missing are dropped and counted. When only one condition
// is present the ratio is NaN and the missingness class names the present side.
func CalculateRatios(records []core.ConditionIntensity) ([]core.RatioRecord, int, error) {
	out := make([]core.RatioRecord, 0, len(records))
	dropped := 0

	for _, rec := range records {
		missing := core.ClassifyMissingness(rec.Treatment, rec.Control)
		if missing == core.BothMissing {
			dropped++
			continue
		}

		ratio := math.NaN()
		if missing == core.BothPresent {
			ratio = rec.Treatment - rec.Control
		}

		r := core.RatioRecord{
			Sequence:      rec.Sequence,
			Modifications: rec.Modifications,
			Protein:       rec.Protein,
			Replicate:     rec.Replicate,
			Treatment:     rec.Treatment,
			Control:       rec.Control,
			Ratio:         ratio,
			Missing:       missing,
			Match:         core.ProvenanceUnknown,
		}
		// The difference of two finite values can overflow
		if err := r.Validate(); err != nil {
			return nil, dropped, err
		}
		out = append(out, r)
	}

	return out, dropped, nil
}
