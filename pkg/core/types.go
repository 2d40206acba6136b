// Package core provides the intermediate representation (IR) models and validation logic
// for SILAC peptide and protein quantification data used by silacde.
package core

import (
	"fmt"
	"math"
	"strings"
)

// Channel identifies a SILAC isotope label channel.
type Channel int

const (
	ChannelLight Channel = iota
	ChannelHeavy
)

func (c Channel) String() string {
	switch c {
	case ChannelLight:
		return "light"
	case ChannelHeavy:
		return "heavy"
	default:
		return fmt.Sprintf("channel(%d)", int(c))
	}
}

// ParseChannel parses "light" or "heavy" (case-insensitive).
func ParseChannel(s string) (Channel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "light":
		return ChannelLight, nil
	case "heavy":
		return ChannelHeavy, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidChannel, s)
	}
}

// FeatureID holds the identifying fields shared by peptide and PSM level features.
type FeatureID struct {
	Sequence                string // Peptide sequence as exported
	Modifications           string // Modification string as exported
	Replicate               int
	MasterProteinAccessions string // "; "-separated accessions
	ProteinGroups           int    // Number of protein groups (0 = not reported)
	Contaminant             bool
}

// Accessions splits the master protein accessions into individual accessions.
func (id *FeatureID) Accessions() []string {
	if strings.TrimSpace(id.MasterProteinAccessions) == "" {
		return nil
	}
	var out []string
	for _, acc := range strings.Split(id.MasterProteinAccessions, ";") {
		acc = strings.TrimSpace(acc)
		if acc != "" {
			out = append(out, acc)
		}
	}
	return out
}

// PeptideFeature is one peptide-level quantification row. Missing intensities are NaN.
type PeptideFeature struct {
	FeatureID
	LightIntensity float64
	HeavyIntensity float64
}

// Intensity returns the intensity measured in the given channel.
func (f *PeptideFeature) Intensity(c Channel) float64 {
	if c == ChannelHeavy {
		return f.HeavyIntensity
	}
	return f.LightIntensity
}

// PSMFeature is one peptide-spectrum match row.
type PSMFeature struct {
	FeatureID
	QuanChannel        string  // "Light", "Heavy" or empty
	PrecursorAbundance float64 // NaN when not reported
}

// MatchedChannel returns the channel this PSM was identified in.
func (p *PSMFeature) MatchedChannel() (Channel, bool) {
	c, err := ParseChannel(p.QuanChannel)
	if err != nil {
		return 0, false
	}
	return c, true
}

// ConditionIntensity is a peptide feature relabelled from isotope channels to conditions.
type ConditionIntensity struct {
	Sequence      string
	Modifications string
	Protein       string
	Replicate     int
	Treatment     float64
	Control       float64
}

// Missingness records which condition intensities are present.
type Missingness int

const (
	BothPresent Missingness = iota
	TreatmentOnly
	ControlOnly
	BothMissing
)

func (m Missingness) String() string {
	switch m {
	case BothPresent:
		return "both present"
	case TreatmentOnly:
		return "treatment only"
	case ControlOnly:
		return "control only"
	case BothMissing:
		return "both missing"
	default:
		return fmt.Sprintf("missingness(%d)", int(m))
	}
}

// ClassifyMissingness derives the missingness class of a treatment/control pair.
func ClassifyMissingness(treatment, control float64) Missingness {
	t, c := IsFinite(treatment), IsFinite(control)
	switch {
	case t && c:
		return BothPresent
	case t:
		return TreatmentOnly
	case c:
		return ControlOnly
	default:
		return BothMissing
	}
}

// MatchStatus records which condition channels were identified by a spectrum match.
type MatchStatus int

const (
	// ProvenanceUnknown means no PSM row was found for the peptide.
	ProvenanceUnknown MatchStatus = iota
	BothMatched
	TreatmentMatchedOnly
	ControlMatchedOnly
	// NeitherMatched means PSM rows exist but none identified either channel.
	NeitherMatched
)

func (s MatchStatus) String() string {
	switch s {
	case ProvenanceUnknown:
		return "provenance unknown"
	case BothMatched:
		return "both matched"
	case TreatmentMatchedOnly:
		return "treatment matched only"
	case ControlMatchedOnly:
		return "control matched only"
	case NeitherMatched:
		return "neither matched"
	default:
		return fmt.Sprintf("match(%d)", int(s))
	}
}

// MatchStatusOf combines the two spectrum-match indicators.
func MatchStatusOf(treatmentMatched, controlMatched bool) MatchStatus {
	switch {
	case treatmentMatched && controlMatched:
		return BothMatched
	case treatmentMatched:
		return TreatmentMatchedOnly
	case controlMatched:
		return ControlMatchedOnly
	default:
		return NeitherMatched
	}
}

// TreatmentMatched reports whether the treatment channel was directly identified.
func (s MatchStatus) TreatmentMatched() bool {
	return s == BothMatched || s == TreatmentMatchedOnly
}

// ControlMatched reports whether the control channel was directly identified.
func (s MatchStatus) ControlMatched() bool {
	return s == BothMatched || s == ControlMatchedOnly
}

// Known reports whether provenance information was found.
func (s MatchStatus) Known() bool {
	return s != ProvenanceUnknown
}

// RatioRecord is the log2 treatment/control ratio of one peptide in one replicate.
type RatioRecord struct {
	Sequence      string
	Modifications string
	Protein       string
	Replicate     int
	Treatment     float64 // log2 intensity
	Control       float64 // log2 intensity
	Ratio         float64 // treatment - control; NaN unless BothPresent
	Missing       Missingness
	Match         MatchStatus
}

// Validate checks that the ratio is finite exactly when both conditions are present.
func (r *RatioRecord) Validate() error {
	if IsFinite(r.Ratio) != (r.Missing == BothPresent) {
		return &ValidationError{
			Field: "RatioRecord",
			Message: fmt.Sprintf("%s replicate %d: ratio %v inconsistent with %q",
				r.Sequence, r.Replicate, r.Ratio, r.Missing),
		}
	}
	return nil
}

// ProteinRatioRecord is the summarised ratio of one protein in one replicate.
type ProteinRatioRecord struct {
	Protein                string
	Replicate              int
	Ratio                  float64 // NaN when no peptide contributed
	PeptideCount           int
	AnyTreatmentNotMatched bool
	AnyControlNotMatched   bool
	AnyProvenanceUnknown   bool
}

// DifferentialResult holds the per-protein test outcome.
type DifferentialResult struct {
	Protein         string
	LogFC           float64 // positive: elevated in treatment
	T               float64 // ordinary t statistic
	PValue          float64 // raw p-value
	SCAT            float64 // count-adjusted moderated t statistic
	SCAPValue       float64 // count-adjusted (shrunk) p-value
	AdjPValue       float64 // Benjamini-Hochberg adjusted SCAPValue
	MinPeptideCount int
	Replicates      int // replicates with a quantified ratio
	MatchSummary    string
}

// PeptideKey identifies a peptide independent of isotope label and sequence case.
type PeptideKey struct {
	Sequence      string
	Modifications string
}

func (k PeptideKey) String() string {
	if k.Modifications == "" {
		return k.Sequence
	}
	return k.Sequence + "[" + k.Modifications + "]"
}

// IsFinite reports whether v is neither NaN nor infinite.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
