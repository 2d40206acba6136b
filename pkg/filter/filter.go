// Package filter provides feature filtering for peptide and PSM tables
package filter

import (
	"github.com/ChrisMcGann/silacde/pkg/core"
)

// Reason names why a feature was removed
type Reason string

const (
	Kept                Reason = ""
	NoMasterProtein     Reason = "no master protein"
	FlaggedContaminant  Reason = "flagged contaminant"
	ContaminantProtein  Reason = "contaminant protein"
	SharedProteinGroups Reason = "multiple protein groups"
)

// Config holds filtering configuration
type Config struct {
	Contaminants         map[string]struct{} // Contaminant accessions (nil = none)
	RequireUniqueProtein bool                // Drop features assigned to more than one protein group
}

// Summary counts features kept and removed per reason
type Summary struct {
	Total   int
	Kept    int
	Removed map[Reason]int
}

func newSummary() Summary {
	return Summary{Removed: make(map[Reason]int)}
}

func (s *Summary) add(r Reason) {
	s.Total++
	if r == Kept {
		s.Kept++
		return
	}
	s.Removed[r]++
}

// Check returns the reason a feature should be removed, or Kept
func (c *Config) Check(id *core.FeatureID) Reason {
	accessions := id.Accessions()
	if len(accessions) == 0 {
		return NoMasterProtein
	}

	if id.Contaminant {
		return FlaggedContaminant
	}

	// Any contaminant accession taints the whole feature
	for _, acc := range accessions {
		if _, ok := c.Contaminants[acc]; ok {
			return ContaminantProtein
		}
	}

	// A zero count means the column was not exported
	if c.RequireUniqueProtein && id.ProteinGroups > 1 {
		return SharedProteinGroups
	}

	return Kept
}

// ApplyPeptides returns the peptide features passing all filters
func (c *Config) ApplyPeptides(features []core.PeptideFeature) ([]core.PeptideFeature, Summary) {
	summary := newSummary()
	var filtered []core.PeptideFeature
	for i := range features {
		reason := c.Check(&features[i].FeatureID)
		summary.add(reason)
		if reason == Kept {
			filtered = append(filtered, features[i])
		}
	}
	return filtered, summary
}

// ApplyPSMs returns the PSMs passing all filters. PSMs without a quan channel are kept;
// they still record that the peptide was seen.
func (c *Config) ApplyPSMs(psms []core.PSMFeature) ([]core.PSMFeature, Summary) {
	summary := newSummary()
	var filtered []core.PSMFeature
	for i := range psms {
		reason := c.Check(&psms[i].FeatureID)
		summary.add(reason)
		if reason == Kept {
			filtered = append(filtered, psms[i])
		}
	}
	return filtered, summary
}
