package quant

import (
	"fmt"

	"github.com/ChrisMcGann/silacde/pkg/core"
)

// MatchIndicator records whether each condition channel of a peptide was identified
// directly by a spectrum match.
type MatchIndicator struct {
	TreatmentMatched bool
	ControlMatched   bool
}

// Status converts the indicator to a MatchStatus.
func (m MatchIndicator) Status() core.MatchStatus {
	return core.MatchStatusOf(m.TreatmentMatched, m.ControlMatched)
}

type matchKey struct {
	peptide   core.PeptideKey
	replicate int
}

// MatchIndex holds PSM-level match indicators keyed by normalized peptide and replicate.
type MatchIndex struct {
	labels  *core.LabelDatabase
	entries map[matchKey]MatchIndicator
}

// BuildMatchIndex aggregates PSMs per (sequence, modifications without labels, replicate).
// A channel counts as matched if any PSM identified it. PSMs without a quan channel
// register the peptide with neither channel matched.
func BuildMatchIndex(psms []core.PSMFeature, rule SwapRule, labels *core.LabelDatabase) (*MatchIndex, error) {
	if labels == nil {
		labels = core.DefaultLabelDatabase()
	}

	idx := &MatchIndex{
		labels:  labels,
		entries: make(map[matchKey]MatchIndicator),
	}

	for i := range psms {
		p := &psms[i]
		treatment, err := rule.TreatmentChannel(p.Replicate)
		if err != nil {
			return nil, err
		}

		key, err := labels.Key(p.Sequence, p.Modifications)
		if err != nil {
			return nil, fmt.Errorf("replicate %d PSM: %w", p.Replicate, err)
		}

		mk := matchKey{peptide: key, replicate: p.Replicate}
		ind := idx.entries[mk]
		if ch, ok := p.MatchedChannel(); ok {
			if ch == treatment {
				ind.TreatmentMatched = true
			} else {
				ind.ControlMatched = true
			}
		}
		idx.entries[mk] = ind
	}

	return idx, nil
}

// Len returns the number of indexed peptides
func (idx *MatchIndex) Len() int {
	return len(idx.entries)
}

// Lookup returns the match indicator of a peptide. ok is false on a join miss.
func (idx *MatchIndex) Lookup(sequence, modifications string, replicate int) (ind MatchIndicator, ok bool, err error) {
	key, err := idx.labels.Key(sequence, modifications)
	if err != nil {
		return MatchIndicator{}, false, err
	}
	ind, ok = idx.entries[matchKey{peptide: key, replicate: replicate}]
	return ind, ok, nil
}

// MergeSummary counts the match status assigned to merged records
type MergeSummary struct {
	Status map[core.MatchStatus]int
	// Records with a defined ratio but no PSM row
	UnknownWithRatio int
}

// MergeProvenance returns a copy of records with MatchStatus set from the index.
// A join miss yields core.ProvenanceUnknown rather than one of the matched states.
func MergeProvenance(records []core.RatioRecord, idx *MatchIndex) ([]core.RatioRecord, MergeSummary, error) {
	summary := MergeSummary{Status: make(map[core.MatchStatus]int)}
	out := make([]core.RatioRecord, len(records))

	for i, rec := range records {
		ind, ok, err := idx.Lookup(rec.Sequence, rec.Modifications, rec.Replicate)
		if err != nil {
			return nil, summary, fmt.Errorf("replicate %d peptide: %w", rec.Replicate, err)
		}

		if ok {
			rec.Match = ind.Status()
		} else {
			rec.Match = core.ProvenanceUnknown
			if rec.Missing == core.BothPresent {
				summary.UnknownWithRatio++
			}
		}
		summary.Status[rec.Match]++
		out[i] = rec
	}

	return out, summary, nil
}
