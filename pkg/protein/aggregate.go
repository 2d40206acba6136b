package protein

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ChrisMcGann/silacde/pkg/core"
)

// PeptideCell is one peptide in one replicate. Ratio is NaN when the peptide was not
// quantified in that replicate.
type PeptideCell struct {
	Ratio    float64
	Statuses []core.MatchStatus
}

// PeptideRow is one peptide across all replicates.
type PeptideRow struct {
	Key     core.PeptideKey
	Protein string
	Cells   []PeptideCell // indexed like PeptideMatrix.Replicates
}

// PeptideMatrix is the replicate-indexed peptide ratio table.
type PeptideMatrix struct {
	Replicates []int
	Rows       []PeptideRow
}

// Matrix is the protein x replicate ratio table.
type Matrix struct {
	Proteins   []string
	Replicates []int
	Ratios     [][]float64 // [protein][replicate], NaN when missing
	Counts     [][]int     // contributing peptides
	Records    []core.ProteinRatioRecord
	Peptides   *PeptideMatrix
}

// Summary counts records dropped during aggregation
type Summary struct {
	Unassigned int // sequence missing from the protein assignment
	NonFinite  int // ratio not quantifiable
	Duplicates int // collapsed rows sharing peptide key and replicate
	Retained   int
}

// Aggregator summarises peptide ratios to proteins.
type Aggregator struct {
	Labels *core.LabelDatabase
	Policy Policy
	// Replicate columns of the output. Derived from the records when empty.
	Replicates []int
}

// Reassign returns a copy of records carrying the resolved protein of each sequence.
// Sequences without an assignment keep the protein they were read with.
func Reassign(records []core.RatioRecord, assignment Assignment) []core.RatioRecord {
	out := make([]core.RatioRecord, len(records))
	for i, rec := range records {
		if protein, ok := assignment.Lookup(rec.Sequence); ok {
			rec.Protein = protein
		}
		out[i] = rec
	}
	return out
}

// Aggregate reassigns proteins, drops unquantifiable ratios, pivots peptides to a
// replicate matrix and summarises each protein per replicate with the policy.
func (a *Aggregator) Aggregate(records []core.RatioRecord, assignment Assignment) (*Matrix, Summary, error) {
	var summary Summary
	if err := a.Policy.validate(); err != nil {
		return nil, summary, err
	}
	labels := a.Labels
	if labels == nil {
		labels = core.DefaultLabelDatabase()
	}

	replicates := a.replicateColumns(records)
	column := make(map[int]int, len(replicates))
	for i, rep := range replicates {
		column[rep] = i
	}

	type cellValues struct {
		ratios   []float64
		statuses []core.MatchStatus
	}
	type rowKey struct {
		key     core.PeptideKey
		protein string
	}
	cells := make(map[rowKey][]cellValues)

	for _, rec := range records {
		protein, ok := assignment.Lookup(rec.Sequence)
		if !ok {
			summary.Unassigned++
			continue
		}
		if !core.IsFinite(rec.Ratio) {
			summary.NonFinite++
			continue
		}
		col, ok := column[rec.Replicate]
		if !ok {
			return nil, summary, &core.ConfigError{Replicate: rec.Replicate, Err: fmt.Errorf("replicate not among output columns")}
		}

		key, err := labels.Key(rec.Sequence, rec.Modifications)
		if err != nil {
			return nil, summary, fmt.Errorf("replicate %d: %w", rec.Replicate, err)
		}

		rk := rowKey{key: key, protein: protein}
		row := cells[rk]
		if row == nil {
			row = make([]cellValues, len(replicates))
			cells[rk] = row
		}
		if len(row[col].ratios) > 0 {
			summary.Duplicates++
		}
		row[col].ratios = append(row[col].ratios, rec.Ratio)
		row[col].statuses = append(row[col].statuses, rec.Match)
		summary.Retained++
	}

	// Peptide matrix, ordered by protein then peptide
	peptides := &PeptideMatrix{Replicates: replicates}
	for rk, row := range cells {
		pr := PeptideRow{Key: rk.key, Protein: rk.protein, Cells: make([]PeptideCell, len(replicates))}
		for i, cv := range row {
			ratio := math.NaN()
			if len(cv.ratios) > 0 {
				ratio = a.Policy.Ratio(cv.ratios)
			}
			pr.Cells[i] = PeptideCell{Ratio: ratio, Statuses: cv.statuses}
		}
		peptides.Rows = append(peptides.Rows, pr)
	}
	sort.Slice(peptides.Rows, func(i, j int) bool {
		ri, rj := peptides.Rows[i], peptides.Rows[j]
		if ri.Protein != rj.Protein {
			return ri.Protein < rj.Protein
		}
		if ri.Key.Sequence != rj.Key.Sequence {
			return ri.Key.Sequence < rj.Key.Sequence
		}
		return ri.Key.Modifications < rj.Key.Modifications
	})

	return a.summarise(peptides), summary, nil
}

// summarise computes protein ratios and carry-forward metadata from the peptide matrix
func (a *Aggregator) summarise(peptides *PeptideMatrix) *Matrix {
	byProtein := make(map[string][]*PeptideRow)
	var proteins []string
	for i := range peptides.Rows {
		row := &peptides.Rows[i]
		if _, seen := byProtein[row.Protein]; !seen {
			proteins = append(proteins, row.Protein)
		}
		byProtein[row.Protein] = append(byProtein[row.Protein], row)
	}
	sort.Strings(proteins)

	nrep := len(peptides.Replicates)
	m := &Matrix{
		Proteins:   proteins,
		Replicates: peptides.Replicates,
		Ratios:     make([][]float64, len(proteins)),
		Counts:     make([][]int, len(proteins)),
		Peptides:   peptides,
	}

	for p, protein := range proteins {
		m.Ratios[p] = make([]float64, nrep)
		m.Counts[p] = make([]int, nrep)

		for c, rep := range peptides.Replicates {
			var values []float64
			var treatmentNotMatched, controlNotMatched, unknown []bool
			for _, row := range byProtein[protein] {
				cell := row.Cells[c]
				if !core.IsFinite(cell.Ratio) {
					continue
				}
				values = append(values, cell.Ratio)
				for _, s := range cell.Statuses {
					unknown = append(unknown, !s.Known())
					if !s.Known() {
						continue
					}
					treatmentNotMatched = append(treatmentNotMatched, !s.TreatmentMatched())
					controlNotMatched = append(controlNotMatched, !s.ControlMatched())
				}
			}

			rec := core.ProteinRatioRecord{
				Protein:      protein,
				Replicate:    rep,
				Ratio:        math.NaN(),
				PeptideCount: len(values),
			}
			if len(values) > 0 {
				rec.Ratio = a.Policy.Ratio(values)
				rec.AnyTreatmentNotMatched = a.Policy.AnyTreatmentNotMatched(treatmentNotMatched)
				rec.AnyControlNotMatched = a.Policy.AnyControlNotMatched(controlNotMatched)
				rec.AnyProvenanceUnknown = a.Policy.AnyProvenanceUnknown(unknown)
			}

			m.Ratios[p][c] = rec.Ratio
			m.Counts[p][c] = rec.PeptideCount
			m.Records = append(m.Records, rec)
		}
	}

	return m
}

func (a *Aggregator) replicateColumns(records []core.RatioRecord) []int {
	if len(a.Replicates) > 0 {
		reps := append([]int(nil), a.Replicates...)
		sort.Ints(reps)
		return reps
	}
	seen := make(map[int]bool)
	var reps []int
	for _, rec := range records {
		if !seen[rec.Replicate] {
			seen[rec.Replicate] = true
			reps = append(reps, rec.Replicate)
		}
	}
	sort.Ints(reps)
	return reps
}

// MinPeptideCount returns the smallest non-zero peptide count of protein i across
// replicates, or 0 if the protein was never quantified.
func (m *Matrix) MinPeptideCount(i int) int {
	least := 0
	for _, n := range m.Counts[i] {
		if n > 0 && (least == 0 || n < least) {
			least = n
		}
	}
	return least
}

// Present returns the number of replicates with a ratio for protein i.
func (m *Matrix) Present(i int) int {
	n := 0
	for _, v := range m.Ratios[i] {
		if core.IsFinite(v) {
			n++
		}
	}
	return n
}

// MatchSummary describes the provenance flags of protein i across replicates.
func (m *Matrix) MatchSummary(i int) string {
	var treatment, control, unknown bool
	nrep := len(m.Replicates)
	for _, rec := range m.Records[i*nrep : (i+1)*nrep] {
		treatment = treatment || rec.AnyTreatmentNotMatched
		control = control || rec.AnyControlNotMatched
		unknown = unknown || rec.AnyProvenanceUnknown
	}

	var parts []string
	if unknown {
		parts = append(parts, "provenance-unknown")
	}
	if treatment {
		parts = append(parts, "treatment-unmatched")
	}
	if control {
		parts = append(parts, "control-unmatched")
	}
	if len(parts) == 0 {
		return "all-matched"
	}
	return strings.Join(parts, ",")
}

// Index returns the row of a protein accession.
func (m *Matrix) Index(protein string) (int, bool) {
	i := sort.SearchStrings(m.Proteins, protein)
	if i < len(m.Proteins) && m.Proteins[i] == protein {
		return i, true
	}
	return 0, false
}
