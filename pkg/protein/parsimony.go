// Package protein assigns peptides to proteins consistently across replicates and
// summarises peptide ratios to protein level.
package protein

import (
	"errors"
	"sort"
	"strings"

	"github.com/ChrisMcGann/silacde/pkg/core"
)

// ErrNoPeptides is returned when there is nothing to resolve.
var ErrNoPeptides = errors.New("no peptides to assign to proteins")

// PeptideProteins is one replicate's mapping from sequence to master protein accessions
// ("; "-separated, as exported).
type PeptideProteins map[string]string

// Assignment maps a normalized peptide sequence to a single protein (group) accession.
type Assignment map[string]string

// Lookup returns the protein assigned to sequence.
func (a Assignment) Lookup(sequence string) (string, bool) {
	acc, ok := a[core.NormalizeSequence(sequence)]
	return acc, ok
}

type proteinGroup struct {
	accession string
	peptides  map[string]struct{}
}

// Resolve reconciles per-replicate peptide to protein tables into one assignment.
//
// Proteins explaining exactly the same peptides are merged into a group ("A; B").
// Groups whose peptides are a strict subset of another group's are discarded. The
// remaining groups are chosen greedily: the group explaining the most unassigned
// peptides claims them, ties broken by total peptide count and then accession.
func Resolve(tables []PeptideProteins) (Assignment, error) {
	proteinPeptides := make(map[string]map[string]struct{})
	sequences := make(map[string]struct{})

	for _, table := range tables {
		for seq, accessions := range table {
			seq = core.NormalizeSequence(seq)
			for _, acc := range strings.Split(accessions, ";") {
				acc = strings.TrimSpace(acc)
				if acc == "" {
					continue
				}
				sequences[seq] = struct{}{}
				if proteinPeptides[acc] == nil {
					proteinPeptides[acc] = make(map[string]struct{})
				}
				proteinPeptides[acc][seq] = struct{}{}
			}
		}
	}

	if len(sequences) == 0 {
		return nil, ErrNoPeptides
	}

	groups := removeSubsets(mergeIdentical(proteinPeptides))

	assignment := make(Assignment, len(sequences))
	for len(assignment) < len(sequences) {
		best := -1
		bestNew := 0
		for i, g := range groups {
			n := 0
			for seq := range g.peptides {
				if _, done := assignment[seq]; !done {
					n++
				}
			}
			if n == 0 {
				continue
			}
			if best < 0 || n > bestNew ||
				(n == bestNew && len(g.peptides) > len(groups[best].peptides)) ||
				(n == bestNew && len(g.peptides) == len(groups[best].peptides) && g.accession < groups[best].accession) {
				best, bestNew = i, n
			}
		}
		if best < 0 {
			break
		}
		for seq := range groups[best].peptides {
			if _, done := assignment[seq]; !done {
				assignment[seq] = groups[best].accession
			}
		}
	}

	return assignment, nil
}

// mergeIdentical groups proteins that explain identical peptide sets
func mergeIdentical(proteinPeptides map[string]map[string]struct{}) []proteinGroup {
	bySignature := make(map[string][]string)
	for acc, peps := range proteinPeptides {
		seqs := make([]string, 0, len(peps))
		for seq := range peps {
			seqs = append(seqs, seq)
		}
		sort.Strings(seqs)
		sig := strings.Join(seqs, ",")
		bySignature[sig] = append(bySignature[sig], acc)
	}

	groups := make([]proteinGroup, 0, len(bySignature))
	for _, accs := range bySignature {
		sort.Strings(accs)
		groups = append(groups, proteinGroup{
			accession: strings.Join(accs, "; "),
			peptides:  proteinPeptides[accs[0]],
		})
	}

	sort.Slice(groups, func(i, j int) bool {
		return groups[i].accession < groups[j].accession
	})
	return groups
}

// removeSubsets drops groups whose peptides are all explained by a larger group
func removeSubsets(groups []proteinGroup) []proteinGroup {
	var kept []proteinGroup
	for i, g := range groups {
		subsumed := false
		for j, other := range groups {
			if i == j || len(other.peptides) <= len(g.peptides) {
				continue
			}
			if isSubset(g.peptides, other.peptides) {
				subsumed = true
				break
			}
		}
		if !subsumed {
			kept = append(kept, g)
		}
	}
	return kept
}

func isSubset(a, b map[string]struct{}) bool {
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
