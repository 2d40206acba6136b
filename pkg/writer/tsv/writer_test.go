package tsv

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ChrisMcGann/silacde/pkg/core"
)

func TestWriteResults(t *testing.T) {
	var buf bytes.Buffer
	results := []core.DifferentialResult{
		{Protein: "P1; P2", LogFC: 2, T: 10, PValue: 0.001, SCAT: 12.5, SCAPValue: 0.0001, AdjPValue: 0.001, MinPeptideCount: 3, Replicates: 4, MatchSummary: "all-matched"},
		{Protein: "P3", LogFC: -0.25, T: math.NaN(), PValue: math.NaN(), SCAT: -1, SCAPValue: 0.4, AdjPValue: 0.4, MinPeptideCount: 1, Replicates: 2, MatchSummary: "treatment-unmatched,control-unmatched"},
	}
	require.NoError(t, NewWriter(&buf).WriteResults(results))

	want := "accession\tlog_fc\tt\tp_value\tsca_t\tsca_p_value\tadj_p_value\tmin_peptide_count\treplicates\tmatch_summary\n" +
		"P1; P2\t2\t10\t0.001\t12.5\t0.0001\t0.001\t3\t4\tall-matched\n" +
		"P3\t-0.25\tNA\tNA\t-1\t0.4\t0.4\t1\t2\ttreatment-unmatched,control-unmatched\n"
	if got := buf.String(); got != want {
		t.Errorf("WriteResults() =\n%s\nwant\n%s", got, want)
	}
}

func TestWriteProteinMatrix(t *testing.T) {
	var buf bytes.Buffer
	err := NewWriter(&buf).WriteProteinMatrix(
		[]string{"P1"},
		[]int{1, 3},
		[][]float64{{0.5, math.NaN()}},
		[][]int{{2, 0}},
	)
	require.NoError(t, err)

	want := "accession\tratio_1\tratio_3\tpeptides_1\tpeptides_3\n" +
		"P1\t0.5\tNA\t2\t0\n"
	if got := buf.String(); got != want {
		t.Errorf("WriteProteinMatrix() =\n%s\nwant\n%s", got, want)
	}
}
