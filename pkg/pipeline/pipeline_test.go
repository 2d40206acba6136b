package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ChrisMcGann/silacde/pkg/config"
	"github.com/ChrisMcGann/silacde/pkg/core"
)

const (
	nProteins        = 10
	peptidesPerProt  = 10
	heavyLabelPSM    = "K9(Label:13C(6)15N(2))"
	heavyLabelPepGrp = "1xLabel:13C(6)15N(2) [K9]"
)

// Replicates 1 and 2 carry treatment in heavy, 3 and 4 in light.
var treatments = map[int]string{1: "heavy", 2: "heavy", 3: "light", 4: "light"}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	for rep := 1; rep <= 4; rep++ {
		cfg.Replicates = append(cfg.Replicates, config.ReplicateConfig{
			Index:     rep,
			Peptides:  fmt.Sprintf("rep%d_peptides.txt", rep),
			PSMs:      fmt.Sprintf("rep%d_psms.txt", rep),
			Treatment: treatments[rep],
		})
	}
	return cfg
}

func proteinName(p int) string {
	return fmt.Sprintf("PROT%02d", p+1)
}

func sequence(p, k int) string {
	return "M" + string(rune('A'+p)) + string(rune('A'+k)) + "PEPTK"
}

// effect is the true log2 treatment/control ratio of protein p
func effect(p int) float64 {
	switch p {
	case 0:
		return 2
	case 1:
		return -2
	default:
		return 0
	}
}

func syntheticTables(rng *rand.Rand) []ReplicateTables {
	var tables []ReplicateTables
	for rep := 1; rep <= 4; rep++ {
		t := ReplicateTables{Replicate: rep}
		for p := 0; p < nProteins; p++ {
			for k := 0; k < peptidesPerProt; k++ {
				control := math.Exp2(20 + rng.NormFloat64())
				treatment := control * math.Exp2(effect(p)+0.2*rng.NormFloat64())

				light, heavy := control, treatment
				if treatments[rep] == "light" {
					light, heavy = treatment, control
				}
				mods := heavyLabelPepGrp
				psmMods := ""
				if k%3 == 0 {
					mods = "1xOxidation [M1]; " + heavyLabelPepGrp
					psmMods = "M1(Oxidation)"
				}

				id := core.FeatureID{
					Sequence:                sequence(p, k),
					Modifications:           mods,
					Replicate:               rep,
					MasterProteinAccessions: proteinName(p),
					ProteinGroups:           1,
				}
				t.Peptides = append(t.Peptides, core.PeptideFeature{FeatureID: id, LightIntensity: light, HeavyIntensity: heavy})

				lightPSM := id
				lightPSM.Modifications = psmMods
				t.PSMs = append(t.PSMs, core.PSMFeature{FeatureID: lightPSM, QuanChannel: "Light"})
				if k != 1 {
					heavyPSM := id
					heavyPSM.Modifications = strings.TrimPrefix(psmMods+"; "+heavyLabelPSM, "; ")
					t.PSMs = append(t.PSMs, core.PSMFeature{FeatureID: heavyPSM, QuanChannel: "Heavy"})
				}
			}
		}
		tables = append(tables, t)
	}
	return tables
}

func TestRunTablesEndToEnd(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	res, err := New(testConfig(), nil).RunTables(context.Background(), syntheticTables(rng))
	require.NoError(t, err)

	require.Len(t, res.Differential, nProteins)
	require.Equal(t, []int{1, 2, 3, 4}, res.Replicates)
	require.Len(t, res.Ratios, 4*nProteins*peptidesPerProt)

	sorted := sort.SliceIsSorted(res.Differential, func(a, b int) bool {
		return res.Differential[a].AdjPValue < res.Differential[b].AdjPValue
	})
	if !sorted {
		t.Error("results not sorted by adjusted p-value")
	}

	byProtein := make(map[string]core.DifferentialResult)
	for _, r := range res.Differential {
		if math.IsNaN(r.AdjPValue) {
			t.Errorf("%s: NaN adjusted p-value", r.Protein)
		}
		if r.MinPeptideCount != peptidesPerProt {
			t.Errorf("%s: min peptide count = %d", r.Protein, r.MinPeptideCount)
		}
		byProtein[r.Protein] = r
	}

	// Label swap must not flip the sign
	if up := byProtein[proteinName(0)]; up.LogFC < 1.5 {
		t.Errorf("elevated protein log FC = %v, want about 2", up.LogFC)
	}
	if down := byProtein[proteinName(1)]; down.LogFC > -1.5 {
		t.Errorf("reduced protein log FC = %v, want about -2", down.LogFC)
	}

	top := map[string]bool{res.Differential[0].Protein: true, res.Differential[1].Protein: true}
	if !top[proteinName(0)] || !top[proteinName(1)] {
		t.Errorf("top proteins = %v", top)
	}

	// Peptide k=1 lacks a heavy PSM in every replicate
	if s := byProtein[proteinName(0)].MatchSummary; s != "treatment-unmatched,control-unmatched" {
		t.Errorf("MatchSummary = %q", s)
	}
	for _, r := range res.Ratios {
		if r.Match == core.ProvenanceUnknown {
			t.Errorf("%s replicate %d not joined to its PSMs", r.Sequence, r.Replicate)
			break
		}
	}
}

func TestRunTablesMissingChannel(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	tables := syntheticTables(rng)

	// One protein loses its light channel in three replicates
	for i := range tables[:3] {
		for j := range tables[i].Peptides {
			if tables[i].Peptides[j].MasterProteinAccessions == proteinName(9) {
				tables[i].Peptides[j].LightIntensity = math.NaN()
			}
		}
	}

	res, err := New(testConfig(), nil).RunTables(context.Background(), tables)
	require.NoError(t, err)
	require.Len(t, res.Differential, nProteins-1)

	row, ok := res.Proteins.Index(proteinName(9))
	require.True(t, ok)
	if res.Proteins.Present(row) != 1 {
		t.Errorf("present = %d, want 1", res.Proteins.Present(row))
	}
	for c := 0; c < 3; c++ {
		if !math.IsNaN(res.Proteins.Ratios[row][c]) {
			t.Errorf("replicate %d ratio = %v, want NaN", c+1, res.Proteins.Ratios[row][c])
		}
	}
}

func TestRunTablesRatiosCarryResolvedProtein(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	tables := syntheticTables(rng)

	// Replicate 1 reports a second protein for the same peptides, so the two merge
	// into one group that the other replicates never name.
	for j := range tables[0].Peptides {
		if tables[0].Peptides[j].MasterProteinAccessions == proteinName(2) {
			tables[0].Peptides[j].MasterProteinAccessions = proteinName(2) + "; ISOFORM"
		}
	}
	group := "ISOFORM; " + proteinName(2)

	res, err := New(testConfig(), nil).RunTables(context.Background(), tables)
	require.NoError(t, err)

	_, ok := res.Proteins.Index(group)
	require.True(t, ok, "group %q not in protein matrix", group)

	var grouped int
	for _, r := range res.Ratios {
		if r.Protein == proteinName(2) {
			t.Fatalf("%s replicate %d keeps the accession it was read with", r.Sequence, r.Replicate)
		}
		if r.Protein == group {
			grouped++
		}
	}
	require.Equal(t, 4*peptidesPerProt, grouped)
}

func TestRunTablesUnmappedReplicate(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	tables := syntheticTables(rng)
	tables = append(tables, ReplicateTables{Replicate: 5, Peptides: tables[0].Peptides[:1]})

	_, err := New(testConfig(), nil).RunTables(context.Background(), tables)
	var cfgErr *core.ConfigError
	require.True(t, errors.As(err, &cfgErr), "got %v", err)
	if cfgErr.Replicate != 5 || !errors.Is(err, core.ErrUnmappedReplicate) {
		t.Errorf("error = %v", err)
	}
}

func TestRunTablesCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rng := rand.New(rand.NewSource(1))
	_, err := New(testConfig(), nil).RunTables(ctx, syntheticTables(rng))
	require.ErrorIs(t, err, context.Canceled)
}

func TestCheckDirections(t *testing.T) {
	ratios := []core.RatioRecord{
		{Replicate: 1, Ratio: 1.0},
		{Replicate: 1, Ratio: 0.5},
		{Replicate: 2, Ratio: 0.8},
		{Replicate: 3, Ratio: -0.7},
		{Replicate: 3, Ratio: math.NaN()},
		{Replicate: 4, Ratio: 0.3},
	}
	got := checkDirections(ratios, []int{1, 2, 3, 4})
	require.Len(t, got, 1)
	if got[0].Replicate != 3 || got[0].MajoritySign != 1 || got[0].MedianRatio != -0.7 {
		t.Errorf("warning = %+v", got[0])
	}

	// Two against two has no majority
	tied := []core.RatioRecord{
		{Replicate: 1, Ratio: 1}, {Replicate: 2, Ratio: 1},
		{Replicate: 3, Ratio: -1}, {Replicate: 4, Ratio: -1},
	}
	if w := checkDirections(tied, []int{1, 2, 3, 4}); len(w) != 0 {
		t.Errorf("tied replicates produced %d warnings", len(w))
	}
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func writeTables(t *testing.T, dir string, tables []ReplicateTables) {
	t.Helper()
	for _, tbl := range tables {
		var pep strings.Builder
		pep.WriteString("Sequence\tModifications\tMaster Protein Accessions\tNumber of Protein Groups\tContaminant\tAbundance: F1: Light, Sample\tAbundance: F1: Heavy, Sample\n")
		for _, f := range tbl.Peptides {
			fmt.Fprintf(&pep, "%s\t%s\t%s\t%d\tFalse\t%s\t%s\n", f.Sequence, f.Modifications,
				f.MasterProteinAccessions, f.ProteinGroups, formatFloat(f.LightIntensity), formatFloat(f.HeavyIntensity))
		}
		require.NoError(t, os.WriteFile(filepath.Join(dir, fmt.Sprintf("rep%d_peptides.txt", tbl.Replicate)), []byte(pep.String()), 0o644))

		var psm strings.Builder
		psm.WriteString("Sequence\tModifications\tMaster Protein Accessions\tQuan Channel\n")
		for _, p := range tbl.PSMs {
			fmt.Fprintf(&psm, "%s\t%s\t%s\t%s\n", p.Sequence, p.Modifications, p.MasterProteinAccessions, p.QuanChannel)
		}
		require.NoError(t, os.WriteFile(filepath.Join(dir, fmt.Sprintf("rep%d_psms.txt", tbl.Replicate)), []byte(psm.String()), 0o644))
	}
}

const experiment = `description: synthetic
contaminants: crap.fasta
replicates:
  - {index: 3, treatment: light, peptides: rep3_peptides.txt, psms: rep3_psms.txt}
  - {index: 1, treatment: heavy, peptides: rep1_peptides.txt, psms: rep1_psms.txt}
  - {index: 2, treatment: heavy, peptides: rep2_peptides.txt, psms: rep2_psms.txt}
  - {index: 4, treatment: light, peptides: rep4_peptides.txt, psms: rep4_psms.txt}
`

func TestRunFromFiles(t *testing.T) {
	dir := t.TempDir()
	rng := rand.New(rand.NewSource(11))
	writeTables(t, dir, syntheticTables(rng))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "crap.fasta"),
		[]byte(">sp|"+proteinName(9)+"|CONTAM\nMKWVTFISLL\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "experiment.yaml"), []byte(experiment), 0o644))

	cfg, err := config.Load(filepath.Join(dir, "experiment.yaml"))
	require.NoError(t, err)
	require.NoError(t, CheckSchemas(cfg))

	res, err := New(cfg, nil).Run(context.Background())
	require.NoError(t, err)

	// The contaminant protein is filtered before testing
	require.Len(t, res.Differential, nProteins-1)
	require.Equal(t, []int{1, 2, 3, 4}, res.Replicates)
	for _, r := range res.Differential {
		if r.Protein == proteinName(9) {
			t.Error("contaminant protein reported")
		}
	}
}

func TestLoadReplicatesMissingFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "experiment.yaml"), []byte(experiment), 0o644))
	cfg, err := config.Load(filepath.Join(dir, "experiment.yaml"))
	require.NoError(t, err)

	_, err = LoadReplicates(context.Background(), cfg, nil)
	require.ErrorIs(t, err, os.ErrNotExist)
}
