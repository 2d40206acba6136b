package cmd

import (
	"bytes"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ChrisMcGann/silacde/pkg/core"
	"github.com/ChrisMcGann/silacde/pkg/writer/sqlite"
)

func resetFlags() {
	configFile, outputFile, proteinFile, dbFile = "", "", "", ""
	minPresence = 0
	topN, runID = 20, ""
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		resetFlags()
	})
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestSummarize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")
	w, err := sqlite.NewWriter(path, "knockdown", []int{1, 2, 3, 4})
	require.NoError(t, err)
	for _, p := range []string{"P1", "P2", "P3"} {
		require.NoError(t, w.WriteResult(core.DifferentialResult{Protein: p, LogFC: 1, AdjPValue: 0.01, MatchSummary: "all-matched"}))
	}
	require.NoError(t, w.Finalize())

	out, err := execute(t, "summarize", path, "--top", "2")
	require.NoError(t, err)

	for _, want := range []string{"Run: " + w.RunID(), "Description: knockdown", "Proteins tested: 3", "P1", "P2"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "P3") {
		t.Errorf("--top 2 printed a third protein:\n%s", out)
	}
}

func TestValidateMissingColumn(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rep1.txt"),
		[]byte("Sequence\tModifications\tMaster Protein Accessions\tAbundance: F1: Light, Sample\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "experiment.yaml"), []byte(`replicates:
  - {index: 1, treatment: heavy, peptides: rep1.txt}
`), 0o644))

	_, err := execute(t, "validate", "--config", filepath.Join(dir, "experiment.yaml"))
	require.Error(t, err)
	require.ErrorIs(t, err, core.ErrMissingColumn)
	if !strings.Contains(err.Error(), "Abundance: F1: Heavy, Sample") {
		t.Errorf("error does not name the column: %v", err)
	}
}

func TestValidateUnmappedReplicate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "experiment.yaml"), []byte(`replicates:
  - {index: 5, peptides: rep5.txt}
`), 0o644))

	_, err := execute(t, "validate", "--config", filepath.Join(dir, "experiment.yaml"))
	require.ErrorIs(t, err, core.ErrUnmappedReplicate)
}

// writeExperiment writes four replicates of ten proteins with ten peptides each.
// The last protein is only quantified in replicates 1 and 2.
func writeExperiment(t *testing.T, dir string) string {
	t.Helper()
	rng := rand.New(rand.NewSource(5))
	treatment := map[int]string{1: "heavy", 2: "heavy", 3: "light", 4: "light"}

	var yaml strings.Builder
	yaml.WriteString("description: cli run\nanalysis:\n  min_presence: 1.0\n")
	fmt.Fprintf(&yaml, "output:\n  tsv: %q\n  database: %q\nreplicates:\n",
		filepath.Join(dir, "from_config.tsv"), filepath.Join(dir, "from_config.db"))

	for rep := 1; rep <= 4; rep++ {
		var tbl strings.Builder
		tbl.WriteString("Sequence\tModifications\tMaster Protein Accessions\tAbundance: F1: Light, Sample\tAbundance: F1: Heavy, Sample\n")
		for p := 0; p < 10; p++ {
			if p == 9 && rep > 2 {
				continue
			}
			effect := 0.0
			if p == 0 {
				effect = 2
			}
			for k := 0; k < 10; k++ {
				control := math.Exp2(20 + rng.NormFloat64())
				treated := control * math.Exp2(effect+0.2*rng.NormFloat64())
				light, heavy := control, treated
				if treatment[rep] == "light" {
					light, heavy = treated, control
				}
				fmt.Fprintf(&tbl, "M%c%cPEPTK\t\tPROT%02d\t%s\t%s\n", 'A'+p, 'A'+k, p+1,
					strconv.FormatFloat(light, 'g', -1, 64), strconv.FormatFloat(heavy, 'g', -1, 64))
			}
		}
		name := fmt.Sprintf("rep%d.txt", rep)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(tbl.String()), 0o644))
		fmt.Fprintf(&yaml, "  - {index: %d, treatment: %s, peptides: %s}\n", rep, treatment[rep], name)
	}

	path := filepath.Join(dir, "experiment.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml.String()), 0o644))
	return path
}

func readResults(t *testing.T, text string) [][]string {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(text), "\n")
	require.Equal(t, "accession\tlog_fc\tt\tp_value\tsca_t\tsca_p_value\tadj_p_value\tmin_peptide_count\treplicates\tmatch_summary", lines[0])
	var rows [][]string
	for _, line := range lines[1:] {
		rows = append(rows, strings.Split(line, "\t"))
	}
	return rows
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeExperiment(t, dir)
	outPath := filepath.Join(dir, "results.tsv")
	dbPath := filepath.Join(dir, "results.db")
	matrixPath := filepath.Join(dir, "proteins.tsv")

	// Flags override presence, output and database from the experiment file
	_, err := execute(t, "run", "--config", cfgPath, "--out", outPath, "--db", dbPath,
		"--proteins", matrixPath, "--min-presence", "0.5")
	require.NoError(t, err)

	for _, name := range []string{"from_config.tsv", "from_config.db"} {
		if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Errorf("%s written despite flag override", name)
		}
	}

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	rows := readResults(t, string(data))
	require.Len(t, rows, 10)

	prev := -1.0
	seen := make(map[string]bool)
	for _, row := range rows {
		adj, err := strconv.ParseFloat(row[6], 64)
		require.NoError(t, err, "adj p-value %q", row[6])
		if adj < prev {
			t.Errorf("rows not sorted by adjusted p-value: %v after %v", adj, prev)
		}
		prev = adj
		seen[row[0]] = true
	}
	if !seen["PROT10"] {
		t.Error("protein in half of the replicates not tested with --min-presence 0.5")
	}
	if rows[0][0] != "PROT01" {
		t.Errorf("top protein = %s, want PROT01", rows[0][0])
	}

	matrix, err := os.ReadFile(matrixPath)
	require.NoError(t, err)
	mlines := strings.Split(strings.TrimSpace(string(matrix)), "\n")
	require.Len(t, mlines, 11)
	require.Equal(t, "accession\tratio_1\tratio_2\tratio_3\tratio_4\tpeptides_1\tpeptides_2\tpeptides_3\tpeptides_4", mlines[0])
	var partial string
	for _, line := range mlines[1:] {
		if strings.HasPrefix(line, "PROT10\t") {
			partial = line
		}
	}
	if !strings.Contains(partial, "\tNA\tNA\t") {
		t.Errorf("PROT10 matrix row = %q, want NA ratios in replicates 3 and 4", partial)
	}

	out, err := execute(t, "summarize", dbPath)
	require.NoError(t, err)
	for _, want := range []string{"Description: cli run", "Replicates: [1 2 3 4]", "Proteins tested: 10", "PROT01"} {
		if !strings.Contains(out, want) {
			t.Errorf("summarize output missing %q:\n%s", want, out)
		}
	}
}

func TestRunStdout(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeExperiment(t, dir)

	// The experiment file requires every replicate, so the partial protein drops out
	out, err := execute(t, "run", "--config", cfgPath, "--out", "-")
	require.NoError(t, err)

	rows := readResults(t, out)
	require.Len(t, rows, 9)
	for _, row := range rows {
		if row[0] == "PROT10" {
			t.Error("PROT10 tested despite min_presence 1.0")
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "from_config.tsv")); !os.IsNotExist(err) {
		t.Error("'-' should write to stdout, not the configured file")
	}
	// The configured database is still used
	if _, err := os.Stat(filepath.Join(dir, "from_config.db")); err != nil {
		t.Errorf("configured database not written: %v", err)
	}
}
