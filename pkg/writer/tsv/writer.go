// Package tsv writes silacde result tables as tab-separated text
package tsv

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/ChrisMcGann/silacde/pkg/core"
)

// ResultHeader is the column order of the differential results table
var ResultHeader = []string{
	"accession",
	"log_fc",
	"t",
	"p_value",
	"sca_t",
	"sca_p_value",
	"adj_p_value",
	"min_peptide_count",
	"replicates",
	"match_summary",
}

// Writer writes tab-separated rows
type Writer struct {
	csv *csv.Writer
}

// NewWriter creates a writer on w
func NewWriter(w io.Writer) *Writer {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	return &Writer{csv: cw}
}

// WriteResults writes the header and one row per result, in the given order
func (w *Writer) WriteResults(results []core.DifferentialResult) error {
	if err := w.csv.Write(ResultHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, r := range results {
		row := []string{
			r.Protein,
			formatFloat(r.LogFC),
			formatFloat(r.T),
			formatFloat(r.PValue),
			formatFloat(r.SCAT),
			formatFloat(r.SCAPValue),
			formatFloat(r.AdjPValue),
			strconv.Itoa(r.MinPeptideCount),
			strconv.Itoa(r.Replicates),
			r.MatchSummary,
		}
		if err := w.csv.Write(row); err != nil {
			return fmt.Errorf("failed to write result %s: %w", r.Protein, err)
		}
	}
	return w.Flush()
}

// WriteProteinMatrix writes one row per protein with a ratio and peptide count column
// per replicate. Missing ratios are written as NA.
func (w *Writer) WriteProteinMatrix(proteins []string, replicates []int, ratios [][]float64, counts [][]int) error {
	header := []string{"accession"}
	for _, rep := range replicates {
		header = append(header, fmt.Sprintf("ratio_%d", rep))
	}
	for _, rep := range replicates {
		header = append(header, fmt.Sprintf("peptides_%d", rep))
	}
	if err := w.csv.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, protein := range proteins {
		row := []string{protein}
		for _, v := range ratios[i] {
			row = append(row, formatFloat(v))
		}
		for _, n := range counts[i] {
			row = append(row, strconv.Itoa(n))
		}
		if err := w.csv.Write(row); err != nil {
			return fmt.Errorf("failed to write protein %s: %w", protein, err)
		}
	}
	return w.Flush()
}

// Flush flushes buffered rows
func (w *Writer) Flush() error {
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}
	return nil
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return "NA"
	}
	return strconv.FormatFloat(v, 'g', 6, 64)
}
