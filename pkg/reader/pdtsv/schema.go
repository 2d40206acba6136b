// Package pdtsv provides streaming readers for Proteome Discoverer tab-delimited
// peptide group and PSM exports.
package pdtsv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/ChrisMcGann/silacde/pkg/core"
)

// PeptideSchema names the columns read from a peptide group table.
type PeptideSchema struct {
	Sequence       string `yaml:"sequence"`
	Modifications  string `yaml:"modifications"`
	MasterProteins string `yaml:"master_proteins"`
	ProteinGroups  string `yaml:"protein_groups"` // optional
	Contaminant    string `yaml:"contaminant"`    // optional
	LightAbundance string `yaml:"light_abundance"`
	HeavyAbundance string `yaml:"heavy_abundance"`
}

// DefaultPeptideSchema returns the column names of a PD 2.x peptide group export.
func DefaultPeptideSchema() PeptideSchema {
	return PeptideSchema{
		Sequence:       "Sequence",
		Modifications:  "Modifications",
		MasterProteins: "Master Protein Accessions",
		ProteinGroups:  "Number of Protein Groups",
		Contaminant:    "Contaminant",
		LightAbundance: "Abundance: F1: Light, Sample",
		HeavyAbundance: "Abundance: F1: Heavy, Sample",
	}
}

func (s PeptideSchema) required() []string {
	return []string{s.Sequence, s.Modifications, s.MasterProteins, s.LightAbundance, s.HeavyAbundance}
}

// PSMSchema names the columns read from a PSM table.
type PSMSchema struct {
	Sequence           string `yaml:"sequence"`
	Modifications      string `yaml:"modifications"`
	MasterProteins     string `yaml:"master_proteins"`
	ProteinGroups      string `yaml:"protein_groups"` // optional
	Contaminant        string `yaml:"contaminant"`    // optional
	QuanChannel        string `yaml:"quan_channel"`
	PrecursorAbundance string `yaml:"precursor_abundance"` // optional
}

// DefaultPSMSchema returns the column names of a PD 2.x PSM export.
func DefaultPSMSchema() PSMSchema {
	return PSMSchema{
		Sequence:           "Sequence",
		Modifications:      "Modifications",
		MasterProteins:     "Master Protein Accessions",
		ProteinGroups:      "Number of Protein Groups",
		Contaminant:        "Contaminant",
		QuanChannel:        "Quan Channel",
		PrecursorAbundance: "Precursor Abundance",
	}
}

func (s PSMSchema) required() []string {
	return []string{s.Sequence, s.Modifications, s.MasterProteins, s.QuanChannel}
}

// table wraps a tab-delimited reader with a validated header
type table struct {
	csv       *csv.Reader
	columns   map[string]int
	replicate int
	lineNum   int
}

func newTable(r io.Reader, replicate int, required []string) (*table, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &core.ConfigError{Replicate: replicate, Err: fmt.Errorf("empty table, header expected")}
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	t := &table{
		csv:       cr,
		columns:   make(map[string]int, len(header)),
		replicate: replicate,
		lineNum:   1,
	}
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, dup := t.columns[name]; !dup {
			t.columns[name] = i
		}
	}

	for _, col := range required {
		if col == "" {
			return nil, &core.ConfigError{Replicate: replicate, Err: fmt.Errorf("%w: schema leaves a required column unnamed", core.ErrMissingColumn)}
		}
		if _, ok := t.columns[col]; !ok {
			return nil, &core.ConfigError{Replicate: replicate, Column: col, Err: core.ErrMissingColumn}
		}
	}

	return t, nil
}

// next returns the next non-empty record
func (t *table) next() ([]string, error) {
	for {
		rec, err := t.csv.Read()
		if err != nil {
			return nil, err
		}
		t.lineNum++
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		return rec, nil
	}
}

// field returns the named column of rec; absent optional columns read as ""
func (t *table) field(rec []string, col string) string {
	i, ok := t.columns[col]
	if col == "" || !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func (t *table) featureID(rec []string, seq, mods, proteins, groups, contaminant string) (core.FeatureID, error) {
	id := core.FeatureID{
		Sequence:                t.field(rec, seq),
		Modifications:           t.field(rec, mods),
		Replicate:               t.replicate,
		MasterProteinAccessions: t.field(rec, proteins),
		Contaminant:             parseBool(t.field(rec, contaminant)),
	}
	if id.Sequence == "" {
		return id, fmt.Errorf("line %d: empty sequence", t.lineNum)
	}

	if s := t.field(rec, groups); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return id, fmt.Errorf("line %d: invalid protein group count '%s': %w", t.lineNum, s, err)
		}
		id.ProteinGroups = n
	}
	return id, nil
}

// parseAbundance parses an abundance value; empty, NA and non-positive values are missing
func parseAbundance(s string) float64 {
	switch strings.ToUpper(s) {
	case "", "NA", "NAN", "NULL":
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return math.NaN()
	}
	return v
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "1", "yes", "+":
		return true
	}
	return false
}
