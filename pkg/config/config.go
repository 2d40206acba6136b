// Package config loads and validates silacde experiment files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/ChrisMcGann/silacde/pkg/core"
	"github.com/ChrisMcGann/silacde/pkg/quant"
	"github.com/ChrisMcGann/silacde/pkg/reader/pdtsv"
)

// Config holds a complete SILAC experiment description.
type Config struct {
	Description string `yaml:"description"`

	// One entry per replicate; the treatment channel defines the label swap.
	Replicates []ReplicateConfig `yaml:"replicates"`

	// FASTA file of contaminant proteins (optional)
	Contaminants string `yaml:"contaminants"`

	// Additional label modification names stripped from join keys
	Labels []string `yaml:"labels"`

	Schema   SchemaConfig   `yaml:"schema"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Output   OutputConfig   `yaml:"output"`

	// Directory relative paths are resolved against
	baseDir string
}

// ReplicateConfig describes the input tables of one replicate.
type ReplicateConfig struct {
	Index     int    `yaml:"index"`
	Peptides  string `yaml:"peptides"`
	PSMs      string `yaml:"psms"`
	Treatment string `yaml:"treatment"` // light or heavy

	// Per-replicate abundance column overrides
	LightColumn string `yaml:"light_column"`
	HeavyColumn string `yaml:"heavy_column"`
}

// SchemaConfig names the columns of the input tables.
type SchemaConfig struct {
	Peptide pdtsv.PeptideSchema `yaml:"peptide"`
	PSM     pdtsv.PSMSchema     `yaml:"psm"`
}

// AnalysisConfig configures filtering and the statistical model.
type AnalysisConfig struct {
	MinPresence          float64 `yaml:"min_presence"`           // fraction of replicates with data (default: 0.5)
	SmootherSpan         float64 `yaml:"smoother_span"`          // variance trend span (default: 0.75)
	MinPeptides          int     `yaml:"min_peptides"`           // min peptides per protein (default: 1)
	RequireUniqueProtein bool    `yaml:"require_unique_protein"` // drop features with >1 protein group (default: true)
}

// OutputConfig configures result destinations.
type OutputConfig struct {
	TSV      string `yaml:"tsv"`
	Database string `yaml:"database"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Schema: SchemaConfig{
			Peptide: pdtsv.DefaultPeptideSchema(),
			PSM:     pdtsv.DefaultPSMSchema(),
		},
		Analysis: AnalysisConfig{
			MinPresence:          0.5,
			SmootherSpan:         0.75,
			MinPeptides:          1,
			RequireUniqueProtein: true,
		},
	}
}

// Load reads an experiment file. Relative input paths are resolved against the
// directory containing the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.baseDir = filepath.Dir(path)
	return cfg, nil
}

// Resolve returns path relative to the config file directory unless it is absolute.
func (c *Config) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || c.baseDir == "" {
		return path
	}
	return filepath.Join(c.baseDir, path)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.Replicates) == 0 {
		return &core.ConfigError{Err: fmt.Errorf("no replicates configured")}
	}

	seen := make(map[int]bool)
	for _, rep := range c.Replicates {
		if rep.Index <= 0 {
			return &core.ConfigError{Err: fmt.Errorf("replicate index must be positive, got %d", rep.Index)}
		}
		if seen[rep.Index] {
			return &core.ConfigError{Replicate: rep.Index, Err: fmt.Errorf("duplicate replicate index")}
		}
		seen[rep.Index] = true

		if rep.Treatment == "" {
			return &core.ConfigError{Replicate: rep.Index, Err: core.ErrUnmappedReplicate}
		}
		if _, err := core.ParseChannel(rep.Treatment); err != nil {
			return &core.ConfigError{Replicate: rep.Index, Err: err}
		}
		if rep.Peptides == "" {
			return &core.ConfigError{Replicate: rep.Index, Err: fmt.Errorf("peptides table is required")}
		}
	}

	if c.Analysis.MinPresence <= 0 || c.Analysis.MinPresence > 1 {
		return &core.ConfigError{Err: fmt.Errorf("min_presence must be in (0, 1], got %g", c.Analysis.MinPresence)}
	}
	if c.Analysis.SmootherSpan <= 0 || c.Analysis.SmootherSpan > 1 {
		return &core.ConfigError{Err: fmt.Errorf("smoother_span must be in (0, 1], got %g", c.Analysis.SmootherSpan)}
	}
	if c.Analysis.MinPeptides < 1 {
		return &core.ConfigError{Err: fmt.Errorf("min_peptides must be at least 1, got %d", c.Analysis.MinPeptides)}
	}

	return nil
}

// SwapRule builds the label swap rule from the replicate list.
func (c *Config) SwapRule() (quant.SwapRule, error) {
	rule := make(quant.SwapRule, len(c.Replicates))
	for _, rep := range c.Replicates {
		ch, err := core.ParseChannel(rep.Treatment)
		if err != nil {
			return nil, &core.ConfigError{Replicate: rep.Index, Err: err}
		}
		rule[rep.Index] = ch
	}
	return rule, nil
}

// LabelDatabase returns the default labels plus any configured extras.
func (c *Config) LabelDatabase() *core.LabelDatabase {
	db := core.DefaultLabelDatabase()
	for _, label := range c.Labels {
		db.Add(label)
	}
	return db
}

// PeptideSchema returns the peptide table schema of a replicate.
func (c *Config) PeptideSchema(rep ReplicateConfig) pdtsv.PeptideSchema {
	schema := c.Schema.Peptide
	if rep.LightColumn != "" {
		schema.LightAbundance = rep.LightColumn
	}
	if rep.HeavyColumn != "" {
		schema.HeavyAbundance = rep.HeavyColumn
	}
	return schema
}

// SortedReplicates returns the replicates ordered by index.
func (c *Config) SortedReplicates() []ReplicateConfig {
	reps := make([]ReplicateConfig, len(c.Replicates))
	copy(reps, c.Replicates)
	sort.Slice(reps, func(i, j int) bool {
		return reps[i].Index < reps[j].Index
	})
	return reps
}
