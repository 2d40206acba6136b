package pipeline

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ChrisMcGann/silacde/pkg/config"
	"github.com/ChrisMcGann/silacde/pkg/core"
	"github.com/ChrisMcGann/silacde/pkg/reader/fasta"
	"github.com/ChrisMcGann/silacde/pkg/reader/pdtsv"
)

// ReplicateTables holds the unfiltered feature tables of one replicate.
type ReplicateTables struct {
	Replicate int
	Peptides  []core.PeptideFeature
	PSMs      []core.PSMFeature
}

// LoadContaminants reads the configured contaminant FASTA. No file yields an empty set.
func LoadContaminants(cfg *config.Config) (map[string]struct{}, error) {
	if cfg.Contaminants == "" {
		return map[string]struct{}{}, nil
	}
	f, err := os.Open(cfg.Resolve(cfg.Contaminants))
	if err != nil {
		return nil, fmt.Errorf("failed to open contaminant FASTA: %w", err)
	}
	defer f.Close()

	accessions, err := fasta.ReadAccessions(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read contaminant FASTA: %w", err)
	}
	return accessions, nil
}

// LoadReplicates reads every replicate's tables in parallel. The result is ordered by
// replicate index regardless of completion order.
func LoadReplicates(ctx context.Context, cfg *config.Config, logger *zap.Logger) ([]ReplicateTables, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	reps := cfg.SortedReplicates()
	tables := make([]ReplicateTables, len(reps))

	eg, egCtx := errgroup.WithContext(ctx)
	for i, rep := range reps {
		i, rep := i, rep
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			t, err := loadReplicate(cfg, rep)
			if err != nil {
				return err
			}
			logger.Debug("Loaded replicate",
				zap.Int("replicate", rep.Index),
				zap.Int("peptides", len(t.Peptides)),
				zap.Int("psms", len(t.PSMs)))
			tables[i] = t
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return tables, nil
}

func loadReplicate(cfg *config.Config, rep config.ReplicateConfig) (ReplicateTables, error) {
	t := ReplicateTables{Replicate: rep.Index}

	f, err := os.Open(cfg.Resolve(rep.Peptides))
	if err != nil {
		return t, fmt.Errorf("failed to open peptides for replicate %d: %w", rep.Index, err)
	}
	defer f.Close()

	t.Peptides, err = pdtsv.ReadPeptides(f, cfg.PeptideSchema(rep), rep.Index)
	if err != nil {
		return t, fmt.Errorf("failed to read peptides: %w", err)
	}

	// Without a PSM table every peptide ends up provenance-unknown
	if rep.PSMs == "" {
		return t, nil
	}

	pf, err := os.Open(cfg.Resolve(rep.PSMs))
	if err != nil {
		return t, fmt.Errorf("failed to open PSMs for replicate %d: %w", rep.Index, err)
	}
	defer pf.Close()

	t.PSMs, err = pdtsv.ReadPSMs(pf, cfg.Schema.PSM, rep.Index)
	if err != nil {
		return t, fmt.Errorf("failed to read PSMs: %w", err)
	}
	return t, nil
}

// CheckSchemas validates the header of every configured table without reading rows.
func CheckSchemas(cfg *config.Config) error {
	for _, rep := range cfg.SortedReplicates() {
		if err := checkHeader(cfg.Resolve(rep.Peptides), func(f *os.File) error {
			_, err := pdtsv.NewPeptideReader(f, cfg.PeptideSchema(rep), rep.Index)
			return err
		}); err != nil {
			return err
		}
		if rep.PSMs == "" {
			continue
		}
		if err := checkHeader(cfg.Resolve(rep.PSMs), func(f *os.File) error {
			_, err := pdtsv.NewPSMReader(f, cfg.Schema.PSM, rep.Index)
			return err
		}); err != nil {
			return err
		}
	}
	return nil
}

func checkHeader(path string, open func(*os.File) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return open(f)
}
