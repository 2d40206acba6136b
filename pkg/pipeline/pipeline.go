// Package pipeline runs the SILAC analysis from feature tables to ranked differential
// abundance results.
package pipeline

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/ChrisMcGann/silacde/pkg/config"
	"github.com/ChrisMcGann/silacde/pkg/core"
	"github.com/ChrisMcGann/silacde/pkg/deqms"
	"github.com/ChrisMcGann/silacde/pkg/filter"
	"github.com/ChrisMcGann/silacde/pkg/protein"
	"github.com/ChrisMcGann/silacde/pkg/quant"
)

// Warning is a data-quality finding left for human review.
type Warning struct {
	Replicate    int
	MedianRatio  float64
	MajoritySign int
	Message      string
}

// Result holds every materialized output of a run.
type Result struct {
	Replicates   []int
	Ratios       []core.RatioRecord
	Proteins     *protein.Matrix
	Differential []core.DifferentialResult
	PriorDF      float64
	Warnings     []Warning
}

// Pipeline runs the stages in order. Each stage materializes a new table.
type Pipeline struct {
	Config *config.Config
	Logger *zap.Logger
	Policy protein.Policy

	// Contaminant accessions. Run loads them from the configured FASTA.
	Contaminants map[string]struct{}
}

// New creates a pipeline with the default aggregation policy.
func New(cfg *config.Config, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		Config: cfg,
		Logger: logger,
		Policy: protein.DefaultPolicy(),
	}
}

// Run loads the configured tables and runs the analysis.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	if err := p.Config.Validate(); err != nil {
		return nil, err
	}

	contaminants, err := LoadContaminants(p.Config)
	if err != nil {
		return nil, err
	}
	p.Contaminants = contaminants
	p.Logger.Info("Loaded contaminants", zap.Int("accessions", len(contaminants)))

	tables, err := LoadReplicates(ctx, p.Config, p.Logger)
	if err != nil {
		return nil, err
	}

	return p.RunTables(ctx, tables)
}

// RunTables runs the analysis on in-memory tables, which must be ordered by replicate.
func (p *Pipeline) RunTables(ctx context.Context, tables []ReplicateTables) (*Result, error) {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	rule, err := p.Config.SwapRule()
	if err != nil {
		return nil, err
	}
	labels := p.Config.LabelDatabase()

	result := &Result{}
	for _, t := range tables {
		result.Replicates = append(result.Replicates, t.Replicate)
	}
	if !sort.IntsAreSorted(result.Replicates) {
		return nil, fmt.Errorf("replicate tables are not ordered by index: %v", result.Replicates)
	}
	if err := rule.Check(result.Replicates); err != nil {
		return nil, err
	}

	// Filter
	fc := &filter.Config{
		Contaminants:         p.Contaminants,
		RequireUniqueProtein: p.Config.Analysis.RequireUniqueProtein,
	}
	var (
		peptides []core.PeptideFeature
		psms     []core.PSMFeature
		assign   []protein.PeptideProteins
	)
	for _, t := range tables {
		kept, ps := fc.ApplyPeptides(t.Peptides)
		keptPSMs, ms := fc.ApplyPSMs(t.PSMs)
		logger.Info("Filtered features",
			zap.Int("replicate", t.Replicate),
			zap.Int("peptides", ps.Total),
			zap.Int("peptides_kept", ps.Kept),
			zap.Int("psms", ms.Total),
			zap.Int("psms_kept", ms.Kept),
			zap.Any("removed", ps.Removed))

		table := make(protein.PeptideProteins, len(kept))
		for _, f := range kept {
			table[f.Sequence] = f.MasterProteinAccessions
		}
		assign = append(assign, table)
		peptides = append(peptides, kept...)
		psms = append(psms, keptPSMs...)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Annotate, transform, ratio
	annotated, err := quant.Annotate(peptides, rule)
	if err != nil {
		return nil, err
	}
	ratios, dropped, err := quant.CalculateRatios(quant.LogTransform(annotated))
	if err != nil {
		return nil, err
	}
	logger.Info("Calculated ratios",
		zap.Int("records", len(ratios)),
		zap.Int("both_missing", dropped))

	// Provenance
	idx, err := quant.BuildMatchIndex(psms, rule, labels)
	if err != nil {
		return nil, err
	}
	ratios, merge, err := quant.MergeProvenance(ratios, idx)
	if err != nil {
		return nil, err
	}
	logger.Info("Merged provenance",
		zap.Int("indexed_peptides", idx.Len()),
		zap.Int("both_matched", merge.Status[core.BothMatched]),
		zap.Int("treatment_matched_only", merge.Status[core.TreatmentMatchedOnly]),
		zap.Int("control_matched_only", merge.Status[core.ControlMatchedOnly]),
		zap.Int("provenance_unknown", merge.Status[core.ProvenanceUnknown]))
	if n := merge.Status[core.NeitherMatched]; n > 0 {
		logger.Warn("Peptides seen by PSMs without a quantified channel",
			zap.Int("neither_matched", n))
	}
	if merge.UnknownWithRatio > 0 {
		logger.Warn("Quantified peptides without PSM provenance",
			zap.Int("records", merge.UnknownWithRatio))
	}
	result.Warnings = checkDirections(ratios, result.Replicates)
	for _, w := range result.Warnings {
		logger.Warn(w.Message,
			zap.Int("replicate", w.Replicate),
			zap.Float64("median_ratio", w.MedianRatio),
			zap.Int("majority_sign", w.MajoritySign))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Proteins
	assignment, err := protein.Resolve(assign)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve proteins: %w", err)
	}
	result.Ratios = protein.Reassign(ratios, assignment)
	agg := &protein.Aggregator{Labels: labels, Policy: p.Policy, Replicates: result.Replicates}
	matrix, summary, err := agg.Aggregate(ratios, assignment)
	if err != nil {
		return nil, err
	}
	result.Proteins = matrix
	logger.Info("Aggregated proteins",
		zap.Int("proteins", len(matrix.Proteins)),
		zap.Int("peptide_rows", len(matrix.Peptides.Rows)),
		zap.Int("retained", summary.Retained),
		zap.Int("non_finite", summary.NonFinite),
		zap.Int("unassigned", summary.Unassigned),
		zap.Int("duplicates", summary.Duplicates))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Model errors are passed through as returned
	in := deqms.Input{
		Proteins:         matrix.Proteins,
		Ratios:           matrix.Ratios,
		MinPeptideCounts: make([]int, len(matrix.Proteins)),
	}
	for i := range matrix.Proteins {
		in.MinPeptideCounts[i] = matrix.MinPeptideCount(i)
	}
	model := deqms.NewModel(deqms.Config{
		MinPresence:  p.Config.Analysis.MinPresence,
		SmootherSpan: p.Config.Analysis.SmootherSpan,
		MinPeptides:  p.Config.Analysis.MinPeptides,
	}, logger)
	fit, err := model.Fit(in)
	if err != nil {
		return nil, err
	}

	for i := range fit.Differential {
		if row, ok := matrix.Index(fit.Differential[i].Protein); ok {
			fit.Differential[i].MatchSummary = matrix.MatchSummary(row)
		}
	}
	result.Differential = fit.Differential
	result.PriorDF = fit.PriorDF
	logger.Info("Tested proteins",
		zap.Int("tested", len(fit.Differential)),
		zap.Int("filtered", fit.Filtered),
		zap.Float64("prior_df", fit.PriorDF))

	return result, nil
}

// checkDirections flags replicates whose median log-ratio sign disagrees with the
// majority of replicates. A tie has no majority and yields no warnings.
func checkDirections(ratios []core.RatioRecord, replicates []int) []Warning {
	byReplicate := make(map[int][]float64)
	for _, r := range ratios {
		if core.IsFinite(r.Ratio) {
			byReplicate[r.Replicate] = append(byReplicate[r.Replicate], r.Ratio)
		}
	}

	medians := make(map[int]float64)
	balance := 0
	for _, rep := range replicates {
		values := byReplicate[rep]
		if len(values) == 0 {
			continue
		}
		m := protein.Median(values)
		medians[rep] = m
		balance += sign(m)
	}
	majority := sign(float64(balance))
	if majority == 0 {
		return nil
	}

	var warnings []Warning
	for _, rep := range replicates {
		m, ok := medians[rep]
		if !ok || sign(m) == 0 || sign(m) == majority {
			continue
		}
		warnings = append(warnings, Warning{
			Replicate:    rep,
			MedianRatio:  m,
			MajoritySign: majority,
			Message:      "Replicate direction disagrees with majority; check its label swap",
		})
	}
	return warnings
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
