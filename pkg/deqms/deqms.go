package deqms

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/ChrisMcGann/silacde/pkg/core"
)

var (
	// ErrDegenerateDesign is returned when a protein has too few observations to estimate
	// a residual variance.
	ErrDegenerateDesign = errors.New("degenerate design")
	// ErrNoProteins is returned when no protein passes the presence filter.
	ErrNoProteins = errors.New("no proteins pass the presence filter")
)

// Config configures the model.
type Config struct {
	MinPresence  float64 // fraction of replicates with a ratio (default: 0.5)
	SmootherSpan float64 // span of the variance trend (default: 0.75)
	MinPeptides  int     // minimum peptide count in the least covered replicate (default: 1)
}

// DefaultConfig returns the default model configuration.
func DefaultConfig() Config {
	return Config{
		MinPresence:  0.5,
		SmootherSpan: 0.75,
		MinPeptides:  1,
	}
}

func (c Config) validate() error {
	if c.MinPresence <= 0 || c.MinPresence > 1 {
		return fmt.Errorf("min presence must be in (0, 1], got %g", c.MinPresence)
	}
	if c.SmootherSpan <= 0 || c.SmootherSpan > 1 {
		return fmt.Errorf("smoother span must be in (0, 1], got %g", c.SmootherSpan)
	}
	return nil
}

// Input is a protein x replicate log-ratio matrix. Missing cells are NaN.
type Input struct {
	Proteins         []string
	Ratios           [][]float64
	MinPeptideCounts []int
}

// Result holds the ranked test results and the fitted prior.
type Result struct {
	Differential []core.DifferentialResult
	PriorDF      float64
	Filtered     int // proteins removed by the presence and peptide filters
}

// Model fits the count-adjusted moderated t test.
type Model struct {
	Config Config
	Logger *zap.Logger
}

// NewModel creates a model. A nil logger disables logging.
func NewModel(cfg Config, logger *zap.Logger) *Model {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Model{Config: cfg, Logger: logger}
}

// Fit tests every protein passing the presence filter and returns results sorted by
// ascending adjusted p-value, then count-adjusted p-value, then accession. Positive
// log fold changes are elevated in the treatment condition.
func (m *Model) Fit(in Input) (*Result, error) {
	if err := m.Config.validate(); err != nil {
		return nil, err
	}
	if len(in.Ratios) != len(in.Proteins) || len(in.MinPeptideCounts) != len(in.Proteins) {
		return nil, fmt.Errorf("input has %d proteins, %d ratio rows and %d peptide counts",
			len(in.Proteins), len(in.Ratios), len(in.MinPeptideCounts))
	}

	logger := m.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		kept   []int
		fits   []linearFit
		result = &Result{}
	)
	for i, row := range in.Ratios {
		if !m.passes(row, in.MinPeptideCounts[i]) {
			result.Filtered++
			continue
		}
		fit, err := lmFit(row)
		if err != nil {
			return nil, fmt.Errorf("protein %s: %w", in.Proteins[i], err)
		}
		kept = append(kept, i)
		fits = append(fits, fit)
	}
	if len(kept) == 0 {
		return nil, ErrNoProteins
	}

	s2 := make([]float64, len(fits))
	df := make([]float64, len(fits))
	counts := make([]int, len(fits))
	for j, fit := range fits {
		s2[j] = fit.s2
		df[j] = fit.df
		counts[j] = in.MinPeptideCounts[kept[j]]
	}
	s2 = floorVariances(s2)

	prior := estimateCountPrior(s2, df, counts, m.Config.SmootherSpan)
	result.PriorDF = prior.df
	logger.Debug("fitted variance prior",
		zap.Int("proteins", len(kept)),
		zap.Int("filtered", result.Filtered),
		zap.Float64("prior_df", prior.df))

	scaP := make([]float64, len(fits))
	for j, fit := range fits {
		t, p := fit.ordinaryT()
		postVar, postDF := prior.posterior(j, s2[j], fit.df)
		scaT := fit.coef / fit.stdevUnscaled / math.Sqrt(postVar)
		scaP[j] = twoSidedP(scaT, postDF)

		result.Differential = append(result.Differential, core.DifferentialResult{
			Protein:         in.Proteins[kept[j]],
			LogFC:           fit.coef,
			T:               t,
			PValue:          p,
			SCAT:            scaT,
			SCAPValue:       scaP[j],
			MinPeptideCount: counts[j],
			Replicates:      fit.n,
		})
	}

	adj := AdjustBH(scaP)
	for j := range result.Differential {
		result.Differential[j].AdjPValue = adj[j]
	}

	sort.SliceStable(result.Differential, func(a, b int) bool {
		ra, rb := result.Differential[a], result.Differential[b]
		if ra.AdjPValue != rb.AdjPValue {
			return ra.AdjPValue < rb.AdjPValue
		}
		if ra.SCAPValue != rb.SCAPValue {
			return ra.SCAPValue < rb.SCAPValue
		}
		return ra.Protein < rb.Protein
	})

	return result, nil
}

// passes applies the presence and peptide count filters. At least two ratios are
// always required to leave one residual degree of freedom.
func (m *Model) passes(row []float64, minCount int) bool {
	present := 0
	for _, v := range row {
		if core.IsFinite(v) {
			present++
		}
	}
	if present < 2 || float64(present) < m.Config.MinPresence*float64(len(row)) {
		return false
	}
	return minCount >= m.Config.MinPeptides && minCount >= 1
}

// AdjustBH returns Benjamini-Hochberg adjusted p-values in the order of p.
func AdjustBH(p []float64) []float64 {
	n := len(p)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return p[order[a]] < p[order[b]]
	})

	adj := make([]float64, n)
	running := 1.0
	for rank := n; rank >= 1; rank-- {
		i := order[rank-1]
		v := p[i] * float64(n) / float64(rank)
		if v < running {
			running = v
		}
		adj[i] = running
	}
	return adj
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
