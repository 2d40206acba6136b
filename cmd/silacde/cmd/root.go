// Package cmd provides CLI command implementations
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose   bool
	prettyLog bool

	// Flags for run and validate commands
	configFile  string
	outputFile  string
	proteinFile string
	dbFile      string
	minPresence float64

	// Flags for summarize command
	topN  int
	runID string

	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "silacde",
	Short: "silacde - SILAC differential protein abundance",
	Long: `silacde turns Proteome Discoverer SILAC peptide and PSM exports into ranked
protein-level differential abundance results.

Per replicate, heavy/light intensities are relabelled as treatment/control using
the configured label swap, converted to log2 ratios, annotated with spectrum-match
provenance, summarised to proteins and tested with peptide-count dependent variance
shrinkage (DEqMS).`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if prettyLog {
			config = zap.NewDevelopmentConfig()
		}
		config.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(summarizeCmd)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&prettyLog, "pretty-log", false, "Human readable console logs")

	// Run command flags
	runCmd.Flags().StringVarP(&configFile, "config", "c", "", "Experiment YAML file (required)")
	runCmd.Flags().StringVarP(&outputFile, "out", "o", "", "Results TSV file ('-' or empty = config output or stdout)")
	runCmd.Flags().StringVar(&proteinFile, "proteins", "", "Write the protein x replicate ratio matrix to this TSV file")
	runCmd.Flags().StringVar(&dbFile, "db", "", "Append the run to this SQLite results database")
	runCmd.Flags().Float64Var(&minPresence, "min-presence", 0, "Fraction of replicates a protein needs a ratio in (0 = config value)")
	runCmd.MarkFlagRequired("config")

	// Validate command flags
	validateCmd.Flags().StringVarP(&configFile, "config", "c", "", "Experiment YAML file (required)")
	validateCmd.MarkFlagRequired("config")

	// Summarize command flags
	summarizeCmd.Flags().IntVar(&topN, "top", 20, "Number of proteins to print (0 = all)")
	summarizeCmd.Flags().StringVar(&runID, "run", "", "Run identifier (default: most recent run)")
}
