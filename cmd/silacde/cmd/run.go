package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ChrisMcGann/silacde/pkg/config"
	"github.com/ChrisMcGann/silacde/pkg/pipeline"
	"github.com/ChrisMcGann/silacde/pkg/writer/sqlite"
	"github.com/ChrisMcGann/silacde/pkg/writer/tsv"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the analysis and write ranked protein results",
	Long: `Run the full analysis for an experiment file and write one row per tested
protein, sorted by adjusted p-value.

Examples:
  # Write results to stdout
  silacde run --config experiment.yaml

  # Write results and keep the run in a results database
  silacde run --config experiment.yaml --out results.tsv --db results.db

  # Require ratios in three of four replicates
  silacde run --config experiment.yaml --min-presence 0.75`,
	Args: cobra.NoArgs,
	RunE: runAnalysis,
}

func runAnalysis(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	// Flags override the experiment file
	if minPresence > 0 {
		cfg.Analysis.MinPresence = minPresence
	}
	if outputFile != "" {
		cfg.Output.TSV = outputFile
	}
	if dbFile != "" {
		cfg.Output.Database = dbFile
	}

	logger.Info("Starting run",
		zap.String("config", configFile),
		zap.Int("replicates", len(cfg.Replicates)),
		zap.Float64("min_presence", cfg.Analysis.MinPresence))

	result, err := pipeline.New(cfg, logger).Run(cmd.Context())
	if err != nil {
		return err
	}

	if err := writeResultsTSV(cmd, cfg.Output.TSV, result); err != nil {
		return err
	}

	if proteinFile != "" {
		if err := writeProteinMatrix(proteinFile, result); err != nil {
			return err
		}
	}

	if cfg.Output.Database != "" {
		id, err := writeResultsDB(cfg.Output.Database, cfg.Description, result)
		if err != nil {
			return err
		}
		logger.Info("Stored run", zap.String("database", cfg.Output.Database), zap.String("run_id", id))
	}

	logger.Info("Run complete",
		zap.Int("proteins_tested", len(result.Differential)),
		zap.Int("warnings", len(result.Warnings)))
	return nil
}

func writeResultsTSV(cmd *cobra.Command, path string, result *pipeline.Result) error {
	if path == "" || path == "-" {
		return tsv.NewWriter(cmd.OutOrStdout()).WriteResults(result.Differential)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := tsv.NewWriter(f).WriteResults(result.Differential); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close output file: %w", err)
	}
	return nil
}

func writeProteinMatrix(path string, result *pipeline.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create protein matrix file: %w", err)
	}
	m := result.Proteins
	if err := tsv.NewWriter(f).WriteProteinMatrix(m.Proteins, m.Replicates, m.Ratios, m.Counts); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close protein matrix file: %w", err)
	}
	return nil
}

func writeResultsDB(path, description string, result *pipeline.Result) (string, error) {
	writer, err := sqlite.NewWriter(path, description, result.Replicates)
	if err != nil {
		return "", fmt.Errorf("failed to create results database: %w", err)
	}
	// Discards the run unless Finalize committed it
	defer writer.Close()

	for _, rec := range result.Proteins.Records {
		if err := writer.WriteProteinRatio(rec); err != nil {
			return "", err
		}
	}
	for _, res := range result.Differential {
		if err := writer.WriteResult(res); err != nil {
			return "", err
		}
	}

	if err := writer.Finalize(); err != nil {
		return "", fmt.Errorf("failed to finalize database: %w", err)
	}
	return writer.RunID(), nil
}
