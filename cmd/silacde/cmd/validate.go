package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ChrisMcGann/silacde/pkg/config"
	"github.com/ChrisMcGann/silacde/pkg/pipeline"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate an experiment file and its table headers",
	Long: `Check the experiment file, the label swap of every replicate and the header of
every peptide and PSM table, without running the analysis. The first problem is
reported with the offending replicate and column.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if _, err := pipeline.LoadContaminants(cfg); err != nil {
			return err
		}
		if err := pipeline.CheckSchemas(cfg); err != nil {
			return err
		}

		logger.Debug("Validated experiment", zap.String("config", configFile))
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d replicates OK\n", configFile, len(cfg.Replicates))
		return nil
	},
}
