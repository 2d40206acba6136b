package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ChrisMcGann/silacde/pkg/writer/sqlite"
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize [database]",
	Short: "Summarize a stored run",
	Long:  `Print the run metadata and the top-ranked proteins of a run stored with 'silacde run --db'.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := sqlite.ReadResults(args[0], runID)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Run: %s\n", res.Run.ID)
		fmt.Fprintf(out, "Created: %s\n", res.Run.CreationDate)
		if res.Run.Description != "" {
			fmt.Fprintf(out, "Description: %s\n", res.Run.Description)
		}
		fmt.Fprintf(out, "Replicates: %v\n", res.Run.Replicates)
		fmt.Fprintf(out, "Proteins tested: %d\n\n", len(res.Differential))

		rows := res.Differential
		if topN > 0 && len(rows) > topN {
			rows = rows[:topN]
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "rank\taccession\tlog_fc\tsca_p_value\tadj_p_value\tpeptides\tmatch")
		for i, r := range rows {
			fmt.Fprintf(tw, "%d\t%s\t%.3f\t%.3g\t%.3g\t%d\t%s\n",
				i+1, r.Protein, r.LogFC, r.SCAPValue, r.AdjPValue, r.MinPeptideCount, r.MatchSummary)
		}
		return tw.Flush()
	},
}
