package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/docextract/internal/model"
	"github.com/sells-group/docextract/internal/pipeline"
)

var statsLimit int

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize processed documents and oracle savings",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("stats"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		recs, err := st.ListRecords(ctx, statsLimit)
		if err != nil {
			return err
		}

		stats := summarize(recs)
		printStats(cmd, stats, pipeline.BatchResult{
			Succeeded: int64(stats.Documents - stats.Failures),
			Failed:    int64(stats.Failures),
		})
		return nil
	},
}

func printStats(cmd *cobra.Command, stats model.Statistics, res pipeline.BatchResult) {
	cmd.Printf("Documents:      %d (%d succeeded, %d failed)\n", stats.Documents, res.Succeeded, res.Failed)
	cmd.Printf("Template hits:  %d\n", stats.TemplateHits)
	cmd.Printf("Oracle calls:   %d\n", stats.OracleCalls)
	cmd.Printf("Total cost:     %s\n", usd(stats.TotalCostUSD))
	cmd.Printf("Cost saved:     %s", usd(stats.CostSavedUSD))
	if spent := stats.TotalCostUSD + stats.CostSavedUSD; spent > 0 {
		cmd.Printf(" (%.1f%% of what oracle-only would have cost)", 100*stats.CostSavedUSD/spent)
	}
	cmd.Println()
}

func usd(v float64) string {
	return fmt.Sprintf("$%.4f", v)
}

func init() {
	statsCmd.Flags().IntVar(&statsLimit, "limit", 0, "max records to summarize (0 = all)")
	rootCmd.AddCommand(statsCmd)
}
