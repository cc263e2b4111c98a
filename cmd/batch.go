package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/docextract/internal/pipeline"
)

var batchConcurrency int

var batchCmd = &cobra.Command{
	Use:   "batch <document>...",
	Short: "Extract fields from many documents concurrently",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initExtract(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		concurrency := batchConcurrency
		if concurrency == 0 {
			concurrency = cfg.Batch.MaxConcurrentDocs
		}

		var res pipeline.BatchResult
		if res, err = env.Orchestrator.RunBatch(ctx, args, env.Digitizer, concurrency); err != nil {
			return err
		}

		printStats(cmd, env.Orchestrator.Stats(), res)
		return nil
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "worker pool size (default from config)")
	rootCmd.AddCommand(batchCmd)
}
