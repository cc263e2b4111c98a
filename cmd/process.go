package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/docextract/internal/model"
)

var processCmd = &cobra.Command{
	Use:   "process <document>",
	Short: "Extract fields from a single document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initExtract(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		path := args[0]
		raw, err := env.Digitizer.Text(ctx, path)
		if err != nil {
			return err
		}

		rec, err := env.Orchestrator.Process(ctx, path, raw)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rec); err != nil {
			return err
		}

		if rec.Status == model.RecordStatusFailed {
			zap.L().Error("extraction failed", zap.String("error", rec.Error))
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(processCmd)
}
