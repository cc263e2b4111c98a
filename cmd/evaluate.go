package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/docextract/internal/evaluate"
)

var evaluateReportPath string

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <ground-truth.json>",
	Short: "Score stored extractions against hand-labeled ground truth",
	Long: `Evaluate compares the most recent extraction record for each labeled
document with the expected values in the ground-truth file and reports
per-field and overall accuracy. The file is a JSON array of entries:

  [{"source": "invoices/acme.pdf", "fields": {"total_amount": "1250.00"}}]`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("evaluate"); err != nil {
			return err
		}
		labels, err := evaluate.LoadLabels(args[0])
		if err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		rep, err := evaluate.New(st).Run(ctx, labels)
		if err != nil {
			return err
		}
		printReport(cmd, rep)

		if evaluateReportPath != "" {
			data, err := json.MarshalIndent(rep, "", "  ")
			if err != nil {
				return eris.Wrap(err, "marshal report")
			}
			if err := os.WriteFile(evaluateReportPath, data, 0o644); err != nil {
				return eris.Wrapf(err, "write %s", evaluateReportPath)
			}
			zap.L().Info("evaluation report written",
				zap.String("path", evaluateReportPath),
			)
		}
		return nil
	},
}

func printReport(cmd *cobra.Command, rep *evaluate.Report) {
	cmd.Printf("Documents:        %d labeled", rep.Documents)
	if rep.Missing > 0 {
		cmd.Printf(" (%d with no extraction record)", rep.Missing)
	}
	cmd.Println()
	cmd.Printf("Fields:           %d/%d correct\n", rep.Correct, rep.TotalFields)
	cmd.Printf("Overall accuracy: %.1f%%\n", 100*rep.Accuracy)

	fields := make([]string, 0, len(rep.ByField))
	for f := range rep.ByField {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		cmd.Printf("  %-24s %.1f%%\n", f, 100*rep.ByField[f])
	}

	for _, doc := range rep.PerDocument {
		if doc.Missing {
			cmd.Printf("%s: no extraction record\n", doc.Source)
			continue
		}
		if doc.Correct == doc.Total {
			continue
		}
		cmd.Printf("%s: %d/%d\n", doc.Source, doc.Correct, doc.Total)
		for _, f := range doc.Fields {
			if f.Match {
				continue
			}
			cmd.Printf("  %s: got %q, want %q\n", f.Field, f.Predicted, f.Expected)
		}
	}
}

func init() {
	evaluateCmd.Flags().StringVar(&evaluateReportPath, "report", "", "also write the full report as JSON to this path")
	rootCmd.AddCommand(evaluateCmd)
}
