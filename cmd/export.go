package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/docextract/internal/export"
)

var exportLimit int

var exportCmd = &cobra.Command{
	Use:   "export <output.xlsx|output.csv>",
	Short: "Export records and templates to XLSX or CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("export"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		exp := export.New(st)
		out := args[0]

		var data []byte
		switch strings.ToLower(filepath.Ext(out)) {
		case ".xlsx":
			data, err = exp.RecordsXLSX(ctx, exportLimit)
		case ".csv":
			data, err = exp.RecordsCSV(ctx, exportLimit)
		default:
			return eris.Errorf("unsupported export format %q (use .xlsx or .csv)", filepath.Ext(out))
		}
		if err != nil {
			return err
		}

		if err := os.WriteFile(out, data, 0o644); err != nil {
			return eris.Wrapf(err, "write %s", out)
		}
		zap.L().Info("export written", zap.String("path", out), zap.Int("bytes", len(data)))
		return nil
	},
}

func init() {
	exportCmd.Flags().IntVar(&exportLimit, "limit", 0, "max records to export (0 = all)")
	rootCmd.AddCommand(exportCmd)
}
