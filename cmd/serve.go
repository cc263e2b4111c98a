package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/docextract/internal/model"
	"github.com/sells-group/docextract/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve read-only records, templates, and stats over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		// The serve process does no extraction of its own; its stats are
		// recomputed from the record stream on each request.
		srv := server.New(st, func() model.Statistics {
			recs, err := st.ListRecords(ctx, 0)
			if err != nil {
				return model.Statistics{}
			}
			return summarize(recs)
		})
		return srv.Serve(ctx, fmt.Sprintf(":%d", port))
	},
}

func summarize(recs []model.ExtractionRecord) model.Statistics {
	var stats model.Statistics
	for _, r := range recs {
		stats.Documents++
		stats.TotalCostUSD += r.CostUSD
		switch {
		case r.Status == model.RecordStatusFailed:
			stats.Failures++
		case r.TemplateID != "":
			stats.TemplateHits++
			stats.CostSavedUSD += cfg.Pricing.UnitCall
		default:
			stats.OracleCalls++
		}
	}
	return stats
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
