package pipeline

import (
	"context"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/docextract/internal/digitize"
	"github.com/sells-group/docextract/internal/model"
)

// BatchResult summarizes one batch run.
type BatchResult struct {
	Succeeded int64
	Failed    int64
}

// RunBatch digitizes and processes paths concurrently with a bounded worker
// pool. Documents are independent; one document's failure never aborts the
// batch. Cancellation between documents leaves the store consistent because
// every store mutation is atomic per key.
func (o *Orchestrator) RunBatch(ctx context.Context, paths []string, dg digitize.Digitizer, concurrency int) (BatchResult, error) {
	if len(paths) == 0 {
		zap.L().Info("no documents to process")
		return BatchResult{}, nil
	}
	if concurrency < 1 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("documents", len(paths)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64

	for _, path := range paths {
		g.Go(func() error {
			log := zap.L().With(zap.String("document", path))

			raw, err := dg.Text(gctx, path)
			if err != nil {
				failed.Add(1)
				log.Error("digitize failed", zap.Error(err))
				return nil // don't abort batch on individual failure
			}

			rec, err := o.Process(gctx, path, raw)
			if err != nil {
				failed.Add(1)
				log.Error("record write failed", zap.Error(err))
				return nil
			}
			if rec.Status == model.RecordStatusFailed {
				failed.Add(1)
				log.Error("extraction failed", zap.String("error", rec.Error))
				return nil
			}

			succeeded.Add(1)
			log.Info("extraction complete",
				zap.Int("fields", len(rec.Fields)),
				zap.Float64("cost_usd", rec.CostUSD),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return BatchResult{}, eris.Wrap(err, "pipeline: batch processing")
	}

	stats := o.Stats()
	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
		zap.Int("oracle_calls", stats.OracleCalls),
		zap.Int("template_hits", stats.TemplateHits),
		zap.Float64("total_cost_usd", stats.TotalCostUSD),
		zap.Float64("cost_saved_usd", stats.CostSavedUSD),
	)
	return BatchResult{Succeeded: succeeded.Load(), Failed: failed.Load()}, nil
}
