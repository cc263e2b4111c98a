// Package pipeline coordinates the per-document extraction flow: fingerprint
// the layout, try an eligible cached template, fall back to the oracle, and
// learn a template from what the oracle returned.
package pipeline

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/docextract/internal/cost"
	"github.com/sells-group/docextract/internal/fingerprint"
	"github.com/sells-group/docextract/internal/match"
	"github.com/sells-group/docextract/internal/model"
	"github.com/sells-group/docextract/internal/oracle"
	"github.com/sells-group/docextract/internal/resilience"
	"github.com/sells-group/docextract/internal/store"
	"github.com/sells-group/docextract/internal/synth"
)

// Options configures an Orchestrator.
type Options struct {
	// SuccessThreshold gates template reuse; templates at or below it are
	// skipped at match time.
	SuccessThreshold float64
	// Retry governs oracle call attempts.
	Retry resilience.Policy
	// OracleRPS caps the oracle call rate across all workers. Zero means
	// no limit.
	OracleRPS   float64
	OracleBurst int
}

// Orchestrator runs the extraction state machine for one document at a
// time. It is safe for concurrent use by a worker pool; the store
// serializes counter updates per template id and the running statistics
// are guarded here.
type Orchestrator struct {
	fp      *fingerprint.Fingerprinter
	synth   *synth.Synthesizer
	matcher *match.Matcher
	store   store.Store
	oracle  oracle.Oracle
	calc    *cost.Calculator
	retry   resilience.Policy
	limiter *rate.Limiter

	mu    sync.Mutex
	stats model.Statistics
}

// New creates an Orchestrator wired to the given store and oracle.
func New(st store.Store, orc oracle.Oracle, fp *fingerprint.Fingerprinter, calc *cost.Calculator, opts Options) *Orchestrator {
	var limiter *rate.Limiter
	if opts.OracleRPS > 0 {
		burst := opts.OracleBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.OracleRPS), burst)
	}
	return &Orchestrator{
		fp:      fp,
		synth:   synth.New(fp),
		matcher: match.New(opts.SuccessThreshold),
		store:   st,
		oracle:  orc,
		calc:    calc,
		retry:   opts.Retry,
		limiter: limiter,
	}
}

// Process runs one document through the state machine and appends exactly
// one ExtractionRecord. The returned record mirrors what was stored; an
// error is returned only when the record itself could not be written.
func (o *Orchestrator) Process(ctx context.Context, source, rawText string) (*model.ExtractionRecord, error) {
	log := zap.L().With(zap.String("source", source))

	fp := o.fp.Signature(rawText)
	if fp == "" {
		log.Warn("null fingerprint, document is oracle-only")
	}

	// Template path. A null fingerprint matches nothing.
	var failedID string
	if fp != "" {
		candidates, err := o.store.FindByFingerprint(ctx, fp)
		if err != nil {
			return o.finishFailed(ctx, source, "", false, eris.Wrap(err, "pipeline: lookup templates"))
		}
		if eligible := o.matcher.Eligible(candidates); len(eligible) > 0 {
			tpl := eligible[0]
			fields, applyErr := o.matcher.Apply(tpl, rawText)
			if applyErr == nil {
				if err := o.store.RecordOutcome(ctx, tpl.ID, model.OutcomeSuccess); err != nil {
					log.Warn("record template success", zap.Error(err))
				}
				log.Info("template hit",
					zap.String("template_id", tpl.ID),
					zap.Int("fields", len(fields)),
				)
				return o.finishTemplate(ctx, source, tpl.ID, fields)
			}
			if err := o.store.RecordOutcome(ctx, tpl.ID, model.OutcomeFailure); err != nil {
				log.Warn("record template failure", zap.Error(err))
			}
			failedID = tpl.ID
			log.Info("template attempt failed, falling back to oracle",
				zap.String("template_id", tpl.ID),
				zap.Error(applyErr),
			)
		}
	}

	// Oracle path.
	res, err := resilience.Call(ctx, o.retry, "oracle extract", func(ctx context.Context) (*oracle.Result, error) {
		if o.limiter != nil {
			if err := o.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		return o.oracle.Extract(ctx, oracle.Document{Source: source, RawText: rawText})
	})
	if err != nil {
		return o.finishFailed(ctx, source, failedID, true, eris.Wrap(err, "pipeline: oracle extract"))
	}

	o.learn(ctx, log, fp, failedID, rawText, res.Fields)

	return o.finishOracle(ctx, source, res)
}

// learn stores what the oracle taught us, when anything is learnable. A
// template that just failed on this document is left alone so its failure
// count can push it below the eligibility threshold on its own.
func (o *Orchestrator) learn(ctx context.Context, log *zap.Logger, fp, failedID, rawText string, fields map[string]string) {
	if fp == "" || len(fields) == 0 {
		return
	}

	existing, err := o.store.FindByFingerprint(ctx, fp)
	if err != nil {
		log.Warn("re-check templates before learning", zap.Error(err))
		return
	}

	if len(existing) == 0 {
		tpl, ok := o.synth.LearnTemplate(rawText, fields)
		if !ok {
			log.Info("no learnable rules, template not stored")
			return
		}
		stored, err := o.store.PutTemplate(ctx, tpl)
		if err != nil {
			log.Warn("store learned template", zap.Error(err))
			return
		}
		if stored.ID != tpl.ID {
			log.Debug("concurrent learner won the create, adopting stored template",
				zap.String("template_id", stored.ID))
		} else {
			log.Info("learned new template",
				zap.String("template_id", stored.ID),
				zap.Int("rules", len(stored.Rules)),
			)
		}
		return
	}

	// A template already covers this fingerprint. If it is not the one
	// that just failed, grow it with any fields it does not cover yet.
	tpl := existing[0]
	if tpl.ID == failedID {
		return
	}
	var add []model.ExtractionRule
	for name, value := range fields {
		if _, covered := tpl.Rules[name]; covered {
			continue
		}
		if rule, ok := o.synth.LearnField(rawText, name, value); ok {
			add = append(add, rule)
		}
	}
	if len(add) == 0 {
		return
	}
	if err := o.store.AddRules(ctx, tpl.ID, add); err != nil {
		log.Warn("grow template rules", zap.Error(err))
		return
	}
	log.Info("grew template with newly learnable fields",
		zap.String("template_id", tpl.ID),
		zap.Int("added", len(add)),
	)
}

func (o *Orchestrator) finishTemplate(ctx context.Context, source, templateID string, fields map[string]string) (*model.ExtractionRecord, error) {
	rec := &model.ExtractionRecord{
		ID:         uuid.NewString(),
		Source:     source,
		TemplateID: templateID,
		Status:     model.RecordStatusSuccess,
		CreatedAt:  time.Now().UTC(),
	}
	for _, name := range sortedKeys(fields) {
		rec.Fields = append(rec.Fields, model.FieldResult{
			Field:      name,
			Value:      fields[name],
			Provenance: model.ProvenanceTemplate,
		})
	}

	o.mu.Lock()
	o.stats.Documents++
	o.stats.TemplateHits++
	o.stats.CostSavedUSD += o.calc.UnitCall()
	o.mu.Unlock()

	return rec, o.append(ctx, rec)
}

func (o *Orchestrator) finishOracle(ctx context.Context, source string, res *oracle.Result) (*model.ExtractionRecord, error) {
	rec := &model.ExtractionRecord{
		ID:        uuid.NewString(),
		Source:    source,
		Status:    model.RecordStatusSuccess,
		CostUSD:   res.CostUSD,
		CreatedAt: time.Now().UTC(),
	}

	perField := 0.0
	if len(res.Fields) > 0 {
		perField = res.CostUSD / float64(len(res.Fields))
	}
	for _, name := range sortedKeys(res.Fields) {
		rec.Fields = append(rec.Fields, model.FieldResult{
			Field:      name,
			Value:      res.Fields[name],
			Provenance: model.ProvenanceOracle,
			CostUSD:    perField,
		})
	}

	o.mu.Lock()
	o.stats.Documents++
	o.stats.OracleCalls++
	o.stats.TotalCostUSD += res.CostUSD
	o.mu.Unlock()

	return rec, o.append(ctx, rec)
}

func (o *Orchestrator) finishFailed(ctx context.Context, source, failedID string, oracleCalled bool, cause error) (*model.ExtractionRecord, error) {
	rec := &model.ExtractionRecord{
		ID:         uuid.NewString(),
		Source:     source,
		TemplateID: failedID,
		Status:     model.RecordStatusFailed,
		Error:      cause.Error(),
		CreatedAt:  time.Now().UTC(),
	}

	o.mu.Lock()
	o.stats.Documents++
	if oracleCalled {
		o.stats.OracleCalls++
	}
	o.stats.Failures++
	o.mu.Unlock()

	return rec, o.append(ctx, rec)
}

// append persists the record. Failed records are not errors here; the
// failure already lives in the record itself.
func (o *Orchestrator) append(ctx context.Context, rec *model.ExtractionRecord) error {
	if err := o.store.AppendRecord(ctx, rec); err != nil {
		return eris.Wrapf(err, "pipeline: append record for %s", rec.Source)
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Stats returns a point-in-time snapshot of the running aggregates.
func (o *Orchestrator) Stats() model.Statistics {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.stats
	s.CollectedAt = time.Now().UTC()
	return s
}
