package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/language"

	"github.com/sells-group/docextract/internal/config"
	"github.com/sells-group/docextract/internal/cost"
	"github.com/sells-group/docextract/internal/digitize"
	"github.com/sells-group/docextract/internal/fingerprint"
	"github.com/sells-group/docextract/internal/oracle"
	"github.com/sells-group/docextract/internal/pipeline"
	"github.com/sells-group/docextract/internal/resilience"
	"github.com/sells-group/docextract/internal/store"
)

// extractEnv holds everything the process/batch commands need.
type extractEnv struct {
	Store        store.Store
	Orchestrator *pipeline.Orchestrator
	Digitizer    digitize.Digitizer
}

// Close releases resources held by the environment.
func (e *extractEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initExtract sets up the store, oracle, and orchestrator. Callers should
// defer env.Close().
func initExtract(ctx context.Context) (*extractEnv, error) {
	if err := cfg.Validate("extract"); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	calc := cost.NewCalculator(ratesFromConfig(cfg.Pricing))
	orc := oracle.NewClaude(cfg.Oracle.Key, cfg.Oracle.Model, cfg.Oracle.MaxTokens, cfg.Oracle.Fields, calc)

	retry := resilience.DefaultPolicy()
	retry.MaxAttempts = cfg.Oracle.MaxAttempts
	if cfg.Oracle.TimeoutSecs > 0 {
		retry.AttemptTimeout = time.Duration(cfg.Oracle.TimeoutSecs) * time.Second
	}
	if cfg.Oracle.BackoffMillis > 0 {
		retry.InitialBackoff = time.Duration(cfg.Oracle.BackoffMillis) * time.Millisecond
	}
	if cfg.Oracle.MaxBackoffSecs > 0 {
		retry.MaxBackoff = time.Duration(cfg.Oracle.MaxBackoffSecs) * time.Second
	}

	orch := pipeline.New(st, orc, newFingerprinter(cfg.Match.Locale), calc, pipeline.Options{
		SuccessThreshold: cfg.Match.SuccessThreshold,
		Retry:            retry,
		OracleRPS:        cfg.Oracle.RatePerSecond,
		OracleBurst:      cfg.Oracle.RateBurst,
	})

	return &extractEnv{
		Store:        st,
		Orchestrator: orch,
		Digitizer:    digitize.New(cfg.Digitize.PdfToTextPath),
	}, nil
}

// initStore builds and migrates the configured store backend.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "memory":
		st = store.NewMemory()
	case "sqlite":
		st, err = store.NewSQLite(cfg.Store.Path)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store.driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func newFingerprinter(locale string) *fingerprint.Fingerprinter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return fingerprint.New(tag)
}

// ratesFromConfig maps configured pricing onto calculator rates, falling
// back to defaults where unset.
func ratesFromConfig(pc config.PricingConfig) cost.Rates {
	rates := cost.DefaultRates()
	if pc.UnitCall > 0 {
		rates.UnitCall = pc.UnitCall
	}
	for id, mp := range pc.Models {
		rates.Models[id] = cost.ModelRate{Input: mp.Input, Output: mp.Output}
	}
	return rates
}
