package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/docextract/internal/config"
	"github.com/sells-group/docextract/internal/model"
	"github.com/sells-group/docextract/internal/store"
)

func testConfig() *config.Config {
	c := &config.Config{}
	c.Store.Driver = "memory"
	c.Batch.MaxConcurrentDocs = 5
	c.Match.SuccessThreshold = 0.7
	c.Match.Locale = "en"
	c.Oracle.Key = "sk-ant-test"
	c.Oracle.Model = "claude-haiku-4-5-20251001"
	c.Oracle.MaxTokens = 2048
	c.Oracle.Fields = []string{"total_amount"}
	c.Oracle.MaxAttempts = 3
	c.Pricing.UnitCall = 0.02
	c.Server.Port = 8080
	return c
}

func TestInitStoreMemory(t *testing.T) {
	cfg = testConfig()

	st, err := initStore(context.Background())
	require.NoError(t, err)
	defer st.Close()

	_, ok := st.(*store.MemoryStore)
	assert.True(t, ok)
}

func TestInitStoreSQLite(t *testing.T) {
	cfg = testConfig()
	cfg.Store.Driver = "sqlite"
	cfg.Store.Path = t.TempDir() + "/test.db"

	st, err := initStore(context.Background())
	require.NoError(t, err)
	defer st.Close()

	_, ok := st.(*store.SQLiteStore)
	assert.True(t, ok)
}

func TestInitStoreUnknownDriver(t *testing.T) {
	cfg = testConfig()
	cfg.Store.Driver = "redis"

	_, err := initStore(context.Background())
	assert.Error(t, err)
}

func TestInitExtract(t *testing.T) {
	cfg = testConfig()

	env, err := initExtract(context.Background())
	require.NoError(t, err)
	defer env.Close()

	assert.NotNil(t, env.Orchestrator)
	assert.NotNil(t, env.Digitizer)
}

func TestInitExtractRejectsInvalidConfig(t *testing.T) {
	cfg = testConfig()
	cfg.Oracle.Key = ""

	_, err := initExtract(context.Background())
	assert.Error(t, err)
}

func TestNewFingerprinterBadLocaleFallsBack(t *testing.T) {
	fp := newFingerprinter("not-a-locale")
	assert.NotEmpty(t, fp.Signature("Invoice # 42 Total: $10.00"))
}

func TestRatesFromConfig(t *testing.T) {
	pc := config.PricingConfig{
		UnitCall: 0.05,
		Models: map[string]config.ModelPricing{
			"custom-model": {Input: 1.0, Output: 2.0},
		},
	}
	rates := ratesFromConfig(pc)
	assert.InDelta(t, 0.05, rates.UnitCall, 1e-9)
	assert.Contains(t, rates.Models, "custom-model")
	// Defaults survive alongside overrides.
	assert.Contains(t, rates.Models, "claude-haiku-4-5-20251001")
}

func TestSummarize(t *testing.T) {
	cfg = testConfig()

	now := time.Now().UTC()
	recs := []model.ExtractionRecord{
		{Status: model.RecordStatusSuccess, TemplateID: "tpl-1", CreatedAt: now},
		{Status: model.RecordStatusSuccess, CostUSD: 0.02, CreatedAt: now},
		{Status: model.RecordStatusFailed, CreatedAt: now},
	}
	stats := summarize(recs)
	assert.Equal(t, 3, stats.Documents)
	assert.Equal(t, 1, stats.TemplateHits)
	assert.Equal(t, 1, stats.OracleCalls)
	assert.Equal(t, 1, stats.Failures)
	assert.InDelta(t, 0.02, stats.TotalCostUSD, 1e-9)
	assert.InDelta(t, 0.02, stats.CostSavedUSD, 1e-9)
}
