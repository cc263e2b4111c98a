package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSuccessRate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		successes int
		failures  int
		want      float64
	}{
		{"never attempted", 0, 0, 1.0},
		{"all successes", 4, 0, 1.0},
		{"all failures", 0, 3, 0.0},
		{"two of three", 2, 1, 2.0 / 3.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tpl := &Template{SuccessCount: tt.successes, FailureCount: tt.failures}
			assert.InDelta(t, tt.want, tpl.SuccessRate(), 1e-9)
		})
	}
}

func TestEligibleGateIsStrict(t *testing.T) {
	t.Parallel()

	// Exactly at the threshold is not eligible.
	tpl := &Template{SuccessCount: 7, FailureCount: 3}
	assert.False(t, tpl.Eligible(0.7))

	tpl = &Template{SuccessCount: 8, FailureCount: 2}
	assert.True(t, tpl.Eligible(0.7))

	// Fresh templates are eligible by default.
	assert.True(t, (&Template{}).Eligible(0.7))
}

func TestClone(t *testing.T) {
	t.Parallel()

	orig := &Template{
		ID:          "tpl-1",
		Fingerprint: "fp-1",
		Rules: map[string]ExtractionRule{
			"date": {Field: "date", Anchor: "Date:", Kind: FieldKindDate},
		},
		CreatedAt: time.Now().UTC(),
	}

	cp := orig.Clone()
	cp.Rules["total_amount"] = ExtractionRule{Field: "total_amount", Anchor: "Total:", Kind: FieldKindAmount}
	cp.SuccessCount = 9

	assert.Len(t, orig.Rules, 1)
	assert.Zero(t, orig.SuccessCount)
}

func TestFieldMap(t *testing.T) {
	t.Parallel()

	rec := &ExtractionRecord{
		Fields: []FieldResult{
			{Field: "date", Value: "2025-01-01"},
			{Field: "total_amount", Value: "100.00"},
		},
	}
	assert.Equal(t, map[string]string{
		"date":         "2025-01-01",
		"total_amount": "100.00",
	}, rec.FieldMap())
}
