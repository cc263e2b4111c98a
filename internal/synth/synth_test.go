package synth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/sells-group/docextract/internal/fingerprint"
	"github.com/sells-group/docextract/internal/match"
	"github.com/sells-group/docextract/internal/model"
)

func newSynth() *Synthesizer {
	return New(fingerprint.New(language.English))
}

func TestLearnField(t *testing.T) {
	t.Parallel()
	s := newSynth()

	raw := "Invoice # INV-001 Date: 2025-01-01 Total: $100.00"

	rule, ok := s.LearnField(raw, "invoice_number", "INV-001")
	require.True(t, ok)
	assert.Equal(t, model.FieldKindIdentifier, rule.Kind)
	assert.NotEmpty(t, rule.Anchor)

	rule, ok = s.LearnField(raw, "date", "2025-01-01")
	require.True(t, ok)
	assert.Equal(t, model.FieldKindDate, rule.Kind)

	rule, ok = s.LearnField(raw, "total_amount", "100.00")
	require.True(t, ok)
	assert.Equal(t, model.FieldKindAmount, rule.Kind)
}

func TestLearnFieldFuzzyNumeric(t *testing.T) {
	t.Parallel()
	s := newSynth()

	// Value reported without currency symbol or thousands separator.
	raw := "Statement Balance Due: $1,250.00 thanks"
	rule, ok := s.LearnField(raw, "balance", "1250.00")
	require.True(t, ok)

	got, ok := match.ApplyRule(rule, raw)
	require.True(t, ok)
	assert.Equal(t, "1,250.00", got)
}

func TestLearnFieldMultibyteCaseFolding(t *testing.T) {
	t.Parallel()
	s := newSynth()

	// 'Ⱥ' (U+023A) lowercases to 'ⱥ' (U+2C65), which is one byte longer in
	// UTF-8. Locating values must index the original text, never a lowered
	// copy whose byte offsets have shifted.
	raw := "ȺȺȺȺ Total: $5.00"
	rule, ok := s.LearnField(raw, "total_amount", "5.00")
	require.True(t, ok)
	got, ok := match.ApplyRule(rule, raw)
	require.True(t, ok)
	assert.Equal(t, "5.00", got)

	// 'İ' (U+0130) lowercases to a longer byte sequence; a value after it
	// must still be found case-insensitively at its true offset.
	text := "İstanbul Office Ref: INV-77"
	idx, matched := locate(text, "inv-77")
	assert.Equal(t, strings.Index(text, "INV-77"), idx)
	assert.Equal(t, "INV-77", matched)
}

func TestLearnFieldUnlocatable(t *testing.T) {
	t.Parallel()
	s := newSynth()

	_, ok := s.LearnField("Invoice # 1 Total: $5.00", "po_number", "PO-777")
	assert.False(t, ok, "value absent from text is a soft failure")

	_, ok = s.LearnField("Invoice # 1", "x", "")
	assert.False(t, ok)

	_, ok = s.LearnField("", "x", "something")
	assert.False(t, ok)
}

func TestLearnTemplateRoundTrip(t *testing.T) {
	t.Parallel()
	s := newSynth()

	raw := "Invoice # INV-001 Date: 2025-01-01 Total: $100.00"
	fields := map[string]string{
		"invoice_number": "INV-001",
		"date":           "2025-01-01",
		"total_amount":   "100.00",
	}

	tpl, ok := s.LearnTemplate(raw, fields)
	require.True(t, ok)
	require.Len(t, tpl.Rules, 3)
	assert.NotEmpty(t, tpl.ID)
	assert.NotEmpty(t, tpl.Fingerprint)

	// Round-trip law: every covered field is reproduced on the learning text.
	for name, rule := range tpl.Rules {
		got, ok := match.ApplyRule(rule, raw)
		require.True(t, ok, "field %s", name)
		assert.Equal(t, fields[name], got, "field %s", name)
	}

	// Same structure, different values: rules carry over.
	other := "Invoice # INV-002 Date: 2025-02-02 Total: $250.50"
	want := map[string]string{
		"invoice_number": "INV-002",
		"date":           "2025-02-02",
		"total_amount":   "250.50",
	}
	for name, rule := range tpl.Rules {
		got, ok := match.ApplyRule(rule, other)
		require.True(t, ok, "field %s", name)
		assert.Equal(t, want[name], got, "field %s", name)
	}
}

func TestLearnTemplateRejectsEmpty(t *testing.T) {
	t.Parallel()
	s := newSynth()

	tpl, ok := s.LearnTemplate("Invoice # 1 Total: $5.00", map[string]string{
		"po_number": "PO-777",
	})
	assert.False(t, ok)
	assert.Nil(t, tpl, "zero learnable rules must not produce a template")

	tpl, ok = s.LearnTemplate("lorem ipsum dolor sit amet", map[string]string{
		"f": "ipsum",
	})
	assert.False(t, ok)
	assert.Nil(t, tpl, "null fingerprint must not produce a template")
}

func TestLearnTemplateVendorLabel(t *testing.T) {
	t.Parallel()
	s := newSynth()

	raw := "Vendor: Acme Supplies Invoice # 77 Total: $10.00"
	tpl, ok := s.LearnTemplate(raw, map[string]string{
		"vendor_name":  "Acme Supplies",
		"total_amount": "10.00",
	})
	require.True(t, ok)
	assert.Equal(t, "Acme Supplies", tpl.Vendor)
}
