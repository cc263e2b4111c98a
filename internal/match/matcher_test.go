package match

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/docextract/internal/model"
)

func TestApplyRule(t *testing.T) {
	t.Parallel()

	raw := "Invoice # INV-002 Date: 2025-02-02 Total: $250.50"

	tests := []struct {
		name string
		rule model.ExtractionRule
		want string
		ok   bool
	}{
		{
			name: "identifier after hash anchor",
			rule: model.ExtractionRule{Field: "invoice_number", Anchor: "#", Kind: model.FieldKindIdentifier},
			want: "INV-002",
			ok:   true,
		},
		{
			name: "date after label",
			rule: model.ExtractionRule{Field: "date", Anchor: "Date:", Kind: model.FieldKindDate},
			want: "2025-02-02",
			ok:   true,
		},
		{
			name: "amount after currency symbol",
			rule: model.ExtractionRule{Field: "total_amount", Anchor: "$", Kind: model.FieldKindAmount},
			want: "250.50",
			ok:   true,
		},
		{
			name: "anchor case-insensitive",
			rule: model.ExtractionRule{Field: "date", Anchor: "date:", Kind: model.FieldKindDate},
			want: "2025-02-02",
			ok:   true,
		},
		{
			name: "missing anchor fails",
			rule: model.ExtractionRule{Field: "po", Anchor: "PO Number", Kind: model.FieldKindIdentifier},
			ok:   false,
		},
		{
			name: "shape mismatch fails",
			rule: model.ExtractionRule{Field: "date", Anchor: "Invoice", Kind: model.FieldKindDate},
			ok:   false,
		},
		{
			name: "empty anchor fails",
			rule: model.ExtractionRule{Field: "x", Anchor: "", Kind: model.FieldKindText},
			ok:   false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ApplyRule(tt.rule, raw)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestApplyRuleWhitespaceFlexibleAnchor(t *testing.T) {
	t.Parallel()

	rule := model.ExtractionRule{Field: "total", Anchor: "Grand Total", Kind: model.FieldKindAmount}
	got, ok := ApplyRule(rule, "items...\nGrand\t Total:  1,234.56\n")
	require.True(t, ok)
	assert.Equal(t, "1,234.56", got)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind  model.FieldKind
		value string
		want  bool
	}{
		{model.FieldKindAmount, "100.00", true},
		{model.FieldKindAmount, "1,234.56", true},
		{model.FieldKindAmount, "abc", false},
		{model.FieldKindDate, "2025-01-01", true},
		{model.FieldKindDate, "1/2/25", true},
		{model.FieldKindDate, "not a date", false},
		{model.FieldKindIdentifier, "INV-001", true},
		{model.FieldKindIdentifier, "", false},
		{model.FieldKindText, "anything", true},
		{model.FieldKindText, "  ", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Validate(tt.kind, tt.value), "%s %q", tt.kind, tt.value)
	}
}

func TestMatcherEligible(t *testing.T) {
	t.Parallel()

	m := New(0.7)
	fresh := &model.Template{ID: "fresh"}
	good := &model.Template{ID: "good", SuccessCount: 9, FailureCount: 1}
	// 2 successes, 1 failure: rate 0.667 sits below the 0.7 gate.
	shaky := &model.Template{ID: "shaky", SuccessCount: 2, FailureCount: 1}

	out := m.Eligible([]*model.Template{good, shaky, fresh})
	require.Len(t, out, 2)
	assert.Equal(t, "good", out[0].ID)
	assert.Equal(t, "fresh", out[1].ID, "never-attempted templates are eligible by default")
}

func TestMatcherApplyAllOrNothing(t *testing.T) {
	t.Parallel()

	m := New(0.7)
	tpl := &model.Template{
		ID: "t1",
		Rules: map[string]model.ExtractionRule{
			"invoice_number": {Field: "invoice_number", Anchor: "#", Kind: model.FieldKindIdentifier},
			"total_amount":   {Field: "total_amount", Anchor: "Total:", Kind: model.FieldKindAmount},
		},
	}

	got, err := m.Apply(tpl, "Invoice # A-9 Total: 12.00")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"invoice_number": "A-9", "total_amount": "12.00"}, got)

	// One rule short-falls: the whole attempt fails, nothing is committed.
	_, err = m.Apply(tpl, "Invoice # A-9 Amount due later")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrMismatch))
}
