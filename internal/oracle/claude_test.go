package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want map[string]string
	}{
		{
			name: "plain object",
			in:   `{"invoice_number":"INV-001","total_amount":"100.00"}`,
			want: map[string]string{"invoice_number": "INV-001", "total_amount": "100.00"},
		},
		{
			name: "fenced json",
			in:   "```json\n{\"date\":\"2025-01-01\"}\n```",
			want: map[string]string{"date": "2025-01-01"},
		},
		{
			name: "bare fence",
			in:   "```\n{\"date\":\"2025-01-01\"}\n```",
			want: map[string]string{"date": "2025-01-01"},
		},
		{
			name: "numbers keep their literal form",
			in:   `{"total_amount":250.50,"quantity":3}`,
			want: map[string]string{"total_amount": "250.50", "quantity": "3"},
		},
		{
			name: "nulls and blanks dropped",
			in:   `{"vendor_name":null,"date":"","invoice_number":"A-1"}`,
			want: map[string]string{"invoice_number": "A-1"},
		},
		{
			name: "nested values skipped",
			in:   `{"line_items":[{"qty":1}],"total_amount":"9.99"}`,
			want: map[string]string{"total_amount": "9.99"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseFields(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFieldsRejectsGarbage(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "   ", "not json at all", "```\n```"} {
		_, err := parseFields(in)
		assert.Error(t, err, "input %q", in)
	}
}
