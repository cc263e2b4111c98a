package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value string
		want  FieldKind
	}{
		{"2025-01-01", FieldKindDate},
		{"2025/1/5", FieldKindDate},
		{"01/31/2025", FieldKindDate},
		{"15 Jan 2025", FieldKindDate},
		{"100.00", FieldKindAmount},
		{"$1,234.50", FieldKindAmount},
		{"-42", FieldKindAmount},
		{"€99", FieldKindAmount},
		{"INV-001", FieldKindIdentifier},
		{"PO/2025/0042", FieldKindIdentifier},
		{"A1.B2", FieldKindIdentifier},
		{"Acme Corporation", FieldKindText},
		{"net thirty days", FieldKindText},
		// No digit means no identifier, even if the charset fits.
		{"ABC-DEF", FieldKindText},
		{"", FieldKindText},
		{"   ", FieldKindText},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, KindOf(tt.value), "value %q", tt.value)
		})
	}
}
