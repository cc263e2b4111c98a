package evaluate

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/docextract/internal/model"
	"github.com/sells-group/docextract/internal/store"
)

func TestMatches(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		predicted string
		expected  string
		want      bool
	}{
		{"exact string", "Acme Corp", "Acme Corp", true},
		{"case and whitespace folded", "  acme corp ", "Acme Corp", true},
		{"different vendor", "Acme Corp", "Globex", false},
		{"amount with currency noise", "$1,250.00", "1250.00", true},
		{"amount within a cent", "1250.004", "1250.00", true},
		{"amount off by a cent", "1250.02", "1250.00", false},
		{"unparseable amount", "n/a", "1250.00", false},
		{"date against timestamp", "2025-03-15T00:00:00Z", "2025-03-15", true},
		{"different date", "2025-03-16", "2025-03-15", false},
		{"identifier is case-insensitive", "inv-001", "INV-001", true},
		{"empty prediction", "", "INV-001", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, Matches(tc.predicted, tc.expected))
		})
	}
}

func seedRecords(t *testing.T) store.Store {
	t.Helper()
	st := store.NewMemory()
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	records := []*model.ExtractionRecord{
		{
			ID:     "rec-1",
			Source: "invoices/acme.pdf",
			Status: model.RecordStatusSuccess,
			Fields: []model.FieldResult{
				{Field: "invoice_number", Value: "INV-001", Provenance: model.ProvenanceOracle},
				{Field: "total_amount", Value: "$1,250.00", Provenance: model.ProvenanceOracle},
				{Field: "date", Value: "2025-03-15", Provenance: model.ProvenanceOracle},
			},
			CreatedAt: base,
		},
		// Stale extraction for the same source; a newer one follows and
		// must win the comparison.
		{
			ID:     "rec-2",
			Source: "invoices/globex.pdf",
			Status: model.RecordStatusSuccess,
			Fields: []model.FieldResult{
				{Field: "invoice_number", Value: "WRONG", Provenance: model.ProvenanceTemplate},
			},
			CreatedAt: base.Add(time.Minute),
		},
		{
			ID:     "rec-3",
			Source: "invoices/globex.pdf",
			Status: model.RecordStatusSuccess,
			Fields: []model.FieldResult{
				{Field: "invoice_number", Value: "GLX-77", Provenance: model.ProvenanceTemplate},
				{Field: "total_amount", Value: "99.95", Provenance: model.ProvenanceTemplate},
			},
			CreatedAt: base.Add(2 * time.Minute),
		},
	}
	for _, rec := range records {
		require.NoError(t, st.AppendRecord(ctx, rec))
	}
	return st
}

func TestRunScoresLabeledDocuments(t *testing.T) {
	t.Parallel()
	st := seedRecords(t)

	labels := []Label{
		{Source: "invoices/acme.pdf", Fields: map[string]string{
			"invoice_number": "INV-001",
			"total_amount":   "1250.00",
			"date":           "2025-03-15",
		}},
		{Source: "invoices/globex.pdf", Fields: map[string]string{
			"invoice_number": "GLX-77",
			"total_amount":   "100.00",
		}},
	}

	rep, err := New(st).Run(context.Background(), labels)
	require.NoError(t, err)

	assert.Equal(t, 2, rep.Documents)
	assert.Equal(t, 0, rep.Missing)
	assert.Equal(t, 5, rep.TotalFields)
	assert.Equal(t, 4, rep.Correct)
	assert.InDelta(t, 0.8, rep.Accuracy, 1e-9)

	assert.InDelta(t, 1.0, rep.ByField["invoice_number"], 1e-9)
	assert.InDelta(t, 0.5, rep.ByField["total_amount"], 1e-9)
	assert.InDelta(t, 1.0, rep.ByField["date"], 1e-9)

	require.Len(t, rep.PerDocument, 2)
	assert.InDelta(t, 1.0, rep.PerDocument[0].Accuracy(), 1e-9)
	assert.InDelta(t, 0.5, rep.PerDocument[1].Accuracy(), 1e-9)
}

func TestRunFlagsMissingDocuments(t *testing.T) {
	t.Parallel()
	st := seedRecords(t)

	labels := []Label{
		{Source: "invoices/never-processed.pdf", Fields: map[string]string{
			"invoice_number": "X-1",
		}},
	}

	rep, err := New(st).Run(context.Background(), labels)
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Documents)
	assert.Equal(t, 1, rep.Missing)
	assert.Zero(t, rep.TotalFields, "missing documents contribute no field comparisons")
	require.Len(t, rep.PerDocument, 1)
	assert.True(t, rep.PerDocument[0].Missing)
}

func TestLoadLabels(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	good := filepath.Join(dir, "labels.json")
	require.NoError(t, os.WriteFile(good, []byte(`[
		{"source": "a.pdf", "fields": {"total_amount": "5.00"}}
	]`), 0o644))
	labels, err := LoadLabels(good)
	require.NoError(t, err)
	require.Len(t, labels, 1)
	assert.Equal(t, "a.pdf", labels[0].Source)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"not": "a list"}`), 0o644))
	_, err = LoadLabels(bad)
	assert.Error(t, err)

	unsourced := filepath.Join(dir, "unsourced.json")
	require.NoError(t, os.WriteFile(unsourced, []byte(`[{"fields": {"x": "1"}}]`), 0o644))
	_, err = LoadLabels(unsourced)
	assert.Error(t, err)

	_, err = LoadLabels(filepath.Join(dir, "absent.json"))
	assert.Error(t, err)
}
