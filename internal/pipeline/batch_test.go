package pipeline

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapDigitizer serves raw text from a fixed map; unknown paths error.
type mapDigitizer map[string]string

func (d mapDigitizer) Text(_ context.Context, path string) (string, error) {
	raw, ok := d[path]
	if !ok {
		return "", eris.Errorf("no such document %s", path)
	}
	return raw, nil
}

func TestRunBatchProcessesAllDocuments(t *testing.T) {
	t.Parallel()

	orc := &scriptedOracle{fields: invoiceOneFields, callCost: 0.02}
	o, st := newOrchestrator(t, orc)

	docs := mapDigitizer{
		"doc1.txt": invoiceOne,
		"doc2.txt": invoiceTwo,
	}
	res, err := o.RunBatch(context.Background(), []string{"doc1.txt", "doc2.txt"}, docs, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.Succeeded)
	assert.EqualValues(t, 0, res.Failed)

	recs, err := st.ListRecords(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestRunBatchIsolatesFailures(t *testing.T) {
	t.Parallel()

	orc := &scriptedOracle{fields: invoiceOneFields, callCost: 0.02}
	o, st := newOrchestrator(t, orc)

	docs := mapDigitizer{"doc1.txt": invoiceOne}
	res, err := o.RunBatch(context.Background(), []string{"missing.pdf", "doc1.txt"}, docs, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Succeeded)
	assert.EqualValues(t, 1, res.Failed)

	// A digitize failure never reaches the record stream; the good
	// document still did.
	recs, err := st.ListRecords(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "doc1.txt", recs[0].Source)
}

func TestRunBatchEmpty(t *testing.T) {
	t.Parallel()

	orc := &scriptedOracle{fields: invoiceOneFields}
	o, _ := newOrchestrator(t, orc)

	res, err := o.RunBatch(context.Background(), nil, mapDigitizer{}, 4)
	require.NoError(t, err)
	assert.Zero(t, res.Succeeded)
	assert.Zero(t, res.Failed)
}
