package digitize

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainTextReadsFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "invoice.txt")
	require.NoError(t, os.WriteFile(path, []byte("Invoice #42\nTotal: $10.00\n"), 0o644))

	got, err := PlainText{}.Text(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "Invoice #42\nTotal: $10.00\n", got)
}

func TestPlainTextMissingFile(t *testing.T) {
	t.Parallel()

	_, err := PlainText{}.Text(context.Background(), filepath.Join(t.TempDir(), "absent.txt"))
	assert.Error(t, err)
}

func TestSelectorRoutesByExtension(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "note.TXT")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	s := New("")
	got, err := s.Text(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}

func TestPdfToTextMissingBinary(t *testing.T) {
	t.Parallel()

	p := NewPdfToText(filepath.Join(t.TempDir(), "no-such-binary"))
	_, err := p.Text(context.Background(), "whatever.pdf")
	assert.Error(t, err)
}
