package digitize

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Digitizer turns a document file into raw text for extraction.
type Digitizer interface {
	Text(ctx context.Context, path string) (string, error)
}

// Selector routes files to a digitizer by extension. PDFs go through
// pdftotext; everything else is read as plain text.
type Selector struct {
	pdf   Digitizer
	plain Digitizer
}

// New creates a Selector. pdfToTextPath may be empty to use the
// binary from PATH.
func New(pdfToTextPath string) *Selector {
	return &Selector{
		pdf:   NewPdfToText(pdfToTextPath),
		plain: PlainText{},
	}
}

func (s *Selector) Text(ctx context.Context, path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return s.pdf.Text(ctx, path)
	}
	return s.plain.Text(ctx, path)
}

// PlainText reads a file as UTF-8 text.
type PlainText struct{}

func (PlainText) Text(_ context.Context, path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "digitize: read %s", path)
	}
	return string(b), nil
}
