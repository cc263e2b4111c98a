package digitize

import (
	"bytes"
	"context"
	"os/exec"

	"github.com/rotisserie/eris"
)

// PdfToText extracts text from PDFs using the pdftotext CLI tool.
type PdfToText struct {
	binPath string
}

// NewPdfToText creates a PdfToText digitizer. If binPath is empty,
// "pdftotext" is used.
func NewPdfToText(binPath string) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath}
}

// Text runs pdftotext -layout on the given PDF and returns stdout.
// Layout mode preserves the column alignment that anchors depend on.
func (p *PdfToText) Text(ctx context.Context, path string) (string, error) {
	cmd := exec.CommandContext(ctx, p.binPath, "-layout", path, "-")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", eris.Wrapf(err, "digitize: pdftotext failed for %s: %s", path, stderr.String())
	}

	return stdout.String(), nil
}
