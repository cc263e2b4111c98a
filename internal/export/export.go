// Package export renders the record stream and template registry to XLSX
// and CSV for downstream review.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/sells-group/docextract/internal/model"
	"github.com/sells-group/docextract/internal/store"
)

// Exporter reads from the store and produces export payloads.
type Exporter struct {
	store store.Store
}

func New(st store.Store) *Exporter {
	return &Exporter{store: st}
}

var recordHeaders = []string{
	"Source", "Status", "Provenance", "Template ID", "Fields", "Cost (USD)", "Error", "Processed At",
}

var templateHeaders = []string{
	"ID", "Vendor", "Fingerprint", "Rules", "Successes", "Failures", "Success Rate", "Created", "Last Used",
}

// RecordsXLSX returns a workbook with a Records sheet and a Templates
// sheet. limit bounds the record count; 0 means everything the store will
// return.
func (e *Exporter) RecordsXLSX(ctx context.Context, limit int) ([]byte, error) {
	start := time.Now()

	recs, err := e.store.ListRecords(ctx, limit)
	if err != nil {
		return nil, eris.Wrap(err, "export: list records")
	}
	tpls, err := e.store.AllTemplates(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "export: list templates")
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := writeSheet(f, "Records", recordHeaders, recordRows(recs)); err != nil {
		return nil, err
	}
	if err := writeSheet(f, "Templates", templateHeaders, templateRows(tpls)); err != nil {
		return nil, err
	}
	// Drop the default sheet excelize creates.
	_ = f.DeleteSheet("Sheet1")
	if idx, err := f.GetSheetIndex("Records"); err == nil {
		f.SetActiveSheet(idx)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, eris.Wrap(err, "export: write workbook")
	}

	zap.L().Info("exported workbook",
		zap.Int("records", len(recs)),
		zap.Int("templates", len(tpls)),
		zap.Duration("took", time.Since(start)),
	)
	return buf.Bytes(), nil
}

// RecordsCSV renders the record stream as CSV with the same columns as the
// Records sheet.
func (e *Exporter) RecordsCSV(ctx context.Context, limit int) ([]byte, error) {
	recs, err := e.store.ListRecords(ctx, limit)
	if err != nil {
		return nil, eris.Wrap(err, "export: list records")
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(recordHeaders); err != nil {
		return nil, eris.Wrap(err, "export: write csv header")
	}
	for _, row := range recordRows(recs) {
		if err := w.Write(row); err != nil {
			return nil, eris.Wrap(err, "export: write csv row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, eris.Wrap(err, "export: flush csv")
	}
	return buf.Bytes(), nil
}

func recordRows(recs []model.ExtractionRecord) [][]string {
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, []string{
			r.Source,
			string(r.Status),
			provenanceOf(r),
			r.TemplateID,
			flattenFields(r.Fields),
			strconv.FormatFloat(r.CostUSD, 'f', 4, 64),
			r.Error,
			r.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return rows
}

func templateRows(tpls []*model.Template) [][]string {
	rows := make([][]string, 0, len(tpls))
	for _, t := range tpls {
		lastUsed := ""
		if !t.LastUsedAt.IsZero() {
			lastUsed = t.LastUsedAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, []string{
			t.ID,
			t.Vendor,
			t.Fingerprint,
			strconv.Itoa(len(t.Rules)),
			strconv.Itoa(t.SuccessCount),
			strconv.Itoa(t.FailureCount),
			strconv.FormatFloat(t.SuccessRate(), 'f', 3, 64),
			t.CreatedAt.UTC().Format(time.RFC3339),
			lastUsed,
		})
	}
	return rows
}

func provenanceOf(r model.ExtractionRecord) string {
	if len(r.Fields) == 0 {
		return ""
	}
	return string(r.Fields[0].Provenance)
}

func flattenFields(fields []model.FieldResult) string {
	var buf bytes.Buffer
	for i, f := range fields {
		if i > 0 {
			buf.WriteString("; ")
		}
		fmt.Fprintf(&buf, "%s=%s", f.Field, f.Value)
	}
	return buf.String()
}

func writeSheet(f *excelize.File, sheet string, headers []string, rows [][]string) error {
	if idx, _ := f.GetSheetIndex(sheet); idx == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return eris.Wrapf(err, "export: create sheet %s", sheet)
		}
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return eris.Wrapf(err, "export: write header %s", sheet)
		}
	}
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return eris.Wrapf(err, "export: write row %d of %s", r+2, sheet)
			}
		}
	}
	return nil
}
