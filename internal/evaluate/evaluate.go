// Package evaluate scores stored extraction results against hand-labeled
// ground truth. Labels live in a JSON file the operator fills in for a
// handful of documents; the evaluator compares them field by field with
// the most recent extraction record for each source and reports per-field
// and overall accuracy.
package evaluate

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/docextract/internal/model"
	"github.com/sells-group/docextract/internal/store"
)

// amountTolerance is the allowed absolute difference when comparing
// amounts numerically. A cent absorbs formatting noise without letting
// real discrepancies through.
const amountTolerance = 0.01

// Label is one hand-labeled document: the source path as it was recorded
// during extraction, and the expected value for each field of interest.
type Label struct {
	Source string            `json:"source"`
	Fields map[string]string `json:"fields"`
}

// LoadLabels reads a JSON array of labels from path.
func LoadLabels(path string) ([]Label, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "evaluate: read labels")
	}
	var labels []Label
	if err := json.Unmarshal(data, &labels); err != nil {
		return nil, eris.Wrap(err, "evaluate: parse labels")
	}
	for i, l := range labels {
		if l.Source == "" {
			return nil, eris.Errorf("evaluate: label %d has no source", i)
		}
		if len(l.Fields) == 0 {
			return nil, eris.Errorf("evaluate: label for %s has no fields", l.Source)
		}
	}
	return labels, nil
}

// FieldOutcome is the comparison result for one labeled field.
type FieldOutcome struct {
	Field     string `json:"field"`
	Predicted string `json:"predicted"`
	Expected  string `json:"expected"`
	Match     bool   `json:"match"`
}

// DocumentReport scores one labeled document. Missing marks a label with
// no extraction record to compare against; its fields count toward
// nothing and the document is surfaced separately.
type DocumentReport struct {
	Source  string         `json:"source"`
	Missing bool           `json:"missing,omitempty"`
	Fields  []FieldOutcome `json:"fields,omitempty"`
	Correct int            `json:"correct"`
	Total   int            `json:"total"`
}

// Accuracy is the fraction of this document's labeled fields that matched.
func (d *DocumentReport) Accuracy() float64 {
	if d.Total == 0 {
		return 0
	}
	return float64(d.Correct) / float64(d.Total)
}

// Report aggregates field comparisons across every labeled document.
type Report struct {
	Documents   int                `json:"documents"`
	Missing     int                `json:"missing"`
	TotalFields int                `json:"total_fields"`
	Correct     int                `json:"correct_fields"`
	Accuracy    float64            `json:"accuracy"`
	ByField     map[string]float64 `json:"field_accuracy"`
	PerDocument []DocumentReport   `json:"document_results"`
}

// Evaluator compares stored extraction records with labels.
type Evaluator struct {
	store store.Store
}

// New creates an Evaluator reading records from st.
func New(st store.Store) *Evaluator {
	return &Evaluator{store: st}
}

// Run scores every label against the newest extraction record for its
// source and returns the aggregate report.
func (e *Evaluator) Run(ctx context.Context, labels []Label) (*Report, error) {
	recs, err := e.store.ListRecords(ctx, 0)
	if err != nil {
		return nil, eris.Wrap(err, "evaluate: list records")
	}

	// Records come back newest first; the first sighting of a source is
	// its most recent extraction.
	latest := make(map[string]map[string]string, len(recs))
	for i := range recs {
		if _, seen := latest[recs[i].Source]; !seen {
			latest[recs[i].Source] = recs[i].FieldMap()
		}
	}

	report := &Report{ByField: map[string]float64{}}
	fieldCorrect := map[string]int{}
	fieldTotal := map[string]int{}

	for _, label := range labels {
		report.Documents++
		doc := DocumentReport{Source: label.Source}

		extracted, ok := latest[label.Source]
		if !ok {
			doc.Missing = true
			report.Missing++
			report.PerDocument = append(report.PerDocument, doc)
			continue
		}

		for _, field := range sortedFields(label.Fields) {
			expected := label.Fields[field]
			outcome := FieldOutcome{
				Field:     field,
				Predicted: extracted[field],
				Expected:  expected,
				Match:     Matches(extracted[field], expected),
			}
			doc.Fields = append(doc.Fields, outcome)
			doc.Total++
			fieldTotal[field]++
			if outcome.Match {
				doc.Correct++
				fieldCorrect[field]++
			}
		}

		report.TotalFields += doc.Total
		report.Correct += doc.Correct
		report.PerDocument = append(report.PerDocument, doc)
	}

	if report.TotalFields > 0 {
		report.Accuracy = float64(report.Correct) / float64(report.TotalFields)
	}
	for field, total := range fieldTotal {
		report.ByField[field] = float64(fieldCorrect[field]) / float64(total)
	}
	return report, nil
}

// Matches compares a predicted value to its expected value using the
// expected value's shape class: amounts compare numerically within a
// cent, dates compare on their date part, and everything else compares
// case-insensitively after trimming.
func Matches(predicted, expected string) bool {
	predicted = strings.TrimSpace(predicted)
	expected = strings.TrimSpace(expected)
	switch model.KindOf(expected) {
	case model.FieldKindAmount:
		p, perr := parseAmount(predicted)
		w, werr := parseAmount(expected)
		return perr == nil && werr == nil && math.Abs(p-w) < amountTolerance
	case model.FieldKindDate:
		return datePart(predicted) == datePart(expected)
	default:
		return strings.EqualFold(predicted, expected)
	}
}

func parseAmount(s string) (float64, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ',', '$', '€', '£', '¥', ' ':
			return -1
		}
		return r
	}, s)
	return strconv.ParseFloat(cleaned, 64)
}

// datePart keeps the leading YYYY-MM-DD portion so timestamps and bare
// dates compare equal.
func datePart(s string) string {
	if len(s) > 10 {
		return s[:10]
	}
	return s
}

func sortedFields(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
