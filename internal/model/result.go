package model

import "time"

// Provenance identifies which path produced a field value.
type Provenance string

const (
	ProvenanceTemplate Provenance = "template"
	ProvenanceOracle   Provenance = "oracle"
)

// FieldResult is one extracted field with its provenance and the cost it
// incurred. Template-sourced fields are free; oracle-sourced fields carry
// their share of the call cost.
type FieldResult struct {
	Field      string     `json:"field"`
	Value      string     `json:"value"`
	Provenance Provenance `json:"provenance"`
	CostUSD    float64    `json:"cost_usd"`
}

// RecordStatus is the terminal status of one document.
type RecordStatus string

const (
	RecordStatusSuccess RecordStatus = "success"
	RecordStatusFailed  RecordStatus = "failed"
)

// ExtractionRecord is emitted exactly once per processed document.
type ExtractionRecord struct {
	ID         string        `json:"id"`
	Source     string        `json:"source"`
	Fields     []FieldResult `json:"fields,omitempty"`
	TemplateID string        `json:"template_id,omitempty"`
	Status     RecordStatus  `json:"status"`
	Error      string        `json:"error,omitempty"`
	CostUSD    float64       `json:"cost_usd"`
	CreatedAt  time.Time     `json:"created_at"`
}

// FieldMap flattens the record's fields to name → value.
func (r *ExtractionRecord) FieldMap() map[string]string {
	out := make(map[string]string, len(r.Fields))
	for _, f := range r.Fields {
		out[f.Field] = f.Value
	}
	return out
}

// Statistics is a point-in-time snapshot of the running aggregates kept by
// the orchestrator. CostSavedUSD is what the template hits would have cost
// had they gone to the oracle instead.
type Statistics struct {
	Documents    int       `json:"documents"`
	OracleCalls  int       `json:"oracle_calls"`
	TemplateHits int       `json:"template_hits"`
	Failures     int       `json:"failures"`
	TotalCostUSD float64   `json:"total_cost_usd"`
	CostSavedUSD float64   `json:"cost_saved_usd"`
	CollectedAt  time.Time `json:"collected_at"`
}
