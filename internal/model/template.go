package model

import "time"

// FieldKind classifies the shape of an extracted value. Each kind has its
// own validator in the matcher, so template application is exhaustive over
// a fixed tagged set rather than ad hoc per field.
type FieldKind string

const (
	FieldKindAmount     FieldKind = "amount"
	FieldKindDate       FieldKind = "date"
	FieldKindIdentifier FieldKind = "identifier"
	FieldKindText       FieldKind = "text"
)

// ExtractionRule is a learned, declarative extraction rule for one field:
// a context anchor (label text immediately preceding the value) paired with
// the value's shape class. Rules are compiled into matchers at use time and
// never carry executable pattern strings.
type ExtractionRule struct {
	Field  string    `json:"field" yaml:"field"`
	Anchor string    `json:"anchor" yaml:"anchor"`
	Kind   FieldKind `json:"kind" yaml:"kind"`
}

// Template is a reusable set of extraction rules tied to one layout
// fingerprint. After creation only the counters, LastUsedAt and the rule set
// (which may grow when new fields become learnable for the same fingerprint)
// are mutable.
type Template struct {
	ID           string                    `json:"id" yaml:"id"`
	Vendor       string                    `json:"vendor,omitempty" yaml:"vendor,omitempty"`
	Fingerprint  string                    `json:"fingerprint" yaml:"fingerprint"`
	Rules        map[string]ExtractionRule `json:"rules" yaml:"rules"`
	SuccessCount int                       `json:"success_count" yaml:"success_count"`
	FailureCount int                       `json:"failure_count" yaml:"failure_count"`
	CreatedAt    time.Time                 `json:"created_at" yaml:"created_at"`
	LastUsedAt   time.Time                 `json:"last_used_at" yaml:"last_used_at"`
}

// SuccessRate returns success_count / (success_count + failure_count).
// A template that has never been attempted reports 1.0 so it is eligible
// by default and gets tried at least once.
func (t *Template) SuccessRate() float64 {
	total := t.SuccessCount + t.FailureCount
	if total == 0 {
		return 1.0
	}
	return float64(t.SuccessCount) / float64(total)
}

// Eligible reports whether the template clears the reuse gate.
func (t *Template) Eligible(threshold float64) bool {
	return t.SuccessRate() > threshold
}

// Clone returns a deep copy. Stores hand out clones so callers never hold
// aliases into store-owned state.
func (t *Template) Clone() *Template {
	cp := *t
	cp.Rules = make(map[string]ExtractionRule, len(t.Rules))
	for k, v := range t.Rules {
		cp.Rules[k] = v
	}
	return &cp
}

// Outcome is the result of one template application attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)
