// Package match applies learned templates to raw text. Lookup is exact on
// the layout fingerprint. There is no approximate matching; structural
// drift produces a fresh template instead of mutating one.
package match

import (
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/docextract/internal/model"
)

// ErrMismatch marks a whole-attempt template failure: at least one rule
// produced no value that passed its shape validator.
var ErrMismatch = eris.New("match: template attempt failed")

// Matcher gates template reuse by success rate and applies rule sets.
type Matcher struct {
	threshold float64
}

// New creates a Matcher with the given eligibility threshold. Only templates
// whose success rate strictly exceeds it are attempted; skipped templates
// are never deleted, so later evidence can still revive them.
func New(threshold float64) *Matcher {
	return &Matcher{threshold: threshold}
}

// Eligible filters ranked candidates down to those clearing the reuse gate,
// preserving order.
func (m *Matcher) Eligible(candidates []*model.Template) []*model.Template {
	var out []*model.Template
	for _, t := range candidates {
		if t.Eligible(m.threshold) {
			out = append(out, t)
		}
	}
	return out
}

// Apply runs every rule of the template against raw text. The attempt
// succeeds only if all rules succeed; partial extraction is never
// committed, and any shortfall fails the whole attempt with ErrMismatch.
func (m *Matcher) Apply(tpl *model.Template, raw string) (map[string]string, error) {
	fields := make([]string, 0, len(tpl.Rules))
	for name := range tpl.Rules {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	out := make(map[string]string, len(fields))
	for _, name := range fields {
		val, ok := ApplyRule(tpl.Rules[name], raw)
		if !ok {
			return nil, eris.Wrapf(ErrMismatch, "field %q", name)
		}
		out[name] = val
	}
	return out, nil
}
