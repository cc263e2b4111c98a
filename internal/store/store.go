// Package store persists templates and extraction records. All backends
// implement the same contract: per-template-id atomic counter updates,
// create-if-absent template insertion keyed by fingerprint, and ranked
// fingerprint lookup. The core never deletes templates; pruning is an
// external policy.
package store

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/docextract/internal/model"
)

// ErrNotFound is returned when a template id does not exist.
var ErrNotFound = eris.New("store: template not found")

// Store is the persistence contract for the extraction engine.
type Store interface {
	// PutTemplate inserts tpl unless a template for its fingerprint already
	// exists, and returns the authoritative stored template either way.
	// First successful store wins; losers must adopt the returned template.
	PutTemplate(ctx context.Context, tpl *model.Template) (*model.Template, error)
	GetTemplate(ctx context.Context, id string) (*model.Template, error)
	// FindByFingerprint returns templates for an exact fingerprint, ranked
	// by success rate descending, then last-used descending.
	FindByFingerprint(ctx context.Context, fp string) ([]*model.Template, error)
	AllTemplates(ctx context.Context) ([]*model.Template, error)

	// RecordOutcome bumps the template's counters atomically. Success also
	// refreshes last_used_at. Updates to distinct ids never block each other.
	RecordOutcome(ctx context.Context, id string, outcome model.Outcome) error
	// AddRules grows a template's rule set with fields it does not cover
	// yet. Existing rules are never replaced.
	AddRules(ctx context.Context, id string, rules []model.ExtractionRule) error
	// ResetCounters zeroes both counters. This is the only sanctioned way
	// counters ever decrease.
	ResetCounters(ctx context.Context, id string) error

	AppendRecord(ctx context.Context, rec *model.ExtractionRecord) error
	// ListRecords returns the most recent records, newest first. A limit
	// of zero or less returns every record.
	ListRecords(ctx context.Context, limit int) ([]model.ExtractionRecord, error)

	Migrate(ctx context.Context) error
	Close() error
}

// rankTemplates orders templates by success rate descending, breaking ties
// by most recent use.
func rankTemplates(tpls []*model.Template) {
	sort.SliceStable(tpls, func(i, j int) bool {
		ri, rj := tpls[i].SuccessRate(), tpls[j].SuccessRate()
		if ri != rj {
			return ri > rj
		}
		return tpls[i].LastUsedAt.After(tpls[j].LastUsedAt)
	})
}

// mergeRules adds the rules whose fields dst does not already cover.
// Returns true when anything changed.
func mergeRules(dst map[string]model.ExtractionRule, add []model.ExtractionRule) bool {
	changed := false
	for _, r := range add {
		if _, exists := dst[r.Field]; exists {
			continue
		}
		dst[r.Field] = r
		changed = true
	}
	return changed
}
