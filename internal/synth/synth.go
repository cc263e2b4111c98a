// Package synth derives extraction rules from oracle results. Given the raw
// text and the field values the oracle produced, it locates each value and
// pairs the shortest uniquely-anchoring context window with the value's
// shape class. Minimal anchors maximize reuse across documents that share
// structure but differ in content.
package synth

import (
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/docextract/internal/fingerprint"
	"github.com/sells-group/docextract/internal/match"
	"github.com/sells-group/docextract/internal/model"
)

// maxAnchorTokens bounds the context window considered when hunting for a
// unique anchor. Windows longer than this anchor too much literal content
// to generalize.
const maxAnchorTokens = 4

// vendorField is the oracle field used as the template's vendor label when
// present.
const vendorField = "vendor_name"

var numberScanRe = regexp.MustCompile(`[0-9][0-9,]*(\.[0-9]+)?`)

// Synthesizer learns templates from (raw text, oracle fields) pairs.
type Synthesizer struct {
	fp *fingerprint.Fingerprinter
}

// New creates a Synthesizer that fingerprints with fp.
func New(fp *fingerprint.Fingerprinter) *Synthesizer {
	return &Synthesizer{fp: fp}
}

// LearnField derives a rule for one field, or reports false when the value
// cannot be located or anchored in the text. That is a soft failure: the
// field is simply unlearnable for this layout.
func (s *Synthesizer) LearnField(raw, field, value string) (model.ExtractionRule, bool) {
	value = strings.TrimSpace(value)
	if value == "" || strings.TrimSpace(raw) == "" {
		return model.ExtractionRule{}, false
	}

	idx, matched := locate(raw, value)
	if idx < 0 {
		return model.ExtractionRule{}, false
	}

	kind := model.KindOf(value)
	prefix := strings.Fields(raw[:idx])
	for k := 1; k <= maxAnchorTokens && k <= len(prefix); k++ {
		anchor := strings.Join(prefix[len(prefix)-k:], " ")
		if match.AnchorOccurrences(raw, anchor) != 1 {
			continue
		}
		rule := model.ExtractionRule{Field: field, Anchor: anchor, Kind: kind}
		// The rule must reproduce the located value on the very text it
		// was learned from, otherwise applying it elsewhere is hopeless.
		if got, ok := match.ApplyRule(rule, raw); ok && got == matched {
			return rule, true
		}
	}
	return model.ExtractionRule{}, false
}

// LearnTemplate derives rules for every field and assembles a template
// keyed by the text's fingerprint. Returns false when the text has no
// usable fingerprint or when zero rules could be learned; an empty
// template would be a permanently useless cache entry.
func (s *Synthesizer) LearnTemplate(raw string, fields map[string]string) (*model.Template, bool) {
	fp := s.fp.Signature(raw)
	if fp == "" {
		return nil, false
	}

	rules := make(map[string]model.ExtractionRule)
	for name, value := range fields {
		rule, ok := s.LearnField(raw, name, value)
		if !ok {
			zap.L().Debug("field not learnable",
				zap.String("field", name),
			)
			continue
		}
		rules[name] = rule
	}
	if len(rules) == 0 {
		return nil, false
	}

	now := time.Now().UTC()
	return &model.Template{
		ID:          uuid.New().String(),
		Vendor:      strings.TrimSpace(fields[vendorField]),
		Fingerprint: fp,
		Rules:       rules,
		CreatedAt:   now,
		LastUsedAt:  now,
	}, true
}

// locate finds value in raw, returning the byte offset and the exact text
// that matched. Exact match first, then a light fuzzy pass for numeric
// values that differ only in currency symbols or thousands separators.
func locate(raw, value string) (int, string) {
	if i := strings.Index(raw, value); i >= 0 {
		return i, value
	}
	if i, matched := indexFold(raw, value); i >= 0 {
		return i, matched
	}

	want := normalizeNumber(value)
	if want == "" {
		return -1, ""
	}
	for _, loc := range numberScanRe.FindAllStringIndex(raw, -1) {
		cand := raw[loc[0]:loc[1]]
		if normalizeNumber(cand) == want {
			return loc[0], cand
		}
	}
	return -1, ""
}

// indexFold is a case-insensitive strings.Index that scans s rune by rune,
// so the returned offset and matched text always index s itself. Lowering
// a whole string first can change rune widths and shift byte offsets.
func indexFold(s, substr string) (int, string) {
	if substr == "" {
		return -1, ""
	}
	for i := 0; i < len(s); {
		if n, ok := foldPrefixLen(s[i:], substr); ok {
			return i, s[i : i+n]
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return -1, ""
}

// foldPrefixLen reports whether s begins with a case-insensitive match of
// substr, returning the byte length of the matching prefix of s.
func foldPrefixLen(s, substr string) (int, bool) {
	i := 0
	for _, want := range substr {
		r, size := utf8.DecodeRuneInString(s[i:])
		if size == 0 {
			return 0, false
		}
		if r != want && unicode.ToLower(r) != unicode.ToLower(want) {
			return 0, false
		}
		i += size
	}
	return i, true
}

// normalizeNumber strips currency symbols and thousands separators, keeping
// digits, a sign and the decimal point. Returns "" when nothing numeric
// remains.
func normalizeNumber(s string) string {
	var b strings.Builder
	hasDigit := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			hasDigit = true
		case r == '.' || r == '-':
			b.WriteRune(r)
		case r == ',' || r == '$' || r == '€' || r == '£' || r == '¥' || r == ' ':
			// dropped
		default:
			return ""
		}
	}
	if !hasDigit {
		return ""
	}
	return b.String()
}
