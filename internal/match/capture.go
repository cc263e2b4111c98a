package match

import (
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/sells-group/docextract/internal/model"
)

// Capture regexes anchored at the start of the text that follows a rule's
// context anchor. One per field kind.
var (
	amountCaptureRe = regexp.MustCompile(`^-?[0-9][0-9,]*(\.[0-9]+)?`)
	dateCaptureRe   = regexp.MustCompile(`^(?i)(\d{4}[-/]\d{1,2}[-/]\d{1,2}|\d{1,2}[-/]\d{1,2}[-/]\d{2,4}|\d{1,2}\s+(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?,?\s+\d{4})`)
	identCaptureRe  = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._/-]*`)
)

// valueSeparators are the label/value separator characters skipped between
// an anchor and the value it introduces.
const valueSeparators = " \t\r\n:;#$€£¥*=|>"

var (
	anchorMu    sync.Mutex
	anchorCache = map[string]*regexp.Regexp{}
)

// anchorRegexp compiles a case-insensitive, whitespace-flexible matcher for
// an anchor. Anchors are stored as plain label text; tolerance to layout
// noise lives here, at use time.
func anchorRegexp(anchor string) *regexp.Regexp {
	anchorMu.Lock()
	defer anchorMu.Unlock()
	if re, ok := anchorCache[anchor]; ok {
		return re
	}

	toks := strings.Fields(anchor)
	parts := make([]string, len(toks))
	for i, t := range toks {
		parts[i] = regexp.QuoteMeta(t)
	}
	re := regexp.MustCompile(`(?i)` + strings.Join(parts, `\s+`))
	anchorCache[anchor] = re
	return re
}

// AnchorOccurrences counts whitespace-flexible, case-insensitive occurrences
// of anchor in text. The synthesizer uses this to pick the shortest context
// window that is still unique.
func AnchorOccurrences(text, anchor string) int {
	if strings.TrimSpace(anchor) == "" {
		return 0
	}
	return len(anchorRegexp(anchor).FindAllStringIndex(text, -1))
}

// ApplyRule runs one rule against raw text: find the anchor, skip separator
// characters, capture a value of the rule's kind and validate its shape.
// Returns false when the anchor is absent or no valid value follows it.
func ApplyRule(rule model.ExtractionRule, raw string) (string, bool) {
	if strings.TrimSpace(rule.Anchor) == "" {
		return "", false
	}
	for _, loc := range anchorRegexp(rule.Anchor).FindAllStringIndex(raw, -1) {
		rest := strings.TrimLeft(raw[loc[1]:], valueSeparators)
		if val, ok := capture(rule.Kind, rest); ok {
			return val, true
		}
	}
	return "", false
}

func capture(kind model.FieldKind, rest string) (string, bool) {
	var val string
	switch kind {
	case model.FieldKindAmount:
		val = amountCaptureRe.FindString(rest)
	case model.FieldKindDate:
		val = dateCaptureRe.FindString(rest)
	case model.FieldKindIdentifier:
		val = identCaptureRe.FindString(rest)
	case model.FieldKindText:
		if i := strings.IndexAny(rest, "\r\n"); i >= 0 {
			rest = rest[:i]
		}
		val = strings.TrimSpace(rest)
	}
	if val == "" || !Validate(kind, val) {
		return "", false
	}
	return val, true
}

// Validate checks a captured value against its kind's shape validator.
func Validate(kind model.FieldKind, value string) bool {
	v := strings.TrimSpace(value)
	if v == "" {
		return false
	}
	switch kind {
	case model.FieldKindAmount:
		_, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64)
		return err == nil
	case model.FieldKindDate:
		return dateCaptureRe.FindString(v) == v
	case model.FieldKindIdentifier:
		return identCaptureRe.FindString(v) == v
	default:
		return true
	}
}
