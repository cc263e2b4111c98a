// Package fingerprint derives value-independent structural signatures from
// raw document text. The signature is the cache key for template lookup:
// two documents with the same layout but different field values share a
// signature, and reordering sections changes it.
package fingerprint

import (
	"encoding/hex"
	"hash/fnv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// structuralTokens are the layout keywords retained for the signature.
// Literal values (names, amounts, dates) never survive normalization, so
// only these tokens plus digit-run placeholders shape the fingerprint.
var structuralTokens = map[string]struct{}{
	"invoice": {}, "bill": {}, "receipt": {}, "statement": {},
	"total": {}, "subtotal": {}, "tax": {}, "vat": {},
	"date": {}, "due": {}, "customer": {}, "vendor": {}, "supplier": {},
	"item": {}, "description": {}, "quantity": {}, "qty": {},
	"price": {}, "amount": {}, "number": {}, "no": {},
	"ref": {}, "reference": {}, "order": {}, "account": {},
	"balance": {}, "terms": {}, "payment": {},
	digitPlaceholder: {},
}

const digitPlaceholder = "#"

// Fingerprinter normalizes text and computes layout signatures for a single
// configured locale.
type Fingerprinter struct {
	lower cases.Caser
}

// New creates a Fingerprinter that case-folds with the given language tag.
func New(tag language.Tag) *Fingerprinter {
	return &Fingerprinter{lower: cases.Lower(tag)}
}

// Normalize case-folds raw text, replaces every digit run with a single
// placeholder token, strips value-bearing punctuation and collapses
// whitespace. The result contains only letter tokens and placeholders
// separated by single spaces.
func (f *Fingerprinter) Normalize(raw string) string {
	folded := f.lower.String(raw)

	var b strings.Builder
	b.Grow(len(folded))
	inDigits := false
	for _, r := range folded {
		switch {
		case unicode.IsDigit(r):
			if !inDigits {
				b.WriteString(" " + digitPlaceholder + " ")
			}
			inDigits = true
		case unicode.IsLetter(r):
			b.WriteRune(r)
			inDigits = false
		case r == '#':
			b.WriteString(" " + digitPlaceholder + " ")
			inDigits = false
		default:
			b.WriteByte(' ')
			inDigits = false
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// Fingerprint hashes the ordered sequence of structural tokens retained
// from normalized text. Returns "" (the null signature, which matches
// nothing) when the input holds no structural tokens at all.
func (f *Fingerprinter) Fingerprint(normalized string) string {
	var kept []string
	for _, tok := range strings.Fields(normalized) {
		if _, ok := structuralTokens[tok]; ok {
			kept = append(kept, tok)
		}
	}
	if len(kept) == 0 {
		return ""
	}

	h := fnv.New64a()
	for _, tok := range kept {
		h.Write([]byte(tok))
		h.Write([]byte{0x1f})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Signature is shorthand for Fingerprint(Normalize(raw)).
func (f *Fingerprinter) Signature(raw string) string {
	return f.Fingerprint(f.Normalize(raw))
}
