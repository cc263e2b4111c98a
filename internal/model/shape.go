package model

import (
	"regexp"
	"strings"
)

var (
	dateShapeRe   = regexp.MustCompile(`^(?i)(\d{4}[-/]\d{1,2}[-/]\d{1,2}|\d{1,2}[-/]\d{1,2}[-/]\d{2,4}|\d{1,2}\s+(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?,?\s+\d{4})$`)
	amountShapeRe = regexp.MustCompile(`^-?[0-9][0-9,]*(\.[0-9]+)?$`)
	identShapeRe  = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._/-]*$`)
	anyDigitRe    = regexp.MustCompile(`[0-9]`)
)

// KindOf classifies a field value into its shape class. Dates win over
// amounts (a bare ISO date would otherwise parse as three numbers), and a
// token only counts as an identifier if it carries at least one digit, so
// plain words such as vendor names stay free-text.
func KindOf(value string) FieldKind {
	v := strings.TrimSpace(value)
	if v == "" {
		return FieldKindText
	}
	if dateShapeRe.MatchString(v) {
		return FieldKindDate
	}
	if amountShapeRe.MatchString(stripCurrency(v)) {
		return FieldKindAmount
	}
	if identShapeRe.MatchString(v) && anyDigitRe.MatchString(v) {
		return FieldKindIdentifier
	}
	return FieldKindText
}

// stripCurrency removes currency symbols and surrounding noise so "$1,234.50"
// classifies the same as "1234.50". Thousands separators are kept for the
// shape check and stripped again at parse time.
func stripCurrency(v string) string {
	return strings.TrimSpace(strings.TrimLeft(v, "$€£¥ \t"))
}
