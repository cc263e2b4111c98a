// Package oracle defines the expensive, high-accuracy extraction collaborator
// and its production Claude-backed implementation. The engine calls the
// oracle on cache misses and template failures only; every call carries cost
// metadata so savings can be accounted for.
package oracle

import (
	"context"
)

// Document is one unit of work: digitized raw text plus its source name.
type Document struct {
	Source  string
	RawText string
}

// Result is a successful oracle extraction with its cost metadata.
type Result struct {
	Fields       map[string]string
	Model        string
	InputTokens  int64
	OutputTokens int64
	CostUSD      float64
}

// Oracle extracts structured fields from a document. Implementations may be
// slow and may fail transiently; callers wrap Extract in a retry policy.
type Oracle interface {
	Extract(ctx context.Context, doc Document) (*Result, error)
}
