package model

import (
	"fmt"
	"strings"
)

type Filters []Filter

// Filter represents a query filter
type Filter struct {
	Field string      `json:"field"`
	Op    string      `json:"op"`
	Value interface{} `json:"value"`
}

// Matches evaluates the filter against a document's contents.
func (f Filter) Matches(doc *Document) bool {
	value, ok := doc.Field(f.Field)
	if !ok {
		return false
	}
	switch f.Op {
	case "==":
		return value == f.Value
	case ">", ">=", "<", "<=":
		a, aok := asFloat(value)
		b, bok := asFloat(f.Value)
		if !aok || !bok {
			return false
		}
		switch f.Op {
		case ">":
			return a > b
		case ">=":
			return a >= b
		case "<":
			return a < b
		default:
			return a <= b
		}
	default:
		return false
	}
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// Query selects documents at a path: every direct child of a collection path,
// or the single document named by a document path. Filters narrow collection
// queries by field values.
type Query struct {
	Path    ResourcePath `json:"path"`
	Filters Filters      `json:"filters,omitempty"`
	Limit   int          `json:"limit,omitempty"`
}

// NewQuery builds a query rooted at the given path.
func NewQuery(path ResourcePath) Query {
	return Query{Path: path}
}

// IsDocumentQuery reports whether the query names a single document.
func (q Query) IsDocumentQuery() bool {
	return q.Path.IsDocumentPath()
}

// DocumentKey returns the key of a single-document query.
func (q Query) DocumentKey() (DocumentKey, error) {
	if !q.IsDocumentQuery() {
		return DocumentKey{}, fmt.Errorf("%w: query at %q is not a document query", ErrInvalidQuery, q.Path.String())
	}
	return NewDocumentKey(q.Path)
}

// MatchesPath reports whether a document key falls in the query's scope.
func (q Query) MatchesPath(key DocumentKey) bool {
	path := key.Path()
	if q.IsDocumentQuery() {
		return q.Path.Equal(path)
	}
	return q.Path.IsImmediateParentOf(path)
}

// Matches reports whether a document satisfies the query's path scope and all
// of its filters.
func (q Query) Matches(doc *Document) bool {
	if !q.MatchesPath(doc.DocKey) {
		return false
	}
	for _, f := range q.Filters {
		if !f.Matches(doc) {
			return false
		}
	}
	return true
}

// CanonicalString is a stable textual form of the query, unique per semantics.
func (q Query) CanonicalString() string {
	var b strings.Builder
	b.WriteString(q.Path.String())
	b.WriteString("|f:")
	for _, f := range q.Filters {
		fmt.Fprintf(&b, "%s%s%v,", f.Field, f.Op, f.Value)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, "|l:%d", q.Limit)
	}
	return b.String()
}

// CanonicalID is a fixed-size hash of the canonical string, used by
// persistence backends as the query's primary key.
func (q Query) CanonicalID() string {
	return CalculateID(q.CanonicalString())
}

// Equal reports whether two queries have identical semantics.
func (q Query) Equal(other Query) bool {
	return q.CanonicalString() == other.CanonicalString()
}
