// Package esquery builds Elasticsearch query DSL fragments as plain data.
package esquery

import (
	"encoding/json"
	"fmt"
)

// Params is the parameter object of a single query clause.
type Params map[string]any

// Query is any clause that can serialize itself into the search body.
type Query interface {
	Source() (any, error)
}

type genericQuery struct {
	name   string
	params Params
}

// Q constructs a clause of the given type from raw parameters,
// e.g. Q("geo_distance", Params{"distance": "12km", ...}).
func Q(name string, params Params) Query {
	if params == nil {
		params = Params{}
	}
	return genericQuery{name: name, params: params}
}

func (q genericQuery) Source() (any, error) {
	if q.name == "" {
		return nil, fmt.Errorf("query clause type is required")
	}
	return map[string]any{q.name: map[string]any(q.params)}, nil
}

// BoolQuery combines clauses with must/should/must_not semantics.
type BoolQuery struct {
	must    []Query
	should  []Query
	mustNot []Query
}

func NewBoolQuery() BoolQuery { return BoolQuery{} }

// Must returns a copy with the clauses appended to the must group.
func (b BoolQuery) Must(qs ...Query) BoolQuery {
	b.must = appendCopy(b.must, qs)
	return b
}

// Should returns a copy with the clauses appended to the should group.
func (b BoolQuery) Should(qs ...Query) BoolQuery {
	b.should = appendCopy(b.should, qs)
	return b
}

// MustNot returns a copy with the clauses appended to the must_not group.
func (b BoolQuery) MustNot(qs ...Query) BoolQuery {
	b.mustNot = appendCopy(b.mustNot, qs)
	return b
}

func (b BoolQuery) Source() (any, error) {
	body := map[string]any{}
	groups := []struct {
		key string
		qs  []Query
	}{
		{"must", b.must},
		{"should", b.should},
		{"must_not", b.mustNot},
	}
	for _, g := range groups {
		if len(g.qs) == 0 {
			continue
		}
		srcs := make([]any, len(g.qs))
		for i, q := range g.qs {
			src, err := q.Source()
			if err != nil {
				return nil, fmt.Errorf("bool %s[%d]: %w", g.key, i, err)
			}
			srcs[i] = src
		}
		body[g.key] = srcs
	}
	return map[string]any{"bool": body}, nil
}

// MarshalSource renders a clause as JSON, mainly for logging and tests.
func MarshalSource(q Query) ([]byte, error) {
	src, err := q.Source()
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(src)
	if err != nil {
		return nil, fmt.Errorf("marshal query source: %w", err)
	}
	return b, nil
}

// appendCopy never aliases the receiver's backing array, so copies of a
// builder cannot observe each other's later appends.
func appendCopy(dst []Query, qs []Query) []Query {
	out := make([]Query, 0, len(dst)+len(qs))
	out = append(out, dst...)
	return append(out, qs...)
}
