package esquery

import "fmt"

// Search accumulates query clauses and sorts for one _search request.
// All methods are value receivers returning an updated copy; an applied
// Search never mutates the one it was derived from.
type Search struct {
	queries []Query
	sorts   []any
	from    *int
	size    *int
}

func NewSearch() Search { return Search{} }

// Query returns a copy with the clause appended.
func (s Search) Query(q Query) Search {
	s.queries = appendCopy(s.queries, []Query{q})
	return s
}

// Sort returns a copy with the sort specification appended.
func (s Search) Sort(spec any) Search {
	sorts := make([]any, 0, len(s.sorts)+1)
	sorts = append(sorts, s.sorts...)
	s.sorts = append(sorts, spec)
	return s
}

// From returns a copy with the result offset set.
func (s Search) From(n int) Search {
	s.from = &n
	return s
}

// Size returns a copy with the page size set.
func (s Search) Size(n int) Search {
	s.size = &n
	return s
}

// QueryCount reports how many clauses have been applied.
func (s Search) QueryCount() int { return len(s.queries) }

// Source builds the _search request body. A single clause is used as-is,
// multiple clauses are combined under bool.must.
func (s Search) Source() (map[string]any, error) {
	body := map[string]any{}

	switch len(s.queries) {
	case 0:
	case 1:
		src, err := s.queries[0].Source()
		if err != nil {
			return nil, fmt.Errorf("query source: %w", err)
		}
		body["query"] = src
	default:
		combined := NewBoolQuery().Must(s.queries...)
		src, err := combined.Source()
		if err != nil {
			return nil, fmt.Errorf("bool query source: %w", err)
		}
		body["query"] = src
	}

	if len(s.sorts) > 0 {
		body["sort"] = s.sorts
	}
	if s.from != nil {
		body["from"] = *s.from
	}
	if s.size != nil {
		body["size"] = *s.size
	}
	return body, nil
}
