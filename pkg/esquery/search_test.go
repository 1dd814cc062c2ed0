package esquery

import "testing"

func TestSearch_EmptyBody(t *testing.T) {
	body, err := NewSearch().Source()
	if err != nil {
		t.Fatalf("Source: %v", err)
	}
	if len(body) != 0 {
		t.Fatalf("empty search must produce empty body, got %v", body)
	}
}

func TestSearch_SingleClauseUsedDirectly(t *testing.T) {
	s := NewSearch().Query(Q("geo_distance", Params{"distance": "10km"}))
	body, err := s.Source()
	if err != nil {
		t.Fatalf("Source: %v", err)
	}
	q, ok := body["query"].(map[string]any)
	if !ok {
		t.Fatalf("missing query: %v", body)
	}
	if _, ok := q["geo_distance"]; !ok {
		t.Fatalf("single clause must not be wrapped in bool: %v", q)
	}
}

func TestSearch_MultipleClausesWrappedInBoolMust(t *testing.T) {
	s := NewSearch().
		Query(Q("geo_distance", Params{"distance": "10km"})).
		Query(Q("geo_distance", Params{"distance": "20km"}))

	body, err := s.Source()
	if err != nil {
		t.Fatalf("Source: %v", err)
	}
	q := body["query"].(map[string]any)
	boolBody, ok := q["bool"].(map[string]any)
	if !ok {
		t.Fatalf("multiple clauses must be combined under bool: %v", q)
	}
	must := boolBody["must"].([]any)
	if len(must) != 2 {
		t.Fatalf("must size=%d want 2", len(must))
	}
}

func TestSearch_ImmutableBuilder(t *testing.T) {
	base := NewSearch()
	s1 := base.Query(Q("term", Params{"a": 1}))

	if base.QueryCount() != 0 {
		t.Fatalf("applying a clause must not mutate the original builder")
	}
	if s1.QueryCount() != 1 {
		t.Fatalf("derived builder missing its clause")
	}

	s2 := s1.Query(Q("term", Params{"b": 2}))
	s3 := s1.Query(Q("term", Params{"c": 3}))
	if s2.QueryCount() != 2 || s3.QueryCount() != 2 {
		t.Fatalf("sibling builders must not interfere")
	}
}

func TestSearch_SortFromSize(t *testing.T) {
	s := NewSearch().
		Sort(map[string]any{"_geo_distance": map[string]any{"order": "asc"}}).
		From(10).
		Size(25)

	body, err := s.Source()
	if err != nil {
		t.Fatalf("Source: %v", err)
	}
	if len(body["sort"].([]any)) != 1 {
		t.Fatalf("missing sort: %v", body)
	}
	if body["from"] != 10 || body["size"] != 25 {
		t.Fatalf("pagination lost: %v", body)
	}
}
