// Package esapi builds Elasticsearch request URLs and bodies.
package esapi

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/arpitjain799/geofilterd/pkg/esquery"
)

// SearchEndpoint returns the _search URL for an index.
func SearchEndpoint(baseURL, index string) string {
	base := strings.TrimRight(baseURL, "/")
	index = strings.Trim(index, "/")
	if index == "" {
		return base + "/_search"
	}
	return base + "/" + index + "/_search"
}

// BuildSearchBody serializes the accumulated search into a request body.
func BuildSearchBody(s esquery.Search) ([]byte, error) {
	src, err := s.Source()
	if err != nil {
		return nil, fmt.Errorf("search source: %w", err)
	}
	b, err := json.Marshal(src)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}
	return b, nil
}
