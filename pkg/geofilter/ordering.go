package geofilter

import (
	"net/url"
	"strings"

	"github.com/arpitjain799/geofilterd/pkg/esquery"
)

// DefaultOrderingParam is the query parameter consulted by OrderingBackend.
const DefaultOrderingParam = "sort"

// OrderingBackend applies geo-distance ordering to a search request.
// Values are shaped <name>:<lat>:<lon>[:<order>] using the same compound
// value delimiter as the filter backend; <name> must be a declared filter
// field. Malformed or unrecognized values are skipped silently.
type OrderingBackend struct {
	Fields map[string]FieldSpec
	// Param overrides DefaultOrderingParam when non-empty.
	Param string
}

// Apply appends one _geo_distance sort per well-formed ordering value,
// in request order.
func (b OrderingBackend) Apply(s esquery.Search, query url.Values) esquery.Search {
	param := b.Param
	if param == "" {
		param = DefaultOrderingParam
	}

	cfg := NormalizeFields(b.Fields)

	for _, raw := range query[param] {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parts := strings.SplitN(raw, SeparatorValue, 4)
		if len(parts) < 3 {
			continue
		}
		fc, ok := cfg[parts[0]]
		if !ok {
			continue
		}
		order := "asc"
		if len(parts) == 4 && (parts[3] == "asc" || parts[3] == "desc") {
			order = parts[3]
		}
		s = s.Sort(map[string]any{
			"_geo_distance": map[string]any{
				fc.Field: map[string]string{
					"lat": parts[1],
					"lon": parts[2],
				},
				"order":         order,
				"unit":          "km",
				"distance_type": DefaultDistanceType,
			},
		})
	}
	return s
}
