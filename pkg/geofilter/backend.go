package geofilter

import (
	"net/url"

	"github.com/arpitjain799/geofilterd/pkg/esquery"
)

// Backend applies geo-spatial filter parameters to a search request.
// The zero value is usable; Fields is the static per-index declaration.
type Backend struct {
	Fields map[string]FieldSpec
}

// Apply normalizes the field configuration, extracts matching query
// parameters, and appends one geo_distance clause per value of every
// geo_distance-suffixed parameter. Parameters with other lookups are
// dropped silently. The input Search is returned unchanged when nothing
// matches; Apply never fails.
func (b Backend) Apply(s esquery.Search, query url.Values, docType string) esquery.Search {
	cfg := NormalizeFields(b.Fields)
	params := ExtractParams(cfg, query, docType)

	for _, p := range params {
		if p.Lookup != LookupGeoDistance {
			continue
		}
		for _, value := range p.Values {
			clauseParams := GeoDistanceParams(value, p.Field)
			if clauseParams == nil {
				continue
			}
			s = s.Query(esquery.Q(LookupGeoDistance, clauseParams))
		}
	}
	return s
}
