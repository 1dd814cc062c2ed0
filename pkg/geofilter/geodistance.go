package geofilter

import (
	"strings"

	"github.com/arpitjain799/geofilterd/pkg/esquery"
)

// GeoDistanceParams parses a compound geo-distance value of the form
// <distance>:<lat>:<lon>[:<distance_type>] into geo_distance clause
// parameters for the given target field. Fewer than three components yield
// nil, which callers treat as "no clause". Distance and coordinates pass
// through as opaque strings; the search engine does its own validation.
func GeoDistanceParams(value, field string) esquery.Params {
	parts := strings.SplitN(value, SeparatorValue, 4)
	if len(parts) < 3 {
		return nil
	}

	params := esquery.Params{
		"distance": parts[0],
		field: map[string]string{
			"lat": parts[1],
			"lon": parts[2],
		},
	}
	if len(parts) == 4 {
		params["distance_type"] = parts[3]
	} else {
		params["distance_type"] = DefaultDistanceType
	}
	return params
}
