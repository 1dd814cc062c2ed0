// Package gateway implements the query engines that turn validated search
// requests into upstream Elasticsearch calls, optionally fronted by a
// cell-keyed Redis cache.
package gateway

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/arpitjain799/geofilterd/internal/esapi"
	"github.com/arpitjain799/geofilterd/internal/h3map"
	"github.com/arpitjain799/geofilterd/internal/model"
	"github.com/arpitjain799/geofilterd/pkg/esquery"
	"github.com/arpitjain799/geofilterd/pkg/geofilter"
)

// buildSearchBody runs the filter and ordering backends over the request's
// query parameters and serializes the resulting search.
func buildSearchBody(filter geofilter.Backend, ordering geofilter.OrderingBackend, q model.QueryRequest) ([]byte, error) {
	s := esquery.Search{}
	s = filter.Apply(s, q.Query, q.DocType)
	s = ordering.Apply(s, q.Query)
	body, err := esapi.BuildSearchBody(s)
	if err != nil {
		return nil, fmt.Errorf("build search body: %w", err)
	}
	return body, nil
}

// footprint is the spatial center and radius of a geo-distance query, used
// only for cache placement. Radius 0 means the distance string could not be
// interpreted and only the center cell is indexed.
type footprint struct {
	center model.GeoPoint
	radius float64
}

// queryFootprint finds the first well-formed geo-distance filter value and
// extracts its coordinates. Parameters are visited in key order so the same
// request always maps to the same cell.
func queryFootprint(filter geofilter.Backend, q model.QueryRequest) (footprint, bool) {
	cfg := geofilter.NormalizeFields(filter.Fields)
	params := geofilter.ExtractParams(cfg, q.Query, q.DocType)

	ks := make([]string, 0, len(params))
	for k := range params {
		ks = append(ks, k)
	}
	sort.Strings(ks)

	for _, k := range ks {
		p := params[k]
		if p.Lookup != geofilter.LookupGeoDistance {
			continue
		}
		for _, v := range p.Values {
			parts := strings.SplitN(v, geofilter.SeparatorValue, 4)
			if len(parts) < 3 {
				continue
			}
			lat, errLat := strconv.ParseFloat(parts[1], 64)
			lon, errLon := strconv.ParseFloat(parts[2], 64)
			if errLat != nil || errLon != nil {
				continue
			}
			if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
				continue
			}
			fp := footprint{center: model.GeoPoint{Lat: lat, Lon: lon}}
			if m, err := h3map.ParseDistance(parts[0]); err == nil {
				fp.radius = m
			}
			return fp, true
		}
	}
	return footprint{}, false
}
