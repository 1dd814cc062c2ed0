// Package geofilter translates query-string parameters into geo-spatial
// query clauses for an Elasticsearch-style search request.
package geofilter

import (
	"encoding/json"
	"fmt"
)

const (
	// LookupGeoDistance is the lookup suffix that produces geo_distance clauses.
	LookupGeoDistance    = "geo_distance"
	LookupGeoBoundingBox = "geo_bounding_box"
	LookupGeoPolygon     = "geo_polygon"

	// SeparatorLookup splits a parameter key into field name and lookup suffix.
	SeparatorLookup = "__"
	// SeparatorValue splits a compound lookup value into its components.
	SeparatorValue = ":"

	// DefaultDistanceType is used when a geo-distance value carries no
	// explicit distance-type component.
	DefaultDistanceType = "sloppy_arc"
)

// AllGeoLookups returns the full set of supported geo-spatial lookups.
func AllGeoLookups() []string {
	return []string{LookupGeoDistance, LookupGeoBoundingBox, LookupGeoPolygon}
}

// FieldSpec is a raw per-field filter declaration. In JSON it may be null
// (defaults), a plain string (the target document field), or an object with
// explicit field and lookups.
type FieldSpec struct {
	Field   string   `json:"field,omitempty"`
	Lookups []string `json:"lookups,omitempty"`
}

// UnmarshalJSON accepts the three declaration shapes. Anything else is
// coerced to defaults rather than rejected.
func (s *FieldSpec) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = FieldSpec{Field: str}
		return nil
	}

	type plain FieldSpec
	var p plain
	if err := json.Unmarshal(data, &p); err == nil {
		*s = FieldSpec(p)
		return nil
	}

	*s = FieldSpec{}
	return nil
}

// ParseFieldSpecs decodes a JSON field configuration document, e.g.
// {"location": {"field": "loc", "lookups": ["geo_distance"]}, "point": null}.
func ParseFieldSpecs(data []byte) (map[string]FieldSpec, error) {
	specs := map[string]FieldSpec{}
	if len(data) == 0 {
		return specs, nil
	}
	if err := json.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("parse filter fields: %w", err)
	}
	return specs, nil
}

// FieldConfig is a fully-populated filter field configuration.
type FieldConfig struct {
	Field   string
	Lookups []string
}

// Allows reports whether the lookup suffix is permitted for this field.
func (c FieldConfig) Allows(lookup string) bool {
	for _, l := range c.Lookups {
		if l == lookup {
			return true
		}
	}
	return false
}

// NormalizeFields fills defaults for every declared filter field and returns
// a new map; the input is never mutated, so a shared static declaration is
// safe to normalize concurrently per request.
func NormalizeFields(specs map[string]FieldSpec) map[string]FieldConfig {
	out := make(map[string]FieldConfig, len(specs))
	for name, spec := range specs {
		cfg := FieldConfig{Field: spec.Field}
		if cfg.Field == "" {
			cfg.Field = name
		}
		if len(spec.Lookups) > 0 {
			cfg.Lookups = append([]string(nil), spec.Lookups...)
		} else {
			cfg.Lookups = AllGeoLookups()
		}
		out[name] = cfg
	}
	return out
}
