package h3map

import (
	"fmt"
	"strconv"
	"strings"
)

// meters per Elasticsearch distance unit
var unitMeters = map[string]float64{
	"mm": 0.001,
	"cm": 0.01,
	"m":  1, "meters": 1,
	"km": 1000, "kilometers": 1000,
	"in": 0.0254, "inch": 0.0254,
	"ft": 0.3048, "feet": 0.3048,
	"yd": 0.9144, "yards": 0.9144,
	"mi": 1609.344, "miles": 1609.344,
	"nmi": 1852, "nauticalmiles": 1852,
}

// ParseDistance converts an Elasticsearch distance string such as "12km",
// "500m" or "3mi" to meters. A bare number is meters. This is best-effort
// for cache keying; the raw string still goes upstream untouched.
func ParseDistance(s string) (float64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty distance")
	}

	i := len(s)
	for i > 0 {
		c := s[i-1]
		if c >= '0' && c <= '9' || c == '.' {
			break
		}
		i--
	}
	num, unit := s[:i], s[i:]

	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("parse distance %q: %w", s, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("negative distance %q", s)
	}
	if unit == "" {
		return v, nil
	}
	factor, ok := unitMeters[unit]
	if !ok {
		return 0, fmt.Errorf("unknown distance unit %q", unit)
	}
	return v * factor, nil
}
