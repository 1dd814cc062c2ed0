package geofilter

import (
	"net/url"
	"strings"
)

// ParsedParam is one recognized filter parameter, ready for clause generation.
type ParsedParam struct {
	// Lookup is the suffix after the field name, empty when the key had none.
	Lookup string
	// Values are the trimmed, non-empty raw values in request order.
	Values []string
	// Field is the target document field from the configuration.
	Field string
	// DocType is the mapping name passed through uninterpreted.
	DocType string
}

// ExtractParams selects the query parameters that match the field
// configuration and resolves their lookup suffixes. Keys with unknown field
// names, disallowed suffixes, or only-whitespace values are dropped.
// The transformation is pure; neither input is modified.
func ExtractParams(cfg map[string]FieldConfig, query url.Values, docType string) map[string]ParsedParam {
	out := map[string]ParsedParam{}

	for key, raw := range query {
		name, lookup, hasLookup := strings.Cut(key, SeparatorLookup)

		fc, ok := cfg[name]
		if !ok {
			continue
		}
		if hasLookup && !fc.Allows(lookup) {
			continue
		}
		if !hasLookup {
			lookup = ""
		}

		values := make([]string, 0, len(raw))
		for _, v := range raw {
			v = strings.TrimSpace(v)
			if v != "" {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			continue
		}

		out[key] = ParsedParam{
			Lookup:  lookup,
			Values:  values,
			Field:   fc.Field,
			DocType: docType,
		}
	}
	return out
}
