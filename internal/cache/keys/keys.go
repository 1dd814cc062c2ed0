// Package keys builds deterministic, ASCII-safe Redis keys for cached
// search responses.
package keys

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// keys keep a readable (truncated) query fragment for debugging; the hash
// suffix is what guarantees uniqueness
const maxQueryTextLen = 160

// Key builds the cache key for one search response. cell is the H3 cell of
// the query center, or empty when the query has no geo point.
func Key(index string, res int, cell, canonicalQuery string) string {
	indexNorm := sanitize(strings.TrimSpace(index))
	if cell == "" {
		cell = "-"
	}

	qSafe := sanitize(canonicalQuery)
	if len(qSafe) > maxQueryTextLen {
		qSafe = qSafe[:maxQueryTextLen]
	}

	sum := xxhash.Sum64String(canonicalQuery)

	return fmt.Sprintf("gf:%s:%d:%s:q=%s:h=%016x", indexNorm, res, cell, qSafe, sum)
}

// CellIndexKey names the per-cell list of cache keys used by invalidation.
func CellIndexKey(index string, res int, cell string) string {
	return fmt.Sprintf("gfidx:%s:%d:%s", sanitize(strings.TrimSpace(index)), res, cell)
}

// CanonicalQuery renders query parameters as a stable string: keys sorted,
// values kept in request order, whitespace trimmed. Equivalent requests
// that differ only in parameter order share a cache entry.
func CanonicalQuery(query url.Values) string {
	names := make([]string, 0, len(query))
	for k := range query {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, k := range names {
		for _, v := range query[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(strings.TrimSpace(v))
		}
	}
	return b.String()
}

// sanitize maps a string onto the safe key alphabet: whitespace runs become
// a single '_', other disallowed runes become '-', and runs of either
// replacement collapse.
func sanitize(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))

	var prev rune
	for _, r := range s {
		var out rune
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == ':' || r == '_' || r == '-' || r == '=' || r == '.':
			out = r
		default:
			// any other rune (including non-ASCII) becomes '-'
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		unicode.IsDigit(r)
}
