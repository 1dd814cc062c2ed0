// Package model defines core domain types shared across the gateway.
package model

import "net/url"

// QueryRequest is one validated incoming search request.
type QueryRequest struct {
	// Index is the Elasticsearch index to search.
	Index string
	// DocType is the mapping name handed to the filter backends, passed
	// through uninterpreted.
	DocType string
	// Query holds the raw query-string parameters for the filter backends.
	Query url.Values
}

// GeoPoint is a parsed query center used for cache keying only. The raw
// strings from the request are what reach Elasticsearch.
type GeoPoint struct {
	Lat float64
	Lon float64
}

type Cells []string
