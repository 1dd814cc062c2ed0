// Package executor runs search requests against the Elasticsearch upstream.
package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/arpitjain799/geofilterd/internal/esapi"
	"github.com/arpitjain799/geofilterd/internal/observability"
)

type Interface interface {
	FetchSearch(ctx context.Context, index string, body []byte) ([]byte, string, error)
	ForwardSearch(w http.ResponseWriter, r *http.Request, index string, body []byte)
}

type Executor struct {
	logger  *slog.Logger
	client  *http.Client
	baseURL string
	now     func() time.Time // for tests
}

func New(logger *slog.Logger, client *http.Client, baseURL string) *Executor {
	return &Executor{
		logger:  logger,
		client:  client,
		baseURL: baseURL,
		now:     time.Now,
	}
}

// FetchSearch POSTs the search body to <base>/<index>/_search and returns
// the response bytes.
func (e *Executor) FetchSearch(ctx context.Context, index string, body []byte) ([]byte, string, error) {
	endpoint := esapi.SearchEndpoint(e.baseURL, index)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := e.now()
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	dur := time.Since(start)
	observability.ObserveUpstreamLatency("elasticsearch", dur.Seconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, "", fmt.Errorf("upstream status %d: %s", resp.StatusCode, string(b))
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}

	e.logger.Debug("search fetched",
		"index", index,
		"status", resp.StatusCode,
		"duration", dur.String())

	return b, resp.Header.Get("Content-Type"), nil
}

// ForwardSearch executes the search and streams status, content type and
// body straight to the client.
func (e *Executor) ForwardSearch(w http.ResponseWriter, r *http.Request, index string, body []byte) {
	endpoint := esapi.SearchEndpoint(e.baseURL, index)

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		http.Error(w, "build upstream request: "+err.Error(), http.StatusInternalServerError)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := e.now()
	resp, err := e.client.Do(req)
	if err != nil {
		e.logger.Error("upstream search failed", "index", index, "err", err)
		http.Error(w, "upstream error: "+err.Error(), http.StatusBadGateway)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	dur := time.Since(start)
	observability.ObserveUpstreamLatency("elasticsearch", dur.Seconds())
	e.logger.Debug("forward done", "index", index, "status", resp.StatusCode, "duration", dur.String())

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		e.logger.Debug("copy response body", "err", err)
	}
}
