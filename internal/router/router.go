package router

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/arpitjain799/geofilterd/internal/model"
	"github.com/arpitjain799/geofilterd/internal/observability"
)

// receives validated query requests and serves them
type QueryHandler interface {
	HandleQuery(ctx context.Context, w http.ResponseWriter, r *http.Request, q model.QueryRequest)
}

// validates input query params and calls the handler
func HandleQuery(logger *slog.Logger, defaultDocType string, h QueryHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}

		q, err := ParseQueryRequest(r, defaultDocType)
		if err != nil {
			logger.Warn("rejected search request", "err", err)
			http.Error(sw, err.Error(), http.StatusBadRequest)
			observability.ObserveHTTP(r.Method, "/search", http.StatusBadRequest, time.Since(start).Seconds())
			return
		}

		h.HandleQuery(r.Context(), sw, r, q)
		observability.ObserveHTTP(r.Method, "/search", sw.code, time.Since(start).Seconds())
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func ParseQueryRequest(r *http.Request, defaultDocType string) (model.QueryRequest, error) {
	query := r.URL.Query()

	index := strings.TrimSpace(query.Get("index"))
	if index == "" {
		return model.QueryRequest{}, errors.New("missing required parameter: index")
	}
	if !isSafeIndex(index) {
		return model.QueryRequest{}, errors.New("invalid index name")
	}

	docType := strings.TrimSpace(query.Get("doc_type"))
	if docType == "" {
		docType = defaultDocType
	}

	query.Del("index")
	query.Del("doc_type")

	return model.QueryRequest{
		Index:   index,
		DocType: docType,
		Query:   query,
	}, nil
}

func isSafeIndex(s string) bool {
	if len(s) > 255 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '-' || c == '_' || c == '.' || c == '+':
		default:
			return false
		}
	}
	return strings.IndexAny(s[:1], "-_+.") == -1
}
