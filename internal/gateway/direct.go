package gateway

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/arpitjain799/geofilterd/internal/executor"
	"github.com/arpitjain799/geofilterd/internal/model"
	"github.com/arpitjain799/geofilterd/pkg/geofilter"
)

// DirectEngine translates each request into a search body and streams the
// upstream response back without any caching.
type DirectEngine struct {
	logger   *slog.Logger
	exec     executor.Interface
	filter   geofilter.Backend
	ordering geofilter.OrderingBackend
}

func NewDirect(logger *slog.Logger, exec executor.Interface, fields map[string]geofilter.FieldSpec, orderingParam string) *DirectEngine {
	return &DirectEngine{
		logger:   logger,
		exec:     exec,
		filter:   geofilter.Backend{Fields: fields},
		ordering: geofilter.OrderingBackend{Fields: fields, Param: orderingParam},
	}
}

func (e *DirectEngine) HandleQuery(ctx context.Context, w http.ResponseWriter, r *http.Request, q model.QueryRequest) {
	body, err := buildSearchBody(e.filter, e.ordering, q)
	if err != nil {
		e.logger.Error("search body build failed", "index", q.Index, "err", err)
		http.Error(w, "failed to build search request", http.StatusInternalServerError)
		return
	}

	e.logger.Debug("forwarding search",
		"index", q.Index,
		"doc_type", q.DocType,
		"body_bytes", len(body))

	e.exec.ForwardSearch(w, r, q.Index, body)
}
