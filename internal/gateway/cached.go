package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/arpitjain799/geofilterd/internal/cache/cellindex"
	"github.com/arpitjain799/geofilterd/internal/cache/keys"
	"github.com/arpitjain799/geofilterd/internal/cache/rediscache"
	"github.com/arpitjain799/geofilterd/internal/executor"
	"github.com/arpitjain799/geofilterd/internal/h3map"
	"github.com/arpitjain799/geofilterd/internal/model"
	"github.com/arpitjain799/geofilterd/internal/observability"
	"github.com/arpitjain799/geofilterd/pkg/geofilter"
)

// CachedEngine serves geo-distance searches from Redis, keyed by the H3 cell
// of the query center plus the canonicalized query string. On a miss it
// fetches from the upstream cluster, stores the response, and records the
// cache key against every cell covered by the query circle so invalidation
// events can find it. Requests without a usable geo footprint, and any cache
// failure, fall through to a plain upstream fetch.
type CachedEngine struct {
	logger   *slog.Logger
	exec     executor.Interface
	filter   geofilter.Backend
	ordering geofilter.OrderingBackend

	store *rediscache.Client
	idx   cellindex.Index
	mapr  *h3map.Mapper

	res        int
	opTimeout  time.Duration
	ttlDefault time.Duration
	ttlMap     map[string]time.Duration
}

type CachedOptions struct {
	Fields        map[string]geofilter.FieldSpec
	OrderingParam string
	Res           int
	OpTimeout     time.Duration
	TTLDefault    time.Duration
	TTLOverrides  map[string]time.Duration
}

func NewCached(logger *slog.Logger, exec executor.Interface, store *rediscache.Client, opts CachedOptions) *CachedEngine {
	return &CachedEngine{
		logger:     logger,
		exec:       exec,
		filter:     geofilter.Backend{Fields: opts.Fields},
		ordering:   geofilter.OrderingBackend{Fields: opts.Fields, Param: opts.OrderingParam},
		store:      store,
		idx:        cellindex.NewRedisIndex(store),
		mapr:       h3map.New(),
		res:        opts.Res,
		opTimeout:  opts.OpTimeout,
		ttlDefault: opts.TTLDefault,
		ttlMap:     opts.TTLOverrides,
	}
}

func (e *CachedEngine) HandleQuery(ctx context.Context, w http.ResponseWriter, r *http.Request, q model.QueryRequest) {
	body, err := buildSearchBody(e.filter, e.ordering, q)
	if err != nil {
		e.logger.Error("search body build failed", "index", q.Index, "err", err)
		http.Error(w, "failed to build search request", http.StatusInternalServerError)
		return
	}

	fp, ok := queryFootprint(e.filter, q)
	if !ok {
		e.logger.Debug("no geo footprint, bypassing cache", "index", q.Index)
		e.exec.ForwardSearch(w, r, q.Index, body)
		return
	}

	cell, err := e.mapr.CellForPoint(fp.center, e.res)
	if err != nil {
		e.logger.Warn("cell mapping failed, bypassing cache", "err", err)
		e.exec.ForwardSearch(w, r, q.Index, body)
		return
	}

	key := keys.Key(q.Index, e.res, cell, keys.CanonicalQuery(q.Query))

	if cached := e.lookup(ctx, key); cached != nil {
		observability.IncCacheHit()
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Cache", "HIT")
		_, _ = w.Write(cached)
		e.logger.Debug("cache hit", "index", q.Index, "cell", cell)
		return
	}
	observability.IncCacheMiss()

	resp, ct, err := e.exec.FetchSearch(ctx, q.Index, body)
	if err != nil {
		e.logger.Error("upstream fetch failed", "index", q.Index, "err", err)
		http.Error(w, "upstream search failed", http.StatusBadGateway)
		return
	}

	e.fill(q, cell, key, fp, resp)

	if ct == "" {
		ct = "application/json"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("X-Cache", "MISS")
	_, _ = w.Write(resp)
}

func (e *CachedEngine) lookup(ctx context.Context, key string) []byte {
	cctx, cancel := e.withTimeout(ctx)
	defer cancel()
	v, err := e.store.Get(cctx, key)
	if err != nil {
		e.logger.Warn("cache get error, continuing with fetch path", "err", err)
		return nil
	}
	return v
}

// fill stores the response and registers the key in the cell index. Failures
// only cost future hits, so they are logged and swallowed.
func (e *CachedEngine) fill(q model.QueryRequest, cell, key string, fp footprint, resp []byte) {
	cctx, cancel := e.withTimeout(context.Background())
	defer cancel()

	ttl := e.ttlFor(q.Index)
	if err := e.store.Set(cctx, key, resp, ttl); err != nil {
		e.logger.Warn("cache set failed", "key", key, "err", err)
		return
	}

	cells := model.Cells{cell}
	if fp.radius > 0 {
		if cc, err := e.mapr.CellsForCircle(fp.center, fp.radius, e.res); err == nil && len(cc) > 0 {
			cells = cc
		}
	}
	// index entries outlive the data slightly so invalidation still sees them
	if err := e.idx.AddKey(cctx, q.Index, e.res, cells, key, ttl+time.Minute); err != nil {
		e.logger.Warn("cell index update failed", "key", key, "err", err)
	}
}

func (e *CachedEngine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.opTimeout)
}

func (e *CachedEngine) ttlFor(index string) time.Duration {
	if d, ok := e.ttlMap[index]; ok {
		return d
	}
	return e.ttlDefault
}
