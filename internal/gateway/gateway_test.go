package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/arpitjain799/geofilterd/internal/cache/cellindex"
	"github.com/arpitjain799/geofilterd/internal/cache/rediscache"
	"github.com/arpitjain799/geofilterd/internal/model"
	"github.com/arpitjain799/geofilterd/pkg/geofilter"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testFields(t *testing.T) map[string]geofilter.FieldSpec {
	t.Helper()
	specs, err := geofilter.ParseFieldSpecs([]byte(`{"location":{"field":"loc"}}`))
	if err != nil {
		t.Fatalf("ParseFieldSpecs: %v", err)
	}
	return specs
}

// fakeExecutor records calls and serves a canned response.
type fakeExecutor struct {
	fetches  int
	forwards int
	lastBody []byte
	resp     []byte
}

func (f *fakeExecutor) FetchSearch(_ context.Context, _ string, body []byte) ([]byte, string, error) {
	f.fetches++
	f.lastBody = body
	return f.resp, "application/json", nil
}

func (f *fakeExecutor) ForwardSearch(w http.ResponseWriter, _ *http.Request, _ string, body []byte) {
	f.forwards++
	f.lastBody = body
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(f.resp)
}

func geoRequest(t *testing.T) model.QueryRequest {
	t.Helper()
	return model.QueryRequest{
		Index:   "places",
		DocType: "poi",
		Query:   url.Values{"location__geo_distance": {"10km:40.1:-71.2"}},
	}
}

func TestDirectEngine_BuildsGeoDistanceBody(t *testing.T) {
	exec := &fakeExecutor{resp: []byte(`{"hits":[]}`)}
	e := NewDirect(discardLogger(), exec, testFields(t), "")

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/search", nil)
	e.HandleQuery(context.Background(), rr, req, geoRequest(t))

	if exec.forwards != 1 {
		t.Fatalf("forwards=%d want 1", exec.forwards)
	}
	var body map[string]any
	if err := json.Unmarshal(exec.lastBody, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	q, ok := body["query"].(map[string]any)
	if !ok {
		t.Fatalf("no query in body: %s", exec.lastBody)
	}
	gd, ok := q["geo_distance"].(map[string]any)
	if !ok {
		t.Fatalf("no geo_distance clause: %s", exec.lastBody)
	}
	if gd["distance"] != "10km" {
		t.Fatalf("distance=%v", gd["distance"])
	}
	if _, ok := gd["loc"]; !ok {
		t.Fatalf("clause not keyed by configured field: %v", gd)
	}
}

func TestDirectEngine_NoFiltersEmptyBody(t *testing.T) {
	exec := &fakeExecutor{resp: []byte(`{}`)}
	e := NewDirect(discardLogger(), exec, testFields(t), "")

	q := model.QueryRequest{Index: "places", Query: url.Values{"unrelated": {"x"}}}
	rr := httptest.NewRecorder()
	e.HandleQuery(context.Background(), rr, httptest.NewRequest(http.MethodGet, "/search", nil), q)

	if string(exec.lastBody) != "{}" {
		t.Fatalf("body=%s want {}", exec.lastBody)
	}
}

func newTestCached(t *testing.T, exec *fakeExecutor) (*CachedEngine, *rediscache.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := rediscache.New(context.Background(), mr.Addr())
	if err != nil {
		t.Fatalf("rediscache.New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	e := NewCached(discardLogger(), exec, store, CachedOptions{
		Fields:     testFields(t),
		Res:        7,
		OpTimeout:  time.Second,
		TTLDefault: time.Minute,
	})
	return e, store
}

func TestCachedEngine_MissThenHit(t *testing.T) {
	exec := &fakeExecutor{resp: []byte(`{"hits":{"total":{"value":3}}}`)}
	e, _ := newTestCached(t, exec)

	req := httptest.NewRequest(http.MethodGet, "/search", nil)

	rr1 := httptest.NewRecorder()
	e.HandleQuery(context.Background(), rr1, req, geoRequest(t))
	if exec.fetches != 1 {
		t.Fatalf("fetches=%d want 1", exec.fetches)
	}
	if got := rr1.Header().Get("X-Cache"); got != "MISS" {
		t.Fatalf("X-Cache=%q want MISS", got)
	}

	rr2 := httptest.NewRecorder()
	e.HandleQuery(context.Background(), rr2, req, geoRequest(t))
	if exec.fetches != 1 {
		t.Fatalf("fetches=%d want 1 after hit", exec.fetches)
	}
	if got := rr2.Header().Get("X-Cache"); got != "HIT" {
		t.Fatalf("X-Cache=%q want HIT", got)
	}
	if rr2.Body.String() != rr1.Body.String() {
		t.Fatalf("hit body differs from miss body")
	}
}

func TestCachedEngine_DifferentQueryDifferentEntry(t *testing.T) {
	exec := &fakeExecutor{resp: []byte(`{}`)}
	e, _ := newTestCached(t, exec)

	req := httptest.NewRequest(http.MethodGet, "/search", nil)
	e.HandleQuery(context.Background(), httptest.NewRecorder(), req, geoRequest(t))

	other := geoRequest(t)
	other.Query = url.Values{"location__geo_distance": {"25km:40.1:-71.2"}}
	e.HandleQuery(context.Background(), httptest.NewRecorder(), req, other)

	if exec.fetches != 2 {
		t.Fatalf("fetches=%d want 2 for distinct queries", exec.fetches)
	}
}

func TestCachedEngine_NoFootprintBypasses(t *testing.T) {
	exec := &fakeExecutor{resp: []byte(`{}`)}
	e, _ := newTestCached(t, exec)

	q := model.QueryRequest{Index: "places", Query: url.Values{"unrelated": {"x"}}}
	rr := httptest.NewRecorder()
	e.HandleQuery(context.Background(), rr, httptest.NewRequest(http.MethodGet, "/search", nil), q)

	if exec.forwards != 1 || exec.fetches != 0 {
		t.Fatalf("forwards=%d fetches=%d want forward only", exec.forwards, exec.fetches)
	}
	if rr.Header().Get("X-Cache") != "" {
		t.Fatalf("bypass must not set X-Cache")
	}
}

func TestCachedEngine_RegistersKeyInCellIndex(t *testing.T) {
	exec := &fakeExecutor{resp: []byte(`{}`)}
	e, store := newTestCached(t, exec)

	req := httptest.NewRequest(http.MethodGet, "/search", nil)
	q := geoRequest(t)
	e.HandleQuery(context.Background(), httptest.NewRecorder(), req, q)

	fp, ok := queryFootprint(e.filter, q)
	if !ok {
		t.Fatalf("expected a footprint")
	}
	cell, err := e.mapr.CellForPoint(fp.center, e.res)
	if err != nil {
		t.Fatalf("CellForPoint: %v", err)
	}

	idx := cellindex.NewRedisIndex(store)
	ks, err := idx.KeysForCells(context.Background(), q.Index, e.res, []string{cell})
	if err != nil {
		t.Fatalf("KeysForCells: %v", err)
	}
	if len(ks) != 1 {
		t.Fatalf("indexed keys=%d want 1", len(ks))
	}
}

func TestQueryFootprint(t *testing.T) {
	filter := geofilter.Backend{Fields: testFields(t)}

	fp, ok := queryFootprint(filter, geoRequest(t))
	if !ok {
		t.Fatalf("expected footprint")
	}
	if fp.center.Lat != 40.1 || fp.center.Lon != -71.2 {
		t.Fatalf("center=%+v", fp.center)
	}
	if fp.radius != 10000 {
		t.Fatalf("radius=%v want 10000", fp.radius)
	}

	q := model.QueryRequest{Index: "places", Query: url.Values{
		"location__geo_distance": {"10km:not-a-lat:-71.2"},
	}}
	if _, ok := queryFootprint(filter, q); ok {
		t.Fatalf("unparsable coordinates must not produce a footprint")
	}
}
