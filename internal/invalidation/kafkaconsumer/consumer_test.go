package kafkaconsumer

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/arpitjain799/geofilterd/internal/cache/cellindex"
	"github.com/arpitjain799/geofilterd/internal/cache/keys"
	"github.com/arpitjain799/geofilterd/internal/cache/rediscache"
	"github.com/arpitjain799/geofilterd/internal/h3map"
	"github.com/arpitjain799/geofilterd/internal/invalidation"
	"github.com/arpitjain799/geofilterd/internal/model"
)

const testRes = 7

func newTestConsumer(t *testing.T) (*Consumer, *rediscache.Client, cellindex.Index) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := rediscache.New(context.Background(), mr.Addr())
	if err != nil {
		t.Fatalf("rediscache.New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	idx := cellindex.NewRedisIndex(store)
	cfg := FromBrokerList("localhost:9092", "", "")
	c := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), store, idx, testRes)
	return c, store, idx
}

func seedEntry(t *testing.T, store *rediscache.Client, idx cellindex.Index, index string, pt model.GeoPoint) (cell, key string) {
	t.Helper()
	ctx := context.Background()

	var err error
	cell, err = h3map.New().CellForPoint(pt, testRes)
	if err != nil {
		t.Fatalf("CellForPoint: %v", err)
	}
	key = keys.Key(index, testRes, cell, "location__geo_distance=10km:40.1:-71.2")

	if err := store.Set(ctx, key, []byte(`{"hits":[]}`), time.Minute); err != nil {
		t.Fatalf("seed set: %v", err)
	}
	if err := idx.AddKey(ctx, index, testRes, []string{cell}, key, time.Minute); err != nil {
		t.Fatalf("seed index: %v", err)
	}
	return cell, key
}

func TestProcessOne_DeletesIndexedKeys(t *testing.T) {
	c, store, idx := newTestConsumer(t)
	ctx := context.Background()
	pt := model.GeoPoint{Lat: 40.1, Lon: -71.2}
	cell, key := seedEntry(t, store, idx, "places", pt)

	ev := invalidation.Event{
		Version: 1, Op: invalidation.OpUpdate,
		Index: "places", DocID: "d1", Seq: 1, Point: &pt,
	}
	if err := c.ProcessOne(ctx, ev); err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}

	if v, err := store.Get(ctx, key); err != nil || v != nil {
		t.Fatalf("cached key survived invalidation: v=%v err=%v", v, err)
	}
	ks, err := idx.KeysForCells(ctx, "places", testRes, []string{cell})
	if err != nil {
		t.Fatalf("KeysForCells: %v", err)
	}
	if len(ks) != 0 {
		t.Fatalf("cell index not dropped: %v", ks)
	}
}

func TestProcessOne_OtherIndexUntouched(t *testing.T) {
	c, store, idx := newTestConsumer(t)
	ctx := context.Background()
	pt := model.GeoPoint{Lat: 40.1, Lon: -71.2}
	_, key := seedEntry(t, store, idx, "restaurants", pt)

	ev := invalidation.Event{
		Version: 1, Op: invalidation.OpDelete,
		Index: "places", DocID: "d1", Seq: 1, Point: &pt,
	}
	if err := c.ProcessOne(ctx, ev); err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}

	if v, err := store.Get(ctx, key); err != nil || v == nil {
		t.Fatalf("unrelated index was invalidated: v=%v err=%v", v, err)
	}
}

func TestProcessOne_StaleSeqSkipped(t *testing.T) {
	c, store, idx := newTestConsumer(t)
	ctx := context.Background()
	pt := model.GeoPoint{Lat: 40.1, Lon: -71.2}

	ev := invalidation.Event{
		Version: 1, Op: invalidation.OpUpdate,
		Index: "places", DocID: "d1", Seq: 5, Point: &pt,
	}
	if err := c.ProcessOne(ctx, ev); err != nil {
		t.Fatalf("first ProcessOne: %v", err)
	}

	// re-seed, then replay an older event for the same doc
	_, key := seedEntry(t, store, idx, "places", pt)
	ev.Seq = 4
	if err := c.ProcessOne(ctx, ev); err != nil {
		t.Fatalf("stale ProcessOne: %v", err)
	}
	if v, err := store.Get(ctx, key); err != nil || v == nil {
		t.Fatalf("stale event must not invalidate: v=%v err=%v", v, err)
	}
}

func TestProcessOne_BBoxFootprint(t *testing.T) {
	c, store, idx := newTestConsumer(t)
	ctx := context.Background()
	pt := model.GeoPoint{Lat: 40.1, Lon: -71.2}
	_, key := seedEntry(t, store, idx, "places", pt)

	ev := invalidation.Event{
		Version: 1, Op: invalidation.OpInsert,
		Index: "places", Seq: 1,
		BBox: &invalidation.BBox{X1: -71.3, Y1: 40.0, X2: -71.1, Y2: 40.2},
	}
	if err := c.ProcessOne(ctx, ev); err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if v, err := store.Get(ctx, key); err != nil || v != nil {
		t.Fatalf("bbox covering the point must invalidate: v=%v err=%v", v, err)
	}
}

func TestSeqDedupe(t *testing.T) {
	d := newSeqDedupe(16)
	if !d.shouldApply("a", 1) {
		t.Fatalf("first seq must apply")
	}
	if d.shouldApply("a", 1) {
		t.Fatalf("repeat seq must not apply")
	}
	if d.shouldApply("a", 0) {
		t.Fatalf("older seq must not apply")
	}
	if !d.shouldApply("a", 2) {
		t.Fatalf("newer seq must apply")
	}
	if !d.shouldApply("b", 1) {
		t.Fatalf("independent keys must not interfere")
	}
}
