package rediscache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

// creates a client connected to miniredis for testing
func newMini(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	rc, err := New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func TestGetSetDel_HappyPath(t *testing.T) {
	rc, _ := newMini(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := rc.Set(ctx, "k1", []byte("v1"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := rc.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "v1" {
		t.Fatalf("Get=%q want v1", got)
	}

	if err := rc.Del(ctx, "k1"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	got, err = rc.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get after Del: %v", err)
	}
	if got != nil {
		t.Fatalf("deleted key must read as nil, got %q", got)
	}
}

func TestMGet_FiltersMissing(t *testing.T) {
	rc, _ := newMini(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_ = rc.Set(ctx, "k1", []byte("v1"), time.Minute)
	_ = rc.Set(ctx, "k2", []byte("v2"), time.Minute)

	got, err := rc.MGet(ctx, []string{"k1", "k2", "missing"})
	if err != nil {
		t.Fatalf("MGet: %v", err)
	}
	if len(got) != 2 || string(got["k1"]) != "v1" || string(got["k2"]) != "v2" {
		t.Fatalf("unexpected values: %v", got)
	}
}

func TestMSetWithTTL_SetsExpiry(t *testing.T) {
	rc, mr := newMini(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := rc.MSetWithTTL(ctx, map[string][]byte{
		"a": []byte("1"),
		"b": []byte("2"),
	}, time.Minute)
	if err != nil {
		t.Fatalf("MSetWithTTL: %v", err)
	}

	if mr.TTL("a") <= 0 || mr.TTL("b") <= 0 {
		t.Fatalf("expected TTLs on stored keys")
	}

	mr.FastForward(2 * time.Minute)
	got, err := rc.MGet(ctx, []string{"a", "b"})
	if err != nil {
		t.Fatalf("MGet: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("keys must expire, got %v", got)
	}
}

func TestContextCancel_IsRespected(t *testing.T) {
	rc, _ := newMini(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := rc.Set(ctx, "k", []byte("v"), time.Second); err == nil {
		t.Fatalf("expected error on Set with canceled context")
	}
	if _, err := rc.MGet(ctx, []string{"k"}); err == nil {
		t.Fatalf("expected error on MGet with canceled context")
	}
	if err := rc.Del(ctx, "k"); err == nil {
		t.Fatalf("expected error on Del with canceled context")
	}
}

func TestNew_RequiresAddr(t *testing.T) {
	if _, err := New(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty address")
	}
}
