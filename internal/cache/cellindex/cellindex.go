// Package cellindex tracks which cache keys touch which H3 cells so
// spatial invalidation can find them.
package cellindex

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/arpitjain799/geofilterd/internal/cache/keys"
	"github.com/arpitjain799/geofilterd/internal/cache/rediscache"
)

type Index interface {
	// AddKey records that a cache key depends on the given cells.
	AddKey(ctx context.Context, index string, res int, cells []string, cacheKey string, ttl time.Duration) error
	// KeysForCells returns the cache keys recorded for the cells.
	KeysForCells(ctx context.Context, index string, res int, cells []string) ([]string, error)
	// DropCells removes the per-cell records themselves.
	DropCells(ctx context.Context, index string, res int, cells []string) error
}

type redisIndex struct {
	cli *rediscache.Client
}

func NewRedisIndex(cli *rediscache.Client) Index {
	return &redisIndex{cli: cli}
}

func (ri *redisIndex) AddKey(
	ctx context.Context,
	index string,
	res int,
	cells []string,
	cacheKey string,
	ttl time.Duration,
) error {
	for _, cell := range cells {
		ik := keys.CellIndexKey(index, res, cell)

		existing, err := ri.load(ctx, ik)
		if err != nil {
			return err
		}
		found := false
		for _, k := range existing {
			if k == cacheKey {
				found = true
				break
			}
		}
		if !found {
			existing = append(existing, cacheKey)
		}

		payload, err := json.Marshal(existing)
		if err != nil {
			return fmt.Errorf("cellindex encode keys: %w", err)
		}
		if err := ri.cli.Set(ctx, ik, payload, ttl); err != nil {
			return fmt.Errorf("cellindex redis SET %q: %w", ik, err)
		}
	}
	return nil
}

func (ri *redisIndex) KeysForCells(
	ctx context.Context,
	index string,
	res int,
	cells []string,
) ([]string, error) {
	if len(cells) == 0 {
		return nil, nil
	}

	iks := make([]string, len(cells))
	for i, cell := range cells {
		iks[i] = keys.CellIndexKey(index, res, cell)
	}

	rawMap, err := ri.cli.MGet(ctx, iks)
	if err != nil {
		return nil, fmt.Errorf("cellindex redis MGET: %w", err)
	}

	seen := map[string]struct{}{}
	var out []string
	for _, raw := range rawMap {
		var ks []string
		if err := json.Unmarshal(raw, &ks); err != nil {
			return nil, fmt.Errorf("cellindex decode keys: %w", err)
		}
		for _, k := range ks {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out, nil
}

func (ri *redisIndex) DropCells(ctx context.Context, index string, res int, cells []string) error {
	if len(cells) == 0 {
		return nil
	}
	iks := make([]string, len(cells))
	for i, cell := range cells {
		iks[i] = keys.CellIndexKey(index, res, cell)
	}
	if err := ri.cli.Del(ctx, iks...); err != nil {
		return fmt.Errorf("cellindex redis DEL: %w", err)
	}
	return nil
}

func (ri *redisIndex) load(ctx context.Context, key string) ([]string, error) {
	raw, err := ri.cli.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("cellindex redis GET %q: %w", key, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var ks []string
	if err := json.Unmarshal(raw, &ks); err != nil {
		return nil, fmt.Errorf("cellindex decode keys: %w", err)
	}
	return ks, nil
}
