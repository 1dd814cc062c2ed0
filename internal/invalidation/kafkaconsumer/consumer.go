// Package kafkaconsumer drains document-change events from Kafka and expires
// the cached search responses whose cells they touch.
package kafkaconsumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"

	"github.com/arpitjain799/geofilterd/internal/cache/cellindex"
	"github.com/arpitjain799/geofilterd/internal/h3map"
	"github.com/arpitjain799/geofilterd/internal/invalidation"
	"github.com/arpitjain799/geofilterd/internal/model"
	"github.com/arpitjain799/geofilterd/internal/observability"
)

type cacheDeleter interface {
	Del(ctx context.Context, keys ...string) error
}

type Consumer struct {
	log   *slog.Logger
	cfg   Config
	store cacheDeleter
	idx   cellindex.Index
	mapr  *h3map.Mapper
	res   int
	ded   *seqDedupe

	assigned atomic.Bool
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

func New(cfg Config, logger *slog.Logger, store cacheDeleter, idx cellindex.Index, res int) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		log:   logger,
		cfg:   cfg,
		store: store,
		idx:   idx,
		mapr:  h3map.New(),
		res:   res,
		ded:   newSeqDedupe(cfg.DedupeSize),
	}
}

func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("consumer group: %w", err)
	}

	h := &groupHandler{
		setup:   func(sarama.ConsumerGroupSession) { c.assigned.Store(true) },
		cleanup: func(sarama.ConsumerGroupSession) { c.assigned.Store(false) },
		process: c.handleMessage,
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			if err := group.Close(); err != nil {
				c.log.Error("kafka consumer group close", "err", err)
			}
		}()

		for {
			if err := group.Consume(ctx, []string{c.cfg.Topic}, h); err != nil {
				c.log.Error("kafka consume error", "err", err)
				observability.IncKafkaConsumerError("consume")
				select {
				case <-time.After(2 * time.Second):
				case <-ctx.Done():
					return
				}
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for err := range group.Errors() {
			c.log.Error("kafka group error", "err", err)
			observability.IncKafkaConsumerError("group")
		}
	}()

	c.log.Info("invalidation consumer started",
		"topic", c.cfg.Topic, "group", c.cfg.GroupID, "brokers", c.cfg.Brokers)
	return nil
}

func (c *Consumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.log.Info("invalidation consumer stopped")
}

func (c *Consumer) Name() string { return "kafka" }

func (c *Consumer) Ready(*http.Request) bool { return c.assigned.Load() }

func (c *Consumer) handleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		observability.IncKafkaConsumerError("decode")
		c.log.Warn("undecodable invalidation event dropped",
			"partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}
	if err := ev.Validate(); err != nil {
		observability.IncKafkaConsumerError("validate")
		c.log.Warn("invalid invalidation event dropped",
			"partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}
	return c.ProcessOne(ctx, ev)
}

// ProcessOne expires every cached response indexed under the cells the event
// touches. Stale events (sequence at or below the last applied one for the
// same document) are skipped.
func (c *Consumer) ProcessOne(ctx context.Context, ev invalidation.Event) error {
	start := time.Now()

	if !c.ded.shouldApply(ev.DedupeKey(), ev.Seq) {
		c.log.Debug("stale invalidation skipped",
			"index", ev.Index, "doc_id", ev.DocID, "seq", ev.Seq)
		return nil
	}

	cells, err := c.cellsFor(ev)
	if err != nil {
		observability.ObserveInvalidation(ev.Op, 0, time.Since(start), err)
		return fmt.Errorf("map event footprint: %w", err)
	}
	if len(cells) == 0 {
		observability.ObserveInvalidation(ev.Op, 0, time.Since(start), nil)
		return nil
	}

	keys, err := c.idx.KeysForCells(ctx, ev.Index, c.res, cells)
	if err != nil {
		observability.ObserveInvalidation(ev.Op, 0, time.Since(start), err)
		return fmt.Errorf("cell index lookup: %w", err)
	}

	if len(keys) > 0 {
		if err := c.store.Del(ctx, keys...); err != nil {
			observability.ObserveInvalidation(ev.Op, 0, time.Since(start), err)
			return fmt.Errorf("delete %d cached keys: %w", len(keys), err)
		}
	}
	if err := c.idx.DropCells(ctx, ev.Index, c.res, cells); err != nil {
		c.log.Warn("cell index cleanup failed",
			"index", ev.Index, "cells", len(cells), "err", err)
	}

	observability.ObserveInvalidation(ev.Op, len(keys), time.Since(start), nil)
	c.log.Info("invalidation applied",
		"index", ev.Index, "op", ev.Op, "seq", ev.Seq,
		"cells", len(cells), "keys_deleted", len(keys),
		"dur", time.Since(start).String())
	return nil
}

func (c *Consumer) cellsFor(ev invalidation.Event) (model.Cells, error) {
	if ev.BBox != nil {
		b := ev.BBox
		return c.mapr.CellsForBBox(b.X1, b.Y1, b.X2, b.Y2, c.res)
	}
	cell, err := c.mapr.CellForPoint(*ev.Point, c.res)
	if err != nil {
		return nil, err
	}
	return model.Cells{cell}, nil
}
