// Command loadgen issues randomized geo-distance searches against a running
// geofilterd and can publish sample invalidation events to Kafka, so cache
// hit rates and invalidation can be exercised end to end.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"

	"github.com/arpitjain799/geofilterd/internal/invalidation"
	"github.com/arpitjain799/geofilterd/internal/model"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

type counters struct {
	requests atomic.Int64
	errors   atomic.Int64
	hits     atomic.Int64
	misses   atomic.Int64
}

func main() {
	target := flag.String("target", getenv("TARGET_URL", "http://localhost:8090"), "geofilterd base URL")
	index := flag.String("index", getenv("LOAD_INDEX", "places"), "index to query")
	field := flag.String("field", getenv("LOAD_FIELD", "location"), "configured geo filter field")
	workers := flag.Int("workers", 4, "concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "how long to run")
	hotspots := flag.Int("hotspots", 16, "number of distinct query centers (lower = more cache hits)")
	invalidate := flag.Bool("invalidate", false, "publish one invalidation event per second to Kafka")
	brokers := flag.String("brokers", getenv("KAFKA_BROKERS", "localhost:9092"), "kafka brokers, comma separated")
	topic := flag.String("topic", getenv("KAFKA_TOPIC", "geofilter-invalidation"), "invalidation topic")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *duration)
	defer cancel()

	// fixed set of centers around Stockholm so repeated queries share cells
	centers := make([]model.GeoPoint, *hotspots)
	for i := range centers {
		centers[i] = model.GeoPoint{
			Lat: 59.33 + rand.Float64()*0.5 - 0.25,
			Lon: 18.07 + rand.Float64()*0.5 - 0.25,
		}
	}

	var c counters
	client := &http.Client{Timeout: 10 * time.Second}

	var wg sync.WaitGroup
	for range *workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				pt := centers[rand.IntN(len(centers))]
				query(ctx, client, *target, *index, *field, pt, &c)
			}
		}()
	}

	if *invalidate {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := publishLoop(ctx, strings.Split(*brokers, ","), *topic, *index, centers); err != nil {
				fmt.Fprintln(os.Stderr, "kafka publisher:", err)
			}
		}()
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			fmt.Printf("done: requests=%d errors=%d hits=%d misses=%d\n",
				c.requests.Load(), c.errors.Load(), c.hits.Load(), c.misses.Load())
			return
		case <-ticker.C:
			fmt.Printf("requests=%d errors=%d hits=%d misses=%d\n",
				c.requests.Load(), c.errors.Load(), c.hits.Load(), c.misses.Load())
		}
	}
}

func query(ctx context.Context, client *http.Client, target, index, field string, pt model.GeoPoint, c *counters) {
	distances := []string{"5km", "10km", "25km"}
	v := url.Values{}
	v.Set("index", index)
	v.Set(field+"__geo_distance",
		fmt.Sprintf("%s:%.4f:%.4f", distances[rand.IntN(len(distances))], pt.Lat, pt.Lon))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimRight(target, "/")+"/search?"+v.Encode(), nil)
	if err != nil {
		c.errors.Add(1)
		return
	}

	resp, err := client.Do(req)
	c.requests.Add(1)
	if err != nil {
		if ctx.Err() == nil {
			c.errors.Add(1)
		}
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	switch {
	case resp.StatusCode >= 400:
		c.errors.Add(1)
	case resp.Header.Get("X-Cache") == "HIT":
		c.hits.Add(1)
	case resp.Header.Get("X-Cache") == "MISS":
		c.misses.Add(1)
	}
}

func publishLoop(ctx context.Context, brokers []string, topic, index string, centers []model.GeoPoint) error {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Version = sarama.V2_5_0_0
	prod, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return fmt.Errorf("producer create: %w", err)
	}
	defer func() { _ = prod.Close() }()

	var seq uint64
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			seq++
			pt := centers[rand.IntN(len(centers))]
			ev := invalidation.Event{
				Version: 1,
				Op:      invalidation.OpUpdate,
				Index:   index,
				DocID:   fmt.Sprintf("load-%d", rand.IntN(1000)),
				Seq:     seq,
				TS:      time.Now().UTC(),
				Point:   &pt,
			}
			payload, _ := json.Marshal(ev)
			if _, _, err := prod.SendMessage(&sarama.ProducerMessage{
				Topic: topic, Value: sarama.ByteEncoder(payload),
			}); err != nil {
				return fmt.Errorf("send message: %w", err)
			}
		}
	}
}
