package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/arpitjain799/geofilterd/internal/cache/cellindex"
	"github.com/arpitjain799/geofilterd/internal/cache/rediscache"
	"github.com/arpitjain799/geofilterd/internal/config"
	"github.com/arpitjain799/geofilterd/internal/executor"
	"github.com/arpitjain799/geofilterd/internal/gateway"
	"github.com/arpitjain799/geofilterd/internal/health"
	"github.com/arpitjain799/geofilterd/internal/httpclient"
	"github.com/arpitjain799/geofilterd/internal/invalidation/kafkaconsumer"
	"github.com/arpitjain799/geofilterd/internal/logger"
	"github.com/arpitjain799/geofilterd/internal/metrics"
	"github.com/arpitjain799/geofilterd/internal/observability"
	"github.com/arpitjain799/geofilterd/internal/router"
	"github.com/arpitjain799/geofilterd/internal/server"
	"github.com/arpitjain799/geofilterd/pkg/geofilter"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func run() int {
	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   strings.ToLower(os.Getenv("LOG_CONSOLE")) == "true",
		SampleN:   envInt("LOG_SAMPLE_N", 0),
		Component: "geofilterd",
	}, os.Stdout)

	appLog := logger.NewSlog(&zl)

	observability.ExposeBuildInfo(Version)
	appLog.Info("starting geofilterd",
		"addr", cfg.Addr,
		"version", Version,
		"elasticsearch", cfg.ElasticURL,
		"cache_enabled", cfg.CacheEnabled)

	fields, err := geofilter.ParseFieldSpecs([]byte(cfg.FilterFieldsJSON))
	if err != nil {
		appLog.Error("invalid GEO_FILTER_FIELDS", "err", err)
		return 1
	}
	if len(fields) == 0 {
		appLog.Warn("no geo filter fields configured, all filter params will be ignored")
	}

	outbound := httpclient.NewOutbound()
	exec := executor.New(appLog, outbound, cfg.ElasticURL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var handler router.QueryHandler = gateway.NewDirect(appLog, exec, fields, cfg.OrderingParam)
	reporters := []health.ReadinessReporter{
		health.ReporterFunc{
			Component: "elasticsearch",
			Probe: func(r *http.Request) bool {
				req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, cfg.ElasticURL, nil)
				if err != nil {
					return false
				}
				resp, err := outbound.Do(req)
				if err != nil {
					return false
				}
				_ = resp.Body.Close()
				return resp.StatusCode < 500
			},
		},
	}

	var store *rediscache.Client
	if cfg.CacheEnabled {
		store, err = rediscache.New(ctx, cfg.RedisAddr)
		if err != nil {
			appLog.Error("redis connect failed", "addr", cfg.RedisAddr, "err", err)
			return 1
		}
		defer func() {
			if err := store.Close(); err != nil {
				appLog.Warn("redis close", "err", err)
			}
		}()

		handler = gateway.NewCached(appLog, exec, store, gateway.CachedOptions{
			Fields:        fields,
			OrderingParam: cfg.OrderingParam,
			Res:           cfg.H3Res,
			OpTimeout:     cfg.CacheOpTimeout,
			TTLDefault:    cfg.CacheTTLDefault,
			TTLOverrides:  cfg.CacheTTLOvr,
		})
		reporters = append(reporters, health.ReporterFunc{
			Component: "redis",
			Probe: func(r *http.Request) bool {
				pctx, cancel := context.WithTimeout(r.Context(), cfg.CacheOpTimeout)
				defer cancel()
				return store.Ping(pctx) == nil
			},
		})
	}

	if cfg.Invalidation.Enabled {
		if store == nil {
			appLog.Error("invalidation requires CACHE_ENABLED=true")
			return 1
		}
		consumer := kafkaconsumer.New(
			kafkaconsumer.FromBrokerList(cfg.Invalidation.Brokers, cfg.Invalidation.Topic, cfg.Invalidation.GroupID),
			appLog,
			store,
			cellindex.NewRedisIndex(store),
			cfg.H3Res,
		)
		if err := consumer.Start(ctx); err != nil {
			appLog.Error("invalidation consumer start failed", "err", err)
			return 1
		}
		defer consumer.Stop()
		reporters = append(reporters, consumer)
	}

	if os.Getenv("METRICS_ENABLED") == "true" {
		startMetricsServer(ctx)
	}

	if err := server.Run(ctx, cfg, appLog, handler, reporters...); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}

// startMetricsServer exposes an isolated registry on its own listener for
// deployments that keep /metrics off the public port.
func startMetricsServer(ctx context.Context) {
	addr := os.Getenv("METRICS_ADDR")
	if addr == "" {
		addr = ":9090"
	}
	path := os.Getenv("METRICS_PATH")
	if path == "" {
		path = "/metrics"
	}

	p := metrics.Init(metrics.Config{
		Enabled: true,
		Addr:    addr,
		Path:    path,
		Build: metrics.BuildInfo{
			Version:   os.Getenv("BUILD_VERSION"),
			Revision:  os.Getenv("BUILD_REVISION"),
			Branch:    os.Getenv("BUILD_BRANCH"),
			BuildDate: os.Getenv("BUILD_DATE"),
		},
	})

	mux := http.NewServeMux()
	mux.Handle(path, p.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Printf("metrics: listening on %s%s", addr, path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server exited: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("metrics: shutdown error: %v", err)
		}
	}()
}
