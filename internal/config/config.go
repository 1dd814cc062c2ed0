package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type InvalidationCfg struct {
	Enabled bool
	Topic   string
	Brokers string
	GroupID string
}

type Config struct {
	Addr             string
	LogLevel         string
	ElasticURL       string
	DocType          string
	FilterFieldsJSON string
	OrderingParam    string

	RedisAddr       string
	CacheEnabled    bool
	CacheOpTimeout  time.Duration
	CacheTTLDefault time.Duration
	CacheTTLOvr     map[string]time.Duration

	H3Res int

	Invalidation InvalidationCfg
}

func FromEnv() Config {
	res := getint("H3_RES", 8)
	if res < 0 {
		res = 0
	}
	if res > 15 {
		res = 15
	}

	return Config{
		Addr:             getenv("ADDR", ":8090"),
		LogLevel:         getenv("LOG_LEVEL", "info"),
		ElasticURL:       getenv("ELASTICSEARCH_URL", "http://localhost:9200"),
		DocType:          getenv("DOC_TYPE", ""),
		FilterFieldsJSON: getenv("GEO_FILTER_FIELDS", "{}"),
		OrderingParam:    getenv("ORDERING_PARAM", "sort"),

		RedisAddr:       getenv("REDIS_ADDR", "localhost:6379"),
		CacheEnabled:    getbool("CACHE_ENABLED", false),
		CacheOpTimeout:  getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
		CacheTTLDefault: getduration("CACHE_TTL_DEFAULT", 60*time.Second),
		CacheTTLOvr:     parseDurationMap(getenv("CACHE_TTL_OVERRIDES", "")),

		H3Res: res,

		Invalidation: InvalidationCfg{
			Enabled: getbool("INVALIDATION_ENABLED", false),
			Topic:   getenv("KAFKA_TOPIC", "geofilter-invalidation"),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			GroupID: getenv("KAFKA_GROUP_ID", "geofilter-invalidator"),
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// parse "places=5m,events=30s" into a per-index TTL map
func parseDurationMap(s string) map[string]time.Duration {
	out := map[string]time.Duration{}
	s = strings.TrimSpace(s)
	if s == "" {
		return out
	}
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		k := strings.TrimSpace(kv[0])
		v := strings.TrimSpace(kv[1])
		if k == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err == nil {
			out[k] = d
		}
	}
	return out
}
