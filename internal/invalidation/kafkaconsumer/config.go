package kafkaconsumer

import (
	"strings"
	"time"
)

type Config struct {
	Brokers []string
	Topic   string
	GroupID string

	SessionTimeout   time.Duration
	Heartbeat        time.Duration
	RebalanceTimeout time.Duration
	InitialOldest    bool

	DedupeSize int
}

// FromBrokerList builds a consumer config with production defaults from a
// comma-separated broker list.
func FromBrokerList(brokers, topic, groupID string) Config {
	if topic == "" {
		topic = "geofilter-invalidation"
	}
	if groupID == "" {
		groupID = "geofilterd-invalidator"
	}
	return Config{
		Brokers:          split(brokers),
		Topic:            topic,
		GroupID:          groupID,
		SessionTimeout:   30 * time.Second,
		Heartbeat:        3 * time.Second,
		RebalanceTimeout: 30 * time.Second,
		InitialOldest:    true,
		DedupeSize:       8192,
	}
}

func split(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if x := strings.TrimSpace(p); x != "" {
			out = append(out, x)
		}
	}
	if len(out) == 0 {
		out = []string{"localhost:9092"}
	}
	return out
}
