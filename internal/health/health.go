package health

import (
	"encoding/json"
	"net/http"
)

func Liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

// ReadinessReporter reports whether a backing dependency can serve traffic.
type ReadinessReporter interface {
	Name() string
	Ready(r *http.Request) bool
}

// Readiness aggregates reporters: all must be ready or the probe fails.
func Readiness(reporters ...ReadinessReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		type resp struct {
			Status   string            `json:"status"`
			Checks   map[string]string `json:"checks,omitempty"`
			Failures []string          `json:"failures,omitempty"`
		}
		out := resp{Status: "ready", Checks: map[string]string{}}
		for _, rep := range reporters {
			if rep.Ready(r) {
				out.Checks[rep.Name()] = "ok"
				continue
			}
			out.Checks[rep.Name()] = "failed"
			out.Failures = append(out.Failures, rep.Name())
		}
		w.Header().Set("Content-Type", "application/json")
		if len(out.Failures) > 0 {
			out.Status = "not_ready"
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}

// ReporterFunc adapts a name and probe func to ReadinessReporter.
type ReporterFunc struct {
	Component string
	Probe     func(r *http.Request) bool
}

func (f ReporterFunc) Name() string { return f.Component }

func (f ReporterFunc) Ready(r *http.Request) bool { return f.Probe(r) }
