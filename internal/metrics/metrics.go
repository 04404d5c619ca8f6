// Package metrics is the management surface: a small net/http server,
// routed with go-chi/chi (the router the teacher's own lib/http package
// is built on), exposing Prometheus counters and a liveness probe
// alongside — never instead of — the hand-rolled transaction engine that
// serves the actual VFS traffic.
package metrics

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors are the counters components increment as they run.
type Collectors struct {
	Requests       *prometheus.CounterVec
	UploadBytes    prometheus.Counter
	WorkerRestarts prometheus.Counter
}

// NewCollectors registers a fresh set of collectors against a dedicated
// registry, so tests can spin up independent instances without colliding
// on prometheus's default global registry.
func NewCollectors() (*Collectors, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	c := &Collectors{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sharesrv_requests_total",
			Help: "HTTP transactions handled by the transaction engine, by method.",
		}, []string{"method"}),
		UploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sharesrv_upload_bytes_total",
			Help: "Total bytes accepted via multipart uploads.",
		}),
		WorkerRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sharesrv_worker_restarts_total",
			Help: "Number of times the controller has respawned a crashed worker.",
		}),
	}
	reg.MustRegister(c.Requests, c.UploadBytes, c.WorkerRestarts)
	return c, reg
}

// IncMethod increments the request counter for one handled method, letting
// internal/httpcli depend on a narrow interface instead of this package.
func (c *Collectors) IncMethod(method string) {
	c.Requests.WithLabelValues(method).Inc()
}

// Router builds the chi router the management surface listens with.
func Router(reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return r
}
