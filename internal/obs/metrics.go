package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	readyGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "meritlog_ready",
		Help: "1 when the last readiness probe succeeded.",
	})
)

// Domain metrics
var (
	mutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meritlog_mutations_total",
			Help: "Entity store mutations by operation and result.",
		},
		[]string{"op", "result"},
	)

	remoteFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meritlog_remote_failures_total",
			Help: "Failed remote store calls by operation.",
		},
		[]string{"op"},
	)

	migrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meritlog_migrations_total",
			Help: "Legacy cache migration runs by result.",
		},
		[]string{"result"},
	)

	migratedRecords = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meritlog_migrated_records_total",
		Help: "Legacy achievements submitted to the remote store.",
	})

	sessionTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meritlog_session_transitions_total",
			Help: "Session transitions observed by the lifecycle manager.",
		},
		[]string{"state"},
	)
)

var initOnce sync.Once

// Init registers all collectors in the default registry.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration, readyGauge,
			mutationsTotal, remoteFailuresTotal, migrationsTotal, migratedRecords, sessionTransitions,
		)
	})
}

// Handler exposes the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetReady records the outcome of the last readiness probe.
func SetReady(ok bool) {
	if ok {
		readyGauge.Set(1)
		return
	}
	readyGauge.Set(0)
}

// RecordMutation counts an entity store mutation; a non-nil err also counts a remote failure.
func RecordMutation(op string, err error) {
	if err != nil {
		mutationsTotal.WithLabelValues(op, "error").Inc()
		remoteFailuresTotal.WithLabelValues(op).Inc()
		return
	}
	mutationsTotal.WithLabelValues(op, "ok").Inc()
}

// RecordMigration counts a migration run and the records it submitted.
func RecordMigration(result string, records int) {
	migrationsTotal.WithLabelValues(result).Inc()
	if records > 0 {
		migratedRecords.Add(float64(records))
	}
}

// RecordSessionTransition counts signed_in / signed_out transitions.
func RecordSessionTransition(state string) {
	sessionTransitions.WithLabelValues(state).Inc()
}

// Instrument measures RPS, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

var idCollections = map[string]bool{
	"achievements": true,
	"goals":        true,
	"files":        true,
	"portfolio":    true,
}

// CanonicalPath collapses resource identifiers so label cardinality stays bounded.
func CanonicalPath(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(raw, "/"), "/")
	switch {
	case len(parts) >= 3 && parts[0] == "v1" && idCollections[parts[1]]:
		parts[2] = ":id"
		return "/" + strings.Join(parts, "/")
	case len(parts) >= 3 && parts[0] == "storage":
		return "/storage/" + parts[1] + "/:path"
	}
	return raw
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
