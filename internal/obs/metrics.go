package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics shared by every handler.
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
)

// Ledger and FX domain metrics.
var (
	postingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_postings_total",
			Help: "Posting requests by kind and outcome.",
		},
		[]string{"kind", "status"},
	)

	postingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_posting_duration_seconds",
			Help:    "Posting latencies in seconds, including FX lookups.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	fxLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fx_lookups_total",
			Help: "External exchange-rate lookups by result.",
		},
		[]string{"result"},
	)

	fxCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fx_cache_total",
			Help: "Rate cache hits and misses.",
		},
		[]string{"outcome"},
	)
)

// Init registers all metrics with the default registry. Call once at startup.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		postingsTotal, postingDuration, fxLookupsTotal, fxCacheTotal,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePosting records one posting attempt.
func ObservePosting(kind, status string, d time.Duration) {
	postingsTotal.WithLabelValues(kind, status).Inc()
	postingDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// CountFXLookup records one external rate lookup result ("ok" or "error").
func CountFXLookup(result string) {
	fxLookupsTotal.WithLabelValues(result).Inc()
}

// CountFXCache records a rate cache outcome ("hit" or "miss").
func CountFXCache(outcome string) {
	fxCacheTotal.WithLabelValues(outcome).Inc()
}

// Instrument wraps next with RPS, latency and in-flight accounting.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath collapses resource identifiers so metric labels stay low
// cardinality.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	for _, prefix := range []string{"/v1/accounts/", "/v1/postings/"} {
		rest, ok := strings.CutPrefix(path, prefix)
		if !ok || rest == "" {
			continue
		}
		if !strings.Contains(rest, "/") {
			return prefix + ":id"
		}
	}
	return path
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush forwards to the underlying writer so SSE handlers keep working
// behind the wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
