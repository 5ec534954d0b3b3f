package telemetry

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mavenproxy_requests_total",
		Help: "Proxied requests by method and status.",
	}, []string{"method", "status"})

	requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mavenproxy_request_duration_seconds",
		Help:    "Whole-pipeline request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	inFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mavenproxy_requests_in_flight",
		Help: "Requests currently being handled.",
	})

	registerOnce sync.Once
)

func register() {
	prometheus.MustRegister(requestsTotal, requestDuration, inFlight)
}

// Middleware records request counts, latency and in-flight gauge for every
// request passing through.
func Middleware(next http.Handler) http.Handler {
	registerOnce.Do(register)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		inFlight.Inc()
		srw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(srw, r)
		inFlight.Dec()
		requestsTotal.WithLabelValues(r.Method, strconv.Itoa(srw.status)).Inc()
		requestDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes the metrics endpoint.
func Handler() http.Handler {
	registerOnce.Do(register)
	return promhttp.Handler()
}

// statusRecorder captures the response status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
