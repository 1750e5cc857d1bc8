package metrics

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	bucketsConfig = []float64{50, 300, 1000, 5000}
)

const (
	// EnvLatencyBuckets is formatted like "100,200,300,400"
	EnvLatencyBuckets     = "ROAD_EXTRACTOR_LATENCY_BUCKETS"
	RequestsCollectorName = "http_requests_total"
	LatencyCollectorName  = "http_request_duration_milliseconds"
)

// Middleware exposes the number of requests and their latency partitioned by
// status code, method and route pattern.
type Middleware struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func setBucket() {
	conf, ok := os.LookupEnv(EnvLatencyBuckets)
	if !ok {
		return
	}
	var buckets []float64
	for _, v := range strings.Split(conf, ",") {
		f64v, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			panic(err)
		}
		buckets = append(buckets, f64v)
	}
	bucketsConfig = buckets
}

func NewMiddleware(name string) *Middleware {
	setBucket()

	return &Middleware{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Subsystem:   roadExtractor,
				Name:        RequestsCollectorName,
				Help:        "Number of HTTP requests partitioned by status code, method and route.",
				ConstLabels: prometheus.Labels{"service": name},
			}, []string{"code", "method", "path"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Subsystem:   roadExtractor,
			Name:        LatencyCollectorName,
			Help:        "Time spent on the request partitioned by status code, method and route.",
			ConstLabels: prometheus.Labels{"service": name},
			Buckets:     bucketsConfig,
		}, []string{"code", "method", "path"}),
	}
}

func (m Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		rctx := chi.RouteContext(r.Context())
		if rctx == nil {
			return
		}
		code := strconv.Itoa(ww.Status())
		route := rctx.RoutePattern()
		m.requests.WithLabelValues(code, r.Method, route).Inc()
		m.latency.WithLabelValues(code, r.Method, route).Observe(float64(time.Since(start).Milliseconds()))
	})
}

// MustRegisterDefault must be called before serving promhttp.Handler().
func (m Middleware) MustRegisterDefault() {
	if m.requests == nil || m.latency == nil {
		panic("collectors must be set")
	}
	prometheus.MustRegister(m.requests, m.latency)
}
