package apiserver

import (
	"context"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/openroads/road-extractor/pkg/metrics"
)

// MetricServer exposes /metrics on its own listener so scraping never
// competes with the job routes.
type MetricServer struct {
	srv      *http.Server
	listener net.Listener
}

func NewMetricServer(bindAddress string, listener net.Listener) *MetricServer {
	router := chi.NewRouter()
	router.Handle("/metrics", metrics.NewPrometheusMetricsHandler().Handler())

	return &MetricServer{
		srv:      &http.Server{Addr: bindAddress, Handler: router},
		listener: listener,
	}
}

func (m *MetricServer) Run(ctx context.Context) error {
	return serve(ctx, "metrics_server", m.srv, m.listener)
}
