package apiserver

import (
	"context"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/openroads/road-extractor/internal/config"
	handlers "github.com/openroads/road-extractor/internal/handlers/v1alpha1"
	"github.com/openroads/road-extractor/pkg/metrics"
	"github.com/openroads/road-extractor/pkg/middleware"
	"github.com/openroads/road-extractor/pkg/requestid"
	"go.uber.org/zap"
)

type Server struct {
	cfg      *config.Config
	jobSrv   handlers.JobService
	listener net.Listener
}

// New returns a new instance of a road-extractor server.
func New(
	cfg *config.Config,
	jobService handlers.JobService,
	listener net.Listener,
) *Server {
	return &Server{
		cfg:      cfg,
		jobSrv:   jobService,
		listener: listener,
	}
}

// NewRouter mounts the job routes behind the common middleware stack.
func NewRouter(cfg *config.Config, jobService handlers.JobService, metricMiddleware *metrics.Middleware) *chi.Mux {
	router := chi.NewRouter()

	origins := cfg.Service.CorsOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	mws := []func(http.Handler) http.Handler{}
	if metricMiddleware != nil {
		mws = append(mws, metricMiddleware.Handler)
	}
	mws = append(mws,
		cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "PUT", "POST", "DELETE", "HEAD", "OPTIONS"},
			AllowedHeaders: []string{"*"},
			ExposedHeaders: []string{requestid.Header},
			MaxAge:         300,
		}),
		chiMiddleware.StripSlashes,
		middleware.RequestID,
		middleware.Logger(),
		chiMiddleware.Recoverer,
		render.SetContentType(render.ContentTypeJSON),
	)
	router.Use(mws...)

	handlers.RegisterRoutes(router, handlers.NewServiceHandler(jobService))

	return router
}

func (s *Server) Run(ctx context.Context) error {
	zap.S().Named("api_server").Info("Initializing API server")

	metricMiddleware := metrics.NewMiddleware("api_server")
	metricMiddleware.MustRegisterDefault()

	router := NewRouter(s.cfg, s.jobSrv, metricMiddleware)
	srv := &http.Server{Addr: s.cfg.Service.Address, Handler: router}

	return serve(ctx, "api_server", srv, s.listener)
}
