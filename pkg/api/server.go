package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/pdalplugins/pkg/httputil"
	"github.com/platinummonkey/pdalplugins/pkg/plugins"
)

// Server exposes a plugin manager over HTTP
type Server struct {
	manager  *plugins.Manager
	gatherer prometheus.Gatherer
	router   *mux.Router
	handler  http.Handler
	log      *logrus.Logger
}

// NewServer creates a server for m. gatherer backs /metrics; nil uses the
// default registry.
func NewServer(m *plugins.Manager, gatherer prometheus.Gatherer, log *logrus.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if log == nil {
		log = logrus.New()
	}

	s := &Server{
		manager:  m,
		gatherer: gatherer,
		router:   mux.NewRouter(),
		log:      log,
	}
	s.setupRoutes()
	s.handler = otelhttp.NewHandler(s.router, "pdal-plugins-api")
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.log),
		httputil.RecoveryMiddleware(s.log),
	)

	s.router.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	s.router.HandleFunc("/stages", s.listStages).Methods(http.MethodGet)
	s.router.HandleFunc("/stages/{key}", s.getStage).Methods(http.MethodGet)
	s.router.HandleFunc("/libraries", s.listLibraries).Methods(http.MethodGet)
	s.router.HandleFunc("/paths", s.listPaths).Methods(http.MethodGet)
	s.router.HandleFunc("/load", s.load).Methods(http.MethodPost)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// HTTPServer wraps s in an http.Server listening on addr.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
