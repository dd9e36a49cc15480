package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"todoService/internal/auth"
	"todoService/internal/todo"
)

// Paths that authenticate by credentials instead of a bearer token.
const (
	PathLogin    = "/login"
	PathRegister = "/register"
)

// Server is the REST API. Every request passes through the auth middleware,
// which lets only PathLogin and PathRegister through without a token.
type Server struct {
	svc     *todo.Service
	logger  logrus.FieldLogger
	metrics *Metrics
	router  *mux.Router
	handler http.Handler
}

// NewServer builds the API handler chain. A nil metrics gets a private registry.
func NewServer(svc *todo.Service, tokens *auth.TokenService, logger logrus.FieldLogger, metrics *Metrics) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if metrics == nil {
		metrics = NewMetrics(prometheus.NewRegistry())
	}
	s := &Server{svc: svc, logger: logger, metrics: metrics, router: mux.NewRouter()}
	s.routes()

	gate := auth.NewMiddleware(tokens, logger, PathLogin, PathRegister).
		OnReject(func(reason string) { metrics.AuthFailures.WithLabelValues(reason).Inc() })

	var h http.Handler = s.router
	h = gate.Handler(h)
	h = recoverer(logger, h)
	h = allowAllCORS(h)
	h = metrics.instrument(s.router, h)
	h = accessLog(logger, h)
	h = withRequestID(h)
	s.handler = h
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc(PathRegister, s.handleRegister).Methods(http.MethodPost)
	s.router.HandleFunc(PathLogin, s.handleLogin).Methods(http.MethodPost)
	s.router.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	s.router.HandleFunc("/items", s.handleListItems).Methods(http.MethodGet)
	s.router.HandleFunc("/items", s.handleCreateItem).Methods(http.MethodPost)
	s.router.HandleFunc("/items/{id:[0-9]+}", s.handleUpdateItem).Methods(http.MethodPut)
	s.router.HandleFunc("/items/{id:[0-9]+}", s.handleDeleteItem).Methods(http.MethodDelete)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Start listens on addr and serves h in the background. The returned function
// shuts the server down gracefully, bounded by ctx.
func Start(addr string, h http.Handler, logger logrus.FieldLogger) (func(context.Context) error, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).WithField("addr", addr).Error("http server stopped")
		}
	}()
	return srv.Shutdown, nil
}
