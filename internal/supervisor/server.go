package supervisor

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// StatusServer exposes /healthz and /metrics for operators.
type StatusServer struct {
	srv    *http.Server
	logger *zap.Logger
}

// NewStatusServer builds the server on the given port.
func NewStatusServer(port int, logger *zap.Logger) *StatusServer {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	return &StatusServer{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start serves in the background until Stop is called.
func (s *StatusServer) Start() {
	go func() {
		s.logger.Info("status server listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("status server failed", zap.Error(err))
		}
	}()
}

// Stop shuts the server down gracefully.
func (s *StatusServer) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
