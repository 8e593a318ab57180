package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"workshop/pkg/config"
	"workshop/pkg/logger"
	"workshop/pkg/metrics"
)

// HTTPServer обёртка над http.Server с HTTP/2 без TLS (h2c)
type HTTPServer struct {
	server      *http.Server
	serviceName string
	config      *config.Config
	serving     atomic.Bool
}

// New создаёт сервер для handler
func New(cfg *config.Config, handler http.Handler) *HTTPServer {
	return &HTTPServer{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
			Handler:           h2c.NewHandler(handler, &http2.Server{}),
			ReadTimeout:       cfg.HTTP.ReadTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      cfg.HTTP.WriteTimeout,
		},
		serviceName: cfg.App.Name,
		config:      cfg,
	}
}

// Handler возвращает итоговый handler сервера
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Serving принимает ли сервер запросы
func (s *HTTPServer) Serving() bool {
	return s.serving.Load()
}

// Run слушает порт из конфигурации до отмены ctx
func (s *HTTPServer) Run(ctx context.Context) error {
	lc := net.ListenConfig{}
	lis, err := lc.Listen(ctx, "tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(ctx, lis)
}

// Serve обслуживает lis до отмены ctx, затем выполняет graceful shutdown
func (s *HTTPServer) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)

	go func() {
		logger.Log.Info("Starting HTTP server",
			"service", s.serviceName,
			"addr", lis.Addr().String(),
			"protocol", "HTTP/1.1 + H2C",
			"environment", s.config.App.Environment,
			"version", s.config.App.Version,
		)
		if err := s.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.serving.Store(true)
	metrics.Get().SetServiceInfo(s.config.App.Version, s.config.App.Environment)

	select {
	case err := <-errCh:
		s.serving.Store(false)
		return err
	case <-ctx.Done():
		logger.Log.Info("Shutting down HTTP server")
	}

	return s.shutdown()
}

func (s *HTTPServer) shutdown() error {
	s.serving.Store(false)

	timeout := s.config.HTTP.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		logger.Log.Warn("Forcing server stop", "error", err)
		return s.server.Close()
	}

	logger.Log.Info("Server stopped gracefully")
	return nil
}
