// Package handlers provides the HTTP and gRPC servers of the directory,
// binding query parameters to the DirectoryController and translating its
// errors into status codes.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/NiKuma0/secunda-tz/internal/directory/metrics"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const defaultShutdownTimeout = 5 * time.Second

// Server holds references to both a gRPC server and an HTTP server.
type Server struct {
	grpcServer      *grpc.Server
	httpServer      *http.Server
	health          *health.Server
	logger          *zap.Logger
	grpcEndpoint    string
	httpEndpoint    string
	shutdownTimeout time.Duration
}

// NewServer constructs a Server with separate endpoints for gRPC and HTTP.
func NewServer(
	grpcPort int,
	httpPort int,
	logger *zap.Logger,
	grpcOpts ...grpc.ServerOption,
) *Server {
	return &Server{
		grpcServer:      grpc.NewServer(grpcOpts...),
		httpServer:      &http.Server{ReadHeaderTimeout: 10 * time.Second},
		health:          health.NewServer(),
		logger:          logger,
		grpcEndpoint:    fmt.Sprintf(":%d", grpcPort),
		httpEndpoint:    fmt.Sprintf(":%d", httpPort),
		shutdownTimeout: defaultShutdownTimeout,
	}
}

// SetShutdownTimeout bounds how long Stop waits for in-flight HTTP requests.
func (s *Server) SetShutdownTimeout(d time.Duration) {
	if d > 0 {
		s.shutdownTimeout = d
	}
}

// RegisterGRPCServices exposes the standard health and reflection services.
func (s *Server) RegisterGRPCServices() {
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	reflection.Register(s.grpcServer)
}

// RegisterHTTPHandler mounts the directory routes and /metrics behind the
// request id, access log and recovery middlewares.
func (s *Server) RegisterHTTPHandler(h *DirectoryHandler) error {
	mux := runtime.NewServeMux()
	if err := h.Register(mux); err != nil {
		return err
	}

	root := http.NewServeMux()
	root.Handle("/metrics", metrics.Handler())
	root.Handle("/", mux)

	s.httpServer.Handler = Chain(root,
		RequestID,
		AccessLog(s.logger.Named("access")),
		Recovery(s.logger),
	)
	s.httpServer.Addr = s.httpEndpoint
	return nil
}

// Handler returns the HTTP handler installed by RegisterHTTPHandler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens on both endpoints and serves until Stop is called or either
// server fails. A failure of one server closes the other, and the first
// error is returned.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.grpcEndpoint)
	if err != nil {
		return fmt.Errorf("gRPC listen error: %w", err)
	}
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	var g errgroup.Group
	g.Go(func() error {
		s.logger.Info("Starting gRPC server", zap.String("endpoint", s.grpcEndpoint))
		if err := s.grpcServer.Serve(lis); err != nil {
			_ = s.httpServer.Close()
			return fmt.Errorf("gRPC serve error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		s.logger.Info("Starting HTTP server", zap.String("endpoint", s.httpEndpoint))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.grpcServer.Stop()
			return fmt.Errorf("HTTP serve error: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// Stop marks the service as not serving, then drains both servers.
func (s *Server) Stop() {
	s.logger.Info("Shutting down servers...")
	s.health.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	s.grpcServer.GracefulStop()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	s.logger.Info("Servers stopped")
}
