// Package grpc hosts the sigparse gRPC listener with the standard health
// service.
package grpc

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/turtacn/sigparse/internal/config"
	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/prometheus"
)

const (
	defaultMaxRecvMsgSize  = 4 << 20
	defaultMaxSendMsgSize  = 16 << 20
	defaultGracefulTimeout = 10 * time.Second
)

var defaultKeepalivePolicy = keepalive.EnforcementPolicy{
	MinTime:             5 * time.Second,
	PermitWithoutStream: true,
}

// Option configures a Server.
type Option func(*serverOptions)

type serverOptions struct {
	logger          logging.Logger
	metrics         *prometheus.AppMetrics
	tlsConfig       *tls.Config
	listener        net.Listener
	reflection      bool
	gracefulTimeout time.Duration
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(o *serverOptions) { o.logger = l }
}

// WithMetrics counts every unary call.
func WithMetrics(m *prometheus.AppMetrics) Option {
	return func(o *serverOptions) { o.metrics = m }
}

// WithTLSConfig serves over TLS.
func WithTLSConfig(tc *tls.Config) Option {
	return func(o *serverOptions) { o.tlsConfig = tc }
}

// WithListener serves on l instead of binding cfg.Port.
func WithListener(l net.Listener) Option {
	return func(o *serverOptions) { o.listener = l }
}

// WithReflection registers the reflection service.
func WithReflection(enabled bool) Option {
	return func(o *serverOptions) { o.reflection = enabled }
}

// WithGracefulTimeout bounds GracefulStop.
func WithGracefulTimeout(d time.Duration) Option {
	return func(o *serverOptions) {
		if d > 0 {
			o.gracefulTimeout = d
		}
	}
}

// Server wraps grpc.Server with health reporting and graceful stop.
type Server struct {
	grpcServer   *grpc.Server
	listener     net.Listener
	opts         *serverOptions
	healthServer *health.Server

	mu      sync.Mutex
	started bool
}

// NewServer binds the listener and builds the interceptor chain.
func NewServer(cfg config.GRPCConfig, opts ...Option) (*Server, error) {
	sopts := &serverOptions{gracefulTimeout: defaultGracefulTimeout}
	for _, o := range opts {
		o(sopts)
	}
	if sopts.logger == nil {
		sopts.logger = logging.NewNopLogger()
	}
	sopts.logger = sopts.logger.Named("grpc")

	lis := sopts.listener
	if lis == nil {
		addr := fmt.Sprintf(":%d", cfg.Port)
		var err error
		if lis, err = net.Listen("tcp", addr); err != nil {
			return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
		}
	}

	maxRecv := cfg.MaxRecvMsgSize
	if maxRecv <= 0 {
		maxRecv = defaultMaxRecvMsgSize
	}
	grpcOpts := []grpc.ServerOption{
		grpc.MaxRecvMsgSize(maxRecv),
		grpc.MaxSendMsgSize(defaultMaxSendMsgSize),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle: 15 * time.Minute,
			Time:              cfg.KeepaliveTime,
			Timeout:           cfg.KeepaliveTimeout,
		}),
		grpc.KeepaliveEnforcementPolicy(defaultKeepalivePolicy),
		grpc.ChainUnaryInterceptor(
			recoveryUnaryInterceptor(sopts.logger),
			loggingUnaryInterceptor(sopts.logger),
			metricsUnaryInterceptor(sopts.metrics),
		),
		grpc.ChainStreamInterceptor(recoveryStreamInterceptor(sopts.logger)),
	}
	if sopts.tlsConfig != nil {
		grpcOpts = append(grpcOpts, grpc.Creds(credentials.NewTLS(sopts.tlsConfig)))
	}

	gs := grpc.NewServer(grpcOpts...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	if sopts.reflection {
		reflection.Register(gs)
		sopts.logger.Info("grpc reflection service registered")
	}

	return &Server{
		grpcServer:   gs,
		listener:     lis,
		opts:         sopts,
		healthServer: hs,
	}, nil
}

// RegisterService registers impl and marks it SERVING.
func (s *Server) RegisterService(desc *grpc.ServiceDesc, impl interface{}) {
	s.grpcServer.RegisterService(desc, impl)
	s.healthServer.SetServingStatus(desc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	s.opts.logger.Info("grpc service registered", logging.String("service", desc.ServiceName))
}

// SetServing flips the overall health status, for example when a
// dependency goes down.
func (s *Server) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.healthServer.SetServingStatus("", st)
}

// Start blocks serving until Stop.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("server already started")
	}
	s.started = true
	s.mu.Unlock()

	s.opts.logger.Info("grpc server starting", logging.String("address", s.Addr()))
	return s.grpcServer.Serve(s.listener)
}

// Stop drains connections, forcing a stop after the graceful timeout.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return s.listener.Close()
	}

	s.opts.logger.Info("grpc server stopping")
	s.healthServer.Shutdown()

	ctx, cancel := context.WithTimeout(ctx, s.opts.gracefulTimeout)
	defer cancel()

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		s.opts.logger.Info("grpc server stopped gracefully")
	case <-ctx.Done():
		s.opts.logger.Warn("grpc graceful stop timed out, forcing stop")
		s.grpcServer.Stop()
	}
	return nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

func recoveryUnaryInterceptor(logger logging.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("grpc panic recovered",
					logging.String("method", info.FullMethod),
					logging.String("panic", fmt.Sprintf("%v", r)),
					logging.String("stack", string(debug.Stack())),
				)
				err = status.Errorf(codes.Internal, "internal server error")
			}
		}()
		return handler(ctx, req)
	}
}

func recoveryStreamInterceptor(logger logging.Logger) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("grpc stream panic recovered",
					logging.String("method", info.FullMethod),
					logging.String("panic", fmt.Sprintf("%v", r)),
				)
				err = status.Errorf(codes.Internal, "internal server error")
			}
		}()
		return handler(srv, ss)
	}
}

func isHealthCheck(method string) bool {
	return strings.HasPrefix(method, "/grpc.health.v1.Health/")
}

func loggingUnaryInterceptor(logger logging.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if isHealthCheck(info.FullMethod) {
			return handler(ctx, req)
		}

		start := time.Now()
		resp, err := handler(ctx, req)
		fields := []logging.Field{
			logging.String("method", info.FullMethod),
			logging.Duration("duration", time.Since(start)),
			logging.String("code", status.Code(err).String()),
		}
		if err != nil {
			logger.Warn("grpc request failed", append(fields, logging.Err(err))...)
		} else {
			logger.Info("grpc request", fields...)
		}
		return resp, err
	}
}

func metricsUnaryInterceptor(m *prometheus.AppMetrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		if m != nil && !isHealthCheck(info.FullMethod) {
			_, method := splitMethodName(info.FullMethod)
			m.RecordGRPCRequest(method, status.Code(err).String())
		}
		return resp, err
	}
}

func splitMethodName(fullMethod string) (string, string) {
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	idx := strings.LastIndex(fullMethod, "/")
	if idx < 0 {
		return "unknown", fullMethod
	}
	return fullMethod[:idx], fullMethod[idx+1:]
}
