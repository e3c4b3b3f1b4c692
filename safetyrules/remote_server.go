package safetyrules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// RemoteServer is the server half of the process topology: a
// SerializerService behind an exclusive lock, served over gRPC.
type RemoteServer struct {
	UnimplementedSafetyRulesServer

	mu       sync.Mutex
	service  *SerializerService
	poisoned bool
	log      *slog.Logger
}

func NewRemoteServer(rules TSafetyRules, opts ...Option) *RemoteServer {
	o := buildOptions(opts)
	return &RemoteServer{service: NewSerializerService(rules), log: o.logger}
}

// Request handles one encoded SafetyRulesInput. An operation that has
// started always runs to completion, even if the caller's deadline passes.
func (s *RemoteServer) Request(_ context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	resp, err := s.handle(in.GetValue())
	if err != nil {
		return nil, mapErr(err)
	}
	return wrapperspb.Bytes(resp), nil
}

func (s *RemoteServer) handle(request []byte) (resp []byte, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.poisoned {
		return nil, newError(KindInternal, "remote", ErrPoisoned)
	}
	defer func() {
		if r := recover(); r != nil {
			s.poisoned = true
			s.log.Error("evaluator panicked", "panic", r)
			resp, err = nil, newError(KindInternal, "remote", fmt.Errorf("%w: %v", ErrPoisoned, r))
		}
	}()
	return s.service.Handle(request)
}

// NewGRPCServer returns a gRPC server with the SafetyRules service and the
// standard health service registered.
func (s *RemoteServer) NewGRPCServer(opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	opts = append([]grpc.ServerOption{grpc.StatsHandler(otelgrpc.NewServerHandler())}, opts...)
	gs := grpc.NewServer(opts...)
	RegisterSafetyRulesServer(gs, s)
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(gs, hs)
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	return gs, hs
}

// Serve serves on lis until ctx is done, then stops gracefully.
func (s *RemoteServer) Serve(ctx context.Context, lis net.Listener, opts ...grpc.ServerOption) error {
	gs, hs := s.NewGRPCServer(opts...)
	s.log.Info("safety rules server listening", "addr", lis.Addr().String())

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- gs.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		hs.Shutdown()
		gs.GracefulStop()
		err := <-serveErr
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	case err := <-serveErr:
		hs.Shutdown()
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	}
}
