package safetyrules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ProcessService reaches a remote safety rules server. Its clients share one
// gRPC connection. Nothing is retried: every failure is returned to the
// caller as a KindTransport error.
type ProcessService struct {
	addr    string
	timeout time.Duration
	log     *slog.Logger

	mu     sync.Mutex
	cc     *grpc.ClientConn
	client SafetyRulesClient
}

// NewProcessService prepares a connection to addr. It does not dial; the
// first request does.
func NewProcessService(addr string, timeout time.Duration, opts ...Option) (*ProcessService, error) {
	o := buildOptions(opts)
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}, o.dialOptions...)
	cc, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, newError(KindStartup, "process", fmt.Errorf("%w: %v", ErrNetwork, err))
	}
	return &ProcessService{
		addr:    addr,
		timeout: timeout,
		log:     o.logger.With("server", addr),
		cc:      cc,
		client:  NewSafetyRulesClient(cc),
	}, nil
}

// Addr is the remote server address.
func (p *ProcessService) Addr() string { return p.addr }

// Client returns a new client of the remote server.
func (p *ProcessService) Client() *SerializerClient {
	return newSerializerClient(p.call)
}

func (p *ProcessService) call(request []byte) ([]byte, error) {
	p.mu.Lock()
	client := p.client
	p.mu.Unlock()
	if client == nil {
		return nil, newError(KindTransport, "process", ErrClosed)
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	reply, err := client.Request(ctx, wrapperspb.Bytes(request))
	if err != nil {
		err = mapRPC(err)
		p.log.Warn("safety rules request failed", "err", err)
		return nil, err
	}
	return reply.GetValue(), nil
}

// Close closes the shared connection. Later calls fail with ErrClosed.
func (p *ProcessService) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cc == nil {
		return nil
	}
	err := p.cc.Close()
	p.cc, p.client = nil, nil
	return err
}

func mapRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return newError(KindTransport, "process", fmt.Errorf("%w: %v", ErrNetwork, err))
	}
	switch st.Code() {
	case codes.DeadlineExceeded:
		return newError(KindTransport, "process", fmt.Errorf("%w: %s", ErrTimeout, st.Message()))
	case codes.Internal:
		if st.Message() == ErrPoisoned.Error() {
			return newError(KindInternal, "process", ErrPoisoned)
		}
	}
	return newError(KindTransport, "process", fmt.Errorf("%w: %s: %s", ErrNetwork, st.Code(), st.Message()))
}

// mapErr turns a server-side failure into a gRPC status.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrPoisoned):
		return status.Error(codes.Internal, ErrPoisoned.Error())
	case IsKind(err, KindCodec):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Unknown, err.Error())
	}
}
