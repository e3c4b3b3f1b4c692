package safetyrules

import (
	"log/slog"

	"google.golang.org/grpc"
)

// DefaultMailboxSize bounds the thread topology's request queue.
const DefaultMailboxSize = 16

type options struct {
	logger      *slog.Logger
	dialOptions []grpc.DialOption
	mailboxSize int
}

// Option configures managers, services and servers.
type Option func(*options)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithDialOptions adds gRPC dial options for the process topology, after the
// defaults (insecure transport credentials and tracing).
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *options) { o.dialOptions = append(o.dialOptions, opts...) }
}

// WithMailboxSize sets how many requests may queue for the thread worker.
func WithMailboxSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.mailboxSize = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger:      slog.New(slog.DiscardHandler),
		mailboxSize: DefaultMailboxSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
