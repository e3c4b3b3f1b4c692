package safetyrules

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type threadRequest struct {
	payload []byte
	reply   chan threadReply
}

type threadReply struct {
	payload []byte
	err     error
}

// ThreadService owns a SerializerService on one dedicated goroutine.
// Requests are queued in a bounded mailbox and processed one at a time, in
// arrival order.
//
// A caller waits at most timeout for its reply. The worker always finishes
// an operation it has started, even if the caller has given up.
type ThreadService struct {
	requests chan threadRequest
	done     chan struct{}
	dead     chan struct{}
	timeout  time.Duration
	log      *slog.Logger

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewThreadService starts the worker. Close stops it.
func NewThreadService(rules TSafetyRules, timeout time.Duration, opts ...Option) *ThreadService {
	o := buildOptions(opts)
	t := &ThreadService{
		requests: make(chan threadRequest, o.mailboxSize),
		done:     make(chan struct{}),
		dead:     make(chan struct{}),
		timeout:  timeout,
		log:      o.logger,
	}
	service := NewSerializerService(rules)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.run(service)
	}()
	return t
}

func (t *ThreadService) run(service *SerializerService) {
	for {
		select {
		case <-t.done:
			return
		case req := <-t.requests:
			payload, panicked, err := t.handle(service, req.payload)
			req.reply <- threadReply{payload: payload, err: err}
			if panicked {
				close(t.dead)
				return
			}
		}
	}
}

func (t *ThreadService) handle(service *SerializerService, request []byte) (resp []byte, panicked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("safety rules worker panicked", "panic", r)
			resp, panicked, err = nil, true, newError(KindInternal, "thread", fmt.Errorf("%w: %v", ErrPoisoned, r))
		}
	}()
	resp, err = service.Handle(request)
	return resp, false, err
}

// call submits one request and waits for the reply or the timeout.
func (t *ThreadService) call(request []byte) ([]byte, error) {
	timer := time.NewTimer(t.timeout)
	defer timer.Stop()

	select {
	case <-t.dead:
		return nil, newError(KindInternal, "thread", ErrPoisoned)
	case <-t.done:
		return nil, newError(KindTransport, "thread", ErrClosed)
	default:
	}

	req := threadRequest{payload: request, reply: make(chan threadReply, 1)}
	select {
	case <-t.dead:
		return nil, newError(KindInternal, "thread", ErrPoisoned)
	case <-t.done:
		return nil, newError(KindTransport, "thread", ErrClosed)
	case <-timer.C:
		return nil, t.timedOut()
	case t.requests <- req:
	}

	select {
	case r := <-req.reply:
		return r.payload, r.err
	case <-t.dead:
		return nil, newError(KindInternal, "thread", ErrPoisoned)
	case <-t.done:
		return nil, newError(KindTransport, "thread", ErrClosed)
	case <-timer.C:
		return nil, t.timedOut()
	}
}

func (t *ThreadService) timedOut() error {
	t.log.Warn("safety rules request timed out", "timeout", t.timeout)
	return newError(KindTransport, "thread", fmt.Errorf("%w after %s", ErrTimeout, t.timeout))
}

// Client returns a new client of the worker.
func (t *ThreadService) Client() *SerializerClient {
	return newSerializerClient(t.call)
}

// Close stops the worker after its current request. Queued requests are
// abandoned; their callers time out or see ErrClosed.
func (t *ThreadService) Close() error {
	t.closeOnce.Do(func() { close(t.done) })
	t.wg.Wait()
	return nil
}
