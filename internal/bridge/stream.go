package bridge

import (
	"context"
	"errors"
	"io"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/rmacdonaldsmith/eventstore-go/pkg/esdberr"
	"go.uber.org/zap"
)

// Receiver produces the next item of a stream. It returns io.EOF once the
// producer has no more items; any other error terminates the stream with
// that error.
type Receiver[T any] func(ctx context.Context) (T, error)

// Option configures a Stream.
type Option func(*options)

type options struct {
	name   string
	logger *zap.Logger
}

// WithName sets the operation name used in logs and deadline errors.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithLogger sets the logger for stream lifecycle events.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Stream is a pull-based view of a push-based producer. A background
// goroutine runs the Receiver and hands items over a single-slot channel, so
// at most one item is buffered ahead of the consumer.
//
// A Stream terminates exactly once: on io.EOF (no error), on a producer error,
// on deadline expiry (a *esdberr.DeadlineExceededError) or on cancellation
// through ctx or Close (no error). A producer reporting cancellation that
// came from neither ends it with a *esdberr.ConnectionError. The release function runs exactly once, before termination is
// observable.
type Stream[T any] struct {
	name   string
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	items chan T
	done  chan struct{}

	release     func()
	releaseOnce sync.Once
	stopRelease func() bool

	closed atomic.Bool

	mu        sync.Mutex
	err       error
	finished  bool
	callbacks []func(error)
}

// New starts pulling from recv. Canceling ctx or calling Close stops the
// producer and triggers release. release may be nil.
func New[T any](ctx context.Context, recv Receiver[T], release func(), opts ...Option) *Stream[T] {
	o := options{name: "stream", logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Stream[T]{
		name:    o.name,
		logger:  o.logger,
		ctx:     ctx,
		cancel:  cancel,
		items:   make(chan T, 1),
		done:    make(chan struct{}),
		release: release,
	}

	// A producer blocked in a network receive only returns once the
	// underlying call is torn down.
	s.stopRelease = context.AfterFunc(ctx, s.doRelease)

	go s.run(recv)
	return s
}

func (s *Stream[T]) run(recv Receiver[T]) {
	for {
		item, err := recv(s.ctx)
		if err != nil {
			s.finish(s.terminalError(err))
			return
		}

		select {
		case s.items <- item:
		case <-s.ctx.Done():
			s.finish(s.terminalError(s.ctx.Err()))
			return
		}
	}
}

func (s *Stream[T]) terminalError(err error) error {
	switch {
	case errors.Is(err, io.EOF):
		return nil
	case errors.Is(err, context.Canceled):
		if s.ctx.Err() != nil {
			return nil
		}
		// The call was torn down underneath a live stream.
		var connErr *esdberr.ConnectionError
		if errors.As(err, &connErr) {
			return err
		}
		return &esdberr.ConnectionError{Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &esdberr.DeadlineExceededError{Op: s.name, Err: err}
	}
	return err
}

func (s *Stream[T]) doRelease() {
	s.releaseOnce.Do(func() {
		if s.release != nil {
			s.release()
		}
	})
}

func (s *Stream[T]) finish(err error) {
	s.stopRelease()
	s.doRelease()

	s.mu.Lock()
	s.err = err
	s.finished = true
	callbacks := s.callbacks
	s.callbacks = nil
	s.mu.Unlock()

	close(s.items)
	close(s.done)
	s.cancel()

	if err != nil {
		s.logger.Debug("stream terminated with error", zap.String("operation", s.name), zap.Error(err))
	} else {
		s.logger.Debug("stream completed", zap.String("operation", s.name))
	}

	for _, fn := range callbacks {
		fn(err)
	}
}

// Next blocks until the next item is available. It returns false once the
// stream has terminated; Err then reports why. After Close, Next returns
// false without delivering items still buffered.
func (s *Stream[T]) Next() (T, bool) {
	var zero T
	if s.closed.Load() {
		return zero, false
	}
	item, ok := <-s.items
	if !ok || s.closed.Load() {
		return zero, false
	}
	return item, true
}

// Err returns the terminal error. It is nil while the stream is running and
// after a normal end or a cancellation.
func (s *Stream[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed once the stream has terminated and released its resources.
func (s *Stream[T]) Done() <-chan struct{} {
	return s.done
}

// Close cancels the stream and waits for the producer to stop. It is safe to
// call more than once and from any goroutine.
func (s *Stream[T]) Close() {
	s.closed.Store(true)
	s.cancel()
	<-s.done
}

// OnFinish registers fn to run once with the terminal error. If the stream
// has already terminated, fn runs immediately on the calling goroutine.
func (s *Stream[T]) OnFinish(fn func(error)) {
	s.mu.Lock()
	if s.finished {
		err := s.err
		s.mu.Unlock()
		fn(err)
		return
	}
	s.callbacks = append(s.callbacks, fn)
	s.mu.Unlock()
}

// All returns an iterator over the remaining items. A terminal error is
// yielded as the final pair. Breaking out of the loop closes the stream.
func (s *Stream[T]) All() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for {
			item, ok := s.Next()
			if !ok {
				break
			}
			if !yield(item, nil) {
				s.Close()
				return
			}
		}

		<-s.done
		if err := s.Err(); err != nil {
			var zero T
			yield(zero, err)
		}
	}
}
