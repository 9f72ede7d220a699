package subscription

import (
	"context"
	"errors"
	"io"
	"iter"
	"sync/atomic"
	"time"

	"github.com/rmacdonaldsmith/eventstore-go/internal/bridge"
	"github.com/rmacdonaldsmith/eventstore-go/internal/operation"
	"github.com/rmacdonaldsmith/eventstore-go/internal/wire"
	"github.com/rmacdonaldsmith/eventstore-go/pkg/esdberr"
	"go.uber.org/zap"
)

// State is the lifecycle state of a Session.
type State int32

const (
	AwaitingConfirmation State = iota
	Streaming
	Terminated
)

func (s State) String() string {
	switch s {
	case AwaitingConfirmation:
		return "AwaitingConfirmation"
	case Streaming:
		return "Streaming"
	case Terminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// Decoder classifies the messages of a subscription call.
type Decoder[Resp wire.Message, T any] interface {
	operation.ItemDecoder[Resp, T]

	// Confirmation reports whether resp is the server's subscription
	// confirmation and, if so, the identifier it carries.
	Confirmation(resp Resp) (id string, ok bool)
}

// Options configures Open.
type Options struct {
	// ConfirmationTimeout bounds the wait for the first message. Zero waits
	// until the context ends.
	ConfirmationTimeout time.Duration

	Logger *zap.Logger

	// Bridge holds extra options for the underlying stream
	Bridge []bridge.Option
}

// SetDefaults fills unset fields.
func (o *Options) SetDefaults() {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Session is a live subscription. Items are pulled with Next or All; the
// session ends exactly once.
type Session[T any] struct {
	id    string
	hasID bool
	state atomic.Int32

	call   *operation.Call
	stream *bridge.Stream[T]
}

// Open waits for the first message of call and turns the call into a
// Session.
//
// A confirmation yields the session identifier (an empty identifier counts
// as absent). Any other message means the server does not confirm; the
// session has no identifier and that message is delivered first. An error
// before the first message closes the call and no session is returned. A
// stream that ends before any message yields a session that is already
// terminated.
func Open[Resp wire.Message, T any](ctx context.Context, call *operation.Call, dec Decoder[Resp, T], opts Options) (*Session[T], error) {
	opts.SetDefaults()
	logger := opts.Logger.With(zap.String("operation", call.Name()))

	s := &Session[T]{call: call}
	s.state.Store(int32(AwaitingConfirmation))

	first := dec.NewResponse()
	err := peek(call, first, opts.ConfirmationTimeout)

	var pending *T
	switch {
	case errors.Is(err, io.EOF):
		logger.Debug("subscription ended before confirmation")
		s.startStream(ctx, call, func(context.Context) (T, error) {
			var zero T
			return zero, io.EOF
		}, opts)
		<-s.stream.Done()
		return s, nil
	case err != nil:
		call.Release()
		return nil, err
	}

	if id, ok := dec.Confirmation(first); ok {
		s.id, s.hasID = id, id != ""
		logger.Info("subscription confirmed", zap.String("subscription_id", id))
	} else {
		item, ok, err := dec.Translate(first)
		if err != nil {
			call.Release()
			return nil, err
		}
		if ok {
			pending = &item
		}
		logger.Debug("subscription started without confirmation")
	}

	recv := operation.Receive[Resp, T](call, dec)
	if pending != nil {
		next := recv
		delivered := false
		recv = func(ctx context.Context) (T, error) {
			if !delivered {
				delivered = true
				return *pending, nil
			}
			return next(ctx)
		}
	}

	s.startStream(ctx, call, recv, opts)
	return s, nil
}

func (s *Session[T]) startStream(ctx context.Context, call *operation.Call, recv bridge.Receiver[T], opts Options) {
	bopts := append([]bridge.Option{bridge.WithName(call.Name()), bridge.WithLogger(opts.Logger)}, opts.Bridge...)
	s.state.Store(int32(Streaming))
	s.stream = bridge.New(ctx, recv, call.Release, bopts...)
	s.stream.OnFinish(func(error) {
		s.state.Store(int32(Terminated))
	})
}

// peek receives the first message, giving up after timeout. Whichever of
// the receive and the timer finishes first decides the outcome; the call is
// released only when the timer wins.
func peek(call *operation.Call, first wire.Message, timeout time.Duration) error {
	if timeout <= 0 {
		return call.Recv(first)
	}

	const (
		waiting int32 = iota
		received
		timedOut
	)
	var state atomic.Int32
	timer := time.AfterFunc(timeout, func() {
		if state.CompareAndSwap(waiting, timedOut) {
			call.Release()
		}
	})
	defer timer.Stop()

	err := call.Recv(first)
	if state.CompareAndSwap(waiting, received) {
		return err
	}
	return &esdberr.DeadlineExceededError{Op: call.Name(), Err: context.DeadlineExceeded}
}

// ID returns the server-assigned subscription identifier, if the server
// sent one.
func (s *Session[T]) ID() (string, bool) {
	return s.id, s.hasID
}

// State returns the current lifecycle state.
func (s *Session[T]) State() State {
	if s.stream != nil {
		select {
		case <-s.stream.Done():
			return Terminated
		default:
		}
	}
	return State(s.state.Load())
}

// Next blocks until the next item is available. It returns false once the
// session has terminated.
func (s *Session[T]) Next() (T, bool) {
	return s.stream.Next()
}

// Err returns the terminal error, nil after a normal end or a cancellation.
func (s *Session[T]) Err() error {
	return s.stream.Err()
}

// Done is closed once the session has terminated.
func (s *Session[T]) Done() <-chan struct{} {
	return s.stream.Done()
}

// All returns an iterator over the remaining items; see bridge.Stream.All.
func (s *Session[T]) All() iter.Seq2[T, error] {
	return s.stream.All()
}

// OnFinish registers fn to run once when the session terminates.
func (s *Session[T]) OnFinish(fn func(error)) {
	s.stream.OnFinish(fn)
}

// Close cancels the subscription and waits until its resources are
// released.
func (s *Session[T]) Close() {
	s.stream.Close()
}
