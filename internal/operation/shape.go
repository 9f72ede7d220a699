package operation

import (
	"context"
	"errors"
	"io"
	"iter"

	"github.com/rmacdonaldsmith/eventstore-go/internal/bridge"
	"github.com/rmacdonaldsmith/eventstore-go/internal/translate"
	"github.com/rmacdonaldsmith/eventstore-go/internal/wire"
	"github.com/rmacdonaldsmith/eventstore-go/pkg/esdberr"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// Operation names an RPC.
type Operation interface {
	// Name is the operation name used in errors, logs and metrics
	Name() string

	// Method is the full gRPC method path
	Method() string
}

// ItemDecoder classifies the messages of a response stream.
type ItemDecoder[Resp wire.Message, T any] interface {
	NewResponse() Resp

	// Translate converts one message. ok is false when the message is
	// consumed without producing an item.
	Translate(Resp) (item T, ok bool, err error)
}

// UnaryCall sends one request and awaits one response.
type UnaryCall[Req, Resp wire.Message, T any] interface {
	Operation
	BuildRequest() (Req, error)
	NewResponse() Resp
	Translate(Resp) (T, error)
	unary()
}

// ClientStreamCall sends a sequence of requests and awaits one aggregated
// response.
type ClientStreamCall[Req, Resp wire.Message, T any] interface {
	Operation

	// Requests produces the request messages in order. A non-nil error
	// aborts the call.
	Requests() iter.Seq2[Req, error]
	NewResponse() Resp
	Translate(Resp) (T, error)
	clientStream()
}

// ServerStreamCall sends one request and receives a possibly infinite
// sequence of responses.
type ServerStreamCall[Req, Resp wire.Message, T any] interface {
	Operation
	ItemDecoder[Resp, T]
	BuildRequest() (Req, error)
	serverStream()
}

// BidiStreamCall exchanges messages in both directions over one call.
type BidiStreamCall[Req, Resp wire.Message, T any] interface {
	Operation
	ItemDecoder[Resp, T]

	// BuildRequest returns the message that opens the session
	BuildRequest() (Req, error)
	bidiStream()
}

var errNoRequests = errors.New("no request messages")

func callOptions(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.ForceCodec(wire.Codec{})}, opts...)
}

// callError translates err. A cancellation while ctx is still live means the
// connection was closed under the call.
func callError(ctx context.Context, name string, err error, trailer metadata.MD) error {
	err = translate.Error(name, err, trailer)
	if !errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return err
	}
	var connErr *esdberr.ConnectionError
	if errors.As(err, &connErr) {
		return err
	}
	return &esdberr.ConnectionError{Err: err}
}

// Unary runs op to completion.
func Unary[Req, Resp wire.Message, T any](ctx context.Context, cc grpc.ClientConnInterface, op UnaryCall[Req, Resp, T], opts ...grpc.CallOption) (T, error) {
	var zero T

	req, err := op.BuildRequest()
	if err != nil {
		return zero, err
	}

	resp := op.NewResponse()
	var trailer metadata.MD
	opts = append(callOptions(opts), grpc.Trailer(&trailer))
	if err := cc.Invoke(ctx, op.Method(), req, resp, opts...); err != nil {
		return zero, callError(ctx, op.Name(), err, trailer)
	}
	return op.Translate(resp)
}

// ClientStream runs op to completion. The first request is produced before
// the call is opened, so an op that validates everything up front in its
// first request never opens a call it cannot complete.
func ClientStream[Req, Resp wire.Message, T any](ctx context.Context, cc grpc.ClientConnInterface, op ClientStreamCall[Req, Resp, T], opts ...grpc.CallOption) (T, error) {
	var zero T

	next, stop := iter.Pull2(op.Requests())
	defer stop()

	first, err, ok := next()
	if !ok {
		return zero, &esdberr.RequestBuildError{Op: op.Name(), Field: "request", Err: errNoRequests}
	}
	if err != nil {
		return zero, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	desc := &grpc.StreamDesc{StreamName: op.Name(), ClientStreams: true}
	stream, err := cc.NewStream(ctx, desc, op.Method(), callOptions(opts)...)
	if err != nil {
		return zero, callError(ctx, op.Name(), err, nil)
	}

	for req := first; ; {
		if err := stream.SendMsg(req); err != nil {
			if errors.Is(err, io.EOF) {
				// the server ended the call; its status is read below
				break
			}
			return zero, callError(ctx, op.Name(), err, nil)
		}

		req, err, ok = next()
		if !ok {
			break
		}
		if err != nil {
			// canceling the call discards everything sent so far
			return zero, err
		}
	}

	if err := stream.CloseSend(); err != nil {
		return zero, callError(ctx, op.Name(), err, nil)
	}

	resp := op.NewResponse()
	if err := stream.RecvMsg(resp); err != nil {
		if errors.Is(err, io.EOF) {
			err = &esdberr.DecodeError{Op: op.Name(), Err: io.ErrUnexpectedEOF}
		}
		return zero, callError(ctx, op.Name(), err, stream.Trailer())
	}
	return op.Translate(resp)
}

// OpenServerStream sends op's request and returns the open call. The caller
// owns the call and must Release it.
func OpenServerStream[Req, Resp wire.Message, T any](ctx context.Context, cc grpc.ClientConnInterface, op ServerStreamCall[Req, Resp, T], opts ...grpc.CallOption) (*Call, error) {
	req, err := op.BuildRequest()
	if err != nil {
		return nil, err
	}

	desc := &grpc.StreamDesc{StreamName: op.Name(), ServerStreams: true}
	return open(ctx, cc, op, desc, req, true, opts)
}

// OpenBidi sends op's opening request and returns the open call. The caller
// owns the call and must Release it.
func OpenBidi[Req, Resp wire.Message, T any](ctx context.Context, cc grpc.ClientConnInterface, op BidiStreamCall[Req, Resp, T], opts ...grpc.CallOption) (*Call, error) {
	req, err := op.BuildRequest()
	if err != nil {
		return nil, err
	}

	desc := &grpc.StreamDesc{StreamName: op.Name(), ServerStreams: true, ClientStreams: true}
	return open(ctx, cc, op, desc, req, false, opts)
}

func open(ctx context.Context, cc grpc.ClientConnInterface, op Operation, desc *grpc.StreamDesc, req wire.Message, closeSend bool, opts []grpc.CallOption) (*Call, error) {
	ctx, cancel := context.WithCancel(ctx)

	stream, err := cc.NewStream(ctx, desc, op.Method(), callOptions(opts)...)
	if err != nil {
		err = callError(ctx, op.Name(), err, nil)
		cancel()
		return nil, err
	}

	// io.EOF means the server already ended the call; the first Recv reports why
	if err := stream.SendMsg(req); err != nil && !errors.Is(err, io.EOF) {
		err = callError(ctx, op.Name(), err, nil)
		cancel()
		return nil, err
	}
	if closeSend {
		if err := stream.CloseSend(); err != nil {
			err = callError(ctx, op.Name(), err, nil)
			cancel()
			return nil, err
		}
	}

	return NewCall(ctx, op.Name(), stream, cancel), nil
}

// Receive returns a bridge receiver that reads call and keeps the messages
// dec turns into items.
func Receive[Resp wire.Message, T any](call *Call, dec ItemDecoder[Resp, T]) bridge.Receiver[T] {
	return func(context.Context) (T, error) {
		var zero T
		for {
			resp := dec.NewResponse()
			if err := call.Recv(resp); err != nil {
				return zero, err
			}
			item, ok, err := dec.Translate(resp)
			if err != nil {
				return zero, err
			}
			if ok {
				return item, nil
			}
		}
	}
}

// ServerStream opens op and bridges its responses into a pull-based stream.
// Closing the stream releases the call.
func ServerStream[Req, Resp wire.Message, T any](ctx context.Context, cc grpc.ClientConnInterface, op ServerStreamCall[Req, Resp, T], bopts []bridge.Option, opts ...grpc.CallOption) (*bridge.Stream[T], error) {
	call, err := OpenServerStream(ctx, cc, op, opts...)
	if err != nil {
		return nil, err
	}
	bopts = append([]bridge.Option{bridge.WithName(op.Name())}, bopts...)
	return bridge.New(ctx, Receive[Resp, T](call, op), call.Release, bopts...), nil
}
