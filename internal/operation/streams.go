package operation

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rmacdonaldsmith/eventstore-go/internal/bridge"
	"github.com/rmacdonaldsmith/eventstore-go/internal/translate"
	"github.com/rmacdonaldsmith/eventstore-go/internal/wire"
	"github.com/rmacdonaldsmith/eventstore-go/pkg/esdberr"
	"github.com/rmacdonaldsmith/eventstore-go/pkg/event"
	"github.com/rmacdonaldsmith/eventstore-go/pkg/position"
	"google.golang.org/grpc"
)

var errUnknownResponse = errors.New("unrecognized response message")

// ReadStream reads a bounded range of events from one stream.
type ReadStream struct {
	Stream event.StreamIdentifier
	From   position.Cursor[position.Revision]

	// MaxCount bounds the number of events; zero reads to the end
	MaxCount     uint64
	ResolveLinks bool
}

func (*ReadStream) Name() string                 { return "ReadStream" }
func (*ReadStream) Method() string               { return wire.MethodRead }
func (*ReadStream) NewResponse() *wire.ReadResp { return &wire.ReadResp{} }
func (*ReadStream) serverStream()                {}

func (op *ReadStream) BuildRequest() (*wire.ReadReq, error) {
	name, err := op.Stream.Bytes()
	if err != nil {
		return nil, withOp(op.Name(), err)
	}
	start, dir := StreamStart(op.From, false)
	return &wire.ReadReq{
		Stream:       &wire.ReadStreamOptions{StreamName: name, Start: start},
		Direction:    dir,
		ResolveLinks: op.ResolveLinks,
		Count:        readCount(op.MaxCount),
	}, nil
}

func (op *ReadStream) Translate(resp *wire.ReadResp) (event.Envelope, bool, error) {
	return readItem(op.Name(), resp)
}

// Run starts the read and returns its events as a pull-based stream.
func (op *ReadStream) Run(ctx context.Context, cc grpc.ClientConnInterface, bopts []bridge.Option, opts ...grpc.CallOption) (*bridge.Stream[event.Envelope], error) {
	return ServerStream[*wire.ReadReq, *wire.ReadResp, event.Envelope](ctx, cc, op, bopts, opts...)
}

// ReadAll reads a bounded range of events from $all.
type ReadAll struct {
	From         position.Cursor[position.Position]
	MaxCount     uint64
	ResolveLinks bool
	Filter       *wire.FilterOptions
}

func (*ReadAll) Name() string                 { return "ReadAll" }
func (*ReadAll) Method() string               { return wire.MethodRead }
func (*ReadAll) NewResponse() *wire.ReadResp { return &wire.ReadResp{} }
func (*ReadAll) serverStream()                {}

func (op *ReadAll) BuildRequest() (*wire.ReadReq, error) {
	start, dir := AllStart(op.From, false)
	return &wire.ReadReq{
		All:          &wire.ReadAllOptions{Start: start},
		Direction:    dir,
		ResolveLinks: op.ResolveLinks,
		Count:        readCount(op.MaxCount),
		Filter:       op.Filter,
	}, nil
}

func (op *ReadAll) Translate(resp *wire.ReadResp) (event.Envelope, bool, error) {
	return readItem(op.Name(), resp)
}

// Run starts the read and returns its events as a pull-based stream.
func (op *ReadAll) Run(ctx context.Context, cc grpc.ClientConnInterface, bopts []bridge.Option, opts ...grpc.CallOption) (*bridge.Stream[event.Envelope], error) {
	return ServerStream[*wire.ReadReq, *wire.ReadResp, event.Envelope](ctx, cc, op, bopts, opts...)
}

// SubscribeToStream opens a volatile subscription on one stream.
type SubscribeToStream struct {
	Stream       event.StreamIdentifier
	From         position.Cursor[position.Revision]
	ResolveLinks bool
}

func (*SubscribeToStream) Name() string                 { return "SubscribeToStream" }
func (*SubscribeToStream) Method() string               { return wire.MethodRead }
func (*SubscribeToStream) NewResponse() *wire.ReadResp { return &wire.ReadResp{} }
func (*SubscribeToStream) serverStream()                {}

func (op *SubscribeToStream) BuildRequest() (*wire.ReadReq, error) {
	name, err := op.Stream.Bytes()
	if err != nil {
		return nil, withOp(op.Name(), err)
	}
	start, dir := StreamStart(op.From, true)
	return &wire.ReadReq{
		Stream:       &wire.ReadStreamOptions{StreamName: name, Start: start},
		Direction:    dir,
		ResolveLinks: op.ResolveLinks,
		Subscription: true,
	}, nil
}

func (op *SubscribeToStream) Translate(resp *wire.ReadResp) (event.SubscriptionItem, bool, error) {
	return subscriptionItem(op.Name(), resp)
}

func (*SubscribeToStream) Confirmation(resp *wire.ReadResp) (string, bool) {
	return readConfirmation(resp)
}

// Open starts the subscription and returns the raw call.
func (op *SubscribeToStream) Open(ctx context.Context, cc grpc.ClientConnInterface, opts ...grpc.CallOption) (*Call, error) {
	return OpenServerStream[*wire.ReadReq, *wire.ReadResp, event.SubscriptionItem](ctx, cc, op, opts...)
}

// SubscribeToAll opens a volatile subscription on $all.
type SubscribeToAll struct {
	From         position.Cursor[position.Position]
	ResolveLinks bool
	Filter       *wire.FilterOptions
}

func (*SubscribeToAll) Name() string                 { return "SubscribeToAll" }
func (*SubscribeToAll) Method() string               { return wire.MethodRead }
func (*SubscribeToAll) NewResponse() *wire.ReadResp { return &wire.ReadResp{} }
func (*SubscribeToAll) serverStream()                {}

func (op *SubscribeToAll) BuildRequest() (*wire.ReadReq, error) {
	start, dir := AllStart(op.From, true)
	return &wire.ReadReq{
		All:          &wire.ReadAllOptions{Start: start},
		Direction:    dir,
		ResolveLinks: op.ResolveLinks,
		Subscription: true,
		Filter:       op.Filter,
	}, nil
}

func (op *SubscribeToAll) Translate(resp *wire.ReadResp) (event.SubscriptionItem, bool, error) {
	return subscriptionItem(op.Name(), resp)
}

func (*SubscribeToAll) Confirmation(resp *wire.ReadResp) (string, bool) {
	return readConfirmation(resp)
}

// Open starts the subscription and returns the raw call.
func (op *SubscribeToAll) Open(ctx context.Context, cc grpc.ClientConnInterface, opts ...grpc.CallOption) (*Call, error) {
	return OpenServerStream[*wire.ReadReq, *wire.ReadResp, event.SubscriptionItem](ctx, cc, op, opts...)
}

func readItem(op string, resp *wire.ReadResp) (event.Envelope, bool, error) {
	switch resp.Kind {
	case wire.RespEvent:
		env, err := translate.Envelope(op, resp.Event)
		if err != nil {
			return event.Envelope{}, false, err
		}
		return env, true, nil
	case wire.RespStreamNotFound:
		return event.Envelope{}, false, streamNotFound(op, resp)
	case wire.RespConfirmation,
		wire.RespCheckpoint,
		wire.RespFirstStreamPosition,
		wire.RespLastStreamPosition,
		wire.RespLastAllStreamPosition,
		wire.RespCaughtUp,
		wire.RespFellBehind:
		return event.Envelope{}, false, nil
	default:
		return event.Envelope{}, false, unknownResponse(op, resp)
	}
}

func subscriptionItem(op string, resp *wire.ReadResp) (event.SubscriptionItem, bool, error) {
	switch resp.Kind {
	case wire.RespEvent:
		env, err := translate.Envelope(op, resp.Event)
		if err != nil {
			return event.SubscriptionItem{}, false, err
		}
		return event.EventItem(env), true, nil
	case wire.RespCheckpoint:
		return event.CheckpointItem(translate.Position(resp.Checkpoint)), true, nil
	case wire.RespCaughtUp:
		return event.CaughtUpItem(), true, nil
	case wire.RespFellBehind:
		return event.FellBehindItem(), true, nil
	case wire.RespStreamNotFound:
		return event.SubscriptionItem{}, false, streamNotFound(op, resp)
	case wire.RespConfirmation,
		wire.RespFirstStreamPosition,
		wire.RespLastStreamPosition,
		wire.RespLastAllStreamPosition:
		return event.SubscriptionItem{}, false, nil
	default:
		return event.SubscriptionItem{}, false, unknownResponse(op, resp)
	}
}

func unknownResponse(op string, resp *wire.ReadResp) error {
	return &esdberr.DecodeError{Op: op, Err: fmt.Errorf("%w: %s", errUnknownResponse, resp.Kind)}
}

func readConfirmation(resp *wire.ReadResp) (string, bool) {
	if resp.Kind != wire.RespConfirmation {
		return "", false
	}
	return resp.SubscriptionID, true
}

func streamNotFound(op string, resp *wire.ReadResp) error {
	return &esdberr.DomainError{Op: op, Kind: esdberr.KindNotFound, Stream: string(resp.NotFoundStream)}
}

func readCount(n uint64) uint64 {
	if n == 0 {
		return math.MaxUint64
	}
	return n
}

// withOp stamps the operation name onto a RequestBuildError raised by a
// lower layer.
func withOp(op string, err error) error {
	var buildErr *esdberr.RequestBuildError
	if errors.As(err, &buildErr) && buildErr.Op == "" {
		stamped := *buildErr
		stamped.Op = op
		return &stamped
	}
	return err
}
