package operation

import (
	"context"
	"errors"

	"github.com/rmacdonaldsmith/eventstore-go/internal/translate"
	"github.com/rmacdonaldsmith/eventstore-go/internal/wire"
	"github.com/rmacdonaldsmith/eventstore-go/pkg/esdberr"
	"github.com/rmacdonaldsmith/eventstore-go/pkg/event"
	"google.golang.org/grpc"
)

// DefaultBufferSize is the number of in-flight events a persistent
// subscription member asks for when none is configured.
const DefaultBufferSize = 10

var errEmptyGroup = errors.New("group name must not be empty")

// CreatePersistentSubscription creates a subscription group on a stream, or
// on $all when Stream is nil.
type CreatePersistentSubscription struct {
	Stream   *event.StreamIdentifier
	Group    string
	Settings wire.PersistentSettings
	Filter   *wire.FilterOptions
}

func (*CreatePersistentSubscription) Name() string              { return "CreatePersistentSubscription" }
func (*CreatePersistentSubscription) Method() string            { return wire.MethodPersistentCreate }
func (*CreatePersistentSubscription) NewResponse() *wire.Empty { return &wire.Empty{} }
func (*CreatePersistentSubscription) unary()                    {}

func (op *CreatePersistentSubscription) BuildRequest() (*wire.CreatePersistentReq, error) {
	if op.Group == "" {
		return nil, &esdberr.RequestBuildError{Op: op.Name(), Field: "group", Err: errEmptyGroup}
	}
	req := &wire.CreatePersistentReq{GroupName: op.Group, Settings: op.Settings}
	if op.Stream != nil {
		name, err := op.Stream.Bytes()
		if err != nil {
			return nil, withOp(op.Name(), err)
		}
		req.StreamName = name
	} else {
		req.Filter = op.Filter
	}
	return req, nil
}

func (*CreatePersistentSubscription) Translate(*wire.Empty) (translate.Discarded, error) {
	return translate.Discarded{}, nil
}

// Execute creates the group.
func (op *CreatePersistentSubscription) Execute(ctx context.Context, cc grpc.ClientConnInterface, opts ...grpc.CallOption) error {
	_, err := Unary[*wire.CreatePersistentReq, *wire.Empty, translate.Discarded](ctx, cc, op, opts...)
	return err
}

// DeletePersistentSubscription deletes a subscription group.
type DeletePersistentSubscription struct {
	Stream *event.StreamIdentifier
	Group  string
}

func (*DeletePersistentSubscription) Name() string              { return "DeletePersistentSubscription" }
func (*DeletePersistentSubscription) Method() string            { return wire.MethodPersistentDelete }
func (*DeletePersistentSubscription) NewResponse() *wire.Empty { return &wire.Empty{} }
func (*DeletePersistentSubscription) unary()                    {}

func (op *DeletePersistentSubscription) BuildRequest() (*wire.DeletePersistentReq, error) {
	if op.Group == "" {
		return nil, &esdberr.RequestBuildError{Op: op.Name(), Field: "group", Err: errEmptyGroup}
	}
	req := &wire.DeletePersistentReq{GroupName: op.Group}
	if op.Stream != nil {
		name, err := op.Stream.Bytes()
		if err != nil {
			return nil, withOp(op.Name(), err)
		}
		req.StreamName = name
	}
	return req, nil
}

func (*DeletePersistentSubscription) Translate(*wire.Empty) (translate.Discarded, error) {
	return translate.Discarded{}, nil
}

// Execute deletes the group.
func (op *DeletePersistentSubscription) Execute(ctx context.Context, cc grpc.ClientConnInterface, opts ...grpc.CallOption) error {
	_, err := Unary[*wire.DeletePersistentReq, *wire.Empty, translate.Discarded](ctx, cc, op, opts...)
	return err
}

// PersistentSubscribe joins a subscription group. Events flow from the
// server while acks and nacks flow back over the same call.
type PersistentSubscribe struct {
	Stream     *event.StreamIdentifier
	Group      string
	BufferSize int32
}

func (*PersistentSubscribe) Name() string                           { return "SubscribeToPersistentSubscription" }
func (*PersistentSubscribe) Method() string                         { return wire.MethodPersistentRead }
func (*PersistentSubscribe) NewResponse() *wire.PersistentReadResp { return &wire.PersistentReadResp{} }
func (*PersistentSubscribe) bidiStream()                            {}

func (op *PersistentSubscribe) BuildRequest() (*wire.PersistentReadReq, error) {
	if op.Group == "" {
		return nil, &esdberr.RequestBuildError{Op: op.Name(), Field: "group", Err: errEmptyGroup}
	}
	opts := &wire.PersistentReadOptions{GroupName: op.Group, BufferSize: op.BufferSize}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if op.Stream != nil {
		name, err := op.Stream.Bytes()
		if err != nil {
			return nil, withOp(op.Name(), err)
		}
		opts.StreamName = name
	}
	return &wire.PersistentReadReq{Options: opts}, nil
}

func (op *PersistentSubscribe) Translate(resp *wire.PersistentReadResp) (event.Envelope, bool, error) {
	switch {
	case resp.Event != nil:
		env, err := translate.Envelope(op.Name(), resp.Event)
		if err != nil {
			return event.Envelope{}, false, err
		}
		return env, true, nil
	case resp.Confirmed:
		return event.Envelope{}, false, nil
	default:
		return event.Envelope{}, false, &esdberr.DecodeError{Op: op.Name(), Err: errUnknownResponse}
	}
}

func (*PersistentSubscribe) Confirmation(resp *wire.PersistentReadResp) (string, bool) {
	return resp.SubscriptionID, resp.Confirmed
}

// Open joins the group and returns the raw call.
func (op *PersistentSubscribe) Open(ctx context.Context, cc grpc.ClientConnInterface, opts ...grpc.CallOption) (*Call, error) {
	return OpenBidi[*wire.PersistentReadReq, *wire.PersistentReadResp, event.Envelope](ctx, cc, op, opts...)
}
