package operation

import (
	"context"

	"github.com/rmacdonaldsmith/eventstore-go/internal/translate"
	"github.com/rmacdonaldsmith/eventstore-go/internal/wire"
	"github.com/rmacdonaldsmith/eventstore-go/pkg/event"
	"google.golang.org/grpc"
)

// DeleteStream soft-deletes a stream. It can be recreated by appending.
type DeleteStream struct {
	Stream   event.StreamIdentifier
	Expected event.ExpectedState
}

func (*DeleteStream) Name() string                   { return "DeleteStream" }
func (*DeleteStream) Method() string                 { return wire.MethodDelete }
func (*DeleteStream) NewResponse() *wire.DeleteResp { return &wire.DeleteResp{} }
func (*DeleteStream) unary()                         {}

func (op *DeleteStream) BuildRequest() (*wire.DeleteReq, error) {
	return deleteRequest(op.Name(), op.Stream, op.Expected)
}

func (*DeleteStream) Translate(resp *wire.DeleteResp) (event.DeleteResult, error) {
	return deleteResult(resp), nil
}

// Execute runs the delete.
func (op *DeleteStream) Execute(ctx context.Context, cc grpc.ClientConnInterface, opts ...grpc.CallOption) (event.DeleteResult, error) {
	return Unary[*wire.DeleteReq, *wire.DeleteResp, event.DeleteResult](ctx, cc, op, opts...)
}

// TombstoneStream permanently deletes a stream. The name can never be
// reused.
type TombstoneStream struct {
	Stream   event.StreamIdentifier
	Expected event.ExpectedState
}

func (*TombstoneStream) Name() string                   { return "TombstoneStream" }
func (*TombstoneStream) Method() string                 { return wire.MethodTombstone }
func (*TombstoneStream) NewResponse() *wire.DeleteResp { return &wire.DeleteResp{} }
func (*TombstoneStream) unary()                         {}

func (op *TombstoneStream) BuildRequest() (*wire.DeleteReq, error) {
	return deleteRequest(op.Name(), op.Stream, op.Expected)
}

func (*TombstoneStream) Translate(resp *wire.DeleteResp) (event.DeleteResult, error) {
	return deleteResult(resp), nil
}

// Execute runs the tombstone.
func (op *TombstoneStream) Execute(ctx context.Context, cc grpc.ClientConnInterface, opts ...grpc.CallOption) (event.DeleteResult, error) {
	return Unary[*wire.DeleteReq, *wire.DeleteResp, event.DeleteResult](ctx, cc, op, opts...)
}

func deleteRequest(op string, stream event.StreamIdentifier, expected event.ExpectedState) (*wire.DeleteReq, error) {
	name, err := stream.Bytes()
	if err != nil {
		return nil, withOp(op, err)
	}
	return &wire.DeleteReq{StreamName: name, Expected: ExpectedToWire(expected)}, nil
}

func deleteResult(resp *wire.DeleteResp) event.DeleteResult {
	if resp.Position == nil {
		return event.DeleteResult{}
	}
	p := translate.Position(*resp.Position)
	return event.DeleteResult{Position: &p}
}
