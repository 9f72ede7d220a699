package operation

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/google/uuid"
	"github.com/rmacdonaldsmith/eventstore-go/internal/translate"
	"github.com/rmacdonaldsmith/eventstore-go/internal/wire"
	"github.com/rmacdonaldsmith/eventstore-go/pkg/esdberr"
	"github.com/rmacdonaldsmith/eventstore-go/pkg/event"
	"github.com/rmacdonaldsmith/eventstore-go/pkg/position"
	"google.golang.org/grpc"
)

var (
	errMissingEventID   = errors.New("event ID must not be nil")
	errMissingEventType = errors.New("event type must not be empty")
	errEmptyResult      = errors.New("response carries neither success nor failure")
)

// Append writes events to a stream atomically.
type Append struct {
	Stream   event.StreamIdentifier
	Expected event.ExpectedState
	Events   []event.EventData
}

func (*Append) Name() string                   { return "AppendToStream" }
func (*Append) Method() string                 { return wire.MethodAppend }
func (*Append) NewResponse() *wire.AppendResp { return &wire.AppendResp{} }
func (*Append) clientStream()                  {}

// Requests yields the options message followed by one message per event.
// The stream name and every event are validated before the first message
// is yielded.
func (op *Append) Requests() iter.Seq2[*wire.AppendReq, error] {
	return func(yield func(*wire.AppendReq, error) bool) {
		reqs, err := op.build()
		if err != nil {
			yield(nil, err)
			return
		}
		for _, req := range reqs {
			if !yield(req, nil) {
				return
			}
		}
	}
}

func (op *Append) build() ([]*wire.AppendReq, error) {
	name, err := op.Stream.Bytes()
	if err != nil {
		return nil, withOp(op.Name(), err)
	}

	reqs := make([]*wire.AppendReq, 0, len(op.Events)+1)
	reqs = append(reqs, &wire.AppendReq{Options: &wire.AppendOptions{StreamName: name, Expected: ExpectedToWire(op.Expected)}})
	for i, e := range op.Events {
		msg, err := proposedMessage(e)
		if err != nil {
			return nil, &esdberr.RequestBuildError{Op: op.Name(), Field: fmt.Sprintf("events[%d]", i), Err: err}
		}
		reqs = append(reqs, &wire.AppendReq{Proposed: msg})
	}
	return reqs, nil
}

func (op *Append) Translate(resp *wire.AppendResp) (event.WriteResult, error) {
	switch {
	case resp.Success != nil:
		result := event.WriteResult{NextExpectedRevision: position.Revision(resp.Success.CurrentRevision)}
		if resp.Success.Position != nil {
			p := translate.Position(*resp.Success.Position)
			result.Position = &p
		}
		return result, nil
	case resp.WrongExpectedVersion != nil:
		return event.WriteResult{}, translate.WrongExpectedVersion(op.Name(), op.Stream.Name(), resp.WrongExpectedVersion)
	}
	return event.WriteResult{}, &esdberr.DecodeError{Op: op.Name(), Err: errEmptyResult}
}

// Execute runs the append.
func (op *Append) Execute(ctx context.Context, cc grpc.ClientConnInterface, opts ...grpc.CallOption) (event.WriteResult, error) {
	return ClientStream[*wire.AppendReq, *wire.AppendResp, event.WriteResult](ctx, cc, op, opts...)
}

func proposedMessage(e event.EventData) (*wire.ProposedMessage, error) {
	if e.ID == uuid.Nil {
		return nil, errMissingEventID
	}
	if e.Type == "" {
		return nil, errMissingEventType
	}
	contentType := e.ContentType
	if contentType == "" {
		contentType = event.ContentTypeBinary
	}
	return &wire.ProposedMessage{
		ID: wire.UUID{Value: e.ID},
		Metadata: map[string]string{
			wire.MetadataType:        e.Type,
			wire.MetadataContentType: contentType,
		},
		CustomMetadata: e.Metadata,
		Data:           e.Data,
	}, nil
}

// ExpectedToWire converts an expected stream state.
func ExpectedToWire(s event.ExpectedState) wire.Expected {
	switch {
	case s.IsNoStream():
		return wire.Expected{Kind: wire.ExpectNoStream}
	case s.IsStreamExists():
		return wire.Expected{Kind: wire.ExpectStreamExists}
	}
	if rev, ok := s.Revision(); ok {
		return wire.Expected{Kind: wire.ExpectRevision, Revision: uint64(rev)}
	}
	return wire.Expected{Kind: wire.ExpectAny}
}
