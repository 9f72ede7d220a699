package subscription

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rmacdonaldsmith/eventstore-go/internal/operation"
	"github.com/rmacdonaldsmith/eventstore-go/internal/wire"
	"github.com/rmacdonaldsmith/eventstore-go/pkg/esdberr"
	"github.com/rmacdonaldsmith/eventstore-go/pkg/event"
)

// NackAction tells the server what to do with rejected events.
type NackAction int

const (
	// NackRetry redelivers the events
	NackRetry NackAction = iota

	// NackSkip drops the events
	NackSkip

	// NackPark moves the events to the group's parked queue
	NackPark

	// NackStop stops delivering to this member
	NackStop
)

func (a NackAction) String() string {
	switch a {
	case NackRetry:
		return "Retry"
	case NackSkip:
		return "Skip"
	case NackPark:
		return "Park"
	case NackStop:
		return "Stop"
	default:
		return "Unknown"
	}
}

var errUnknownNackAction = errors.New("unknown nack action")

func (a NackAction) wire() (wire.NackAction, error) {
	switch a {
	case NackRetry:
		return wire.NackRetry, nil
	case NackSkip:
		return wire.NackSkip, nil
	case NackPark:
		return wire.NackPark, nil
	case NackStop:
		return wire.NackStop, nil
	default:
		return 0, fmt.Errorf("%w: %d", errUnknownNackAction, int(a))
	}
}

// AckBatch acknowledges events by ID. Every call to Ack sends exactly one
// message; there is no implicit batching.
type AckBatch struct {
	IDs []uuid.UUID
}

// NackBatch rejects events by ID.
type NackBatch struct {
	IDs    []uuid.UUID
	Action NackAction
	Reason string
}

// PersistentSession is a member of a persistent subscription group. Acks and
// nacks travel on the same call as the events.
type PersistentSession struct {
	*Session[event.Envelope]
}

// OpenPersistent is Open for persistent subscription calls.
func OpenPersistent(ctx context.Context, call *operation.Call, dec Decoder[*wire.PersistentReadResp, event.Envelope], opts Options) (*PersistentSession, error) {
	s, err := Open[*wire.PersistentReadResp, event.Envelope](ctx, call, dec, opts)
	if err != nil {
		return nil, err
	}
	return &PersistentSession{Session: s}, nil
}

// Ack acknowledges a batch. It does not wait for the server and fails with
// esdberr.ErrSessionClosed once the session has terminated.
func (s *PersistentSession) Ack(batch AckBatch) error {
	if s.State() == Terminated {
		return esdberr.ErrSessionClosed
	}
	if len(batch.IDs) == 0 {
		return nil
	}
	return s.call.Send(&wire.PersistentReadReq{Ack: &wire.PersistentAck{
		SubscriptionID: []byte(s.id),
		IDs:            wireIDs(batch.IDs),
	}})
}

// Nack rejects a batch. It does not wait for the server and fails with
// esdberr.ErrSessionClosed once the session has terminated. An action
// outside the NackAction constants is a *esdberr.RequestBuildError.
func (s *PersistentSession) Nack(batch NackBatch) error {
	action, err := batch.Action.wire()
	if err != nil {
		return &esdberr.RequestBuildError{Op: s.call.Name(), Field: "action", Err: err}
	}
	if s.State() == Terminated {
		return esdberr.ErrSessionClosed
	}
	if len(batch.IDs) == 0 {
		return nil
	}
	return s.call.Send(&wire.PersistentReadReq{Nack: &wire.PersistentNack{
		SubscriptionID: []byte(s.id),
		IDs:            wireIDs(batch.IDs),
		Action:         action,
		Reason:         batch.Reason,
	}})
}

func wireIDs(ids []uuid.UUID) []wire.UUID {
	out := make([]wire.UUID, len(ids))
	for i, id := range ids {
		out[i] = wire.UUID{Value: id}
	}
	return out
}
