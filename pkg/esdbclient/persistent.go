package esdbclient

import (
	"context"
	"time"

	"github.com/rmacdonaldsmith/eventstore-go/internal/operation"
	"github.com/rmacdonaldsmith/eventstore-go/internal/selector"
	"github.com/rmacdonaldsmith/eventstore-go/internal/subscription"
	"google.golang.org/grpc"
)

// PersistentSubscription is a member of a persistent subscription group.
type PersistentSubscription = subscription.PersistentSession

// AckBatch and NackBatch settle events of a persistent subscription by ID.
type (
	AckBatch   = subscription.AckBatch
	NackBatch  = subscription.NackBatch
	NackAction = subscription.NackAction
)

// Nack actions.
const (
	NackRetry = subscription.NackRetry
	NackSkip  = subscription.NackSkip
	NackPark  = subscription.NackPark
	NackStop  = subscription.NackStop
)

// CreatePersistentSubscription creates group on stream.
func (c *Client) CreatePersistentSubscription(ctx context.Context, stream, group string, opts CreatePersistentOptions) error {
	const name = "CreatePersistentSubscription"
	start := time.Now()

	id, err := streamID(name, stream)
	if err != nil {
		return c.finish(nil, name, start, err)
	}

	settings := opts.Settings.wire()
	settings.Start, _ = operation.StreamStart(opts.From, true)
	op := &operation.CreatePersistentSubscription{Stream: &id, Group: group, Settings: settings}
	return c.runPersistent(ctx, name, start, opts.CallOptions, op.Execute)
}

// CreatePersistentSubscriptionToAll creates group on $all.
func (c *Client) CreatePersistentSubscriptionToAll(ctx context.Context, group string, opts CreatePersistentToAllOptions) error {
	const name = "CreatePersistentSubscription"
	start := time.Now()

	settings := opts.Settings.wire()
	settings.AllStart, _ = operation.AllStart(opts.From, true)
	op := &operation.CreatePersistentSubscription{Group: group, Settings: settings, Filter: opts.Filter.wire()}
	return c.runPersistent(ctx, name, start, opts.CallOptions, op.Execute)
}

// DeletePersistentSubscription deletes group on stream. Its members are
// disconnected.
func (c *Client) DeletePersistentSubscription(ctx context.Context, stream, group string, opts DeletePersistentOptions) error {
	const name = "DeletePersistentSubscription"
	start := time.Now()

	id, err := streamID(name, stream)
	if err != nil {
		return c.finish(nil, name, start, err)
	}

	op := &operation.DeletePersistentSubscription{Stream: &id, Group: group}
	return c.runPersistent(ctx, name, start, opts.CallOptions, op.Execute)
}

// DeletePersistentSubscriptionToAll deletes group on $all.
func (c *Client) DeletePersistentSubscriptionToAll(ctx context.Context, group string, opts DeletePersistentOptions) error {
	const name = "DeletePersistentSubscription"
	op := &operation.DeletePersistentSubscription{Group: group}
	return c.runPersistent(ctx, name, time.Now(), opts.CallOptions, op.Execute)
}

type executeFunc func(context.Context, grpc.ClientConnInterface, ...grpc.CallOption) error

func (c *Client) runPersistent(ctx context.Context, name string, start time.Time, co CallOptions, execute executeFunc) error {
	cl, err := c.prepare(ctx, name, selector.Leader, co)
	if err != nil {
		return c.finish(nil, name, start, err)
	}

	ctx, cancel := context.WithTimeout(ctx, cl.deadline)
	defer cancel()

	return c.finish(cl, name, start, execute(ctx, cl.transport.Conn, cl.opts...))
}

// SubscribeToPersistentSubscription joins group on stream.
func (c *Client) SubscribeToPersistentSubscription(ctx context.Context, stream, group string, opts PersistentSubscribeOptions) (*PersistentSubscription, error) {
	const name = "SubscribeToPersistentSubscription"
	start := time.Now()

	id, err := streamID(name, stream)
	if err != nil {
		return nil, c.finish(nil, name, start, err)
	}
	return c.joinGroup(ctx, name, start, &operation.PersistentSubscribe{Stream: &id, Group: group, BufferSize: opts.BufferSize}, opts.CallOptions)
}

// SubscribeToPersistentSubscriptionToAll joins group on $all.
func (c *Client) SubscribeToPersistentSubscriptionToAll(ctx context.Context, group string, opts PersistentSubscribeOptions) (*PersistentSubscription, error) {
	const name = "SubscribeToPersistentSubscription"
	return c.joinGroup(ctx, name, time.Now(), &operation.PersistentSubscribe{Group: group, BufferSize: opts.BufferSize}, opts.CallOptions)
}

func (c *Client) joinGroup(ctx context.Context, name string, start time.Time, op *operation.PersistentSubscribe, co CallOptions) (*PersistentSubscription, error) {
	cl, err := c.prepare(ctx, name, selector.Leader, co)
	if err != nil {
		return nil, c.finish(nil, name, start, err)
	}

	rpc, err := op.Open(ctx, cl.transport.Conn, cl.opts...)
	if err != nil {
		return nil, c.finish(cl, name, start, err)
	}

	s, err := subscription.OpenPersistent(ctx, rpc, op, c.sessionOptions(cl))
	if err != nil {
		return nil, c.finish(cl, name, start, err)
	}
	c.opened(cl, name, start, s.OnFinish)
	return s, nil
}
