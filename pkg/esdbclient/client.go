package esdbclient

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rmacdonaldsmith/eventstore-go/internal/bridge"
	"github.com/rmacdonaldsmith/eventstore-go/internal/metrics"
	"github.com/rmacdonaldsmith/eventstore-go/internal/operation"
	"github.com/rmacdonaldsmith/eventstore-go/internal/selector"
	"github.com/rmacdonaldsmith/eventstore-go/internal/subscription"
	"github.com/rmacdonaldsmith/eventstore-go/internal/wire"
	"github.com/rmacdonaldsmith/eventstore-go/pkg/esdberr"
	"github.com/rmacdonaldsmith/eventstore-go/pkg/event"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// ErrClientClosed is returned by every operation after Close.
var ErrClientClosed = errors.New("esdb: client closed")

// EventStream is the result of a read: events in order, then a terminal
// error that is nil when the read completed.
type EventStream = bridge.Stream[event.Envelope]

// Subscription is a live volatile subscription.
type Subscription = subscription.Session[event.SubscriptionItem]

// Member is one cluster node as reported by gossip.
type Member = operation.Member

// Client provides access to an event store cluster
type Client struct {
	config   Config
	selector *selector.Selector
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
	closed   atomic.Bool
}

// NewClient creates a new client. No connection is made until the first
// operation.
func NewClient(config Config) (*Client, error) {
	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client config: %w", err)
	}

	sel, err := selector.New(config.selectorConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create node selector: %w", err)
	}

	var m *metrics.Metrics
	if config.Registerer != nil {
		m = metrics.New(config.Registerer)
	}

	return &Client{
		config:   config,
		selector: sel,
		metrics:  m,
		logger:   config.Logger.Named("esdb"),
		now:      time.Now,
	}, nil
}

// Close releases every connection. Open streams and subscriptions end with
// a connection error.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.selector.Close()
}

// call is one operation bound to a node.
type call struct {
	op        string
	transport *selector.Transport
	opts      []grpc.CallOption
	deadline  time.Duration
}

// prepare checks credentials, picks a node for role and resolves the
// deadline. It fails before anything is sent.
func (c *Client) prepare(ctx context.Context, op string, role selector.Role, co CallOptions) (*call, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	var opts []grpc.CallOption
	creds := co.Credentials
	if creds == nil {
		creds = c.config.Credentials
	}
	if creds != nil {
		if err := creds.check(op, c.now()); err != nil {
			return nil, err
		}
		opts = append(opts, creds.callOption(!c.config.Insecure))
	}

	t, err := c.selector.AcquireTransport(ctx, role)
	if err != nil {
		return nil, err
	}

	deadline := co.Deadline
	if deadline <= 0 {
		deadline = c.config.DefaultDeadline
	}
	return &call{op: op, transport: t, opts: opts, deadline: deadline}, nil
}

// finish records a completed operation and releases its transport.
func (c *Client) finish(cl *call, op string, start time.Time, err error) error {
	c.metrics.Observe(op, start, err)
	if cl != nil {
		c.hint(cl, op, err)
		cl.transport.Release()
	}
	return err
}

// opened records a stream that started. It counts as live, and keeps its
// transport, until it ends.
func (c *Client) opened(cl *call, op string, start time.Time, onFinish func(func(error))) {
	c.metrics.Observe(op, start, nil)
	closed := c.metrics.StreamOpened(op)
	onFinish(func(err error) {
		closed(err)
		c.hint(cl, op, err)
		cl.transport.Release()
	})
}

// hint feeds routing information from a failed call back to the selector.
func (c *Client) hint(cl *call, op string, err error) {
	if err == nil {
		return
	}

	var domainErr *esdberr.DomainError
	if errors.As(err, &domainErr) && domainErr.Kind == esdberr.KindNotLeader {
		c.selector.ReportNotLeader(domainErr.LeaderEndpoint)
		return
	}

	var connErr *esdberr.ConnectionError
	if errors.As(err, &connErr) {
		if connErr.Endpoint == "" {
			connErr.Endpoint = cl.transport.Endpoint
		}
		c.selector.Forget(cl.transport.Endpoint)
		c.logger.Warn("connection failed",
			zap.String("operation", op),
			zap.String("endpoint", cl.transport.Endpoint),
			zap.Error(err))
	}
}

func streamID(op, name string) (event.StreamIdentifier, error) {
	id, err := event.NewStreamIdentifier(name)
	var buildErr *esdberr.RequestBuildError
	if errors.As(err, &buildErr) && buildErr.Op == "" {
		buildErr.Op = op
	}
	return id, err
}

// AppendToStream writes events to stream atomically.
func (c *Client) AppendToStream(ctx context.Context, stream string, opts AppendOptions, events ...event.EventData) (event.WriteResult, error) {
	const name = "AppendToStream"
	start := time.Now()

	id, err := streamID(name, stream)
	if err != nil {
		return event.WriteResult{}, c.finish(nil, name, start, err)
	}
	cl, err := c.prepare(ctx, name, selector.Leader, opts.CallOptions)
	if err != nil {
		return event.WriteResult{}, c.finish(nil, name, start, err)
	}

	ctx, cancel := context.WithTimeout(ctx, cl.deadline)
	defer cancel()

	op := &operation.Append{Stream: id, Expected: opts.Expected, Events: events}
	res, err := op.Execute(ctx, cl.transport.Conn, cl.opts...)
	return res, c.finish(cl, name, start, err)
}

// ReadStream reads events of one stream. The deadline covers the whole
// read; closing the returned stream early cancels it.
func (c *Client) ReadStream(ctx context.Context, stream string, opts ReadStreamOptions) (*EventStream, error) {
	const name = "ReadStream"
	start := time.Now()

	id, err := streamID(name, stream)
	if err != nil {
		return nil, c.finish(nil, name, start, err)
	}
	cl, err := c.prepare(ctx, name, c.config.NodePreference, opts.CallOptions)
	if err != nil {
		return nil, c.finish(nil, name, start, err)
	}

	op := &operation.ReadStream{Stream: id, From: opts.From, MaxCount: opts.MaxCount, ResolveLinks: opts.ResolveLinks}
	return c.read(ctx, cl, name, start, op.Run)
}

// ReadAll reads events of $all.
func (c *Client) ReadAll(ctx context.Context, opts ReadAllOptions) (*EventStream, error) {
	const name = "ReadAll"
	start := time.Now()

	cl, err := c.prepare(ctx, name, c.config.NodePreference, opts.CallOptions)
	if err != nil {
		return nil, c.finish(nil, name, start, err)
	}

	op := &operation.ReadAll{From: opts.From, MaxCount: opts.MaxCount, ResolveLinks: opts.ResolveLinks, Filter: opts.Filter.wire()}
	return c.read(ctx, cl, name, start, op.Run)
}

type runFunc func(context.Context, grpc.ClientConnInterface, []bridge.Option, ...grpc.CallOption) (*EventStream, error)

func (c *Client) read(ctx context.Context, cl *call, name string, start time.Time, run runFunc) (*EventStream, error) {
	ctx, cancel := context.WithTimeout(ctx, cl.deadline)

	bopts := []bridge.Option{bridge.WithLogger(c.logger)}
	s, err := run(ctx, cl.transport.Conn, bopts, cl.opts...)
	if err != nil {
		cancel()
		return nil, c.finish(cl, name, start, err)
	}

	s.OnFinish(func(error) { cancel() })
	c.opened(cl, name, start, s.OnFinish)
	return s, nil
}

// SubscribeToStream opens a live subscription on stream. The deadline
// bounds the wait for the server's confirmation only.
func (c *Client) SubscribeToStream(ctx context.Context, stream string, opts SubscribeToStreamOptions) (*Subscription, error) {
	const name = "SubscribeToStream"
	start := time.Now()

	id, err := streamID(name, stream)
	if err != nil {
		return nil, c.finish(nil, name, start, err)
	}
	cl, err := c.prepare(ctx, name, c.config.NodePreference, opts.CallOptions)
	if err != nil {
		return nil, c.finish(nil, name, start, err)
	}

	op := &operation.SubscribeToStream{Stream: id, From: opts.From, ResolveLinks: opts.ResolveLinks}
	rpc, err := op.Open(ctx, cl.transport.Conn, cl.opts...)
	if err != nil {
		return nil, c.finish(cl, name, start, err)
	}
	return c.subscribe(ctx, cl, name, start, rpc, op)
}

// SubscribeToAll opens a live subscription on $all. With a filter, the
// subscription also yields checkpoints.
func (c *Client) SubscribeToAll(ctx context.Context, opts SubscribeToAllOptions) (*Subscription, error) {
	const name = "SubscribeToAll"
	start := time.Now()

	cl, err := c.prepare(ctx, name, c.config.NodePreference, opts.CallOptions)
	if err != nil {
		return nil, c.finish(nil, name, start, err)
	}

	op := &operation.SubscribeToAll{From: opts.From, ResolveLinks: opts.ResolveLinks, Filter: opts.Filter.wire()}
	rpc, err := op.Open(ctx, cl.transport.Conn, cl.opts...)
	if err != nil {
		return nil, c.finish(cl, name, start, err)
	}
	return c.subscribe(ctx, cl, name, start, rpc, op)
}

func (c *Client) subscribe(ctx context.Context, cl *call, name string, start time.Time, rpc *operation.Call, dec subscription.Decoder[*wire.ReadResp, event.SubscriptionItem]) (*Subscription, error) {
	s, err := subscription.Open[*wire.ReadResp, event.SubscriptionItem](ctx, rpc, dec, c.sessionOptions(cl))
	if err != nil {
		return nil, c.finish(cl, name, start, err)
	}
	c.opened(cl, name, start, s.OnFinish)
	return s, nil
}

func (c *Client) sessionOptions(cl *call) subscription.Options {
	return subscription.Options{
		ConfirmationTimeout: cl.deadline,
		Logger:              c.logger,
	}
}

// DeleteStream soft-deletes stream. Appending to it again recreates it with
// revisions continuing where they stopped.
func (c *Client) DeleteStream(ctx context.Context, stream string, opts DeleteStreamOptions) (event.DeleteResult, error) {
	const name = "DeleteStream"
	return c.remove(ctx, name, stream, opts, func(id event.StreamIdentifier) deleteOp {
		return &operation.DeleteStream{Stream: id, Expected: opts.Expected}
	})
}

// TombstoneStream deletes stream permanently. The name can never be used
// again.
func (c *Client) TombstoneStream(ctx context.Context, stream string, opts DeleteStreamOptions) (event.DeleteResult, error) {
	const name = "TombstoneStream"
	return c.remove(ctx, name, stream, opts, func(id event.StreamIdentifier) deleteOp {
		return &operation.TombstoneStream{Stream: id, Expected: opts.Expected}
	})
}

type deleteOp interface {
	Execute(context.Context, grpc.ClientConnInterface, ...grpc.CallOption) (event.DeleteResult, error)
}

func (c *Client) remove(ctx context.Context, name, stream string, opts DeleteStreamOptions, build func(event.StreamIdentifier) deleteOp) (event.DeleteResult, error) {
	start := time.Now()

	id, err := streamID(name, stream)
	if err != nil {
		return event.DeleteResult{}, c.finish(nil, name, start, err)
	}
	cl, err := c.prepare(ctx, name, selector.Leader, opts.CallOptions)
	if err != nil {
		return event.DeleteResult{}, c.finish(nil, name, start, err)
	}

	ctx, cancel := context.WithTimeout(ctx, cl.deadline)
	defer cancel()

	res, err := build(id).Execute(ctx, cl.transport.Conn, cl.opts...)
	return res, c.finish(cl, name, start, err)
}

// ReadGossip returns the cluster members as seen by the node serving the
// preferred role.
func (c *Client) ReadGossip(ctx context.Context, opts CallOptions) ([]Member, error) {
	const name = "ReadGossip"
	start := time.Now()

	cl, err := c.prepare(ctx, name, c.config.NodePreference, opts)
	if err != nil {
		return nil, c.finish(nil, name, start, err)
	}

	ctx, cancel := context.WithTimeout(ctx, cl.deadline)
	defer cancel()

	members, err := (&operation.ReadGossip{}).Execute(ctx, cl.transport.Conn, cl.opts...)
	return members, c.finish(cl, name, start, err)
}
