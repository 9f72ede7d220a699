package memserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rmacdonaldsmith/eventstore-go/internal/wire"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
)

// Server serves the streams, persistent subscriptions and gossip services
// from an in-memory Log.
type Server struct {
	cfg        Config
	log        *Log
	groups     *groups
	instanceID uuid.UUID
	logger     *zap.Logger
}

// New creates a Server.
func New(cfg Config) (*Server, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}

	return &Server{
		cfg:        cfg,
		log:        NewLog(),
		groups:     newGroups(),
		instanceID: uuid.New(),
		logger:     cfg.Logger.Named("memserver"),
	}, nil
}

// Log returns the server's event log.
func (s *Server) Log() *Log {
	return s.log
}

// ServerOptions returns the options a grpc.Server needs to serve s.
func (s *Server) ServerOptions() []grpc.ServerOption {
	opts := []grpc.ServerOption{
		grpc.ForceServerCodec(wire.Codec{}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	}
	if s.cfg.Auth != nil {
		opts = append(opts,
			grpc.ChainUnaryInterceptor(s.cfg.Auth.UnaryInterceptor()),
			grpc.ChainStreamInterceptor(s.cfg.Auth.StreamInterceptor()),
		)
	}
	return opts
}

// Register registers the services of s on r.
func (s *Server) Register(r grpc.ServiceRegistrar) {
	r.RegisterService(&streamsDesc, s)
	r.RegisterService(&persistentDesc, s)
	r.RegisterService(&gossipDesc, s)
}

// NewGRPCServer creates a grpc.Server with s registered.
func (s *Server) NewGRPCServer(extra ...grpc.ServerOption) *grpc.Server {
	g := grpc.NewServer(append(s.ServerOptions(), extra...)...)
	s.Register(g)
	return g
}

// Close closes the log, which ends every live subscription.
func (s *Server) Close() error {
	s.groups.closeAll()
	return s.log.Close()
}

// service is the handler type of every service descriptor
type service interface {
	Log() *Log
}

func unary[Req wire.Message](method string, newReq func() Req, fn func(*Server, context.Context, Req) (wire.Message, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := newReq()
		if err := dec(in); err != nil {
			return nil, err
		}
		s := srv.(*Server)
		handler := func(ctx context.Context, req any) (any, error) {
			resp, err := fn(s, ctx, req.(Req))
			if err != nil {
				return nil, s.unaryError(ctx, err)
			}
			return resp, nil
		}
		if interceptor == nil {
			return handler(ctx, in)
		}
		return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: method}, handler)
	}
}

var streamsDesc = grpc.ServiceDesc{
	ServiceName: wire.StreamsService,
	HandlerType: (*service)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Delete",
			Handler: unary(wire.MethodDelete, func() *wire.DeleteReq { return &wire.DeleteReq{} },
				func(s *Server, ctx context.Context, req *wire.DeleteReq) (wire.Message, error) {
					return s.remove(ctx, req, false)
				}),
		},
		{
			MethodName: "Tombstone",
			Handler: unary(wire.MethodTombstone, func() *wire.DeleteReq { return &wire.DeleteReq{} },
				func(s *Server, ctx context.Context, req *wire.DeleteReq) (wire.Message, error) {
					return s.remove(ctx, req, true)
				}),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Read",
			Handler:       func(srv any, stream grpc.ServerStream) error { return srv.(*Server).read(stream) },
			ServerStreams: true,
		},
		{
			StreamName:    "Append",
			Handler:       func(srv any, stream grpc.ServerStream) error { return srv.(*Server).append(stream) },
			ClientStreams: true,
		},
	},
}

var gossipDesc = grpc.ServiceDesc{
	ServiceName: wire.GossipService,
	HandlerType: (*service)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Read",
			Handler: unary(wire.MethodGossipRead, func() *wire.Empty { return &wire.Empty{} },
				func(s *Server, ctx context.Context, _ *wire.Empty) (wire.Message, error) {
					return s.gossip(), nil
				}),
		},
	},
}

func (s *Server) gossip() *wire.ClusterInfo {
	if len(s.cfg.Cluster) > 0 {
		return &wire.ClusterInfo{Members: s.cfg.Cluster}
	}
	host, port, _ := splitEndpoint(s.cfg.Advertise)
	return &wire.ClusterInfo{Members: []wire.MemberInfo{{
		InstanceID: wire.UUID{Value: s.instanceID},
		State:      s.cfg.Role,
		IsAlive:    true,
		Address:    host,
		Port:       port,
	}}}
}

func (s *Server) requireLeader() error {
	if s.cfg.Role == wire.StateFollower {
		return errNotLeader
	}
	return nil
}

func (s *Server) remove(ctx context.Context, req *wire.DeleteReq, tombstone bool) (*wire.DeleteResp, error) {
	name := string(req.StreamName)
	if err := s.requireLeader(); err != nil {
		return nil, about(name, "", err)
	}

	remove := s.log.Delete
	if tombstone {
		remove = s.log.Tombstone
	}
	pos, err := remove(ctx, name, req.Expected)
	if err != nil {
		return nil, about(name, "", err)
	}

	s.logger.Debug("stream removed", zap.String("stream", name), zap.Bool("tombstone", tombstone))
	return &wire.DeleteResp{Position: &pos}, nil
}

func (s *Server) append(stream grpc.ServerStream) error {
	ctx := stream.Context()

	first := &wire.AppendReq{}
	if err := stream.RecvMsg(first); err != nil {
		return err
	}
	if first.Options == nil {
		return status.Error(codes.InvalidArgument, "append must start with options")
	}
	name := string(first.Options.StreamName)

	var (
		msgs []*wire.ProposedMessage
		size int
	)
	for {
		req := &wire.AppendReq{}
		err := stream.RecvMsg(req)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if req.Proposed == nil {
			return status.Error(codes.InvalidArgument, "expected a proposed message")
		}
		size += len(req.Proposed.Data) + len(req.Proposed.CustomMetadata)
		if size > s.cfg.MaxAppendSize {
			return s.streamError(stream, about(name, "", errAppendTooLarge))
		}
		msgs = append(msgs, req.Proposed)
	}

	if err := s.requireLeader(); err != nil {
		return s.streamError(stream, about(name, "", err))
	}

	res, err := s.log.Append(ctx, name, first.Options.Expected, msgs)
	var wev *WrongExpectedVersionError
	if errors.As(err, &wev) {
		return stream.SendMsg(&wire.AppendResp{WrongExpectedVersion: &wire.WrongExpectedVersion{
			CurrentRevision:    wev.Current,
			HasCurrentRevision: wev.HasCurrent,
			Expected:           wev.Expected,
		}})
	}
	if err != nil {
		return s.streamError(stream, about(name, "", err))
	}

	s.logger.Debug("appended", zap.String("stream", name), zap.Int("events", len(msgs)))
	return stream.SendMsg(&wire.AppendResp{Success: &wire.AppendSuccess{
		CurrentRevision:    res.Current,
		HasCurrentRevision: res.HasCurrent,
		Position:           &res.Position,
	}})
}

func (s *Server) read(stream grpc.ServerStream) error {
	req := &wire.ReadReq{}
	if err := stream.RecvMsg(req); err != nil {
		return err
	}

	var err error
	switch {
	case req.Stream != nil && req.Subscription:
		err = s.subscribeStream(stream, req)
	case req.Stream != nil:
		err = s.readStream(stream, req)
	case req.Subscription:
		err = s.subscribeAll(stream, req)
	default:
		err = s.readAll(stream, req)
	}
	if err != nil {
		return s.streamError(stream, err)
	}
	return nil
}

func eventResp(ev *wire.RecordedEvent) *wire.ReadResp {
	return &wire.ReadResp{Kind: wire.RespEvent, Event: &wire.ReadEvent{
		Event:             ev,
		CommitPosition:    ev.Commit,
		HasCommitPosition: true,
	}}
}

func readLimit(n uint64) uint64 {
	if n == 0 {
		return math.MaxUint64
	}
	return n
}

func (s *Server) readStream(stream grpc.ServerStream, req *wire.ReadReq) error {
	name := string(req.Stream.StreamName)

	events, err := s.log.ReadStream(stream.Context(), name, req.Stream.Start, req.Direction, readLimit(req.Count))
	if errors.Is(err, ErrStreamNotFound) {
		return stream.SendMsg(&wire.ReadResp{Kind: wire.RespStreamNotFound, NotFoundStream: req.Stream.StreamName})
	}
	if err != nil {
		return about(name, "", err)
	}

	for _, ev := range events {
		if err := stream.SendMsg(eventResp(ev)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) readAll(stream grpc.ServerStream, req *wire.ReadReq) error {
	f, err := compileFilter(req.Filter)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	events, err := s.log.ReadAll(stream.Context(), req.All.Start, req.Direction, readLimit(req.Count), f)
	if err != nil {
		return err
	}
	for _, ev := range events {
		if err := stream.SendMsg(eventResp(ev)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) confirm(stream grpc.ServerStream, op string) error {
	id := uuid.NewString()
	s.logger.Debug("subscription started", zap.String("operation", op), zap.String("subscription_id", id))
	return stream.SendMsg(&wire.ReadResp{Kind: wire.RespConfirmation, SubscriptionID: id})
}

// subscribeStream streams the events of one stream after the start
// revision, then live events until the client goes away.
func (s *Server) subscribeStream(stream grpc.ServerStream, req *wire.ReadReq) error {
	ctx := stream.Context()
	name := string(req.Stream.StreamName)

	var (
		after    uint64
		hasAfter bool
	)
	switch req.Stream.Start.Kind {
	case wire.FromRevision:
		after, hasAfter = req.Stream.Start.Revision, true
	case wire.FromEnd:
		after, hasAfter = s.log.StreamHead(name)
	}

	if err := s.confirm(stream, "SubscribeToStream"); err != nil {
		return err
	}

	caughtUp := false
	for {
		changed := s.log.Changed()

		events, err := s.log.StreamAfter(name, after, hasAfter)
		if err != nil {
			return about(name, "", err)
		}
		for _, ev := range events {
			if err := stream.SendMsg(eventResp(ev)); err != nil {
				return err
			}
			after, hasAfter = ev.Revision, true
		}

		if !caughtUp {
			caughtUp = true
			if err := stream.SendMsg(&wire.ReadResp{Kind: wire.RespCaughtUp}); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-changed:
		}
	}
}

// subscribeAll streams $all after the start position, then live events.
// With a filter, a checkpoint is sent after every window of scanned events.
func (s *Server) subscribeAll(stream grpc.ServerStream, req *wire.ReadReq) error {
	ctx := stream.Context()

	f, err := compileFilter(req.Filter)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	var after *wire.Position
	switch req.All.Start.Kind {
	case wire.FromPosition:
		p := req.All.Start.Position
		after = &p
	case wire.FromEnd:
		head := s.log.Head()
		after = &head
	}

	if err := s.confirm(stream, "SubscribeToAll"); err != nil {
		return err
	}

	var scanned uint32
	caughtUp := false
	for {
		changed := s.log.Changed()

		for _, ev := range s.log.AllAfter(after) {
			pos := wire.Position{Commit: ev.Commit, Prepare: ev.Prepare}
			after = &pos

			if f.match(ev) {
				if err := stream.SendMsg(eventResp(ev)); err != nil {
					return err
				}
			}
			if f == nil {
				continue
			}
			scanned++
			if scanned%f.window == 0 {
				if err := stream.SendMsg(&wire.ReadResp{Kind: wire.RespCheckpoint, Checkpoint: pos}); err != nil {
					return err
				}
			}
		}

		if !caughtUp {
			caughtUp = true
			if err := stream.SendMsg(&wire.ReadResp{Kind: wire.RespCaughtUp}); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-changed:
		}
	}
}
