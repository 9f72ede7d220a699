package memserver

import (
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rmacdonaldsmith/eventstore-go/internal/wire"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultMessageTimeout = 30 * time.Second
	defaultMaxRetryCount  = 10
	defaultBufferSize     = 10
)

var errMemberStopped = errors.New("member stopped")

var persistentDesc = grpc.ServiceDesc{
	ServiceName: wire.PersistentSubscriptionsService,
	HandlerType: (*service)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Create",
			Handler: unary(wire.MethodPersistentCreate, func() *wire.CreatePersistentReq { return &wire.CreatePersistentReq{} },
				func(s *Server, ctx context.Context, req *wire.CreatePersistentReq) (wire.Message, error) {
					return &wire.Empty{}, s.createGroup(req)
				}),
		},
		{
			MethodName: "Delete",
			Handler: unary(wire.MethodPersistentDelete, func() *wire.DeletePersistentReq { return &wire.DeletePersistentReq{} },
				func(s *Server, ctx context.Context, req *wire.DeletePersistentReq) (wire.Message, error) {
					return &wire.Empty{}, s.deleteGroup(req)
				}),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Read",
			Handler:       func(srv any, stream grpc.ServerStream) error { return srv.(*Server).persistentRead(stream) },
			ServerStreams: true,
			ClientStreams: true,
		},
	},
}

func groupKey(stream []byte, group string) string {
	if stream == nil {
		return "$all::" + group
	}
	return string(stream) + "::" + group
}

func streamLabel(stream []byte) string {
	if stream == nil {
		return "$all"
	}
	return string(stream)
}

// pending is an event handed to a member and not yet acknowledged.
type pending struct {
	ev      *wire.RecordedEvent
	retries int32
	sentAt  time.Time
	member  int64
}

// group is a persistent subscription group. Members share its cursor;
// each event is in flight at one member at a time.
type group struct {
	key      string
	stream   []byte
	settings wire.PersistentSettings
	filter   *filter

	mu        sync.Mutex
	lastRev   uint64
	hasLast   bool
	lastPos   *wire.Position
	retry     []*pending
	inflight  map[uuid.UUID]*pending
	parked    []*pending
	members   int
	changed   chan struct{}
	deleted   chan struct{}
	nextID    atomic.Int64
	closeOnce sync.Once
}

func (g *group) notifyLocked() {
	close(g.changed)
	g.changed = make(chan struct{})
}

func (g *group) changedChan() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.changed
}

func (g *group) messageTimeout() time.Duration {
	if g.settings.MessageTimeoutMs <= 0 {
		return defaultMessageTimeout
	}
	return time.Duration(g.settings.MessageTimeoutMs) * time.Millisecond
}

func (g *group) maxRetries() int32 {
	if g.settings.MaxRetryCount <= 0 {
		return defaultMaxRetryCount
	}
	return g.settings.MaxRetryCount
}

// delivery is a snapshot of a pending event taken under the group lock.
type delivery struct {
	ev      *wire.RecordedEvent
	retries int32
}

// take hands up to limit events to member: redeliveries first, then events
// past the group cursor.
func (g *group) take(l *Log, member int64, limit int) []delivery {
	g.mu.Lock()
	defer g.mu.Unlock()

	free := limit
	for _, p := range g.inflight {
		if p.member == member {
			free--
		}
	}

	now := time.Now()
	var out []delivery
	hand := func(p *pending) {
		p.member, p.sentAt = member, now
		g.inflight[p.ev.ID.Value] = p
		out = append(out, delivery{ev: p.ev, retries: p.retries})
		free--
	}

	for free > 0 && len(g.retry) > 0 {
		p := g.retry[0]
		g.retry = g.retry[1:]
		hand(p)
	}
	if free <= 0 {
		return out
	}

	var events []*wire.RecordedEvent
	if g.stream != nil {
		events, _ = l.StreamAfter(string(g.stream), g.lastRev, g.hasLast)
	} else {
		events = l.AllAfter(g.lastPos)
	}

	for _, ev := range events {
		if free <= 0 {
			break
		}
		if g.stream != nil {
			g.lastRev, g.hasLast = ev.Revision, true
		} else {
			g.lastPos = &wire.Position{Commit: ev.Commit, Prepare: ev.Prepare}
		}
		if !g.filter.match(ev) {
			continue
		}
		hand(&pending{ev: ev})
	}
	return out
}

func (g *group) ack(ids []wire.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, id := range ids {
		delete(g.inflight, id.Value)
	}
	g.notifyLocked()
}

// nack applies action to the in-flight events ids. It reports whether the
// member asked to stop.
func (g *group) nack(ids []wire.UUID, action wire.NackAction) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, id := range ids {
		p, ok := g.inflight[id.Value]
		if !ok {
			continue
		}
		delete(g.inflight, id.Value)

		switch action {
		case wire.NackPark:
			g.parked = append(g.parked, p)
		case wire.NackSkip:
		case wire.NackStop:
			g.retry = append(g.retry, p)
		default:
			g.retryLocked(p)
		}
	}
	g.notifyLocked()
	return action == wire.NackStop
}

func (g *group) retryLocked(p *pending) {
	p.retries++
	if p.retries > g.maxRetries() {
		g.parked = append(g.parked, p)
		return
	}
	g.retry = append(g.retry, p)
}

// expire retries events whose member did not answer within the message
// timeout.
func (g *group) expire(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	timeout := g.messageTimeout()
	expired := false
	for id, p := range g.inflight {
		if now.Sub(p.sentAt) < timeout {
			continue
		}
		delete(g.inflight, id)
		g.retryLocked(p)
		expired = true
	}
	if expired {
		g.notifyLocked()
	}
}

func (g *group) join() (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if limit := g.settings.MaxSubscriberCount; limit > 0 && g.members >= int(limit) {
		return 0, errTooManySubscribers
	}
	g.members++
	return g.nextID.Add(1), nil
}

// leave returns the member's in-flight events to the retry queue.
func (g *group) leave(member int64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.members--
	for id, p := range g.inflight {
		if p.member == member {
			delete(g.inflight, id)
			g.retry = append(g.retry, p)
		}
	}
	g.notifyLocked()
}

func (g *group) close() {
	g.closeOnce.Do(func() { close(g.deleted) })
}

// GroupStats describes a persistent subscription group.
type GroupStats struct {
	Members  int
	InFlight int
	Retry    int
	Parked   int
}

func (g *group) stats() GroupStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return GroupStats{Members: g.members, InFlight: len(g.inflight), Retry: len(g.retry), Parked: len(g.parked)}
}

type groups struct {
	mu    sync.Mutex
	byKey map[string]*group
}

func newGroups() *groups {
	return &groups{byKey: make(map[string]*group)}
}

func (gs *groups) get(key string) (*group, bool) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	g, ok := gs.byKey[key]
	return g, ok
}

func (gs *groups) closeAll() {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	for _, g := range gs.byKey {
		g.close()
	}
}

func (s *Server) createGroup(req *wire.CreatePersistentReq) error {
	label := streamLabel(req.StreamName)
	f, err := compileFilter(req.Filter)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	g := &group{
		key:      groupKey(req.StreamName, req.GroupName),
		stream:   req.StreamName,
		settings: req.Settings,
		filter:   f,
		inflight: make(map[uuid.UUID]*pending),
		changed:  make(chan struct{}),
		deleted:  make(chan struct{}),
	}

	if g.stream != nil {
		switch req.Settings.Start.Kind {
		case wire.FromRevision:
			if rev := req.Settings.Start.Revision; rev > 0 {
				g.lastRev, g.hasLast = rev-1, true
			}
		case wire.FromEnd:
			g.lastRev, g.hasLast = s.log.StreamHead(label)
		}
	} else {
		switch req.Settings.AllStart.Kind {
		case wire.FromPosition:
			g.lastPos = justBefore(req.Settings.AllStart.Position)
		case wire.FromEnd:
			head := s.log.Head()
			g.lastPos = &head
		}
	}

	s.groups.mu.Lock()
	defer s.groups.mu.Unlock()

	if _, exists := s.groups.byKey[g.key]; exists {
		return about(label, req.GroupName, errGroupExists)
	}
	s.groups.byKey[g.key] = g
	s.logger.Info("persistent subscription created", zap.String("stream", label), zap.String("group", req.GroupName))
	return nil
}

// justBefore returns the greatest position ordered before p, or nil when p
// is the origin.
func justBefore(p wire.Position) *wire.Position {
	switch {
	case p.Prepare > 0:
		return &wire.Position{Commit: p.Commit, Prepare: p.Prepare - 1}
	case p.Commit > 0:
		return &wire.Position{Commit: p.Commit - 1, Prepare: math.MaxUint64}
	default:
		return nil
	}
}

func (s *Server) deleteGroup(req *wire.DeletePersistentReq) error {
	label := streamLabel(req.StreamName)
	key := groupKey(req.StreamName, req.GroupName)

	s.groups.mu.Lock()
	g, ok := s.groups.byKey[key]
	delete(s.groups.byKey, key)
	s.groups.mu.Unlock()

	if !ok {
		return about(label, req.GroupName, errGroupNotFound)
	}
	g.close()
	s.logger.Info("persistent subscription deleted", zap.String("stream", label), zap.String("group", req.GroupName))
	return nil
}

// GroupStats returns the state of a persistent subscription group. A nil
// stream names a group on $all.
func (s *Server) GroupStats(stream []byte, groupName string) (GroupStats, bool) {
	g, ok := s.groups.get(groupKey(stream, groupName))
	if !ok {
		return GroupStats{}, false
	}
	return g.stats(), true
}

func (s *Server) persistentRead(stream grpc.ServerStream) error {
	ctx := stream.Context()

	first := &wire.PersistentReadReq{}
	if err := stream.RecvMsg(first); err != nil {
		return err
	}
	if first.Options == nil {
		return status.Error(codes.InvalidArgument, "persistent read must start with options")
	}
	opts := first.Options
	label := streamLabel(opts.StreamName)
	key := groupKey(opts.StreamName, opts.GroupName)

	g, ok := s.groups.get(key)
	if !ok {
		return s.streamError(stream, about(label, opts.GroupName, errGroupNotFound))
	}
	member, err := g.join()
	if err != nil {
		return s.streamError(stream, about(label, opts.GroupName, err))
	}
	defer g.leave(member)

	if err := stream.SendMsg(&wire.PersistentReadResp{Confirmed: true, SubscriptionID: key}); err != nil {
		return err
	}
	logger := s.logger.With(zap.String("group", key), zap.Int64("member", member))
	logger.Debug("member joined")

	recvErr := make(chan error, 1)
	go func() {
		for {
			req := &wire.PersistentReadReq{}
			if err := stream.RecvMsg(req); err != nil {
				recvErr <- err
				return
			}
			switch {
			case req.Ack != nil:
				g.ack(req.Ack.IDs)
			case req.Nack != nil:
				logger.Debug("nack", zap.Int("events", len(req.Nack.IDs)), zap.String("reason", req.Nack.Reason))
				if g.nack(req.Nack.IDs, req.Nack.Action) {
					recvErr <- errMemberStopped
					return
				}
			}
		}
	}()

	buffer := int(opts.BufferSize)
	if buffer <= 0 {
		buffer = defaultBufferSize
	}
	ticker := time.NewTicker(max(g.messageTimeout()/4, 10*time.Millisecond))
	defer ticker.Stop()

	for {
		logChanged := s.log.Changed()
		groupChanged := g.changedChan()

		for _, p := range g.take(s.log, member, buffer) {
			err := stream.SendMsg(&wire.PersistentReadResp{Event: &wire.ReadEvent{
				Event:             p.ev,
				CommitPosition:    p.ev.Commit,
				HasCommitPosition: true,
				RetryCount:        p.retries,
				HasRetryCount:     true,
			}})
			if err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case err := <-recvErr:
			if errors.Is(err, io.EOF) || errors.Is(err, errMemberStopped) {
				logger.Debug("member left")
				return nil
			}
			return err
		case <-g.deleted:
			return s.streamError(stream, about(label, opts.GroupName, errGroupNotFound))
		case now := <-ticker.C:
			g.expire(now)
		case <-logChanged:
		case <-groupChanged:
		}
	}
}
