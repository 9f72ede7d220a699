package memserver

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rmacdonaldsmith/eventstore-go/internal/translate"
	"github.com/rmacdonaldsmith/eventstore-go/internal/wire"
)

var (
	// ErrStreamNotFound is returned when reading a stream with no visible events
	ErrStreamNotFound = errors.New("stream not found")
	// ErrStreamDeleted is returned for any access to a tombstoned stream
	ErrStreamDeleted = errors.New("stream is deleted")
	// ErrEmptyStreamName is returned when a stream name is empty
	ErrEmptyStreamName = errors.New("stream name cannot be empty")
	// ErrLogClosed is returned after Close
	ErrLogClosed = errors.New("log is closed")
)

// WrongExpectedVersionError reports a failed concurrency check.
type WrongExpectedVersionError struct {
	Stream     string
	Expected   wire.Expected
	Current    uint64
	HasCurrent bool
}

func (e *WrongExpectedVersionError) Error() string {
	actual := "no-stream"
	if e.HasCurrent {
		actual = fmt.Sprintf("%d", e.Current)
	}
	return fmt.Sprintf("stream %q: expected %s, actual %s", e.Stream, translate.ExpectedString(e.Expected), actual)
}

// AppendResult describes a stream after a successful append.
type AppendResult struct {
	Current    uint64
	HasCurrent bool
	Position   wire.Position
}

type stream struct {
	events []*wire.RecordedEvent

	// events below truncateBefore were soft-deleted
	truncateBefore uint64
	tombstoned     bool
}

func (s *stream) visible() []*wire.RecordedEvent {
	if s.truncateBefore >= uint64(len(s.events)) {
		return nil
	}
	return s.events[s.truncateBefore:]
}

func (s *stream) current() (uint64, bool) {
	if len(s.visible()) == 0 {
		return 0, false
	}
	return uint64(len(s.events) - 1), true
}

// Log is an in-memory event store: per-stream event sequences plus the
// global $all log. Events are never copied after being appended, so readers
// must treat returned events as read-only. It is safe for concurrent use.
type Log struct {
	mu      sync.RWMutex
	all     []*wire.RecordedEvent
	streams map[string]*stream
	lastPos uint64
	changed chan struct{}
	closed  bool

	now func() time.Time
}

// NewLog creates an empty Log.
func NewLog() *Log {
	return &Log{
		streams: make(map[string]*stream),
		changed: make(chan struct{}),
		now:     time.Now,
	}
}

// Changed returns a channel that is closed at the next write. Take it
// before reading to avoid missing a write that races with the read.
func (l *Log) Changed() <-chan struct{} {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.changed
}

// notify wakes every waiter. Callers hold the write lock.
func (l *Log) notify() {
	close(l.changed)
	l.changed = make(chan struct{})
}

// Append writes msgs to the named stream after checking expected. An
// empty append only performs the check.
func (l *Log) Append(ctx context.Context, name string, expected wire.Expected, msgs []*wire.ProposedMessage) (AppendResult, error) {
	if name == "" {
		return AppendResult{}, ErrEmptyStreamName
	}
	if err := ctx.Err(); err != nil {
		return AppendResult{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return AppendResult{}, ErrLogClosed
	}

	s := l.streams[name]
	if s == nil {
		s = &stream{}
	}
	if s.tombstoned {
		return AppendResult{}, ErrStreamDeleted
	}
	if err := check(name, s, expected); err != nil {
		return AppendResult{}, err
	}

	created := translate.CreatedTicks(l.now())
	for _, m := range msgs {
		l.lastPos++
		metadata := make(map[string]string, len(m.Metadata)+1)
		for k, v := range m.Metadata {
			metadata[k] = v
		}
		metadata[wire.MetadataCreated] = created

		ev := &wire.RecordedEvent{
			ID:             m.ID,
			StreamName:     []byte(name),
			Revision:       uint64(len(s.events)),
			Prepare:        l.lastPos,
			Commit:         l.lastPos,
			Metadata:       metadata,
			CustomMetadata: m.CustomMetadata,
			Data:           m.Data,
		}
		s.events = append(s.events, ev)
		l.all = append(l.all, ev)
	}

	if len(msgs) > 0 {
		l.streams[name] = s
		l.notify()
	}

	cur, ok := s.current()
	return AppendResult{
		Current:    cur,
		HasCurrent: ok,
		Position:   wire.Position{Commit: l.lastPos, Prepare: l.lastPos},
	}, nil
}

// Delete soft-deletes the named stream. Its revisions continue if it is
// written to again.
func (l *Log) Delete(ctx context.Context, name string, expected wire.Expected) (wire.Position, error) {
	return l.remove(ctx, name, expected, false)
}

// Tombstone deletes the named stream permanently.
func (l *Log) Tombstone(ctx context.Context, name string, expected wire.Expected) (wire.Position, error) {
	return l.remove(ctx, name, expected, true)
}

func (l *Log) remove(ctx context.Context, name string, expected wire.Expected, tombstone bool) (wire.Position, error) {
	if name == "" {
		return wire.Position{}, ErrEmptyStreamName
	}
	if err := ctx.Err(); err != nil {
		return wire.Position{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return wire.Position{}, ErrLogClosed
	}

	s := l.streams[name]
	if s == nil {
		s = &stream{}
	}
	if s.tombstoned {
		return wire.Position{}, ErrStreamDeleted
	}
	if err := check(name, s, expected); err != nil {
		return wire.Position{}, err
	}

	s.truncateBefore = uint64(len(s.events))
	s.tombstoned = tombstone
	l.streams[name] = s
	l.lastPos++
	l.notify()

	return wire.Position{Commit: l.lastPos, Prepare: l.lastPos}, nil
}

func check(name string, s *stream, expected wire.Expected) error {
	cur, exists := s.current()
	ok := true
	switch expected.Kind {
	case wire.ExpectNoStream:
		ok = !exists
	case wire.ExpectStreamExists:
		ok = exists
	case wire.ExpectRevision:
		ok = exists && cur == expected.Revision
	}
	if !ok {
		return &WrongExpectedVersionError{Stream: name, Expected: expected, Current: cur, HasCurrent: exists}
	}
	return nil
}

// ReadStream reads up to limit events of the named stream from start
// (inclusive) in dir.
func (l *Log) ReadStream(ctx context.Context, name string, start wire.StreamStart, dir wire.ReadDirection, limit uint64) ([]*wire.RecordedEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	events, err := l.visibleLocked(name)
	if err != nil {
		return nil, err
	}

	var out []*wire.RecordedEvent
	if dir == wire.Backwards {
		for i := len(events) - 1; i >= 0 && uint64(len(out)) < limit; i-- {
			ev := events[i]
			switch start.Kind {
			case wire.FromRevision:
				if ev.Revision > start.Revision {
					continue
				}
			case wire.FromStart:
				if ev.Revision > events[0].Revision {
					continue
				}
			}
			out = append(out, ev)
		}
		return out, nil
	}

	if start.Kind == wire.FromEnd {
		return nil, nil
	}
	for _, ev := range events {
		if uint64(len(out)) >= limit {
			break
		}
		if start.Kind == wire.FromRevision && ev.Revision < start.Revision {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// StreamAfter returns the visible events of the named stream with a
// revision greater than after, or all of them when hasAfter is false. A
// missing stream yields no events.
func (l *Log) StreamAfter(name string, after uint64, hasAfter bool) ([]*wire.RecordedEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	events, err := l.visibleLocked(name)
	if errors.Is(err, ErrStreamNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if !hasAfter {
		return slices.Clone(events), nil
	}
	i, _ := slices.BinarySearchFunc(events, after+1, func(ev *wire.RecordedEvent, rev uint64) int {
		return cmp.Compare(ev.Revision, rev)
	})
	return slices.Clone(events[i:]), nil
}

// StreamHead returns the last revision of the named stream.
func (l *Log) StreamHead(name string) (uint64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s := l.streams[name]
	if s == nil {
		return 0, false
	}
	return s.current()
}

func (l *Log) visibleLocked(name string) ([]*wire.RecordedEvent, error) {
	if l.closed {
		return nil, ErrLogClosed
	}
	s := l.streams[name]
	if s == nil {
		return nil, ErrStreamNotFound
	}
	if s.tombstoned {
		return nil, ErrStreamDeleted
	}
	events := s.visible()
	if len(events) == 0 {
		return nil, ErrStreamNotFound
	}
	return events, nil
}

// ReadAll reads up to limit events of $all matching f from start in dir.
// Forward reads include start; backward reads return events before it.
func (l *Log) ReadAll(ctx context.Context, start wire.AllStart, dir wire.ReadDirection, limit uint64, f *filter) ([]*wire.RecordedEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return nil, ErrLogClosed
	}

	var out []*wire.RecordedEvent
	if dir == wire.Backwards {
		for i := len(l.all) - 1; i >= 0 && uint64(len(out)) < limit; i-- {
			ev := l.all[i]
			switch start.Kind {
			case wire.FromPosition:
				if !before(ev, start.Position) {
					continue
				}
			case wire.FromStart:
				continue
			}
			if f.match(ev) {
				out = append(out, ev)
			}
		}
		return out, nil
	}

	if start.Kind == wire.FromEnd {
		return nil, nil
	}
	for _, ev := range l.all {
		if uint64(len(out)) >= limit {
			break
		}
		if start.Kind == wire.FromPosition && before(ev, start.Position) {
			continue
		}
		if f.match(ev) {
			out = append(out, ev)
		}
	}
	return out, nil
}

// AllAfter returns the $all events after p, or all of them when p is nil.
func (l *Log) AllAfter(p *wire.Position) []*wire.RecordedEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if p == nil {
		return slices.Clone(l.all)
	}
	i, _ := slices.BinarySearchFunc(l.all, *p, func(ev *wire.RecordedEvent, p wire.Position) int {
		if before(ev, p) || (ev.Commit == p.Commit && ev.Prepare == p.Prepare) {
			return -1
		}
		return 1
	})
	return slices.Clone(l.all[i:])
}

// Head returns the position of the last write.
func (l *Log) Head() wire.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return wire.Position{Commit: l.lastPos, Prepare: l.lastPos}
}

// Close drops all data and wakes every waiter. It is idempotent.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.all = nil
	l.streams = make(map[string]*stream)
	l.closed = true
	l.notify()
	return nil
}

func before(ev *wire.RecordedEvent, p wire.Position) bool {
	if ev.Commit != p.Commit {
		return ev.Commit < p.Commit
	}
	return ev.Prepare < p.Prepare
}
