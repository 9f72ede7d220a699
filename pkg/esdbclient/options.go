package esdbclient

import (
	"time"

	"github.com/rmacdonaldsmith/eventstore-go/internal/wire"
	"github.com/rmacdonaldsmith/eventstore-go/pkg/event"
	"github.com/rmacdonaldsmith/eventstore-go/pkg/position"
)

// CallOptions are shared by every operation. A zero Deadline uses
// Config.DefaultDeadline and nil Credentials use Config.Credentials.
type CallOptions struct {
	Deadline    time.Duration
	Credentials *Credentials
}

// AppendOptions configures AppendToStream.
type AppendOptions struct {
	CallOptions

	// Expected is checked against the stream before writing. The zero value
	// is event.Any().
	Expected event.ExpectedState
}

// ReadStreamOptions configures ReadStream. The zero value reads the whole
// stream forwards.
type ReadStreamOptions struct {
	CallOptions

	From position.Cursor[position.Revision]

	// MaxCount bounds the number of events; zero reads to the end
	MaxCount     uint64
	ResolveLinks bool
}

// ReadAllOptions configures ReadAll.
type ReadAllOptions struct {
	CallOptions

	From         position.Cursor[position.Position]
	MaxCount     uint64
	ResolveLinks bool
	Filter       *Filter
}

// SubscribeToStreamOptions configures SubscribeToStream. A subscription
// from a revision starts after that revision.
type SubscribeToStreamOptions struct {
	CallOptions

	From         position.Cursor[position.Revision]
	ResolveLinks bool
}

// SubscribeToAllOptions configures SubscribeToAll. A subscription from a
// position starts after that position.
type SubscribeToAllOptions struct {
	CallOptions

	From         position.Cursor[position.Position]
	ResolveLinks bool
	Filter       *Filter
}

// DeleteStreamOptions configures DeleteStream and TombstoneStream.
type DeleteStreamOptions struct {
	CallOptions

	Expected event.ExpectedState
}

// Filter selects $all events on the server.
type Filter struct {
	// OnEventType matches event types instead of stream names
	OnEventType bool

	// Regex and Prefixes are alternatives; an event matches when it matches
	// the regex and any of the prefixes, ignoring whichever is empty
	Regex    string
	Prefixes []string

	// MaxSearchWindow is the number of events scanned between checkpoints
	MaxSearchWindow uint32

	CheckpointIntervalMultiplier uint32
}

// ExcludeSystemEvents filters out events whose type starts with "$".
func ExcludeSystemEvents() *Filter {
	return &Filter{OnEventType: true, Regex: `^[^\$]`}
}

func (f *Filter) wire() *wire.FilterOptions {
	if f == nil {
		return nil
	}
	return &wire.FilterOptions{
		OnEventType:                  f.OnEventType,
		Regex:                        f.Regex,
		Prefixes:                     f.Prefixes,
		Max:                          f.MaxSearchWindow,
		CheckpointIntervalMultiplier: f.CheckpointIntervalMultiplier,
	}
}

// Consumer strategies for persistent subscriptions.
const (
	DispatchToSingle = "DispatchToSingle"
	RoundRobin       = "RoundRobin"
	Pinned           = "Pinned"
)

// PersistentSettings configures a persistent subscription group. Unset
// fields take the server defaults listed on SetDefaults.
type PersistentSettings struct {
	ResolveLinks    bool
	ExtraStatistics bool

	// MessageTimeout is how long an event may stay unacknowledged before it
	// is retried
	MessageTimeout time.Duration

	// MaxRetryCount is the number of retries before an event is parked
	MaxRetryCount int32

	LiveBufferSize     int32
	ReadBatchSize      int32
	HistoryBufferSize  int32
	CheckpointAfter    time.Duration
	MinCheckpointCount int32
	MaxCheckpointCount int32

	// MaxSubscriberCount bounds the members of the group; zero is unbounded
	MaxSubscriberCount int32

	ConsumerStrategy string
}

// SetDefaults fills unset fields: a 30s message timeout, 10 retries, 500
// event live and history buffers, 20 event read batches, checkpoints after
// 2s or 10 to 1000 events, round-robin dispatch.
func (s *PersistentSettings) SetDefaults() {
	if s.MessageTimeout == 0 {
		s.MessageTimeout = 30 * time.Second
	}
	if s.MaxRetryCount == 0 {
		s.MaxRetryCount = 10
	}
	if s.LiveBufferSize == 0 {
		s.LiveBufferSize = 500
	}
	if s.ReadBatchSize == 0 {
		s.ReadBatchSize = 20
	}
	if s.HistoryBufferSize == 0 {
		s.HistoryBufferSize = 500
	}
	if s.CheckpointAfter == 0 {
		s.CheckpointAfter = 2 * time.Second
	}
	if s.MinCheckpointCount == 0 {
		s.MinCheckpointCount = 10
	}
	if s.MaxCheckpointCount == 0 {
		s.MaxCheckpointCount = 1000
	}
	if s.ConsumerStrategy == "" {
		s.ConsumerStrategy = RoundRobin
	}
}

func (s PersistentSettings) wire() wire.PersistentSettings {
	s.SetDefaults()
	return wire.PersistentSettings{
		ResolveLinks:       s.ResolveLinks,
		ExtraStatistics:    s.ExtraStatistics,
		MessageTimeoutMs:   int32(s.MessageTimeout / time.Millisecond),
		MaxRetryCount:      s.MaxRetryCount,
		LiveBufferSize:     s.LiveBufferSize,
		ReadBatchSize:      s.ReadBatchSize,
		HistoryBufferSize:  s.HistoryBufferSize,
		CheckpointAfterMs:  int32(s.CheckpointAfter / time.Millisecond),
		MinCheckpointCount: s.MinCheckpointCount,
		MaxCheckpointCount: s.MaxCheckpointCount,
		MaxSubscriberCount: s.MaxSubscriberCount,
		ConsumerStrategy:   s.ConsumerStrategy,
	}
}

// CreatePersistentOptions configures CreatePersistentSubscription. From is
// inclusive: the group's first event is the one at From.
type CreatePersistentOptions struct {
	CallOptions

	From     position.Cursor[position.Revision]
	Settings PersistentSettings
}

// CreatePersistentToAllOptions configures CreatePersistentSubscriptionToAll.
type CreatePersistentToAllOptions struct {
	CallOptions

	From     position.Cursor[position.Position]
	Settings PersistentSettings
	Filter   *Filter
}

// DeletePersistentOptions configures the persistent subscription deletes.
type DeletePersistentOptions struct {
	CallOptions
}

// PersistentSubscribeOptions configures SubscribeToPersistentSubscription.
type PersistentSubscribeOptions struct {
	CallOptions

	// BufferSize is the number of unacknowledged events the server may
	// send ahead
	BufferSize int32
}
