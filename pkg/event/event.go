package event

import (
	"maps"
	"time"

	"github.com/google/uuid"
	"github.com/rmacdonaldsmith/eventstore-go/pkg/position"
)

// Content types understood by the server.
const (
	ContentTypeJSON   = "application/json"
	ContentTypeBinary = "application/octet-stream"
)

// EventData is an event proposed for appending to a stream.
type EventData struct {
	// ID is the client-assigned identifier used for idempotent appends
	ID uuid.UUID

	// Type is the event type name (e.g. "OrderPlaced")
	Type string

	// ContentType describes Data (ContentTypeJSON or ContentTypeBinary)
	ContentType string

	// Data is the event payload (immutable after creation)
	Data []byte

	// Metadata is optional user metadata (immutable after creation)
	Metadata []byte
}

// NewJSONEvent creates a JSON event with a random ID.
// The payload is copied to ensure immutability.
func NewJSONEvent(eventType string, data []byte) EventData {
	return EventData{
		ID:          uuid.New(),
		Type:        eventType,
		ContentType: ContentTypeJSON,
		Data:        copyBytes(data),
	}
}

// NewBinaryEvent creates a binary event with a random ID.
// The payload is copied to ensure immutability.
func NewBinaryEvent(eventType string, data []byte) EventData {
	return EventData{
		ID:          uuid.New(),
		Type:        eventType,
		ContentType: ContentTypeBinary,
		Data:        copyBytes(data),
	}
}

// WithID returns a copy of the event with the given ID.
func (e EventData) WithID(id uuid.UUID) EventData {
	e.ID = id
	return e
}

// WithMetadata returns a copy of the event with the given metadata.
// The metadata is copied to ensure immutability.
func (e EventData) WithMetadata(metadata []byte) EventData {
	e.Metadata = copyBytes(metadata)
	return e
}

// RecordedEvent is an event as stored by the server.
type RecordedEvent struct {
	ID          uuid.UUID
	StreamID    string
	Revision    position.Revision
	Position    position.Position
	Type        string
	ContentType string
	Data        []byte
	Metadata    []byte
	Created     time.Time

	// SystemMetadata holds the raw key/value metadata sent by the server
	SystemMetadata map[string]string
}

// Copy returns a deep copy of the RecordedEvent.
func (e *RecordedEvent) Copy() *RecordedEvent {
	if e == nil {
		return nil
	}
	c := *e
	c.Data = copyBytes(e.Data)
	c.Metadata = copyBytes(e.Metadata)
	c.SystemMetadata = maps.Clone(e.SystemMetadata)
	return &c
}

// Envelope is the unit yielded by reads and subscriptions.
type Envelope struct {
	// Event is the recorded event. When the event is a resolved link, this is
	// the event the link points to.
	Event *RecordedEvent

	// Link is the link event when Event was reached through a link, nil otherwise
	Link *RecordedEvent

	// Commit is the commit position of the original event, nil when the server sent none
	Commit *position.Position

	// RetryCount is the number of redeliveries (persistent subscriptions only)
	RetryCount int
}

// Original returns the event that was actually read: the link when present,
// otherwise the event itself.
func (e Envelope) Original() *RecordedEvent {
	if e.Link != nil {
		return e.Link
	}
	return e.Event
}

// Resolved returns the event the envelope resolves to.
func (e Envelope) Resolved() *RecordedEvent {
	if e.Event != nil {
		return e.Event
	}
	return e.Link
}

// OriginalStreamRevision returns the revision of Original in its stream.
func (e Envelope) OriginalStreamRevision() position.Revision {
	if o := e.Original(); o != nil {
		return o.Revision
	}
	return 0
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
