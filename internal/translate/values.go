package translate

import (
	"errors"
	"fmt"
	"maps"
	"strconv"
	"time"

	"github.com/rmacdonaldsmith/eventstore-go/internal/wire"
	"github.com/rmacdonaldsmith/eventstore-go/pkg/esdberr"
	"github.com/rmacdonaldsmith/eventstore-go/pkg/event"
	"github.com/rmacdonaldsmith/eventstore-go/pkg/position"
)

// Discarded is the result of calls whose response carries nothing the caller
// needs. Such responses are consumed and replaced by this marker.
type Discarded struct{}

var errEmptyEvent = errors.New("event message carries neither event nor link")

// Position converts a wire position.
func Position(p wire.Position) position.Position {
	return position.New(p.Commit, p.Prepare)
}

// RecordedEvent converts a wire event. The result shares nothing with ev.
func RecordedEvent(op string, ev *wire.RecordedEvent) (*event.RecordedEvent, error) {
	if ev == nil {
		return nil, nil
	}

	created, err := createdTime(ev.Metadata[wire.MetadataCreated])
	if err != nil {
		return nil, &esdberr.DecodeError{Op: op, Err: err}
	}

	return &event.RecordedEvent{
		ID:             ev.ID.Value,
		StreamID:       string(ev.StreamName),
		Revision:       position.Revision(ev.Revision),
		Position:       position.New(ev.Commit, ev.Prepare),
		Type:           ev.Metadata[wire.MetadataType],
		ContentType:    ev.Metadata[wire.MetadataContentType],
		Data:           cloneBytes(ev.Data),
		Metadata:       cloneBytes(ev.CustomMetadata),
		Created:        created,
		SystemMetadata: maps.Clone(ev.Metadata),
	}, nil
}

// Envelope converts a wire read event into the envelope yielded to callers.
func Envelope(op string, re *wire.ReadEvent) (event.Envelope, error) {
	if re == nil || (re.Event == nil && re.Link == nil) {
		return event.Envelope{}, &esdberr.DecodeError{Op: op, Err: errEmptyEvent}
	}

	ev, err := RecordedEvent(op, re.Event)
	if err != nil {
		return event.Envelope{}, err
	}
	link, err := RecordedEvent(op, re.Link)
	if err != nil {
		return event.Envelope{}, err
	}

	env := event.Envelope{Event: ev, Link: link}
	if re.HasCommitPosition {
		original := env.Original()
		env.Commit = &position.Position{Commit: re.CommitPosition, Prepare: original.Position.Prepare}
	}
	if re.HasRetryCount {
		env.RetryCount = int(re.RetryCount)
	}
	return env, nil
}

// createdTime parses the created metadata value: 100ns ticks since the Unix epoch.
func createdTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	ticks, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid created timestamp %q: %w", v, err)
	}
	return time.Unix(0, ticks*100).UTC(), nil
}

// CreatedTicks renders t in the created metadata format.
func CreatedTicks(t time.Time) string {
	return strconv.FormatInt(t.UnixNano()/100, 10)
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
