package event

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rmacdonaldsmith/eventstore-go/pkg/esdberr"
	"github.com/rmacdonaldsmith/eventstore-go/pkg/position"
)

func TestNewJSONEvent(t *testing.T) {
	payload := []byte(`{"total": 42}`)

	e := NewJSONEvent("OrderPlaced", payload)

	if e.Type != "OrderPlaced" {
		t.Errorf("Expected type OrderPlaced, got %s", e.Type)
	}
	if e.ContentType != ContentTypeJSON {
		t.Errorf("Expected content type %s, got %s", ContentTypeJSON, e.ContentType)
	}
	if e.ID == uuid.Nil {
		t.Error("Expected a generated event ID")
	}
	if string(e.Data) != string(payload) {
		t.Errorf("Expected payload %s, got %s", payload, e.Data)
	}
}

func TestEventData_Immutability(t *testing.T) {
	payload := []byte("original")
	metadata := []byte("meta")

	e := NewBinaryEvent("Raw", payload).WithMetadata(metadata)

	payload[0] = 'X'
	metadata[0] = 'X'

	if string(e.Data) != "original" {
		t.Errorf("Payload should be immutable, got %s", e.Data)
	}
	if string(e.Metadata) != "meta" {
		t.Errorf("Metadata should be immutable, got %s", e.Metadata)
	}
}

func TestEventData_WithID(t *testing.T) {
	id := uuid.MustParse("6f1f1b5e-3f0c-4d6f-9a3c-1b2d3e4f5a6b")
	original := NewJSONEvent("A", nil)

	withID := original.WithID(id)

	if withID.ID != id {
		t.Errorf("Expected ID %s, got %s", id, withID.ID)
	}
	if original.ID == id {
		t.Error("Original event should keep its own ID")
	}
}

func TestRecordedEvent_Copy(t *testing.T) {
	original := &RecordedEvent{
		StreamID:       "orders-1",
		Revision:       3,
		Data:           []byte("payload"),
		SystemMetadata: map[string]string{"type": "OrderPlaced"},
	}

	c := original.Copy()
	c.Data[0] = 'X'
	c.SystemMetadata["type"] = "modified"

	if string(original.Data) != "payload" {
		t.Error("Original payload should be unchanged")
	}
	if original.SystemMetadata["type"] != "OrderPlaced" {
		t.Error("Original metadata should be unchanged")
	}

	var nilEvent *RecordedEvent
	if nilEvent.Copy() != nil {
		t.Error("Copy of nil should be nil")
	}
}

func TestEnvelope_OriginalAndResolved(t *testing.T) {
	target := &RecordedEvent{StreamID: "orders-1", Revision: 7}
	link := &RecordedEvent{StreamID: "$ce-orders", Revision: 2}

	linked := Envelope{Event: target, Link: link}
	if linked.Original() != link {
		t.Error("Original should be the link when present")
	}
	if linked.Resolved() != target {
		t.Error("Resolved should be the target event")
	}
	if linked.OriginalStreamRevision() != position.Revision(2) {
		t.Errorf("Expected original revision 2, got %d", linked.OriginalStreamRevision())
	}

	plain := Envelope{Event: target}
	if plain.Original() != target {
		t.Error("Original should be the event when there is no link")
	}
}

func TestStreamIdentifier(t *testing.T) {
	t.Run("equality_by_name_and_encoding", func(t *testing.T) {
		a, _ := NewStreamIdentifier("orders-1")
		b, _ := NewStreamIdentifier("orders-1")
		c, _ := NewStreamIdentifierWithEncoding("orders-1", ASCII)

		if a != b {
			t.Error("Identifiers with same name and encoding should be equal")
		}
		if a == c {
			t.Error("Identifiers with different encodings should not be equal")
		}

		set := map[StreamIdentifier]int{a: 1}
		if set[b] != 1 {
			t.Error("Equal identifiers should hash to the same map key")
		}
	})

	t.Run("invalid_utf8_fails_explicitly", func(t *testing.T) {
		_, err := NewStreamIdentifier("orders-\xff")

		var buildErr *esdberr.RequestBuildError
		if !errors.As(err, &buildErr) {
			t.Fatalf("Expected RequestBuildError, got %v", err)
		}
		if !errors.Is(err, ErrInvalidEncoding) {
			t.Errorf("Expected ErrInvalidEncoding, got %v", err)
		}
	})

	t.Run("non_ascii_rejected_for_ascii_encoding", func(t *testing.T) {
		_, err := NewStreamIdentifierWithEncoding("café", ASCII)
		if !errors.Is(err, ErrInvalidEncoding) {
			t.Errorf("Expected ErrInvalidEncoding, got %v", err)
		}
	})

	t.Run("empty_name_rejected", func(t *testing.T) {
		_, err := NewStreamIdentifier("")
		if !errors.Is(err, ErrEmptyStreamName) {
			t.Errorf("Expected ErrEmptyStreamName, got %v", err)
		}
	})

	t.Run("zero_value_fails_on_bytes", func(t *testing.T) {
		var zero StreamIdentifier
		if _, err := zero.Bytes(); err == nil {
			t.Error("Expected zero identifier to fail encoding")
		}
	})
}

func TestSubscriptionItem(t *testing.T) {
	envelope := Envelope{Event: &RecordedEvent{Revision: 42}}

	item := EventItem(envelope)
	if item.Kind() != ItemEvent {
		t.Errorf("Expected ItemEvent, got %s", item.Kind())
	}
	got, ok := item.Event()
	if !ok || got.Event.Revision != 42 {
		t.Errorf("Expected event with revision 42, got %+v", got)
	}
	if _, ok := item.Checkpoint(); ok {
		t.Error("Event item should not carry a checkpoint")
	}

	checkpoint := CheckpointItem(position.New(10, 9))
	p, ok := checkpoint.Checkpoint()
	if !ok || p != position.New(10, 9) {
		t.Errorf("Expected checkpoint C:10/P:9, got %v", p)
	}
	if _, ok := checkpoint.Event(); ok {
		t.Error("Checkpoint item should not carry an event")
	}

	if CaughtUpItem().Kind() != ItemCaughtUp || FellBehindItem().Kind() != ItemFellBehind {
		t.Error("Marker items should report their kind")
	}
}
