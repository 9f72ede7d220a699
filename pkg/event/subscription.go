package event

import "github.com/rmacdonaldsmith/eventstore-go/pkg/position"

// ItemKind tells which member of a SubscriptionItem is set.
type ItemKind int

const (
	ItemEvent ItemKind = iota
	ItemCheckpoint
	ItemCaughtUp
	ItemFellBehind
)

func (k ItemKind) String() string {
	switch k {
	case ItemEvent:
		return "Event"
	case ItemCheckpoint:
		return "Checkpoint"
	case ItemCaughtUp:
		return "CaughtUp"
	case ItemFellBehind:
		return "FellBehind"
	default:
		return "Unknown"
	}
}

// SubscriptionItem is one message delivered by a volatile subscription.
// Exactly one member is meaningful; Kind reports which.
type SubscriptionItem struct {
	kind       ItemKind
	event      *Envelope
	checkpoint position.Position
}

// EventItem wraps an event envelope.
func EventItem(e Envelope) SubscriptionItem {
	return SubscriptionItem{kind: ItemEvent, event: &e}
}

// CheckpointItem reports that a filtered subscription has scanned up to p.
func CheckpointItem(p position.Position) SubscriptionItem {
	return SubscriptionItem{kind: ItemCheckpoint, checkpoint: p}
}

// CaughtUpItem reports that the subscription switched to live events.
func CaughtUpItem() SubscriptionItem {
	return SubscriptionItem{kind: ItemCaughtUp}
}

// FellBehindItem reports that the subscription fell back to catching up.
func FellBehindItem() SubscriptionItem {
	return SubscriptionItem{kind: ItemFellBehind}
}

// Kind returns which member is set.
func (i SubscriptionItem) Kind() ItemKind {
	return i.kind
}

// Event returns the envelope of an ItemEvent.
func (i SubscriptionItem) Event() (Envelope, bool) {
	if i.kind != ItemEvent || i.event == nil {
		return Envelope{}, false
	}
	return *i.event, true
}

// Checkpoint returns the position of an ItemCheckpoint.
func (i SubscriptionItem) Checkpoint() (position.Position, bool) {
	if i.kind != ItemCheckpoint {
		return position.Position{}, false
	}
	return i.checkpoint, true
}
