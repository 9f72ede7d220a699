package checkpoint

import (
	"context"
	"errors"

	"github.com/rmacdonaldsmith/eventstore-go/pkg/position"
)

var (
	// ErrClosed is returned by a store after Close
	ErrClosed = errors.New("checkpoint store is closed")
	// ErrEmptyKey is returned when a checkpoint key is empty
	ErrEmptyKey = errors.New("checkpoint key cannot be empty")
)

// Store persists positions by subscriber key. Save never moves a checkpoint
// backwards: saving a position lower than the stored one is a no-op.
type Store interface {
	// Load returns the stored position for key. ok is false when nothing
	// has been saved yet.
	Load(ctx context.Context, key string) (p position.Position, ok bool, err error)

	// Save records p for key
	Save(ctx context.Context, key string, p position.Position) error

	Close() error
}

// Resume returns the cursor a subscriber identified by key should continue
// from: right after its checkpoint, or the start of $all.
func Resume(ctx context.Context, s Store, key string) (position.Cursor[position.Position], error) {
	p, ok, err := s.Load(ctx, key)
	if err != nil {
		return position.Cursor[position.Position]{}, err
	}
	if !ok {
		return position.Start[position.Position](), nil
	}
	return position.At(p, position.Forwards), nil
}
