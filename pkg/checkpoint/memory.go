package checkpoint

import (
	"context"
	"sync"

	"github.com/rmacdonaldsmith/eventstore-go/pkg/position"
)

// MemoryStore keeps checkpoints in a map. It is safe for concurrent use.
type MemoryStore struct {
	mu     sync.RWMutex
	points map[string]position.Position
	closed bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{points: make(map[string]position.Position)}
}

func (s *MemoryStore) Load(ctx context.Context, key string) (position.Position, bool, error) {
	if err := ctx.Err(); err != nil {
		return position.Position{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return position.Position{}, false, ErrClosed
	}
	p, ok := s.points[key]
	return p, ok, nil
}

func (s *MemoryStore) Save(ctx context.Context, key string, p position.Position) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if cur, ok := s.points[key]; ok && p.Less(cur) {
		return nil
	}
	s.points[key] = p
	return nil
}

// Close drops all checkpoints. It is idempotent.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.points = make(map[string]position.Position)
	s.closed = true
	return nil
}

var _ Store = (*MemoryStore)(nil)
