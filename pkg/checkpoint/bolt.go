package checkpoint

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rmacdonaldsmith/eventstore-go/pkg/position"
	"go.etcd.io/bbolt"
)

var checkpointBucket = []byte("checkpoints")

// encodedSize is two big-endian uint64s: commit then prepare
const encodedSize = 16

// BoltStore keeps checkpoints in a bbolt database file.
type BoltStore struct {
	db     *bbolt.DB
	mu     sync.RWMutex
	closed bool
}

// OpenBoltStore opens (or creates) the database at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(checkpointBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create checkpoint bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Load(ctx context.Context, key string) (position.Position, bool, error) {
	if err := ctx.Err(); err != nil {
		return position.Position{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return position.Position{}, false, ErrClosed
	}

	var (
		p  position.Position
		ok bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(checkpointBucket).Get([]byte(key))
		if v == nil {
			return nil
		}
		decoded, err := decodePosition(v)
		if err != nil {
			return fmt.Errorf("checkpoint %q: %w", key, err)
		}
		p, ok = decoded, true
		return nil
	})
	return p, ok, err
}

func (s *BoltStore) Save(ctx context.Context, key string, p position.Position) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(checkpointBucket)
		if v := b.Get([]byte(key)); v != nil {
			if cur, err := decodePosition(v); err == nil && p.Less(cur) {
				return nil
			}
		}
		return b.Put([]byte(key), encodePosition(p))
	})
}

// Close closes the database file. It is idempotent.
func (s *BoltStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func encodePosition(p position.Position) []byte {
	b := make([]byte, encodedSize)
	binary.BigEndian.PutUint64(b[:8], p.Commit)
	binary.BigEndian.PutUint64(b[8:], p.Prepare)
	return b
}

func decodePosition(b []byte) (position.Position, error) {
	if len(b) != encodedSize {
		return position.Position{}, fmt.Errorf("corrupt checkpoint: %d bytes", len(b))
	}
	return position.New(binary.BigEndian.Uint64(b[:8]), binary.BigEndian.Uint64(b[8:])), nil
}

var _ Store = (*BoltStore)(nil)
