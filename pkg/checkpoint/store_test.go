package checkpoint

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rmacdonaldsmith/eventstore-go/pkg/position"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"
)

func stores(t *testing.T) map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"bolt": func(t *testing.T) Store {
			s, err := OpenBoltStore(filepath.Join(t.TempDir(), "checkpoints.db"))
			require.NoError(t, err)
			return s
		},
	}
}

func TestStore_Contract(t *testing.T) {
	ctx := context.Background()

	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()

			_, ok, err := s.Load(ctx, "projector")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Save(ctx, "projector", position.New(200, 190)))
			p, ok, err := s.Load(ctx, "projector")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, position.New(200, 190), p)

			// never moves backwards
			require.NoError(t, s.Save(ctx, "projector", position.New(100, 100)))
			p, _, _ = s.Load(ctx, "projector")
			assert.Equal(t, position.New(200, 190), p)

			require.NoError(t, s.Save(ctx, "projector", position.New(200, 195)))
			p, _, _ = s.Load(ctx, "projector")
			assert.Equal(t, position.New(200, 195), p)

			assert.ErrorIs(t, s.Save(ctx, "", position.New(1, 1)), ErrEmptyKey)

			require.NoError(t, s.Close())
			require.NoError(t, s.Close())
			_, _, err = s.Load(ctx, "projector")
			assert.ErrorIs(t, err, ErrClosed)
			assert.ErrorIs(t, s.Save(ctx, "projector", position.New(300, 300)), ErrClosed)
		})
	}
}

func TestStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()

			assert.ErrorIs(t, s.Save(ctx, "k", position.New(1, 1)), context.Canceled)
			_, _, err := s.Load(ctx, "k")
			assert.ErrorIs(t, err, context.Canceled)
		})
	}
}

func TestBoltStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "checkpoints.db")

	s, err := OpenBoltStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, "projector", position.New(42, 40)))
	require.NoError(t, s.Close())

	s, err = OpenBoltStore(path)
	require.NoError(t, err)
	defer s.Close()

	p, ok, err := s.Load(ctx, "projector")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, position.New(42, 40), p)
}

func TestBoltStore_CorruptValue(t *testing.T) {
	ctx := context.Background()
	s, err := OpenBoltStore(filepath.Join(t.TempDir(), "checkpoints.db"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(checkpointBucket).Put([]byte("projector"), []byte{1, 2, 3})
	}))

	_, _, err = s.Load(ctx, "projector")
	assert.ErrorContains(t, err, "corrupt checkpoint")
}

func TestResume(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	c, err := Resume(ctx, s, "projector")
	require.NoError(t, err)
	assert.True(t, c.IsStart())

	require.NoError(t, s.Save(ctx, "projector", position.New(10, 9)))
	c, err = Resume(ctx, s, "projector")
	require.NoError(t, err)
	v, ok := c.Value()
	require.True(t, ok)
	assert.Equal(t, position.New(10, 9), v)
	d, _ := c.Direction()
	assert.Equal(t, position.Forwards, d)
}
