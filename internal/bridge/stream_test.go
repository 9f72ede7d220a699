package bridge

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rmacdonaldsmith/eventstore-go/pkg/esdberr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// scripted yields items in order, then returns final. A nil final blocks
// until the context ends, like an idle live subscription.
func scripted(items []int, final error) Receiver[int] {
	next := 0
	return func(ctx context.Context) (int, error) {
		if next < len(items) {
			next++
			return items[next-1], nil
		}
		if final != nil {
			return 0, final
		}
		<-ctx.Done()
		return 0, ctx.Err()
	}
}

type releaseCounter struct {
	n atomic.Int32
}

func (r *releaseCounter) release() { r.n.Add(1) }

func collect(t *testing.T, s *Stream[int], n int) []int {
	t.Helper()
	var got []int
	for len(got) < n {
		item, ok := s.Next()
		require.True(t, ok, "stream ended after %d items", len(got))
		got = append(got, item)
	}
	return got
}

func TestStream_DeliversAllThenEnds(t *testing.T) {
	var rc releaseCounter
	s := New(context.Background(), scripted([]int{1, 2, 3}, io.EOF), rc.release,
		WithName("Read"), WithLogger(zaptest.NewLogger(t)))

	assert.Equal(t, []int{1, 2, 3}, collect(t, s, 3))

	_, ok := s.Next()
	assert.False(t, ok)
	assert.NoError(t, s.Err())
	assert.Equal(t, int32(1), rc.n.Load())

	// pulls after the terminal yield nothing
	for i := 0; i < 3; i++ {
		_, ok := s.Next()
		assert.False(t, ok)
	}
}

func TestStream_ErrorAfterItems(t *testing.T) {
	boom := errors.New("boom")
	var rc releaseCounter
	s := New(context.Background(), scripted([]int{1, 2}, boom), rc.release)

	assert.Equal(t, []int{1, 2}, collect(t, s, 2))

	_, ok := s.Next()
	assert.False(t, ok)
	assert.Same(t, boom, s.Err())
	assert.Equal(t, int32(1), rc.n.Load())
}

func TestStream_CloseAfterItems(t *testing.T) {
	var rc releaseCounter
	s := New(context.Background(), scripted([]int{1, 2}, nil), rc.release)

	assert.Equal(t, []int{1, 2}, collect(t, s, 2))

	s.Close()
	s.Close()

	select {
	case <-s.Done():
	default:
		t.Fatal("Done should be closed after Close returns")
	}
	_, ok := s.Next()
	assert.False(t, ok)
	assert.NoError(t, s.Err(), "cancellation is not an error")
	assert.Equal(t, int32(1), rc.n.Load())
}

func TestStream_CloseDropsBufferedItem(t *testing.T) {
	s := New(context.Background(), scripted([]int{1, 2, 3}, nil), nil)

	first, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, 1, first)

	s.Close()
	_, ok = s.Next()
	assert.False(t, ok)
}

func TestStream_ParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var rc releaseCounter
	s := New(ctx, scripted(nil, nil), rc.release)

	cancel()

	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not terminate after parent cancellation")
	}
	assert.NoError(t, s.Err())
	assert.Equal(t, int32(1), rc.n.Load())
}

func TestStream_TornDownCallIsAConnectionError(t *testing.T) {
	s := New(context.Background(), scripted([]int{1}, context.Canceled), nil, WithName("Subscribe"))

	assert.Equal(t, []int{1}, collect(t, s, 1))
	_, ok := s.Next()
	assert.False(t, ok)

	var connErr *esdberr.ConnectionError
	require.ErrorAs(t, s.Err(), &connErr)
	assert.ErrorIs(t, s.Err(), context.Canceled)
}

func TestStream_CloseWhileBlockedIsClean(t *testing.T) {
	unblock := make(chan struct{})
	recv := func(ctx context.Context) (int, error) {
		<-unblock
		return 0, context.Canceled
	}

	s := New(context.Background(), recv, func() { close(unblock) })
	s.Close()
	assert.NoError(t, s.Err())
}

func TestStream_DeadlineIsAnError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	s := New(ctx, scripted(nil, nil), nil, WithName("Read"))

	_, ok := s.Next()
	assert.False(t, ok)

	var deadlineErr *esdberr.DeadlineExceededError
	require.ErrorAs(t, s.Err(), &deadlineErr)
	assert.Equal(t, "Read", deadlineErr.Op)
	assert.ErrorIs(t, s.Err(), esdberr.ErrDeadlineExceeded)
}

func TestStream_ReleaseUnblocksProducer(t *testing.T) {
	unblock := make(chan struct{})
	recv := func(ctx context.Context) (int, error) {
		// ignores ctx, like a network receive waiting on its own call
		<-unblock
		return 0, io.EOF
	}

	var rc releaseCounter
	s := New(context.Background(), recv, func() {
		rc.release()
		close(unblock)
	})

	s.Close()
	assert.Equal(t, int32(1), rc.n.Load())
	assert.NoError(t, s.Err())
}

func TestStream_OnFinishFiresOnce(t *testing.T) {
	boom := errors.New("boom")
	s := New(context.Background(), scripted([]int{1}, boom), nil)

	var calls atomic.Int32
	var seen atomic.Value
	s.OnFinish(func(err error) {
		calls.Add(1)
		seen.Store(err)
	})

	for range s.All() {
	}
	<-s.Done()

	assert.Equal(t, int32(1), calls.Load())
	assert.Same(t, boom, seen.Load())

	late := make(chan error, 1)
	s.OnFinish(func(err error) { late <- err })
	assert.Same(t, boom, <-late)
	assert.Equal(t, int32(1), calls.Load())
}

func TestStream_AllYieldsTerminalError(t *testing.T) {
	boom := errors.New("boom")
	s := New(context.Background(), scripted([]int{1, 2}, boom), nil)

	var items []int
	var final error
	for item, err := range s.All() {
		if err != nil {
			final = err
			break
		}
		items = append(items, item)
	}

	assert.Equal(t, []int{1, 2}, items)
	assert.Same(t, boom, final)
}

func TestStream_AllBreakCloses(t *testing.T) {
	var rc releaseCounter
	s := New(context.Background(), scripted([]int{1, 2, 3, 4}, nil), rc.release)

	for item, err := range s.All() {
		require.NoError(t, err)
		if item == 2 {
			break
		}
	}

	<-s.Done()
	assert.Equal(t, int32(1), rc.n.Load())
	assert.NoError(t, s.Err())
}
