package translate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rmacdonaldsmith/eventstore-go/internal/wire"
	"github.com/rmacdonaldsmith/eventstore-go/pkg/esdberr"
	"github.com/rmacdonaldsmith/eventstore-go/pkg/position"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func TestError_PassThrough(t *testing.T) {
	assert.NoError(t, Error("Read", nil, nil))
	assert.Equal(t, io.EOF, Error("Read", io.EOF, nil))

	buildErr := &esdberr.RequestBuildError{Op: "Append", Field: "stream", Err: errors.New("empty")}
	assert.Same(t, buildErr, Error("Append", buildErr, nil))
}

func TestError_Cancellation(t *testing.T) {
	assert.Equal(t, context.Canceled, Error("Read", context.Canceled, nil))
	assert.Equal(t, context.Canceled, Error("Read", status.Error(codes.Canceled, "context canceled"), nil))
}

func TestError_TransportCodes(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target any
	}{
		{"deadline", status.Error(codes.DeadlineExceeded, "too slow"), new(*esdberr.DeadlineExceededError)},
		{"context deadline", context.DeadlineExceeded, new(*esdberr.DeadlineExceededError)},
		{"unavailable", status.Error(codes.Unavailable, "connection refused"), new(*esdberr.ConnectionError)},
		{"codec", status.Error(codes.Internal, "grpc: failed to unmarshal the received message"), new(*esdberr.DecodeError)},
		{"wire decode", fmt.Errorf("recv: %w", &wire.DecodeError{Message: "ReadResp", Err: io.ErrUnexpectedEOF}), new(*esdberr.DecodeError)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Error("Read", tt.err, nil)
			assert.ErrorAs(t, got, tt.target)
		})
	}

	assert.ErrorIs(t, Error("Read", status.Error(codes.DeadlineExceeded, ""), nil), esdberr.ErrDeadlineExceeded)
}

func TestError_Exceptions(t *testing.T) {
	tests := []struct {
		name     string
		trailer  metadata.MD
		code     codes.Code
		sentinel error
		check    func(t *testing.T, e *esdberr.DomainError)
	}{
		{
			name:     "stream deleted",
			trailer:  metadata.Pairs(KeyException, ExceptionStreamDeleted, KeyStreamName, "orders-1"),
			code:     codes.FailedPrecondition,
			sentinel: esdberr.ErrStreamDeleted,
			check: func(t *testing.T, e *esdberr.DomainError) {
				assert.Equal(t, "orders-1", e.Stream)
			},
		},
		{
			name: "wrong expected version",
			trailer: metadata.Pairs(KeyException, ExceptionWrongExpectedVersion,
				KeyExpectedVersion, "3", KeyActualVersion, "7"),
			code:     codes.FailedPrecondition,
			sentinel: esdberr.ErrWrongExpectedVersion,
			check: func(t *testing.T, e *esdberr.DomainError) {
				assert.Equal(t, "3", e.Expected)
				assert.Equal(t, "7", e.Actual)
			},
		},
		{
			name: "not leader",
			trailer: metadata.Pairs(KeyException, ExceptionNotLeader,
				KeyLeaderHost, "node2", KeyLeaderPort, "2113"),
			code:     codes.NotFound,
			sentinel: esdberr.ErrNotLeader,
			check: func(t *testing.T, e *esdberr.DomainError) {
				assert.Equal(t, "node2:2113", e.LeaderEndpoint)
			},
		},
		{
			name:     "access denied",
			trailer:  metadata.Pairs(KeyException, ExceptionAccessDenied),
			code:     codes.PermissionDenied,
			sentinel: esdberr.ErrAccessDenied,
		},
		{
			name:     "group missing",
			trailer:  metadata.Pairs(KeyException, ExceptionPersistentSubscriptionDoesNotExist),
			code:     codes.NotFound,
			sentinel: esdberr.ErrNotFound,
		},
		{
			name:     "group exists",
			trailer:  metadata.Pairs(KeyException, ExceptionPersistentSubscriptionAlreadyExists),
			code:     codes.AlreadyExists,
			sentinel: esdberr.ErrAlreadyExists,
		},
		{
			name:     "append too large",
			trailer:  metadata.Pairs(KeyException, ExceptionMaximumAppendSizeExceeded),
			code:     codes.InvalidArgument,
			sentinel: esdberr.ErrMaximumAppendSizeExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Error("Append", status.Error(tt.code, "rejected"), tt.trailer)

			var domainErr *esdberr.DomainError
			require.ErrorAs(t, got, &domainErr)
			assert.ErrorIs(t, got, tt.sentinel)
			assert.Equal(t, "Append", domainErr.Op)
			if tt.check != nil {
				tt.check(t, domainErr)
			}
		})
	}
}

func TestError_UnknownKeepsCodeAndMessage(t *testing.T) {
	got := Error("Read", status.Error(codes.ResourceExhausted, "slow down"), nil)

	var domainErr *esdberr.DomainError
	require.ErrorAs(t, got, &domainErr)
	assert.Equal(t, esdberr.KindUnknown, domainErr.Kind)
	assert.Equal(t, codes.ResourceExhausted.String(), domainErr.Code)
	assert.Equal(t, "slow down", domainErr.Message)
}

func TestError_NotAuthenticatedFromCode(t *testing.T) {
	got := Error("Read", status.Error(codes.Unauthenticated, "bad token"), nil)
	assert.ErrorIs(t, got, esdberr.ErrNotAuthenticated)
}

func TestWrongExpectedVersion(t *testing.T) {
	err := WrongExpectedVersion("Append", "orders-1", &wire.WrongExpectedVersion{
		Expected: wire.Expected{Kind: wire.ExpectNoStream},
	})

	assert.ErrorIs(t, err, esdberr.ErrWrongExpectedVersion)
	assert.Equal(t, "no-stream", err.Expected)
	assert.Equal(t, "no-stream", err.Actual)
	assert.Equal(t, "orders-1", err.Stream)
}

func sampleReadEvent() *wire.ReadEvent {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &wire.ReadEvent{
		Event: &wire.RecordedEvent{
			ID:         wire.UUID{Value: uuid.MustParse("5b1bb3b0-9c0e-4c55-a6f5-7f2d0d2b8d61")},
			StreamName: []byte("orders-1"),
			Revision:   4,
			Prepare:    90,
			Commit:     100,
			Metadata: map[string]string{
				wire.MetadataType:        "OrderPlaced",
				wire.MetadataContentType: "application/json",
				wire.MetadataCreated:     CreatedTicks(created),
			},
			Data: []byte(`{"id":1}`),
		},
		CommitPosition:    100,
		HasCommitPosition: true,
	}
}

func TestEnvelope_Translation(t *testing.T) {
	env, err := Envelope("Read", sampleReadEvent())
	require.NoError(t, err)

	require.NotNil(t, env.Event)
	assert.Equal(t, "orders-1", env.Event.StreamID)
	assert.Equal(t, position.Revision(4), env.Event.Revision)
	assert.Equal(t, position.New(100, 90), env.Event.Position)
	assert.Equal(t, "OrderPlaced", env.Event.Type)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), env.Event.Created)
	require.NotNil(t, env.Commit)
	assert.Equal(t, position.New(100, 90), *env.Commit)
	assert.Nil(t, env.Link)
}

func TestEnvelope_Idempotent(t *testing.T) {
	in := sampleReadEvent()

	first, err := Envelope("Read", in)
	require.NoError(t, err)
	second, err := Envelope("Read", in)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotSame(t, first.Event, second.Event)

	first.Event.Data[0] = 'X'
	assert.Equal(t, byte('{'), in.Event.Data[0], "translation must not alias wire buffers")
}

func TestEnvelope_Malformed(t *testing.T) {
	_, err := Envelope("Read", &wire.ReadEvent{})

	var decodeErr *esdberr.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, "Read", decodeErr.Op)

	bad := sampleReadEvent()
	bad.Event.Metadata[wire.MetadataCreated] = "yesterday"
	_, err = Envelope("Read", bad)
	assert.ErrorAs(t, err, &decodeErr)
}

func TestEnvelope_RetryCount(t *testing.T) {
	in := sampleReadEvent()
	in.RetryCount = 3
	in.HasRetryCount = true

	env, err := Envelope("PersistentSubscribe", in)
	require.NoError(t, err)
	assert.Equal(t, 3, env.RetryCount)
}
