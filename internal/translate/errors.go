package translate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/rmacdonaldsmith/eventstore-go/internal/wire"
	"github.com/rmacdonaldsmith/eventstore-go/pkg/esdberr"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Trailer keys the server uses to describe a failure.
const (
	KeyException       = "exception"
	KeyStreamName      = "stream-name"
	KeyGroupName       = "group-name"
	KeyExpectedVersion = "expected-version"
	KeyActualVersion   = "actual-version"
	KeyLeaderHost      = "leader-endpoint-host"
	KeyLeaderPort      = "leader-endpoint-port"
)

// Values of the exception trailer.
const (
	ExceptionStreamDeleted                       = "stream-deleted"
	ExceptionStreamNotFound                      = "stream-not-found"
	ExceptionWrongExpectedVersion                = "wrong-expected-version"
	ExceptionAccessDenied                        = "access-denied"
	ExceptionNotAuthenticated                    = "not-authenticated"
	ExceptionNotLeader                           = "not-leader"
	ExceptionMaximumAppendSizeExceeded           = "maximum-append-size-exceeded"
	ExceptionPersistentSubscriptionDoesNotExist  = "persistent-subscription-does-not-exist"
	ExceptionPersistentSubscriptionAlreadyExists = "persistent-subscription-exists"
)

// Error maps an RPC failure of op onto the client error taxonomy. trailer is
// the call's trailing metadata and may be nil.
//
// io.EOF is returned unchanged: it marks normal end of stream. Cancellation
// becomes context.Canceled so callers can tell it apart from failures.
func Error(op string, err error, trailer metadata.MD) error {
	if err == nil || errors.Is(err, io.EOF) {
		return err
	}
	if alreadyTranslated(err) {
		return err
	}

	var decodeErr *wire.DecodeError
	if errors.As(err, &decodeErr) {
		return &esdberr.DecodeError{Op: op, Err: err}
	}

	switch {
	case errors.Is(err, context.Canceled):
		return context.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return &esdberr.DeadlineExceededError{Op: op, Err: err}
	}

	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("esdb: %s: %w", op, err)
	}

	if domainErr := fromException(op, st, trailer); domainErr != nil {
		return domainErr
	}

	switch st.Code() {
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return &esdberr.DeadlineExceededError{Op: op, Err: err}
	case codes.Unavailable:
		return &esdberr.ConnectionError{Err: err}
	case codes.Internal:
		if strings.Contains(st.Message(), "unmarshal") {
			return &esdberr.DecodeError{Op: op, Err: err}
		}
	}

	return &esdberr.DomainError{
		Op:      op,
		Kind:    kindForCode(st.Code()),
		Stream:  trailerValue(trailer, KeyStreamName),
		Code:    st.Code().String(),
		Message: st.Message(),
	}
}

func fromException(op string, st *status.Status, trailer metadata.MD) *esdberr.DomainError {
	exception := trailerValue(trailer, KeyException)
	if exception == "" {
		return nil
	}

	domainErr := &esdberr.DomainError{
		Op:     op,
		Stream: trailerValue(trailer, KeyStreamName),
		Code:   st.Code().String(),
	}

	switch exception {
	case ExceptionStreamDeleted:
		domainErr.Kind = esdberr.KindStreamDeleted
	case ExceptionStreamNotFound, ExceptionPersistentSubscriptionDoesNotExist:
		domainErr.Kind = esdberr.KindNotFound
	case ExceptionPersistentSubscriptionAlreadyExists:
		domainErr.Kind = esdberr.KindAlreadyExists
	case ExceptionWrongExpectedVersion:
		domainErr.Kind = esdberr.KindWrongExpectedVersion
		domainErr.Expected = trailerValue(trailer, KeyExpectedVersion)
		domainErr.Actual = trailerValue(trailer, KeyActualVersion)
	case ExceptionAccessDenied:
		domainErr.Kind = esdberr.KindAccessDenied
	case ExceptionNotAuthenticated:
		domainErr.Kind = esdberr.KindNotAuthenticated
	case ExceptionNotLeader:
		domainErr.Kind = esdberr.KindNotLeader
		host := trailerValue(trailer, KeyLeaderHost)
		port := trailerValue(trailer, KeyLeaderPort)
		if host != "" {
			domainErr.LeaderEndpoint = net.JoinHostPort(host, port)
		}
	case ExceptionMaximumAppendSizeExceeded:
		domainErr.Kind = esdberr.KindMaximumAppendSizeExceeded
	default:
		domainErr.Kind = esdberr.KindUnknown
		domainErr.Message = fmt.Sprintf("%s: %s", exception, st.Message())
	}
	return domainErr
}

func kindForCode(c codes.Code) esdberr.Kind {
	switch c {
	case codes.NotFound:
		return esdberr.KindNotFound
	case codes.AlreadyExists:
		return esdberr.KindAlreadyExists
	case codes.PermissionDenied:
		return esdberr.KindAccessDenied
	case codes.Unauthenticated:
		return esdberr.KindNotAuthenticated
	default:
		return esdberr.KindUnknown
	}
}

func trailerValue(md metadata.MD, key string) string {
	if v := md.Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}

func alreadyTranslated(err error) bool {
	var (
		buildErr    *esdberr.RequestBuildError
		connErr     *esdberr.ConnectionError
		domainErr   *esdberr.DomainError
		decodeErr   *esdberr.DecodeError
		deadlineErr *esdberr.DeadlineExceededError
	)
	return errors.As(err, &buildErr) ||
		errors.As(err, &connErr) ||
		errors.As(err, &domainErr) ||
		errors.As(err, &decodeErr) ||
		errors.As(err, &deadlineErr) ||
		errors.Is(err, esdberr.ErrSessionClosed)
}

// WrongExpectedVersion converts an in-band append or delete rejection.
func WrongExpectedVersion(op, stream string, w *wire.WrongExpectedVersion) *esdberr.DomainError {
	actual := "no-stream"
	if w.HasCurrentRevision {
		actual = fmt.Sprintf("%d", w.CurrentRevision)
	}
	return &esdberr.DomainError{
		Op:       op,
		Kind:     esdberr.KindWrongExpectedVersion,
		Stream:   stream,
		Expected: ExpectedString(w.Expected),
		Actual:   actual,
	}
}

// ExpectedString renders an expected stream state the way the server does.
func ExpectedString(x wire.Expected) string {
	switch x.Kind {
	case wire.ExpectNoStream:
		return "no-stream"
	case wire.ExpectStreamExists:
		return "stream-exists"
	case wire.ExpectRevision:
		return fmt.Sprintf("%d", x.Revision)
	default:
		return "any"
	}
}
