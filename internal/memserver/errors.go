package memserver

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rmacdonaldsmith/eventstore-go/internal/translate"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

var (
	errGroupNotFound      = errors.New("persistent subscription does not exist")
	errGroupExists        = errors.New("persistent subscription already exists")
	errTooManySubscribers = errors.New("maximum subscriber count reached")
	errAppendTooLarge     = errors.New("maximum append size exceeded")
	errNotLeader          = errors.New("not leader")
)

// subjectError names the stream and group an error is about.
type subjectError struct {
	stream string
	group  string
	err    error
}

func (e *subjectError) Error() string {
	if e.group != "" {
		return fmt.Sprintf("%s::%s: %v", e.stream, e.group, e.err)
	}
	return fmt.Sprintf("%s: %v", e.stream, e.err)
}

func (e *subjectError) Unwrap() error { return e.err }

func about(stream, group string, err error) error {
	if err == nil {
		return nil
	}
	return &subjectError{stream: stream, group: group, err: err}
}

// toStatus maps an internal error to the status and trailer the client
// understands.
func (s *Server) toStatus(err error) (metadata.MD, error) {
	var (
		subject *subjectError
		wev     *WrongExpectedVersionError
		md      = metadata.MD{}
	)
	if errors.As(err, &subject) {
		if subject.stream != "" {
			md.Set(translate.KeyStreamName, subject.stream)
		}
		if subject.group != "" {
			md.Set(translate.KeyGroupName, subject.group)
		}
	}

	exception := func(code codes.Code, name string) (metadata.MD, error) {
		md.Set(translate.KeyException, name)
		return md, status.Error(code, err.Error())
	}

	switch {
	case errors.As(err, &wev):
		md.Set(translate.KeyStreamName, wev.Stream)
		md.Set(translate.KeyExpectedVersion, translate.ExpectedString(wev.Expected))
		actual := "no-stream"
		if wev.HasCurrent {
			actual = strconv.FormatUint(wev.Current, 10)
		}
		md.Set(translate.KeyActualVersion, actual)
		return exception(codes.FailedPrecondition, translate.ExceptionWrongExpectedVersion)
	case errors.Is(err, ErrStreamNotFound):
		return exception(codes.NotFound, translate.ExceptionStreamNotFound)
	case errors.Is(err, ErrStreamDeleted):
		return exception(codes.FailedPrecondition, translate.ExceptionStreamDeleted)
	case errors.Is(err, errGroupNotFound):
		return exception(codes.NotFound, translate.ExceptionPersistentSubscriptionDoesNotExist)
	case errors.Is(err, errGroupExists):
		return exception(codes.AlreadyExists, translate.ExceptionPersistentSubscriptionAlreadyExists)
	case errors.Is(err, errAppendTooLarge):
		return exception(codes.InvalidArgument, translate.ExceptionMaximumAppendSizeExceeded)
	case errors.Is(err, errNotLeader):
		host, port, _ := splitEndpoint(s.cfg.LeaderEndpoint)
		md.Set(translate.KeyLeaderHost, host)
		md.Set(translate.KeyLeaderPort, strconv.FormatUint(uint64(port), 10))
		return exception(codes.FailedPrecondition, translate.ExceptionNotLeader)
	case errors.Is(err, errTooManySubscribers):
		return nil, status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, ErrLogClosed):
		return nil, status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, status.FromContextError(err).Err()
	}

	if _, ok := status.FromError(err); ok {
		return nil, err
	}
	return nil, status.Error(codes.Internal, err.Error())
}

func (s *Server) unaryError(ctx context.Context, err error) error {
	md, st := s.toStatus(err)
	if len(md) > 0 {
		if serr := grpc.SetTrailer(ctx, md); serr != nil {
			s.logger.Debug("setting trailer", zap.Error(serr))
		}
	}
	return st
}

func (s *Server) streamError(stream grpc.ServerStream, err error) error {
	md, st := s.toStatus(err)
	if len(md) > 0 {
		stream.SetTrailer(md)
	}
	return st
}
