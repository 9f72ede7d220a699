package esdberr

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions. DomainError values match the
// sentinel of their Kind with errors.Is.
var (
	// ErrSessionClosed is returned when an operation targets a terminated subscription session.
	ErrSessionClosed = errors.New("esdb: session closed")

	// ErrDeadlineExceeded matches every DeadlineExceededError.
	ErrDeadlineExceeded = errors.New("esdb: deadline exceeded")

	ErrNotFound                  = errors.New("esdb: not found")
	ErrStreamDeleted             = errors.New("esdb: stream deleted")
	ErrWrongExpectedVersion      = errors.New("esdb: wrong expected version")
	ErrAccessDenied              = errors.New("esdb: access denied")
	ErrNotAuthenticated          = errors.New("esdb: not authenticated")
	ErrAlreadyExists             = errors.New("esdb: already exists")
	ErrNotLeader                 = errors.New("esdb: not leader")
	ErrMaximumAppendSizeExceeded = errors.New("esdb: maximum append size exceeded")
)

// Kind classifies a server-reported business-rule violation.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindStreamDeleted
	KindWrongExpectedVersion
	KindAccessDenied
	KindNotAuthenticated
	KindAlreadyExists
	KindNotLeader
	KindMaximumAppendSizeExceeded
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindStreamDeleted:
		return "StreamDeleted"
	case KindWrongExpectedVersion:
		return "WrongExpectedVersion"
	case KindAccessDenied:
		return "AccessDenied"
	case KindNotAuthenticated:
		return "NotAuthenticated"
	case KindAlreadyExists:
		return "AlreadyExists"
	case KindNotLeader:
		return "NotLeader"
	case KindMaximumAppendSizeExceeded:
		return "MaximumAppendSizeExceeded"
	default:
		return "Unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindNotFound:
		return ErrNotFound
	case KindStreamDeleted:
		return ErrStreamDeleted
	case KindWrongExpectedVersion:
		return ErrWrongExpectedVersion
	case KindAccessDenied:
		return ErrAccessDenied
	case KindNotAuthenticated:
		return ErrNotAuthenticated
	case KindAlreadyExists:
		return ErrAlreadyExists
	case KindNotLeader:
		return ErrNotLeader
	case KindMaximumAppendSizeExceeded:
		return ErrMaximumAppendSizeExceeded
	default:
		return nil
	}
}

// RequestBuildError reports input that cannot be encoded into a request.
// It is always raised before anything is sent to the server.
type RequestBuildError struct {
	// Op is the operation whose request could not be built
	Op string

	// Field names the offending input
	Field string

	// Err is the underlying error
	Err error
}

func (e *RequestBuildError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("esdb: invalid %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("esdb: %s: invalid %s: %v", e.Op, e.Field, e.Err)
}

func (e *RequestBuildError) Unwrap() error {
	return e.Err
}

// ConnectionError reports that no node could be reached or the transport
// could not be set up.
type ConnectionError struct {
	// Endpoint is the node address involved, if known
	Endpoint string

	Err error
}

func (e *ConnectionError) Error() string {
	if e.Endpoint == "" {
		return fmt.Sprintf("esdb: connection failed: %v", e.Err)
	}
	return fmt.Sprintf("esdb: connection to %s failed: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// DomainError is a business-rule violation reported by the server. Callers
// branch on Kind or use errors.Is with the matching sentinel.
type DomainError struct {
	Op   string
	Kind Kind

	// Stream is the stream the server reported on, when present
	Stream string

	// Expected and Actual describe a wrong-expected-version failure.
	// They hold the server's textual rendering ("any", "no-stream", "12", ...).
	Expected string
	Actual   string

	// LeaderEndpoint is set for KindNotLeader, in "host:port" form
	LeaderEndpoint string

	// Code is the transport status code name and Message its text, kept for KindUnknown
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	msg := fmt.Sprintf("esdb: %s: %s", e.Op, e.Kind)
	if e.Stream != "" {
		msg += fmt.Sprintf(" (stream %q)", e.Stream)
	}
	switch e.Kind {
	case KindWrongExpectedVersion:
		msg += fmt.Sprintf(": expected %s, actual %s", e.Expected, e.Actual)
	case KindNotLeader:
		msg += fmt.Sprintf(": leader is %s", e.LeaderEndpoint)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Is matches the sentinel of the error's Kind.
func (e *DomainError) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && s == target
}

// DecodeError reports a malformed server payload. It is fatal to the
// current call only.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("esdb: %s: malformed server message: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// DeadlineExceededError reports that an operation ran past its deadline.
type DeadlineExceededError struct {
	Op  string
	Err error
}

func (e *DeadlineExceededError) Error() string {
	return fmt.Sprintf("esdb: %s: deadline exceeded", e.Op)
}

func (e *DeadlineExceededError) Unwrap() error {
	return e.Err
}

// Is matches ErrDeadlineExceeded.
func (e *DeadlineExceededError) Is(target error) bool {
	return target == ErrDeadlineExceeded
}
