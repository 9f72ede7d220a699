package event

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/rmacdonaldsmith/eventstore-go/pkg/esdberr"
)

var (
	// ErrEmptyStreamName is returned when a stream name is empty
	ErrEmptyStreamName = errors.New("stream name cannot be empty")
	// ErrInvalidEncoding is returned when a stream name is not valid in its encoding
	ErrInvalidEncoding = errors.New("stream name is not valid in its encoding")
)

// Encoding is the byte encoding used to send a stream name.
type Encoding int

const (
	// UTF8 is the default stream name encoding
	UTF8 Encoding = iota

	// ASCII restricts stream names to 7-bit characters
	ASCII
)

func (e Encoding) String() string {
	switch e {
	case UTF8:
		return "UTF-8"
	case ASCII:
		return "ASCII"
	default:
		return "Unknown"
	}
}

// StreamIdentifier is an encoded stream name. Two identifiers are equal when
// both name and encoding are equal, so the type can be compared with == and
// used as a map key.
type StreamIdentifier struct {
	name     string
	encoding Encoding
}

// NewStreamIdentifier creates a UTF-8 stream identifier, validating the name.
func NewStreamIdentifier(name string) (StreamIdentifier, error) {
	return NewStreamIdentifierWithEncoding(name, UTF8)
}

// NewStreamIdentifierWithEncoding creates a stream identifier with an explicit encoding.
func NewStreamIdentifierWithEncoding(name string, encoding Encoding) (StreamIdentifier, error) {
	id := StreamIdentifier{name: name, encoding: encoding}
	if _, err := id.Bytes(); err != nil {
		return StreamIdentifier{}, err
	}
	return id, nil
}

// Name returns the stream name.
func (s StreamIdentifier) Name() string {
	return s.name
}

// Encoding returns the encoding used on the wire.
func (s StreamIdentifier) Encoding() Encoding {
	return s.encoding
}

// Bytes returns the encoded stream name. It fails with a RequestBuildError
// instead of dropping or replacing characters the encoding cannot represent.
func (s StreamIdentifier) Bytes() ([]byte, error) {
	if s.name == "" {
		return nil, &esdberr.RequestBuildError{Field: "stream", Err: ErrEmptyStreamName}
	}

	switch s.encoding {
	case UTF8:
		if !utf8.ValidString(s.name) {
			return nil, &esdberr.RequestBuildError{Field: "stream", Err: fmt.Errorf("%w: %s", ErrInvalidEncoding, s.encoding)}
		}
	case ASCII:
		for i := 0; i < len(s.name); i++ {
			if s.name[i] >= utf8.RuneSelf {
				return nil, &esdberr.RequestBuildError{Field: "stream", Err: fmt.Errorf("%w: %s", ErrInvalidEncoding, s.encoding)}
			}
		}
	default:
		return nil, &esdberr.RequestBuildError{Field: "stream", Err: fmt.Errorf("%w: unsupported encoding %d", ErrInvalidEncoding, int(s.encoding))}
	}

	return []byte(s.name), nil
}

func (s StreamIdentifier) String() string {
	return s.name
}
