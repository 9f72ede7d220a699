package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rmacdonaldsmith/eventstore-go/pkg/esdbclient"
	"github.com/rmacdonaldsmith/eventstore-go/pkg/event"
	"github.com/rmacdonaldsmith/eventstore-go/pkg/position"
)

// parseRevision parses "start", "end" or a stream revision.
func parseRevision(s string, backwards bool) (position.Cursor[position.Revision], error) {
	switch strings.ToLower(s) {
	case "", "start":
		return position.Start[position.Revision](), nil
	case "end":
		return position.End[position.Revision](), nil
	}

	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return position.Cursor[position.Revision]{}, fmt.Errorf("invalid revision %q", s)
	}
	return position.At(position.Revision(n), direction(backwards)), nil
}

// parsePosition parses "start", "end" or a "commit/prepare" log position.
// A single number is used for both offsets.
func parsePosition(s string, backwards bool) (position.Cursor[position.Position], error) {
	switch strings.ToLower(s) {
	case "", "start":
		return position.Start[position.Position](), nil
	case "end":
		return position.End[position.Position](), nil
	}

	commitStr, prepareStr, found := strings.Cut(s, "/")
	commit, err := strconv.ParseUint(commitStr, 10, 64)
	if err != nil {
		return position.Cursor[position.Position]{}, fmt.Errorf("invalid position %q", s)
	}
	prepare := commit
	if found {
		prepare, err = strconv.ParseUint(prepareStr, 10, 64)
		if err != nil {
			return position.Cursor[position.Position]{}, fmt.Errorf("invalid position %q", s)
		}
	}
	return position.At(position.New(commit, prepare), direction(backwards)), nil
}

func direction(backwards bool) position.Direction {
	if backwards {
		return position.Backwards
	}
	return position.Forwards
}

// parseExpected parses "any", "no-stream", "stream-exists" or a revision.
func parseExpected(s string) (event.ExpectedState, error) {
	switch strings.ToLower(s) {
	case "", "any":
		return event.Any(), nil
	case "no-stream":
		return event.NoStream(), nil
	case "stream-exists":
		return event.StreamExists(), nil
	}

	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return event.ExpectedState{}, fmt.Errorf("invalid expected state %q", s)
	}
	return event.Exactly(position.Revision(n)), nil
}

func parseNackAction(s string) (esdbclient.NackAction, error) {
	switch strings.ToLower(s) {
	case "retry":
		return esdbclient.NackRetry, nil
	case "skip":
		return esdbclient.NackSkip, nil
	case "park":
		return esdbclient.NackPark, nil
	case "stop":
		return esdbclient.NackStop, nil
	default:
		return 0, fmt.Errorf("invalid nack action %q", s)
	}
}
