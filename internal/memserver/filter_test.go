package memserver

import (
	"testing"

	"github.com/rmacdonaldsmith/eventstore-go/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recorded(stream, eventType string) *wire.RecordedEvent {
	return &wire.RecordedEvent{
		StreamName: []byte(stream),
		Metadata:   map[string]string{wire.MetadataType: eventType},
	}
}

func TestFilter_Match(t *testing.T) {
	tests := []struct {
		name  string
		opts  *wire.FilterOptions
		event *wire.RecordedEvent
		want  bool
	}{
		{name: "nil matches", event: recorded("orders-1", "OrderPlaced"), want: true},
		{name: "stream prefix", opts: &wire.FilterOptions{Prefixes: []string{"orders-"}}, event: recorded("orders-1", "x"), want: true},
		{name: "stream prefix miss", opts: &wire.FilterOptions{Prefixes: []string{"orders-"}}, event: recorded("users-1", "x")},
		{name: "any prefix", opts: &wire.FilterOptions{Prefixes: []string{"a", "users-"}}, event: recorded("users-1", "x"), want: true},
		{name: "stream regex", opts: &wire.FilterOptions{Regex: "^orders-[0-9]+$"}, event: recorded("orders-12", "x"), want: true},
		{name: "stream regex miss", opts: &wire.FilterOptions{Regex: "^orders-[0-9]+$"}, event: recorded("orders-x", "x")},
		{name: "event type", opts: &wire.FilterOptions{OnEventType: true, Prefixes: []string{"Order"}}, event: recorded("users-1", "OrderPlaced"), want: true},
		{name: "event type miss", opts: &wire.FilterOptions{OnEventType: true, Prefixes: []string{"Order"}}, event: recorded("orders-1", "UserCreated")},
		{name: "system events by regex", opts: &wire.FilterOptions{OnEventType: true, Regex: "^[^$]"}, event: recorded("orders-1", "$metadata")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := compileFilter(tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.match(tt.event))
		})
	}
}

func TestFilter_CheckpointWindow(t *testing.T) {
	f, err := compileFilter(&wire.FilterOptions{Prefixes: []string{"a"}})
	require.NoError(t, err)
	assert.Equal(t, uint32(defaultCheckpointWindow), f.window)

	f, err = compileFilter(&wire.FilterOptions{Prefixes: []string{"a"}, Max: 10, CheckpointIntervalMultiplier: 3})
	require.NoError(t, err)
	assert.Equal(t, uint32(30), f.window)
}

func TestFilter_InvalidRegex(t *testing.T) {
	_, err := compileFilter(&wire.FilterOptions{Regex: "("})
	assert.Error(t, err)
}
