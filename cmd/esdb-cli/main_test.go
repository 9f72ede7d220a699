package main

import (
	"bytes"
	"net"
	"path/filepath"
	"testing"

	"github.com/rmacdonaldsmith/eventstore-go/internal/memserver"
	"github.com/rmacdonaldsmith/eventstore-go/pkg/event"
	"github.com/rmacdonaldsmith/eventstore-go/pkg/position"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// startServer runs a memserver on a loopback port and returns its
// connection string
func startServer(t *testing.T) string {
	t.Helper()

	srv, err := memserver.New(memserver.Config{Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	grpcServer := srv.NewGRPCServer()
	go func() { _ = grpcServer.Serve(lis) }()
	t.Cleanup(func() {
		_ = srv.Close()
		grpcServer.Stop()
	})

	return "esdb://" + lis.Addr().String() + "?tls=false"
}

func run(t *testing.T, conn string, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--connection", conn}, args...))

	err := cmd.Execute()
	_ = closeClient(cmd, nil)
	return out.String(), err
}

func TestCLI_AppendAndRead(t *testing.T) {
	conn := startServer(t)

	out, err := run(t, conn, "append", "--stream", "orders-1", "--type", "OrderPlaced", "--data", `{"amount":5}`, "--count", "3", "--expected", "no-stream")
	require.NoError(t, err)
	assert.Contains(t, out, "Appended 3 event(s) to 'orders-1'")
	assert.Contains(t, out, "Next expected revision: 2")

	out, err = run(t, conn, "read", "--stream", "orders-1", "--max", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "orders-1@0 OrderPlaced")
	assert.Contains(t, out, "orders-1@1 OrderPlaced")
	assert.NotContains(t, out, "orders-1@2")
	assert.Contains(t, out, "Read 2 event(s)")

	out, err = run(t, conn, "read", "--stream", "orders-1", "--from", "end", "--max", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "orders-1@2 OrderPlaced")

	out, err = run(t, conn, "read", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "Read 3 event(s)")
}

func TestCLI_AppendWrongExpectedVersion(t *testing.T) {
	conn := startServer(t)

	_, err := run(t, conn, "append", "--stream", "orders-1", "--type", "OrderPlaced")
	require.NoError(t, err)

	_, err = run(t, conn, "append", "--stream", "orders-1", "--type", "OrderPlaced", "--expected", "no-stream")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WrongExpectedVersion")
}

func TestCLI_InvalidInput(t *testing.T) {
	conn := startServer(t)

	_, err := run(t, conn, "append", "--stream", "orders-1", "--type", "OrderPlaced", "--data", "{not json")
	assert.Error(t, err)

	_, err = run(t, conn, "read")
	assert.Error(t, err)

	_, err = run(t, conn, "read", "--stream", "orders-1", "--all")
	assert.Error(t, err)

	_, err = run(t, "http://localhost:2113", "gossip")
	assert.Error(t, err)
}

func TestCLI_SubscribeResumesFromCheckpoint(t *testing.T) {
	conn := startServer(t)
	file := filepath.Join(t.TempDir(), "checkpoints.db")

	_, err := run(t, conn, "append", "--stream", "orders-1", "--type", "OrderPlaced", "--count", "3")
	require.NoError(t, err)

	out, err := run(t, conn, "subscribe", "--all", "--checkpoint-file", file, "--max-events", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "orders-1@0")
	assert.Contains(t, out, "orders-1@1")
	assert.Contains(t, out, "Received 2 event(s)")

	out, err = run(t, conn, "subscribe", "--all", "--checkpoint-file", file, "--max-events", "1")
	require.NoError(t, err)
	assert.NotContains(t, out, "orders-1@0")
	assert.Contains(t, out, "orders-1@2")
}

func TestCLI_SubscribeToStream(t *testing.T) {
	conn := startServer(t)

	_, err := run(t, conn, "append", "--stream", "orders-1", "--type", "OrderPlaced", "--count", "2")
	require.NoError(t, err)

	out, err := run(t, conn, "subscribe", "--stream", "orders-1", "--max-events", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "orders-1@1")
	assert.Contains(t, out, "-- caught up --")

	_, err = run(t, conn, "subscribe", "--stream", "orders-1", "--checkpoint-file", "x.db")
	assert.Error(t, err)
}

func TestCLI_Persistent(t *testing.T) {
	conn := startServer(t)

	out, err := run(t, conn, "persistent", "create", "--stream", "orders-1", "--group", "workers")
	require.NoError(t, err)
	assert.Contains(t, out, "Persistent subscription orders-1::workers created")

	_, err = run(t, conn, "persistent", "create", "--stream", "orders-1", "--group", "workers")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AlreadyExists")

	_, err = run(t, conn, "append", "--stream", "orders-1", "--type", "OrderPlaced", "--count", "2")
	require.NoError(t, err)

	out, err = run(t, conn, "persistent", "subscribe", "--stream", "orders-1", "--group", "workers", "--max-events", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "orders-1@0")
	assert.Contains(t, out, "orders-1@1")
	assert.Contains(t, out, "Received 2 event(s)")

	out, err = run(t, conn, "persistent", "delete", "--stream", "orders-1", "--group", "workers")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted")

	_, err = run(t, conn, "persistent", "subscribe", "--stream", "orders-1", "--group", "workers")
	assert.Error(t, err)
}

func TestCLI_DeleteAndGossip(t *testing.T) {
	conn := startServer(t)

	_, err := run(t, conn, "append", "--stream", "orders-1", "--type", "OrderPlaced")
	require.NoError(t, err)

	out, err := run(t, conn, "delete", "--stream", "orders-1", "--tombstone")
	require.NoError(t, err)
	assert.Contains(t, out, "Stream 'orders-1' deleted")

	_, err = run(t, conn, "append", "--stream", "orders-1", "--type", "OrderPlaced")
	assert.Error(t, err)

	out, err = run(t, conn, "gossip")
	require.NoError(t, err)
	assert.Contains(t, out, "127.0.0.1:2113")
	assert.Contains(t, out, "Leader")
}

func TestCommandStructure(t *testing.T) {
	root := newRootCommand()

	expected := []string{"append", "read", "subscribe", "persistent", "delete", "gossip"}
	for _, name := range expected {
		var found *cobra.Command
		for _, c := range root.Commands() {
			if c.Name() == name {
				found = c
			}
		}
		assert.NotNil(t, found, "command %s should exist", name)
	}

	for _, flag := range []string{"connection", "username", "password", "token", "timeout", "verbose"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), "flag %s should exist", flag)
	}
}

func TestParseRevision(t *testing.T) {
	c, err := parseRevision("start", false)
	require.NoError(t, err)
	assert.True(t, c.IsStart())

	c, err = parseRevision("END", false)
	require.NoError(t, err)
	assert.True(t, c.IsEnd())

	c, err = parseRevision("7", true)
	require.NoError(t, err)
	v, ok := c.Value()
	require.True(t, ok)
	assert.Equal(t, position.Revision(7), v)
	d, _ := c.Direction()
	assert.Equal(t, position.Backwards, d)

	_, err = parseRevision("seven", false)
	assert.Error(t, err)
}

func TestParsePosition(t *testing.T) {
	c, err := parsePosition("12/10", false)
	require.NoError(t, err)
	v, ok := c.Value()
	require.True(t, ok)
	assert.Equal(t, position.New(12, 10), v)

	c, err = parsePosition("5", false)
	require.NoError(t, err)
	v, _ = c.Value()
	assert.Equal(t, position.New(5, 5), v)

	_, err = parsePosition("5/x", false)
	assert.Error(t, err)
}

func TestParseExpected(t *testing.T) {
	tests := []struct {
		input string
		want  event.ExpectedState
	}{
		{"any", event.Any()},
		{"no-stream", event.NoStream()},
		{"stream-exists", event.StreamExists()},
		{"3", event.Exactly(3)},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseExpected(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := parseExpected("maybe")
	assert.Error(t, err)

	_, err = parseNackAction("drop")
	assert.Error(t, err)
}
