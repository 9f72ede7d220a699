package main

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rmacdonaldsmith/eventstore-go/internal/memserver"
	"github.com/rmacdonaldsmith/eventstore-go/internal/wire"
	"github.com/rmacdonaldsmith/eventstore-go/pkg/esdbclient"
	"github.com/rmacdonaldsmith/eventstore-go/pkg/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestServerConfig(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("defaults", func(t *testing.T) {
		cfg, err := serverConfig(serverFlags{listen: ":2113", role: "leader"}, logger)
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1:2113", cfg.Advertise)
		assert.Equal(t, wire.StateLeader, cfg.Role)
		assert.Nil(t, cfg.Auth)
	})

	t.Run("follower", func(t *testing.T) {
		cfg, err := serverConfig(serverFlags{listen: "10.0.0.2:2113", role: "Follower", leader: "10.0.0.1:2113"}, logger)
		require.NoError(t, err)
		assert.Equal(t, "10.0.0.2:2113", cfg.Advertise)
		assert.Equal(t, wire.StateFollower, cfg.Role)
	})

	t.Run("follower_without_leader", func(t *testing.T) {
		_, err := serverConfig(serverFlags{listen: ":2113", role: "follower"}, logger)
		assert.Error(t, err)
	})

	t.Run("auth", func(t *testing.T) {
		cfg, err := serverConfig(serverFlags{listen: ":2113", role: "leader", authSecret: "s", users: map[string]string{"admin": "changeit"}}, logger)
		require.NoError(t, err)
		assert.NotNil(t, cfg.Auth)

		_, err = serverConfig(serverFlags{listen: ":2113", role: "leader", authSecret: "s"}, logger)
		assert.Error(t, err)

		_, err = serverConfig(serverFlags{listen: ":2113", role: "leader", users: map[string]string{"admin": "x"}}, logger)
		assert.Error(t, err)
	})

	t.Run("invalid_role", func(t *testing.T) {
		_, err := serverConfig(serverFlags{listen: ":2113", role: "primary"}, logger)
		assert.Error(t, err)
	})
}

func TestNewLogger_File(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "server.log")

	logger, err := newLogger(logOptions{Level: "debug", File: file, MaxSizeMB: 1})
	require.NoError(t, err)
	logger.Info("hello")
	_ = logger.Sync()

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)

	_, err = newLogger(logOptions{Level: "loud"})
	assert.Error(t, err)
}

func TestServe_ClientRoundTripAndShutdown(t *testing.T) {
	logger := zaptest.NewLogger(t)
	srv, err := memserver.New(memserver.Config{Logger: logger})
	require.NoError(t, err)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, logger, srv, srv.NewGRPCServer(), lis) }()

	client, err := esdbclient.NewClient(esdbclient.Config{
		Endpoints: []string{lis.Addr().String()},
		Insecure:  true,
		Logger:    logger,
	})
	require.NoError(t, err)
	defer client.Close()

	sub, err := client.SubscribeToStream(ctx, "orders-1", esdbclient.SubscribeToStreamOptions{})
	require.NoError(t, err)

	_, err = client.AppendToStream(context.Background(), "orders-1", esdbclient.AppendOptions{},
		event.NewJSONEvent("OrderPlaced", []byte(`{}`)))
	require.NoError(t, err)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}

	<-sub.Done()
}
