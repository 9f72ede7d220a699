package selector

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rmacdonaldsmith/eventstore-go/internal/wire"
	"github.com/rmacdonaldsmith/eventstore-go/pkg/esdberr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/status"
)

func TestStaticDiscovery_Candidates(t *testing.T) {
	d := NewStaticDiscovery([]string{"node1:2113", "node2:2113"})

	candidates, err := d.Candidates(context.Background())
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "node1:2113", candidates[0].Endpoint)
	assert.Equal(t, "node2:2113", candidates[1].Endpoint)
	assert.True(t, candidates[0].Alive)
	assert.False(t, candidates[0].Known)
}

func TestStaticDiscovery_EmptyEndpoints(t *testing.T) {
	candidates, err := NewStaticDiscovery(nil).Candidates(context.Background())
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestDiscovery_InterfaceCompliance(t *testing.T) {
	var _ Discovery = (*StaticDiscovery)(nil)
	var _ Discovery = (*GossipDiscovery)(nil)
	var _ ConnProvider = (*Selector)(nil)
}

func known(endpoint string, state wire.VNodeState, alive bool) Candidate {
	return Candidate{Endpoint: endpoint, State: state, Known: true, Alive: alive}
}

func endpoints(cs []Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Endpoint
	}
	return out
}

func TestRank(t *testing.T) {
	cluster := []Candidate{
		known("follower:1", wire.StateFollower, true),
		known("replica:1", wire.StateReadOnlyReplica, true),
		known("leader:1", wire.StateLeader, true),
		known("dead-leader:1", wire.StateLeader, false),
		known("catching-up:1", wire.StateCatchingUp, true),
	}

	tests := []struct {
		role Role
		want []string
	}{
		{Leader, []string{"leader:1", "follower:1", "replica:1"}},
		{Follower, []string{"follower:1", "leader:1", "replica:1"}},
		{ReadOnlyReplica, []string{"replica:1", "follower:1", "leader:1"}},
		{Any, []string{"follower:1", "replica:1", "leader:1"}},
	}

	for _, tt := range tests {
		t.Run(tt.role.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, endpoints(Rank(cluster, tt.role)))
		})
	}
}

func TestRank_UnknownStateKeepsOrderAfterKnown(t *testing.T) {
	cs := []Candidate{
		{Endpoint: "b:1", Alive: true},
		{Endpoint: "a:1", Alive: true},
		known("leader:1", wire.StateLeader, true),
	}
	assert.Equal(t, []string{"leader:1", "b:1", "a:1"}, endpoints(Rank(cs, Leader)))
}

func TestParseRole(t *testing.T) {
	r, ok := ParseRole("follower")
	assert.True(t, ok)
	assert.Equal(t, Follower, r)

	_, ok = ParseRole("primary")
	assert.False(t, ok)
}

func TestConfig_Validate(t *testing.T) {
	cfg := Config{}
	assert.ErrorIs(t, cfg.Validate(), ErrNoEndpoints)

	cfg = Config{Endpoints: []string{"a:1"}, Mode: Mode(7)}
	assert.ErrorIs(t, cfg.Validate(), ErrUnknownMode)

	cfg = Config{Endpoints: []string{""}}
	assert.Error(t, cfg.Validate())

	cfg = Config{Endpoints: []string{"a:1"}}
	cfg.SetDefaults()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 10, cfg.MaxDiscoverAttempts)
	assert.NotNil(t, cfg.Logger)
}

// scriptedDiscovery returns errors for the first failures calls, then
// candidates.
type scriptedDiscovery struct {
	failures   int32
	calls      atomic.Int32
	candidates []Candidate
}

func (d *scriptedDiscovery) Candidates(ctx context.Context) ([]Candidate, error) {
	if d.calls.Add(1) <= d.failures {
		return nil, errors.New("seed unreachable")
	}
	return d.candidates, nil
}

func testConfig(t *testing.T) Config {
	return Config{
		Endpoints:           []string{"unused:1"},
		Insecure:            true,
		MaxDiscoverAttempts: 3,
		DiscoveryInterval:   time.Millisecond,
		Logger:              zaptest.NewLogger(t),
	}
}

func TestAcquireTransport_RetriesThenSelects(t *testing.T) {
	d := &scriptedDiscovery{failures: 2, candidates: []Candidate{
		known("10.0.0.2:2113", wire.StateFollower, true),
		known("10.0.0.1:2113", wire.StateLeader, true),
	}}
	s, err := NewWithDiscovery(testConfig(t), d)
	require.NoError(t, err)
	defer s.Close()

	tr, err := s.AcquireTransport(context.Background(), Leader)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:2113", tr.Endpoint)
	assert.Equal(t, int32(3), d.calls.Load())
}

func TestAcquireTransport_GivesUp(t *testing.T) {
	d := &scriptedDiscovery{failures: 100}
	s, err := NewWithDiscovery(testConfig(t), d)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.AcquireTransport(context.Background(), Any)

	var connErr *esdberr.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Contains(t, err.Error(), "3 attempts")
	assert.Equal(t, int32(3), d.calls.Load())
}

func TestAcquireTransport_NoUsableCandidate(t *testing.T) {
	d := &scriptedDiscovery{candidates: []Candidate{known("10.0.0.1:2113", wire.StateLeader, false)}}
	s, err := NewWithDiscovery(testConfig(t), d)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.AcquireTransport(context.Background(), Leader)
	assert.ErrorIs(t, err, ErrNoCandidates)
}

func TestAcquireTransport_Canceled(t *testing.T) {
	d := &scriptedDiscovery{failures: 100}
	cfg := testConfig(t)
	cfg.DiscoveryInterval = time.Hour
	s, err := NewWithDiscovery(cfg, d)
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = s.AcquireTransport(ctx, Any)
	var connErr *esdberr.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAcquireTransport_SharesConnections(t *testing.T) {
	d := &scriptedDiscovery{candidates: []Candidate{{Endpoint: "10.0.0.1:2113", Alive: true}}}
	s, err := NewWithDiscovery(testConfig(t), d)
	require.NoError(t, err)
	defer s.Close()

	a, err := s.AcquireTransport(context.Background(), Any)
	require.NoError(t, err)
	b, err := s.AcquireTransport(context.Background(), Any)
	require.NoError(t, err)
	assert.Same(t, a.Conn, b.Conn)

	s.Forget("10.0.0.1:2113")
	c, err := s.AcquireTransport(context.Background(), Any)
	require.NoError(t, err)
	assert.NotSame(t, a.Conn, c.Conn)
}

func TestForget_KeepsLeasedConnectionOpen(t *testing.T) {
	d := &scriptedDiscovery{candidates: []Candidate{{Endpoint: "10.0.0.1:2113", Alive: true}}}
	s, err := NewWithDiscovery(testConfig(t), d)
	require.NoError(t, err)
	defer s.Close()

	live, err := s.AcquireTransport(context.Background(), Any)
	require.NoError(t, err)
	idle, err := s.AcquireTransport(context.Background(), Any)
	require.NoError(t, err)
	idle.Release()

	s.Forget("10.0.0.1:2113")
	assert.NotEqual(t, connectivity.Shutdown, live.Conn.GetState(), "a running call keeps its connection")

	live.Release()
	live.Release()
	assert.Equal(t, connectivity.Shutdown, live.Conn.GetState())
}

func TestForget_ClosesIdleConnection(t *testing.T) {
	d := &scriptedDiscovery{candidates: []Candidate{{Endpoint: "10.0.0.1:2113", Alive: true}}}
	s, err := NewWithDiscovery(testConfig(t), d)
	require.NoError(t, err)
	defer s.Close()

	tr, err := s.AcquireTransport(context.Background(), Any)
	require.NoError(t, err)
	tr.Release()

	s.Forget("10.0.0.1:2113")
	assert.Equal(t, connectivity.Shutdown, tr.Conn.GetState())
}

func TestSelector_CloseEndsLeasedConnections(t *testing.T) {
	d := &scriptedDiscovery{candidates: []Candidate{{Endpoint: "10.0.0.1:2113", Alive: true}}}
	s, err := NewWithDiscovery(testConfig(t), d)
	require.NoError(t, err)

	tr, err := s.AcquireTransport(context.Background(), Any)
	require.NoError(t, err)
	s.Forget("10.0.0.1:2113")

	require.NoError(t, s.Close())
	assert.Equal(t, connectivity.Shutdown, tr.Conn.GetState())
	tr.Release()
}

func TestAcquireTransport_PrefersReportedLeader(t *testing.T) {
	d := &scriptedDiscovery{candidates: []Candidate{{Endpoint: "10.0.0.2:2113", Alive: true}}}
	s, err := NewWithDiscovery(testConfig(t), d)
	require.NoError(t, err)
	defer s.Close()

	s.ReportNotLeader("10.0.0.9:2113")

	tr, err := s.AcquireTransport(context.Background(), Leader)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.9:2113", tr.Endpoint)
	assert.Equal(t, int32(0), d.calls.Load(), "discovery is skipped")

	tr, err = s.AcquireTransport(context.Background(), Follower)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2:2113", tr.Endpoint)

	s.Forget("10.0.0.9:2113")
	tr, err = s.AcquireTransport(context.Background(), Leader)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2:2113", tr.Endpoint)
}

func TestSelector_Closed(t *testing.T) {
	d := &scriptedDiscovery{candidates: []Candidate{{Endpoint: "10.0.0.1:2113", Alive: true}}}
	s, err := NewWithDiscovery(testConfig(t), d)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.AcquireTransport(context.Background(), Any)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNoEndpoints)
}

// gossipConns serves ClusterInfo per seed; seeds without an entry are unavailable.
type gossipConns struct {
	mu    sync.Mutex
	views map[string]*wire.ClusterInfo
	asked []string
}

func (g *gossipConns) Conn(endpoint string) (grpc.ClientConnInterface, func(), error) {
	return &gossipConn{parent: g, endpoint: endpoint}, func() {}, nil
}

type gossipConn struct {
	parent   *gossipConns
	endpoint string
}

func (c *gossipConn) Invoke(ctx context.Context, method string, args, reply any, opts ...grpc.CallOption) error {
	c.parent.mu.Lock()
	c.parent.asked = append(c.parent.asked, c.endpoint)
	view := c.parent.views[c.endpoint]
	c.parent.mu.Unlock()

	if method != wire.MethodGossipRead {
		return status.Error(codes.Unimplemented, method)
	}
	if view == nil {
		return status.Error(codes.Unavailable, "connection refused")
	}
	data, err := view.Marshal()
	if err != nil {
		return err
	}
	return reply.(wire.Message).Unmarshal(data)
}

func (c *gossipConn) NewStream(context.Context, *grpc.StreamDesc, string, ...grpc.CallOption) (grpc.ClientStream, error) {
	return nil, status.Error(codes.Unimplemented, "streams")
}

func TestGossipDiscovery_FirstAnsweringSeed(t *testing.T) {
	conns := &gossipConns{views: map[string]*wire.ClusterInfo{
		"seed2:2113": {Members: []wire.MemberInfo{
			{InstanceID: wire.UUID{Value: uuid.New()}, State: wire.StateLeader, IsAlive: true, Address: "10.0.0.1", Port: 2113},
			{InstanceID: wire.UUID{Value: uuid.New()}, State: wire.StateFollower, IsAlive: true, Address: "10.0.0.2", Port: 2113},
		}},
	}}
	g := NewGossipDiscovery([]string{"seed1:2113", "seed2:2113"}, conns, time.Second, zaptest.NewLogger(t))

	candidates, err := g.Candidates(context.Background())
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "10.0.0.1:2113", candidates[0].Endpoint)
	assert.True(t, candidates[0].Known)
	assert.Equal(t, wire.StateLeader, candidates[0].State)

	assert.Equal(t, "10.0.0.1:2113", Rank(candidates, Leader)[0].Endpoint)
}

func TestGossipDiscovery_AllSeedsFail(t *testing.T) {
	conns := &gossipConns{views: map[string]*wire.ClusterInfo{
		"seed2:2113": {},
	}}
	g := NewGossipDiscovery([]string{"seed1:2113", "seed2:2113"}, conns, time.Second, nil)

	_, err := g.Candidates(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seed1:2113")
	assert.ErrorIs(t, err, ErrNoCandidates)
}
