package selector

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rmacdonaldsmith/eventstore-go/pkg/esdberr"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

// ErrClosed is returned after the selector has been closed
var ErrClosed = errors.New("selector is closed")

// Transport is a leased connection to a selected node. The connection is
// shared and owned by the Selector; callers must not close it and must call
// Release once the operation that used it has ended.
type Transport struct {
	Endpoint string
	Conn     *grpc.ClientConn

	release func()
}

// Release returns the lease. A forgotten connection is closed when its last
// lease is returned. Release is idempotent.
func (t *Transport) Release() {
	if t.release != nil {
		t.release()
	}
}

// entry is a cached connection and the number of live leases on it.
type entry struct {
	endpoint string
	conn     *grpc.ClientConn
	leases   int
	retired  bool
	closed   bool
}

// Selector selects nodes and caches one connection per endpoint. It is safe
// for concurrent use.
type Selector struct {
	cfg       Config
	discovery Discovery
	logger    *zap.Logger

	mu      sync.Mutex
	conns   map[string]*entry
	retired map[*entry]struct{}
	leader  string
	closed  bool
}

// New creates a Selector from cfg.
func New(cfg Config) (*Selector, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid selector config: %w", err)
	}

	s := &Selector{
		cfg:    cfg,
		logger:  cfg.Logger.Named("selector"),
		conns:   make(map[string]*entry),
		retired: make(map[*entry]struct{}),
	}

	switch cfg.Mode {
	case Gossip:
		s.discovery = NewGossipDiscovery(cfg.Endpoints, s, cfg.GossipTimeout, s.logger)
	default:
		s.discovery = NewStaticDiscovery(cfg.Endpoints)
	}
	return s, nil
}

// NewWithDiscovery creates a Selector that takes candidates from d instead
// of cfg.Endpoints.
func NewWithDiscovery(cfg Config, d Discovery) (*Selector, error) {
	cfg.SetDefaults()
	s := &Selector{
		cfg:       cfg,
		discovery: d,
		logger:    cfg.Logger.Named("selector"),
		conns:     make(map[string]*entry),
		retired:   make(map[*entry]struct{}),
	}
	return s, nil
}

// AcquireTransport returns a connection to the best node for role. Discovery
// is retried with exponential backoff up to MaxDiscoverAttempts times. All
// failures are *esdberr.ConnectionError.
func (s *Selector) AcquireTransport(ctx context.Context, role Role) (*Transport, error) {
	if hint := s.leaderHint(); hint != "" && (role == Leader || role == Any) {
		s.logger.Debug("using reported leader", zap.String("endpoint", hint))
		return s.transport(hint)
	}

	delay := s.cfg.DiscoveryInterval
	var lastErr error

	for attempt := 1; attempt <= s.cfg.MaxDiscoverAttempts; attempt++ {
		candidates, err := s.discovery.Candidates(ctx)
		if err == nil {
			if ranked := Rank(candidates, role); len(ranked) > 0 {
				t, err := s.transport(ranked[0].Endpoint)
				if err == nil {
					s.logger.Info("node selected",
						zap.String("endpoint", t.Endpoint),
						zap.Stringer("role", role),
						zap.Int("attempt", attempt))
				}
				return t, err
			}
			err = ErrNoCandidates
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &esdberr.ConnectionError{Err: ctxErr}
		}
		lastErr = err
		s.logger.Warn("node discovery failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", s.cfg.MaxDiscoverAttempts),
			zap.Error(err))

		if attempt == s.cfg.MaxDiscoverAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, &esdberr.ConnectionError{Err: ctx.Err()}
		case <-time.After(delay):
			delay = min(delay*2, s.cfg.MaxDiscoveryDelay)
		}
	}

	return nil, &esdberr.ConnectionError{
		Err: fmt.Errorf("no node found after %d attempts: %w", s.cfg.MaxDiscoverAttempts, lastErr),
	}
}

// ReportNotLeader records the leader endpoint a node reported. Subsequent
// Leader and Any acquisitions go straight to it.
func (s *Selector) ReportNotLeader(leaderEndpoint string) {
	if leaderEndpoint == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.leader = leaderEndpoint
	s.logger.Info("leader reported", zap.String("endpoint", leaderEndpoint))
}

// Forget drops the cached connection to endpoint, and the leader hint if it
// points there. Calls still running on the connection are left alone; it is
// closed once the last of them releases its Transport.
func (s *Selector) Forget(endpoint string) {
	s.mu.Lock()
	e := s.conns[endpoint]
	delete(s.conns, endpoint)
	if s.leader == endpoint {
		s.leader = ""
	}
	idle := e != nil && e.leases == 0
	if e != nil && !idle {
		e.retired = true
		s.retired[e] = struct{}{}
	}
	s.mu.Unlock()

	if idle {
		s.closeEntry(e)
	}
}

// Conn returns the shared connection to endpoint, creating it on first use.
// The returned func releases the lease.
func (s *Selector) Conn(endpoint string) (grpc.ClientConnInterface, func(), error) {
	t, err := s.transport(endpoint)
	if err != nil {
		return nil, func() {}, err
	}
	return t.Conn, t.Release, nil
}

// Close closes every connection, leased or not. It is idempotent.
func (s *Selector) Close() error {
	s.mu.Lock()
	entries := make([]*entry, 0, len(s.conns)+len(s.retired))
	for _, e := range s.conns {
		entries = append(entries, e)
	}
	for e := range s.retired {
		entries = append(entries, e)
	}
	for _, e := range entries {
		e.closed = true
	}
	s.conns = make(map[string]*entry)
	s.retired = make(map[*entry]struct{})
	s.closed = true
	s.mu.Unlock()

	var errs []error
	for _, e := range entries {
		if err := e.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.endpoint, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Selector) unlease(e *entry) {
	s.mu.Lock()
	e.leases--
	idle := e.retired && !e.closed && e.leases == 0
	if idle {
		delete(s.retired, e)
		e.closed = true
	}
	s.mu.Unlock()

	if idle {
		s.closeEntry(e)
	}
}

func (s *Selector) closeEntry(e *entry) {
	if err := e.conn.Close(); err != nil {
		s.logger.Debug("closing connection", zap.String("endpoint", e.endpoint), zap.Error(err))
	}
}

func (s *Selector) leaderHint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leader
}

func (s *Selector) transport(endpoint string) (*Transport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, &esdberr.ConnectionError{Endpoint: endpoint, Err: ErrClosed}
	}
	e, ok := s.conns[endpoint]
	if !ok {
		conn, err := grpc.NewClient(endpoint, s.dialOptions()...)
		if err != nil {
			return nil, &esdberr.ConnectionError{Endpoint: endpoint, Err: err}
		}
		e = &entry{endpoint: endpoint, conn: conn}
		s.conns[endpoint] = e
	}
	e.leases++

	var once sync.Once
	release := func() { once.Do(func() { s.unlease(e) }) }
	return &Transport{Endpoint: endpoint, Conn: e.conn, release: release}, nil
}

func (s *Selector) dialOptions() []grpc.DialOption {
	creds := insecure.NewCredentials()
	if !s.cfg.Insecure {
		tlsConfig := s.cfg.TLS
		if tlsConfig == nil {
			tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		creds = credentials.NewTLS(tlsConfig)
	}

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:    s.cfg.KeepAliveInterval,
			Timeout: s.cfg.KeepAliveTimeout,
		}),
	}
	return append(opts, s.cfg.DialOptions...)
}
