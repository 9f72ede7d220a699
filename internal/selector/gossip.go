package selector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rmacdonaldsmith/eventstore-go/internal/operation"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

// ErrNoCandidates is returned when discovery finds no usable node
var ErrNoCandidates = errors.New("no candidate nodes")

var errAnswered = errors.New("gossip answered")

// ConnProvider hands out connections by endpoint. The returned func is
// called once the connection is no longer needed.
type ConnProvider interface {
	Conn(endpoint string) (grpc.ClientConnInterface, func(), error)
}

// GossipDiscovery asks seed nodes for the cluster view. All seeds are
// queried concurrently and the first member list received wins.
type GossipDiscovery struct {
	seeds   []string
	conns   ConnProvider
	timeout time.Duration
	logger  *zap.Logger
}

// NewGossipDiscovery creates a gossip discovery over seeds.
func NewGossipDiscovery(seeds []string, conns ConnProvider, timeout time.Duration, logger *zap.Logger) *GossipDiscovery {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GossipDiscovery{
		seeds:   append([]string(nil), seeds...),
		conns:   conns,
		timeout: timeout,
		logger:  logger,
	}
}

func (g *GossipDiscovery) Candidates(ctx context.Context) ([]Candidate, error) {
	var (
		mu       sync.Mutex
		answered []Candidate
		errs     = make([]error, len(g.seeds))
	)

	grp, gctx := errgroup.WithContext(ctx)
	for i, seed := range g.seeds {
		grp.Go(func() error {
			members, err := g.read(gctx, seed)
			if err != nil {
				errs[i] = fmt.Errorf("seed %s: %w", seed, err)
				g.logger.Debug("gossip seed failed", zap.String("endpoint", seed), zap.Error(err))
				return nil
			}
			if len(members) == 0 {
				errs[i] = fmt.Errorf("seed %s: %w", seed, ErrNoCandidates)
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			if answered == nil {
				answered = toCandidates(members)
			}
			// stops the remaining seeds
			return errAnswered
		})
	}
	_ = grp.Wait()

	if answered != nil {
		return answered, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return nil, ErrNoCandidates
}

func (g *GossipDiscovery) read(ctx context.Context, seed string) ([]operation.Member, error) {
	cc, release, err := g.conns.Conn(seed)
	if err != nil {
		return nil, err
	}
	defer release()

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	return (&operation.ReadGossip{}).Execute(ctx, cc)
}

func toCandidates(members []operation.Member) []Candidate {
	out := make([]Candidate, len(members))
	for i, m := range members {
		out[i] = Candidate{Endpoint: m.Endpoint, State: m.State, Known: true, Alive: m.Alive}
	}
	return out
}
