package selector

import (
	"context"

	"github.com/rmacdonaldsmith/eventstore-go/internal/wire"
)

// Candidate is a node that operations may run against.
type Candidate struct {
	Endpoint string

	// State is the gossip role; it is meaningful only when Known is set
	State wire.VNodeState
	Known bool

	Alive bool
}

// Discovery defines the interface for node discovery mechanisms
type Discovery interface {
	// Candidates returns the nodes currently known, in discovery order
	Candidates(ctx context.Context) ([]Candidate, error)
}

// StaticDiscovery implements Discovery using a fixed endpoint list
type StaticDiscovery struct {
	endpoints []string
}

// NewStaticDiscovery creates a new static discovery over endpoints
func NewStaticDiscovery(endpoints []string) *StaticDiscovery {
	return &StaticDiscovery{endpoints: append([]string(nil), endpoints...)}
}

// Candidates returns the endpoints, all assumed alive and of unknown role
func (s *StaticDiscovery) Candidates(ctx context.Context) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	candidates := make([]Candidate, len(s.endpoints))
	for i, endpoint := range s.endpoints {
		candidates[i] = Candidate{Endpoint: endpoint, Alive: true}
	}
	return candidates, nil
}
