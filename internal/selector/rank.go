package selector

import (
	"slices"

	"github.com/rmacdonaldsmith/eventstore-go/internal/wire"
)

// Role is the kind of node an operation prefers.
type Role int

const (
	Any Role = iota
	Leader
	Follower
	ReadOnlyReplica
)

func (r Role) String() string {
	switch r {
	case Any:
		return "any"
	case Leader:
		return "leader"
	case Follower:
		return "follower"
	case ReadOnlyReplica:
		return "read-only-replica"
	default:
		return "unknown"
	}
}

// ParseRole maps a node preference name to a Role.
func ParseRole(s string) (Role, bool) {
	for _, r := range []Role{Any, Leader, Follower, ReadOnlyReplica} {
		if r.String() == s {
			return r, true
		}
	}
	return Any, false
}

// Rank filters out dead nodes and nodes that cannot serve requests, then
// orders the rest by preference for role. Candidates of unknown state keep
// their order and rank after every known one.
func Rank(candidates []Candidate, role Role) []Candidate {
	ranked := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if !c.Alive {
			continue
		}
		if c.Known && score(c.State, role) < 0 {
			continue
		}
		ranked = append(ranked, c)
	}

	slices.SortStableFunc(ranked, func(a, b Candidate) int {
		return rankOf(a, role) - rankOf(b, role)
	})
	return ranked
}

func rankOf(c Candidate, role Role) int {
	if !c.Known {
		return 100
	}
	return score(c.State, role)
}

// score orders node states for a role. Negative means never selected.
func score(state wire.VNodeState, role Role) int {
	var order []wire.VNodeState
	switch role {
	case Leader:
		order = []wire.VNodeState{wire.StateLeader, wire.StateFollower, wire.StateReadOnlyReplica}
	case Follower:
		order = []wire.VNodeState{wire.StateFollower, wire.StateLeader, wire.StateReadOnlyReplica}
	case ReadOnlyReplica:
		order = []wire.VNodeState{wire.StateReadOnlyReplica, wire.StatePreReadOnlyReplica, wire.StateReadOnlyLeaderless, wire.StateFollower, wire.StateLeader}
	default:
		switch state {
		case wire.StateLeader, wire.StateFollower, wire.StateReadOnlyReplica:
			return 0
		}
		return -1
	}
	return slices.Index(order, state)
}
