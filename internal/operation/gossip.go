package operation

import (
	"context"
	"net"
	"strconv"

	"github.com/google/uuid"
	"github.com/rmacdonaldsmith/eventstore-go/internal/wire"
	"google.golang.org/grpc"
)

// Member is one cluster node as reported by gossip.
type Member struct {
	ID       uuid.UUID
	State    wire.VNodeState
	Alive    bool
	Endpoint string
}

// ReadGossip fetches the cluster view from one node.
type ReadGossip struct{}

func (*ReadGossip) Name() string                    { return "ReadGossip" }
func (*ReadGossip) Method() string                  { return wire.MethodGossipRead }
func (*ReadGossip) BuildRequest() (*wire.Empty, error) { return &wire.Empty{}, nil }
func (*ReadGossip) NewResponse() *wire.ClusterInfo  { return &wire.ClusterInfo{} }
func (*ReadGossip) unary()                          {}

func (*ReadGossip) Translate(resp *wire.ClusterInfo) ([]Member, error) {
	members := make([]Member, 0, len(resp.Members))
	for _, m := range resp.Members {
		members = append(members, Member{
			ID:       m.InstanceID.Value,
			State:    m.State,
			Alive:    m.IsAlive,
			Endpoint: net.JoinHostPort(m.Address, strconv.FormatUint(uint64(m.Port), 10)),
		})
	}
	return members, nil
}

// Execute reads the cluster view.
func (op *ReadGossip) Execute(ctx context.Context, cc grpc.ClientConnInterface, opts ...grpc.CallOption) ([]Member, error) {
	return Unary[*wire.Empty, *wire.ClusterInfo, []Member](ctx, cc, op, opts...)
}
