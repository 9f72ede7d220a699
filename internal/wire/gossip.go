package wire

import "fmt"

// VNodeState is the role a cluster member reports through gossip.
type VNodeState int32

const (
	StateInitializing       VNodeState = 0
	StateDiscoverLeader     VNodeState = 1
	StateUnknown            VNodeState = 2
	StatePreReplica         VNodeState = 3
	StateCatchingUp         VNodeState = 4
	StateClone              VNodeState = 5
	StateFollower           VNodeState = 6
	StatePreLeader          VNodeState = 7
	StateLeader             VNodeState = 8
	StateManager            VNodeState = 9
	StateShuttingDown       VNodeState = 10
	StateShutdown           VNodeState = 11
	StateReadOnlyLeaderless VNodeState = 12
	StatePreReadOnlyReplica VNodeState = 13
	StateReadOnlyReplica    VNodeState = 14
	StateResigningLeader    VNodeState = 15
)

var stateNames = map[VNodeState]string{
	StateInitializing:       "Initializing",
	StateDiscoverLeader:     "DiscoverLeader",
	StateUnknown:            "Unknown",
	StatePreReplica:         "PreReplica",
	StateCatchingUp:         "CatchingUp",
	StateClone:              "Clone",
	StateFollower:           "Follower",
	StatePreLeader:          "PreLeader",
	StateLeader:             "Leader",
	StateManager:            "Manager",
	StateShuttingDown:       "ShuttingDown",
	StateShutdown:           "Shutdown",
	StateReadOnlyLeaderless: "ReadOnlyLeaderless",
	StatePreReadOnlyReplica: "PreReadOnlyReplica",
	StateReadOnlyReplica:    "ReadOnlyReplica",
	StateResigningLeader:    "ResigningLeader",
}

func (s VNodeState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("VNodeState(%d)", int32(s))
}

// ClusterInfo is the gossip view of the cluster.
type ClusterInfo struct {
	Members []MemberInfo
}

// MemberInfo describes one cluster member.
type MemberInfo struct {
	InstanceID UUID
	TimeStamp  int64
	State      VNodeState
	IsAlive    bool
	Address    string
	Port       uint32
}

func (m *ClusterInfo) Marshal() ([]byte, error) {
	var e encoder
	for i := range m.Members {
		mem := &m.Members[i]
		e.message(1, func(x *encoder) {
			x.message(1, mem.InstanceID.encode)
			x.uint64(2, uint64(mem.TimeStamp))
			x.int32(3, int32(mem.State))
			x.bool(4, mem.IsAlive)
			x.message(5, func(h *encoder) {
				h.string(1, mem.Address)
				h.uint64(2, uint64(mem.Port))
			})
		})
	}
	return e.buf, nil
}

func (m *ClusterInfo) Unmarshal(data []byte) error {
	*m = ClusterInfo{}
	return decode("ClusterInfo", data, func(f field) error {
		if f.num != 1 {
			return nil
		}
		var mem MemberInfo
		err := f.toMessage(func(b []byte) error {
			return walk(b, func(x field) error {
				switch x.num {
				case 1:
					return x.toMessage(mem.InstanceID.decode)
				case 2:
					return x.toInt64(&mem.TimeStamp)
				case 3:
					var s int32
					err := x.toInt32(&s)
					mem.State = VNodeState(s)
					return err
				case 4:
					return x.toBool(&mem.IsAlive)
				case 5:
					return x.toMessage(func(b []byte) error {
						return walk(b, func(h field) error {
							switch h.num {
							case 1:
								return h.toString(&mem.Address)
							case 2:
								return h.toUint32(&mem.Port)
							}
							return nil
						})
					})
				}
				return nil
			})
		})
		if err != nil {
			return err
		}
		m.Members = append(m.Members, mem)
		return nil
	})
}
