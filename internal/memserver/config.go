package memserver

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/rmacdonaldsmith/eventstore-go/internal/wire"
	"go.uber.org/zap"
)

// Config holds configuration for a Server
type Config struct {
	// Advertise is the "host:port" this node reports through gossip
	Advertise string

	// Role is the node state reported through gossip. Writes sent to a
	// Follower fail with not-leader pointing at LeaderEndpoint.
	Role           wire.VNodeState
	LeaderEndpoint string

	// MaxAppendSize bounds the payload bytes of a single append
	MaxAppendSize int

	// Auth enables authentication when set
	Auth *Authenticator

	// Cluster overrides the gossip view; empty means this node alone
	Cluster []wire.MemberInfo

	Logger *zap.Logger
}

// SetDefaults sets sensible default values for unset configuration fields
func (c *Config) SetDefaults() {
	if c.Advertise == "" {
		c.Advertise = "127.0.0.1:2113"
	}
	if c.Role == 0 {
		c.Role = wire.StateLeader
	}
	if c.MaxAppendSize <= 0 {
		c.MaxAppendSize = 1024 * 1024 // 1MB
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if _, _, err := splitEndpoint(c.Advertise); err != nil {
		return fmt.Errorf("invalid advertise address: %w", err)
	}
	if c.Role == wire.StateFollower {
		if c.LeaderEndpoint == "" {
			return errors.New("a follower needs a leader endpoint")
		}
		if _, _, err := splitEndpoint(c.LeaderEndpoint); err != nil {
			return fmt.Errorf("invalid leader endpoint: %w", err)
		}
	}
	return nil
}

func splitEndpoint(endpoint string) (string, uint32, error) {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q", portStr)
	}
	return host, uint32(port), nil
}
