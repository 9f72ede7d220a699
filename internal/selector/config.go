package selector

import (
	"crypto/tls"
	"errors"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
)

var (
	// ErrNoEndpoints is returned when no endpoint or seed is configured
	ErrNoEndpoints = errors.New("at least one endpoint is required")
	// ErrUnknownMode is returned for an unsupported discovery mode
	ErrUnknownMode = errors.New("unknown discovery mode")
)

// Mode selects how candidates are discovered.
type Mode int

const (
	// Static uses the configured endpoints as they are
	Static Mode = iota

	// Gossip asks the configured seeds for the cluster view
	Gossip
)

func (m Mode) String() string {
	switch m {
	case Static:
		return "static"
	case Gossip:
		return "gossip"
	default:
		return "unknown"
	}
}

// Config holds configuration for a Selector
type Config struct {
	// Endpoints are node addresses ("host:port"), or gossip seeds in Gossip mode
	Endpoints []string

	Mode Mode

	// Insecure disables TLS
	Insecure bool

	// TLS is used when Insecure is false; nil means system roots
	TLS *tls.Config

	MaxDiscoverAttempts int
	DiscoveryInterval   time.Duration
	MaxDiscoveryDelay   time.Duration
	GossipTimeout       time.Duration

	KeepAliveInterval time.Duration
	KeepAliveTimeout  time.Duration

	// DialOptions are appended to the options the selector builds
	DialOptions []grpc.DialOption

	Logger *zap.Logger
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if len(c.Endpoints) == 0 {
		return ErrNoEndpoints
	}
	for _, e := range c.Endpoints {
		if e == "" {
			return errors.New("endpoint cannot be empty")
		}
	}
	if c.Mode != Static && c.Mode != Gossip {
		return ErrUnknownMode
	}
	return nil
}

// SetDefaults sets sensible default values for unset configuration fields
func (c *Config) SetDefaults() {
	if c.MaxDiscoverAttempts <= 0 {
		c.MaxDiscoverAttempts = 10
	}
	if c.DiscoveryInterval <= 0 {
		c.DiscoveryInterval = 100 * time.Millisecond
	}
	if c.MaxDiscoveryDelay <= 0 {
		c.MaxDiscoveryDelay = 5 * time.Second
	}
	if c.GossipTimeout <= 0 {
		c.GossipTimeout = 5 * time.Second
	}
	if c.KeepAliveInterval <= 0 {
		c.KeepAliveInterval = 10 * time.Second
	}
	if c.KeepAliveTimeout <= 0 {
		c.KeepAliveTimeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}
