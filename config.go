package kvstore

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/meshkv/kvstore/internal/discovery"
	"github.com/meshkv/kvstore/internal/rpc"
)

// AreaSpec describes one area to bring up at construction time: its
// initially configured peer set, keyed by peer name. Peers can be added
// or removed later through AddUpdatePeers/DelPeers.
type AreaSpec struct {
	InitialPeers map[string]rpc.PeerSpec
}

// Option configures a KVStore on creation. Return an error to reject an
// invalid option value.
type Option func(*Config) error

// Config holds runtime configuration for a KVStore node.
type Config struct {
	NodeID string
	Areas  map[string]AreaSpec

	// Discovery holds an optional peer-discovery source per area, keyed by
	// areaID. New starts each one and routes its discovered peers into
	// that area's AddUpdatePeers, exactly as an admin RPC call would;
	// KVStore never runs discovery for an area that has none configured.
	Discovery map[string]discovery.PeerSpecSource

	TTLDefault               time.Duration
	SyncInitialTimeout       time.Duration
	SyncRPCTimeout           time.Duration
	FloodRPCTimeout          time.Duration
	PublicationQueueCapacity int
	EnableFloodOptimization  bool

	Dialer rpc.Dialer
	Logger *slog.Logger
	Clock  func() time.Time
}

func defaultConfig() Config {
	return Config{
		Areas:                    make(map[string]AreaSpec),
		Discovery:                make(map[string]discovery.PeerSpecSource),
		TTLDefault:               5 * time.Minute,
		SyncInitialTimeout:       30 * time.Second,
		SyncRPCTimeout:           30 * time.Second,
		FloodRPCTimeout:          5 * time.Second,
		PublicationQueueCapacity: 1024,
		EnableFloodOptimization:  true,
	}
}

func (c *Config) finalize() error {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.NodeID == "" {
		id, err := randomNodeID()
		if err != nil {
			return err
		}
		c.NodeID = id
	}
	if c.Dialer == nil {
		return fmt.Errorf("kvstore: a Dialer is required, see WithDialer")
	}
	if len(c.Areas) == 0 {
		return fmt.Errorf("kvstore: at least one area must be configured, see WithArea")
	}
	for areaID := range c.Discovery {
		if _, ok := c.Areas[areaID]; !ok {
			return fmt.Errorf("kvstore: discovery configured for unknown area %q, see WithArea", areaID)
		}
	}
	if c.SyncInitialTimeout <= 0 {
		return fmt.Errorf("kvstore: sync initial timeout must be positive")
	}
	if c.SyncRPCTimeout <= 0 {
		return fmt.Errorf("kvstore: sync RPC timeout must be positive")
	}
	if c.FloodRPCTimeout <= 0 {
		return fmt.Errorf("kvstore: flood RPC timeout must be positive")
	}
	if c.PublicationQueueCapacity <= 0 {
		return fmt.Errorf("kvstore: publication queue capacity must be positive")
	}
	return nil
}

// WithNodeID sets a stable node identifier used as this node's
// originator_id. If omitted, a random one is generated.
func WithNodeID(nodeID string) Option {
	return func(c *Config) error {
		if nodeID == "" {
			return fmt.Errorf("kvstore: node id cannot be empty")
		}
		c.NodeID = nodeID
		return nil
	}
}

// WithArea configures one area with its initial peer set. Calling it
// more than once for the same areaID replaces the earlier spec.
func WithArea(areaID string, initialPeers map[string]rpc.PeerSpec) Option {
	return func(c *Config) error {
		if areaID == "" {
			return fmt.Errorf("kvstore: area id cannot be empty")
		}
		peers := make(map[string]rpc.PeerSpec, len(initialPeers))
		for name, spec := range initialPeers {
			peers[name] = spec
		}
		c.Areas[areaID] = AreaSpec{InitialPeers: peers}
		return nil
	}
}

// WithDiscovery attaches a peer-discovery source to areaID, started when
// the KVStore is constructed and stopped on Close. Discovered peers flow
// into that area's AddUpdatePeers exactly as an admin RPC call would; the
// core itself never performs discovery. Calling it more than once for the
// same areaID replaces the earlier source.
func WithDiscovery(areaID string, source discovery.PeerSpecSource) Option {
	return func(c *Config) error {
		if areaID == "" {
			return fmt.Errorf("kvstore: area id cannot be empty")
		}
		if source == nil {
			return fmt.Errorf("kvstore: discovery source cannot be nil")
		}
		c.Discovery[areaID] = source
		return nil
	}
}

// WithDialer sets the transport used to open outbound peer connections.
// Required: the core never dials a socket itself.
func WithDialer(dialer rpc.Dialer) Option {
	return func(c *Config) error {
		if dialer == nil {
			return fmt.Errorf("kvstore: dialer cannot be nil")
		}
		c.Dialer = dialer
		return nil
	}
}

// WithLogger sets the structured logger used for internal diagnostics
// (failed flood deliveries, discovered peers that could not be added).
// Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) error {
		if logger == nil {
			return fmt.Errorf("kvstore: logger cannot be nil")
		}
		c.Logger = logger
		return nil
	}
}

// WithClock overrides the wall clock used for TTL bookkeeping. Intended
// for tests; production callers should leave this unset.
func WithClock(clock func() time.Time) Option {
	return func(c *Config) error {
		if clock == nil {
			return fmt.Errorf("kvstore: clock cannot be nil")
		}
		c.Clock = clock
		return nil
	}
}

// WithTTLDefault sets Config.TTLDefault, which is passed to every area
// loop. Records keep the TTL they were built with: a record built with a
// zero TTL is TTLInfinite and is not given this default.
func WithTTLDefault(ttl time.Duration) Option {
	return func(c *Config) error {
		c.TTLDefault = ttl
		return nil
	}
}

// WithSyncInitialTimeout bounds how long an area waits for its configured
// peer set to fully initialize before emitting KVSTORE_SYNCED anyway.
func WithSyncInitialTimeout(d time.Duration) Option {
	return func(c *Config) error {
		if d <= 0 {
			return fmt.Errorf("kvstore: sync initial timeout must be positive")
		}
		c.SyncInitialTimeout = d
		return nil
	}
}

// WithSyncRPCTimeout bounds a single three-way sync round trip.
func WithSyncRPCTimeout(d time.Duration) Option {
	return func(c *Config) error {
		if d <= 0 {
			return fmt.Errorf("kvstore: sync RPC timeout must be positive")
		}
		c.SyncRPCTimeout = d
		return nil
	}
}

// WithFloodRPCTimeout bounds a single flooded publication delivery.
func WithFloodRPCTimeout(d time.Duration) Option {
	return func(c *Config) error {
		if d <= 0 {
			return fmt.Errorf("kvstore: flood RPC timeout must be positive")
		}
		c.FloodRPCTimeout = d
		return nil
	}
}

// WithPublicationQueueCapacity sets the bounded, drop-oldest publication
// queue's capacity per area.
func WithPublicationQueueCapacity(n int) Option {
	return func(c *Config) error {
		if n <= 0 {
			return fmt.Errorf("kvstore: publication queue capacity must be positive")
		}
		c.PublicationQueueCapacity = n
		return nil
	}
}

// WithFloodOptimization toggles split-horizon flooding (skip the peer a
// delta arrived from) versus flooding to every INITIALIZED peer
// regardless of origin. Loop suppression via node path applies either
// way. Defaults to enabled.
func WithFloodOptimization(enabled bool) Option {
	return func(c *Config) error {
		c.EnableFloodOptimization = enabled
		return nil
	}
}

func randomNodeID() (string, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("kvstore: generate node id: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}
