// Package loopback provides an in-process implementation of rpc.Dialer and
// rpc.PeerClient: peers are addressed by "address:port" and dialing one
// simply hands back a client that calls straight into the registered
// rpc.ServerHandlers, with no socket or serialization involved. It is used
// by the store's own tests and by same-process multi-area demos; a real
// deployment plugs in a networked transport instead.
package loopback

import (
	"context"
	"fmt"
	"sync"

	"github.com/meshkv/kvstore/internal/rpc"
)

// Registry maps "address:port" endpoints to the ServerHandlers that own
// them, standing in for a real listener's accept loop.
type Registry struct {
	mu        sync.RWMutex
	endpoints map[string]rpc.ServerHandlers
	// unreachable simulates peers configured with a spec that never
	// answers, so a dial to them always fails and the caller's retry
	// backoff can be exercised without a real closed socket.
	unreachable map[string]bool
}

func NewRegistry() *Registry {
	return &Registry{
		endpoints:   make(map[string]rpc.ServerHandlers),
		unreachable: make(map[string]bool),
	}
}

func endpointKey(spec rpc.PeerSpec) string {
	return fmt.Sprintf("%s:%d", spec.Address, spec.Port)
}

// Register makes handlers reachable at spec's address:port.
func (r *Registry) Register(spec rpc.PeerSpec, handlers rpc.ServerHandlers) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints[endpointKey(spec)] = handlers
}

// Unregister removes a previously registered endpoint.
func (r *Registry) Unregister(spec rpc.PeerSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.endpoints, endpointKey(spec))
}

// MarkUnreachable makes every dial to spec fail, simulating an
// unreachable peer without needing a real closed socket.
func (r *Registry) MarkUnreachable(spec rpc.PeerSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unreachable[endpointKey(spec)] = true
}

// Dial implements rpc.Dialer.
func (r *Registry) Dial(ctx context.Context, spec rpc.PeerSpec) (rpc.PeerClient, error) {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	r.mu.RLock()
	handlers, ok := r.endpoints[endpointKey(spec)]
	unreachable := r.unreachable[endpointKey(spec)]
	r.mu.RUnlock()
	if unreachable {
		return nil, fmt.Errorf("loopback: %s: connection refused", endpointKey(spec))
	}
	if !ok {
		return nil, fmt.Errorf("loopback: %s: no such endpoint", endpointKey(spec))
	}
	return &client{spec: spec, handlers: handlers}, nil
}

type client struct {
	spec     rpc.PeerSpec
	handlers rpc.ServerHandlers
	mu       sync.Mutex
	closed   bool
}

func (c *client) SyncHashes(ctx context.Context, req rpc.SyncHashesRequest) (rpc.PullResponse, error) {
	if err := c.checkOpen(); err != nil {
		return rpc.PullResponse{}, err
	}
	return c.handlers.HandleSyncHashes(ctx, req)
}

func (c *client) ApplyPublication(ctx context.Context, pub rpc.Publication) (rpc.Ack, error) {
	if err := c.checkOpen(); err != nil {
		return rpc.Ack{}, err
	}
	return c.handlers.HandleApplyPublication(ctx, pub)
}

func (c *client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *client) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("loopback: client closed")
	}
	return nil
}
