// Package discovery adapts optional peer-discovery mechanisms into a
// common shape an area event loop can consume: discovered peers flow into
// AddUpdatePeers exactly as an admin RPC call would. An area loop never
// runs discovery on its own; the owning KVStore wires a source in.
package discovery

import "github.com/meshkv/kvstore/internal/rpc"

// PeerSpecSource is anything that can report newly discovered peer specs.
// OnPeers is called with one or more peers as they are found; it is safe
// to call from any goroutine.
type PeerSpecSource interface {
	Start(onPeers func([]rpc.PeerSpec)) error
	Stop()
}
