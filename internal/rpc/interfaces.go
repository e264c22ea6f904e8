package rpc

import "context"

// PeerClient is the outbound half of the peer-to-peer RPC surface: what a
// node needs in order to talk to one specific peer. A transport
// implementation opens one PeerClient per peer when the peer state machine
// transitions IDLE -> SYNCING and closes it on teardown.
type PeerClient interface {
	// SyncHashes performs phases 1-2 of a three-way full-sync in a single
	// round trip: send the hash request, receive the pull response.
	SyncHashes(ctx context.Context, req SyncHashesRequest) (PullResponse, error)
	// ApplyPublication sends a flooded update or a phase-3 finalize push.
	ApplyPublication(ctx context.Context, pub Publication) (Ack, error)
	// Close releases any resources held by the client. Safe to call more
	// than once.
	Close() error
}

// Dialer opens a PeerClient for a given peer spec. Supplied by the
// transport; the core never dials a socket itself.
type Dialer interface {
	Dial(ctx context.Context, spec PeerSpec) (PeerClient, error)
}

// PeerSpec carries the name and dialable address of a configured peer.
type PeerSpec struct {
	Name    string
	Address string
	Port    int
}

// ServerHandlers is the inbound half of the peer-to-peer RPC surface: what
// a transport's accept loop calls into once it has decoded an incoming
// peer request for a given area. Implementations must be safe for
// concurrent use; they serialize onto the owning area's event loop
// internally.
type ServerHandlers interface {
	HandleSyncHashes(ctx context.Context, req SyncHashesRequest) (PullResponse, error)
	HandleApplyPublication(ctx context.Context, pub Publication) (Ack, error)
}
