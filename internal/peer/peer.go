package peer

import "github.com/meshkv/kvstore/internal/rpc"

// Peer bundles one peer's configured spec, FSM, and in-flight handles.
// It is owned exclusively by the area event loop and addressed as a
// handle keyed by (area, name), never shared by pointer across
// goroutines.
type Peer struct {
	Name string
	Spec rpc.PeerSpec
	FSM  *FSM

	Client rpc.PeerClient
	// PendingToken tags the in-flight sync attempt so a late response
	// (e.g. after a Del or a spec change) can be recognized as stale and
	// discarded by the event loop.
	PendingToken uint64
}

func New(name string, spec rpc.PeerSpec) *Peer {
	return &Peer{Name: name, Spec: spec, FSM: NewFSM()}
}

// SameSpec reports whether other describes the same address/port.
func (p *Peer) SameSpec(other rpc.PeerSpec) bool {
	return p.Spec.Address == other.Address && p.Spec.Port == other.Port
}
