package arealoop

import (
	"context"

	"github.com/meshkv/kvstore/internal/area"
	"github.com/meshkv/kvstore/internal/flood"
	"github.com/meshkv/kvstore/internal/rpc"
)

func (l *Loop) floodTargets() []flood.Target {
	out := make([]flood.Target, 0, len(l.peers))
	for name, p := range l.peers {
		out = append(out, flood.Target{Name: name, State: p.FSM.State(), Client: p.Client})
	}
	return out
}

// floodDelta forwards delta to every eligible peer. nodePath carries every
// node this delta has already passed through (nil for a locally originated
// change); it seeds the outgoing publication's NodePath so loop suppression
// sees the accumulated path, not just this hop, and Flood appends this node
// before sending. Per-peer RPC failure rolls back into that peer's FSM.
func (l *Loop) floodDelta(delta area.Delta, nodePath []string, senderIDs []string) {
	pub := rpc.Publication{Area: l.cfg.AreaID, KeyVals: delta.Updated, ExpiredKeys: delta.Expired, NodePath: nodePath}
	recipients := flood.Recipients(l.floodTargets(), pub, senderIDs, l.cfg.EnableFloodOptimization)
	if len(recipients) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.FloodRPCTimeout)
	results := flood.Flood(ctx, l.cfg.NodeID, recipients, pub, l.logger)
	go func() {
		defer cancel()
		for r := range results {
			if r.Err == nil {
				continue
			}
			peerName := r.PeerName
			l.postClosure(func() { l.handlePeerRPCError(peerName) })
		}
	}()
}
