package arealoop

import (
	"context"

	"github.com/meshkv/kvstore/internal/area"
	"github.com/meshkv/kvstore/internal/peer"
	"github.com/meshkv/kvstore/internal/record"
	"github.com/meshkv/kvstore/internal/rpc"
)

// handleSetKV implements the local set_kv admin RPC. An empty kvs is a
// no-op success. senderIDs, when supplied by a caller relaying a batch it
// already knows the origin of, suppresses flooding back to those peers.
func (l *Loop) handleSetKV(kvs map[string]record.Record, senderIDs []string) error {
	delta := l.store.SetKV(kvs)
	if delta.Empty() {
		return nil
	}
	for k, r := range delta.Updated {
		if r.OriginatorID == l.cfg.NodeID {
			l.ensureRefreshTimer(k, r.TTL)
		}
	}
	l.publishAndFlood(delta, nil, senderIDs)
	return nil
}

// SetKV merges kvs into the area's store, floods the resulting delta to
// every INITIALIZED peer other than those in senderIDs, and publishes the
// delta downstream.
func (l *Loop) SetKV(ctx context.Context, kvs map[string]record.Record, senderIDs ...string) error {
	err, callErr := submit(ctx, l, func() error { return l.handleSetKV(kvs, senderIDs) })
	if callErr != nil {
		return callErr
	}
	return err
}

// Get performs point lookups against the area's current state.
func (l *Loop) Get(ctx context.Context, keys []string) (map[string]record.Record, error) {
	return submit(ctx, l, func() map[string]record.Record { return l.store.Get(keys) })
}

// Dump returns every record matching filter.
func (l *Loop) Dump(ctx context.Context, filter area.Filter) (map[string]record.Record, error) {
	return submit(ctx, l, func() map[string]record.Record { return l.store.Dump(filter) })
}

// DumpHashes returns hash-only digests for keys under prefix, the same
// shape a sync hash exchange uses.
func (l *Loop) DumpHashes(ctx context.Context, prefix string) (map[string]record.Record, error) {
	return submit(ctx, l, func() map[string]record.Record { return l.store.DumpHashes(prefix) })
}

// DumpSelfOriginated returns every record this node authored.
func (l *Loop) DumpSelfOriginated(ctx context.Context) (map[string]record.Record, error) {
	return submit(ctx, l, func() map[string]record.Record { return l.store.DumpSelfOriginated() })
}

// AddUpdatePeers adds or reconfigures peers by name.
func (l *Loop) AddUpdatePeers(ctx context.Context, specs map[string]rpc.PeerSpec) error {
	err, callErr := submit(ctx, l, func() error { return l.handleAddUpdatePeers(specs) })
	if callErr != nil {
		return callErr
	}
	return err
}

// DelPeers removes peers by name.
func (l *Loop) DelPeers(ctx context.Context, names []string) error {
	err, callErr := submit(ctx, l, func() error { return l.handleDelPeers(names) })
	if callErr != nil {
		return callErr
	}
	return err
}

// peerStateResult bundles GetPeerState's two return values so submit's
// single-type-parameter shape can carry them through the mailbox.
type peerStateResult struct {
	state peer.State
	found bool
}

// GetPeerState reports name's current FSM state, or found=false if name
// is not configured.
func (l *Loop) GetPeerState(ctx context.Context, name string) (peer.State, bool, error) {
	res, err := submit(ctx, l, func() peerStateResult {
		p, ok := l.peers[name]
		if !ok {
			return peerStateResult{}
		}
		return peerStateResult{state: p.FSM.State(), found: true}
	})
	if err != nil {
		return peer.Idle, false, err
	}
	return res.state, res.found, nil
}

// GetPeers returns every configured peer's spec and current state.
func (l *Loop) GetPeers(ctx context.Context) (map[string]PeerInfo, error) {
	return submit(ctx, l, func() map[string]PeerInfo {
		out := make(map[string]PeerInfo, len(l.peers))
		for name, p := range l.peers {
			out[name] = PeerInfo{Spec: p.Spec, State: p.FSM.State()}
		}
		return out
	})
}

// AreaSummary reports this area's aggregate counters.
func (l *Loop) AreaSummary(ctx context.Context) (AreaSummary, error) {
	return submit(ctx, l, func() AreaSummary {
		initialized := 0
		for _, p := range l.peers {
			if p.FSM.State() == peer.Initialized {
				initialized++
			}
		}
		return AreaSummary{
			Area:                 l.cfg.AreaID,
			KeyCount:             l.store.Len(),
			PeerCount:            len(l.peers),
			InitializedPeerCount: initialized,
			DBBytes:              l.store.ByteSize(),
		}
	})
}
