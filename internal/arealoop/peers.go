package arealoop

import (
	"context"
	"time"

	"github.com/meshkv/kvstore/internal/counters"
	"github.com/meshkv/kvstore/internal/peer"
	"github.com/meshkv/kvstore/internal/rpc"
	syncproto "github.com/meshkv/kvstore/internal/sync"
)

// handleAddUpdatePeers implements the local AddUpdatePeers admin RPC:
// unknown names are added and immediately kicked into SYNCING; a name
// already configured with the identical spec is a no-op; a name whose
// spec changed is forced back through IDLE and re-added with the new
// spec, rerunning its FSM from scratch.
func (l *Loop) handleAddUpdatePeers(specs map[string]rpc.PeerSpec) error {
	for name, spec := range specs {
		existing, ok := l.peers[name]
		if !ok {
			p := peer.New(name, spec)
			l.peers[name] = p
			l.issuePeerAdd(p)
			continue
		}
		if existing.SameSpec(spec) {
			continue
		}
		l.applyActions(existing, existing.FSM.HandlePeerDel())
		existing.Spec = spec
		existing.PendingToken = 0
		l.issuePeerAdd(existing)
	}
	counters.Global().Set(counters.NumPeers, int64(len(l.peers)))
	return nil
}

// handleDelPeers removes named peers, canceling any in-flight sync and
// closing their clients. Removing a peer still pending initialization
// unblocks KVSTORE_SYNCED so a shrinking initial peer set never wedges it.
func (l *Loop) handleDelPeers(names []string) error {
	for _, name := range names {
		p, ok := l.peers[name]
		if !ok {
			continue
		}
		l.applyActions(p, p.FSM.HandlePeerDel())
		delete(l.peers, name)
		delete(l.pendingInit, name)
	}
	counters.Global().Set(counters.NumPeers, int64(len(l.peers)))
	l.maybeEmitSynced()
	return nil
}

func (l *Loop) issuePeerAdd(p *peer.Peer) {
	l.applyActions(p, p.FSM.HandlePeerAdd())
}

// applyActions executes the side effects an FSM transition requested.
// ActionOpenClient never appears without a paired ActionIssueSync, so
// dialing is folded into startSyncAttempt rather than handled separately.
func (l *Loop) applyActions(p *peer.Peer, actions []peer.Action) {
	for _, a := range actions {
		switch a.Kind {
		case peer.ActionIssueSync:
			l.startSyncAttempt(p)
		case peer.ActionCloseClient:
			if p.Client != nil {
				_ = p.Client.Close()
				p.Client = nil
			}
		case peer.ActionScheduleRetry:
			l.scheduleRetry(p.Name, a.After)
		case peer.ActionCancelPendingSync:
			p.PendingToken = 0
		case peer.ActionOpenClient:
			// handled as part of startSyncAttempt
		}
	}
}

func (l *Loop) handlePeerRPCError(peerName string) {
	p, ok := l.peers[peerName]
	if !ok {
		return
	}
	l.applyActions(p, p.FSM.HandleRPCError())
}

func (l *Loop) postClosure(fn func()) {
	select {
	case l.inbox <- fn:
	case <-l.stopCh:
	}
}

// scheduleRetry waits After, then re-issues a sync attempt for peerName if
// it is still configured and still IDLE (it may have been deleted, or
// already retried via a concurrent AddUpdatePeers, in the interim).
func (l *Loop) scheduleRetry(peerName string, after time.Duration) {
	go func() {
		timer := time.NewTimer(after)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-l.stopCh:
			return
		}
		l.postClosure(func() {
			p, ok := l.peers[peerName]
			if !ok || p.FSM.State() != peer.Idle {
				return
			}
			l.issuePeerAdd(p)
		})
	}()
}

// startSyncAttempt dials peerName and issues phase 1-2 of a three-way
// sync from a background goroutine, tagging the attempt with a token so a
// stale result (peer deleted or re-specced mid-flight) is safely dropped
// when it lands back on the loop.
func (l *Loop) startSyncAttempt(p *peer.Peer) {
	l.tokenSeq++
	token := l.tokenSeq
	p.PendingToken = token

	spec := p.Spec
	peerName := p.Name
	nodeID := l.cfg.NodeID
	areaID := l.cfg.AreaID
	hashSnapshot := l.store.Snapshot()
	timeout := l.cfg.SyncRPCTimeout
	dialer := l.cfg.Dialer

	counters.Global().Bump(counters.NumFullSync)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		client, err := dialer.Dial(ctx, spec)
		if err != nil {
			l.postSyncResult(peerName, token, hashSnapshot, rpc.PullResponse{}, nil, err)
			return
		}
		req := syncproto.BuildHashRequest(areaID, nodeID, hashSnapshot)
		resp, err := client.SyncHashes(ctx, req)
		l.postSyncResult(peerName, token, hashSnapshot, resp, client, err)
	}()
}
