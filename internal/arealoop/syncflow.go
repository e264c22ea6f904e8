package arealoop

import (
	"context"

	"github.com/meshkv/kvstore/internal/counters"
	"github.com/meshkv/kvstore/internal/kverrors"
	"github.com/meshkv/kvstore/internal/peer"
	"github.com/meshkv/kvstore/internal/record"
	"github.com/meshkv/kvstore/internal/rpc"
	syncproto "github.com/meshkv/kvstore/internal/sync"
)

func (l *Loop) postSyncResult(peerName string, token uint64, hashSnapshot map[string]record.Record, resp rpc.PullResponse, client rpc.PeerClient, err error) {
	select {
	case l.inbox <- func() { l.handleSyncResult(peerName, token, hashSnapshot, resp, client, err) }:
	case <-l.stopCh:
		if client != nil {
			_ = client.Close()
		}
	}
}

// handleSyncResult applies phase 2's records, computes phase 3's finalize
// push against the snapshot taken before the round trip (not the store's
// post-merge state), and dispatches it.
func (l *Loop) handleSyncResult(peerName string, token uint64, hashSnapshot map[string]record.Record, resp rpc.PullResponse, client rpc.PeerClient, err error) {
	p, ok := l.peers[peerName]
	if !ok || p.PendingToken != token {
		if client != nil {
			_ = client.Close()
		}
		return
	}
	if err != nil {
		counters.Global().Bump(counters.NumFullSyncFailure)
		l.handlePeerRPCError(peerName)
		return
	}
	counters.Global().Bump(counters.NumFullSyncSuccess)
	p.Client = client

	for key, rec := range resp.Records {
		if rec.OriginatorID == l.cfg.NodeID {
			// A peer holds a record for one of our own keys, possibly left
			// over from before a restart without persistence. This raises
			// the version the manager holds for a key it already tracks;
			// publishAndFlood below then re-tracks whatever record the
			// merge stored. Versions of local writes are chosen by SetKV
			// callers, not by the manager.
			l.self.AdoptPeerVersion(key, rec.Version)
		}
	}
	if len(resp.Records) > 0 {
		// The pull response carries no node path of its own; treat it as a
		// fresh hop from peerName, same as any other newly received record.
		l.publishAndFlood(l.store.SetKV(resp.Records), nil, []string{peerName})
	}

	l.applyActions(p, p.FSM.HandleSyncRespRcvd())
	l.markPeerInitializedIfNeeded(peerName)

	finalize := syncproto.ComputeFinalizePush(hashSnapshot, resp)
	if len(finalize) > 0 {
		l.sendFinalizePush(p, finalize)
	}
}

func (l *Loop) sendFinalizePush(p *peer.Peer, finalize map[string]record.Record) {
	if p.Client == nil {
		return
	}
	pub := rpc.Publication{Area: l.cfg.AreaID, KeyVals: finalize, NodePath: []string{l.cfg.NodeID}, Finalized: true}
	client := p.Client
	peerName := p.Name
	token := p.PendingToken
	timeout := l.cfg.SyncRPCTimeout

	counters.Global().Bump(counters.NumFinalizedSync)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_, err := client.ApplyPublication(ctx, pub)
		l.postFinalizeResult(peerName, token, err)
	}()
}

func (l *Loop) postFinalizeResult(peerName string, token uint64, err error) {
	l.postClosure(func() { l.handleFinalizeResult(peerName, token, err) })
}

func (l *Loop) handleFinalizeResult(peerName string, token uint64, err error) {
	p, ok := l.peers[peerName]
	if !ok || p.PendingToken != token {
		return
	}
	if err != nil {
		counters.Global().Bump(counters.NumFinalizedSyncFailure)
		l.handlePeerRPCError(peerName)
		return
	}
	counters.Global().Bump(counters.NumFinalizedSyncSuccess)
}

func (l *Loop) markPeerInitializedIfNeeded(peerName string) {
	if _, wasInitial := l.initialPeerNames[peerName]; !wasInitial {
		return
	}
	delete(l.pendingInit, peerName)
	l.maybeEmitSynced()
}

func (l *Loop) maybeEmitSynced() {
	if l.syncedEmitted || len(l.pendingInit) > 0 {
		return
	}
	l.syncedEmitted = true
	l.queue.PushSynced(l.cfg.AreaID)
}

// HandleSyncHashes implements rpc.ServerHandlers: it answers a peer's
// phase-1 hash request with a phase-2 pull response, without applying any
// records itself — those arrive later via the peer's own finalize push.
func (l *Loop) HandleSyncHashes(ctx context.Context, req rpc.SyncHashesRequest) (rpc.PullResponse, error) {
	if req.Area != l.cfg.AreaID {
		return rpc.PullResponse{}, kverrors.New(kverrors.ProtocolViolation, "HandleSyncHashes", errAreaMismatch(req.Area, l.cfg.AreaID))
	}
	return submit(ctx, l, func() rpc.PullResponse {
		snapshot := l.store.Snapshot()
		return syncproto.BuildPullResponse(l.cfg.AreaID, snapshot, req)
	})
}

// HandleApplyPublication implements rpc.ServerHandlers: it merges an
// inbound flood or finalize push and re-floods whatever actually changed.
func (l *Loop) HandleApplyPublication(ctx context.Context, pub rpc.Publication) (rpc.Ack, error) {
	if pub.Area != l.cfg.AreaID {
		return rpc.Ack{}, kverrors.New(kverrors.ProtocolViolation, "HandleApplyPublication", errAreaMismatch(pub.Area, l.cfg.AreaID))
	}
	return submit(ctx, l, func() rpc.Ack {
		sender := ""
		if n := len(pub.NodePath); n > 0 {
			sender = pub.NodePath[n-1]
		}
		var senders []string
		if sender != "" {
			senders = []string{sender}
		}

		if len(pub.ExpiredKeys) > 0 {
			// Each node expires a key independently on its own TTL timer;
			// an expired_keys notice is informational only, surfaced to
			// downstream consumers without touching the local map.
			l.queue.Push(pubqueueExpiredMessage(l.cfg.AreaID, pub.ExpiredKeys))
		}
		if len(pub.KeyVals) > 0 {
			l.publishAndFlood(l.store.SetKV(pub.KeyVals), pub.NodePath, senders)
		}
		return rpc.Ack{OK: true}
	})
}
