// Package sync implements the pure computations of the three-way
// full-sync protocol: building a hash request, building a responder's
// pull response, and computing an initiator's finalize push.
// None of these functions perform I/O or touch the area store's lock;
// the area event loop is responsible for taking a snapshot before calling
// in and for applying the resulting records back through the store's
// serialized SetKV.
package sync

import (
	"github.com/meshkv/kvstore/internal/record"
	"github.com/meshkv/kvstore/internal/rpc"
)

// BuildHashRequest reduces a snapshot to phase 1's hash-only digest.
func BuildHashRequest(areaID, senderID string, snapshot map[string]record.Record) rpc.SyncHashesRequest {
	hashes := make([]rpc.HashItem, 0, len(snapshot))
	for key, r := range snapshot {
		hashes = append(hashes, rpc.HashItemFromRecord(key, r))
	}
	return rpc.SyncHashesRequest{Area: areaID, SenderID: senderID, Hashes: hashes}
}

func toHashMap(items []rpc.HashItem) map[string]rpc.HashItem {
	m := make(map[string]rpc.HashItem, len(items))
	for _, item := range items {
		m[item.Key] = item
	}
	return m
}

// dominatesOrAbsent reports whether local should be pushed to a peer whose
// only known state for this key is remote (nil meaning the peer has no
// record at all for this key).
func dominatesOrAbsent(local record.Record, remote *rpc.HashItem) bool {
	if remote == nil {
		return true
	}
	return record.Dominates(local, remote.AsRecord())
}

// BuildPullResponse implements the responder R's phase-2 logic: for every
// key R holds, include the full record if R dominates the initiator's
// hash entry (or the initiator lacks the key at all), and always include
// R's own hash table so the initiator can compute its phase-3 finalize
// set without a further round trip.
func BuildPullResponse(areaID string, localSnapshot map[string]record.Record, req rpc.SyncHashesRequest) rpc.PullResponse {
	remoteHashes := toHashMap(req.Hashes)

	records := make(map[string]record.Record)
	hashes := make([]rpc.HashItem, 0, len(localSnapshot))
	for key, r := range localSnapshot {
		hashes = append(hashes, rpc.HashItemFromRecord(key, r))
		remote, ok := remoteHashes[key]
		var remotePtr *rpc.HashItem
		if ok {
			remotePtr = &remote
		}
		if dominatesOrAbsent(r, remotePtr) {
			records[key] = r
		}
	}
	return rpc.PullResponse{Area: areaID, Records: records, Hashes: hashes}
}

// ComputeFinalizePush implements the initiator I's phase-3 logic, using
// the snapshot taken at hash-exchange time (not the store's state after
// applying the pull response's records) plus R's hash table from the pull
// response: every key I strictly dominates, or that R lacks, is pushed.
func ComputeFinalizePush(localSnapshotAtHashTime map[string]record.Record, resp rpc.PullResponse) map[string]record.Record {
	remoteHashes := toHashMap(resp.Hashes)

	out := make(map[string]record.Record)
	for key, r := range localSnapshotAtHashTime {
		remote, ok := remoteHashes[key]
		var remotePtr *rpc.HashItem
		if ok {
			remotePtr = &remote
		}
		if dominatesOrAbsent(r, remotePtr) {
			out[key] = r
		}
	}
	return out
}
