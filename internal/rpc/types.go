// Package rpc defines the wire-independent envelope types and the
// abstract client/server traits the transport layer is expected to
// provide. The core never touches a socket; it hands these values to a
// PeerClient and receives them from a ServerHandlers implementation that
// some out-of-scope transport wires up.
package rpc

import "github.com/meshkv/kvstore/internal/record"

// HashItem is one entry of a hash-only digest exchanged during a
// three-way full-sync: the identity of a record without its value.
type HashItem struct {
	Key          string
	Version      uint64
	OriginatorID string
	Hash         []byte
	TTLVersion   uint64
}

// AsRecord builds the synthetic, value-less record used for identity
// comparisons against a HashItem.
func (h HashItem) AsRecord() record.Record {
	return record.Record{
		Version:      h.Version,
		OriginatorID: h.OriginatorID,
		Hash:         h.Hash,
		TTLVersion:   h.TTLVersion,
	}
}

// HashItemFromRecord builds the digest entry for a full record.
func HashItemFromRecord(key string, r record.Record) HashItem {
	return HashItem{
		Key:          key,
		Version:      r.Version,
		OriginatorID: r.OriginatorID,
		Hash:         r.Hash,
		TTLVersion:   r.TTLVersion,
	}
}

// SyncHashesRequest is phase 1 of a three-way full-sync: the initiator's
// entire map, reduced to hash identity, plus the initiator's own id.
type SyncHashesRequest struct {
	Area     string
	SenderID string
	Hashes   []HashItem
}

// PullResponse is phase 2: the responder's full records for every key it
// dominates or that the initiator lacks, plus the responder's own hash
// table so the initiator can independently compute phase 3's finalize set.
type PullResponse struct {
	Area    string
	Records map[string]record.Record
	Hashes  []HashItem
}

// Publication is the on-the-wire unit of both flooding and the phase-3
// finalized push. NodePath records every node that has seen this
// publication; receivers append themselves before forwarding.
type Publication struct {
	Area        string
	KeyVals     map[string]record.Record
	ExpiredKeys []string
	NodePath    []string
	// Finalized marks a phase-3 finalize push. Receivers apply it the same
	// way as an ordinary flooded publication.
	Finalized bool
}

// Contains reports whether nodeID already appears in the publication's
// path, so a receiver knows not to forward it there again.
func (p Publication) Contains(nodeID string) bool {
	for _, n := range p.NodePath {
		if n == nodeID {
			return true
		}
	}
	return false
}

// WithAppendedNode returns a copy of p with nodeID appended to NodePath.
func (p Publication) WithAppendedNode(nodeID string) Publication {
	path := make([]string, len(p.NodePath), len(p.NodePath)+1)
	copy(path, p.NodePath)
	path = append(path, nodeID)
	p.NodePath = path
	return p
}

// Ack is the response to ApplyPublication. Peer RPCs report success even
// for no-op merges, as long as the message was well-formed.
type Ack struct {
	OK bool
}
