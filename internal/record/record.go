// Package record implements the versioned value entity and the
// deterministic merge function that keeps replicas of an area's key-value
// map converging without a central coordinator.
package record

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"time"
)

// TTLInfinite marks a record that never expires.
const TTLInfinite time.Duration = 0

// Record is a single versioned value in an area's key-value map.
type Record struct {
	Version      uint64
	OriginatorID string
	// Value is opaque to the store. A nil Value denotes a metadata-only
	// record (e.g. a pure TTL keepalive with no payload change).
	Value       []byte
	TTL         time.Duration
	TTLVersion  uint64
	Hash        []byte
	LastRefresh time.Time
}

// ComputeHash derives the deterministic digest of (version, originator_id,
// value) used as a cheap identity in sync exchanges. Two nodes that
// independently construct the same (version, originator, value) triple
// always agree on the resulting bytes, which is what lets the hash-only
// phase of a three-way sync stand in for the full record.
func (r Record) ComputeHash() []byte {
	h := sha256.New()
	var versionBuf [8]byte
	binary.BigEndian.PutUint64(versionBuf[:], r.Version)
	h.Write(versionBuf[:])
	h.Write([]byte(r.OriginatorID))
	h.Write(r.Value)
	return h.Sum(nil)
}

// New builds a record with its hash populated from the given fields.
func New(version uint64, originatorID string, value []byte, ttl time.Duration, now time.Time) Record {
	r := Record{
		Version:      version,
		OriginatorID: originatorID,
		Value:        value,
		TTL:          ttl,
		LastRefresh:  now,
	}
	r.Hash = r.ComputeHash()
	return r
}

// StripValue returns a copy of r with Value cleared, used to build hash-only
// digests for the sync protocol and for DumpHashes.
func (r Record) StripValue() Record {
	r.Value = nil
	return r
}

// Expired reports whether r's TTL has lapsed as of now. A record with
// TTLInfinite never expires.
func (r Record) Expired(now time.Time) bool {
	if r.TTL == TTLInfinite {
		return false
	}
	return !r.LastRefresh.IsZero() && now.Sub(r.LastRefresh) >= r.TTL
}

// compareIdentity orders two records by the strict, deterministic tie-break
// chain: version, then originator_id, then hash. It returns a
// positive number if a wins, negative if b wins, and zero if a and b share
// the same identity (same version, originator and hash).
func compareIdentity(a, b Record) int {
	if a.Version != b.Version {
		if a.Version > b.Version {
			return 1
		}
		return -1
	}
	if a.OriginatorID != b.OriginatorID {
		if a.OriginatorID > b.OriginatorID {
			return 1
		}
		return -1
	}
	return bytes.Compare(a.Hash, b.Hash)
}

// Dominates reports whether a strictly outranks b under the tie-break
// chain, ignoring TTLVersion. It is the comparison the sync engine uses to
// decide which side of a hash exchange must push a record.
func Dominates(a, b Record) bool {
	return compareIdentity(a, b) > 0
}

// SameIdentity reports whether a and b are the same (version, originator,
// hash) triple, i.e. the same authored value regardless of TTL bookkeeping.
func SameIdentity(a, b Record) bool {
	return compareIdentity(a, b) == 0
}
