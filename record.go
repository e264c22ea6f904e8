package kvstore

import (
	"time"

	"github.com/meshkv/kvstore/internal/record"
)

// Record is a single versioned value in an area's key-value map, ordered
// against other candidates for the same key by (version, originator_id,
// hash) and carrying its own TTL bookkeeping.
type Record = record.Record

// TTLInfinite marks a record that never expires.
const TTLInfinite = record.TTLInfinite

// NewRecord builds a Record with its content hash populated, ready to
// pass to SetKV. now should be the wall-clock time the record is
// authored; it seeds the TTL countdown.
func NewRecord(version uint64, originatorID string, value []byte, ttl time.Duration, now time.Time) Record {
	return record.New(version, originatorID, value, ttl, now)
}

// DumpFilter restricts a Dump call to a subset of an area's records. A
// nil or empty field means "no restriction" on that axis.
type DumpFilter struct {
	Prefixes    []string
	Originators []string
}
