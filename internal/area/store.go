// Package area implements the in-memory key->record map for one area: it
// applies merges and computes the deltas that drive flooding and the
// publication queue.
package area

import (
	"strings"
	"sync"
	"time"

	"github.com/meshkv/kvstore/internal/record"
)

// Delta is the set of changes produced by a mutating store operation. An
// empty Delta means nothing changed and callers should not flood or
// publish.
type Delta struct {
	Updated map[string]record.Record
	Expired []string
}

func (d Delta) Empty() bool {
	return len(d.Updated) == 0 && len(d.Expired) == 0
}

// Filter restricts a Dump. An empty Prefixes/Originators set means "no
// restriction" on that axis. KeyHashes, when non-nil, turns Dump into a
// diff against the supplied hash table: only records that differ from it
// are returned.
type Filter struct {
	Prefixes    []string
	Originators map[string]struct{}
	KeyHashes   map[string]record.Record
}

func (f Filter) matchesPrefix(key string) bool {
	if len(f.Prefixes) == 0 {
		return true
	}
	for _, p := range f.Prefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

func (f Filter) matchesOriginator(originator string) bool {
	if len(f.Originators) == 0 {
		return true
	}
	_, ok := f.Originators[originator]
	return ok
}

func (f Filter) matchesHash(key string, r record.Record) bool {
	if f.KeyHashes == nil {
		return true
	}
	other, ok := f.KeyHashes[key]
	if !ok {
		return true
	}
	return !record.SameIdentity(r, other) || r.TTLVersion != other.TTLVersion
}

// Store is one area's key -> record map. All mutating methods are meant to
// be called only from the area's single event loop; Store itself does not
// enforce that, it just protects its internal map so read-only admin RPCs
// can run concurrently with the loop's own reads.
type Store struct {
	mu       sync.RWMutex
	nodeID   string
	records  map[string]record.Record
	selfKeys map[string]struct{}
}

func NewStore(nodeID string) *Store {
	return &Store{
		nodeID:   nodeID,
		records:  make(map[string]record.Record),
		selfKeys: make(map[string]struct{}),
	}
}

// SetKV merges each (key, record) pair into the store and returns the
// delta of keys that actually changed. The peer a batch arrived from
// plays no role in the merge; split horizon is applied by the caller when
// it floods the delta.
func (s *Store) SetKV(kvs map[string]record.Record) Delta {
	if len(kvs) == 0 {
		return Delta{}
	}
	updated := make(map[string]record.Record)
	s.mu.Lock()
	for key, incoming := range kvs {
		current, exists := s.records[key]
		var winner record.Record
		var outcome record.MergeOutcome
		if exists {
			winner, outcome = record.Merge(current, incoming)
		} else {
			winner, outcome = record.MergeAbsent(incoming)
		}
		if outcome == record.MergeNoChange {
			continue
		}
		s.records[key] = winner
		if winner.OriginatorID == s.nodeID {
			s.selfKeys[key] = struct{}{}
		}
		updated[key] = winner
	}
	s.mu.Unlock()
	if len(updated) == 0 {
		return Delta{}
	}
	return Delta{Updated: updated}
}

// Get performs a point lookup; absent keys are simply omitted.
func (s *Store) Get(keys []string) map[string]record.Record {
	out := make(map[string]record.Record, len(keys))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, k := range keys {
		if r, ok := s.records[k]; ok {
			out[k] = r
		}
	}
	return out
}

// Dump returns every record matching filter.
func (s *Store) Dump(filter Filter) map[string]record.Record {
	out := make(map[string]record.Record)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k, r := range s.records {
		if !filter.matchesPrefix(k) {
			continue
		}
		if !filter.matchesOriginator(r.OriginatorID) {
			continue
		}
		if !filter.matchesHash(k, r) {
			continue
		}
		out[k] = r
	}
	return out
}

// DumpHashes returns every record matching the key prefix, stripped of its
// value but retaining its hash.
func (s *Store) DumpHashes(prefix string) map[string]record.Record {
	filter := Filter{}
	if prefix != "" {
		filter.Prefixes = []string{prefix}
	}
	full := s.Dump(filter)
	out := make(map[string]record.Record, len(full))
	for k, r := range full {
		out[k] = r.StripValue()
	}
	return out
}

// DumpSelfOriginated returns every record this node authored.
func (s *Store) DumpSelfOriginated() map[string]record.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]record.Record, len(s.selfKeys))
	for k := range s.selfKeys {
		if r, ok := s.records[k]; ok {
			out[k] = r
		}
	}
	return out
}

// Snapshot returns every record currently stored, full values included.
// Used by the sync engine to build hash requests and pull responses.
func (s *Store) Snapshot() map[string]record.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]record.Record, len(s.records))
	for k, r := range s.records {
		out[k] = r
	}
	return out
}

// ExpireTick drops every record whose TTL has lapsed as of now and
// returns the resulting delta.
func (s *Store) ExpireTick(now time.Time) Delta {
	var expired []string
	s.mu.Lock()
	for k, r := range s.records {
		if r.Expired(now) {
			expired = append(expired, k)
		}
	}
	for _, k := range expired {
		delete(s.records, k)
		delete(s.selfKeys, k)
	}
	s.mu.Unlock()
	if len(expired) == 0 {
		return Delta{}
	}
	return Delta{Expired: expired}
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// ByteSize approximates the store's in-memory footprint for
// AreaSummary.DBBytes: sum of key and value lengths. Purely observational,
// no persistence claim is made.
func (s *Store) ByteSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for k, r := range s.records {
		total += int64(len(k) + len(r.Value))
	}
	return total
}
