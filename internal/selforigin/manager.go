// Package selforigin implements the self-originated key manager: it
// tracks keys this node authored, refreshes their TTL on a timer, and
// guards against version regression across restarts.
package selforigin

import (
	"time"

	"github.com/meshkv/kvstore/internal/record"
)

const minRefreshInterval = time.Second

// RefreshInterval returns ttl/4, floored at 1s. A TTL of TTLInfinite has
// no refresh timer at all (0, false).
func RefreshInterval(ttl time.Duration) (time.Duration, bool) {
	if ttl == record.TTLInfinite {
		return 0, false
	}
	interval := ttl / 4
	if interval < minRefreshInterval {
		interval = minRefreshInterval
	}
	return interval, true
}

// Manager tracks this node's authored keys purely as bookkeeping over
// which refresh timers the area event loop should be running; it does not
// own any timers itself, since all timers live on the single area event
// loop.
type Manager struct {
	nodeID string
	// desired holds the last record this node authored for each self key,
	// used to compute the next TTL-refresh delta.
	desired map[string]record.Record
}

func NewManager(nodeID string) *Manager {
	return &Manager{nodeID: nodeID, desired: make(map[string]record.Record)}
}

// Track registers or updates a self-originated key's authored record.
func (m *Manager) Track(key string, r record.Record) {
	if r.OriginatorID != m.nodeID {
		return
	}
	m.desired[key] = r
}

// Forget removes a key from tracking, e.g. because it expired.
func (m *Manager) Forget(key string) {
	delete(m.desired, key)
}

// Keys returns every currently tracked self-originated key.
func (m *Manager) Keys() []string {
	out := make([]string, 0, len(m.desired))
	for k := range m.desired {
		out = append(out, k)
	}
	return out
}

// Refresh builds the TTL-only keepalive record for key: same identity,
// TTLVersion incremented, LastRefresh set to now. Returns false if key is
// not tracked.
func (m *Manager) Refresh(key string, now time.Time) (record.Record, bool) {
	current, ok := m.desired[key]
	if !ok {
		return record.Record{}, false
	}
	refreshed := current
	refreshed.TTLVersion++
	refreshed.LastRefresh = now
	m.desired[key] = refreshed
	return refreshed, true
}

// AdoptPeerVersion guards against version regression: if a peer's record
// for one of our self-authored keys carries a version greater than or
// equal to what we have (possible after a restart without persistence),
// adopt peerVersion+1 so the next local author of that key strictly
// increases.
func (m *Manager) AdoptPeerVersion(key string, peerVersion uint64) {
	current, ok := m.desired[key]
	if !ok {
		return
	}
	if peerVersion >= current.Version {
		current.Version = peerVersion + 1
		m.desired[key] = current
	}
}
