// Package counters implements a process-wide counter sink with a single
// initialization point and unconditional writability, addressed by flat
// dotted names, safe for use from any goroutine (area loops, RPC
// handlers, timers).
package counters

import (
	"sync"
	"sync/atomic"
)

// Registry holds a set of monotonic counters keyed by name.
type Registry struct {
	values sync.Map
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Bump increments the named counter by one, creating it at zero first if
// necessary.
func (r *Registry) Bump(name string) {
	r.Add(name, 1)
}

// Add adds delta to the named counter, creating it if necessary.
func (r *Registry) Add(name string, delta int64) {
	v, _ := r.values.LoadOrStore(name, new(int64))
	atomic.AddInt64(v.(*int64), delta)
}

// Set overwrites the named counter, for gauge-style values like num_keys
// and num_peers rather than monotonic counts.
func (r *Registry) Set(name string, value int64) {
	v, _ := r.values.LoadOrStore(name, new(int64))
	atomic.StoreInt64(v.(*int64), value)
}

// Get returns the current value of the named counter, or zero if it has
// never been touched.
func (r *Registry) Get(name string) int64 {
	v, ok := r.values.Load(name)
	if !ok {
		return 0
	}
	return atomic.LoadInt64(v.(*int64))
}

// Snapshot returns a point-in-time copy of every counter's value.
func (r *Registry) Snapshot() map[string]int64 {
	out := make(map[string]int64)
	r.values.Range(func(key, value any) bool {
		out[key.(string)] = atomic.LoadInt64(value.(*int64))
		return true
	})
	return out
}

var global = NewRegistry()

// Global returns the process-wide counter registry. Components that do not
// have (or need) a dependency-injected Registry write here instead.
func Global() *Registry {
	return global
}
