// Package kvstore implements the gossip-based, eventually-consistent
// key-value store core of a routing/control-plane daemon: independent
// areas, each with its own replicated map, converge across a configured
// peer set via a three-way full-sync handshake followed by best-effort
// flooding of subsequent updates.
//
// # Overview
//
// A KVStore owns one event loop per configured area. Records are
// versioned and merged with a deterministic, commutative tie-break chain
// over (version, originator_id, hash) — a join-semilattice, so replicas
// converge regardless of message order or duplication. Each peer walks
// an IDLE -> SYNCING -> INITIALIZED state machine with exponential
// backoff on failure; once INITIALIZED it receives flooded deltas with
// split-horizon and node-path loop suppression.
//
// # Transport
//
// The core never opens a socket. Callers supply an rpc.Dialer for
// outbound connections and wire KVStore.Handlers(area) into their
// transport's accept loop for inbound ones. internal/rpc/loopback
// provides an in-process transport for tests and same-process demos.
//
// # Consuming updates
//
// KVStore.Queue(area) returns a bounded, drop-oldest publication queue:
// every applied delta and the one-shot KVSTORE_SYNCED signal for that
// area flow through it to whatever downstream logic (typically a routing
// decision engine) needs to react to the store's state.
//
// # Example
//
//	kv, err := kvstore.New(
//		kvstore.WithNodeID("node-1"),
//		kvstore.WithDialer(myTransport),
//		kvstore.WithArea("area1", map[string]rpc.PeerSpec{
//			"node-2": {Name: "node-2", Address: "10.0.0.2", Port: 9001},
//		}),
//	)
//	if err != nil {
//		// handle error
//	}
//	defer kv.Close(context.Background())
//	_ = kv.SetKV(context.Background(), "area1", map[string]kvstore.Record{
//		"prefix/10.0.0.0/24": kvstore.NewRecord(1, "node-1", payload, kvstore.TTLInfinite, time.Now()),
//	})
package kvstore
