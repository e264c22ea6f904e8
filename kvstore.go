package kvstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/meshkv/kvstore/internal/area"
	"github.com/meshkv/kvstore/internal/arealoop"
	"github.com/meshkv/kvstore/internal/discovery"
	"github.com/meshkv/kvstore/internal/kverrors"
	"github.com/meshkv/kvstore/internal/pubqueue"
	"github.com/meshkv/kvstore/internal/rpc"
)

// KVStore is a running, multi-area gossip key-value store. It owns one
// arealoop.Loop per configured area and is safe for concurrent use by
// multiple goroutines.
type KVStore struct {
	cfg Config

	mu        sync.RWMutex
	areas     map[string]*arealoop.Loop
	discovery map[string]discovery.PeerSpecSource
	closed    bool
}

// New constructs a KVStore from the given options and starts every
// configured area's event loop. Peer sync attempts for each area's
// initial peer set begin immediately.
func New(opts ...Option) (*KVStore, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.finalize(); err != nil {
		return nil, err
	}

	kv := &KVStore{cfg: cfg, areas: make(map[string]*arealoop.Loop, len(cfg.Areas))}
	for areaID, spec := range cfg.Areas {
		loopCfg := arealoop.Config{
			NodeID:                   cfg.NodeID,
			AreaID:                   areaID,
			TTLDefault:               cfg.TTLDefault,
			SyncInitialTimeout:       cfg.SyncInitialTimeout,
			SyncRPCTimeout:           cfg.SyncRPCTimeout,
			FloodRPCTimeout:          cfg.FloodRPCTimeout,
			PublicationQueueCapacity: cfg.PublicationQueueCapacity,
			EnableFloodOptimization:  cfg.EnableFloodOptimization,
			Dialer:                   cfg.Dialer,
			Logger:                   cfg.Logger,
			Clock:                    cfg.Clock,
		}
		kv.areas[areaID] = arealoop.NewLoop(loopCfg, spec.InitialPeers)
	}
	for _, l := range kv.areas {
		l.Start()
	}

	kv.discovery = make(map[string]discovery.PeerSpecSource, len(cfg.Discovery))
	for areaID, source := range cfg.Discovery {
		areaID := areaID
		if err := source.Start(func(specs []rpc.PeerSpec) {
			kv.onDiscoveredPeers(areaID, specs)
		}); err != nil {
			for _, started := range kv.discovery {
				started.Stop()
			}
			for _, l := range kv.areas {
				l.Stop()
			}
			return nil, fmt.Errorf("kvstore: start discovery for area %q: %w", areaID, err)
		}
		kv.discovery[areaID] = source
	}
	return kv, nil
}

// onDiscoveredPeers is a PeerSpecSource callback: it merges newly
// discovered peers into areaID exactly as an AddUpdatePeers admin RPC
// call would. Discovery sources may call this from any goroutine.
func (kv *KVStore) onDiscoveredPeers(areaID string, specs []rpc.PeerSpec) {
	byName := make(map[string]rpc.PeerSpec, len(specs))
	for _, s := range specs {
		byName[s.Name] = s
	}
	if err := kv.AddUpdatePeers(context.Background(), areaID, byName); err != nil {
		kv.cfg.Logger.Warn("discovery: failed to add peers", "area", areaID, "error", err)
	}
}

// Handlers returns the rpc.ServerHandlers for areaID, for wiring into a
// transport's accept loop. Returns ErrUnknownArea if areaID was not
// configured.
func (kv *KVStore) Handlers(areaID string) (rpc.ServerHandlers, error) {
	return kv.area(areaID)
}

// Queue returns areaID's publication queue, the downstream feed of
// KeyVals/ExpiredKeys deltas and the one-shot KVSTORE_SYNCED signal.
func (kv *KVStore) Queue(areaID string) (*pubqueue.Queue, error) {
	l, err := kv.area(areaID)
	if err != nil {
		return nil, err
	}
	return l.Queue(), nil
}

func (kv *KVStore) area(areaID string) (*arealoop.Loop, error) {
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	if kv.closed {
		return nil, ErrClosed
	}
	l, ok := kv.areas[areaID]
	if !ok {
		return nil, kverrors.New(kverrors.Configuration, "kvstore", fmt.Errorf("%w: %s", ErrUnknownArea, areaID))
	}
	return l, nil
}

// SetKV merges kvs into areaID's store, floods the resulting delta to
// every eligible peer, and publishes it downstream. An empty kvs is a
// no-op success. senderIDs, when the caller already knows which peers
// this batch came from, suppresses flooding back to them.
func (kv *KVStore) SetKV(ctx context.Context, areaID string, kvs map[string]Record, senderIDs ...string) error {
	l, err := kv.area(areaID)
	if err != nil {
		return err
	}
	return l.SetKV(ctx, kvs, senderIDs...)
}

// GetKV performs point lookups against areaID's current state. Absent
// keys are simply omitted from the result.
func (kv *KVStore) GetKV(ctx context.Context, areaID string, keys []string) (map[string]Record, error) {
	l, err := kv.area(areaID)
	if err != nil {
		return nil, err
	}
	return l.Get(ctx, keys)
}

// Dump returns every record in areaID matching filter. A zero-value
// filter returns everything.
func (kv *KVStore) Dump(ctx context.Context, areaID string, filter DumpFilter) (map[string]Record, error) {
	l, err := kv.area(areaID)
	if err != nil {
		return nil, err
	}
	return l.Dump(ctx, toAreaFilter(filter))
}

// DumpHashes returns hash-only digests (no values) for keys under prefix,
// matching the shape a sync hash exchange uses.
func (kv *KVStore) DumpHashes(ctx context.Context, areaID, prefix string) (map[string]Record, error) {
	l, err := kv.area(areaID)
	if err != nil {
		return nil, err
	}
	return l.DumpHashes(ctx, prefix)
}

// DumpSelfOriginated returns every record this node authored in areaID.
func (kv *KVStore) DumpSelfOriginated(ctx context.Context, areaID string) (map[string]Record, error) {
	l, err := kv.area(areaID)
	if err != nil {
		return nil, err
	}
	return l.DumpSelfOriginated(ctx)
}

// AddUpdatePeers adds or reconfigures peers of areaID by name. Called
// with a spec identical to an already-configured peer, it is a no-op;
// called with a changed spec, that peer is forced back through IDLE. This
// is also the entry point an embedding daemon's discovery mechanism
// (mDNS, a service registry, a static file watch) should call as it
// learns about peers; the core never performs discovery itself.
func (kv *KVStore) AddUpdatePeers(ctx context.Context, areaID string, specs map[string]rpc.PeerSpec) error {
	l, err := kv.area(areaID)
	if err != nil {
		return err
	}
	return l.AddUpdatePeers(ctx, specs)
}

// DelPeers removes peers of areaID by name.
func (kv *KVStore) DelPeers(ctx context.Context, areaID string, names []string) error {
	l, err := kv.area(areaID)
	if err != nil {
		return err
	}
	return l.DelPeers(ctx, names)
}

// GetPeerState reports a peer's current FSM state, or found=false if it
// is not configured on areaID.
func (kv *KVStore) GetPeerState(ctx context.Context, areaID, peerName string) (state PeerState, found bool, err error) {
	l, err := kv.area(areaID)
	if err != nil {
		return PeerState{}, false, err
	}
	s, ok, err := l.GetPeerState(ctx, peerName)
	if err != nil {
		return PeerState{}, false, err
	}
	return PeerState{raw: s}, ok, nil
}

// PeerInfo is the read-only view of one configured peer.
type PeerInfo struct {
	Spec  rpc.PeerSpec
	State PeerState
}

// GetPeers returns every peer configured on areaID.
func (kv *KVStore) GetPeers(ctx context.Context, areaID string) (map[string]PeerInfo, error) {
	l, err := kv.area(areaID)
	if err != nil {
		return nil, err
	}
	raw, err := l.GetPeers(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]PeerInfo, len(raw))
	for name, info := range raw {
		out[name] = PeerInfo{Spec: info.Spec, State: PeerState{raw: info.State}}
	}
	return out, nil
}

// AreaSummary reports one area's aggregate counters: key count, peer
// count, how many peers are INITIALIZED, and an approximate byte size.
type AreaSummary = arealoop.AreaSummary

// GetAreaSummary reports areaID's aggregate state.
func (kv *KVStore) GetAreaSummary(ctx context.Context, areaID string) (AreaSummary, error) {
	l, err := kv.area(areaID)
	if err != nil {
		return AreaSummary{}, err
	}
	return l.AreaSummary(ctx)
}

// GetAreaSummaries reports aggregate state for each of areaIDs, or for
// every configured area when areaIDs is empty.
func (kv *KVStore) GetAreaSummaries(ctx context.Context, areaIDs ...string) (map[string]AreaSummary, error) {
	if len(areaIDs) == 0 {
		kv.mu.RLock()
		areaIDs = make([]string, 0, len(kv.areas))
		for areaID := range kv.areas {
			areaIDs = append(areaIDs, areaID)
		}
		kv.mu.RUnlock()
	}
	out := make(map[string]AreaSummary, len(areaIDs))
	for _, areaID := range areaIDs {
		summary, err := kv.GetAreaSummary(ctx, areaID)
		if err != nil {
			return nil, err
		}
		out[areaID] = summary
	}
	return out, nil
}

// Close stops every area's event loop and releases their resources.
// Idempotent; further calls after the first return ErrClosed's
// underlying effect silently (Close never errors on a second call).
func (kv *KVStore) Close(ctx context.Context) error {
	kv.mu.Lock()
	if kv.closed {
		kv.mu.Unlock()
		return nil
	}
	kv.closed = true
	areas := make([]*arealoop.Loop, 0, len(kv.areas))
	for _, l := range kv.areas {
		areas = append(areas, l)
	}
	sources := make([]discovery.PeerSpecSource, 0, len(kv.discovery))
	for _, s := range kv.discovery {
		sources = append(sources, s)
	}
	kv.mu.Unlock()

	for _, s := range sources {
		s.Stop()
	}
	for _, l := range areas {
		l.Stop()
	}
	return nil
}

func toAreaFilter(f DumpFilter) area.Filter {
	out := area.Filter{Prefixes: f.Prefixes}
	if len(f.Originators) > 0 {
		out.Originators = make(map[string]struct{}, len(f.Originators))
		for _, o := range f.Originators {
			out.Originators[o] = struct{}{}
		}
	}
	return out
}
