// Package arealoop implements the single-threaded event loop that owns one
// area's Store, peer table and publication queue. Every
// mutation — local admin RPCs, inbound peer RPCs, and timer callbacks —
// is serialized by posting a closure onto the loop's mailbox channel and
// waiting for it to run; nothing outside the loop goroutine ever touches
// the Store or the peer table directly, so no locking is needed at this
// layer. Outbound RPCs are dispatched from separate goroutines and their
// results posted back the same way, keeping the loop itself from ever
// blocking on I/O.
package arealoop

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/meshkv/kvstore/internal/area"
	"github.com/meshkv/kvstore/internal/counters"
	"github.com/meshkv/kvstore/internal/kverrors"
	"github.com/meshkv/kvstore/internal/peer"
	"github.com/meshkv/kvstore/internal/pubqueue"
	"github.com/meshkv/kvstore/internal/rpc"
	"github.com/meshkv/kvstore/internal/selforigin"
)

// expireTickInterval is how often the loop sweeps the store for TTL
// expiry. Not spec-mandated; short enough that a 1s-floored self-refresh
// interval never drifts more than one tick behind its deadline.
const expireTickInterval = time.Second

var errLoopStoppedCause = errors.New("area loop stopped")

func errLoopStopped() error {
	return kverrors.New(kverrors.Configuration, "arealoop", errLoopStoppedCause)
}

// Config carries everything a Loop needs beyond its peer set.
type Config struct {
	NodeID string
	AreaID string

	TTLDefault               time.Duration
	SyncInitialTimeout       time.Duration
	SyncRPCTimeout           time.Duration
	FloodRPCTimeout          time.Duration
	PublicationQueueCapacity int
	EnableFloodOptimization  bool

	Dialer rpc.Dialer
	Logger *slog.Logger
	// Clock returns the current time; overridable by tests. Defaults to
	// time.Now if nil.
	Clock func() time.Time
}

func (c Config) now() time.Time {
	if c.Clock != nil {
		return c.Clock()
	}
	return time.Now()
}

// PeerInfo is the read-only view of one configured peer returned by
// GetPeers.
type PeerInfo struct {
	Spec  rpc.PeerSpec
	State peer.State
}

// AreaSummary reports the aggregate state of one area, matching the shape
// used by control-plane inspection tooling.
type AreaSummary struct {
	Area                 string
	KeyCount             int
	PeerCount            int
	InitializedPeerCount int
	DBBytes              int64
}

// Loop is one area's event loop. Construct with NewLoop, then Start it;
// Stop tears it down and waits for in-flight work to settle.
type Loop struct {
	cfg   Config
	store *area.Store
	self  *selforigin.Manager
	queue *pubqueue.Queue

	peers map[string]*peer.Peer

	initialPeerNames map[string]struct{}
	pendingInit      map[string]struct{}
	syncedEmitted    bool

	tokenSeq uint64

	inbox    chan func()
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	logger *slog.Logger
}

// NewLoop constructs a Loop for one area. initialPeers is the peer set
// configured at startup; it drives KVSTORE_SYNCED gating and is not itself
// dialed until Start is called.
func NewLoop(cfg Config, initialPeers map[string]rpc.PeerSpec) *Loop {
	if cfg.PublicationQueueCapacity <= 0 {
		cfg.PublicationQueueCapacity = 1024
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loop{
		cfg:              cfg,
		store:            area.NewStore(cfg.NodeID),
		self:             selforigin.NewManager(cfg.NodeID),
		queue:            pubqueue.New(cfg.PublicationQueueCapacity),
		peers:            make(map[string]*peer.Peer, len(initialPeers)),
		initialPeerNames: make(map[string]struct{}, len(initialPeers)),
		pendingInit:      make(map[string]struct{}, len(initialPeers)),
		inbox:            make(chan func(), 64),
		stopCh:           make(chan struct{}),
		logger:           logger,
	}
	for name, spec := range initialPeers {
		l.peers[name] = peer.New(name, spec)
		l.initialPeerNames[name] = struct{}{}
		l.pendingInit[name] = struct{}{}
	}
	return l
}

// Queue exposes the area's publication queue to downstream consumers.
func (l *Loop) Queue() *pubqueue.Queue { return l.queue }

// Start runs the loop goroutine, the expire ticker, and kicks off the
// initial peer set's first sync attempts.
func (l *Loop) Start() {
	l.wg.Add(1)
	go l.run()

	l.startExpireTicker()

	if len(l.initialPeerNames) == 0 {
		l.syncedEmitted = true
		l.queue.PushSynced(l.cfg.AreaID)
	} else {
		l.scheduleInitTimeout()
	}

	for _, p := range l.peers {
		p := p
		select {
		case l.inbox <- func() { l.issuePeerAdd(p) }:
		case <-l.stopCh:
		}
	}
}

// Stop closes the loop and waits for its goroutine to exit, closing any
// open peer clients along the way.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopCh)
		l.queue.Close()
	})
	l.wg.Wait()
}

func (l *Loop) run() {
	defer l.wg.Done()
	for {
		select {
		case fn := <-l.inbox:
			fn()
		case <-l.stopCh:
			l.closeAllClients()
			return
		}
	}
}

func (l *Loop) closeAllClients() {
	for _, p := range l.peers {
		if p.Client != nil {
			_ = p.Client.Close()
			p.Client = nil
		}
	}
}

// submit posts fn onto the loop's mailbox and waits for its result,
// respecting ctx cancellation on both the send and the reply wait.
func submit[T any](ctx context.Context, l *Loop, fn func() T) (T, error) {
	var zero T
	reply := make(chan T, 1)
	select {
	case l.inbox <- func() { reply <- fn() }:
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-l.stopCh:
		return zero, errLoopStopped()
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// publishAndFlood is the single funnel every mutation path (local SetKV,
// inbound peer publications, pull-response application, TTL expiry) runs
// through: track self-originated keys, enqueue the delta for downstream
// consumers, and flood it onward. nodePath is the node path the triggering
// publication already carried (nil for a locally originated change);
// senderIDs is the immediate sender(s) to skip under split horizon.
func (l *Loop) publishAndFlood(delta area.Delta, nodePath []string, senderIDs []string) {
	if delta.Empty() {
		return
	}
	for k, r := range delta.Updated {
		if r.OriginatorID == l.cfg.NodeID {
			l.self.Track(k, r)
		}
	}
	l.queue.PushPublication(l.cfg.AreaID, delta.Updated, delta.Expired)
	counters.Global().Set(counters.NumKeys, int64(l.store.Len()))
	l.floodDelta(delta, nodePath, senderIDs)
}

