package arealoop

import (
	"time"

	"github.com/meshkv/kvstore/internal/record"
	"github.com/meshkv/kvstore/internal/selforigin"
)

func (l *Loop) scheduleInitTimeout() {
	go func() {
		timer := time.NewTimer(l.cfg.SyncInitialTimeout)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-l.stopCh:
			return
		}
		l.postClosure(l.handleInitTimeout)
	}()
}

// handleInitTimeout fires KVSTORE_SYNCED even when the configured peer set
// has not fully initialized by sync_initial_timeout, so downstream
// consumers are not wedged behind a permanently unreachable peer.
func (l *Loop) handleInitTimeout() {
	if l.syncedEmitted {
		return
	}
	l.syncedEmitted = true
	l.queue.PushSynced(l.cfg.AreaID)
}

func (l *Loop) startExpireTicker() {
	go func() {
		ticker := time.NewTicker(expireTickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.postClosure(l.handleExpireTick)
			case <-l.stopCh:
				return
			}
		}
	}()
}

func (l *Loop) handleExpireTick() {
	delta := l.store.ExpireTick(l.cfg.now())
	if delta.Empty() {
		return
	}
	for _, k := range delta.Expired {
		l.self.Forget(k)
	}
	l.publishAndFlood(delta, nil, nil)
}

// ensureRefreshTimer schedules key's next TTL keepalive at ttl/4 (floored
// at 1s). It reschedules itself after every successful refresh, so a
// self-originated key keeps a live timer for as long as it is tracked.
func (l *Loop) ensureRefreshTimer(key string, ttl time.Duration) {
	interval, ok := selforigin.RefreshInterval(ttl)
	if !ok {
		return
	}
	go func() {
		timer := time.NewTimer(interval)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-l.stopCh:
			return
		}
		l.postClosure(func() { l.handleSelfRefresh(key) })
	}()
}

func (l *Loop) handleSelfRefresh(key string) {
	refreshed, ok := l.self.Refresh(key, l.cfg.now())
	if !ok {
		return
	}
	delta := l.store.SetKV(map[string]record.Record{key: refreshed})
	l.publishAndFlood(delta, nil, nil)
	l.ensureRefreshTimer(key, refreshed.TTL)
}
