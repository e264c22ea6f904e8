// Package flood implements split-horizon forwarding of published deltas
// to every INITIALIZED peer, with loop suppression via the publication's
// node path.
package flood

import (
	"context"
	"log/slog"

	"github.com/meshkv/kvstore/internal/counters"
	"github.com/meshkv/kvstore/internal/peer"
	"github.com/meshkv/kvstore/internal/rpc"
)

// Target is the minimal view of a peer the flooder needs: its id, current
// FSM state, and client handle. Decoupled from *peer.Peer so tests can
// supply fakes without building a whole area loop.
type Target struct {
	Name   string
	State  peer.State
	Client rpc.PeerClient
}

// Recipients selects which of candidates should receive pub, applying
// split horizon (senderIDs) and loop suppression via node path and, when
// optimization is disabled, flooding to every INITIALIZED peer regardless
// of senderIDs (loop suppression via node path still applies).
func Recipients(candidates []Target, pub rpc.Publication, senderIDs []string, splitHorizonOnly bool) []Target {
	senders := make(map[string]struct{}, len(senderIDs))
	for _, s := range senderIDs {
		senders[s] = struct{}{}
	}
	out := make([]Target, 0, len(candidates))
	for _, t := range candidates {
		if t.State != peer.Initialized {
			continue
		}
		if pub.Contains(t.Name) {
			continue
		}
		if splitHorizonOnly {
			if _, isSender := senders[t.Name]; isSender {
				continue
			}
		}
		out = append(out, t)
	}
	return out
}

// Result reports the outcome of flooding to one peer, letting the caller
// (the area event loop) drive that peer's FSM on failure.
type Result struct {
	PeerName string
	Err      error
}

// Flood sends pub, with selfID appended to its node path, to every
// recipient in parallel and returns at once; each recipient's outcome
// arrives on the returned channel, which is closed after the last one.
// Sends from separate Flood calls are not ordered against each other, so
// two publications flooded to the same peer in quick succession may be
// applied there in either order.
func Flood(ctx context.Context, selfID string, recipients []Target, pub rpc.Publication, logger *slog.Logger) <-chan Result {
	out := pub.WithAppendedNode(selfID)
	results := make(chan Result, len(recipients))
	if len(recipients) == 0 {
		close(results)
		return results
	}
	go func() {
		defer close(results)
		done := make(chan Result, len(recipients))
		for _, r := range recipients {
			r := r
			go func() {
				counters.Global().Bump("kvstore.flood.attempts")
				_, err := r.Client.ApplyPublication(ctx, out)
				if err != nil {
					if logger != nil {
						logger.Debug("flood publication failed", "peer", r.Name, "error", err)
					}
				} else {
					counters.Global().Bump("kvstore.flood.delivered")
				}
				done <- Result{PeerName: r.Name, Err: err}
			}()
		}
		for range recipients {
			results <- <-done
		}
	}()
	return results
}
