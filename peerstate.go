package kvstore

import "github.com/meshkv/kvstore/internal/peer"

// PeerState is one peer's position in the IDLE -> SYNCING -> INITIALIZED
// state machine.
type PeerState struct {
	raw peer.State
}

func (s PeerState) String() string { return s.raw.String() }

// IsIdle reports whether the peer has no in-flight sync and is either
// waiting for its next backoff-scheduled retry or has just been added.
func (s PeerState) IsIdle() bool { return s.raw == peer.Idle }

// IsSyncing reports whether a three-way full-sync round trip is
// in-flight for this peer.
func (s PeerState) IsSyncing() bool { return s.raw == peer.Syncing }

// IsInitialized reports whether this peer has completed at least one
// full sync and is eligible to receive flooded updates.
func (s PeerState) IsInitialized() bool { return s.raw == peer.Initialized }
