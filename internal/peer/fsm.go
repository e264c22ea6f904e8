// Package peer implements the per-peer state machine: IDLE -> SYNCING ->
// INITIALIZED, with error rollbacks and exponential backoff between sync
// attempts.
package peer

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// State is one of the three peer lifecycle states.
type State int

const (
	Idle State = iota
	Syncing
	Initialized
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Syncing:
		return "SYNCING"
	case Initialized:
		return "INITIALIZED"
	default:
		return "UNKNOWN"
	}
}

// ActionKind enumerates the side effects the FSM asks its caller to
// perform. The FSM itself never touches a client or a timer; transitions
// are pure and the caller (the area event loop) dispatches messages for
// the actual I/O.
type ActionKind int

const (
	ActionOpenClient ActionKind = iota
	ActionIssueSync
	ActionCloseClient
	ActionScheduleRetry
	ActionCancelPendingSync
)

// Action is one requested side effect. After, only meaningful for
// ActionScheduleRetry, carries the backoff delay to wait before retrying.
type Action struct {
	Kind  ActionKind
	After time.Duration
}

const (
	initialBackoff = time.Second
	maxBackoff     = 60 * time.Second
	backoffFactor  = 2.0
)

// NewBackOff builds the exponential backoff policy: initial 1s, doubled on
// each consecutive failure, capped at 60s, reset to initial on success.
// RandomizationFactor is zeroed so the schedule is the exact deterministic
// doubling, not the library's default jittered variant.
func NewBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initialBackoff
	b.MaxInterval = maxBackoff
	b.Multiplier = backoffFactor
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0 // never give up retrying a configured peer
	b.Reset()
	return b
}

// FSM is the per-peer state machine. It holds no I/O handles; the caller
// is responsible for opening/closing clients and scheduling timers as
// instructed by the Actions each transition returns.
type FSM struct {
	state   State
	backoff *backoff.ExponentialBackOff
}

func NewFSM() *FSM {
	return &FSM{state: Idle, backoff: NewBackOff()}
}

func (f *FSM) State() State { return f.state }

// HandlePeerAdd implements the IDLE -> SYNCING transition. Called both for
// a brand new peer and for an existing peer forced back through IDLE by a
// spec change or a Configuration error.
func (f *FSM) HandlePeerAdd() []Action {
	if f.state != Idle {
		return nil
	}
	f.state = Syncing
	return []Action{{Kind: ActionOpenClient}, {Kind: ActionIssueSync}}
}

// HandleSyncRespRcvd implements SYNCING -> INITIALIZED, and the
// INITIALIZED -> INITIALIZED reentrant no-op for a resync while already
// initialized.
func (f *FSM) HandleSyncRespRcvd() []Action {
	switch f.state {
	case Syncing:
		f.state = Initialized
		f.backoff.Reset()
		return nil
	case Initialized:
		return nil
	default:
		return nil
	}
}

// HandleRPCError implements the -> IDLE rollback from either SYNCING or
// INITIALIZED, scheduling a retry with the next backoff interval.
func (f *FSM) HandleRPCError() []Action {
	switch f.state {
	case Syncing, Initialized:
		f.state = Idle
		delay := f.backoff.NextBackOff()
		return []Action{{Kind: ActionCloseClient}, {Kind: ActionScheduleRetry, After: delay}}
	default:
		return nil
	}
}

// HandlePeerDel implements peer removal from any state: cancel any
// pending sync and release the client if one is open.
func (f *FSM) HandlePeerDel() []Action {
	prev := f.state
	f.state = Idle
	actions := []Action{{Kind: ActionCancelPendingSync}}
	if prev != Idle {
		actions = append(actions, Action{Kind: ActionCloseClient})
	}
	return actions
}
