package peer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func actionKinds(actions []Action) []ActionKind {
	kinds := make([]ActionKind, len(actions))
	for i, a := range actions {
		kinds[i] = a.Kind
	}
	return kinds
}

// TestFSMFullLifecycle walks the FSM through add, sync success, and an RPC
// error rollback from INITIALIZED with a scheduled retry.
func TestFSMFullLifecycle(t *testing.T) {
	f := NewFSM()
	require.Equal(t, Idle, f.State())

	actions := f.HandlePeerAdd()
	require.Equal(t, Syncing, f.State())
	require.Equal(t, []ActionKind{ActionOpenClient, ActionIssueSync}, actionKinds(actions))

	actions = f.HandleSyncRespRcvd()
	require.Equal(t, Initialized, f.State())
	require.Empty(t, actions)

	// From Initialized, RPCError -> Idle.
	actions = f.HandleRPCError()
	require.Equal(t, Idle, f.State())
	require.Equal(t, []ActionKind{ActionCloseClient, ActionScheduleRetry}, actionKinds(actions))
}

func TestFSMSyncingRPCErrorRollsBackToIdle(t *testing.T) {
	f := NewFSM()
	f.HandlePeerAdd()
	require.Equal(t, Syncing, f.State())

	actions := f.HandleRPCError()
	require.Equal(t, Idle, f.State())
	require.Equal(t, []ActionKind{ActionCloseClient, ActionScheduleRetry}, actionKinds(actions))
}

func TestFSMInitializedReentrantSyncIsNoOp(t *testing.T) {
	f := NewFSM()
	f.HandlePeerAdd()
	f.HandleSyncRespRcvd()
	require.Equal(t, Initialized, f.State())

	actions := f.HandleSyncRespRcvd()
	require.Equal(t, Initialized, f.State())
	require.Empty(t, actions)
}

func TestFSMBackoffDoublesAndCaps(t *testing.T) {
	f := NewFSM()
	f.HandlePeerAdd()

	first := f.HandleRPCError()[1].After
	require.Equal(t, initialBackoff, first)

	f.HandlePeerAdd()
	second := f.HandleRPCError()[1].After
	require.Equal(t, initialBackoff*2, second)

	f.HandlePeerAdd()
	third := f.HandleRPCError()[1].After
	require.Equal(t, initialBackoff*4, third)

	// Keep failing until the schedule saturates at the cap.
	var delay time.Duration
	for i := 0; i < 10; i++ {
		f.HandlePeerAdd()
		delay = f.HandleRPCError()[1].After
	}
	require.Equal(t, maxBackoff, delay)
}

func TestFSMBackoffResetsOnSuccess(t *testing.T) {
	f := NewFSM()
	f.HandlePeerAdd()
	f.HandleRPCError() // consumes 1s, schedule advances to 2s

	f.HandlePeerAdd()
	f.HandleSyncRespRcvd() // success resets the schedule back to 1s

	delay := f.HandleRPCError()[1].After
	require.Equal(t, initialBackoff, delay)
}

func TestFSMPeerDelCancelsFromAnyState(t *testing.T) {
	f := NewFSM()
	actions := f.HandlePeerDel()
	require.Equal(t, []ActionKind{ActionCancelPendingSync}, actionKinds(actions))

	f.HandlePeerAdd()
	actions = f.HandlePeerDel()
	require.Equal(t, []ActionKind{ActionCancelPendingSync, ActionCloseClient}, actionKinds(actions))
	require.Equal(t, Idle, f.State())
}
