package flood

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meshkv/kvstore/internal/peer"
	"github.com/meshkv/kvstore/internal/rpc"
)

type fakeClient struct {
	applyErr error
	applied  []rpc.Publication
}

func (f *fakeClient) SyncHashes(ctx context.Context, req rpc.SyncHashesRequest) (rpc.PullResponse, error) {
	return rpc.PullResponse{}, nil
}

func (f *fakeClient) ApplyPublication(ctx context.Context, pub rpc.Publication) (rpc.Ack, error) {
	if f.applyErr != nil {
		return rpc.Ack{}, f.applyErr
	}
	f.applied = append(f.applied, pub)
	return rpc.Ack{OK: true}, nil
}

func (f *fakeClient) Close() error { return nil }

func TestRecipientsSplitHorizon(t *testing.T) {
	targets := []Target{
		{Name: "sender", State: peer.Initialized, Client: &fakeClient{}},
		{Name: "other", State: peer.Initialized, Client: &fakeClient{}},
		{Name: "not-ready", State: peer.Syncing, Client: &fakeClient{}},
	}
	pub := rpc.Publication{}

	recipients := Recipients(targets, pub, []string{"sender"}, true)
	require.Len(t, recipients, 1)
	require.Equal(t, "other", recipients[0].Name)
}

func TestRecipientsLoopSuppression(t *testing.T) {
	targets := []Target{
		{Name: "already-seen", State: peer.Initialized, Client: &fakeClient{}},
		{Name: "fresh", State: peer.Initialized, Client: &fakeClient{}},
	}
	pub := rpc.Publication{NodePath: []string{"already-seen"}}

	recipients := Recipients(targets, pub, nil, true)
	require.Len(t, recipients, 1)
	require.Equal(t, "fresh", recipients[0].Name)
}

// TestRecipientsLoopSuppressionMultiHop covers a node path accumulated
// across several hops (as it would arrive at the third node of a ring),
// not just a single immediate sender.
func TestRecipientsLoopSuppressionMultiHop(t *testing.T) {
	targets := []Target{
		{Name: "n1", State: peer.Initialized, Client: &fakeClient{}},
		{Name: "n3", State: peer.Initialized, Client: &fakeClient{}},
	}
	pub := rpc.Publication{NodePath: []string{"n1", "n2"}}

	recipients := Recipients(targets, pub, []string{"n2"}, true)
	require.Len(t, recipients, 1)
	require.Equal(t, "n3", recipients[0].Name)
}

func TestRecipientsFloodOptimizationDisabled(t *testing.T) {
	targets := []Target{
		{Name: "sender", State: peer.Initialized, Client: &fakeClient{}},
	}
	pub := rpc.Publication{}

	// With optimization disabled, split horizon is not applied -- only
	// loop suppression via node path still holds.
	recipients := Recipients(targets, pub, []string{"sender"}, false)
	require.Len(t, recipients, 1)
}

func TestFloodAppendsSelfToNodePath(t *testing.T) {
	client := &fakeClient{}
	targets := []Target{{Name: "peer-b", State: peer.Initialized, Client: client}}
	pub := rpc.Publication{NodePath: []string{"originator"}}

	results := Flood(context.Background(), "self", targets, pub, nil)
	for r := range results {
		require.NoError(t, r.Err)
	}
	require.Len(t, client.applied, 1)
	require.Equal(t, []string{"originator", "self"}, client.applied[0].NodePath)
}

func TestFloodReportsPerPeerFailure(t *testing.T) {
	failing := &fakeClient{applyErr: context.DeadlineExceeded}
	targets := []Target{{Name: "flaky", State: peer.Initialized, Client: failing}}

	results := Flood(context.Background(), "self", targets, rpc.Publication{}, nil)
	var got []Result
	for r := range results {
		got = append(got, r)
	}
	require.Len(t, got, 1)
	require.Error(t, got[0].Err)
	require.Equal(t, "flaky", got[0].PeerName)
}
