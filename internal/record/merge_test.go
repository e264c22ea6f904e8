package record

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func mustRecord(version uint64, originator string, value string) Record {
	return New(version, originator, []byte(value), TTLInfinite, time.Unix(0, 0))
}

func TestMergeHigherVersionWins(t *testing.T) {
	existing := mustRecord(1, "a", "v1")
	incoming := mustRecord(2, "a", "v2")

	winner, outcome := Merge(existing, incoming)
	require.Equal(t, MergeReplaced, outcome)
	require.Equal(t, incoming, winner)

	winner, outcome = Merge(incoming, existing)
	require.Equal(t, MergeNoChange, outcome)
	require.Equal(t, incoming, winner)
}

func TestMergeEqualVersionOriginatorTiebreak(t *testing.T) {
	existing := mustRecord(5, "a", "v1")
	incoming := mustRecord(5, "b", "v2")

	winner, outcome := Merge(existing, incoming)
	require.Equal(t, MergeReplaced, outcome)
	require.Equal(t, "b", winner.OriginatorID)

	winner, outcome = Merge(incoming, existing)
	require.Equal(t, MergeNoChange, outcome)
	require.Equal(t, "b", winner.OriginatorID)
}

func TestMergeEqualVersionOriginatorHashTiebreak(t *testing.T) {
	existing := mustRecord(5, "a", "aaa")
	incoming := mustRecord(5, "a", "zzz")

	// The (5, "a", "aaa") hash begins 0x77 and the (5, "a", "zzz") hash
	// begins 0x18, so existing carries the larger hash and wins either way.
	winner, _ := Merge(existing, incoming)
	require.True(t, SameIdentity(winner, existing))
	winner, _ = Merge(incoming, existing)
	require.True(t, SameIdentity(winner, existing))
}

func TestMergeTTLRefreshOnly(t *testing.T) {
	base := mustRecord(3, "a", "v")
	existing := base
	existing.TTL = time.Minute
	existing.TTLVersion = 1
	existing.LastRefresh = time.Unix(100, 0)

	incoming := base
	incoming.TTL = time.Minute
	incoming.TTLVersion = 2
	incoming.LastRefresh = time.Unix(200, 0)

	winner, outcome := Merge(existing, incoming)
	require.Equal(t, MergeTTLRefresh, outcome)
	require.Equal(t, uint64(2), winner.TTLVersion)
	require.True(t, winner.LastRefresh.Equal(time.Unix(200, 0)))
	// identity fields are untouched by a TTL-only refresh.
	require.Equal(t, existing.Version, winner.Version)
	require.Equal(t, existing.OriginatorID, winner.OriginatorID)
}

func TestMergeIdenticalNoChange(t *testing.T) {
	r := mustRecord(3, "a", "v")
	winner, outcome := Merge(r, r)
	require.Equal(t, MergeNoChange, outcome)
	require.Equal(t, r, winner)
}

func TestMergeLowerVersionNeverOverwritesTTL(t *testing.T) {
	// A record with a lower version must never overwrite TTL bookkeeping
	// regardless of TTLVersion.
	existing := mustRecord(5, "a", "v")
	existing.TTLVersion = 1

	incoming := mustRecord(4, "a", "v-old")
	incoming.TTLVersion = 99

	winner, outcome := Merge(existing, incoming)
	require.Equal(t, MergeNoChange, outcome)
	require.Equal(t, existing, winner)
}

// TestMergeCommutativeAndAssociative is a hand-rolled property check: no
// dependency in the retrieval pack brings a property-testing framework, so
// a manual randomized loop stands in for one.
func TestMergeCommutativeAndAssociative(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	randomRecord := func() Record {
		return New(
			uint64(rng.Intn(5)),
			string(rune('a'+rng.Intn(3))),
			[]byte{byte(rng.Intn(3))},
			TTLInfinite,
			time.Unix(0, 0),
		)
	}

	for i := 0; i < 500; i++ {
		a, b, c := randomRecord(), randomRecord(), randomRecord()

		ab, _ := Merge(a, b)
		ba, _ := Merge(b, a)
		require.True(t, SameIdentity(ab, ba), "merge must be commutative in identity")

		left, _ := Merge(a, b)
		left, _ = Merge(left, c)

		right, _ := Merge(b, c)
		right, _ = Merge(a, right)

		require.True(t, SameIdentity(left, right), "merge must be associative in identity")
	}
}
