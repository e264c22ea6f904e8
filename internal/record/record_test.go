package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestComputeHashDeterministic(t *testing.T) {
	a := New(1, "node-a", []byte("hello"), TTLInfinite, time.Unix(0, 0))
	b := New(1, "node-a", []byte("hello"), TTLInfinite, time.Unix(999, 0))
	require.Equal(t, a.Hash, b.Hash, "hash must not depend on LastRefresh")

	c := New(2, "node-a", []byte("hello"), TTLInfinite, time.Unix(0, 0))
	require.NotEqual(t, a.Hash, c.Hash)
}

func TestStripValueKeepsHash(t *testing.T) {
	r := New(1, "node-a", []byte("hello"), TTLInfinite, time.Unix(0, 0))
	stripped := r.StripValue()
	require.Nil(t, stripped.Value)
	require.Equal(t, r.Hash, stripped.Hash)
}

func TestExpired(t *testing.T) {
	now := time.Unix(1000, 0)
	infinite := New(1, "a", nil, TTLInfinite, now.Add(-time.Hour))
	require.False(t, infinite.Expired(now))

	fresh := New(1, "a", nil, time.Minute, now)
	require.False(t, fresh.Expired(now))

	stale := New(1, "a", nil, time.Minute, now.Add(-2*time.Minute))
	require.True(t, stale.Expired(now))
}
