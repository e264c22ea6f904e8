package area

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meshkv/kvstore/internal/record"
)

func TestStoreSetKVAppliesMerge(t *testing.T) {
	s := NewStore("node-a")

	delta := s.SetKV(map[string]record.Record{
		"k1": record.New(1, "node-a", []byte("v1"), record.TTLInfinite, time.Unix(0, 0)),
	})
	require.False(t, delta.Empty())
	require.Contains(t, delta.Updated, "k1")

	// A lower version must not overwrite the winner.
	delta = s.SetKV(map[string]record.Record{
		"k1": record.New(0, "node-b", []byte("stale"), record.TTLInfinite, time.Unix(1, 0)),
	})
	require.True(t, delta.Empty())

	got := s.Get([]string{"k1", "missing"})
	require.Len(t, got, 1)
	require.Equal(t, []byte("v1"), got["k1"].Value)
}

func TestStoreEmptySetKVIsANoOp(t *testing.T) {
	// An empty key-vals batch succeeds silently rather than erroring.
	s := NewStore("node-a")
	delta := s.SetKV(map[string]record.Record{})
	require.True(t, delta.Empty())
}

func TestStoreDumpFilters(t *testing.T) {
	s := NewStore("node-a")
	s.SetKV(map[string]record.Record{
		"prefix/one": record.New(1, "node-a", []byte("v"), record.TTLInfinite, time.Unix(0, 0)),
		"prefix/two": record.New(1, "node-b", []byte("v"), record.TTLInfinite, time.Unix(0, 0)),
		"other/key":  record.New(1, "node-a", []byte("v"), record.TTLInfinite, time.Unix(0, 0)),
	})

	all := s.Dump(Filter{})
	require.Len(t, all, 3)

	byPrefix := s.Dump(Filter{Prefixes: []string{"prefix/"}})
	require.Len(t, byPrefix, 2)

	byOriginator := s.Dump(Filter{Originators: map[string]struct{}{"node-b": {}}})
	require.Len(t, byOriginator, 1)
	require.Contains(t, byOriginator, "prefix/two")

	byUnknownOriginator := s.Dump(Filter{Originators: map[string]struct{}{"node-z": {}}})
	require.Empty(t, byUnknownOriginator)
}

func TestStoreDumpHashesStripsValue(t *testing.T) {
	s := NewStore("node-a")
	s.SetKV(map[string]record.Record{
		"k1": record.New(1, "node-a", []byte("v1"), record.TTLInfinite, time.Unix(0, 0)),
	})
	hashes := s.DumpHashes("")
	require.Nil(t, hashes["k1"].Value)
	require.NotEmpty(t, hashes["k1"].Hash)
}

func TestStoreExpireTick(t *testing.T) {
	s := NewStore("node-a")
	now := time.Unix(1000, 0)
	s.SetKV(map[string]record.Record{
		"expiring": record.New(1, "node-a", []byte("v"), time.Minute, now.Add(-2*time.Minute)),
		"forever":  record.New(1, "node-a", []byte("v"), record.TTLInfinite, now.Add(-time.Hour)),
	})

	delta := s.ExpireTick(now)
	require.Equal(t, []string{"expiring"}, delta.Expired)

	remaining := s.Dump(Filter{})
	require.Len(t, remaining, 1)
	require.Contains(t, remaining, "forever")
}

func TestStoreDumpSelfOriginated(t *testing.T) {
	s := NewStore("node-a")
	s.SetKV(map[string]record.Record{
		"mine":   record.New(1, "node-a", []byte("v"), record.TTLInfinite, time.Unix(0, 0)),
		"theirs": record.New(1, "node-b", []byte("v"), record.TTLInfinite, time.Unix(0, 0)),
	})
	self := s.DumpSelfOriginated()
	require.Len(t, self, 1)
	require.Contains(t, self, "mine")
}
