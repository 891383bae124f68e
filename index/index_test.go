package index

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coredao-org/sealedkv/record"
	"github.com/coredao-org/sealedkv/status"
)

func TestInsertGetRoundTrip(t *testing.T) {
	idx := New()
	rec, st := idx.Insert([]byte("hello"), 1)
	require.Equal(t, status.OK, st)
	rec.Body = []byte("world")

	got, st2 := idx.Get([]byte("hello"))
	require.Equal(t, status.OK, st2)
	assert.Equal(t, []byte("world"), got.Body)
}

func TestInsertDuplicateKeyFails(t *testing.T) {
	idx := New()
	_, st := idx.Insert([]byte("dup"), 1)
	require.Equal(t, status.OK, st)
	_, st2 := idx.Insert([]byte("dup"), 1)
	assert.NotEqual(t, status.OK, st2)
}

func TestInsertManyAndGetAll(t *testing.T) {
	idx := New()
	n := 200
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("key-%04d", i))
		_, st := idx.Insert(key, 1)
		require.Equal(t, status.OK, st, "insert %d", i)
	}
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("key-%04d", i))
		_, st := idx.Get(key)
		require.Equal(t, status.OK, st, "get %d", i)
	}
}

func TestRemoveThenGetNotFound(t *testing.T) {
	idx := New()
	idx.Insert([]byte("gone"), 1)
	st := idx.Remove([]byte("gone"))
	require.Equal(t, status.OK, st)

	_, st2 := idx.Get([]byte("gone"))
	assert.Equal(t, status.WarnNotFound, st2)
}

func TestLayerCreationOnSliceCollision(t *testing.T) {
	idx := New()
	// these two keys share their first 8-byte slice exactly but differ
	// in the bytes that follow, forcing a nested layer.
	a := []byte("0123456789A")
	b := []byte("0123456789B")
	_, st := idx.Insert(a, 1)
	require.Equal(t, status.OK, st)
	_, st2 := idx.Insert(b, 1)
	require.Equal(t, status.OK, st2)

	ra, sa := idx.Get(a)
	rb, sb := idx.Get(b)
	require.Equal(t, status.OK, sa)
	require.Equal(t, status.OK, sb)
	assert.NotSame(t, ra, rb)
}

func TestShortExactKeySharingSliceWithSuffixedKeyDoesNotCreateLayer(t *testing.T) {
	idx := New()
	long := []byte("01234567ABCDEF")
	short := []byte("01234567")
	_, st := idx.Insert(long, 1)
	require.Equal(t, status.OK, st)
	_, st2 := idx.Insert(short, 1)
	require.Equal(t, status.OK, st2)

	rl, sl := idx.Get(long)
	rs, ss := idx.Get(short)
	require.Equal(t, status.OK, sl)
	require.Equal(t, status.OK, ss)
	assert.NotSame(t, rl, rs)
}

func TestRemovingOneLayerEntryLeavesTheOtherReachable(t *testing.T) {
	idx := New()
	a := []byte("0123456789A")
	b := []byte("0123456789B")
	idx.Insert(a, 1)
	idx.Insert(b, 1)

	require.Equal(t, status.OK, idx.Remove(a))
	_, sa := idx.Get(a)
	assert.Equal(t, status.WarnNotFound, sa)

	_, sb := idx.Get(b)
	require.Equal(t, status.OK, sb)

	// the layer has collapsed back into a single slot; a further insert
	// that collides with b's slice must still split into a fresh layer.
	c := []byte("0123456789C")
	_, sc := idx.Insert(c, 1)
	require.Equal(t, status.OK, sc)
	_, sb2 := idx.Get(b)
	_, sc2 := idx.Get(c)
	require.Equal(t, status.OK, sb2)
	require.Equal(t, status.OK, sc2)
}

func TestGCUnlinksDeferredDelete(t *testing.T) {
	idx := New()
	idx.Insert([]byte("tombstone"), 1)
	idx.DeferDelete([]byte("tombstone"), 1)

	idx.GC(1)
	_, st := idx.Get([]byte("tombstone"))
	require.Equal(t, status.OK, st, "unlink not due yet, slot still holds the record")

	idx.GC(3)
	_, st2 := idx.Get([]byte("tombstone"))
	assert.Equal(t, status.WarnNotFound, st2)

	// the slot is now free for a fresh insert under the same key.
	_, st3 := idx.Insert([]byte("tombstone"), 2)
	assert.Equal(t, status.OK, st3)
}

func TestScanOrdersKeysAscending(t *testing.T) {
	idx := New()
	keys := []string{"b", "a", "d", "c"}
	for _, k := range keys {
		idx.Insert([]byte(k), 1)
	}
	var seen []string
	idx.Scan(nil, nil, func(key []byte, _ *record.Record) bool {
		seen = append(seen, string(key))
		return true
	})
	assert.Equal(t, []string{"a", "b", "c", "d"}, seen)
}
