package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTIDWordBitfields(t *testing.T) {
	tw := NewTIDWord(7)
	assert.False(t, tw.Locked())
	assert.True(t, tw.Latest())
	assert.True(t, tw.Absent())
	assert.Equal(t, uint32(7), tw.Epoch())
	assert.Equal(t, uint32(0), tw.TID())

	tw = tw.withLocked(true)
	assert.True(t, tw.Locked())
	tw = tw.withLocked(false).withAbsent(false).withTID(12)
	assert.False(t, tw.Locked())
	assert.False(t, tw.Absent())
	assert.Equal(t, uint32(12), tw.TID())
	assert.Equal(t, uint32(7), tw.Epoch())
}

func TestTIDWordOrdersAsUint64(t *testing.T) {
	a := TIDWord(0).withEpoch(1).withTID(5)
	b := TIDWord(0).withEpoch(1).withTID(6)
	require.Less(t, a, b)

	c := TIDWord(0).withEpoch(2).withTID(0)
	require.Less(t, b, c)
}

func TestNextCommitPicksMaximum(t *testing.T) {
	observed := TIDWord(0).withEpoch(3).withTID(10)
	lastCommitted := TIDWord(0).withEpoch(3).withTID(20)
	next := NextCommit(observed, lastCommitted, 3)
	assert.Equal(t, uint32(21), next.TID())
	assert.False(t, next.Locked())
	assert.True(t, next.Latest())
	assert.False(t, next.Absent())
}

func TestRecordSpinLockAndUnlock(t *testing.T) {
	r := NewRecord(1)
	prev, ok := r.SpinLock(1000)
	require.True(t, ok)
	assert.False(t, prev.Locked())
	assert.True(t, r.TID.Load().Locked())

	r.Unlock()
	assert.False(t, r.TID.Load().Locked())
	// abort must not advance tid/epoch
	assert.Equal(t, uint32(0), r.TID.Load().TID())
	assert.Equal(t, uint32(1), r.TID.Load().Epoch())
}

func TestRecordSpinLockConflict(t *testing.T) {
	r := NewRecord(1)
	_, ok := r.SpinLock(1)
	require.True(t, ok)
	_, ok2 := r.SpinLock(3)
	assert.False(t, ok2)
}
