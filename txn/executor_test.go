package txn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coredao-org/sealedkv/index"
	"github.com/coredao-org/sealedkv/status"
	"github.com/coredao-org/sealedkv/wal"
)

func newTestExecutor(t *testing.T) (*Executor, *Runtime) {
	t.Helper()
	rt := NewRuntime(1, 1)
	idx := index.New()
	queue := wal.NewQueue()
	pool := wal.NewBufferPool(2, 1000, queue)
	return NewExecutor(rt, idx, pool, 0, nil), rt
}

func TestWriteThenReadSeesOwnWrite(t *testing.T) {
	e, _ := newTestExecutor(t)
	e.Begin()
	require.Equal(t, status.OK, e.Write([]byte("k"), []byte("v1")))
	got, st := e.Read([]byte("k"))
	require.Equal(t, status.OK, st)
	assert.Equal(t, []byte("v1"), got)
}

func TestCommitPersistsWriteAndIsVisibleToNewTransaction(t *testing.T) {
	e, rt := newTestExecutor(t)
	e.Begin()
	require.Equal(t, status.OK, e.Write([]byte("k"), []byte("v1")))
	require.Equal(t, status.OK, e.Commit(1))

	e.Begin()
	got, st := e.Read([]byte("k"))
	require.Equal(t, status.OK, st)
	assert.Equal(t, []byte("v1"), got)
	_ = rt
}

func TestReadOnlyCommitNeedsNoValidation(t *testing.T) {
	e, _ := newTestExecutor(t)
	e.Begin()
	_, st := e.Read([]byte("missing"))
	assert.Equal(t, status.WarnNotFound, st)
	assert.True(t, e.ReadOnly())
	assert.Equal(t, status.OK, e.Commit(1))
}

func TestCommittedDeleteIsNotReadableByLaterTransaction(t *testing.T) {
	e, _ := newTestExecutor(t)
	e.Begin()
	require.Equal(t, status.OK, e.Write([]byte("k"), []byte("v1")))
	require.Equal(t, status.OK, e.Commit(1))

	e.Begin()
	require.Equal(t, status.OK, e.Delete([]byte("k")))
	require.Equal(t, status.OK, e.Commit(2))

	e.Begin()
	_, st := e.Read([]byte("k"))
	assert.Equal(t, status.WarnNotFound, st)
}

func TestDeleteIsInvisibleWithinTheDeletingTransaction(t *testing.T) {
	e, _ := newTestExecutor(t)
	e.Begin()
	require.Equal(t, status.OK, e.Write([]byte("k"), []byte("v1")))
	require.Equal(t, status.OK, e.Commit(1))

	e.Begin()
	require.Equal(t, status.OK, e.Delete([]byte("k")))
	_, st := e.Read([]byte("k"))
	assert.Equal(t, status.WarnNotFound, st)
}

func TestAbortAfterInsertRemovesTheIndexEntry(t *testing.T) {
	e, _ := newTestExecutor(t)
	e.Begin()
	require.Equal(t, status.OK, e.Write([]byte("phantom"), []byte("v1")))
	e.Abort()

	_, st := e.idx.Get([]byte("phantom"))
	assert.Equal(t, status.WarnNotFound, st)

	e.Begin()
	require.Equal(t, status.OK, e.Write([]byte("phantom"), []byte("v2")))
	require.Equal(t, status.OK, e.Commit(1))

	e.Begin()
	got, st3 := e.Read([]byte("phantom"))
	require.Equal(t, status.OK, st3)
	assert.Equal(t, []byte("v2"), got)
}

func TestReadSetConflictAbortsCommit(t *testing.T) {
	e, _ := newTestExecutor(t)
	e.Begin()
	require.Equal(t, status.OK, e.Write([]byte("k"), []byte("v1")))
	require.Equal(t, status.OK, e.Write([]byte("other"), []byte("o1")))
	require.Equal(t, status.OK, e.Commit(1))

	e.Begin()
	_, st := e.Read([]byte("k"))
	require.Equal(t, status.OK, st)

	// a second executor sharing the same index commits a new version of
	// k behind e's back before e validates.
	other := NewExecutor(e.rt, e.idx, wal.NewBufferPool(2, 1000, wal.NewQueue()), 0, nil)
	other.Begin()
	require.Equal(t, status.OK, other.Write([]byte("k"), []byte("v2")))
	require.Equal(t, status.OK, other.Commit(2))

	require.Equal(t, status.OK, e.Write([]byte("other"), []byte("o2")))
	st2 := e.Commit(3)
	assert.Equal(t, status.ErrorConcurrentWriteOrDelete, st2)
}
