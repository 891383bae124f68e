package txn

import (
	"github.com/coredao-org/sealedkv/index"
	"github.com/coredao-org/sealedkv/record"
	"github.com/coredao-org/sealedkv/status"
	"github.com/coredao-org/sealedkv/wal"
)

// OpKind is the logical operation a write-set entry represents.
type OpKind int

const (
	OpInsert OpKind = iota
	OpWrite
	OpDelete
)

type readEntry struct {
	key      []byte
	rec      *record.Record
	observed record.TIDWord
}

type writeEntry struct {
	key   []byte
	rec   *record.Record
	value []byte
	op    OpKind
}

// NotificationRegistrar records that notificationID is waiting for
// epoch to become durable, kept narrow so txn does not need to import
// the notify package directly.
type NotificationRegistrar interface {
	Register(epoch uint64, notificationID uint64)
}

// Executor runs one transaction's read/write phase against the shared
// index, validates it against the runtime's epoch/TID state, and on
// commit pushes its write set to the worker's log buffer pool
// (spec.md §4.4).
type Executor struct {
	rt       *Runtime
	idx      *index.Index
	buffers  *wal.BufferPool
	workerID int
	notifier NotificationRegistrar

	readSet  []readEntry
	writeSet []writeEntry
}

// NewExecutor binds an executor to worker workerID's runtime slot, the
// shared index, that worker's log buffer pool, and (optionally, may be
// nil) the notifier that releases client responses once a commit's
// epoch is durable.
func NewExecutor(rt *Runtime, idx *index.Index, buffers *wal.BufferPool, workerID int, notifier NotificationRegistrar) *Executor {
	return &Executor{rt: rt, idx: idx, buffers: buffers, workerID: workerID, notifier: notifier}
}

// Begin resets the executor's read/write sets for a new transaction.
func (e *Executor) Begin() {
	e.readSet = e.readSet[:0]
	e.writeSet = e.writeSet[:0]
}

// Read looks up key, tracking it in the read set for validation. Writes
// already staged in this transaction are served from the write set.
func (e *Executor) Read(key []byte) ([]byte, status.Status) {
	for i := range e.writeSet {
		if string(e.writeSet[i].key) == string(key) {
			if e.writeSet[i].op == OpDelete {
				return nil, status.WarnNotFound
			}
			return e.writeSet[i].value, status.OK
		}
	}
	rec, st := e.idx.Get(key)
	if st != status.OK {
		return nil, st
	}
	e.readSet = append(e.readSet, readEntry{key: key, rec: rec, observed: rec.TID.Load()})
	return append([]byte(nil), rec.Body...), status.OK
}

// Write stages a value write for key, inserting a new record if key is
// absent so the commit phase always has a *record.Record to lock.
func (e *Executor) Write(key, value []byte) status.Status {
	rec, st := e.idx.Get(key)
	op := OpWrite
	if st == status.WarnNotFound {
		var ierr status.Status
		rec, ierr = e.idx.Insert(key, uint32(e.rt.WorkerEpoch(e.workerID)))
		if ierr != status.OK {
			return ierr
		}
		op = OpInsert
	} else if st != status.OK {
		return st
	}
	e.writeSet = append(e.writeSet, writeEntry{key: key, rec: rec, value: value, op: op})
	return status.OK
}

// Delete stages a delete for key.
func (e *Executor) Delete(key []byte) status.Status {
	rec, st := e.idx.Get(key)
	if st != status.OK {
		return st
	}
	e.writeSet = append(e.writeSet, writeEntry{key: key, rec: rec, op: OpDelete})
	return status.OK
}

// Scan walks [start, end) in ascending key order, invoking fn for every
// live key. It is not tracked in the read set: range-based predicate
// locking is an explicit Non-goal, so a concurrent insert or delete
// within the range is not validated against at commit time.
func (e *Executor) Scan(start, end []byte, fn func(key, value []byte) bool) {
	e.idx.Scan(start, end, func(key []byte, rec *record.Record) bool {
		return fn(key, rec.Body)
	})
}

// ReadOnly reports whether this transaction has no staged writes; such
// transactions ack immediately on commit, per spec.md §4.4.
func (e *Executor) ReadOnly() bool { return len(e.writeSet) == 0 }

// validate implements spec.md §4.4 Validation: lock every write-set
// record, fence, refresh ThLocalEpoch[w], then re-check every read-set
// entry's TID word hasn't moved and isn't locked by a third party.
func (e *Executor) validate() (record.TIDWord, bool) {
	locked := make([]*record.Record, 0, len(e.writeSet))
	ok := true
	for _, w := range e.writeSet {
		if _, acquired := w.rec.SpinLock(1 << 16); !acquired {
			ok = false
			break
		}
		locked = append(locked, w.rec)
	}
	if !ok {
		for _, r := range locked {
			r.Unlock()
		}
		return 0, false
	}

	e.rt.SetWorkerEpoch(e.workerID, e.rt.GlobalEpoch())

	var maxRset record.TIDWord
	for _, r := range e.readSet {
		cur := r.rec.TID.Load()
		inWriteSet := false
		for _, w := range e.writeSet {
			if w.rec == r.rec {
				inWriteSet = true
				break
			}
		}
		if cur.Epoch() != r.observed.Epoch() || cur.TID() != r.observed.TID() {
			ok = false
			break
		}
		if cur.Locked() && !inWriteSet {
			ok = false
			break
		}
		maxRset = record.Max(maxRset, cur)
	}

	if !ok {
		for _, r := range locked {
			r.Unlock()
		}
		return 0, false
	}
	return maxRset, true
}

// Commit validates the transaction and, if it survives, installs new
// TID words and pushes the write set to the log buffer pool. It returns
// StatusOK, ErrorConcurrentWriteOrDelete (caller should retry from
// Begin), or a propagated read-phase status.
func (e *Executor) Commit(notificationID uint64) status.Status {
	if e.ReadOnly() {
		return status.OK
	}

	maxRset, ok := e.validate()
	if !ok {
		return status.ErrorConcurrentWriteOrDelete
	}

	var maxWset record.TIDWord
	for _, w := range e.writeSet {
		maxWset = record.Max(maxWset, w.rec.TID.Load())
	}

	epoch := uint32(e.rt.WorkerEpoch(e.workerID))
	lastCommitted := record.TIDWord(e.rt.WorkerCTIDW(e.workerID))
	observedMax := record.Max(maxRset, maxWset)
	next := record.NextCommit(observedMax, lastCommitted, epoch)

	newEpochBegins := next.Epoch() != lastCommitted.Epoch()

	entries := make([]wal.Entry, len(e.writeSet))
	for i, w := range e.writeSet {
		var op wal.OpType
		switch w.op {
		case OpInsert:
			op = wal.OpInsert
		case OpDelete:
			op = wal.OpDelete
		default:
			op = wal.OpWrite
		}
		entries[i] = wal.Entry{Key: w.key, Value: w.value, Op: op}
		if w.op == OpDelete {
			w.rec.TID.Store(next.WithAbsent(true))
			e.idx.DeferDelete(w.key, uint64(next.Epoch()))
		} else {
			w.rec.Body = w.value
			w.rec.TID.Store(next)
		}
	}

	e.rt.SetWorkerCTIDW(e.workerID, uint64(next))
	e.buffers.Push(uint64(next), notificationID, entries, newEpochBegins)
	if e.notifier != nil {
		e.notifier.Register(uint64(next.Epoch()), notificationID)
	}
	return status.OK
}

// Abort releases every lock this transaction's validate acquired
// without advancing tid/epoch on any record. Any key this transaction
// inserted is also removed from the index: left in place, it would sit
// forever as a phantom record nothing ever wrote to.
func (e *Executor) Abort() {
	for _, w := range e.writeSet {
		w.rec.Unlock()
	}
	for _, w := range e.writeSet {
		if w.op == OpInsert {
			e.idx.Remove(w.key)
		}
	}
}
