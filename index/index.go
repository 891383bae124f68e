// Package index implements the masstree-style lock-free ordered trie
// described in spec.md §3-4: a layered structure of interior and border
// nodes keyed on fixed-width key slices, with a stable-version reader
// protocol, per-node CAS locks for writers, and epoch-gated deferred
// reclamation of unlinked nodes.
package index

import (
	"sync/atomic"

	"github.com/coredao-org/sealedkv/keycodec"
	"github.com/coredao-org/sealedkv/record"
	"github.com/coredao-org/sealedkv/status"
)

// Index owns the layer-0 root and the per-worker garbage lists used to
// defer reclamation of unlinked nodes until no reader can still be
// traversing them (spec.md §5 "Reclamation").
type Index struct {
	root    atomic.Pointer[nodeBox]
	gc      *Garbage
	deletes *PendingDeletes
	epoch   atomic.Uint64
}

// SetEpoch records the current global epoch, used to tag nodes and
// records deferred to the garbage list so GC knows when they are safe
// to reclaim.
func (idx *Index) SetEpoch(e uint64) { idx.epoch.Store(e) }

// New returns an empty index with a single empty border node as its
// layer-0 root.
func New() *Index {
	idx := &Index{gc: NewGarbage(), deletes: NewPendingDeletes()}
	root := NewBorderNode()
	root.setIsRoot(true)
	idx.storeRoot(root)
	return idx
}

func (idx *Index) loadRoot() node { return loadRootSlot(&idx.root) }

func (idx *Index) storeRoot(n node) { storeRootSlot(&idx.root, n) }

// Get looks up key and returns its record, or WarnNotFound.
func (idx *Index) Get(key []byte) (*record.Record, status.Status) {
	return Get(idx.loadRoot(), key)
}

// Insert adds a new record for key at the given epoch. It returns
// WarnAlreadyExists if the key is already present.
func (idx *Index) Insert(key []byte, epoch uint32) (*record.Record, status.Status) {
	k := keycodec.Encode(key)
	return idx.insertAt(&idx.root, k, 0, epoch)
}

// Remove clears key's slot, unlinking the border (or collapsing its
// layer) if that slot's removal leaves it empty or single-entry.
func (idx *Index) Remove(key []byte) status.Status {
	k := keycodec.Encode(key)
	return idx.removeAt(&idx.root, k, 0)
}

// Scan invokes fn for every record whose key falls in [start, end)
// (end == nil means unbounded), in ascending key order, by walking the
// layer-0 border node linked list. fn returning false stops the scan.
func (idx *Index) Scan(start, end []byte, fn func(key []byte, rec *record.Record) bool) {
	scan(idx.loadRoot(), start, end, fn)
}

// DeferDelete records key as committed-DELETE at epoch. The record's TID
// word already carries the absent bit by the time this is called; the
// slot itself is unlinked later, by GC, once no in-flight reader can
// still be mid-traversal of it.
func (idx *Index) DeferDelete(key []byte, epoch uint64) {
	idx.deletes.Defer(key, epoch)
}

// GC runs one epoch-boundary reclamation pass: it first unlinks every
// committed DELETE whose epoch is far enough behind currentEpoch, then
// frees nodes unlinked at least two global epochs ago (spec.md §5).
func (idx *Index) GC(currentEpoch uint64) {
	for _, key := range idx.deletes.drain(currentEpoch) {
		idx.removeAt(&idx.root, keycodec.Encode(key), 0)
	}
	idx.gc.Reclaim(currentEpoch)
}
