package index

import "sync"

// garbageItem is a record (or node) unlinked from the tree at a given
// epoch but not yet reclaimed, since a reader that started before the
// unlink may still dereference it.
type garbageItem struct {
	item  any
	epoch uint64
}

// Garbage defers freeing unlinked nodes and records until the global
// epoch has advanced at least two steps past the epoch they were
// unlinked in, the window spec.md §5 requires so no in-flight reader
// can still be traversing a reclaimed pointer. Go's garbage collector
// does the actual freeing; this list only delays the last reference
// drop until that window has passed, matching the original's explicit
// epoch-based reclamation discipline.
type Garbage struct {
	mu    sync.Mutex
	items []garbageItem
}

// NewGarbage returns an empty garbage list.
func NewGarbage() *Garbage {
	return &Garbage{}
}

// Defer records item as unlinked at epoch.
func (g *Garbage) Defer(item any, epoch uint64) {
	g.mu.Lock()
	g.items = append(g.items, garbageItem{item: item, epoch: epoch})
	g.mu.Unlock()
}

// Reclaim drops the last reference to every item whose unlink epoch is
// at least two epochs behind currentEpoch, letting Go's collector free
// the underlying memory.
func (g *Garbage) Reclaim(currentEpoch uint64) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	kept := g.items[:0]
	reclaimed := 0
	for _, it := range g.items {
		if currentEpoch >= it.epoch+2 {
			reclaimed++
			continue
		}
		kept = append(kept, it)
	}
	g.items = kept
	return reclaimed
}

// Pending returns the number of items still awaiting reclamation.
func (g *Garbage) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.items)
}

// pendingDelete is a key committed as DELETE whose slot has not yet been
// physically unlinked from the tree.
type pendingDelete struct {
	key   []byte
	epoch uint64
}

// PendingDeletes holds keys committed as DELETE, marked absent on their
// record immediately but not yet unlinked from the border node that
// holds them; unlinking is deferred to the next GC pass so it never
// races a reader mid-traversal of the same slot (spec.md §5
// "Reclamation", §9 Open Question 3).
type PendingDeletes struct {
	mu    sync.Mutex
	items []pendingDelete
}

// NewPendingDeletes returns an empty pending-delete list.
func NewPendingDeletes() *PendingDeletes {
	return &PendingDeletes{}
}

// Defer records key as committed-DELETE at epoch.
func (p *PendingDeletes) Defer(key []byte, epoch uint64) {
	p.mu.Lock()
	p.items = append(p.items, pendingDelete{key: append([]byte(nil), key...), epoch: epoch})
	p.mu.Unlock()
}

// drain removes and returns every key whose delete epoch is at least two
// epochs behind currentEpoch, the same reclamation window Garbage uses.
func (p *PendingDeletes) drain(currentEpoch uint64) [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	var due [][]byte
	kept := p.items[:0]
	for _, it := range p.items {
		if currentEpoch >= it.epoch+2 {
			due = append(due, it.key)
			continue
		}
		kept = append(kept, it)
	}
	p.items = kept
	return due
}
