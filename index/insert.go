package index

import (
	"sync/atomic"

	"github.com/coredao-org/sealedkv/keycodec"
	"github.com/coredao-org/sealedkv/record"
	"github.com/coredao-org/sealedkv/status"
)

// rootSlot is an atomic box holding the root node of a layer, letting
// insert replace a border-only layer with an interior-rooted one (or a
// new top-level root) without the caller needing to know which kind is
// currently in place.
type rootSlot = atomic.Pointer[nodeBox]

func loadRootSlot(s *rootSlot) node {
	b := s.Load()
	if b == nil {
		return nil
	}
	return b.n
}

func storeRootSlot(s *rootSlot, n node) {
	s.Store(&nodeBox{n: n})
}

// entry is a border slot's contents extracted in permutation (sorted)
// order, the unit split() moves between the left and right halves of a
// full border node.
type entry struct {
	keySlice uint64
	keyLen   uint32
	suffix   *BigSuffix
	lv       *linkOrValue
}

func (idx *Index) insertAt(root *rootSlot, k keycodec.Key, depth int, epoch uint32) (*record.Record, status.Status) {
	slice, _ := k.SliceAt(depth)
	for {
		bn := descendToBorder(loadRootSlot(root), slice)
		if bn == nil {
			return nil, status.New(status.Fatal, "no border node reachable")
		}
		bn.lock()

		physIdx, logicalAt := bn.findSlot(k, depth)
		if physIdx >= 0 {
			kl := bn.getKeyLen(physIdx)
			switch kl {
			case keyLenLayer:
				lr := bn.getSlot(physIdx).layer
				bn.unlock()
				return idx.insertAt(&lr.root, k, depth+1, epoch)
			case keyLenUnstable:
				bn.unlock()
				continue
			default:
				bn.unlock()
				return nil, status.New(status.WarnAlreadyExists, "")
			}
		}

		if collide := bn.findSliceCollision(k, depth); collide >= 0 {
			rec := idx.createLayer(bn, collide, k, depth, epoch)
			bn.unlock()
			return rec, status.OK
		}

		if bn.isFull() {
			bn.setSplitting(true)
			idx.splitBorder(root, bn, slice)
			bn.unlock()
			continue
		}

		bn.setInserting(true)
		rec := record.NewRecord(epoch)
		phys := int(bn.getPermutation().numKeys())
		if k.HasMore(depth) {
			bn.setKeyLen(phys, keyLenHasSuffix)
			bn.setSuffix(phys, NewBigSuffix(k, depth))
		} else {
			bn.setKeyLen(phys, uint32(k.SliceLenAt(depth)))
			bn.setSuffix(phys, nil)
		}
		bn.setKeySlice(phys, slice)
		bn.setSlot(phys, &linkOrValue{rec: rec})
		bn.setPermutation(bn.getPermutation().insert(logicalAt, uint8(phys)))
		bn.unlock()
		return rec, status.OK
	}
}

// createLayer converts the colliding slot at physIdx into a next-layer
// pointer holding both the existing entry and the new key, following
// the unstable -> layer write sequence of spec.md §4.3 so a concurrent
// reader that observes keyLenUnstable knows to retry from the root
// rather than read a half-built layer.
func (idx *Index) createLayer(bn *BorderNode, physIdx int, k keycodec.Key, depth int, epoch uint32) *record.Record {
	oldSuffix := bn.getSuffix(physIdx)
	oldLV := bn.getSlot(physIdx)

	newLayerNode := NewBorderNode()
	oldKey := keycodec.Key{Slices: oldSuffix.Slices, LastLen: oldSuffix.LastLen}
	newKey := k.Suffix(depth)

	oldSlice, _ := oldKey.SliceAt(0)
	phys0 := 0
	newLayerNode.setKeySlice(phys0, oldSlice)
	if oldKey.HasMore(0) {
		newLayerNode.setKeyLen(phys0, keyLenHasSuffix)
		newLayerNode.setSuffix(phys0, NewBigSuffix(oldKey, 0))
	} else {
		newLayerNode.setKeyLen(phys0, uint32(oldKey.SliceLenAt(0)))
	}
	newLayerNode.setSlot(phys0, oldLV)
	newLayerNode.setPermutation(permutationSizeOne())
	newLayerNode.setIsRoot(true)
	newLayerNode.setUpperLayer(bn)

	lr := newLayerRoot(newLayerNode)
	rec, _ := idx.insertAt(&lr.root, newKey, 0, epoch)

	bn.setKeyLen(physIdx, keyLenUnstable)
	bn.setSlot(physIdx, &linkOrValue{layer: lr})
	bn.setKeyLen(physIdx, keyLenLayer)

	return rec
}

// splitPoint implements spec.md §4.3's "Split point for a border": given
// a border's entries sorted by slice and the slice of the key forcing
// the split, it returns the number of entries that stay in the lower
// (left) half. The rule is built on a first/last-occurrence table so
// that every slot sharing a slice value, e.g. a short exact-8-byte key
// and a longer key with a BigSuffix on the same 8 bytes, lands on the
// same side; splitting a slice's run across siblings would make one of
// its slots permanently unreachable, since routing sends a given slice
// to exactly one child.
func splitPoint(entries []entry, newSlice uint64) int {
	n := len(entries)
	minSlice := entries[0].keySlice
	maxSlice := entries[n-1].keySlice

	switch {
	case newSlice < minSlice:
		return 1
	case newSlice == minSlice:
		last := 0
		for i, e := range entries {
			if e.keySlice == minSlice {
				last = i
			}
		}
		return last + 1
	case newSlice > maxSlice:
		return n
	default:
		for i, e := range entries {
			if e.keySlice >= newSlice {
				return i
			}
		}
		return n
	}
}

// splitBorder splits a full border node in half by permutation order,
// linking the new right sibling into the border list and installing a
// separator in the parent (creating a new root if bn had none), per
// spec.md §4.3 "Split".
func (idx *Index) splitBorder(root *rootSlot, bn *BorderNode, newSlice uint64) {
	p := bn.getPermutation()
	n := int(p.numKeys())
	entries := make([]entry, n)
	for i := 0; i < n; i++ {
		phys := int(p.keyIndex(i))
		entries[i] = entry{
			keySlice: bn.getKeySlice(phys),
			keyLen:   bn.getKeyLen(phys),
			suffix:   bn.getSuffix(phys),
			lv:       bn.getSlot(phys),
		}
	}
	mid := splitPoint(entries, newSlice)

	right := NewBorderNode()
	for i, e := range entries[mid:] {
		right.setKeySlice(i, e.keySlice)
		right.setKeyLen(i, e.keyLen)
		right.setSuffix(i, e.suffix)
		right.setSlot(i, e.lv)
	}
	right.setPermutation(permutationFromSorted(n - mid))

	for i, e := range entries[:mid] {
		bn.setKeySlice(i, e.keySlice)
		bn.setKeyLen(i, e.keyLen)
		bn.setSuffix(i, e.suffix)
		bn.setSlot(i, e.lv)
	}
	bn.setPermutation(permutationFromSorted(mid))

	right.setNext(bn.getNext())
	right.setPrev(bn)
	if old := bn.getNext(); old != nil {
		old.setPrev(right)
	}
	bn.setNext(right)

	separator := entries[mid].keySlice
	idx.insertIntoParent(root, bn, right, separator)
}

// insertIntoParent installs a new separator and right child in left's
// parent interior node, splitting that interior node in turn if it is
// full, and creating a new root if left had no parent (spec.md §4.3).
func (idx *Index) insertIntoParent(root *rootSlot, left, right node, separator uint64) {
	parent := left.nodeStatePtr().getParent()
	if parent == nil {
		newRoot := NewInteriorNode()
		newRoot.setIsRoot(true)
		newRoot.setNumKeys(1)
		newRoot.setKeySlice(0, separator)
		newRoot.setChild(0, left)
		newRoot.setChild(1, right)
		if up := left.nodeStatePtr().getUpperLayer(); up != nil {
			newRoot.setUpperLayer(up)
			left.nodeStatePtr().setUpperLayer(nil)
		}
		left.nodeStatePtr().setIsRoot(false)
		left.nodeStatePtr().setParent(newRoot)
		right.nodeStatePtr().setParent(newRoot)
		storeRootSlot(root, newRoot)
		return
	}

	parent.lock()
	if parent.isFull() {
		parent.setSplitting(true)
		idx.splitInterior(root, parent, left, right, separator)
		parent.unlock()
		return
	}
	parent.setInserting(true)
	at := parent.findChildIndex(separator)
	parent.insertSeparator(at, separator, right)
	right.nodeStatePtr().setParent(parent)
	parent.unlock()
}

// splitInterior splits a full interior node in := at a new separator and
// right child already computed by the caller, then recurses into
// insertIntoParent to place the resulting pair in the grandparent.
func (idx *Index) splitInterior(root *rootSlot, in *InteriorNode, newLeftChild, newRightChild node, childSeparator uint64) {
	n := in.getNumKeys()
	keys := make([]uint64, 0, n+1)
	children := make([]node, 0, n+2)
	for i := 0; i < n; i++ {
		keys = append(keys, in.getKeySlice(i))
	}
	for i := 0; i <= n; i++ {
		children = append(children, in.getChild(i))
	}

	at := in.findChildIndex(childSeparator)
	keys = append(keys[:at], append([]uint64{childSeparator}, keys[at:]...)...)
	withRight := append([]node{newRightChild}, children[at+1:]...)
	children = append(children[:at+1], withRight...)
	children[at] = newLeftChild

	mid := len(keys) / 2
	upSeparator := keys[mid]

	right := NewInteriorNode()
	rightKeys := keys[mid+1:]
	rightChildren := children[mid+1:]
	right.setNumKeys(len(rightKeys))
	for i, kk := range rightKeys {
		right.setKeySlice(i, kk)
	}
	for i, c := range rightChildren {
		right.setChild(i, c)
		c.nodeStatePtr().setParent(right)
	}

	in.setNumKeys(mid)
	for i := 0; i < mid; i++ {
		in.setKeySlice(i, keys[i])
	}
	for i := 0; i <= mid; i++ {
		in.setChild(i, children[i])
		children[i].nodeStatePtr().setParent(in)
	}
	for i := mid + 1; i < len(children); i++ {
		in.setChild(i, nil)
	}

	idx.insertIntoParent(root, in, right, upSeparator)
}
