package index

import (
	"github.com/coredao-org/sealedkv/keycodec"
	"github.com/coredao-org/sealedkv/status"
)

// removeAt clears key's slot in the border node that holds it, deferring
// the freed record to the garbage list rather than reclaiming it
// immediately, since a concurrent reader may still hold a pointer to it
// (spec.md §5 "Reclamation"). If the slot's removal leaves the border
// empty or leaves a layer-root border with a single entry, the border
// is unlinked from its parent interior or its containing layer is
// collapsed back into the slot that created it (spec.md §4.3 remove()).
func (idx *Index) removeAt(root *rootSlot, k keycodec.Key, depth int) status.Status {
	slice, _ := k.SliceAt(depth)
	for {
		bn := descendToBorder(loadRootSlot(root), slice)
		if bn == nil {
			return status.WarnNotFound
		}
		bn.lock()
		physIdx, _ := bn.findSlot(k, depth)
		if physIdx < 0 {
			bn.unlock()
			return status.WarnNotFound
		}
		kl := bn.getKeyLen(physIdx)
		if kl == keyLenLayer {
			lr := bn.getSlot(physIdx).layer
			bn.unlock()
			return idx.removeAt(&lr.root, k, depth+1)
		}
		if kl == keyLenUnstable {
			bn.unlock()
			continue
		}

		lv := bn.getSlot(physIdx)
		bn.setPermutation(bn.getPermutation().removeIndex(uint8(physIdx)))
		bn.setSlot(physIdx, nil)
		if lv != nil && lv.rec != nil {
			idx.gc.Defer(lv.rec, idx.epoch.Load())
		}

		remaining := bn.getPermutation().numKeys()
		switch {
		case depth > 0 && bn.getVersion().isRoot() && remaining == 1:
			idx.collapseLayer(bn)
			bn.unlock()
		case remaining == 0 && !bn.getVersion().isRoot():
			idx.unlinkBorder(root, bn)
		default:
			bn.unlock()
		}
		return status.OK
	}
}

// collapseLayer pulls a layer-root border's last remaining entry up into
// the upper-layer slot that created it, eliminating the now-redundant
// layer (spec.md §4.3 "Layer collapse"). Caller holds bn locked and
// leaves it locked for the caller to unlock.
func (idx *Index) collapseLayer(bn *BorderNode) {
	upper := bn.getUpperLayer()
	if upper == nil {
		return
	}
	upper.lock()
	defer upper.unlock()

	upperPhys := findLayerSlot(upper, bn)
	if upperPhys < 0 {
		return
	}

	p := bn.getPermutation()
	lastPhys := int(p.keyIndex(0))
	childSlice := bn.getKeySlice(lastPhys)
	childKL := bn.getKeyLen(lastPhys)
	childSuffix := bn.getSuffix(lastPhys)
	lv := bn.getSlot(lastPhys)

	var relocated keycodec.Key
	if childKL == keyLenHasSuffix {
		slices := make([]uint64, 0, len(childSuffix.Slices)+1)
		slices = append(slices, childSlice)
		slices = append(slices, childSuffix.Slices...)
		relocated = keycodec.Key{Slices: slices, LastLen: childSuffix.LastLen}
	} else {
		relocated = keycodec.Key{Slices: []uint64{childSlice}, LastLen: uint8(childKL)}
	}

	upper.setKeyLen(upperPhys, keyLenUnstable)
	upper.setSuffix(upperPhys, &BigSuffix{Slices: relocated.Slices, LastLen: relocated.LastLen, fingerprint: suffixFingerprint(relocated)})
	upper.setSlot(upperPhys, lv)
	upper.setKeyLen(upperPhys, keyLenHasSuffix)

	bn.setDeleted(true)
	idx.gc.Defer(bn, idx.epoch.Load())
}

// findLayerSlot returns the physical slot in upper whose layer pointer
// is exactly child, or -1 if none (the layer may already have grown an
// interior root, in which case child is no longer upper's direct link).
func findLayerSlot(upper *BorderNode, child *BorderNode) int {
	p := upper.getPermutation()
	n := int(p.numKeys())
	for i := 0; i < n; i++ {
		idx := int(p.keyIndex(i))
		if upper.getKeyLen(idx) != keyLenLayer {
			continue
		}
		lv := upper.getSlot(idx)
		if lv != nil && lv.isLayer() && lv.layer.load() == node(child) {
			return idx
		}
	}
	return -1
}

// unlinkBorder removes an emptied, non-root border bn from its parent
// interior node, shifting the parent's remaining entries left, or, if
// the parent holds only the one separator bn and its sibling, promotes
// the sibling into the parent's own place (spec.md §4.3 remove()).
// Caller holds bn locked; unlinkBorder releases it before returning.
func (idx *Index) unlinkBorder(root *rootSlot, bn *BorderNode) {
	parent := bn.lockedParent()
	if parent == nil {
		bn.unlock()
		return
	}

	n := parent.getNumKeys()
	childIdx := -1
	for i := 0; i <= n; i++ {
		if parent.getChild(i) == node(bn) {
			childIdx = i
			break
		}
	}
	if childIdx < 0 {
		parent.unlock()
		bn.unlock()
		return
	}

	if n >= 2 {
		keyIdx := childIdx - 1
		if keyIdx < 0 {
			keyIdx = 0
		}
		for i := keyIdx; i < n-1; i++ {
			parent.setKeySlice(i, parent.getKeySlice(i+1))
		}
		for i := childIdx; i < n; i++ {
			parent.setChild(i, parent.getChild(i+1))
		}
		parent.setChild(n, nil)
		parent.setNumKeys(n - 1)
		parent.unlock()
	} else {
		siblingIdx := 1 - childIdx
		sibling := parent.getChild(siblingIdx)
		grandparent := parent.lockedParent()
		sibling.nodeStatePtr().setParent(grandparent)
		if grandparent == nil {
			if up := parent.getUpperLayer(); up != nil {
				sibling.nodeStatePtr().setUpperLayer(up)
			}
			sibling.nodeStatePtr().setIsRoot(true)
			storeRootSlot(root, sibling)
		} else {
			gn := grandparent.getNumKeys()
			for i := 0; i <= gn; i++ {
				if grandparent.getChild(i) == node(parent) {
					grandparent.setChild(i, sibling)
					break
				}
			}
			grandparent.unlock()
		}
		parent.setDeleted(true)
		idx.gc.Defer(parent, idx.epoch.Load())
		parent.unlock()
	}

	bn.setDeleted(true)
	idx.gc.Defer(bn, idx.epoch.Load())
	bn.unlock()
}
