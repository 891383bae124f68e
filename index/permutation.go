package index

// permutation packs a border node's logical key order into 64 bits: the
// low nibble holds the key count, the next 15 nibbles hold slot indices
// in key order (spec.md §3 "Permutation").
type permutation uint64

func (p permutation) numKeys() uint8 { return uint8(p & 0xf) }

func (p permutation) setNumKeys(n uint8) permutation {
	return (p &^ 0xf) | permutation(n)
}

func (p permutation) incNumKeys() permutation { return p.setNumKeys(p.numKeys() + 1) }
func (p permutation) decNumKeys() permutation { return p.setNumKeys(p.numKeys() - 1) }

// keyIndex returns the true slot index stored at permutation position i.
func (p permutation) keyIndex(i int) uint8 {
	shift := uint(15-i) * 4
	return uint8((p >> shift) & 0xf)
}

// setKeyIndex stores trueIndex at permutation position i.
func (p permutation) setKeyIndex(i int, trueIndex uint8) permutation {
	shift := uint(15-i) * 4
	mask := permutation(0xf) << shift
	return (p &^ mask) | (permutation(trueIndex) << shift)
}

func (p permutation) isFull() bool    { return p.numKeys() == 15 }
func (p permutation) isNotFull() bool { return !p.isFull() }

// insert shifts permutation positions >= at right by one and installs
// trueIndex at at, in sorted-key order.
func (p permutation) insert(at int, trueIndex uint8) permutation {
	n := int(p.numKeys())
	for i := n; i > at; i-- {
		p = p.setKeyIndex(i, p.keyIndex(i-1))
	}
	p = p.setKeyIndex(at, trueIndex)
	return p.incNumKeys()
}

// removeIndex removes the permutation entry pointing at trueIndex,
// compacting positions after it left by one.
func (p permutation) removeIndex(trueIndex uint8) permutation {
	n := int(p.numKeys())
	pos := -1
	for i := 0; i < n; i++ {
		if p.keyIndex(i) == trueIndex {
			pos = i
			break
		}
	}
	if pos < 0 {
		return p
	}
	for i := pos; i+1 < n; i++ {
		p = p.setKeyIndex(i, p.keyIndex(i+1))
	}
	return p.decNumKeys()
}

func permutationSizeOne() permutation {
	return permutation(0).setNumKeys(1).setKeyIndex(0, 0)
}

func permutationFromSorted(n int) permutation {
	p := permutation(0)
	for i := 0; i < n; i++ {
		p = p.setKeyIndex(i, uint8(i))
	}
	return p.setNumKeys(uint8(n))
}
