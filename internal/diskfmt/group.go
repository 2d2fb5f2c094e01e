package diskfmt

// bitset is a plain byte-slice bitmap, one bit per index, LSB-first
// within each byte (bit i lives at byte i/8, mask 1<<(i%8)).
type bitset []byte

func newBitset(bits uint64) bitset {
	return make(bitset, (bits+7)/8)
}

func (b bitset) get(i uint64) bool {
	byteIdx := i / 8
	if byteIdx >= uint64(len(b)) {
		return false
	}
	return b[byteIdx]&(1<<(i%8)) != 0
}

func (b bitset) set(i uint64, v bool) {
	byteIdx := i / 8
	if byteIdx >= uint64(len(b)) {
		return
	}
	if v {
		b[byteIdx] |= 1 << (i % 8)
	} else {
		b[byteIdx] &^= 1 << (i % 8)
	}
}

// countZeros returns the number of unset bits across n logical bits.
func (b bitset) countZeros(n uint64) uint64 {
	var zeros uint64
	for i := uint64(0); i < n; i++ {
		if !b.get(i) {
			zeros++
		}
	}
	return zeros
}

// nextFree returns the lowest-index unset bit among n logical bits, or
// -1 if all are set.
func (b bitset) nextFree(n uint64) int64 {
	for i := uint64(0); i < n; i++ {
		if !b.get(i) {
			return int64(i)
		}
	}
	return -1
}

// Group holds one block group's data and inode bitmaps, plus a cached
// hint for the next free index in each. Allocation takes the hint and
// then rescans the bitmap from the start to find the next free index.
type Group struct {
	dataBitmap  bitset
	inodeBitmap bitset
	perGroup    uint64

	nextDataBlock int64 // -1 means none cached
	nextInode     int64
}

// NewGroup builds an empty group sized to hold perGroup bits in each
// bitmap (one data block, one inode, per bit).
func NewGroup(perGroup uint64) *Group {
	g := &Group{
		dataBitmap:  newBitset(perGroup),
		inodeBitmap: newBitset(perGroup),
		perGroup:    perGroup,
	}
	g.nextDataBlock = g.dataBitmap.nextFree(perGroup)
	g.nextInode = g.inodeBitmap.nextFree(perGroup)
	return g
}

// LoadGroup builds a group from previously serialised bitmap bytes.
func LoadGroup(dataBitmap, inodeBitmap []byte, perGroup uint64) *Group {
	g := &Group{
		dataBitmap:  bitset(dataBitmap),
		inodeBitmap: bitset(inodeBitmap),
		perGroup:    perGroup,
	}
	g.nextDataBlock = g.dataBitmap.nextFree(perGroup)
	g.nextInode = g.inodeBitmap.nextFree(perGroup)
	return g
}

// DataBitmapBytes returns the raw bytes backing the data bitmap, for
// persisting to disk.
func (g *Group) DataBitmapBytes() []byte { return g.dataBitmap }

// InodeBitmapBytes returns the raw bytes backing the inode bitmap, for
// persisting to disk.
func (g *Group) InodeBitmapBytes() []byte { return g.inodeBitmap }

// HasInode reports whether the 1-based in-group inode slot i is
// allocated.
func (g *Group) HasInode(i uint64) bool {
	if i == 0 {
		return false
	}
	return g.inodeBitmap.get(i - 1)
}

// HasDataBlock reports whether the 1-based in-group data slot i is
// allocated.
func (g *Group) HasDataBlock(i uint64) bool {
	if i == 0 {
		return false
	}
	return g.dataBitmap.get(i - 1)
}

// FreeInodes counts unallocated inode slots in the group.
func (g *Group) FreeInodes() uint64 {
	return g.inodeBitmap.countZeros(g.perGroup)
}

// FreeDataBlocks counts unallocated data slots in the group.
func (g *Group) FreeDataBlocks() uint64 {
	return g.dataBitmap.countZeros(g.perGroup)
}

// AllocateInode claims the lowest free 1-based in-group inode slot, or
// reports ok=false if the group is full.
func (g *Group) AllocateInode() (slot uint64, ok bool) {
	if g.nextInode < 0 {
		return 0, false
	}
	index := uint64(g.nextInode)
	g.inodeBitmap.set(index, true)
	g.nextInode = g.inodeBitmap.nextFree(g.perGroup)
	return index + 1, true
}

// AllocateDataBlock claims the lowest free 1-based in-group data slot,
// or reports ok=false if the group is full.
func (g *Group) AllocateDataBlock() (slot uint64, ok bool) {
	if g.nextDataBlock < 0 {
		return 0, false
	}
	index := uint64(g.nextDataBlock)
	g.dataBitmap.set(index, true)
	g.nextDataBlock = g.dataBitmap.nextFree(g.perGroup)
	return index + 1, true
}

// ReleaseInode frees the 1-based in-group inode slot and lowers the
// next-free hint to it if it is now the smallest free slot.
func (g *Group) ReleaseInode(slot uint64) {
	index := slot - 1
	g.inodeBitmap.set(index, false)
	if g.nextInode < 0 || int64(index) < g.nextInode {
		g.nextInode = int64(index)
	}
}

// ReleaseDataBlock frees the 1-based in-group data slot and lowers the
// next-free hint to it if it is now the smallest free slot.
func (g *Group) ReleaseDataBlock(slot uint64) {
	index := slot - 1
	g.dataBitmap.set(index, false)
	if g.nextDataBlock < 0 || int64(index) < g.nextDataBlock {
		g.nextDataBlock = int64(index)
	}
}
