// Package diskfmt describes SimpleExt4's on-disk records and the
// byte-offset arithmetic that places them inside a block group.
package diskfmt

const (
	// Magic is the superblock sentinel identifying a SimpleExt4 image.
	Magic uint32 = 0x53345845 // "S4XE"

	// SuperblockSize is the fixed, reserved region for the superblock
	// at the start of the image.
	SuperblockSize uint64 = 1024

	// InodeSize is the fixed on-disk size of one inode record.
	InodeSize uint64 = 128

	// DirectPointers is the number of direct block pointers an inode
	// carries inline.
	DirectPointers = 12

	// RootInode is the inode number of the filesystem root.
	RootInode uint32 = 1

	// DefaultBlockSize is the block size used when none is requested.
	DefaultBlockSize uint32 = 4096

	// MaxFilenameLength bounds a single directory-entry component, as
	// reported through statfs.
	MaxFilenameLength = 255
)

// Layout carries the derived geometry for a given block size: how big
// one block group is on disk, and where a given inode or data block
// lives inside the image.
type Layout struct {
	BlockSize uint32
}

// NewLayout builds a Layout for the given block size.
func NewLayout(blockSize uint32) Layout {
	return Layout{BlockSize: blockSize}
}

// DataBlocksPerGroup is the number of data blocks (and inodes) one
// group's bitmaps can address: one bit per block, block_size*8 bits.
func (l Layout) DataBlocksPerGroup() uint64 {
	return uint64(l.BlockSize) * 8
}

// InodeTableSize is the byte size of one group's inode table.
func (l Layout) InodeTableSize() uint64 {
	return l.DataBlocksPerGroup() * InodeSize
}

// DataRegionSize is the byte size of one group's data region.
func (l Layout) DataRegionSize() uint64 {
	return l.DataBlocksPerGroup() * uint64(l.BlockSize)
}

// GroupSize is the total on-disk size of one block group: data
// bitmap + inode bitmap + inode table + data region.
func (l Layout) GroupSize() uint64 {
	return 2*uint64(l.BlockSize) + l.InodeTableSize() + l.DataRegionSize()
}

// GroupsForSize returns how many groups are needed to cover sizeBytes
// of requested image capacity.
func (l Layout) GroupsForSize(sizeBytes uint64) uint64 {
	gs := l.GroupSize()
	return (sizeBytes + gs - 1) / gs
}

// GroupOffset is the byte offset of group g's data bitmap (the start
// of the group).
func (l Layout) GroupOffset(g uint64) uint64 {
	return SuperblockSize + g*l.GroupSize()
}

// DataBitmapOffset is the byte offset of group g's data bitmap.
func (l Layout) DataBitmapOffset(g uint64) uint64 {
	return l.GroupOffset(g)
}

// InodeBitmapOffset is the byte offset of group g's inode bitmap.
func (l Layout) InodeBitmapOffset(g uint64) uint64 {
	return l.GroupOffset(g) + uint64(l.BlockSize)
}

// InodeTableOffset is the byte offset of group g's inode table.
func (l Layout) InodeTableOffset(g uint64) uint64 {
	return l.GroupOffset(g) + 2*uint64(l.BlockSize)
}

// DataRegionOffset is the byte offset of group g's data region.
func (l Layout) DataRegionOffset(g uint64) uint64 {
	return l.InodeTableOffset(g) + l.InodeTableSize()
}

// InodeLocation splits a 1-based global inode index into its group
// index and 0-based slot within that group's inode table.
func (l Layout) InodeLocation(index uint32) (group, slot uint64) {
	g := l.DataBlocksPerGroup()
	i := uint64(index) - 1
	return i / g, i % g
}

// InodeOffset returns the absolute byte offset of inode index's
// record.
func (l Layout) InodeOffset(index uint32) uint64 {
	g, slot := l.InodeLocation(index)
	return l.InodeTableOffset(g) + slot*InodeSize
}

// DataBlockLocation splits a 1-based global data-block index into its
// group index and 0-based slot within that group's data region.
func (l Layout) DataBlockLocation(index uint32) (group, slot uint64) {
	g := l.DataBlocksPerGroup()
	i := uint64(index) - 1
	return i / g, i % g
}

// DataBlockOffset returns the absolute byte offset of data block
// index's content.
func (l Layout) DataBlockOffset(index uint32) uint64 {
	g, slot := l.DataBlockLocation(index)
	return l.DataRegionOffset(g) + slot*uint64(l.BlockSize)
}

// ImageSize returns the total file size an image with the given
// number of groups occupies.
func (l Layout) ImageSize(groups uint64) uint64 {
	return SuperblockSize + groups*l.GroupSize()
}
