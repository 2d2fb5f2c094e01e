package simpleext4

import (
	"syscall"

	"github.com/hanwen-labs/simpleext4/internal/diskfmt"
)

// inodeGroupSlot splits a 1-based global inode index into its group and
// 1-based in-group slot.
func (v *Volume) inodeGroupSlot(index uint32) (group uint64, slot uint64) {
	g, s := v.layout.InodeLocation(index)
	return g, s + 1
}

// blockGroupSlot splits a 1-based global data block index into its
// group and 1-based in-group slot. This is always derived from the
// block's own index, never from an unrelated inode index.
func (v *Volume) blockGroupSlot(index uint32) (group uint64, slot uint64) {
	g, s := v.layout.DataBlockLocation(index)
	return g, s + 1
}

func (v *Volume) hasInode(index uint32) bool {
	g, slot := v.inodeGroupSlot(index)
	if g >= uint64(len(v.groups)) {
		return false
	}
	return v.groups[g].HasInode(slot)
}

func (v *Volume) hasDataBlock(index uint32) bool {
	g, slot := v.blockGroupSlot(index)
	if g >= uint64(len(v.groups)) {
		return false
	}
	return v.groups[g].HasDataBlock(slot)
}

// readInodeLocked reads and verifies the inode at index. The caller
// must hold v.mu.
func (v *Volume) readInodeLocked(index uint32) (*diskfmt.Inode, syscall.Errno) {
	if !v.hasInode(index) {
		return nil, syscall.ENOENT
	}
	off := v.layout.InodeOffset(index)
	in, err := diskfmt.DecodeInode(v.mapped[off : off+diskfmt.InodeSize])
	if err != nil {
		v.log.WithError(err).WithField("inode", index).Error("decode inode failed")
		return nil, syscall.EIO
	}
	return in, 0
}

// writeInodeLocked serialises in into its on-disk slot. The caller
// must hold v.mu.
func (v *Volume) writeInodeLocked(index uint32, in *diskfmt.Inode) syscall.Errno {
	buf, err := in.Encode()
	if err != nil {
		v.log.WithError(err).WithField("inode", index).Error("encode inode failed")
		return syscall.EIO
	}
	off := v.layout.InodeOffset(index)
	copy(v.mapped[off:off+diskfmt.InodeSize], buf)
	return 0
}

// readDirectoryAtLocked reads and verifies the directory stored at
// data block index. The caller must hold v.mu.
func (v *Volume) readDirectoryAtLocked(block uint32) (*diskfmt.Directory, syscall.Errno) {
	if !v.hasDataBlock(block) {
		return nil, syscall.ENOENT
	}
	off := v.layout.DataBlockOffset(block)
	dir, err := diskfmt.DecodeDirectory(v.mapped[off : off+uint64(v.sb.BlockSize)])
	if err != nil {
		v.log.WithError(err).WithField("block", block).Error("decode directory failed")
		return nil, syscall.EIO
	}
	return dir, 0
}

// writeDirectoryAtLocked serialises dir into data block index. The
// caller must hold v.mu.
func (v *Volume) writeDirectoryAtLocked(block uint32, dir *diskfmt.Directory) syscall.Errno {
	buf, err := dir.Encode(v.sb.BlockSize)
	if err != nil {
		v.log.WithError(err).WithField("block", block).Error("encode directory failed")
		return syscall.ENOSPC
	}
	off := v.layout.DataBlockOffset(block)
	copy(v.mapped[off:off+uint64(v.sb.BlockSize)], buf)
	return 0
}

// readDataLocked copies len(dst) bytes from data block index starting
// at the in-block byte offset. The caller must hold v.mu.
func (v *Volume) readDataLocked(dst []byte, offset uint64, block uint32) {
	off := v.layout.DataBlockOffset(block) + offset
	copy(dst, v.mapped[off:off+uint64(len(dst))])
}

// writeDataLocked copies src into data block index starting at the
// in-block byte offset, returning the number of bytes written. The
// caller must hold v.mu.
func (v *Volume) writeDataLocked(src []byte, offset uint64, block uint32) int {
	off := v.layout.DataBlockOffset(block) + offset
	return copy(v.mapped[off:off+uint64(len(src))], src)
}

// readU32Locked reads the index'th little-endian uint32 stored inside
// data block. The caller must hold v.mu.
func (v *Volume) readU32Locked(index uint64, block uint32) uint32 {
	var buf [4]byte
	v.readDataLocked(buf[:], index*4, block)
	return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
}

// writeU32Locked stores value as the index'th little-endian uint32
// inside data block. The caller must hold v.mu.
func (v *Volume) writeU32Locked(index uint64, block uint32, value uint32) {
	buf := [4]byte{byte(value), byte(value >> 8), byte(value >> 16), byte(value >> 24)}
	v.writeDataLocked(buf[:], index*4, block)
}

// allocateInodeLocked claims the next free inode across all groups.
// The caller must hold v.mu.
func (v *Volume) allocateInodeLocked() (uint32, bool) {
	perGroup := v.layout.DataBlocksPerGroup()
	for g, group := range v.groups {
		if group.FreeInodes() == 0 {
			continue
		}
		slot, ok := group.AllocateInode()
		if !ok {
			continue
		}
		v.sb.FreeInodes--
		return uint32(slot) + uint32(g)*uint32(perGroup), true
	}
	return 0, false
}

// allocateDataBlockLocked claims the next free data block across all
// groups. The caller must hold v.mu.
func (v *Volume) allocateDataBlockLocked() (uint32, bool) {
	perGroup := v.layout.DataBlocksPerGroup()
	for g, group := range v.groups {
		if group.FreeDataBlocks() == 0 {
			continue
		}
		slot, ok := group.AllocateDataBlock()
		if !ok {
			continue
		}
		v.sb.FreeBlocks--
		return uint32(slot) + uint32(g)*uint32(perGroup), true
	}
	return 0, false
}

// releaseInodeLocked frees a single inode. The caller must hold v.mu.
func (v *Volume) releaseInodeLocked(index uint32) {
	g, slot := v.inodeGroupSlot(index)
	if g >= uint64(len(v.groups)) {
		return
	}
	v.groups[g].ReleaseInode(slot)
	v.sb.FreeInodes++
}

// releaseDataBlocksLocked frees a set of data blocks, which may span
// groups. The caller must hold v.mu.
func (v *Volume) releaseDataBlocksLocked(blocks []uint32) {
	for _, block := range blocks {
		if block == 0 {
			continue
		}
		g, slot := v.blockGroupSlot(block)
		if g >= uint64(len(v.groups)) {
			continue
		}
		v.groups[g].ReleaseDataBlock(slot)
	}
	v.sb.FreeBlocks += uint32(len(blocks))
}
