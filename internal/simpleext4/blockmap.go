package simpleext4

import (
	"syscall"

	"github.com/hanwen-labs/simpleext4/internal/diskfmt"
)

// findDataBlockLocked resolves the data block backing the byte at
// offset within inode, walking direct, singly-indirect, and
// doubly-indirect pointers. If read is false and no block is mapped
// yet, one is allocated (growing the indirect chain as needed) and
// inode is mutated in place; the caller is responsible for persisting
// it. It returns the resolved block index and how many bytes remain
// in that block from offset onward.
func (v *Volume) findDataBlockLocked(inode *diskfmt.Inode, offset uint64, read bool) (uint32, uint32, syscall.Errno) {
	blkSize := uint64(v.sb.BlockSize)
	index := offset / blkSize
	pointersPerBlock := blkSize / 4

	var block uint32
	switch {
	case index < diskfmt.DirectPointers:
		block = inode.FindDirectBlock(int(index))
	case index < pointersPerBlock+diskfmt.DirectPointers:
		block = v.findIndirectLocked(inode.IndirectBlock, index-diskfmt.DirectPointers, pointersPerBlock)
	case index < pointersPerBlock*pointersPerBlock+pointersPerBlock+diskfmt.DirectPointers:
		block = v.findIndirectLocked(inode.DoubleIndirectBlock, index-diskfmt.DirectPointers, pointersPerBlock)
	default:
		return 0, 0, syscall.ENOSPC
	}

	if block != 0 {
		return block, uint32((index+1)*blkSize - offset), 0
	}
	if read {
		return 0, 0, syscall.EINVAL
	}

	newBlock, ok := v.allocateDataBlockLocked()
	if !ok {
		return 0, 0, syscall.ENOSPC
	}
	block = newBlock

	switch {
	case index < diskfmt.DirectPointers:
		if err := inode.SetDirectBlock(int(index), newBlock); err != nil {
			return 0, 0, syscall.ENOSPC
		}

	case index < pointersPerBlock+diskfmt.DirectPointers:
		if inode.IndirectBlock == 0 {
			inode.IndirectBlock = block
			v.zeroBlockLocked(block)
			var ok2 bool
			block, ok2 = v.allocateDataBlockLocked()
			if !ok2 {
				return 0, 0, syscall.ENOSPC
			}
		}
		v.saveIndirectLocked(inode.IndirectBlock, block, index-diskfmt.DirectPointers, pointersPerBlock)

	case index < pointersPerBlock*pointersPerBlock+pointersPerBlock+diskfmt.DirectPointers:
		if inode.DoubleIndirectBlock == 0 {
			inode.DoubleIndirectBlock = block
			v.zeroBlockLocked(block)
			var ok2 bool
			block, ok2 = v.allocateDataBlockLocked()
			if !ok2 {
				return 0, 0, syscall.ENOSPC
			}
		}

		indirectOffset := (index-diskfmt.DirectPointers)/pointersPerBlock - 1
		indirectBlock := v.findIndirectLocked(inode.DoubleIndirectBlock, indirectOffset, pointersPerBlock)
		if indirectBlock == 0 {
			indirectBlock = block
			v.saveIndirectLocked(inode.DoubleIndirectBlock, block, indirectOffset, pointersPerBlock)
			v.zeroBlockLocked(block)
			var ok2 bool
			block, ok2 = v.allocateDataBlockLocked()
			if !ok2 {
				return 0, 0, syscall.ENOSPC
			}
		}

		v.saveIndirectLocked(indirectBlock, block, (index-diskfmt.DirectPointers)&(pointersPerBlock-1), pointersPerBlock)

	default:
		return 0, 0, syscall.ENOSPC
	}

	return block, uint32((index+1)*blkSize - offset), 0
}

func (v *Volume) zeroBlockLocked(block uint32) {
	zero := make([]byte, v.sb.BlockSize)
	v.writeDataLocked(zero, 0, block)
}

// findIndirectLocked walks one or two levels of an indirect pointer
// chain, returning the data block index at the given logical index
// within that chain, or 0 if unmapped.
func (v *Volume) findIndirectLocked(pointer uint32, index uint64, pointersPerBlock uint64) uint32 {
	if pointer == 0 {
		return 0
	}

	var off uint64
	if index < pointersPerBlock {
		off = index & (pointersPerBlock - 1)
	} else {
		off = index/pointersPerBlock - 1
	}

	block := v.readU32Locked(off, pointer)
	if block == 0 || index < pointersPerBlock {
		return block
	}

	return v.findIndirectLocked(block, index&(pointersPerBlock-1), pointersPerBlock)
}

// saveIndirectLocked stores block as the pointer at logical index
// within the chain rooted at pointer, descending one level if index
// names an entry beyond the first indirect block's span.
func (v *Volume) saveIndirectLocked(pointer uint32, block uint32, index uint64, pointersPerBlock uint64) {
	offset := index & (pointersPerBlock - 1)

	if index < pointersPerBlock {
		v.writeU32Locked(offset, pointer, block)
		return
	}

	indirectOffset := index/pointersPerBlock - 1
	newPointer := v.readU32Locked(indirectOffset, pointer)
	v.saveIndirectLocked(newPointer, block, offset, pointersPerBlock)
}

// readIndirectBlockLocked returns the nonzero pointers stored inside
// data block.
func (v *Volume) readIndirectBlockLocked(block uint32) []uint32 {
	pointersPerBlock := uint64(v.sb.BlockSize) / 4
	out := make([]uint32, 0, pointersPerBlock)
	for i := uint64(0); i < pointersPerBlock; i++ {
		b := v.readU32Locked(i, block)
		if b != 0 {
			out = append(out, b)
		}
	}
	return out
}

// releaseIndirectBlockLocked frees every data block an indirect block
// points at, then the indirect block itself is released by the
// caller.
func (v *Volume) releaseIndirectBlockLocked(block uint32) {
	blocks := v.readIndirectBlockLocked(block)
	v.releaseDataBlocksLocked(blocks)
}

// releaseDoubleIndirectBlockLocked frees every data block reachable
// through a doubly-indirect block: the leaf blocks pointed at by each
// of its indirect children, then the indirect children themselves.
func (v *Volume) releaseDoubleIndirectBlockLocked(block uint32) {
	indirectBlocks := v.readIndirectBlockLocked(block)
	var leaves []uint32
	for _, b := range indirectBlocks {
		leaves = append(leaves, v.readIndirectBlockLocked(b)...)
	}
	v.releaseDataBlocksLocked(indirectBlocks)
	v.releaseDataBlocksLocked(leaves)
}
