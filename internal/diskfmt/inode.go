package diskfmt

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// POSIX file-type mode bits this filesystem understands. Only regular
// files and directories exist; there is no symlink/device/socket
// support (spec Non-goals).
const (
	ModeDir uint32 = 0040000
	ModeReg uint32 = 0100000
	ModeFmt uint32 = 0170000
)

// Inode is the fixed-size, self-checksumming metadata record naming a
// file's kind, ownership, size, timestamps, and block map.
type Inode struct {
	Mode                uint32
	HardLinks           uint16
	UID                 uint32
	GID                 uint32
	Size                uint64
	BlockCount          uint32 // 512-byte sectors, for statfs
	CreatedAt           uint64
	AccessedAt          uint64
	ModifiedAt          uint64
	ChangedAt           uint64
	DirectBlocks        [DirectPointers]uint32
	IndirectBlock       uint32
	DoubleIndirectBlock uint32
	BlockSize           uint32
	Checksum            uint32
}

// NewInode builds a blank inode stamped with the given block size and
// timestamp.
func NewInode(blockSize uint32, now uint64) *Inode {
	return &Inode{
		HardLinks:  1,
		CreatedAt:  now,
		AccessedAt: now,
		ModifiedAt: now,
		ChangedAt:  now,
		BlockSize:  blockSize,
	}
}

// IsDir reports whether the inode names a directory.
func (in *Inode) IsDir() bool {
	return in.Mode&ModeDir != 0
}

// UpdateModifiedAt stamps modified_at and changed_at.
func (in *Inode) UpdateModifiedAt(now uint64) {
	in.ModifiedAt = now
	in.ChangedAt = now
}

// UpdateAccessedAt stamps accessed_at.
func (in *Inode) UpdateAccessedAt(now uint64) {
	in.AccessedAt = now
}

// DirectBlocksUsed returns the nonzero direct block pointers, in
// slot order.
func (in *Inode) DirectBlocksUsed() []uint32 {
	var out []uint32
	for _, b := range in.DirectBlocks {
		if b != 0 {
			out = append(out, b)
		}
	}
	return out
}

// Truncate clears the inode's size and direct block map, stamping
// modified_at/changed_at, and returns the data block indices that were
// in use so the caller can release them in the owning groups.
func (in *Inode) Truncate(now uint64) []uint32 {
	in.UpdateModifiedAt(now)
	in.Size = 0
	in.BlockCount = 0
	blocks := in.DirectBlocksUsed()
	in.DirectBlocks = [DirectPointers]uint32{}
	return blocks
}

// FindDirectBlock returns the block pointer stored at direct_blocks[index].
func (in *Inode) FindDirectBlock(index int) uint32 {
	if index < 0 || index >= len(in.DirectBlocks) {
		return 0
	}
	return in.DirectBlocks[index]
}

// SetDirectBlock sets direct_blocks[index] to block.
func (in *Inode) SetDirectBlock(index int, block uint32) error {
	if index < 0 || index >= len(in.DirectBlocks) {
		return fmt.Errorf("diskfmt: direct block index %d out of range", index)
	}
	in.DirectBlocks[index] = block
	return nil
}

// AdjustSize grows size to the maximum of its current value and
// newLen (used when a write does not start at the current end of
// file), and recomputes block_count in 512-byte sectors, rounded up.
func (in *Inode) AdjustSize(newLen uint64) {
	if newLen > in.Size {
		in.Size = newLen
	}
	in.BlockCount = uint32((in.Size + 511) / 512)
}

// IncrementSize adds delta bytes to size (used for a pure append),
// and recomputes block_count in 512-byte sectors, rounded up.
func (in *Inode) IncrementSize(delta uint64) {
	in.Size += delta
	in.BlockCount = uint32((in.Size + 511) / 512)
}

func (in *Inode) encode(checksum uint32) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, in.Mode)
	binary.Write(&buf, binary.LittleEndian, in.HardLinks)
	binary.Write(&buf, binary.LittleEndian, in.UID)
	binary.Write(&buf, binary.LittleEndian, in.GID)
	binary.Write(&buf, binary.LittleEndian, in.Size)
	binary.Write(&buf, binary.LittleEndian, in.BlockCount)
	binary.Write(&buf, binary.LittleEndian, in.CreatedAt)
	binary.Write(&buf, binary.LittleEndian, in.AccessedAt)
	binary.Write(&buf, binary.LittleEndian, in.ModifiedAt)
	binary.Write(&buf, binary.LittleEndian, in.ChangedAt)
	binary.Write(&buf, binary.LittleEndian, in.DirectBlocks)
	binary.Write(&buf, binary.LittleEndian, in.IndirectBlock)
	binary.Write(&buf, binary.LittleEndian, in.DoubleIndirectBlock)
	binary.Write(&buf, binary.LittleEndian, in.BlockSize)
	binary.Write(&buf, binary.LittleEndian, checksum)

	if pad := int(InodeSize) - buf.Len(); pad > 0 {
		buf.Write(make([]byte, pad))
	}
	return buf.Bytes()
}

// Encode serialises the inode into a fixed InodeSize-byte record,
// recomputing its checksum over the record with the checksum field
// zeroed.
func (in *Inode) Encode() ([]byte, error) {
	raw := in.encode(0)
	in.Checksum = checksum(raw)
	final := in.encode(in.Checksum)
	if uint64(len(final)) != InodeSize {
		return nil, fmt.Errorf("diskfmt: inode encodes to %d bytes, want %d", len(final), InodeSize)
	}
	return final, nil
}

// DecodeInode parses and verifies an inode from an InodeSize-byte
// buffer.
func DecodeInode(buf []byte) (*Inode, error) {
	if uint64(len(buf)) < InodeSize {
		return nil, fmt.Errorf("diskfmt: short inode buffer: %d bytes", len(buf))
	}
	r := bytes.NewReader(buf[:InodeSize])
	in := &Inode{}
	fields := []any{
		&in.Mode, &in.HardLinks, &in.UID, &in.GID, &in.Size, &in.BlockCount,
		&in.CreatedAt, &in.AccessedAt, &in.ModifiedAt, &in.ChangedAt,
	}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return nil, err
		}
	}
	if err := binary.Read(r, binary.LittleEndian, &in.DirectBlocks); err != nil {
		return nil, err
	}
	for _, f := range []any{&in.IndirectBlock, &in.DoubleIndirectBlock, &in.BlockSize, &in.Checksum} {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return nil, err
		}
	}

	want := in.Checksum
	raw := in.encode(0)
	if checksum(raw) != want {
		return nil, ErrChecksumMismatch
	}
	in.Checksum = want
	return in, nil
}
