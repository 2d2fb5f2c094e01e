package diskfmt

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Superblock is the root metadata record of a SimpleExt4 image, held
// at offset 0 in a SuperblockSize-byte reserved region.
type Superblock struct {
	Magic              uint32
	BlockSize          uint32
	CreatedAt          uint64
	ModifiedAt         *uint64
	LastMountedAt      *uint64
	BlockCount         uint32
	InodeCount         uint32
	FreeBlocks         uint32
	FreeInodes         uint32
	Groups             uint32
	DataBlocksPerGroup uint32
	UID                uint32
	GID                uint32
	Checksum           uint32
}

// NewSuperblock builds a fresh superblock for a newly formatted image
// with the given geometry and owner.
func NewSuperblock(blockSize uint32, groups uint32, uid, gid uint32, now uint64) *Superblock {
	dataBlocksPerGroup := blockSize * 8
	total := dataBlocksPerGroup * groups
	return &Superblock{
		Magic:              Magic,
		BlockSize:          blockSize,
		CreatedAt:          now,
		BlockCount:         total,
		InodeCount:         total,
		FreeBlocks:         total,
		FreeInodes:         total,
		Groups:             groups,
		DataBlocksPerGroup: dataBlocksPerGroup,
		UID:                uid,
		GID:                gid,
	}
}

// UpdateLastMountedAt records a new mount time.
func (s *Superblock) UpdateLastMountedAt(now uint64) {
	v := now
	s.LastMountedAt = &v
}

// UpdateModifiedAt records a metadata modification time.
func (s *Superblock) UpdateModifiedAt(now uint64) {
	v := now
	s.ModifiedAt = &v
}

func writeOptionalU64(w io.Writer, v *uint64) error {
	if v == nil {
		_, err := w.Write([]byte{0})
		return err
	}
	if _, err := w.Write([]byte{1}); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, *v)
}

func readOptionalU64(r io.Reader) (*uint64, error) {
	var tag [1]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return nil, err
	}
	if tag[0] == 0 {
		return nil, nil
	}
	var v uint64
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// encode writes the fixed field layout in order, using checksum as the
// value for the checksum field (so the caller can pass 0 to hash, and
// the real value to produce the final on-disk bytes).
func (s *Superblock) encode(checksum uint32) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, s.Magic)
	binary.Write(&buf, binary.LittleEndian, s.BlockSize)
	binary.Write(&buf, binary.LittleEndian, s.CreatedAt)
	writeOptionalU64(&buf, s.ModifiedAt)
	writeOptionalU64(&buf, s.LastMountedAt)
	binary.Write(&buf, binary.LittleEndian, s.BlockCount)
	binary.Write(&buf, binary.LittleEndian, s.InodeCount)
	binary.Write(&buf, binary.LittleEndian, s.FreeBlocks)
	binary.Write(&buf, binary.LittleEndian, s.FreeInodes)
	binary.Write(&buf, binary.LittleEndian, s.Groups)
	binary.Write(&buf, binary.LittleEndian, s.DataBlocksPerGroup)
	binary.Write(&buf, binary.LittleEndian, s.UID)
	binary.Write(&buf, binary.LittleEndian, s.GID)
	binary.Write(&buf, binary.LittleEndian, checksum)
	return buf.Bytes()
}

// Encode serialises the superblock into a SuperblockSize-byte buffer,
// recomputing its checksum over the record with the checksum field
// zeroed.
func (s *Superblock) Encode() ([]byte, error) {
	raw := s.encode(0)
	s.Checksum = checksum(raw)
	final := s.encode(s.Checksum)
	if uint64(len(final)) > SuperblockSize {
		return nil, fmt.Errorf("diskfmt: superblock encodes to %d bytes, exceeds reserved %d", len(final), SuperblockSize)
	}
	out := make([]byte, SuperblockSize)
	copy(out, final)
	return out, nil
}

// DecodeSuperblock parses and verifies a superblock from a
// SuperblockSize-byte buffer.
func DecodeSuperblock(buf []byte) (*Superblock, error) {
	r := bytes.NewReader(buf)
	s := &Superblock{}
	if err := binary.Read(r, binary.LittleEndian, &s.Magic); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &s.BlockSize); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &s.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if s.ModifiedAt, err = readOptionalU64(r); err != nil {
		return nil, err
	}
	if s.LastMountedAt, err = readOptionalU64(r); err != nil {
		return nil, err
	}
	for _, dst := range []*uint32{
		&s.BlockCount, &s.InodeCount, &s.FreeBlocks, &s.FreeInodes,
		&s.Groups, &s.DataBlocksPerGroup, &s.UID, &s.GID, &s.Checksum,
	} {
		if err := binary.Read(r, binary.LittleEndian, dst); err != nil {
			return nil, err
		}
	}

	want := s.Checksum
	raw := s.encode(0)
	if checksum(raw) != want {
		return nil, ErrChecksumMismatch
	}
	s.Checksum = want
	return s, nil
}
