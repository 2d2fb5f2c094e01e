// Package simpleext4 implements the SimpleExt4 block-structured image
// format and exposes it through go-fuse's fs.InodeEmbedder contract.
package simpleext4

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/hanwen-labs/simpleext4/internal/diskfmt"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Volume owns the memory-mapped image, the decoded superblock and
// group bitmaps, and serializes every operation against them behind a
// single mutex. Every Node in a mounted tree shares one Volume.
type Volume struct {
	mu sync.Mutex

	file   *os.File
	mapped []byte
	layout diskfmt.Layout
	sb     *diskfmt.Superblock
	groups []*diskfmt.Group

	log *logrus.Entry
}

// OpenVolume mmaps the image at path, decodes its superblock and group
// bitmaps, and ensures the root directory exists.
func OpenVolume(path string) (*Volume, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("simpleext4: open %s: %w", path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	mapped, err := unix.Mmap(int(f.Fd()), 0, int(fi.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("simpleext4: mmap %s: %w", path, err)
	}

	sb, err := diskfmt.DecodeSuperblock(mapped[:diskfmt.SuperblockSize])
	if err != nil {
		unix.Munmap(mapped)
		f.Close()
		return nil, fmt.Errorf("simpleext4: decode superblock: %w", err)
	}

	layout := diskfmt.NewLayout(sb.BlockSize)
	groups := make([]*diskfmt.Group, sb.Groups)
	perGroup := layout.DataBlocksPerGroup()
	for g := uint64(0); g < uint64(sb.Groups); g++ {
		dataOff := layout.DataBitmapOffset(g)
		inodeOff := layout.InodeBitmapOffset(g)
		dataBitmap := make([]byte, sb.BlockSize)
		inodeBitmap := make([]byte, sb.BlockSize)
		copy(dataBitmap, mapped[dataOff:dataOff+uint64(sb.BlockSize)])
		copy(inodeBitmap, mapped[inodeOff:inodeOff+uint64(sb.BlockSize)])
		groups[g] = diskfmt.LoadGroup(dataBitmap, inodeBitmap, perGroup)
	}

	v := &Volume{
		file:   f,
		mapped: mapped,
		layout: layout,
		sb:     sb,
		groups: groups,
		log:    logrus.WithField("component", "simpleext4"),
	}

	if err := v.ensureRoot(); err != nil {
		unix.Munmap(mapped)
		f.Close()
		return nil, err
	}

	return v, nil
}

// Mount records the mount time in the superblock, matching the Init
// hook a host driver calls before serving requests.
func (v *Volume) Mount() {
	v.mu.Lock()
	defer v.mu.Unlock()
	now := uint64(time.Now().Unix())
	v.sb.UpdateLastMountedAt(now)
	v.sb.UpdateModifiedAt(now)
	v.log.Debug("mounted")
}

// Unmount flushes the superblock and group bitmaps back into the
// image and releases the mapping. It must be the last call made on v.
func (v *Volume) Unmount() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	sbBytes, err := v.sb.Encode()
	if err != nil {
		return fmt.Errorf("simpleext4: encode superblock: %w", err)
	}
	copy(v.mapped[:diskfmt.SuperblockSize], sbBytes)

	for g, group := range v.groups {
		dataOff := v.layout.DataBitmapOffset(uint64(g))
		inodeOff := v.layout.InodeBitmapOffset(uint64(g))
		copy(v.mapped[dataOff:dataOff+uint64(v.sb.BlockSize)], group.DataBitmapBytes())
		copy(v.mapped[inodeOff:inodeOff+uint64(v.sb.BlockSize)], group.InodeBitmapBytes())
	}

	if err := unix.Msync(v.mapped, unix.MS_SYNC); err != nil {
		return fmt.Errorf("simpleext4: msync: %w", err)
	}
	if err := unix.Munmap(v.mapped); err != nil {
		return fmt.Errorf("simpleext4: munmap: %w", err)
	}
	v.mapped = nil
	v.log.Debug("unmounted")
	return v.file.Close()
}

func now() uint64 {
	return uint64(time.Now().Unix())
}

// ensureRoot creates the root inode and its (empty) directory block if
// the image was just formatted and has not been opened before.
func (v *Volume) ensureRoot() error {
	if v.groups[0].HasInode(uint64(diskfmt.RootInode)) {
		return nil
	}

	index, ok := v.allocateInodeLocked()
	if !ok {
		return fmt.Errorf("simpleext4: no space for root inode")
	}
	if index != diskfmt.RootInode {
		return fmt.Errorf("simpleext4: expected root inode %d, got %d", diskfmt.RootInode, index)
	}

	block, ok := v.allocateDataBlockLocked()
	if !ok {
		return fmt.Errorf("simpleext4: no space for root directory block")
	}

	in := diskfmt.NewInode(v.sb.BlockSize, now())
	in.Mode = diskfmt.ModeDir | 0o777
	in.HardLinks = 2
	in.SetDirectBlock(0, block)

	if err := v.writeInodeLocked(index, in); err != 0 {
		return fmt.Errorf("simpleext4: write root inode: errno %d", err)
	}
	if err := v.writeDirectoryAtLocked(block, diskfmt.NewDirectory()); err != 0 {
		return fmt.Errorf("simpleext4: write root directory: errno %d", err)
	}
	return nil
}
