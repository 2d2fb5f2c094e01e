// Package mkfs formats a new, empty SimpleExt4 image file.
package mkfs

import (
	"fmt"
	"os"

	"github.com/hanwen-labs/simpleext4/internal/diskfmt"
	"github.com/hanwen-labs/simpleext4/internal/errtax"
)

// Make creates a new image file at path sized to hold at least
// sizeBytes of capacity, rounded up to a whole number of block
// groups. It fails if path already exists, matching the exclusive
// create semantics of mkfs(8)-style tools. No root inode is written
// here; simpleext4.OpenVolume lazily creates one the first time the image
// is opened.
func Make(path string, sizeBytes uint64, blockSize uint32, uid, gid uint32, now uint64) (*diskfmt.Superblock, error) {
	if blockSize == 0 {
		blockSize = diskfmt.DefaultBlockSize
	}

	layout := diskfmt.NewLayout(blockSize)
	groupSize := layout.GroupSize()
	if sizeBytes < groupSize-2*uint64(blockSize) {
		return nil, fmt.Errorf("mkfs: requested size %d is too small for one block group (need at least %d)", sizeBytes, groupSize-2*uint64(blockSize))
	}
	groups := layout.GroupsForSize(sizeBytes)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, errtax.ErrFileAlreadyExists
		}
		return nil, fmt.Errorf("mkfs: create %s: %w", path, err)
	}
	defer f.Close()

	sb := diskfmt.NewSuperblock(blockSize, uint32(groups), uid, gid, now)
	buf, err := sb.Encode()
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("mkfs: encode superblock: %w", err)
	}
	if _, err := f.WriteAt(buf, 0); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("mkfs: write superblock: %w", err)
	}

	if err := f.Truncate(int64(layout.ImageSize(groups))); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("mkfs: truncate %s: %w", path, err)
	}

	return sb, nil
}
