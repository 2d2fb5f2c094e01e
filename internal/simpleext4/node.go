package simpleext4

import (
	"context"
	"syscall"

	"github.com/hanwen-labs/simpleext4/internal/diskfmt"
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Node is one tree position in a mounted SimpleExt4 image: it embeds
// fs.Inode to satisfy fs.InodeEmbedder, and names the SimpleExt4
// inode index it reflects. Every Node in a tree shares one Volume.
type Node struct {
	fs.Inode

	vol   *Volume
	index uint32
}

var (
	_ fs.InodeEmbedder = (*Node)(nil)
	_ fs.NodeStatfser  = (*Node)(nil)
	_ fs.NodeAccesser  = (*Node)(nil)
	_ fs.NodeGetattrer = (*Node)(nil)
	_ fs.NodeLookuper  = (*Node)(nil)
	_ fs.NodeReaddirer = (*Node)(nil)
	_ fs.NodeMkdirer   = (*Node)(nil)
	_ fs.NodeCreater   = (*Node)(nil)
	_ fs.NodeUnlinker  = (*Node)(nil)
	_ fs.NodeOpener    = (*Node)(nil)
	_ fs.NodeReader    = (*Node)(nil)
	_ fs.NodeWriter    = (*Node)(nil)
)

// RootNode builds the InodeEmbedder for the image's root directory,
// suitable for passing to fs.Mount.
func RootNode(vol *Volume) *Node {
	return &Node{vol: vol, index: diskfmt.RootInode}
}

func (n *Node) child(ctx context.Context, index uint32, mode uint32) *fs.Inode {
	return n.NewInode(ctx, &Node{vol: n.vol, index: index}, stableAttrFor(index, mode))
}

// Statfs reports image-wide block/inode accounting, per the
// superblock.
func (n *Node) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	n.vol.log.Debug("statfs")

	n.vol.mu.Lock()
	defer n.vol.mu.Unlock()

	sb := n.vol.sb
	out.Blocks = uint64(sb.BlockCount)
	out.Bfree = uint64(sb.FreeBlocks)
	out.Bavail = uint64(sb.FreeBlocks)
	out.Files = uint64(sb.InodeCount)
	out.Ffree = uint64(sb.FreeInodes)
	out.Bsize = sb.BlockSize
	out.NameLen = diskfmt.MaxFilenameLength
	out.Frsize = sb.BlockSize
	return 0
}

// Access checks the caller's uid/gid against this inode's owner and
// mode for the requested mask.
func (n *Node) Access(ctx context.Context, mask uint32) syscall.Errno {
	n.vol.log.WithField("ino", n.index).WithField("mask", mask).Debug("access")

	n.vol.mu.Lock()
	in, errno := n.vol.readInodeLocked(n.index)
	n.vol.mu.Unlock()
	if errno != 0 {
		return errno
	}

	caller, ok := fuse.FromContext(ctx)
	var uid, gid uint32
	if ok {
		uid, gid = caller.Uid, caller.Gid
	}
	if checkAccess(in.UID, in.GID, in.Mode, uid, gid, mask) {
		return 0
	}
	return syscall.EACCES
}

// Getattr fills out with this inode's attributes.
func (n *Node) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	n.vol.log.WithField("ino", n.index).Debug("getattr")

	n.vol.mu.Lock()
	defer n.vol.mu.Unlock()

	in, errno := n.vol.readInodeLocked(n.index)
	if errno != 0 {
		return errno
	}
	fillAttr(&out.Attr, n.index, in)
	return 0
}

// directoryOf loads the directory block for this node, failing with
// ENOTDIR if it does not name a directory. The caller must hold
// n.vol.mu.
func (n *Node) directoryOf() (*diskfmt.Inode, *diskfmt.Directory, syscall.Errno) {
	self, errno := n.vol.readInodeLocked(n.index)
	if errno != 0 {
		return nil, nil, errno
	}
	if !self.IsDir() {
		return nil, nil, syscall.ENOTDIR
	}
	dir, errno := n.vol.readDirectoryAtLocked(self.FindDirectBlock(0))
	if errno != 0 {
		return nil, nil, errno
	}
	return self, dir, 0
}

// Lookup resolves name within this directory.
func (n *Node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	n.vol.log.WithField("parent", n.index).WithField("name", name).Debug("lookup")

	n.vol.mu.Lock()
	defer n.vol.mu.Unlock()

	_, dir, errno := n.directoryOf()
	if errno != 0 {
		return nil, errno
	}
	index, ok := dir.Lookup(name)
	if !ok {
		return nil, syscall.ENOENT
	}
	childInode, errno := n.vol.readInodeLocked(index)
	if errno != 0 {
		return nil, errno
	}
	fillAttr(&out.Attr, index, childInode)
	return n.child(ctx, index, childInode.Mode), 0
}

// Readdir lists "." and ".." followed by this directory's entries.
func (n *Node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	n.vol.log.WithField("ino", n.index).Debug("readdir")

	n.vol.mu.Lock()
	defer n.vol.mu.Unlock()

	_, dir, errno := n.directoryOf()
	if errno != 0 {
		return nil, errno
	}

	entries := []fuse.DirEntry{
		{Mode: fuse.S_IFDIR, Name: ".", Ino: uint64(n.index)},
		{Mode: fuse.S_IFDIR, Name: "..", Ino: uint64(diskfmt.RootInode)},
	}
	dir.Entries(func(name string, index uint32) {
		child, errno := n.vol.readInodeLocked(index)
		if errno != 0 {
			return
		}
		mode := uint32(fuse.S_IFREG)
		if child.IsDir() {
			mode = fuse.S_IFDIR
		}
		entries = append(entries, fuse.DirEntry{Mode: mode, Name: name, Ino: uint64(index)})
	})
	return newDirStream(entries), 0
}

// Create allocates a new regular-file inode, links it into this
// directory, and returns it opened.
func (n *Node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	n.vol.log.WithField("parent", n.index).WithField("name", name).Debug("create")

	n.vol.mu.Lock()
	defer n.vol.mu.Unlock()

	parentInode, dir, errno := n.directoryOf()
	if errno != 0 {
		return nil, nil, 0, errno
	}

	index, ok := n.vol.allocateInodeLocked()
	if !ok {
		return nil, nil, 0, syscall.ENOSPC
	}

	in := diskfmt.NewInode(n.vol.sb.BlockSize, now())
	in.Mode = diskfmt.ModeReg | mode
	in.UID = n.vol.sb.UID
	in.GID = n.vol.sb.GID

	if errno := n.vol.writeInodeLocked(index, in); errno != 0 {
		return nil, nil, 0, errno
	}

	dir.Insert(name, index)
	parentInode.UpdateModifiedAt(now())
	if errno := n.vol.writeInodeLocked(n.index, parentInode); errno != 0 {
		return nil, nil, 0, errno
	}
	if errno := n.vol.writeDirectoryAtLocked(parentInode.FindDirectBlock(0), dir); errno != 0 {
		return nil, nil, 0, errno
	}

	fillAttr(&out.Attr, index, in)
	return n.child(ctx, index, in.Mode), nil, 0, 0
}

// Mkdir allocates a new directory inode and its (empty) directory
// block, and links it into this directory.
func (n *Node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	n.vol.log.WithField("parent", n.index).WithField("name", name).Debug("mkdir")

	n.vol.mu.Lock()
	defer n.vol.mu.Unlock()

	parentInode, parentDir, errno := n.directoryOf()
	if errno != 0 {
		return nil, errno
	}

	index, ok := n.vol.allocateInodeLocked()
	if !ok {
		return nil, syscall.ENOSPC
	}
	block, ok := n.vol.allocateDataBlockLocked()
	if !ok {
		return nil, syscall.ENOSPC
	}

	in := diskfmt.NewInode(n.vol.sb.BlockSize, now())
	in.Mode = diskfmt.ModeDir | mode
	in.HardLinks = 2
	in.UID = n.vol.sb.UID
	in.GID = n.vol.sb.GID
	in.SetDirectBlock(0, block)

	if errno := n.vol.writeInodeLocked(index, in); errno != 0 {
		return nil, errno
	}
	if errno := n.vol.writeDirectoryAtLocked(block, diskfmt.NewDirectory()); errno != 0 {
		return nil, errno
	}

	parentDir.Insert(name, index)
	parentInode.UpdateModifiedAt(now())
	if errno := n.vol.writeInodeLocked(n.index, parentInode); errno != 0 {
		return nil, errno
	}
	if errno := n.vol.writeDirectoryAtLocked(parentInode.FindDirectBlock(0), parentDir); errno != 0 {
		return nil, errno
	}

	fillAttr(&out.Attr, index, in)
	return n.child(ctx, index, in.Mode), 0
}

// Unlink removes name from this directory and reclaims the target
// inode's blocks.
func (n *Node) Unlink(ctx context.Context, name string) syscall.Errno {
	n.vol.log.WithField("parent", n.index).WithField("name", name).Debug("unlink")

	n.vol.mu.Lock()
	defer n.vol.mu.Unlock()

	parentInode, parentDir, errno := n.directoryOf()
	if errno != 0 {
		return errno
	}

	index, ok := parentDir.Lookup(name)
	if !ok {
		return syscall.ENOENT
	}

	target, errno := n.vol.readInodeLocked(index)
	if errno != 0 {
		return errno
	}

	n.vol.releaseDataBlocksLocked(target.DirectBlocksUsed())
	if target.IndirectBlock != 0 {
		n.vol.releaseIndirectBlockLocked(target.IndirectBlock)
		n.vol.releaseDataBlocksLocked([]uint32{target.IndirectBlock})
	}
	if target.DoubleIndirectBlock != 0 {
		n.vol.releaseDoubleIndirectBlockLocked(target.DoubleIndirectBlock)
		n.vol.releaseDataBlocksLocked([]uint32{target.DoubleIndirectBlock})
	}

	parentDir.Remove(name)
	parentInode.UpdateModifiedAt(now())
	if errno := n.vol.writeInodeLocked(n.index, parentInode); errno != 0 {
		return errno
	}
	if errno := n.vol.writeDirectoryAtLocked(parentInode.FindDirectBlock(0), parentDir); errno != 0 {
		return errno
	}

	n.vol.releaseInodeLocked(index)
	return 0
}

// Open validates the requested access mode against this inode's
// permissions; the access mask derivation and O_TRUNC-on-read-only
// rejection follow the standard open(2) contract.
func (n *Node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	n.vol.log.WithField("ino", n.index).WithField("flags", flags).Debug("open")

	var mask uint32
	switch flags & syscall.O_ACCMODE {
	case syscall.O_RDONLY:
		if flags&syscall.O_TRUNC != 0 {
			return nil, 0, syscall.EACCES
		}
		mask = syscall.R_OK
	case syscall.O_WRONLY:
		mask = syscall.W_OK
	case syscall.O_RDWR:
		mask = syscall.R_OK | syscall.W_OK
	default:
		return nil, 0, syscall.EINVAL
	}

	n.vol.mu.Lock()
	in, errno := n.vol.readInodeLocked(n.index)
	n.vol.mu.Unlock()
	if errno != 0 {
		return nil, 0, errno
	}

	caller, ok := fuse.FromContext(ctx)
	var uid, gid uint32
	if ok {
		uid, gid = caller.Uid, caller.Gid
	}
	if !checkAccess(in.UID, in.GID, in.Mode, uid, gid, mask) {
		return nil, 0, syscall.EACCES
	}
	return nil, 0, 0
}

// Read loads up to len(dest) bytes (bounded by the inode's size)
// starting at off, walking the block map one physical block at a
// time.
func (n *Node) Read(ctx context.Context, f fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	n.vol.log.WithField("ino", n.index).WithField("off", off).WithField("len", len(dest)).Debug("read")

	n.vol.mu.Lock()
	defer n.vol.mu.Unlock()

	in, errno := n.vol.readInodeLocked(n.index)
	if errno != 0 {
		return nil, errno
	}

	blkSize := uint64(n.vol.sb.BlockSize)
	shouldRead := len(dest)
	if uint64(shouldRead) > in.Size {
		shouldRead = int(in.Size)
	}

	totalRead := 0
	currentOffset := uint64(off)
	for totalRead != shouldRead {
		directBlockIndex := currentOffset / blkSize
		block, spaceLeft, errno := n.vol.findDataBlockLocked(in, currentOffset, true)
		if errno != 0 {
			return nil, errno
		}

		maxReadLen := shouldRead
		if int(spaceLeft)+totalRead < maxReadLen {
			maxReadLen = int(spaceLeft) + totalRead
		}
		var offsetInBlock uint64
		if totalRead == 0 {
			offsetInBlock = currentOffset - directBlockIndex*blkSize
		}

		n.vol.readDataLocked(dest[totalRead:maxReadLen], offsetInBlock, block)
		read := maxReadLen - totalRead
		totalRead += read
		currentOffset += uint64(read)
	}

	in.UpdateAccessedAt(now())
	if errno := n.vol.writeInodeLocked(n.index, in); errno != 0 {
		return nil, errno
	}

	return fuse.ReadResultData(dest[:totalRead]), 0
}

// Write stores data at off, allocating blocks as needed, and updates
// the inode's size/timestamps.
func (n *Node) Write(ctx context.Context, f fs.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	n.vol.log.WithField("ino", n.index).WithField("off", off).WithField("len", len(data)).Debug("write")

	n.vol.mu.Lock()
	defer n.vol.mu.Unlock()

	in, errno := n.vol.readInodeLocked(n.index)
	if errno != 0 {
		return 0, errno
	}

	blkSize := uint64(n.vol.sb.BlockSize)
	appending := in.Size == uint64(off)
	currentOffset := uint64(off)

	totalWrote := 0
	for totalWrote != len(data) {
		directBlockIndex := currentOffset / blkSize
		block, spaceLeft, errno := n.vol.findDataBlockLocked(in, currentOffset, false)
		if errno != 0 {
			return 0, errno
		}

		maxWriteLen := len(data) - totalWrote
		if int(spaceLeft) < maxWriteLen {
			maxWriteLen = int(spaceLeft)
		}
		var offsetInBlock uint64
		if totalWrote == 0 {
			offsetInBlock = currentOffset - directBlockIndex*blkSize
		}

		wrote := n.vol.writeDataLocked(data[totalWrote:totalWrote+maxWriteLen], offsetInBlock, block)
		totalWrote += wrote
		currentOffset += uint64(wrote)
	}

	in.UpdateModifiedAt(now())
	if appending {
		in.IncrementSize(uint64(totalWrote))
	} else {
		in.AdjustSize(uint64(off) + uint64(totalWrote))
	}
	if errno := n.vol.writeInodeLocked(n.index, in); errno != 0 {
		return 0, errno
	}

	return uint32(totalWrote), 0
}
