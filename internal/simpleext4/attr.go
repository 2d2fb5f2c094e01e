package simpleext4

import (
	"github.com/hanwen-labs/simpleext4/internal/diskfmt"
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// fillAttr copies an on-disk inode's metadata into a FUSE attribute
// record for the given global inode index.
func fillAttr(out *fuse.Attr, index uint32, in *diskfmt.Inode) {
	out.Ino = uint64(index)
	out.Size = in.Size
	out.Blocks = uint64(in.BlockCount)
	out.Atime = in.AccessedAt
	out.Mtime = in.ModifiedAt
	out.Ctime = in.ChangedAt
	out.Mode = in.Mode
	out.Nlink = uint32(in.HardLinks)
	out.Uid = in.UID
	out.Gid = in.GID
	out.Blksize = in.BlockSize
}

// stableAttrFor builds the fs.StableAttr identifying a node by its
// SimpleExt4 inode index.
func stableAttrFor(index uint32, mode uint32) fs.StableAttr {
	return fs.StableAttr{
		Mode: mode,
		Ino:  uint64(index),
	}
}
