package simpleext4

import (
	"syscall"

	"github.com/hanwen/go-fuse/v2/fuse"
)

// dirStream is a pre-materialised fs.DirStream over a directory
// snapshot: "." and ".." followed by the directory's entries in
// sorted name order, each tagged with its inode's file-type bit.
type dirStream struct {
	entries []fuse.DirEntry
	pos     int
}

func newDirStream(entries []fuse.DirEntry) *dirStream {
	return &dirStream{entries: entries}
}

func (d *dirStream) HasNext() bool {
	return d.pos < len(d.entries)
}

func (d *dirStream) Next() (fuse.DirEntry, syscall.Errno) {
	e := d.entries[d.pos]
	d.pos++
	return e, 0
}

func (d *dirStream) Close() {}
