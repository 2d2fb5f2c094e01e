package simpleext4

import (
	"context"
	"syscall"
	"testing"

	"github.com/hanwen-labs/simpleext4/internal/diskfmt"
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// newTestRoot wires a fresh Volume's root Node into a go-fuse bridge
// via fs.NewNodeFS, which sets up NewInode's internal bookkeeping
// without starting a real kernel mount (fuse.NewServer/Serve is never
// called), so FUSE operations can be driven directly against Node.
func newTestRoot(t *testing.T) (*Node, *Volume) {
	t.Helper()
	vol := newTestVolume(t)
	root := RootNode(vol)
	fs.NewNodeFS(root, nil)
	return root, vol
}

func asNode(t *testing.T, inode *fs.Inode) *Node {
	t.Helper()
	n, ok := inode.Operations().(*Node)
	if !ok {
		t.Fatalf("Operations() = %T, want *Node", inode.Operations())
	}
	return n
}

// TestMkdirCreateReaddirOrdering covers spec scenario 2: mkdir, create,
// readdir lists "." ".." then entries in order, and the new inodes have
// the expected kind/link count.
func TestMkdirCreateReaddirOrdering(t *testing.T) {
	root, _ := newTestRoot(t)
	ctx := context.Background()

	var dirOut fuse.EntryOut
	dirInode, errno := root.Mkdir(ctx, "a", 0o755, &dirOut)
	if errno != 0 {
		t.Fatalf("Mkdir(a): errno %d", errno)
	}
	if dirOut.Attr.Ino != 2 {
		t.Fatalf("Mkdir(a) ino = %d, want 2", dirOut.Attr.Ino)
	}
	if dirOut.Attr.Mode&diskfmt.ModeDir == 0 {
		t.Fatalf("Mkdir(a) mode = %o, want directory bit set", dirOut.Attr.Mode)
	}
	if dirOut.Attr.Nlink != 2 {
		t.Fatalf("Mkdir(a) nlink = %d, want 2", dirOut.Attr.Nlink)
	}

	var fileOut fuse.EntryOut
	fileInode, _, _, errno := root.Create(ctx, "b", 0, 0o644, &fileOut)
	if errno != 0 {
		t.Fatalf("Create(b): errno %d", errno)
	}
	if fileOut.Attr.Ino != 3 {
		t.Fatalf("Create(b) ino = %d, want 3", fileOut.Attr.Ino)
	}
	if fileOut.Attr.Mode&diskfmt.ModeReg == 0 {
		t.Fatalf("Create(b) mode = %o, want regular-file bit set", fileOut.Attr.Mode)
	}

	stream, errno := root.Readdir(ctx)
	if errno != 0 {
		t.Fatalf("Readdir: errno %d", errno)
	}
	var names []string
	for stream.HasNext() {
		e, errno := stream.Next()
		if errno != 0 {
			t.Fatalf("Readdir Next: errno %d", errno)
		}
		names = append(names, e.Name)
	}
	want := []string{".", "..", "a", "b"}
	if len(names) != len(want) {
		t.Fatalf("Readdir names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("Readdir names = %v, want %v", names, want)
		}
	}

	var dirAttr fuse.AttrOut
	if errno := asNode(t, dirInode).Getattr(ctx, nil, &dirAttr); errno != 0 {
		t.Fatalf("Getattr(a): errno %d", errno)
	}
	if dirAttr.Attr.Mode&diskfmt.ModeDir == 0 || dirAttr.Attr.Nlink != 2 {
		t.Fatalf("Getattr(a) = %+v, want directory with nlink 2", dirAttr.Attr)
	}

	var fileAttr fuse.AttrOut
	if errno := asNode(t, fileInode).Getattr(ctx, nil, &fileAttr); errno != 0 {
		t.Fatalf("Getattr(b): errno %d", errno)
	}
	if fileAttr.Attr.Mode&diskfmt.ModeReg == 0 {
		t.Fatalf("Getattr(b) = %+v, want regular file", fileAttr.Attr)
	}
}

// TestWriteReadAcrossBlockBoundary covers spec scenarios 3 and 4: a
// write/read within one 128-byte block, then a second write starting
// at offset 126 that spans the block boundary, leaving a one-byte hole
// at offset 125 and using direct_blocks[0] and [1] but not [2].
func TestWriteReadAcrossBlockBoundary(t *testing.T) {
	root, vol := newTestRoot(t)
	ctx := context.Background()

	var out fuse.EntryOut
	fileInode, _, _, errno := root.Create(ctx, "f", 0, 0o644, &out)
	if errno != 0 {
		t.Fatalf("Create(f): errno %d", errno)
	}
	file := asNode(t, fileInode)

	first := make([]byte, 125)
	for i := range first {
		first[i] = 0xAA
	}
	n, errno := file.Write(ctx, nil, first, 0)
	if errno != 0 {
		t.Fatalf("Write(0, 125): errno %d", errno)
	}
	if n != uint32(len(first)) {
		t.Fatalf("Write(0, 125) = %d bytes, want %d", n, len(first))
	}

	readBuf := make([]byte, 125)
	res, errno := file.Read(ctx, nil, readBuf, 0)
	if errno != 0 {
		t.Fatalf("Read(0, 125): errno %d", errno)
	}
	got, status := res.Bytes(readBuf)
	if !status.Ok() {
		t.Fatalf("Read(0, 125) status = %v", status)
	}
	if string(got) != string(first) {
		t.Fatalf("Read(0, 125) = %x, want %x", got, first)
	}

	var attrAfterFirst fuse.AttrOut
	if errno := file.Getattr(ctx, nil, &attrAfterFirst); errno != 0 {
		t.Fatalf("Getattr after first write: errno %d", errno)
	}
	if attrAfterFirst.Attr.Size != 125 || attrAfterFirst.Attr.Blocks != 1 {
		t.Fatalf("Getattr after first write = %+v, want size 125, blocks 1", attrAfterFirst.Attr)
	}

	second := make([]byte, 125)
	for i := range second {
		second[i] = 0x55
	}
	n, errno = file.Write(ctx, nil, second, 126)
	if errno != 0 {
		t.Fatalf("Write(126, 125): errno %d", errno)
	}
	if n != uint32(len(second)) {
		t.Fatalf("Write(126, 125) = %d bytes, want %d", n, len(second))
	}

	wholeBuf := make([]byte, 251)
	res, errno = file.Read(ctx, nil, wholeBuf, 0)
	if errno != 0 {
		t.Fatalf("Read(0, 251): errno %d", errno)
	}
	whole, status := res.Bytes(wholeBuf)
	if !status.Ok() {
		t.Fatalf("Read(0, 251) status = %v", status)
	}

	want := append(append([]byte{}, first...), 0)
	want = append(want, second...)
	if len(whole) != len(want) {
		t.Fatalf("Read(0, 251) length = %d, want %d", len(whole), len(want))
	}
	for i := range want {
		if whole[i] != want[i] {
			t.Fatalf("Read(0, 251)[%d] = %x, want %x", i, whole[i], want[i])
		}
	}

	vol.mu.Lock()
	in, errno := vol.readInodeLocked(uint32(out.Attr.Ino))
	vol.mu.Unlock()
	if errno != 0 {
		t.Fatalf("readInodeLocked: errno %d", errno)
	}
	if in.FindDirectBlock(0) == 0 || in.FindDirectBlock(1) == 0 {
		t.Fatalf("direct_blocks[0..2] = [%d, %d], want both nonzero", in.FindDirectBlock(0), in.FindDirectBlock(1))
	}
	if in.FindDirectBlock(2) != 0 {
		t.Fatalf("direct_blocks[2] = %d, want 0 (untouched)", in.FindDirectBlock(2))
	}
}

// TestUnlinkThenCreateReusesFreedInode covers spec scenario 5: unlink
// frees the target inode and its blocks, lookup then fails with
// ENOENT, and the next create reuses the freed inode index.
func TestUnlinkThenCreateReusesFreedInode(t *testing.T) {
	root, vol := newTestRoot(t)
	ctx := context.Background()

	var dirOut fuse.EntryOut
	if _, errno := root.Mkdir(ctx, "a", 0o755, &dirOut); errno != 0 {
		t.Fatalf("Mkdir(a): errno %d", errno)
	}

	var fileOut fuse.EntryOut
	if _, _, _, errno := root.Create(ctx, "b", 0, 0o644, &fileOut); errno != 0 {
		t.Fatalf("Create(b): errno %d", errno)
	}
	freedInode := uint32(fileOut.Attr.Ino)

	vol.mu.Lock()
	freeInodesBefore := vol.sb.FreeInodes
	vol.mu.Unlock()

	if errno := root.Unlink(ctx, "b"); errno != 0 {
		t.Fatalf("Unlink(b): errno %d", errno)
	}

	var lookupOut fuse.EntryOut
	if _, errno := root.Lookup(ctx, "b", &lookupOut); errno != syscall.ENOENT {
		t.Fatalf("Lookup(b) after unlink: errno %d, want ENOENT", errno)
	}

	vol.mu.Lock()
	freeInodesAfter := vol.sb.FreeInodes
	vol.mu.Unlock()
	if freeInodesAfter != freeInodesBefore+1 {
		t.Fatalf("FreeInodes after unlink = %d, want %d", freeInodesAfter, freeInodesBefore+1)
	}

	var reusedOut fuse.EntryOut
	if _, _, _, errno := root.Create(ctx, "b2", 0, 0o644, &reusedOut); errno != 0 {
		t.Fatalf("Create(b2): errno %d", errno)
	}
	if uint32(reusedOut.Attr.Ino) != freedInode {
		t.Fatalf("Create(b2) ino = %d, want reused %d", reusedOut.Attr.Ino, freedInode)
	}
}

// TestUnlinkMissingEntryReturnsENOENT covers the "missing entry" edge
// case named in spec.md §4.5.6.
func TestUnlinkMissingEntryReturnsENOENT(t *testing.T) {
	root, _ := newTestRoot(t)
	ctx := context.Background()

	if errno := root.Unlink(ctx, "missing"); errno != syscall.ENOENT {
		t.Fatalf("Unlink(missing) = errno %d, want ENOENT", errno)
	}
}
