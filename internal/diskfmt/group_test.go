package diskfmt

import "testing"

func TestGroupAllocateInOrder(t *testing.T) {
	g := NewGroup(8)

	s1, ok := g.AllocateDataBlock()
	if !ok || s1 != 1 {
		t.Fatalf("first allocate = (%d, %v), want (1, true)", s1, ok)
	}
	s2, ok := g.AllocateDataBlock()
	if !ok || s2 != 2 {
		t.Fatalf("second allocate = (%d, %v), want (2, true)", s2, ok)
	}
}

func TestGroupReleaseLowersHintOnlyWhenSmaller(t *testing.T) {
	g := NewGroup(8)

	for i := 0; i < 4; i++ {
		if _, ok := g.AllocateDataBlock(); !ok {
			t.Fatalf("allocate %d failed", i)
		}
	}
	// slots 1..4 are taken; release slot 2 (the REDESIGN FLAG scenario:
	// the hint must move back to the smallest freed index).
	g.ReleaseDataBlock(2)

	next, ok := g.AllocateDataBlock()
	if !ok || next != 2 {
		t.Fatalf("allocate after release = (%d, %v), want (2, true)", next, ok)
	}

	// The hint now sits at slot 5; releasing slot 4, which is smaller,
	// moves the hint down to it.
	g.ReleaseDataBlock(4)
	next2, ok := g.AllocateDataBlock()
	if !ok || next2 != 4 {
		t.Fatalf("allocate after second release = (%d, %v), want (4, true)", next2, ok)
	}
}

func TestGroupFullReportsNotOK(t *testing.T) {
	g := NewGroup(2)
	if _, ok := g.AllocateDataBlock(); !ok {
		t.Fatal("first allocate failed")
	}
	if _, ok := g.AllocateDataBlock(); !ok {
		t.Fatal("second allocate failed")
	}
	if _, ok := g.AllocateDataBlock(); ok {
		t.Fatal("third allocate on a full group of 2 should fail")
	}
}

func TestGroupLoadRoundTrip(t *testing.T) {
	g := NewGroup(16)
	g.AllocateDataBlock()
	g.AllocateInode()

	loaded := LoadGroup(append([]byte(nil), g.DataBitmapBytes()...), append([]byte(nil), g.InodeBitmapBytes()...), 16)
	if !loaded.HasDataBlock(1) {
		t.Error("loaded group lost its data block allocation")
	}
	if !loaded.HasInode(1) {
		t.Error("loaded group lost its inode allocation")
	}
	if loaded.FreeDataBlocks() != 15 {
		t.Errorf("FreeDataBlocks() = %d, want 15", loaded.FreeDataBlocks())
	}
}
