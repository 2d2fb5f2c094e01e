package mkfs

import (
	"path/filepath"
	"testing"

	"github.com/hanwen-labs/simpleext4/internal/diskfmt"
	"github.com/hanwen-labs/simpleext4/internal/errtax"
)

func TestMakeWritesValidSuperblock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.s4x")

	sb, err := Make(path, 300000, 128, 1000, 1000, 42)
	if err != nil {
		t.Fatalf("Make: %v", err)
	}
	if sb.Magic != diskfmt.Magic {
		t.Errorf("Magic = %x, want %x", sb.Magic, diskfmt.Magic)
	}
	if sb.BlockSize != 128 {
		t.Errorf("BlockSize = %d, want 128", sb.BlockSize)
	}
	if sb.Groups == 0 {
		t.Error("Groups = 0, want at least 1")
	}
}

func TestMakeRefusesExistingPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.s4x")
	if _, err := Make(path, 300000, 128, 0, 0, 0); err != nil {
		t.Fatalf("first Make: %v", err)
	}
	if _, err := Make(path, 300000, 128, 0, 0, 0); err != errtax.ErrFileAlreadyExists {
		t.Fatalf("second Make: got %v, want ErrFileAlreadyExists", err)
	}
}

func TestMakeRejectsUndersizedImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.s4x")
	if _, err := Make(path, 1, 4096, 0, 0, 0); err == nil {
		t.Fatal("Make: expected error for undersized image, got nil")
	}
}
