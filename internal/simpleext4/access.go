package simpleext4

import "syscall"

// checkAccess reports whether a caller with (uid, gid) may access an
// object owned by (ownerUID, ownerGID) with the given mode, under the
// requested mask (R_OK/W_OK/X_OK, or combinations), using standard
// Unix semantics: owner bits if uid matches, else group bits if gid
// matches, else other bits.
func checkAccess(ownerUID, ownerGID, mode uint32, uid, gid uint32, mask uint32) bool {
	if mask == 0 {
		return true
	}

	var perm uint32
	switch {
	case uid == ownerUID:
		perm = (mode >> 6) & 0o7
	case gid == ownerGID:
		perm = (mode >> 3) & 0o7
	default:
		perm = mode & 0o7
	}

	want := uint32(0)
	if mask&syscall.R_OK != 0 {
		want |= 0o4
	}
	if mask&syscall.W_OK != 0 {
		want |= 0o2
	}
	if mask&syscall.X_OK != 0 {
		want |= 0o1
	}
	return perm&want == want
}
