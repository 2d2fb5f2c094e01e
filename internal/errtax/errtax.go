// Package errtax names the command-façade error taxonomy: the sentinel
// errors a caller driving the engine through paths and names (rather
// than through FUSE opcodes) sees, and their mapping to the
// syscall.Errno values the engine itself returns.
package errtax

import (
	"errors"
	"syscall"
)

var (
	ErrNoSuchFileOrDirectory   = errors.New("no such file or directory")
	ErrDirectoryNotFound       = errors.New("directory not found")
	ErrFileAlreadyExists       = errors.New("file already exists")
	ErrIsDirectory             = errors.New("is a directory")
	ErrTooFewFilesToConcatenate = errors.New("too few files to concatenate")
	ErrStartGreaterThanEnd     = errors.New("start offset greater than end offset")
	ErrEndGreaterThanFileSize  = errors.New("end offset greater than file size")
)

// FromErrno maps an engine-level syscall.Errno to a façade sentinel
// error. Errnos with no façade equivalent are returned unchanged.
func FromErrno(errno syscall.Errno) error {
	switch errno {
	case 0:
		return nil
	case syscall.ENOENT:
		return ErrNoSuchFileOrDirectory
	case syscall.ENOTDIR:
		return ErrDirectoryNotFound
	case syscall.EEXIST:
		return ErrFileAlreadyExists
	case syscall.EISDIR:
		return ErrIsDirectory
	default:
		return errno
	}
}

// ToErrno maps a façade sentinel error back to the engine's
// syscall.Errno, for tests and callers that need to compare against
// FUSE-level results. An error wrapping a syscall.Errno yields that
// errno; any other unrecognised error maps to EIO.
func ToErrno(err error) syscall.Errno {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrNoSuchFileOrDirectory):
		return syscall.ENOENT
	case errors.Is(err, ErrDirectoryNotFound):
		return syscall.ENOTDIR
	case errors.Is(err, ErrFileAlreadyExists):
		return syscall.EEXIST
	case errors.Is(err, ErrIsDirectory):
		return syscall.EISDIR
	default:
		var errno syscall.Errno
		if errors.As(err, &errno) {
			return errno
		}
		return syscall.EIO
	}
}
