package extarr

import (
	"bufio"
	"io"
	"os"
	"sync"
)

// FileBacked pairs a buffered reader and a buffered writer over the
// same file description, so reads and writes can each be buffered
// independently while still sharing one seek position underneath —
// the same shape as the original's paired BufReader/BufWriter over a
// cloned file handle.
type FileBacked struct {
	file   *os.File
	reader *bufio.Reader
	writer *bufio.Writer
}

// NewFileBacked opens (creating and truncating) path for reading and
// writing.
func NewFileBacked(path string) (*FileBacked, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	return &FileBacked{
		file:   f,
		reader: bufio.NewReader(f),
		writer: bufio.NewWriter(f),
	}, nil
}

func (f *FileBacked) Read(buf []byte) (int, error) {
	return f.reader.Read(buf)
}

func (f *FileBacked) Write(buf []byte) (int, error) {
	return f.writer.Write(buf)
}

func (f *FileBacked) Flush() error {
	return f.writer.Flush()
}

// Seek flushes any buffered writes, repositions the underlying file,
// and resets the read buffer so both views agree on the new offset.
func (f *FileBacked) Seek(offset int64, whence int) (int64, error) {
	if err := f.writer.Flush(); err != nil {
		return 0, err
	}
	pos, err := f.file.Seek(offset, whence)
	if err != nil {
		return 0, err
	}
	f.reader.Reset(f.file)
	return pos, nil
}

// Close flushes pending writes and closes the file.
func (f *FileBacked) Close() error {
	if err := f.writer.Flush(); err != nil {
		f.file.Close()
		return err
	}
	return f.file.Close()
}

// Synced wraps a ReadWriteSeeker with a mutex so it can be shared
// across the sorter's concurrent workers, mirroring the original's
// SyncRW<RW>.
type Synced struct {
	mu sync.Mutex
	rw interface {
		io.ReadWriteSeeker
	}
}

// NewSynced wraps rw behind a mutex.
func NewSynced(rw io.ReadWriteSeeker) *Synced {
	return &Synced{rw: rw}
}

func (s *Synced) Read(buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rw.Read(buf)
}

func (s *Synced) Write(buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rw.Write(buf)
}

func (s *Synced) Seek(offset int64, whence int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rw.Seek(offset, whence)
}
