// Command extsort sorts a numeric file in place using an external
// k-way merge, exercising internal/extsort and internal/extarr. The
// file format is a little-endian uint64 element count followed by
// that many little-endian uint16 values.
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"

	"github.com/hanwen-labs/simpleext4/internal/extarr"
	"github.com/hanwen-labs/simpleext4/internal/extsort"
)

const headerSize = 8

// offsetFile presents the region of f starting at base as if it began
// at position 0, so extarr.Array sees a plain element stream with the
// file's length header kept out of the way.
type offsetFile struct {
	f    *os.File
	base int64
}

func (o *offsetFile) Read(buf []byte) (int, error)  { return o.f.Read(buf) }
func (o *offsetFile) Write(buf []byte) (int, error) { return o.f.Write(buf) }
func (o *offsetFile) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		pos, err := o.f.Seek(o.base+offset, io.SeekStart)
		return pos - o.base, err
	default:
		pos, err := o.f.Seek(offset, whence)
		return pos - o.base, err
	}
}

func main() {
	log.SetFlags(0)

	reverse := flag.Bool("reverse", false, "sort descending instead of ascending")
	workers := flag.Int("workers", 1, "number of parallel sort workers (1 = serial)")
	bufElems := flag.Int("buf", 4096, "number of elements held in memory per chunk")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [-reverse] [-workers N] [-buf N] FILE\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
	path := flag.Arg(0)

	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		log.Fatalf("extsort: open %s: %v", path, err)
	}
	defer f.Close()

	var header [headerSize]byte
	if _, err := io.ReadFull(f, header[:]); err != nil {
		log.Fatalf("extsort: reading element count: %v", err)
	}
	count := binary.LittleEndian.Uint64(header[:])

	view := &offsetFile{f: f, base: headerSize}
	arr := extarr.New[uint16](view)

	buf := make([]uint16, *bufElems)
	if uint64(len(buf)) > count && count > 0 {
		buf = buf[:count]
	}

	tmpDir, err := os.MkdirTemp("", "extsort-*")
	if err != nil {
		log.Fatalf("extsort: creating scratch directory: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	newRun := func(chunkID int) (*extarr.Array[uint16], error) {
		path := filepath.Join(tmpDir, fmt.Sprintf("run-%d", chunkID))
		rw, err := extarr.NewFileBacked(path)
		if err != nil {
			return nil, err
		}
		return extarr.New[uint16](rw), nil
	}

	if *workers <= 1 {
		if err := extsort.Sort(arr, buf, newRun); err != nil {
			log.Fatalf("extsort: %v", err)
		}
	} else {
		if err := runParallel(path, view, buf, *workers, tmpDir); err != nil {
			log.Fatalf("extsort: %v", err)
		}
	}

	if *reverse {
		if err := reverseInPlace(view, count); err != nil {
			log.Fatalf("extsort: reversing: %v", err)
		}
	}

	fmt.Printf("sorted %d elements in %s\n", count, path)
}

// runParallel gives every worker an *extarr.Array view of the same
// extarr.Synced stream, per ParallelSort's contract: workers compete
// for sequential chunks of one shared, mutex-guarded cursor rather
// than each reading the whole file independently.
func runParallel(path string, writerView *offsetFile, buf []uint16, workers int, tmpDir string) error {
	if workers > runtime.NumCPU() {
		workers = runtime.NumCPU()
	}

	readF, err := os.Open(path)
	if err != nil {
		return err
	}
	defer readF.Close()
	readView := &offsetFile{f: readF, base: headerSize}
	if _, err := readView.Seek(0, io.SeekStart); err != nil {
		return err
	}
	synced := extarr.NewSynced(readView)

	readers := make([]*extarr.Array[uint16], workers)
	for i := range readers {
		readers[i] = extarr.New[uint16](synced)
	}

	writer := extarr.New[uint16](writerView)

	newRun := func(name string) (*extarr.Array[uint16], error) {
		rw, err := extarr.NewFileBacked(filepath.Join(tmpDir, name))
		if err != nil {
			return nil, err
		}
		return extarr.New[uint16](rw), nil
	}

	return extsort.ParallelSort(context.Background(), readers, writer, buf, workers, newRun)
}

func reverseInPlace(view *offsetFile, count uint64) error {
	if count < 2 {
		return nil
	}
	if _, err := view.Seek(0, io.SeekStart); err != nil {
		return err
	}
	elems, err := extarr.New[uint16](view).ReadToEnd()
	if err != nil {
		return err
	}
	for i, j := 0, len(elems)-1; i < j; i, j = i+1, j-1 {
		elems[i], elems[j] = elems[j], elems[i]
	}
	if _, err := view.Seek(0, io.SeekStart); err != nil {
		return err
	}
	return extarr.New[uint16](view).Write(elems)
}
