package extsort

import (
	"bytes"
	"io"
	"testing"

	"github.com/hanwen-labs/simpleext4/internal/extarr"
)

type memRWS struct {
	buf bytes.Buffer
	pos int
}

func (m *memRWS) Read(p []byte) (int, error) {
	data := m.buf.Bytes()
	if m.pos >= len(data) {
		return 0, io.EOF
	}
	n := copy(p, data[m.pos:])
	m.pos += n
	return n, nil
}

func (m *memRWS) Write(p []byte) (int, error) {
	data := m.buf.Bytes()
	if m.pos < len(data) {
		n := copy(data[m.pos:], p)
		m.pos += n
		if n < len(p) {
			m.buf.Write(p[n:])
			m.pos += len(p) - n
		}
		return len(p), nil
	}
	n, err := m.buf.Write(p)
	m.pos += n
	return n, err
}

func (m *memRWS) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		m.pos = int(offset)
	case io.SeekCurrent:
		m.pos += int(offset)
	case io.SeekEnd:
		m.pos = m.buf.Len() + int(offset)
	}
	return int64(m.pos), nil
}

func (m *memRWS) Flush() error { return nil }

func sortUint16s(t *testing.T, input []uint16, bufSize int) []uint16 {
	t.Helper()

	source := &memRWS{}
	arr := extarr.New[uint16](source)
	if err := arr.Write(input); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := arr.Rewind(); err != nil {
		t.Fatalf("Rewind: %v", err)
	}

	var runs []*memRWS
	newRun := func(chunkID int) (*extarr.Array[uint16], error) {
		r := &memRWS{}
		runs = append(runs, r)
		return extarr.New[uint16](r), nil
	}

	buf := make([]uint16, bufSize)
	if err := Sort(arr, buf, newRun); err != nil {
		t.Fatalf("Sort: %v", err)
	}

	if err := arr.Rewind(); err != nil {
		t.Fatalf("Rewind after sort: %v", err)
	}
	got, err := arr.ReadToEnd()
	if err != nil {
		t.Fatalf("ReadToEnd: %v", err)
	}
	return got
}

func isSorted(xs []uint16) bool {
	for i := 1; i < len(xs); i++ {
		if xs[i-1] > xs[i] {
			return false
		}
	}
	return true
}

func TestSortMinimumBuffer(t *testing.T) {
	input := []uint16{9, 1, 8, 2, 7, 3, 6, 4, 5}
	got := sortUint16s(t, input, 2)
	if !isSorted(got) {
		t.Fatalf("Sort with minimum buffer produced unsorted output: %v", got)
	}
	if len(got) != len(input) {
		t.Fatalf("Sort lost elements: got %d, want %d", len(got), len(input))
	}
}

func TestSortLargerBuffer(t *testing.T) {
	input := []uint16{40, 10, 30, 20, 60, 50}
	got := sortUint16s(t, input, 4)
	want := []uint16{10, 20, 30, 40, 50, 60}
	if !isSorted(got) || len(got) != len(want) {
		t.Fatalf("Sort = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Sort = %v, want %v", got, want)
		}
	}
}

func TestSortEmptyInput(t *testing.T) {
	got := sortUint16s(t, nil, 4)
	if len(got) != 0 {
		t.Fatalf("Sort of empty input produced %d elements", len(got))
	}
}

func TestSortSingleElement(t *testing.T) {
	got := sortUint16s(t, []uint16{42}, 4)
	if len(got) != 1 || got[0] != 42 {
		t.Fatalf("Sort of single element = %v, want [42]", got)
	}
}
