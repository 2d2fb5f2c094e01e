// Package extsort implements an external k-way merge sort over
// extarr.Array-backed streams: too large to fit in memory, it sorts
// bounded chunks into temporary runs and merges them through a
// min-heap.
package extsort

import (
	"container/heap"
	"sort"

	"github.com/hanwen-labs/simpleext4/internal/extarr"
)

// Number is the set of element types Sort can order directly with <.
type Number interface {
	~uint16 | ~uint32 | ~uint64 | ~int16 | ~int32 | ~int64 | ~float32 | ~float64
}

// RunFactory opens a fresh temporary run for the given chunk id.
type RunFactory[T extarr.Fixed] func(chunkID int) (*extarr.Array[T], error)

// Sort performs a serial external merge sort: arr is read in buf-sized
// chunks, each chunk is sorted in place and spilled to a temporary run
// via newRun, then every run is merged back into arr through a
// min-heap. buf must hold at least two elements; len(buf) bounds how
// much of arr is ever resident in memory at once.
func Sort[T Number](arr *extarr.Array[T], buf []T, newRun RunFactory[T]) error {
	runs, err := sortChunks(arr, buf, newRun)
	if err != nil {
		return err
	}
	if err := arr.Rewind(); err != nil {
		return err
	}
	return mergeChunks(arr, buf, runs)
}

func sortChunks[T Number](reader *extarr.Array[T], buf []T, newRun RunFactory[T]) ([]*extarr.Array[T], error) {
	var runs []*extarr.Array[T]
	chunkID := 0
	for {
		read, err := reader.Read(buf)
		if err != nil {
			return nil, err
		}
		if len(read) == 0 {
			break
		}

		sort.Slice(read, func(i, j int) bool { return read[i] < read[j] })

		run, err := newRun(chunkID)
		if err != nil {
			return nil, err
		}
		if err := run.Write(read); err != nil {
			return nil, err
		}
		if err := run.Flush(); err != nil {
			return nil, err
		}
		if err := run.Rewind(); err != nil {
			return nil, err
		}
		runs = append(runs, run)
		chunkID++
	}
	return runs, nil
}

// heapEntry is one run's current head element, tracked alongside the
// run it came from so the next element can be pulled once this one is
// emitted.
type heapEntry[T Number] struct {
	item   T
	source *extarr.Array[T]
}

type minHeap[T Number] []heapEntry[T]

func (h minHeap[T]) Len() int            { return len(h) }
func (h minHeap[T]) Less(i, j int) bool  { return h[i].item < h[j].item }
func (h minHeap[T]) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap[T]) Push(x interface{}) { *h = append(*h, x.(heapEntry[T])) }
func (h *minHeap[T]) Pop() interface{} {
	old := *h
	n := len(old)
	entry := old[n-1]
	*h = old[:n-1]
	return entry
}

func mergeChunks[T Number](writer *extarr.Array[T], buf []T, runs []*extarr.Array[T]) error {
	if len(buf) < 1 {
		panic("extsort: merge buffer must hold at least one element")
	}
	single := buf[:1]

	h := make(minHeap[T], 0, len(runs))
	for _, run := range runs {
		read, err := run.Read(single)
		if err != nil {
			return err
		}
		if len(read) == 0 {
			continue
		}
		h = append(h, heapEntry[T]{item: read[0], source: run})
	}
	heap.Init(&h)

	for h.Len() > 0 {
		entry := heap.Pop(&h).(heapEntry[T])
		if err := writer.Write([]T{entry.item}); err != nil {
			return err
		}
		read, err := entry.source.Read(single)
		if err != nil {
			return err
		}
		if len(read) != 0 {
			heap.Push(&h, heapEntry[T]{item: read[0], source: entry.source})
		}
	}
	return writer.Flush()
}
