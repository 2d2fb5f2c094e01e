package extsort

import (
	"context"
	"testing"

	"github.com/hanwen-labs/simpleext4/internal/extarr"
)

func TestParallelSortMergesWorkerRuns(t *testing.T) {
	input := []uint16{8, 1, 6, 3, 9, 2, 7, 4, 5, 0}

	source := &memRWS{}
	srcArr := extarr.New[uint16](source)
	if err := srcArr.Write(input); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := srcArr.Rewind(); err != nil {
		t.Fatalf("Rewind: %v", err)
	}

	synced := extarr.NewSynced(source)
	workers := 2
	readers := make([]*extarr.Array[uint16], workers)
	for i := range readers {
		readers[i] = extarr.New[uint16](synced)
	}

	dest := &memRWS{}
	writer := extarr.New[uint16](dest)

	var runs []*memRWS
	newRun := func(name string) (*extarr.Array[uint16], error) {
		r := &memRWS{}
		runs = append(runs, r)
		return extarr.New[uint16](r), nil
	}

	buf := make([]uint16, 4)
	if err := ParallelSort(context.Background(), readers, writer, buf, workers, newRun); err != nil {
		t.Fatalf("ParallelSort: %v", err)
	}

	if err := writer.Rewind(); err != nil {
		t.Fatalf("Rewind writer: %v", err)
	}
	got, err := writer.ReadToEnd()
	if err != nil {
		t.Fatalf("ReadToEnd: %v", err)
	}
	if !isSorted(got) {
		t.Fatalf("ParallelSort produced unsorted output: %v", got)
	}
	if len(got) != len(input) {
		t.Fatalf("ParallelSort lost elements: got %d, want %d", len(got), len(input))
	}
}
