package extsort

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/hanwen-labs/simpleext4/internal/extarr"
	"golang.org/x/sync/errgroup"
)

// ParallelRunFactory opens a fresh temporary run identified by a
// worker-unique name, so concurrent workers never collide on a
// filename.
type ParallelRunFactory[T extarr.Fixed] func(name string) (*extarr.Array[T], error)

// ParallelSort shards buf across workers goroutines, each repeatedly
// reading and sorting a chunk through its own entry in readers and
// spilling it to a uniquely named temporary run, then merges every run
// serially into writer from its start. readers must hold one view per
// worker and be safe to read concurrently; callers typically wrap the
// backing stream in extarr.Synced and give each worker its own
// *extarr.Array pointed at the same Synced stream.
func ParallelSort[T Number](ctx context.Context, readers []*extarr.Array[T], writer *extarr.Array[T], buf []T, workers int, newRun ParallelRunFactory[T]) error {
	if workers < 1 {
		workers = 1
	}
	if len(readers) != workers {
		panic("extsort: ParallelSort needs one reader view per worker")
	}

	chunkSize := len(buf) / workers
	if chunkSize < 1 {
		chunkSize = len(buf)
		workers = 1
	}

	runLists := make([][]*extarr.Array[T], workers)

	g, _ := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			start := w * chunkSize
			end := start + chunkSize
			if w == workers-1 {
				end = len(buf)
			}
			chunk := buf[start:end]

			var runs []*extarr.Array[T]
			for {
				read, err := readers[w].Read(chunk)
				if err != nil {
					return err
				}
				if len(read) == 0 {
					break
				}

				sort.Slice(read, func(i, j int) bool { return read[i] < read[j] })

				run, err := newRun(uuid.NewString())
				if err != nil {
					return err
				}
				if err := run.Write(read); err != nil {
					return err
				}
				if err := run.Flush(); err != nil {
					return err
				}
				if err := run.Rewind(); err != nil {
					return err
				}
				runs = append(runs, run)
			}
			runLists[w] = runs
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	var allRuns []*extarr.Array[T]
	for _, runs := range runLists {
		allRuns = append(allRuns, runs...)
	}

	if err := writer.Rewind(); err != nil {
		return err
	}
	return mergeChunks(writer, buf, allRuns)
}
