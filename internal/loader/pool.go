package loader

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/lewtec/labelflow/internal/backup"
	"github.com/lewtec/labelflow/internal/hash"
)

// Result is the outcome of hashing one file.
type Result struct {
	// Index is the file's position in the scanned list.
	Index  int
	Name   string
	Size   int64
	Hash   string
	Backup string // base64 payload, empty when gated or disabled
	Err    error
}

// Batch carries the results of one planned batch. A batch surfaces only
// once every file in it finished, and its results keep scan order.
type Batch struct {
	Start   int
	Results []Result
}

// Loader runs the hash and backup pipeline.
type Loader struct {
	// Jobs is the worker count. Zero means one per CPU.
	Jobs uint

	// Encode embeds base64 payloads for files whose size passes the gate.
	Encode bool

	// Limit is the backup size gate in bytes.
	Limit int64

	// Progress, when set, runs after each file with the count of files
	// finished so far. Calls are serialized.
	Progress func(done, total int, name string)

	Logger *slog.Logger

	progressMu sync.Mutex
}

// Run streams completed batches until the files are exhausted or ctx is
// cancelled. The channel closes either way; after a cancellation no
// further batch is delivered, complete or not.
func (l *Loader) Run(ctx context.Context, files []File) <-chan Batch {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	out := make(chan Batch)
	go func() {
		defer close(out)
		plan := PlanBatches(files)
		if plan.Total == 0 {
			return
		}
		logger.Debug("load planned", "files", plan.Total, "batch", plan.BatchSize, "eager", plan.Eager)

		g := newGauge(MemoryCeiling)
		stop := g.watch(ctx)
		defer stop()

		var done int64
		for start := 0; start < len(files); start += plan.BatchSize {
			end := start + plan.BatchSize
			if end > len(files) {
				end = len(files)
			}
			batch := l.runBatch(ctx, g, files[start:end], start, &done, len(files))
			if ctx.Err() != nil {
				logger.Debug("load cancelled", "finished", atomic.LoadInt64(&done))
				return
			}
			select {
			case out <- batch:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (l *Loader) runBatch(ctx context.Context, g *gauge, files []File, offset int, done *int64, total int) Batch {
	jobs := int(l.Jobs)
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	if jobs > len(files) {
		jobs = len(files)
	}

	indexes := make(chan int, len(files))
	results := make([]Result, len(files))

	var wg sync.WaitGroup
	worker := func() {
		defer wg.Done()
		for i := range indexes {
			if ctx.Err() != nil {
				continue
			}
			results[i] = l.loadOne(ctx, g, files[i], offset+i)
			n := atomic.AddInt64(done, 1)
			if l.Progress != nil && ctx.Err() == nil {
				l.progressMu.Lock()
				l.Progress(int(n), total, files[i].Name)
				l.progressMu.Unlock()
			}
		}
	}
	for w := 0; w < jobs; w++ {
		wg.Add(1)
		go worker()
	}
	for i := range files {
		indexes <- i
	}
	close(indexes)
	wg.Wait()

	return Batch{Start: offset, Results: results}
}

// loadOne hashes a single file. Files that get a backup are read whole
// under the memory gauge; everything else streams through the hasher in
// constant memory.
func (l *Loader) loadOne(ctx context.Context, g *gauge, f File, index int) Result {
	res := Result{Index: index, Name: f.Name, Size: f.Size}

	if l.Encode && backup.WithinLimit(f.Size, l.Limit) {
		footprint := f.Size + backup.EncodedLen(f.Size)
		if err := g.acquire(ctx, footprint); err != nil {
			res.Err = err
			return res
		}
		defer g.release(footprint)

		data, err := os.ReadFile(f.Path)
		if err != nil {
			res.Err = err
			return res
		}
		res.Hash = hash.Sum(data)
		res.Backup = backup.Encode(data)
		return res
	}

	sum, err := hash.File(f.Path)
	if err != nil {
		res.Err = err
		return res
	}
	res.Hash = sum
	return res
}
