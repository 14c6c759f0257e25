// Package parallel provides deterministic data-parallel execution primitives.
//
// Work is split into fixed-size chunks that are assigned to workers statically
// (worker w owns chunks w, w+W, w+2W, ...). Together with per-chunk result
// slots this keeps parallel passes reproducible for a given worker count and
// chunk size, which the simulation engine relies on.
package parallel

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultChunkSize is the default number of items per chunk.
const DefaultChunkSize = 4096

// PoolConfig configures chunked parallel execution.
type PoolConfig struct {
	// MaxWorkers is the number of concurrent workers.
	// Default: runtime.NumCPU()
	MaxWorkers int

	// ChunkSize is the number of items each chunk covers.
	// Default: DefaultChunkSize
	ChunkSize int
}

// DefaultPoolConfig returns a default pool configuration.
func DefaultPoolConfig() PoolConfig {
	workers := runtime.NumCPU()
	if workers < 1 {
		workers = 1
	}
	return PoolConfig{
		MaxWorkers: workers,
		ChunkSize:  DefaultChunkSize,
	}
}

// WithWorkers returns a new config with the specified number of workers.
func (c PoolConfig) WithWorkers(n int) PoolConfig {
	c.MaxWorkers = n
	return c
}

// WithChunkSize returns a new config with the specified chunk size.
func (c PoolConfig) WithChunkSize(n int) PoolConfig {
	c.ChunkSize = n
	return c
}

func (c PoolConfig) normalized() PoolConfig {
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = DefaultPoolConfig().MaxWorkers
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	return c
}

// numChunks returns the number of chunks covering n items.
func numChunks(n, chunkSize int) int {
	return (n + chunkSize - 1) / chunkSize
}

// ForEachChunk runs fn over the index range [0, n) in parallel chunks.
// Each invocation covers [start, end); worker identifies the goroutine that
// owns the chunk, so fn may write to worker-local scratch without locking.
// The first error cancels the remaining chunks.
func ForEachChunk(ctx context.Context, n int, config PoolConfig, fn func(ctx context.Context, start, end, worker int) error) error {
	if n <= 0 {
		return nil
	}
	config = config.normalized()

	chunks := numChunks(n, config.ChunkSize)
	workers := config.MaxWorkers
	if workers > chunks {
		workers = chunks
	}

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		worker := w
		g.Go(func() error {
			for c := worker; c < chunks; c += workers {
				if err := ctx.Err(); err != nil {
					return err
				}
				start := c * config.ChunkSize
				end := start + config.ChunkSize
				if end > n {
					end = n
				}
				if err := fn(ctx, start, end, worker); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// ReduceChunks maps the index range [0, n) chunk-by-chunk in parallel and
// folds the per-chunk results sequentially in chunk order. The fold order is
// fixed, so floating-point reductions stay reproducible.
func ReduceChunks[R any](ctx context.Context, n int, config PoolConfig, zero R, mapper func(start, end int) R, merge func(acc, r R) R) (R, error) {
	if n <= 0 {
		return zero, nil
	}
	config = config.normalized()

	chunks := numChunks(n, config.ChunkSize)
	results := make([]R, chunks)

	err := ForEachChunk(ctx, n, config, func(_ context.Context, start, end, _ int) error {
		results[start/config.ChunkSize] = mapper(start, end)
		return nil
	})
	if err != nil {
		return zero, err
	}

	acc := zero
	for _, r := range results {
		acc = merge(acc, r)
	}
	return acc, nil
}

// ProgressTracker tracks progress of long parallel operations.
type ProgressTracker struct {
	total     int64
	completed atomic.Int64
	callback  func(completed, total int64)
	interval  time.Duration
	stopCh    chan struct{}
	stopped   atomic.Bool
}

// NewProgressTracker creates a new progress tracker.
func NewProgressTracker(total int64, callback func(completed, total int64), interval time.Duration) *ProgressTracker {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &ProgressTracker{
		total:    total,
		callback: callback,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins progress tracking in a background goroutine.
func (pt *ProgressTracker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(pt.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-pt.stopCh:
				return
			case <-ticker.C:
				if pt.callback != nil {
					pt.callback(pt.completed.Load(), pt.total)
				}
			}
		}
	}()
}

// Increment increments the completed count.
func (pt *ProgressTracker) Increment() {
	pt.completed.Add(1)
}

// Add adds n to the completed count.
func (pt *ProgressTracker) Add(n int64) {
	pt.completed.Add(n)
}

// Stop stops progress tracking.
func (pt *ProgressTracker) Stop() {
	if pt.stopped.CompareAndSwap(false, true) {
		close(pt.stopCh)
	}
}

// Completed returns the current completed count.
func (pt *ProgressTracker) Completed() int64 {
	return pt.completed.Load()
}
