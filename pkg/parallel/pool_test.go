package parallel

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForEachChunk_CoversRange(t *testing.T) {
	const n = 10007
	covered := make([]int32, n)

	err := ForEachChunk(context.Background(), n, PoolConfig{MaxWorkers: 4, ChunkSize: 100},
		func(_ context.Context, start, end, _ int) error {
			for i := start; i < end; i++ {
				atomic.AddInt32(&covered[i], 1)
			}
			return nil
		})
	require.NoError(t, err)

	for i := 0; i < n; i++ {
		if covered[i] != 1 {
			t.Fatalf("index %d covered %d times", i, covered[i])
		}
	}
}

func TestForEachChunk_Empty(t *testing.T) {
	called := false
	err := ForEachChunk(context.Background(), 0, DefaultPoolConfig(),
		func(_ context.Context, _, _, _ int) error {
			called = true
			return nil
		})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestForEachChunk_ErrorStops(t *testing.T) {
	err := ForEachChunk(context.Background(), 1000, PoolConfig{MaxWorkers: 2, ChunkSize: 10},
		func(_ context.Context, start, _, _ int) error {
			if start == 50 {
				return fmt.Errorf("chunk failed")
			}
			return nil
		})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk failed")
}

func TestForEachChunk_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Int64
	err := ForEachChunk(ctx, 100000, PoolConfig{MaxWorkers: 2, ChunkSize: 10},
		func(_ context.Context, _, _, _ int) error {
			ran.Add(1)
			return nil
		})
	require.Error(t, err)
	// Cancellation is checked per chunk, so at most a handful run.
	assert.Less(t, ran.Load(), int64(10))
}

func TestForEachChunk_WorkerIDsDisjoint(t *testing.T) {
	const workers = 3
	const n = 999
	perWorker := make([][]int, workers)

	err := ForEachChunk(context.Background(), n, PoolConfig{MaxWorkers: workers, ChunkSize: 7},
		func(_ context.Context, start, end, worker int) error {
			require.Less(t, worker, workers)
			for i := start; i < end; i++ {
				perWorker[worker] = append(perWorker[worker], i)
			}
			return nil
		})
	require.NoError(t, err)

	total := 0
	for _, items := range perWorker {
		total += len(items)
	}
	assert.Equal(t, n, total)
}

func TestReduceChunks_DeterministicOrder(t *testing.T) {
	const n = 5000
	cfg := PoolConfig{MaxWorkers: 8, ChunkSize: 13}

	sum := func() float64 {
		got, err := ReduceChunks(context.Background(), n, cfg, 0.0,
			func(start, end int) float64 {
				s := 0.0
				for i := start; i < end; i++ {
					s += 1.0 / float64(i+1)
				}
				return s
			},
			func(acc, r float64) float64 { return acc + r })
		require.NoError(t, err)
		return got
	}

	first := sum()
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, sum(), "reduction must be bit-identical across runs")
	}
}

func TestReduceChunks_Empty(t *testing.T) {
	got, err := ReduceChunks(context.Background(), 0, DefaultPoolConfig(), 42,
		func(_, _ int) int { return 1 },
		func(acc, r int) int { return acc + r })
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestPoolConfig_Normalized(t *testing.T) {
	c := PoolConfig{}.normalized()
	assert.Greater(t, c.MaxWorkers, 0)
	assert.Equal(t, DefaultChunkSize, c.ChunkSize)

	c = PoolConfig{}.WithWorkers(3).WithChunkSize(17)
	assert.Equal(t, 3, c.MaxWorkers)
	assert.Equal(t, 17, c.ChunkSize)
}

func TestProgressTracker(t *testing.T) {
	pt := NewProgressTracker(100, nil, 0)
	pt.Increment()
	pt.Add(9)
	assert.Equal(t, int64(10), pt.Completed())
	pt.Stop()
	pt.Stop() // idempotent
}
