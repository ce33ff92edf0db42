package core

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPoolRunsAllJobs(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 3, 4)
	pool.Start()

	var ran int64
	done := make(chan map[string]error)
	go func() {
		results := make(map[string]error)
		for r := range pool.Results() {
			results[r.JobID] = r.Error
		}
		done <- results
	}()

	for i := 0; i < 20; i++ {
		i := i
		require.NoError(t, pool.Submit(FuncJob{
			IDValue: fmt.Sprintf("job-%d", i),
			Fn: func(ctx context.Context) error {
				atomic.AddInt64(&ran, 1)
				if i%5 == 0 {
					return errors.New("odd one out")
				}
				return nil
			},
		}))
	}
	pool.Close()
	results := <-done

	assert.Len(t, results, 20)
	assert.Equal(t, int64(20), atomic.LoadInt64(&ran))
	assert.Error(t, results["job-5"])
	assert.NoError(t, results["job-6"])

	stats := pool.Stats()
	assert.Equal(t, int64(20), stats.JobsSubmitted)
	assert.Equal(t, int64(20), stats.JobsCompleted)
	assert.Equal(t, int64(4), stats.JobsFailed)
	assert.Equal(t, int64(0), stats.ActiveWorkers)
}

func TestWorkerPoolCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	// 未启动且无缓冲，只有取消分支可选
	pool := NewWorkerPool(ctx, 0, 0)
	cancel()

	err := pool.Submit(FuncJob{IDValue: "late", Fn: func(context.Context) error { return nil }})
	assert.ErrorIs(t, err, context.Canceled)
	pool.Close()
	for range pool.Results() {
	}
}

func TestPoolStatsAvgExecTime(t *testing.T) {
	assert.Zero(t, PoolStats{}.AvgExecTime())
	assert.Equal(t, int64(50), int64(PoolStats{JobsCompleted: 2, TotalExecTimeNs: 100}.AvgExecTime()))
}
