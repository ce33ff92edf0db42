package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Job 任务接口
type Job interface {
	ID() string
	Run(ctx context.Context) error
}

// JobResult 任务结果
type JobResult struct {
	JobID    string
	Error    error
	Duration time.Duration
}

// WorkerPool 固定大小的工作池
// 任务之间不共享可变状态，结果按完成顺序从 Results 通道取出
type WorkerPool struct {
	jobCh     chan Job
	resultsCh chan JobResult
	workers   int
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	stats     PoolStats
}

// PoolStats 工作池统计信息
type PoolStats struct {
	JobsSubmitted   int64 `json:"jobs_submitted"`
	JobsCompleted   int64 `json:"jobs_completed"`
	JobsFailed      int64 `json:"jobs_failed"`
	ActiveWorkers   int64 `json:"active_workers"`
	TotalExecTimeNs int64 `json:"total_exec_time_ns"`
}

// NewWorkerPool 创建工作池，workers 小于 1 时按 1 处理
func NewWorkerPool(ctx context.Context, workers int, queueSize int) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	ctx, cancel := context.WithCancel(ctx)

	return &WorkerPool{
		jobCh:     make(chan Job, queueSize),
		resultsCh: make(chan JobResult, queueSize),
		workers:   workers,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start 启动工作池
func (wp *WorkerPool) Start() {
	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker()
	}
}

// worker 工作协程：取任务直到任务通道关闭
func (wp *WorkerPool) worker() {
	defer wp.wg.Done()

	for job := range wp.jobCh {
		atomic.AddInt64(&wp.stats.ActiveWorkers, 1)
		start := time.Now()

		var err error
		if cerr := wp.ctx.Err(); cerr != nil {
			err = cerr
		} else {
			err = job.Run(wp.ctx)
		}
		elapsed := time.Since(start)

		atomic.AddInt64(&wp.stats.JobsCompleted, 1)
		atomic.AddInt64(&wp.stats.TotalExecTimeNs, int64(elapsed))
		if err != nil {
			atomic.AddInt64(&wp.stats.JobsFailed, 1)
		}
		atomic.AddInt64(&wp.stats.ActiveWorkers, -1)

		wp.resultsCh <- JobResult{JobID: job.ID(), Error: err, Duration: elapsed}
	}
}

// Submit 提交任务，队列满时阻塞直到有空位或上下文取消
func (wp *WorkerPool) Submit(job Job) error {
	select {
	case wp.jobCh <- job:
		atomic.AddInt64(&wp.stats.JobsSubmitted, 1)
		return nil
	case <-wp.ctx.Done():
		return wp.ctx.Err()
	}
}

// Results 获取结果通道，Close 之后在全部任务完成时关闭
func (wp *WorkerPool) Results() <-chan JobResult {
	return wp.resultsCh
}

// Close 不再接受任务；已提交的任务继续执行，完成后关闭结果通道
func (wp *WorkerPool) Close() {
	wp.closeOnce.Do(func() {
		close(wp.jobCh)
		go func() {
			wp.wg.Wait()
			close(wp.resultsCh)
			wp.cancel()
		}()
	})
}

// Stop 取消正在排队的任务并关闭工作池
func (wp *WorkerPool) Stop() {
	wp.cancel()
	wp.Close()
}

// Stats 获取统计信息快照
func (wp *WorkerPool) Stats() PoolStats {
	return PoolStats{
		JobsSubmitted:   atomic.LoadInt64(&wp.stats.JobsSubmitted),
		JobsCompleted:   atomic.LoadInt64(&wp.stats.JobsCompleted),
		JobsFailed:      atomic.LoadInt64(&wp.stats.JobsFailed),
		ActiveWorkers:   atomic.LoadInt64(&wp.stats.ActiveWorkers),
		TotalExecTimeNs: atomic.LoadInt64(&wp.stats.TotalExecTimeNs),
	}
}

// AvgExecTime 平均任务执行时间
func (s PoolStats) AvgExecTime() time.Duration {
	if s.JobsCompleted == 0 {
		return 0
	}
	return time.Duration(s.TotalExecTimeNs / s.JobsCompleted)
}

// FuncJob 以函数实现的任务
type FuncJob struct {
	IDValue string
	Fn      func(ctx context.Context) error
}

// ID 返回任务ID
func (j FuncJob) ID() string { return j.IDValue }

// Run 执行任务
func (j FuncJob) Run(ctx context.Context) error { return j.Fn(ctx) }
