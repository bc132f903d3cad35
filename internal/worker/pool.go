// Package worker pulls jobs off the queue and judges them.
//
// A fixed pool of goroutines polls the queue; each job is claimed with a
// compare-and-set on the submission row, so a job popped twice is only
// executed once. The watchdog sweeps submissions a dead worker left
// RUNNING.
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"judgecore/internal/metrics"
	"judgecore/internal/queue"
	"judgecore/pkg/utils/logger"
)

const (
	defaultPoolWorkers     = 4
	defaultPollTimeout     = 5 * time.Second
	defaultDepthSampleTick = 10 * time.Second
	dequeueFailureBackoff  = time.Second
)

// Pool runs a fixed number of judge workers against a queue.
type Pool struct {
	queue       queue.Queue
	executor    *Executor
	workers     int
	pollTimeout time.Duration

	live   atomic.Int64
	wg     sync.WaitGroup
	cancel context.CancelFunc
	once   sync.Once
}

// NewPool sizes a pool. workers <= 0 and pollTimeout <= 0 fall back to
// defaults.
func NewPool(q queue.Queue, executor *Executor, workers int, pollTimeout time.Duration) *Pool {
	if workers <= 0 {
		workers = defaultPoolWorkers
	}
	if pollTimeout <= 0 {
		pollTimeout = defaultPollTimeout
	}
	return &Pool{
		queue:       q,
		executor:    executor,
		workers:     workers,
		pollTimeout: pollTimeout,
	}
}

// Start launches the workers and the queue depth sampler. It returns
// immediately; Stop waits for in-flight jobs to finish.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.workLoop(ctx, i)
	}
	p.wg.Add(1)
	go p.sampleDepth(ctx)
	logger.Info(ctx, "worker pool started", zap.Int("workers", p.workers))
}

// Stop cancels the workers and blocks until the current jobs complete.
func (p *Pool) Stop() {
	p.once.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
		p.wg.Wait()
	})
}

// Healthy reports whether at least one worker goroutine is alive.
func (p *Pool) Healthy() bool {
	return p.live.Load() > 0
}

func (p *Pool) workLoop(ctx context.Context, id int) {
	defer p.wg.Done()
	p.live.Add(1)
	defer p.live.Add(-1)

	for {
		if ctx.Err() != nil {
			return
		}
		job, ok, err := p.queue.Dequeue(ctx, p.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn(ctx, "dequeue failed",
				zap.Int("worker", id),
				zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(dequeueFailureBackoff):
			}
			continue
		}
		if !ok {
			continue
		}
		p.runOne(ctx, job)
	}
}

func (p *Pool) runOne(ctx context.Context, job queue.Job) {
	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "worker panic",
				zap.String("submission_id", job.SubmissionID),
				zap.Any("panic", r))
			p.executor.FailJob(ctx, job, "worker panicked during execution")
		}
	}()
	p.executor.Execute(ctx, job)
}

func (p *Pool) sampleDepth(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(defaultDepthSampleTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			depth, err := p.queue.Depth(ctx)
			if err != nil {
				continue
			}
			metrics.QueueDepth.Set(float64(depth))
		}
	}
}
