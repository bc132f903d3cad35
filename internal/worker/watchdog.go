package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"judgecore/internal/common/cache"
	"judgecore/internal/metrics"
	"judgecore/internal/problem"
	"judgecore/internal/queue"
	"judgecore/internal/submission"
	appErr "judgecore/pkg/errors"
	"judgecore/pkg/utils/logger"
)

const (
	watchdogLockKey         = "judge:watchdog:lock"
	defaultWatchdogInterval = 30 * time.Second
	defaultWatchdogOverhead = 2 * time.Minute
	defaultMaxAttempts      = 3
	defaultReapBatch        = 50
)

// WatchdogConfig tunes the stale submission sweeper.
type WatchdogConfig struct {
	// Interval between sweeps. Also the TTL of the instance lock, so a
	// crashed holder frees it within one period.
	Interval time.Duration
	// Overhead is granted on top of the summed per-case time limits
	// before a RUNNING submission counts as abandoned.
	Overhead time.Duration
	// MaxAttempts bounds how often a submission is put back on the queue
	// before it is failed for good.
	MaxAttempts int
	// BatchLimit caps the rows examined per sweep.
	BatchLimit int
}

func (c *WatchdogConfig) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = defaultWatchdogInterval
	}
	if c.Overhead <= 0 {
		c.Overhead = defaultWatchdogOverhead
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.BatchLimit <= 0 {
		c.BatchLimit = defaultReapBatch
	}
}

// Watchdog requeues or fails submissions a dead worker left RUNNING.
// Only one instance sweeps at a time, guarded by a redis lock.
type Watchdog struct {
	store    submission.Store
	problems problem.Store
	queue    queue.Queue
	cache    cache.Cache
	cfg      WatchdogConfig

	wg     sync.WaitGroup
	cancel context.CancelFunc
	once   sync.Once
}

func NewWatchdog(store submission.Store, problems problem.Store, q queue.Queue, c cache.Cache, cfg WatchdogConfig) *Watchdog {
	cfg.applyDefaults()
	return &Watchdog{
		store:    store,
		problems: problems,
		queue:    q,
		cache:    c,
		cfg:      cfg,
	}
}

// Start sweeps periodically until the context is canceled or Stop is
// called.
func (w *Watchdog) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				requeued, failed, err := w.Sweep(ctx)
				if err != nil {
					logger.Warn(ctx, "watchdog sweep failed", zap.Error(err))
					continue
				}
				if requeued+failed > 0 {
					logger.Info(ctx, "watchdog reaped stale submissions",
						zap.Int("requeued", requeued),
						zap.Int("failed", failed))
				}
			}
		}
	}()
}

func (w *Watchdog) Stop() {
	w.once.Do(func() {
		if w.cancel != nil {
			w.cancel()
		}
		w.wg.Wait()
	})
}

// Sweep examines RUNNING submissions older than the minimum deadline and
// reaps those past their full budget. It returns how many were requeued
// and how many were failed.
func (w *Watchdog) Sweep(ctx context.Context) (requeued, failed int, err error) {
	locked, err := w.cache.TryLock(ctx, watchdogLockKey, w.cfg.Interval)
	if err != nil {
		return 0, 0, appErr.Wrap(err, appErr.CacheError)
	}
	if !locked {
		return 0, 0, nil
	}
	defer w.cache.Unlock(ctx, watchdogLockKey)

	now := time.Now()
	// Overhead alone is the smallest possible budget, so anything newer
	// cannot be stale regardless of its test count.
	stale, err := w.store.StaleRunning(ctx, now.Add(-w.cfg.Overhead), w.cfg.BatchLimit)
	if err != nil {
		return 0, 0, err
	}

	for _, sub := range stale {
		tcs, tcErr := w.problems.GetTestcases(ctx, sub.ProblemID)
		if tcErr != nil {
			if appErr.Is(tcErr, appErr.TestcaseNotFound) || appErr.Is(tcErr, appErr.ProblemNotFound) {
				// The problem is gone; the submission can never be judged.
				w.fail(ctx, sub, "problem test data no longer available")
				failed++
				continue
			}
			logger.Warn(ctx, "watchdog could not load test data",
				zap.String("submission_id", sub.SubmissionID),
				zap.Int64("problem_id", sub.ProblemID),
				zap.Error(tcErr))
			continue
		}

		budget := time.Duration(sub.TimeLimitMs)*time.Millisecond*time.Duration(len(tcs)) + w.cfg.Overhead
		if now.Sub(sub.UpdatedAt) <= budget {
			continue
		}

		if sub.Attempts < w.cfg.MaxAttempts {
			if w.requeue(ctx, sub, tcs, now) {
				requeued++
			}
		} else {
			w.fail(ctx, sub, fmt.Sprintf("no result after %d attempts", sub.Attempts))
			failed++
		}
	}
	return requeued, failed, nil
}

// requeue puts the job back before flipping the status. If the transition
// then fails the queued job is harmless: its claim will find the row not
// QUEUED and drop it, and the still-RUNNING row is retried next sweep.
func (w *Watchdog) requeue(ctx context.Context, sub *submission.Submission, tcs []problem.Testcase, now time.Time) bool {
	job := queue.Job{
		SubmissionID:     sub.SubmissionID,
		UserID:           sub.UserID,
		ProblemID:        sub.ProblemID,
		Code:             sub.SourceCode,
		Language:         sub.LanguageID,
		Testcases:        tcs,
		TimeLimitMs:      sub.TimeLimitMs,
		MemoryLimitBytes: sub.MemoryLimitBytes,
		Attempt:          sub.Attempts,
		EnqueuedAt:       now,
	}
	if err := w.queue.Enqueue(ctx, job); err != nil {
		logger.Warn(ctx, "watchdog requeue failed",
			zap.String("submission_id", sub.SubmissionID),
			zap.Error(err))
		return false
	}
	if err := w.store.Transition(ctx, sub.SubmissionID, submission.StatusRunning, submission.StatusQueued, ""); err != nil {
		logger.Warn(ctx, "watchdog could not return submission to QUEUED",
			zap.String("submission_id", sub.SubmissionID),
			zap.Error(err))
		return false
	}
	metrics.WatchdogReaped.WithLabelValues("requeued").Inc()
	logger.Info(ctx, "stale submission requeued",
		zap.String("submission_id", sub.SubmissionID),
		zap.Int("attempts", sub.Attempts))
	return true
}

func (w *Watchdog) fail(ctx context.Context, sub *submission.Submission, reason string) {
	err := w.store.Finalize(ctx, sub.SubmissionID, submission.Outcome{
		Status: submission.StatusInternalError,
		Reason: reason,
	})
	if err != nil && !isFinalizeConflict(err) {
		logger.Warn(ctx, "watchdog could not fail submission",
			zap.String("submission_id", sub.SubmissionID),
			zap.Error(err))
		return
	}
	metrics.WatchdogReaped.WithLabelValues("failed").Inc()
	logger.Info(ctx, "stale submission failed",
		zap.String("submission_id", sub.SubmissionID),
		zap.String("reason", reason))
}
