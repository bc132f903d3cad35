// Package queue carries accepted submissions from intake to the worker pool.
package queue

import (
	"context"
	"time"

	"judgecore/internal/problem"
)

// Job is the unit of work handed to a judge worker. It is self-contained:
// the worker needs no further problem lookups to execute it.
type Job struct {
	SubmissionID     string             `json:"submission_id"`
	UserID           int64              `json:"user_id"`
	ProblemID        int64              `json:"problem_id"`
	Code             string             `json:"code"`
	Language         string             `json:"language"`
	Testcases        []problem.Testcase `json:"testcases"`
	TimeLimitMs      int64              `json:"time_limit_ms"`
	MemoryLimitBytes int64              `json:"memory_limit_bytes"`
	Attempt          int                `json:"attempt"`
	EnqueuedAt       time.Time          `json:"enqueued_at"`
}

// Queue is the transport between intake and the worker pool.
type Queue interface {
	// Enqueue pushes a job for eventual execution.
	Enqueue(ctx context.Context, job Job) error

	// Dequeue pops the oldest job, blocking up to timeout. ok is false when
	// the timeout elapses with nothing to do; that is polling, not an error.
	Dequeue(ctx context.Context, timeout time.Duration) (Job, bool, error)

	// Depth returns the number of jobs waiting.
	Depth(ctx context.Context) (int64, error)

	// Ping verifies the transport is reachable.
	Ping(ctx context.Context) error
}
