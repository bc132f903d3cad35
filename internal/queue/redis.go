package queue

import (
	"context"
	"encoding/json"
	"time"

	"judgecore/internal/common/cache"
	appErr "judgecore/pkg/errors"
)

const defaultQueueKey = "judge:queue"

// RedisQueue is a FIFO over a redis list: LPush at the head, BRPop from the
// tail. The pop is atomic, so concurrent workers never receive the same job.
type RedisQueue struct {
	cache cache.Cache
	key   string
}

var _ Queue = (*RedisQueue)(nil)

// NewRedisQueue creates a queue on the given list key. An empty key selects
// the default.
func NewRedisQueue(cacheClient cache.Cache, key string) *RedisQueue {
	if key == "" {
		key = defaultQueueKey
	}
	return &RedisQueue{cache: cacheClient, key: key}
}

// Enqueue pushes a job onto the list as JSON.
func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	if job.SubmissionID == "" {
		return appErr.ValidationError("submissionID", "required")
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return appErr.Wrap(err, appErr.QueueTransportError).WithMessage("encode job")
	}
	if err := q.cache.LPush(ctx, q.key, string(payload)); err != nil {
		return appErr.Wrap(err, appErr.QueueTransportError).WithMessage("push job")
	}
	return nil
}

// Dequeue pops the oldest job. A non-positive timeout polls without
// blocking.
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (Job, bool, error) {
	var (
		payload string
		err     error
	)
	if timeout > 0 {
		payload, err = q.cache.BRPop(ctx, timeout, q.key)
	} else {
		payload, err = q.cache.RPop(ctx, q.key)
	}
	if err != nil {
		return Job{}, false, appErr.Wrap(err, appErr.QueueTransportError).WithMessage("pop job")
	}
	if payload == "" {
		return Job{}, false, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		return Job{}, false, appErr.Wrap(err, appErr.QueueTransportError).WithMessage("decode job")
	}
	return job, true, nil
}

// Depth returns the number of jobs waiting.
func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	depth, err := q.cache.LLen(ctx, q.key)
	if err != nil {
		return 0, appErr.Wrap(err, appErr.QueueTransportError).WithMessage("queue depth")
	}
	return depth, nil
}

// Ping verifies the transport is reachable.
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.cache.Ping(ctx)
}
