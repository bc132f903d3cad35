package worker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"judgecore/internal/judging"
	"judgecore/internal/language"
	"judgecore/internal/metrics"
	"judgecore/internal/queue"
	"judgecore/internal/sandbox"
	"judgecore/internal/submission"
	appErr "judgecore/pkg/errors"
	"judgecore/pkg/utils/logger"
)

const (
	defaultMaxRetries      = 2
	defaultRetryBackoff    = 500 * time.Millisecond
	defaultCompileLogLimit = 8 << 10
	defaultRunCPUs         = 1.0
	defaultRunPIDs         = 64
)

// ExecutorConfig tunes how a single job is driven.
type ExecutorConfig struct {
	// MaxRetries bounds in-place retries for infrastructure failures.
	// Judged outcomes are never retried.
	MaxRetries int
	// Backoff is the base delay between retries; attempt n waits n times it.
	Backoff time.Duration
	// CompileLogLimit caps the compiler output stored on COMPILE_ERROR.
	CompileLogLimit int
	// CPUs and PIDs are passed through to every run container.
	CPUs float64
	PIDs int64
}

func (c *ExecutorConfig) applyDefaults() {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.Backoff <= 0 {
		c.Backoff = defaultRetryBackoff
	}
	if c.CompileLogLimit <= 0 {
		c.CompileLogLimit = defaultCompileLogLimit
	}
	if c.CPUs <= 0 {
		c.CPUs = defaultRunCPUs
	}
	if c.PIDs <= 0 {
		c.PIDs = defaultRunPIDs
	}
}

// Executor drives one job from claim to terminal status.
type Executor struct {
	store    submission.Store
	registry *language.Registry
	engine   sandbox.Engine
	queue    queue.Queue
	workRoot string
	cfg      ExecutorConfig
}

// NewExecutor wires an executor. workRoot is where per-submission
// workspaces are created.
func NewExecutor(store submission.Store, registry *language.Registry, engine sandbox.Engine, q queue.Queue, workRoot string, cfg ExecutorConfig) *Executor {
	cfg.applyDefaults()
	return &Executor{
		store:    store,
		registry: registry,
		engine:   engine,
		queue:    q,
		workRoot: workRoot,
		cfg:      cfg,
	}
}

// Execute drives one job to a resolution. It never hands work back to the
// caller: every path ends in a terminal status, a requeue, or a logged
// skip. Judged outcomes are final; only infrastructure failures retry.
func (e *Executor) Execute(ctx context.Context, job queue.Job) {
	claimed, err := e.claim(ctx, job)
	if err != nil {
		// The pop already consumed the job, so losing it here would strand
		// the submission in QUEUED. Put it back for another worker.
		e.requeue(ctx, job, err)
		return
	}
	if !claimed {
		logger.Info(ctx, "claim lost, skipping job",
			zap.String("submission_id", job.SubmissionID))
		return
	}

	if len(job.Testcases) == 0 {
		e.failInternal(ctx, job.SubmissionID, "job carries no test data")
		return
	}
	spec, err := e.registry.Resolve(job.Language)
	if err != nil {
		e.failInternal(ctx, job.SubmissionID, fmt.Sprintf("language %q not in registry", job.Language))
		return
	}

	ws, err := e.prepareWorkspace(ctx, job, spec)
	if err != nil {
		e.failInternal(ctx, job.SubmissionID, "workspace setup failed")
		return
	}
	defer ws.Cleanup()

	if spec.CompileEnabled() {
		res, err := e.compile(ctx, job, spec, ws)
		if err != nil {
			metrics.SandboxFailures.Inc()
			e.failInternal(ctx, job.SubmissionID, "compile step failed to execute")
			return
		}
		metrics.ExecutionDuration.WithLabelValues(spec.ID, "compile").Observe(float64(res.TimeMs))
		if res.ExitCode != 0 || res.TimedOut {
			e.finalize(ctx, job.SubmissionID, submission.Outcome{
				Status:     submission.StatusCompileError,
				CompileLog: e.compileLog(res),
			})
			return
		}
	}

	limits := appliedLimits(job, spec, e.cfg.CPUs, e.cfg.PIDs)
	verdicts := make([]judging.TestcaseVerdict, 0, len(job.Testcases))
	for _, tc := range job.Testcases {
		res, err := e.run(ctx, job, spec, ws, tc.ID, tc.Input, limits)
		if err != nil {
			metrics.SandboxFailures.Inc()
			e.failInternal(ctx, job.SubmissionID, fmt.Sprintf("test %d failed to execute", tc.ID))
			return
		}
		metrics.ExecutionDuration.WithLabelValues(spec.ID, "run").Observe(float64(res.TimeMs))
		verdicts = append(verdicts, judging.Judge(judging.Case{
			ID:       strconv.Itoa(tc.ID),
			Expected: tc.ExpectedOutput,
			Points:   tc.Point,
			Public:   tc.IsPublic,
		}, res))
	}

	summary := judging.Aggregate(verdicts)
	e.finalize(ctx, job.SubmissionID, submission.Outcome{
		Status:     submission.StatusForVerdict(summary.Status),
		TotalScore: summary.TotalScore,
		Verdicts:   summary.Verdicts,
	})
}

// FailJob records a terminal INTERNAL_ERROR for a job the pool could not
// execute, such as after a worker panic.
func (e *Executor) FailJob(ctx context.Context, job queue.Job, reason string) {
	e.failInternal(ctx, job.SubmissionID, reason)
}

func (e *Executor) claim(ctx context.Context, job queue.Job) (bool, error) {
	var claimed bool
	err := e.retryInfra(ctx, "claim submission", job.SubmissionID, func() error {
		var err error
		claimed, err = e.store.Claim(ctx, job.SubmissionID)
		return err
	})
	return claimed, err
}

func (e *Executor) prepareWorkspace(ctx context.Context, job queue.Job, spec language.Spec) (*sandbox.Workspace, error) {
	var ws *sandbox.Workspace
	err := e.retryInfra(ctx, "prepare workspace", job.SubmissionID, func() error {
		var err error
		ws, err = sandbox.NewWorkspace(e.workRoot, job.SubmissionID)
		if err != nil {
			return err
		}
		if err := ws.WriteSource(spec.SourceFile, job.Code); err != nil {
			ws.Cleanup()
			return err
		}
		return nil
	})
	return ws, err
}

func (e *Executor) compile(ctx context.Context, job queue.Job, spec language.Spec, ws *sandbox.Workspace) (sandbox.ExecutionResult, error) {
	var res sandbox.ExecutionResult
	err := e.retryInfra(ctx, "compile", job.SubmissionID, func() error {
		var err error
		res, err = e.engine.Compile(ctx, sandbox.CompileRequest{
			SubmissionID: job.SubmissionID,
			Language:     spec,
			Workspace:    ws,
		})
		return err
	})
	return res, err
}

func (e *Executor) run(ctx context.Context, job queue.Job, spec language.Spec, ws *sandbox.Workspace, testID int, stdin string, limits sandbox.Limits) (sandbox.ExecutionResult, error) {
	var res sandbox.ExecutionResult
	err := e.retryInfra(ctx, "run test", job.SubmissionID, func() error {
		var err error
		res, err = e.engine.Run(ctx, sandbox.RunRequest{
			SubmissionID: job.SubmissionID,
			TestID:       strconv.Itoa(testID),
			Language:     spec,
			Workspace:    ws,
			Stdin:        stdin,
			Limits:       limits,
		})
		return err
	})
	return res, err
}

// retryInfra runs fn up to MaxRetries+1 times with linear backoff.
func (e *Executor) retryInfra(ctx context.Context, op, submissionID string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(e.cfg.Backoff * time.Duration(attempt)):
			}
		}
		if err = fn(); err == nil {
			return nil
		}
		logger.Warn(ctx, "operation failed",
			zap.String("op", op),
			zap.String("submission_id", submissionID),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	return err
}

func (e *Executor) finalize(ctx context.Context, submissionID string, outcome submission.Outcome) {
	var conflicted bool
	err := e.retryInfra(ctx, "finalize submission", submissionID, func() error {
		err := e.store.Finalize(ctx, submissionID, outcome)
		if isFinalizeConflict(err) {
			conflicted = true
			return nil
		}
		return err
	})
	switch {
	case err != nil:
		logger.Error(ctx, "finalize failed, watchdog will reap the submission",
			zap.String("submission_id", submissionID),
			zap.String("status", string(outcome.Status)),
			zap.Error(err))
	case conflicted:
		logger.Warn(ctx, "submission already finalized elsewhere",
			zap.String("submission_id", submissionID))
	default:
		metrics.SubmissionsTotal.WithLabelValues(string(outcome.Status)).Inc()
	}
}

func (e *Executor) failInternal(ctx context.Context, submissionID, reason string) {
	e.finalize(ctx, submissionID, submission.Outcome{
		Status: submission.StatusInternalError,
		Reason: reason,
	})
}

func (e *Executor) requeue(ctx context.Context, job queue.Job, cause error) {
	logger.Warn(ctx, "returning job to the queue",
		zap.String("submission_id", job.SubmissionID),
		zap.Error(cause))
	if err := e.queue.Enqueue(ctx, job); err != nil {
		logger.Error(ctx, "requeue failed, submission is stuck QUEUED",
			zap.String("submission_id", job.SubmissionID),
			zap.Error(err))
	}
}

func (e *Executor) compileLog(res sandbox.ExecutionResult) string {
	log := res.Stderr
	if log == "" {
		log = res.Stdout
	}
	if log == "" && res.TimedOut {
		log = "compilation timed out"
	}
	return capLog(log, e.cfg.CompileLogLimit)
}

func isFinalizeConflict(err error) bool {
	if err == nil {
		return false
	}
	return appErr.Is(err, appErr.SubmissionFinal) ||
		appErr.Is(err, appErr.ClaimConflict) ||
		appErr.Is(err, appErr.SubmissionNotFound)
}

// appliedLimits scales the job limits by the language multipliers and
// converts to the units the sandbox expects.
func appliedLimits(job queue.Job, spec language.Spec, cpus float64, pids int64) sandbox.Limits {
	timeMs := job.TimeLimitMs
	if spec.TimeMultiplier > 0 {
		timeMs = int64(float64(timeMs) * spec.TimeMultiplier)
	}
	memBytes := job.MemoryLimitBytes
	if spec.MemoryMultiplier > 0 {
		memBytes = int64(float64(memBytes) * spec.MemoryMultiplier)
	}
	memMB := memBytes >> 20
	if memMB < 4 {
		memMB = 4
	}
	return sandbox.Limits{
		TimeLimitMs:   timeMs,
		MemoryLimitMB: memMB,
		CPUs:          cpus,
		PIDs:          pids,
	}
}

func capLog(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	return s[:limit] + "\n... truncated"
}
