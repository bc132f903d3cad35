// Package intake admits submissions into the judge pipeline: validation,
// rate limiting, pre-screening, archiving and handoff to the queue.
package intake

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"judgecore/internal/archive"
	"judgecore/internal/common/cache"
	"judgecore/internal/language"
	"judgecore/internal/prescreen"
	"judgecore/internal/problem"
	"judgecore/internal/queue"
	"judgecore/internal/ratelimit"
	"judgecore/internal/submission"
	appErr "judgecore/pkg/errors"
	"judgecore/pkg/utils/logger"
)

const (
	defaultMaxCodeBytes   = 64 << 10
	defaultMinTimeLimitMs = 100
	defaultMaxTimeLimitMs = 10_000
	defaultMinMemoryBytes = 16 << 20
	defaultMaxMemoryBytes = 1 << 30
	defaultDupGuardTTL    = 10 * time.Second

	dedupKeyPrefix = "submit:dedup:"
)

// Archiver stores submission sources for later retrieval.
type Archiver interface {
	Put(ctx context.Context, submissionID, source string) (string, error)
	Get(ctx context.Context, submissionID, expectedHash string) (string, error)
}

var _ Archiver = (*archive.Store)(nil)

// WorkerHealth reports whether the judging backend has live workers.
type WorkerHealth interface {
	Healthy() bool
}

// Config bounds what intake accepts. Problem limits outside the configured
// range are clamped, not rejected.
type Config struct {
	MaxCodeBytes   int
	MinTimeLimitMs int64
	MaxTimeLimitMs int64
	MinMemoryBytes int64
	MaxMemoryBytes int64
	// DupGuardTTL is how long an identical (user, problem, source) submit
	// is treated as a duplicate.
	DupGuardTTL time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxCodeBytes <= 0 {
		c.MaxCodeBytes = defaultMaxCodeBytes
	}
	if c.MinTimeLimitMs <= 0 {
		c.MinTimeLimitMs = defaultMinTimeLimitMs
	}
	if c.MaxTimeLimitMs <= 0 {
		c.MaxTimeLimitMs = defaultMaxTimeLimitMs
	}
	if c.MinMemoryBytes <= 0 {
		c.MinMemoryBytes = defaultMinMemoryBytes
	}
	if c.MaxMemoryBytes <= 0 {
		c.MaxMemoryBytes = defaultMaxMemoryBytes
	}
	if c.DupGuardTTL <= 0 {
		c.DupGuardTTL = defaultDupGuardTTL
	}
}

// Deps wires the intake service. Store, Problems, Queue and Registry are
// required; the rest degrade gracefully when absent.
type Deps struct {
	Store    submission.Store
	Problems problem.Store
	Queue    queue.Queue
	Registry *language.Registry
	Scanner  *prescreen.Scanner
	Archive  Archiver
	Window   *ratelimit.Window
	Cache    cache.Cache
	Workers  WorkerHealth
}

// Service accepts, screens and queues submissions.
type Service struct {
	store    submission.Store
	problems problem.Store
	queue    queue.Queue
	registry *language.Registry
	scanner  *prescreen.Scanner
	archive  Archiver
	window   *ratelimit.Window
	cache    cache.Cache
	workers  WorkerHealth
	cfg      Config
}

func NewService(deps Deps, cfg Config) (*Service, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("submission store is required")
	}
	if deps.Problems == nil {
		return nil, fmt.Errorf("problem store is required")
	}
	if deps.Queue == nil {
		return nil, fmt.Errorf("queue is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("language registry is required")
	}
	cfg.applyDefaults()
	return &Service{
		store:    deps.Store,
		problems: deps.Problems,
		queue:    deps.Queue,
		registry: deps.Registry,
		scanner:  deps.Scanner,
		archive:  deps.Archive,
		window:   deps.Window,
		cache:    deps.Cache,
		workers:  deps.Workers,
		cfg:      cfg,
	}, nil
}

// SubmitRequest is one submission attempt.
type SubmitRequest struct {
	UserID     int64  `json:"user_id"`
	ProblemID  int64  `json:"problem_id"`
	LanguageID string `json:"language_id"`
	Code       string `json:"code"`
}

// SubmitResult reports the accepted submission. A pre-screen rejection is
// not an error: the terminal REJECTED status and its reason come back
// in-band.
type SubmitResult struct {
	SubmissionID string            `json:"submission_id"`
	Status       submission.Status `json:"status"`
	Reason       string            `json:"reason,omitempty"`
}

// QueueStatus is the operator view of the judging backend.
type QueueStatus struct {
	Depth   int64 `json:"depth"`
	Healthy bool  `json:"healthy"`
}

// Submit validates, rate-limits and pre-screens a submission, then records
// it and hands it to the queue.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if err := s.validate(&req); err != nil {
		return nil, err
	}

	if s.window != nil {
		allowed, err := s.window.Allow(ctx, strconv.FormatInt(req.UserID, 10))
		if err != nil {
			logger.Warn(ctx, "submit window check failed", zap.Error(err))
		}
		if !allowed {
			return nil, appErr.Newf(appErr.SubmitTooFrequently, "user %d exceeded the submit window", req.UserID)
		}
	}

	hash := sourceHash(req.Code)
	if s.cache != nil {
		fresh, err := s.cache.SetNX(ctx, dedupKey(req.UserID, req.ProblemID, hash), "1", s.cfg.DupGuardTTL)
		if err != nil {
			logger.Warn(ctx, "duplicate guard unavailable", zap.Error(err))
		} else if !fresh {
			return nil, appErr.New(appErr.SubmitTooFrequently).WithMessage("identical submission already in flight")
		}
	}

	prob, err := s.problems.GetProblem(ctx, req.ProblemID)
	if err != nil {
		return nil, err
	}
	tcs, err := s.problems.GetTestcases(ctx, req.ProblemID)
	if err != nil {
		return nil, err
	}

	timeMs := clampInt64(prob.TimeLimitMs, s.cfg.MinTimeLimitMs, s.cfg.MaxTimeLimitMs)
	memBytes := clampInt64(prob.MemoryLimitBytes, s.cfg.MinMemoryBytes, s.cfg.MaxMemoryBytes)

	sub := &submission.Submission{
		SubmissionID:     uuid.NewString(),
		ProblemID:        req.ProblemID,
		UserID:           req.UserID,
		LanguageID:       req.LanguageID,
		SourceCode:       req.Code,
		SourceHash:       hash,
		TimeLimitMs:      timeMs,
		MemoryLimitBytes: memBytes,
	}
	if s.archive != nil {
		sub.SourceKey = archive.ObjectKey(sub.SubmissionID)
	}
	if err := s.store.Create(ctx, sub); err != nil {
		return nil, err
	}

	if s.scanner != nil {
		if matches := s.scanner.Scan(req.LanguageID, req.Code); len(matches) > 0 {
			reasons := make([]string, len(matches))
			rules := make([]string, len(matches))
			for i, match := range matches {
				reasons[i] = fmt.Sprintf("%s: %s", match.RuleName, match.Reason)
				rules[i] = match.RuleName
			}
			reason := strings.Join(reasons, "; ")
			if err := s.store.Transition(ctx, sub.SubmissionID, submission.StatusPending, submission.StatusRejected, reason); err != nil {
				return nil, err
			}
			logger.Info(ctx, "submission rejected by pre-screen",
				zap.String("submission_id", sub.SubmissionID),
				zap.Strings("rules", rules))
			return &SubmitResult{
				SubmissionID: sub.SubmissionID,
				Status:       submission.StatusRejected,
				Reason:       reason,
			}, nil
		}
	}

	if s.archive != nil {
		if _, err := s.archive.Put(ctx, sub.SubmissionID, req.Code); err != nil {
			// Judging never depends on the archive.
			logger.Warn(ctx, "source archive failed",
				zap.String("submission_id", sub.SubmissionID),
				zap.Error(err))
		}
	}

	job := queue.Job{
		SubmissionID:     sub.SubmissionID,
		UserID:           req.UserID,
		ProblemID:        req.ProblemID,
		Code:             req.Code,
		Language:         req.LanguageID,
		Testcases:        tcs,
		TimeLimitMs:      timeMs,
		MemoryLimitBytes: memBytes,
		EnqueuedAt:       time.Now(),
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		if terr := s.store.Transition(ctx, sub.SubmissionID, submission.StatusPending, submission.StatusInternalError, "queue transport unavailable"); terr != nil {
			logger.Error(ctx, "could not fail unqueued submission",
				zap.String("submission_id", sub.SubmissionID),
				zap.Error(terr))
		}
		return nil, err
	}
	if err := s.store.Transition(ctx, sub.SubmissionID, submission.StatusPending, submission.StatusQueued, ""); err != nil {
		// The queued job is harmless: its claim finds the row not QUEUED
		// and drops it.
		return nil, err
	}

	logger.Info(ctx, "submission queued",
		zap.String("submission_id", sub.SubmissionID),
		zap.Int64("problem_id", req.ProblemID),
		zap.String("language", req.LanguageID))
	return &SubmitResult{SubmissionID: sub.SubmissionID, Status: submission.StatusQueued}, nil
}

// GetStatus returns the submission as currently recorded, verdicts
// included once judged.
func (s *Service) GetStatus(ctx context.Context, submissionID string) (*submission.Submission, error) {
	if submissionID == "" {
		return nil, appErr.ValidationError("submission_id", "required")
	}
	return s.store.Get(ctx, submissionID)
}

// GetSource fetches the archived source and verifies its hash.
func (s *Service) GetSource(ctx context.Context, submissionID string) (string, error) {
	if submissionID == "" {
		return "", appErr.ValidationError("submission_id", "required")
	}
	if s.archive == nil {
		return "", appErr.New(appErr.ArchiveNotFound).WithMessage("source archiving is disabled")
	}
	sub, err := s.store.Get(ctx, submissionID)
	if err != nil {
		return "", err
	}
	if sub.SourceKey == "" {
		return "", appErr.Newf(appErr.ArchiveNotFound, "submission %s has no archived source", submissionID)
	}
	return s.archive.Get(ctx, submissionID, sub.SourceHash)
}

// GetQueueStatus reports queue depth and overall backend health: the
// transport answers and at least one worker is alive.
func (s *Service) GetQueueStatus(ctx context.Context) QueueStatus {
	var status QueueStatus
	depth, err := s.queue.Depth(ctx)
	if err != nil {
		logger.Warn(ctx, "queue depth unavailable", zap.Error(err))
		return status
	}
	status.Depth = depth
	if err := s.queue.Ping(ctx); err != nil {
		logger.Warn(ctx, "queue ping failed", zap.Error(err))
		return status
	}
	status.Healthy = s.workers != nil && s.workers.Healthy()
	return status
}

func (s *Service) validate(req *SubmitRequest) error {
	if req.UserID <= 0 {
		return appErr.ValidationError("user_id", "must be positive")
	}
	if req.ProblemID <= 0 {
		return appErr.ValidationError("problem_id", "must be positive")
	}
	if strings.TrimSpace(req.Code) == "" {
		return appErr.ValidationError("code", "required")
	}
	if len(req.Code) > s.cfg.MaxCodeBytes {
		return appErr.Newf(appErr.CodeTooLarge, "source exceeds %d bytes", s.cfg.MaxCodeBytes)
	}
	if _, err := s.registry.Resolve(req.LanguageID); err != nil {
		return err
	}
	return nil
}

func sourceHash(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

func dedupKey(userID, problemID int64, hash string) string {
	return fmt.Sprintf("%s%d:%d:%s", dedupKeyPrefix, userID, problemID, hash)
}

func clampInt64(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
