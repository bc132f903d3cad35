package submission

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"judgecore/internal/common/cache"
	"judgecore/internal/common/db"
	"judgecore/internal/judging"
	appErr "judgecore/pkg/errors"
)

const (
	defaultSubmissionCacheTTL      = 5 * time.Minute
	defaultSubmissionCacheEmptyTTL = 30 * time.Second
	submissionCacheKeyPrefix       = "submission:"

	defaultStaleLimit = 50
)

const submissionColumns = "submission_id, problem_id, user_id, language_id, source_code, source_key, source_hash, status, total_score, verdicts, compile_log, failure_reason, time_limit_ms, memory_limit_bytes, attempts, created_at, updated_at, judged_at"

// MySQLStore implements Store on MySQL with a read-through cache. Every
// status write carries the expected current status in its WHERE clause and
// invalidates the cache, so terminal rows stay immutable and a claim won by
// one worker is lost by every other, regardless of process count.
type MySQLStore struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

var _ Store = (*MySQLStore)(nil)

// NewMySQLStore creates a submission store with default cache TTLs.
func NewMySQLStore(database db.Database, cacheClient cache.Cache) *MySQLStore {
	return NewMySQLStoreWithTTL(database, cacheClient, defaultSubmissionCacheTTL, defaultSubmissionCacheEmptyTTL)
}

// NewMySQLStoreWithTTL creates a submission store with custom cache TTLs.
func NewMySQLStoreWithTTL(database db.Database, cacheClient cache.Cache, ttl, emptyTTL time.Duration) *MySQLStore {
	if ttl <= 0 {
		ttl = defaultSubmissionCacheTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultSubmissionCacheEmptyTTL
	}
	return &MySQLStore{
		db:       database,
		cache:    cacheClient,
		ttl:      ttl,
		emptyTTL: emptyTTL,
	}
}

// Create inserts a new PENDING submission.
func (s *MySQLStore) Create(ctx context.Context, sub *Submission) error {
	if sub == nil {
		return appErr.ValidationError("submission", "required")
	}
	if sub.SubmissionID == "" {
		return appErr.ValidationError("submissionID", "required")
	}
	if sub.ProblemID <= 0 {
		return appErr.ValidationError("problemID", "required")
	}
	if sub.UserID <= 0 {
		return appErr.ValidationError("userID", "required")
	}
	if sub.LanguageID == "" {
		return appErr.ValidationError("languageID", "required")
	}
	if sub.TimeLimitMs <= 0 {
		return appErr.ValidationError("timeLimitMs", "must be positive")
	}
	if sub.MemoryLimitBytes <= 0 {
		return appErr.ValidationError("memoryLimitBytes", "must be positive")
	}
	if sub.Status == "" {
		sub.Status = StatusPending
	}
	if sub.Status != StatusPending {
		return appErr.ValidationError("status", "new submissions start as PENDING")
	}

	query := `
		INSERT INTO submissions
		(submission_id, problem_id, user_id, language_id, source_code, source_key, source_hash, status, time_limit_ms, memory_limit_bytes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(
		ctx,
		query,
		sub.SubmissionID,
		sub.ProblemID,
		sub.UserID,
		sub.LanguageID,
		sub.SourceCode,
		sub.SourceKey,
		sub.SourceHash,
		string(StatusPending),
		sub.TimeLimitMs,
		sub.MemoryLimitBytes,
	)
	if err != nil {
		if key, ok := db.UniqueViolation(err); ok {
			return appErr.Wrap(err, appErr.SubmissionCreateFailed).
				WithMessagef("submission %s already exists", sub.SubmissionID).
				WithDetail("key", key)
		}
		return appErr.Wrap(err, appErr.DatabaseError).WithMessage("insert submission")
	}
	return nil
}

// Get returns a submission by id, serving from cache when possible.
func (s *MySQLStore) Get(ctx context.Context, submissionID string) (*Submission, error) {
	if submissionID == "" {
		return nil, appErr.ValidationError("submissionID", "required")
	}
	if s.cache == nil {
		return s.getFromDB(ctx, submissionID)
	}
	sub, err := cache.GetWithCached[*Submission](
		ctx,
		s.cache,
		submissionCacheKey(submissionID),
		cache.JitterTTL(s.ttl),
		cache.JitterTTL(s.emptyTTL),
		func(sub *Submission) bool { return sub == nil },
		marshalSubmission,
		unmarshalSubmission,
		func(ctx context.Context) (*Submission, error) {
			sub, err := s.getFromDB(ctx, submissionID)
			if err != nil {
				if appErr.Is(err, appErr.SubmissionNotFound) {
					return nil, nil
				}
				return nil, err
			}
			return sub, nil
		},
	)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, appErr.Newf(appErr.SubmissionNotFound, "submission %s not found", submissionID)
	}
	return sub, nil
}

// Transition moves a submission between non-terminal statuses. The UPDATE
// guards on the expected current status; zero affected rows means another
// writer got there first, and the error explains what it found.
func (s *MySQLStore) Transition(ctx context.Context, submissionID string, from, to Status, reason string) error {
	if submissionID == "" {
		return appErr.ValidationError("submissionID", "required")
	}
	if !CanTransition(from, to) {
		return appErr.Newf(appErr.InvalidTransition, "cannot move submission %s from %s to %s", submissionID, from, to)
	}
	return s.updateCached(ctx, submissionID, func(ctx context.Context) error {
		var (
			query string
			args  []interface{}
		)
		if to == StatusRejected || to == StatusInternalError {
			query = "UPDATE submissions SET status = ?, failure_reason = ? WHERE submission_id = ? AND status = ?"
			args = []interface{}{string(to), reason, submissionID, string(from)}
		} else {
			query = "UPDATE submissions SET status = ? WHERE submission_id = ? AND status = ?"
			args = []interface{}{string(to), submissionID, string(from)}
		}
		res, err := s.db.Exec(ctx, query, args...)
		if err != nil {
			return appErr.Wrap(err, appErr.DatabaseError).WithMessage("update submission status")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return appErr.Wrap(err, appErr.DatabaseError).WithMessage("update submission status")
		}
		if n == 0 {
			return s.conflictError(ctx, submissionID, from)
		}
		return nil
	})
}

// Claim atomically takes a QUEUED submission to RUNNING and bumps its
// attempt counter. Losing the race to another worker is not an error.
func (s *MySQLStore) Claim(ctx context.Context, submissionID string) (bool, error) {
	if submissionID == "" {
		return false, appErr.ValidationError("submissionID", "required")
	}
	query := `
		UPDATE submissions
		SET status = ?, attempts = attempts + 1
		WHERE submission_id = ? AND status = ?
	`
	res, err := s.db.Exec(ctx, query, string(StatusRunning), submissionID, string(StatusQueued))
	if err != nil {
		return false, appErr.Wrap(err, appErr.DatabaseError).WithMessage("claim submission")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, appErr.Wrap(err, appErr.DatabaseError).WithMessage("claim submission")
	}
	if n == 0 {
		return false, nil
	}
	s.invalidate(ctx, submissionID)
	return true, nil
}

// Finalize writes a terminal outcome for a RUNNING submission.
func (s *MySQLStore) Finalize(ctx context.Context, submissionID string, outcome Outcome) error {
	if submissionID == "" {
		return appErr.ValidationError("submissionID", "required")
	}
	if !IsTerminal(outcome.Status) {
		return appErr.Newf(appErr.InvalidTransition, "%s is not a terminal status", outcome.Status)
	}
	if !CanTransition(StatusRunning, outcome.Status) {
		return appErr.Newf(appErr.InvalidTransition, "cannot finalize submission %s as %s", submissionID, outcome.Status)
	}
	verdicts, err := marshalVerdicts(outcome.Verdicts)
	if err != nil {
		return err
	}
	return s.updateCached(ctx, submissionID, func(ctx context.Context) error {
		query := `
			UPDATE submissions
			SET status = ?, total_score = ?, verdicts = ?, compile_log = ?, failure_reason = ?, judged_at = NOW()
			WHERE submission_id = ? AND status = ?
		`
		res, err := s.db.Exec(
			ctx,
			query,
			string(outcome.Status),
			outcome.TotalScore,
			verdicts,
			nullString(outcome.CompileLog),
			nullString(outcome.Reason),
			submissionID,
			string(StatusRunning),
		)
		if err != nil {
			return appErr.Wrap(err, appErr.DatabaseError).WithMessage("finalize submission")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return appErr.Wrap(err, appErr.DatabaseError).WithMessage("finalize submission")
		}
		if n == 0 {
			return s.conflictError(ctx, submissionID, StatusRunning)
		}
		return nil
	})
}

// StaleRunning lists RUNNING submissions untouched since the cutoff, oldest
// first. The watchdog uses it to find work lost to dead workers.
func (s *MySQLStore) StaleRunning(ctx context.Context, cutoff time.Time, limit int) ([]*Submission, error) {
	if limit <= 0 {
		limit = defaultStaleLimit
	}
	query := "SELECT " + submissionColumns + " FROM submissions WHERE status = ? AND updated_at < ? ORDER BY updated_at ASC LIMIT ?"
	rows, err := s.db.Query(ctx, query, string(StatusRunning), cutoff, limit)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.DatabaseError).WithMessage("list stale running submissions")
	}
	defer rows.Close()

	var subs []*Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, appErr.Wrap(err, appErr.DatabaseError).WithMessage("scan stale submission")
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Wrap(err, appErr.DatabaseError).WithMessage("iterate stale submissions")
	}
	return subs, nil
}

func (s *MySQLStore) getFromDB(ctx context.Context, submissionID string) (*Submission, error) {
	query := "SELECT " + submissionColumns + " FROM submissions WHERE submission_id = ? LIMIT 1"
	sub, err := scanSubmission(s.db.QueryRow(ctx, query, submissionID))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, appErr.Newf(appErr.SubmissionNotFound, "submission %s not found", submissionID)
		}
		return nil, appErr.Wrap(err, appErr.DatabaseError).WithMessage("query submission")
	}
	return sub, nil
}

// conflictError explains a zero-row guarded update by re-reading the row.
func (s *MySQLStore) conflictError(ctx context.Context, submissionID string, expected Status) error {
	current, err := s.getFromDB(ctx, submissionID)
	if err != nil {
		if appErr.Is(err, appErr.SubmissionNotFound) {
			return err
		}
		return appErr.Wrap(err, appErr.DatabaseError).WithMessage("resolve status conflict")
	}
	if IsTerminal(current.Status) {
		return appErr.Newf(appErr.SubmissionFinal, "submission %s is already %s", submissionID, current.Status)
	}
	return appErr.Newf(appErr.ClaimConflict, "submission %s is %s, expected %s", submissionID, current.Status, expected)
}

func (s *MySQLStore) updateCached(ctx context.Context, submissionID string, fn func(context.Context) error) error {
	if s.cache == nil {
		return fn(ctx)
	}
	return cache.UpdateCached(ctx, s.cache, submissionCacheKey(submissionID), fn)
}

func (s *MySQLStore) invalidate(ctx context.Context, submissionID string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Del(ctx, submissionCacheKey(submissionID))
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSubmission(row rowScanner) (*Submission, error) {
	sub := &Submission{}
	var (
		status     string
		verdicts   sql.NullString
		compileLog sql.NullString
		reason     sql.NullString
		judgedAt   sql.NullTime
	)
	if err := row.Scan(
		&sub.SubmissionID,
		&sub.ProblemID,
		&sub.UserID,
		&sub.LanguageID,
		&sub.SourceCode,
		&sub.SourceKey,
		&sub.SourceHash,
		&status,
		&sub.TotalScore,
		&verdicts,
		&compileLog,
		&reason,
		&sub.TimeLimitMs,
		&sub.MemoryLimitBytes,
		&sub.Attempts,
		&sub.CreatedAt,
		&sub.UpdatedAt,
		&judgedAt,
	); err != nil {
		return nil, err
	}
	sub.Status = Status(status)
	sub.CompileLog = compileLog.String
	sub.FailureReason = reason.String
	if judgedAt.Valid {
		t := judgedAt.Time
		sub.JudgedAt = &t
	}
	if verdicts.Valid && verdicts.String != "" {
		if err := json.Unmarshal([]byte(verdicts.String), &sub.Verdicts); err != nil {
			return nil, err
		}
	}
	return sub, nil
}

func submissionCacheKey(submissionID string) string {
	return submissionCacheKeyPrefix + submissionID
}

func marshalSubmission(sub *Submission) string {
	if sub == nil {
		return ""
	}
	data, err := json.Marshal(sub)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalSubmission(data string) (*Submission, error) {
	if data == "" || data == cache.NullCacheValue {
		return nil, nil
	}
	var sub Submission
	if err := json.Unmarshal([]byte(data), &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

func marshalVerdicts(verdicts []judging.TestcaseVerdict) (interface{}, error) {
	if len(verdicts) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(verdicts)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.InternalServerError).WithMessage("encode verdicts")
	}
	return string(data), nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
