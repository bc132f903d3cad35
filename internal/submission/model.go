// Package submission holds the submission lifecycle: the state machine and
// the persistent store that enforces it.
package submission

import (
	"time"

	"judgecore/internal/judging"
)

// Status is the lifecycle state of a submission.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusQueued  Status = "QUEUED"
	StatusRunning Status = "RUNNING"

	StatusAccepted            Status = "ACCEPTED"
	StatusWrongAnswer         Status = "WRONG_ANSWER"
	StatusTimeLimitExceeded   Status = "TIME_LIMIT_EXCEEDED"
	StatusMemoryLimitExceeded Status = "MEMORY_LIMIT_EXCEEDED"
	StatusRuntimeError        Status = "RUNTIME_ERROR"
	StatusCompileError        Status = "COMPILE_ERROR"
	StatusRejected            Status = "REJECTED"
	StatusInternalError       Status = "INTERNAL_ERROR"
)

// ResourceLimits bounds one submission's runs. Values are clamped to
// platform maxima at intake, so downstream code can trust them.
type ResourceLimits struct {
	TimeLimitMs      int64 `json:"time_limit_ms"`
	MemoryLimitBytes int64 `json:"memory_limit_bytes"`
}

// Submission is the persistent submission record.
type Submission struct {
	SubmissionID     string
	ProblemID        int64
	UserID           int64
	LanguageID       string
	SourceCode       string
	SourceKey        string
	SourceHash       string
	Status           Status
	TotalScore       int
	Verdicts         []judging.TestcaseVerdict
	CompileLog       string
	FailureReason    string
	TimeLimitMs      int64
	MemoryLimitBytes int64
	Attempts         int
	CreatedAt        time.Time
	UpdatedAt        time.Time
	JudgedAt         *time.Time
}

// StatusForVerdict maps an aggregate judging verdict onto the submission
// terminal status. The verdict strings are the status strings, so this is a
// checked conversion rather than a translation.
func StatusForVerdict(v judging.Verdict) Status {
	switch v {
	case judging.VerdictAC:
		return StatusAccepted
	case judging.VerdictWA:
		return StatusWrongAnswer
	case judging.VerdictTLE:
		return StatusTimeLimitExceeded
	case judging.VerdictMLE:
		return StatusMemoryLimitExceeded
	case judging.VerdictRE:
		return StatusRuntimeError
	case judging.VerdictCE:
		return StatusCompileError
	default:
		return StatusInternalError
	}
}
