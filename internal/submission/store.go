package submission

import (
	"context"
	"time"

	"judgecore/internal/judging"
)

// Outcome is the terminal result written by Finalize.
type Outcome struct {
	Status     Status
	TotalScore int
	Verdicts   []judging.TestcaseVerdict
	CompileLog string
	Reason     string
}

// Store persists submissions. Every status write is guarded by the expected
// current status, so terminal rows are immutable and the RUNNING claim is
// exclusive at the SQL layer, not just in this process.
type Store interface {
	// Create inserts a new PENDING submission.
	Create(ctx context.Context, sub *Submission) error

	// Get returns a submission or a SubmissionNotFound error.
	Get(ctx context.Context, submissionID string) (*Submission, error)

	// Transition moves a submission from one non-terminal status to another
	// after checking legality. Reason is recorded for REJECTED and
	// INTERNAL_ERROR moves and ignored otherwise by readers.
	Transition(ctx context.Context, submissionID string, from, to Status, reason string) error

	// Claim atomically takes a QUEUED submission to RUNNING and bumps its
	// attempt counter. A lost race returns (false, nil), not an error.
	Claim(ctx context.Context, submissionID string) (bool, error)

	// Finalize writes a terminal outcome for a RUNNING submission.
	Finalize(ctx context.Context, submissionID string, outcome Outcome) error

	// StaleRunning lists RUNNING submissions untouched since the cutoff,
	// oldest first, for the watchdog.
	StaleRunning(ctx context.Context, cutoff time.Time, limit int) ([]*Submission, error)
}
