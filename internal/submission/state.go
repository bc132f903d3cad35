package submission

// transitions lists every legal state change. RUNNING back to QUEUED is the
// watchdog requeue; PENDING to INTERNAL_ERROR covers intake failures after
// the record exists but before it reaches the queue.
var transitions = map[Status][]Status{
	StatusPending: {StatusQueued, StatusRejected, StatusInternalError},
	StatusQueued:  {StatusRunning},
	StatusRunning: {
		StatusAccepted,
		StatusWrongAnswer,
		StatusTimeLimitExceeded,
		StatusMemoryLimitExceeded,
		StatusRuntimeError,
		StatusCompileError,
		StatusInternalError,
		StatusQueued,
	},
}

// CanTransition reports whether moving from one status to another is legal.
// Terminal statuses allow nothing; re-judging means a new submission.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status permits no further transitions.
func IsTerminal(s Status) bool {
	switch s {
	case StatusAccepted, StatusWrongAnswer, StatusTimeLimitExceeded,
		StatusMemoryLimitExceeded, StatusRuntimeError, StatusCompileError,
		StatusRejected, StatusInternalError:
		return true
	}
	return false
}
