package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: Problem & test data errors
// 12000-12999: Submission intake & lifecycle errors
// 13000-13999: Judge & Sandbox errors
// 14000-14999: Queue & Worker pool errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	TooManyRequests     ErrorCode = 10004
	ServiceUnavailable  ErrorCode = 10005
	Timeout             ErrorCode = 10006

	// Database errors (10100-10199)
	DatabaseError     ErrorCode = 10100
	RecordNotFound    ErrorCode = 10101
	TransactionFailed ErrorCode = 10102

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200
	LockFailed ErrorCode = 10201

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	RequiredFieldEmpty ErrorCode = 10301

	// Object storage errors (10400-10499)
	StorageError     ErrorCode = 10400
	ArchiveNotFound  ErrorCode = 10401
	ArchiveCorrupted ErrorCode = 10402

	// ========== Problem & Test Data Errors (11000-11999) ==========

	ProblemNotFound  ErrorCode = 11000
	TestcaseNotFound ErrorCode = 11001
	TestcaseInvalid  ErrorCode = 11002

	// ========== Submission Errors (12000-12999) ==========

	SubmissionNotFound     ErrorCode = 12000
	SubmissionCreateFailed ErrorCode = 12001
	CodeTooLarge           ErrorCode = 12002
	LanguageNotSupported   ErrorCode = 12003
	SubmitTooFrequently    ErrorCode = 12004
	SubmissionRejected     ErrorCode = 12005
	SubmissionFinal        ErrorCode = 12006
	InvalidTransition      ErrorCode = 12007
	ClaimConflict          ErrorCode = 12008

	// ========== Judge & Sandbox Errors (13000-13999) ==========

	JudgeSystemError     ErrorCode = 13000
	CompilationError     ErrorCode = 13001
	RuntimeError         ErrorCode = 13002
	TimeLimitExceeded    ErrorCode = 13003
	MemoryLimitExceeded  ErrorCode = 13004
	OutputLimitExceeded  ErrorCode = 13005
	SandboxUnavailable   ErrorCode = 13006
	WorkspaceError       ErrorCode = 13007
	SecurityProfileError ErrorCode = 13008

	// ========== Queue & Worker Pool Errors (14000-14999) ==========

	QueueTransportError ErrorCode = 14000
	JudgeQueueFull      ErrorCode = 14001
	WatchdogExpired     ErrorCode = 14002
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	// Database
	DatabaseError:     "Database operation failed",
	RecordNotFound:    "Record not found in database",
	TransactionFailed: "Database transaction failed",

	// Cache
	CacheError: "Cache operation failed",
	LockFailed: "Failed to acquire lock",

	// Validation
	ValidationFailed:   "Validation failed",
	RequiredFieldEmpty: "Required field is empty",

	// Object storage
	StorageError:     "Object storage operation failed",
	ArchiveNotFound:  "Source archive not found",
	ArchiveCorrupted: "Source archive failed integrity check",

	// Problem & test data
	ProblemNotFound:  "Problem not found",
	TestcaseNotFound: "No test cases found for problem",
	TestcaseInvalid:  "Invalid test case data",

	// Submission
	SubmissionNotFound:     "Submission not found",
	SubmissionCreateFailed: "Failed to create submission",
	CodeTooLarge:           "Code is too large",
	LanguageNotSupported:   "Programming language not supported",
	SubmitTooFrequently:    "Submitting too frequently, please wait",
	SubmissionRejected:     "Submission rejected by security screening",
	SubmissionFinal:        "Submission is already in a terminal state",
	InvalidTransition:      "Illegal submission state transition",
	ClaimConflict:          "Submission is claimed by another worker",

	// Judge & Sandbox
	JudgeSystemError:     "Judge system error",
	CompilationError:     "Compilation error",
	RuntimeError:         "Runtime error",
	TimeLimitExceeded:    "Time limit exceeded",
	MemoryLimitExceeded:  "Memory limit exceeded",
	OutputLimitExceeded:  "Output limit exceeded",
	SandboxUnavailable:   "Sandbox runtime unavailable",
	WorkspaceError:       "Workspace setup failed",
	SecurityProfileError: "Security profile build failed",

	// Queue & Worker pool
	QueueTransportError: "Queue transport error",
	JudgeQueueFull:      "Judge queue is full, please try again later",
	WatchdogExpired:     "Execution exceeded the watchdog deadline",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == NotFound, c == SubmissionNotFound, c == ProblemNotFound, c == ArchiveNotFound:
		return 404
	case c == TooManyRequests, c == SubmitTooFrequently:
		return 429
	case c == SubmissionFinal, c == ClaimConflict:
		return 409
	case c == ServiceUnavailable, c == JudgeQueueFull, c == SandboxUnavailable:
		return 503
	case c == Timeout:
		return 504
	case c >= 10300 && c < 10400: // Validation errors
		return 400
	case c == InvalidParams, c == CodeTooLarge, c == LanguageNotSupported, c == TestcaseInvalid:
		return 400
	default:
		return 500
	}
}
