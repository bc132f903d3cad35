// Package sandbox executes untrusted submissions in disposable docker
// containers. Every compile and every test case gets a fresh container; the
// host never runs submitted code directly.
package sandbox

import (
	"context"

	"judgecore/internal/language"
)

const containerWorkDir = "/work"

// Exit codes reported by the in-container timeout wrapper and the kill signal.
const (
	timeoutExitCode = 124
	killExitCode    = 137
)

// Limits bounds a single test-case run.
type Limits struct {
	TimeLimitMs   int64
	MemoryLimitMB int64
	CPUs          float64
	PIDs          int64
}

// CompileRequest asks the engine to compile the workspace source.
type CompileRequest struct {
	SubmissionID string
	Language     language.Spec
	Workspace    *Workspace
}

// RunRequest asks the engine to run the compiled submission against one
// test-case input.
type RunRequest struct {
	SubmissionID string
	TestID       string
	Language     language.Spec
	Workspace    *Workspace
	Stdin        string
	Limits       Limits
}

// ExecutionResult reports one container run. ExitCode is the container's exit
// status; TimedOut and OOMKilled record why the run was cut short.
type ExecutionResult struct {
	ExitCode  int
	TimeMs    int64
	Stdout    string
	Stderr    string
	TimedOut  bool
	OOMKilled bool
}

// Engine executes compile and run steps inside an isolated sandbox.
type Engine interface {
	Compile(ctx context.Context, req CompileRequest) (ExecutionResult, error)
	Run(ctx context.Context, req RunRequest) (ExecutionResult, error)
}
