// Package problem serves problem metadata and test data to the judge.
package problem

import "context"

// Problem is the judge-relevant slice of a problem: identity and default
// resource limits. Statements, tags and authoring metadata live in the
// parent service.
type Problem struct {
	ProblemID        int64  `json:"problem_id"`
	Title            string `json:"title"`
	TimeLimitMs      int64  `json:"time_limit_ms"`
	MemoryLimitBytes int64  `json:"memory_limit_bytes"`
}

// Testcase is one input/expected-output pair. ID is the stable per-problem
// test number reported in verdicts; Point is the score for passing it.
type Testcase struct {
	ID             int    `json:"id"`
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
	IsPublic       bool   `json:"is_public"`
	Point          int    `json:"point"`
}

// Store serves problems and their test data.
type Store interface {
	// GetProblem returns problem metadata or a ProblemNotFound error.
	GetProblem(ctx context.Context, problemID int64) (*Problem, error)

	// GetTestcases returns a problem's testcases ordered by ID. A problem
	// without test data yields a TestcaseNotFound error; it cannot be judged.
	GetTestcases(ctx context.Context, problemID int64) ([]Testcase, error)

	// Upsert atomically replaces a problem and its full testcase set.
	Upsert(ctx context.Context, p *Problem, testcases []Testcase) error
}
