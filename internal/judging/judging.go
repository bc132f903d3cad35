// Package judging compares sandbox output against expected answers and
// aggregates per-test verdicts into a submission outcome.
package judging

import (
	"strings"

	"judgecore/internal/sandbox"
)

// Verdict is the judged outcome of a test case or a whole submission.
type Verdict string

const (
	VerdictAC  Verdict = "ACCEPTED"
	VerdictWA  Verdict = "WRONG_ANSWER"
	VerdictTLE Verdict = "TIME_LIMIT_EXCEEDED"
	VerdictMLE Verdict = "MEMORY_LIMIT_EXCEEDED"
	VerdictRE  Verdict = "RUNTIME_ERROR"
	VerdictCE  Verdict = "COMPILE_ERROR"
)

// outputSnippetCap bounds the output and stderr stored per verdict.
const outputSnippetCap = 4096

// Case is one test case from the judge's point of view.
type Case struct {
	ID       string
	Expected string
	Points   int
	Public   bool
}

// TestcaseVerdict records the outcome of one test case. PointsAwarded is all
// or nothing: the full point value on a pass, zero otherwise. Output and
// Stderr are snippets and only kept for public cases, so hidden test data
// never leaks through the status API.
type TestcaseVerdict struct {
	TestcaseID    string  `json:"testcase_id"`
	Verdict       Verdict `json:"verdict"`
	Passed        bool    `json:"passed"`
	PointsAwarded int     `json:"points_awarded"`
	TimeMs        int64   `json:"time_ms"`
	ExitCode      int     `json:"exit_code"`
	TimedOut      bool    `json:"timed_out,omitempty"`
	OOMKilled     bool    `json:"oom_killed,omitempty"`
	Output        string  `json:"output,omitempty"`
	Stderr        string  `json:"stderr,omitempty"`
}

// Summary is the aggregate outcome over all test cases.
type Summary struct {
	Status     Verdict           `json:"status"`
	TotalScore int               `json:"total_score"`
	Verdicts   []TestcaseVerdict `json:"verdicts"`
}

// Normalize trims trailing spaces, tabs and carriage returns from every line
// and strips a single trailing newline. Internal whitespace stays
// significant, as do extra blank lines beyond the final one.
func Normalize(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	return strings.TrimSuffix(strings.Join(lines, "\n"), "\n")
}

// Judge scores one test case. A case passes only when the normalized output
// matches, the program exited zero and neither limit was hit.
func Judge(c Case, res sandbox.ExecutionResult) TestcaseVerdict {
	matched := Normalize(res.Stdout) == Normalize(c.Expected)
	verdict := classify(res, matched)

	tv := TestcaseVerdict{
		TestcaseID: c.ID,
		Verdict:    verdict,
		TimeMs:     res.TimeMs,
		ExitCode:   res.ExitCode,
		TimedOut:   res.TimedOut,
		OOMKilled:  res.OOMKilled,
	}
	if c.Public {
		tv.Output = snippet(res.Stdout)
		tv.Stderr = snippet(res.Stderr)
	}
	if verdict == VerdictAC {
		tv.Passed = true
		tv.PointsAwarded = c.Points
	}
	return tv
}

func classify(res sandbox.ExecutionResult, matched bool) Verdict {
	if res.TimedOut {
		return VerdictTLE
	}
	if res.OOMKilled {
		return VerdictMLE
	}
	if res.ExitCode != 0 {
		return VerdictRE
	}
	if !matched {
		return VerdictWA
	}
	return VerdictAC
}

func snippet(s string) string {
	if len(s) <= outputSnippetCap {
		return s
	}
	return s[:outputSnippetCap]
}

// Aggregate folds per-test verdicts into the submission outcome. Every case
// contributes its points; the headline status is the first non-accepted
// verdict in test order, ACCEPTED when there is none.
func Aggregate(verdicts []TestcaseVerdict) Summary {
	summary := Summary{Status: VerdictAC, Verdicts: verdicts}
	for _, v := range verdicts {
		summary.TotalScore += v.PointsAwarded
		if summary.Status == VerdictAC && v.Verdict != VerdictAC {
			summary.Status = v.Verdict
		}
	}
	return summary
}

// CompileFailure is the summary for a submission that never ran: zero score,
// no per-test verdicts.
func CompileFailure() Summary {
	return Summary{Status: VerdictCE}
}
