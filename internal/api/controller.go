package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"judgecore/internal/intake"
	"judgecore/internal/judging"
	"judgecore/internal/submission"
	"judgecore/pkg/utils/response"
)

// SubmissionController handles the submission endpoints.
type SubmissionController struct {
	svc *intake.Service
}

func NewSubmissionController(svc *intake.Service) *SubmissionController {
	return &SubmissionController{svc: svc}
}

// statusResponse is the polled view of a submission. Source code is
// deliberately absent; it has its own endpoint.
type statusResponse struct {
	SubmissionID  string                    `json:"submission_id"`
	ProblemID     int64                     `json:"problem_id"`
	UserID        int64                     `json:"user_id"`
	Language      string                    `json:"language"`
	Status        submission.Status         `json:"status"`
	TotalScore    int                       `json:"total_score"`
	Verdicts      []judging.TestcaseVerdict `json:"verdicts,omitempty"`
	CompileLog    string                    `json:"compile_log,omitempty"`
	FailureReason string                    `json:"failure_reason,omitempty"`
	Attempts      int                       `json:"attempts"`
	CreatedAt     time.Time                 `json:"created_at"`
	JudgedAt      *time.Time                `json:"judged_at,omitempty"`
}

type sourceResponse struct {
	SubmissionID string `json:"submission_id"`
	Source       string `json:"source"`
}

// Create accepts a submission. A pre-screen rejection is a successful
// response carrying the terminal status.
func (h *SubmissionController) Create(c *gin.Context) {
	var req intake.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	res, err := h.svc.Submit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// GetStatus returns the submission with verdicts so far.
func (h *SubmissionController) GetStatus(c *gin.Context) {
	sub, err := h.svc.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toStatusResponse(sub))
}

// GetSource returns the archived source of a submission.
func (h *SubmissionController) GetSource(c *gin.Context) {
	id := c.Param("id")
	src, err := h.svc.GetSource(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, sourceResponse{SubmissionID: id, Source: src})
}

func toStatusResponse(sub *submission.Submission) statusResponse {
	return statusResponse{
		SubmissionID:  sub.SubmissionID,
		ProblemID:     sub.ProblemID,
		UserID:        sub.UserID,
		Language:      sub.LanguageID,
		Status:        sub.Status,
		TotalScore:    sub.TotalScore,
		Verdicts:      sub.Verdicts,
		CompileLog:    sub.CompileLog,
		FailureReason: sub.FailureReason,
		Attempts:      sub.Attempts,
		CreatedAt:     sub.CreatedAt,
		JudgedAt:      sub.JudgedAt,
	}
}

// QueueController exposes the judging backend health.
type QueueController struct {
	svc *intake.Service
}

func NewQueueController(svc *intake.Service) *QueueController {
	return &QueueController{svc: svc}
}

// Status reports queue depth and backend health.
func (h *QueueController) Status(c *gin.Context) {
	response.Success(c, h.svc.GetQueueStatus(c.Request.Context()))
}
