package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"codejudge/internal/execution"
	"codejudge/internal/grader"
	"codejudge/internal/metrics"
	"codejudge/internal/middleware"
	"codejudge/internal/repository"
	"codejudge/pkg/models"
)

type runRequest struct {
	Files       map[string]string `json:"files"`
	Language    string            `json:"language"`
	Stdin       string            `json:"stdin"`
	ProblemSlug string            `json:"problem_slug"`
}

// Run executes code without recording a submission. Three modes, in
// precedence order: explicit stdin runs once against it; a problem slug runs
// the problem's tests without persisting; neither runs once with empty
// stdin.
func (h *Handler) Run(c *gin.Context) {
	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := validateSubmission(req.Files, req.Language, h.cfg.MaxFileSize, h.cfg.MaxTotalFileSize); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	files := truncateFiles(req.Files)

	// A slug pins the problem's execution limits even for stdin runs.
	var problem *models.Problem
	if req.ProblemSlug != "" {
		p, err := h.repo.ProblemBySlug(req.ProblemSlug)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "problem not found"})
				return
			}
			h.log.Error("load problem failed", zap.String("slug", req.ProblemSlug), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load problem"})
			return
		}
		problem = p
	}

	timeLimit, memLimit := 0, ""
	if problem != nil {
		timeLimit = problem.TimeLimit
		memLimit = problem.MemoryLimit
	}

	if req.Stdin == "" && problem != nil {
		res, err := h.grader.Evaluate(c.Request.Context(), grader.Request{
			Problem:     problem,
			Files:       files,
			Language:    req.Language,
			TimeLimit:   timeLimit,
			MemoryLimit: memLimit,
		})
		if err != nil {
			h.log.Error("evaluate failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "execution failed"})
			return
		}
		metrics.Get().Executions.WithLabelValues(res.Verdict).Inc()
		c.JSON(http.StatusOK, res)
		return
	}

	res := h.engine.Run(c.Request.Context(), execution.Request{
		Files:       files,
		Language:    req.Language,
		Stdin:       sanitizeStdin(req.Stdin),
		TimeLimit:   timeLimit,
		MemoryLimit: memLimit,
	})

	verdict := models.VerdictAccepted
	errMsg := res.Error
	switch res.Outcome {
	case execution.OK:
	case execution.Internal:
		verdict = models.VerdictInternalError
	case execution.Timeout:
		verdict = models.VerdictRuntimeError
		errMsg = "Time Limit Exceeded"
	case execution.OOM:
		verdict = models.VerdictRuntimeError
		errMsg = "Memory Limit Exceeded"
	default:
		verdict = models.VerdictRuntimeError
	}
	metrics.Get().Executions.WithLabelValues(res.Outcome.String()).Inc()

	c.JSON(http.StatusOK, gin.H{
		"verdict":        verdict,
		"output":         res.Output,
		"error":          errMsg,
		"execution_time": res.ExecutionTime,
	})
}

type submitRequest struct {
	Files       map[string]string `json:"files"`
	Language    string            `json:"language"`
	ProblemSlug string            `json:"problem_slug"`
}

// Submit grades code against a problem and records the submission.
func (h *Handler) Submit(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.ProblemSlug == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "problem_slug is required"})
		return
	}
	if err := validateSubmission(req.Files, req.Language, h.cfg.MaxFileSize, h.cfg.MaxTotalFileSize); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	problem, err := h.repo.ProblemBySlug(req.ProblemSlug)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "problem not found"})
			return
		}
		h.log.Error("load problem failed", zap.String("slug", req.ProblemSlug), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load problem"})
		return
	}

	res, err := h.grader.Grade(c.Request.Context(), grader.Request{
		UserID:      userID,
		Problem:     problem,
		Files:       truncateFiles(req.Files),
		Language:    req.Language,
		TimeLimit:   problem.TimeLimit,
		MemoryLimit: problem.MemoryLimit,
	})
	if err != nil {
		h.log.Error("grading failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "grading failed"})
		return
	}

	metrics.Get().Submissions.WithLabelValues(res.Verdict).Inc()
	c.JSON(http.StatusOK, res)
}
