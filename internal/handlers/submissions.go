package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"codejudge/internal/middleware"
	"codejudge/internal/repository"
)

const hiddenPlaceholder = "[Hidden]"

// Submissions lists the caller's submissions, newest first.
func (h *Handler) Submissions(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	subs, total, err := h.repo.Submissions(userID, page, pageSize)
	if err != nil {
		h.log.Error("list submissions failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load submissions"})
		return
	}

	items := make([]gin.H, 0, len(subs))
	for i := range subs {
		s := &subs[i]
		items = append(items, gin.H{
			"id":             s.ID,
			"problem_id":     s.ProblemID,
			"language":       s.Language,
			"verdict":        s.Verdict,
			"passed":         s.Passed,
			"total":          s.Total,
			"execution_time": s.ExecutionTime,
			"created_at":     s.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"submissions": items,
		"total":       total,
		"page":        page,
		"page_size":   pageSize,
	})
}

// Submission returns one of the caller's submissions with per-test rows.
// Rows for hidden test cases have their output redacted; submissions owned
// by other users are reported as missing.
func (h *Handler) Submission(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid submission id"})
		return
	}

	sub, rows, err := h.repo.SubmissionDetail(userID, uint(id))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "submission not found"})
			return
		}
		h.log.Error("submission detail failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load submission"})
		return
	}

	rowViews := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		output := row.Output
		if row.IsHidden {
			output = hiddenPlaceholder
		}
		rowViews = append(rowViews, gin.H{
			"test_case_id":    row.TestCaseID,
			"status":          row.Status,
			"output":          output,
			"error":           row.ErrorMessage,
			"execution_time":  row.ExecutionTime,
			"execution_order": row.ExecutionOrder,
			"is_hidden":       row.IsHidden,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"id":             sub.ID,
		"problem_id":     sub.ProblemID,
		"language":       sub.Language,
		"verdict":        sub.Verdict,
		"passed":         sub.Passed,
		"total":          sub.Total,
		"execution_time": sub.ExecutionTime,
		"error":          sub.ErrorMessage,
		"created_at":     sub.CreatedAt,
		"tests":          rowViews,
	})
}
