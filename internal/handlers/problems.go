package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"codejudge/internal/repository"
	"codejudge/pkg/models"
)

// Problems lists public problems with paging and optional difficulty/search
// filters.
func (h *Handler) Problems(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	problems, total, err := h.repo.Problems(repository.ProblemFilter{
		Difficulty: c.Query("difficulty"),
		Search:     c.Query("search"),
		Page:       page,
		PageSize:   pageSize,
	})
	if err != nil {
		h.log.Error("list problems failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load problems"})
		return
	}

	items := make([]gin.H, 0, len(problems))
	for i := range problems {
		p := &problems[i]
		items = append(items, gin.H{
			"id":         p.ID,
			"slug":       p.Slug,
			"title":      p.Title,
			"difficulty": p.Difficulty,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"problems":  items,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// Problem returns one problem with templates, decoded examples and
// constraints, and its test cases. Hidden cases expose only their id and
// execution order.
func (h *Handler) Problem(c *gin.Context) {
	slug := c.Param("slug")

	var payload gin.H
	if h.cache.Get(c.Request.Context(), slug, &payload) {
		c.JSON(http.StatusOK, payload)
		return
	}

	problem, err := h.repo.ProblemBySlug(slug)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "problem not found"})
			return
		}
		h.log.Error("load problem failed", zap.String("slug", slug), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load problem"})
		return
	}

	cases, err := h.repo.TestCases(problem.ID)
	if err != nil {
		h.log.Error("load test cases failed", zap.String("slug", slug), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load problem"})
		return
	}

	payload = problemPayload(problem, cases)
	h.cache.Set(c.Request.Context(), slug, payload)
	c.JSON(http.StatusOK, payload)
}

func problemPayload(p *models.Problem, cases []models.TestCase) gin.H {
	caseViews := make([]gin.H, 0, len(cases))
	for _, tc := range cases {
		if tc.IsHidden {
			caseViews = append(caseViews, gin.H{
				"id":              tc.ID,
				"execution_order": tc.ExecutionOrder,
				"is_hidden":       true,
			})
			continue
		}
		caseViews = append(caseViews, gin.H{
			"id":              tc.ID,
			"input_text":      tc.InputText,
			"expected_output": tc.ExpectedOutput,
			"execution_order": tc.ExecutionOrder,
			"is_hidden":       false,
		})
	}

	return gin.H{
		"id":           p.ID,
		"slug":         p.Slug,
		"title":        p.Title,
		"description":  p.Description,
		"difficulty":   p.Difficulty,
		"time_limit":   p.TimeLimit,
		"memory_limit": p.MemoryLimit,
		"examples":     repository.DecodeJSONList(p.Examples),
		"constraints":  repository.DecodeJSONList(p.Constraints),
		"templates": gin.H{
			"java":       p.TemplateJava,
			"python":     p.TemplatePython,
			"c":          p.TemplateC,
			"cpp":        p.TemplateCpp,
			"javascript": p.TemplateJavascript,
			"csharp":     p.TemplateCsharp,
		},
		"test_cases": caseViews,
	}
}
