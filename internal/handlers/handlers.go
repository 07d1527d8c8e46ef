// Package handlers is the HTTP surface of the judge: auth, problems, code
// runs, submissions, and service plumbing endpoints.
package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"codejudge/internal/auth"
	"codejudge/internal/cache"
	"codejudge/internal/config"
	"codejudge/internal/execution"
	"codejudge/internal/grader"
	"codejudge/internal/logging"
	"codejudge/internal/metrics"
	"codejudge/internal/middleware"
	"codejudge/internal/repository"
)

// Per-caller request quotas, per hour.
const (
	quotaRegister = 10
	quotaLogin    = 20
	quotaProblems = 100
	quotaRun      = 50
	quotaSubmit   = 30
)

// Pinger is the health-check dependency.
type Pinger interface {
	Health() error
}

// Handler carries every dependency the HTTP layer needs.
type Handler struct {
	cfg    *config.Config
	repo   *repository.Repository
	auth   *auth.Service
	grader *grader.Grader
	engine execution.Runner
	cache  *cache.ProblemCache
	health Pinger
	log    *zap.Logger
}

func New(cfg *config.Config, repo *repository.Repository, authSvc *auth.Service,
	gr *grader.Grader, engine execution.Runner, pc *cache.ProblemCache, health Pinger) *Handler {
	return &Handler{
		cfg:    cfg,
		repo:   repo,
		auth:   authSvc,
		grader: gr,
		engine: engine,
		cache:  pc,
		health: health,
		log:    logging.L().Named("handlers"),
	}
}

// Register mounts all routes with their middleware on the router.
func (h *Handler) Register(r *gin.Engine) {
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(middleware.CORS(h.cfg.AllowedOrigins))
	r.Use(middleware.AccessLog())
	r.Use(metrics.Middleware())

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api")
	api.GET("/health", h.Health)
	api.GET("/csrf-token", h.CSRFToken)

	api.POST("/auth/register", middleware.NewQuota(quotaRegister).Middleware(), h.RegisterUser)
	api.POST("/auth/login", middleware.NewQuota(quotaLogin).Middleware(), h.Login)

	// Each problems route carries its own quota budget.
	api.GET("/problems", middleware.OptionalAuth(h.auth),
		middleware.NewQuota(quotaProblems).Middleware(), h.Problems)
	api.GET("/problem/:slug", middleware.OptionalAuth(h.auth),
		middleware.NewQuota(quotaProblems).Middleware(), h.Problem)

	// Anonymous runs are allowed; the quota keys by IP when unauthenticated.
	api.POST("/run", middleware.OptionalAuth(h.auth),
		middleware.NewQuota(quotaRun).Middleware(), h.Run)
	api.POST("/submit", middleware.RequireAuth(h.auth),
		middleware.NewQuota(quotaSubmit).Middleware(), h.Submit)

	api.GET("/submissions", middleware.RequireAuth(h.auth), h.Submissions)
	api.GET("/submission/:id", middleware.RequireAuth(h.auth), h.Submission)
}

// Health reports whether the service can reach its database.
func (h *Handler) Health(c *gin.Context) {
	if err := h.health.Health(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// CSRFToken issues a random token as both cookie and body.
func (h *Handler) CSRFToken(c *gin.Context) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token generation failed"})
		return
	}
	token := hex.EncodeToString(buf)
	c.SetCookie("csrf_token", token, 3600, "/", "", false, false)
	c.JSON(http.StatusOK, gin.H{"csrf_token": token})
}
