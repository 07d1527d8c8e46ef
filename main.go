// codejudge is an online judge: it accepts source submissions in six
// languages, runs them against stored test cases inside ephemeral Docker
// containers, and persists the graded results.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"codejudge/internal/auth"
	"codejudge/internal/cache"
	"codejudge/internal/config"
	"codejudge/internal/db"
	"codejudge/internal/deploy"
	"codejudge/internal/execution"
	"codejudge/internal/grader"
	"codejudge/internal/handlers"
	"codejudge/internal/logging"
	"codejudge/internal/repository"
	"codejudge/internal/sandbox"
)

func main() {
	logging.Init()
	defer logging.Sync()
	log := logging.L()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("configuration invalid", zap.Error(err))
	}

	database, err := db.Connect(cfg)
	if err != nil {
		log.Fatal("database unavailable", zap.Error(err))
	}
	defer database.Close()

	driver, err := sandbox.NewDockerDriver(cfg.DockerHost)
	if err != nil {
		log.Fatal("docker unavailable", zap.Error(err))
	}

	repo := repository.New(database.DB)
	authSvc := auth.NewService(cfg.JWTSecret, cfg.BcryptRounds)
	engine := execution.NewEngine(driver, execution.Options{
		TimeLimit:       cfg.RunTimeout,
		MemoryLimit:     cfg.MemoryLimit,
		NetworkDisabled: cfg.DockerNetworkDisabled,
	})
	gate := deploy.New(cfg.EnableDeploymentValidation, cfg.MinSecurityScore, nil)
	judge := grader.New(engine, repo, gate)
	problemCache := cache.New(cfg.RedisURL)
	defer problemCache.Close()

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	handlers.New(cfg, repo, authSvc, judge, engine, problemCache, database).Register(router)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("listening", zap.String("port", cfg.Port), zap.String("env", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown incomplete", zap.Error(err))
	}
}
