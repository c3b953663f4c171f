// Package app assembles the HTTP server: config, storage, modules and
// background workers.
package app

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/studycompanion/core/internal/config"
	"github.com/studycompanion/core/internal/database"
	"github.com/studycompanion/core/internal/middleware"
	"github.com/studycompanion/core/internal/modules/gateway"
	"github.com/studycompanion/core/internal/modules/style"
	pkgcron "github.com/studycompanion/core/internal/pkg/cron"
	pkgredis "github.com/studycompanion/core/internal/pkg/redis"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App holds all application dependencies.
type App struct {
	cfg    *config.AppConfig
	router *gin.Engine
	db     *gorm.DB
	hub    *gateway.Hub
	logger *zap.Logger
	cancel context.CancelFunc
	sched  *pkgcron.Scheduler
}

// New initializes the application: DB → Redis → modules → routes.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if err := style.VerifyTotality(); err != nil {
		return nil, fmt.Errorf("style policies: %w", err)
	}

	db, err := database.Connect(cfg, true)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	rc, err := pkgredis.Connect(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))

	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "x-idempotence"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}
	if len(cfg.AllowedOrigins) > 0 && !cfg.IsDev() {
		corsConfig.AllowOriginFunc = cfg.OriginAllowed
	} else {
		corsConfig.AllowOriginFunc = func(string) bool { return true }
	}
	router.Use(cors.New(corsConfig))

	hub := gateway.NewHub(rc, logger, tokenValidator(cfg.AccessToken))
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	sched := pkgcron.New()

	app := &App{cfg: cfg, router: router, db: db, hub: hub, logger: logger, cancel: cancel, sched: sched}
	orch, err := app.registerRoutes(rc)
	if err != nil {
		cancel()
		return nil, err
	}

	registerCronJobs(sched, orch, cfg, logger)
	go sched.Start(ctx)

	return app, nil
}

// tokenValidator accepts every token when none is configured.
func tokenValidator(accessToken string) func(string) bool {
	expected := []byte(middleware.NormalizeToken(accessToken))
	if len(expected) == 0 {
		return nil
	}
	return func(token string) bool {
		return subtle.ConstantTimeCompare(expected, []byte(token)) == 1
	}
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Shutdown cleans up background goroutines.
func (a *App) Shutdown() { a.cancel() }
