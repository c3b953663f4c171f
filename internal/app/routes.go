package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/studycompanion/core/internal/middleware"
	"github.com/studycompanion/core/internal/modules/artifact"
	"github.com/studycompanion/core/internal/modules/gateway"
	"github.com/studycompanion/core/internal/modules/notegen"
	"github.com/studycompanion/core/internal/modules/notetask"
	"github.com/studycompanion/core/internal/modules/retrieval"
	"github.com/studycompanion/core/internal/modules/session"
	pkgredis "github.com/studycompanion/core/internal/pkg/redis"
	"github.com/studycompanion/core/internal/pkg/response"
	"github.com/studycompanion/core/internal/pkg/taskstore"
	"go.uber.org/zap"
)

const apiPrefix = "/api/v1"

func (a *App) registerRoutes(rc *pkgredis.Client) (*notetask.Orchestrator, error) {
	r := a.router
	cfg := a.cfg
	authMW := middleware.Auth(cfg.AccessToken)

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c)
	})
	r.NoMethod(func(c *gin.Context) {
		response.MethodNotAllowed(c)
	})

	// Rate limiting and idempotence run on every route (requires Redis).
	r.Use(middleware.RateLimit(rc.Raw()))
	r.Use(middleware.Idempotence(rc.Raw()))

	appInfo := gin.H{
		"name":    "studycompanion-core",
		"version": "1.0.0",
	}
	info := func(c *gin.Context) { response.OK(c, appInfo) }
	r.GET("/", info)
	r.GET("/info", info)
	r.GET("/ping", func(c *gin.Context) {
		response.OK(c, gin.H{"pong": true})
	})
	r.GET("/uptime", func(c *gin.Context) {
		response.OK(c, gin.H{"uptime_seconds": int(time.Since(processStart).Seconds())})
	})

	// Shared services
	chunks := retrieval.NewRedisStore(rc, retrieval.Options{
		TopK:     cfg.Retrieval.TopK,
		MinScore: cfg.Retrieval.MinScore,
		Timeout:  time.Duration(cfg.Retrieval.QueryTimeoutMS) * time.Millisecond,
	}, a.logger)
	sessionSvc := session.NewService(a.db, chunks)
	artifacts := artifact.NewGormStore(a.db)
	tasks := taskstore.NewRedisStore(rc)

	tg, err := notegen.NewTextGenerator(cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("text generator: %w", err)
	}
	generator := notegen.New(tg, cfg.Notes.SectionWordBaseline, a.logger)

	orch := notetask.NewOrchestrator(tasks, artifacts, chunks, generator, cfg.Retrieval.TopK, a.logger)
	orch.SetNotifier(&taskNotifier{hub: a.hub, sessions: sessionSvc, logger: a.logger})

	api := r.Group(apiPrefix)
	session.NewHandler(sessionSvc).RegisterRoutes(api, authMW)
	artifact.NewHandler(artifacts).RegisterRoutes(api, authMW)
	notetask.NewHandler(orch, sessionSvc).RegisterRoutes(api, authMW)
	gateway.RegisterRoutes(r, api, a.hub)
	a.registerCronRoutes(api, authMW)

	return orch, nil
}

// registerCronRoutes exposes the maintenance jobs: their schedule and
// last outcome, plus a manual trigger.
func (a *App) registerCronRoutes(api *gin.RouterGroup, auth gin.HandlerFunc) {
	jobs := api.Group("/cron")
	jobs.Use(auth)
	jobs.GET("", func(c *gin.Context) {
		response.OK(c, a.sched.List())
	})
	jobs.POST("/:name/run", func(c *gin.Context) {
		// Jobs outlive the request, so they run on their own context.
		if err := a.sched.Run(context.Background(), c.Param("name")); err != nil {
			response.NotFoundMsg(c, err.Error())
			return
		}
		response.OK(c, gin.H{"triggered": true})
	})
}

var processStart = time.Now()

// taskNotifier pushes task events to the socket hub and advances the
// session status once a note document completes.
type taskNotifier struct {
	hub      *gateway.Hub
	sessions *session.Service
	logger   *zap.Logger
}

func (n *taskNotifier) NotifyTask(ev notetask.Event) {
	n.hub.NotifyTask(ev)
	if ev.Terminal && ev.Status == taskstore.StatusCompleted {
		go func() {
			if err := n.sessions.MarkNotesReady(context.Background(), ev.SessionID); err != nil {
				n.logger.Warn("mark session notes_ready failed",
					zap.String("session_id", ev.SessionID), zap.Error(err))
			}
		}()
	}
}
