package app

import (
	"context"
	"fmt"
	"time"

	"github.com/studycompanion/core/internal/config"
	"github.com/studycompanion/core/internal/modules/notetask"
	pkgcron "github.com/studycompanion/core/internal/pkg/cron"
	"go.uber.org/zap"
)

// registerCronJobs registers all scheduled background jobs.
func registerCronJobs(sched *pkgcron.Scheduler, orch *notetask.Orchestrator, cfg *config.AppConfig, logger *zap.Logger) {
	cronLogger := logger.Named("CronService")
	retention := time.Duration(cfg.Notes.TaskRetentionDays) * 24 * time.Hour

	sched.Register(pkgcron.Job{
		Name:        "purge_finished_tasks",
		Description: "drop finished generation tasks past the retention window",
		Interval:    time.Hour,
		Fn: func(ctx context.Context) error {
			removed, err := orch.PurgeFinished(ctx, retention)
			if err != nil {
				cronLogger.Warn("purge finished tasks failed", zap.Error(err))
				return err
			}
			if removed > 0 {
				cronLogger.Info(fmt.Sprintf("purged %d finished tasks", removed))
			}
			return nil
		},
	})
}
