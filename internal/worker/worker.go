// Package worker runs the background maintenance queue: purging expired
// refresh tokens and completed sessions past their retention window.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/Liberatex/Rotation/internal/config"
	"github.com/Liberatex/Rotation/internal/models"
	"github.com/Liberatex/Rotation/internal/tasks"
)

type SweepHandler struct {
	db *gorm.DB
}

func NewSweepHandler(db *gorm.DB) *SweepHandler {
	return &SweepHandler{db: db}
}

func (h *SweepHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload tasks.SweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal sweep payload: %w", err)
	}

	now := time.Now()

	tokens := h.db.WithContext(ctx).
		Where("expires_at < ? OR revoked = ?", now, true).
		Delete(&models.RefreshToken{})
	if tokens.Error != nil {
		return fmt.Errorf("purge refresh tokens: %w", tokens.Error)
	}

	var sessions *gorm.DB
	if payload.SessionRetentionDays > 0 {
		cutoff := now.AddDate(0, 0, -payload.SessionRetentionDays)
		sessions = h.db.WithContext(ctx).
			Where("status = ? AND updated_at < ?", models.SessionStatusCompleted, cutoff).
			Delete(&models.Session{})
		if sessions.Error != nil {
			return fmt.Errorf("purge completed sessions: %w", sessions.Error)
		}
	}

	fields := logrus.Fields{"tokens_purged": tokens.RowsAffected}
	if sessions != nil {
		fields["sessions_purged"] = sessions.RowsAffected
	}
	logrus.WithFields(fields).Info("maintenance sweep complete")
	return nil
}

// Run starts the asynq server and the periodic scheduler; it blocks until
// either fails.
func Run(cfg *config.Config, db *gorm.DB) error {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 2,
		Logger:      logrus.StandardLogger(),
	})

	mux := asynq.NewServeMux()
	mux.Handle(tasks.TypeMaintenanceSweep, NewSweepHandler(db))

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Logger: logrus.StandardLogger(),
	})
	sweep, err := tasks.NewMaintenanceSweepTask(cfg.SessionRetentionDays)
	if err != nil {
		return err
	}
	spec := fmt.Sprintf("@every %dm", cfg.SweepIntervalMin)
	if _, err := scheduler.Register(spec, sweep); err != nil {
		return err
	}

	errCh := make(chan error, 2)
	go func() { errCh <- srv.Run(mux) }()
	go func() { errCh <- scheduler.Run() }()
	return <-errCh
}
