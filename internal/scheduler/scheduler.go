// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/licadmin-backend/internal/config"
	"github.com/javajoker/licadmin-backend/internal/services"
)

// Scheduler runs the provider synchronization on a cron schedule in the
// configured timezone. A tick that lands while a run is still active is
// skipped, not queued.
type Scheduler struct {
	cron        *cron.Cron
	syncService *services.SyncService
	cfg         config.SyncConfig
}

func New(cfg config.SyncConfig, syncService *services.SyncService) (*Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid sync timezone %q: %w", cfg.Timezone, err)
	}

	s := &Scheduler{
		cron:        cron.New(cron.WithLocation(loc)),
		syncService: syncService,
		cfg:         cfg,
	}

	if _, err := s.cron.AddFunc(cfg.Schedule, s.runOnce); err != nil {
		return nil, fmt.Errorf("invalid sync schedule %q: %w", cfg.Schedule, err)
	}

	return s, nil
}

// Start begins scheduling ticks. It returns immediately.
func (s *Scheduler) Start() {
	if !s.cfg.Enabled {
		logrus.Info("Scheduled sync disabled")
		return
	}

	s.cron.Start()
	logrus.WithFields(logrus.Fields{
		"schedule": s.cfg.Schedule,
		"timezone": s.cfg.Timezone,
	}).Info("Scheduled sync started")
}

// Stop halts scheduling and waits for an in-flight tick to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) runOnce() {
	result, err := s.syncService.RunSync(context.Background())
	if errors.Is(err, services.ErrSyncAlreadyRunning) {
		logrus.Warn("Scheduled sync skipped, previous run still active")
		return
	}
	if result == nil {
		logrus.WithError(err).Error("Scheduled sync failed to start")
		return
	}
	if err != nil {
		logrus.WithError(err).WithField("run_id", result.RunID).Error("Scheduled sync failed")
		return
	}

	logrus.WithFields(logrus.Fields{
		"run_id":  result.RunID,
		"fetched": result.Fetched,
		"created": result.Created,
		"updated": result.Updated,
		"failed":  result.Failed,
	}).Info("Scheduled sync finished")
}
