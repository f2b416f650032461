package syncer

import (
	"context"
	"errors"
	"fmt"

	"bitbucket.org/mmdatafocus/tally_sync_agent/models"
	"bitbucket.org/mmdatafocus/tally_sync_agent/utils"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scheduler drives the background sync loop on a fixed period. Overlap
// is handled by the orchestrator's running guard, so a slow run simply
// causes the next tick to be discarded.
type Scheduler struct {
	orchestrator *Orchestrator
	logger       *logrus.Logger
	cron         *cron.Cron
	entryID      cron.EntryID
}

func NewScheduler(orchestrator *Orchestrator, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		orchestrator: orchestrator,
		logger:       logger,
		cron:         cron.New(),
	}
}

// Start schedules a full orchestrated run every intervalMinutes.
func (s *Scheduler) Start(ctx context.Context, intervalMinutes int) error {
	spec := fmt.Sprintf("@every %dm", intervalMinutes)
	entryID, err := s.cron.AddFunc(spec, func() {
		_, _, err := s.orchestrator.Run(ctx, models.SyncTriggeredScheduled, nil)
		if err != nil && !errors.Is(err, utils.ErrSyncInProgress) {
			s.logger.WithFields(logrus.Fields{
				"module": "syncer",
			}).Error("scheduled sync failed to start: " + err.Error())
		}
	})
	if err != nil {
		return err
	}
	s.entryID = entryID
	s.cron.Start()
	s.logger.WithFields(logrus.Fields{
		"module":   "syncer",
		"interval": spec,
	}).Info("background sync scheduled")
	return nil
}

// Stop halts the timer loop; a run already in flight finishes on its own.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
