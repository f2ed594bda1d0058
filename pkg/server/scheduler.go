package server

import (
	"context"
	"fmt"

	"github.com/robfig/cron"
)

// DefaultSchedule re-runs the pipeline at the start of every hour, the
// cadence the metrics feed is written at.
const DefaultSchedule = "@hourly"

// ParseSchedule parses a standard five field cron expression or a
// descriptor such as @hourly.
func ParseSchedule(spec string) (cron.Schedule, error) {
	if spec == "" {
		return nil, fmt.Errorf("schedule must be specified")
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %v", spec, err)
	}
	return sched, nil
}

// RunSchedule triggers a run every time sched fires until ctx is done. A
// tick arriving while a run is still executing is skipped.
func (s *Server) RunSchedule(ctx context.Context, sched cron.Schedule) {
	logger := s.logger.WithField("component", "scheduler")
	for {
		now := s.clock.Now()
		next := sched.Next(now)
		logger.Debugf("next run scheduled at %s", next)
		select {
		case <-ctx.Done():
			logger.Info("scheduler stopped")
			return
		case <-s.clock.After(next.Sub(now)):
		}

		runID, err := s.TriggerRun()
		if err != nil {
			logger.WithError(err).Warn("skipping scheduled run")
			continue
		}
		logger.WithField("runID", runID).Info("triggered scheduled run")
	}
}
