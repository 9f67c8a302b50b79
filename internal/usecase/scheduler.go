package usecase

import (
	"context"
	"log/slog"
	"time"

	"AnnounceRelay/internal/ports"
)

// Scheduler wires the periodic driver with the coordinator's autonomous tick.
type Scheduler struct {
	driver      ports.Scheduler
	coordinator *PipelineCoordinator
	logger      *slog.Logger
}

// NewScheduler returns a helper to start/stop the autonomous loop.
func NewScheduler(driver ports.Scheduler, coordinator *PipelineCoordinator, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{driver: driver, coordinator: coordinator, logger: logger}
}

// Start registers the tick with the provided driver.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.coordinator == nil {
		return nil
	}

	job := func(jobCtx context.Context, trigger time.Time) {
		result, err := s.coordinator.Tick(jobCtx, trigger)
		if err != nil {
			s.logger.Warn("autonomous tick failed", "result", result, "error", err)
			return
		}
		s.logger.Debug("autonomous tick", "result", result)
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying driver.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
