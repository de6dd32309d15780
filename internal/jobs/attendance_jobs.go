package jobs

import (
	"context"
	"fmt"

	"gangkeeper-backend/internal/logger"
)

// startDueSessions activates scheduled sessions whose start time has passed.
func (jr *JobRunner) startDueSessions(ctx context.Context) error {
	started, err := jr.services.Attendance.StartDue(ctx, jr.now())
	if err != nil {
		return fmt.Errorf("failed to start due sessions: %w", err)
	}
	if started > 0 {
		logger.Info("Started due sessions", "count", started)
	}
	return nil
}

// closeDueSessions closes ended sessions and resumes stale CLOSING sweeps.
func (jr *JobRunner) closeDueSessions(ctx context.Context) error {
	closed, err := jr.services.Attendance.CloseDue(ctx, jr.now())
	if err != nil {
		return fmt.Errorf("failed to close due sessions: %w", err)
	}
	if closed > 0 {
		logger.Info("Closed due sessions", "count", closed)
	}
	return nil
}
