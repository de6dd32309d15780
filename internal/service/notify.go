package service

import (
	"context"
	"fmt"

	"gangkeeper-backend/internal/domain"
	"gangkeeper-backend/internal/logger"
)

// notify delivers best-effort. The mutation it reports on has already committed.
func notify(ctx context.Context, n Notifier, notice domain.Notice) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, notice); err != nil {
		logger.WarnContext(ctx, "Notification failed",
			"gangID", notice.GangID, "subject", notice.Subject,
			"error", fmt.Errorf("%w: %v", domain.ErrExternalCollaborator, err))
	}
}
