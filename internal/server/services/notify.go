package services

import (
	"context"

	"github.com/dmitrijs2005/landvault/internal/logging"
	"github.com/dmitrijs2005/landvault/internal/server/models"
	"github.com/dmitrijs2005/landvault/internal/server/notifications"
)

// notifyBestEffort runs one dispatcher call after a successful commit.
// Failures are logged and swallowed: the lifecycle operation has already
// committed and must not be reported as failed.
func notifyBestEffort(ctx context.Context, logger logging.Logger, fn func(context.Context, notifications.Event) error, event notifications.Event) {
	if err := fn(ctx, event); err != nil {
		logger.Warn(ctx, "notification delivery failed",
			"land_id", event.LandID, "document_type", event.DocumentType,
			"version_number", event.VersionNumber, "error", err)
	}
}

func eventFor(doc *models.DocumentVersion, actorID, reason string) notifications.Event {
	return notifications.Event{
		LandID:        doc.LandID,
		DocumentType:  doc.DocumentType,
		DocSlot:       doc.DocSlot,
		VersionNumber: doc.VersionNumber,
		ActorID:       actorID,
		NewStatus:     string(doc.VersionStatus),
		Reason:        reason,
	}
}
