package notifications

import (
	"context"

	"github.com/dmitrijs2005/landvault/internal/logging"
)

// LogDispatcher writes every event to the structured log. It stands in for
// the real delivery collaborator in development and tests, and doubles as a
// delivery audit when chained in front of another dispatcher.
type LogDispatcher struct {
	logger logging.Logger
}

// NewLogDispatcher constructs a dispatcher that logs events via logger.
func NewLogDispatcher(logger logging.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger.With("component", "notifications")}
}

func (d *LogDispatcher) NotifyVersionUpload(ctx context.Context, event Event) error {
	d.logger.Info(ctx, "version uploaded",
		"land_id", event.LandID, "document_type", event.DocumentType, "doc_slot", event.DocSlot,
		"version_number", event.VersionNumber, "actor_id", event.ActorID, "reason", event.Reason)
	return nil
}

func (d *LogDispatcher) NotifyStatusChange(ctx context.Context, event Event) error {
	d.logger.Info(ctx, "version status changed",
		"land_id", event.LandID, "document_type", event.DocumentType, "doc_slot", event.DocSlot,
		"version_number", event.VersionNumber, "actor_id", event.ActorID,
		"new_status", event.NewStatus, "reason", event.Reason)
	return nil
}

func (d *LogDispatcher) NotifyReviewLock(ctx context.Context, event Event) error {
	d.logger.Info(ctx, "version claimed for review",
		"land_id", event.LandID, "document_type", event.DocumentType, "doc_slot", event.DocSlot,
		"version_number", event.VersionNumber, "actor_id", event.ActorID, "reason", event.Reason)
	return nil
}
