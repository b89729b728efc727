// Package notifications defines the contract the lifecycle services use to
// announce committed transitions. Delivery (recipient resolution, email,
// in-app feeds) belongs to an external collaborator; every implementation
// must treat calls as best-effort and never block or fail the operation
// that triggered them.
package notifications

import "context"

// Event carries the facts a dispatcher needs to build a message. ActorID is
// the user who triggered the transition; Reason is the human-readable note
// attached to it.
type Event struct {
	LandID        string
	DocumentType  string
	DocSlot       string
	VersionNumber int
	ActorID       string
	NewStatus     string
	Reason        string
}

// Dispatcher delivers lifecycle events to interested parties (land owner,
// assigned reviewers, administrators). Errors are reported back only so the
// caller can log them; they must never roll back the committed operation.
type Dispatcher interface {
	NotifyVersionUpload(ctx context.Context, event Event) error
	NotifyStatusChange(ctx context.Context, event Event) error
	NotifyReviewLock(ctx context.Context, event Event) error
}
