package models

import "time"

// AuditAction classifies the lifecycle transition an audit entry records.
type AuditAction string

const (
	AuditVersionUpload AuditAction = "version_upload"
	AuditStatusChange  AuditAction = "status_change"
	AuditReviewLock    AuditAction = "review_lock"
	AuditReviewUnlock  AuditAction = "review_unlock"
	AuditVersionUpdate AuditAction = "version_update"
)

// AuditEntry is an immutable record of one lifecycle transition. Entries are
// written in the same transaction as the mutation they describe and are
// never updated afterwards.
type AuditEntry struct {
	ID               string
	DocumentID       string
	LandID           string
	Action           AuditAction
	OldStatus        *VersionStatus
	NewStatus        *VersionStatus
	OldVersionNumber *int
	NewVersionNumber *int
	ChangedBy        string
	ChangeReason     string
	Metadata         map[string]any
	CreatedAt        time.Time
}
