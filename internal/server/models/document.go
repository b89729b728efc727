// Package models defines the persisted entities of the LandVault server:
// land parcels, versioned documents and audit trail entries.
package models

import "time"

// VersionStatus is the lifecycle state of a single document version.
type VersionStatus string

const (
	StatusActive      VersionStatus = "active"
	StatusUnderReview VersionStatus = "under_review"
	StatusApproved    VersionStatus = "approved"
	StatusRejected    VersionStatus = "rejected"
	StatusArchived    VersionStatus = "archived"
)

// ReviewResult is the outcome a reviewer submits when completing a review.
type ReviewResult string

const (
	ReviewApprove        ReviewResult = "approve"
	ReviewReject         ReviewResult = "reject"
	ReviewRequestChanges ReviewResult = "request_changes"
)

// DefaultSlot is the implicit slot for document types that allow a single
// concurrent instance.
const DefaultSlot = "D1"

// DocumentVersion is one uploaded file instance. Versions of the same
// logical document share (LandID, DocumentType, DocSlot); within a group the
// version numbers are contiguous from 1 and exactly one row is the latest.
type DocumentVersion struct {
	ID                  string
	LandID              string
	DocumentType        string
	DocSlot             string
	VersionNumber       int
	IsLatestVersion     bool
	ParentDocumentID    *string
	VersionStatus       VersionStatus
	ReviewLockedBy      *string
	ReviewLockedAt      *time.Time
	VersionChangeReason string
	AdminComments       string
	ApprovedBy          *string
	ApprovedAt          *time.Time
	FileName            string
	FileSize            int64
	StorageKey          string
	UploadedBy          string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// FileMetadata describes the uploaded file backing a new version. The bytes
// themselves live in object storage; the server only records metadata and
// mints presigned URLs.
type FileMetadata struct {
	FileName    string
	FileSize    int64
	ContentType string
}

// SlotStatus is one row of the per-land dashboard summary: the latest
// version of each (document type, slot) group and its review state.
type SlotStatus struct {
	DocumentType  string
	DocSlot       string
	DocumentID    string
	VersionNumber int
	VersionStatus VersionStatus
	ReviewedBy    *string
}
