package documents

import (
	"context"
	"time"

	"github.com/dmitrijs2005/landvault/internal/server/models"
)

type Repository interface {
	Insert(ctx context.Context, doc *models.DocumentVersion) error
	GetByID(ctx context.Context, id string) (*models.DocumentVersion, error)
	GetByIDForUpdate(ctx context.Context, id string) (*models.DocumentVersion, error)
	GetLatestInGroupForUpdate(ctx context.Context, landID, documentType, docSlot string) (*models.DocumentVersion, error)
	FindUnderReviewInGroupForUpdate(ctx context.Context, landID, documentType, docSlot string) (*models.DocumentVersion, error)
	ClearLatest(ctx context.Context, id string) error
	ListVersions(ctx context.Context, landID, documentType string) ([]*models.DocumentVersion, error)
	AcquireReviewLock(ctx context.Context, id, reviewerID string, lockedAt time.Time, reason string) error
	ReleaseReviewLock(ctx context.Context, id, reason string) error
	CompleteReview(ctx context.Context, id, reviewerID string, newStatus models.VersionStatus, adminComments, reason string, approvedAt *time.Time) error
	SlotSummary(ctx context.Context, landID string) ([]*models.SlotStatus, error)
	SelectGroupIDsForUpdate(ctx context.Context, landID, documentType, docSlot string) ([]string, error)
	DeleteByIDs(ctx context.Context, ids []string) (int, error)
}
