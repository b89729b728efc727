package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/landvault/internal/common"
	"github.com/dmitrijs2005/landvault/internal/dbx"
	"github.com/dmitrijs2005/landvault/internal/logging"
	sc "github.com/dmitrijs2005/landvault/internal/server/config"
	"github.com/dmitrijs2005/landvault/internal/server/models"
	"github.com/dmitrijs2005/landvault/internal/server/notifications"
	"github.com/dmitrijs2005/landvault/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// ReviewService owns the review lock lifecycle: claiming a version for
// review (stealing the group lock if another version holds it) and
// completing the review with a decision.
type ReviewService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	config      *sc.Config
	logger      logging.Logger
	notifier    notifications.Dispatcher
}

// NewReviewService constructs a ReviewService using repositories and server
// config.
func NewReviewService(db *sql.DB, m repomanager.RepositoryManager, cfg *sc.Config, logger logging.Logger, notifier notifications.Dispatcher) *ReviewService {
	return &ReviewService{
		db:          db,
		repomanager: m,
		config:      cfg,
		logger:      logger,
		notifier:    notifier,
	}
}

// ClaimResult reports the outcome of a claim. ReleasedVersion is set when
// the claim displaced an in-progress review of another version in the same
// group.
type ClaimResult struct {
	Message         string
	ReleasedVersion *int
}

// CompletionResult reports the outcome of a completed review.
type CompletionResult struct {
	Message   string
	NewStatus models.VersionStatus
}

// Claim puts a document version under review on behalf of reviewerID. At
// most one version per (land, type, slot) group may be under review: if a
// different version in the group holds the lock, it is released and the
// target locked in the same transaction, so the group never shows two locks
// or zero locks mid-claim. Claiming the already-locked version itself
// returns ErrAlreadyUnderReview; versions in a terminal status cannot be
// claimed.
func (s *ReviewService) Claim(ctx context.Context, documentID, reviewerID string) (*ClaimResult, error) {
	if reviewerID == "" {
		return nil, fmt.Errorf("reviewer id is required: %w", common.ErrValidation)
	}

	s.logger.Debug(ctx, "claiming review", "document_id", documentID, "reviewer_id", reviewerID)

	result := &ClaimResult{}
	var claimed, released *models.DocumentVersion

	err := dbx.WithTxRetry(ctx, s.db, nil, s.config.TxMaxRetries, s.config.TxRetryBaseDelay, func(ctx context.Context, tx dbx.DBTX) error {
		result.ReleasedVersion = nil
		released = nil
		docRepo := s.repomanager.Documents(tx)
		auditRepo := s.repomanager.Audits(tx)

		doc, err := docRepo.GetByIDForUpdate(ctx, documentID)
		if err != nil {
			return err
		}

		switch doc.VersionStatus {
		case models.StatusUnderReview:
			return fmt.Errorf("version %d: %w", doc.VersionNumber, common.ErrAlreadyUnderReview)
		case models.StatusActive:
		default:
			return fmt.Errorf("version %d has status %s and cannot be reviewed: %w",
				doc.VersionNumber, doc.VersionStatus, common.ErrValidation)
		}

		other, err := docRepo.FindUnderReviewInGroupForUpdate(ctx, doc.LandID, doc.DocumentType, doc.DocSlot)
		if err != nil {
			return err
		}

		now := time.Now().UTC()

		if other != nil {
			releaseReason := fmt.Sprintf("review moved to version %d", doc.VersionNumber)
			if err := docRepo.ReleaseReviewLock(ctx, other.ID, releaseReason); err != nil {
				return err
			}
			oldStatus := models.StatusUnderReview
			newStatus := models.StatusActive
			err = auditRepo.Insert(ctx, &models.AuditEntry{
				ID:           uuid.New().String(),
				DocumentID:   other.ID,
				LandID:       other.LandID,
				Action:       models.AuditReviewUnlock,
				OldStatus:    &oldStatus,
				NewStatus:    &newStatus,
				ChangedBy:    reviewerID,
				ChangeReason: releaseReason,
				Metadata: map[string]any{
					"released_version": other.VersionNumber,
					"claimed_version":  doc.VersionNumber,
					"operation":        "claim_review",
				},
			})
			if err != nil {
				return err
			}
			releasedVersion := other.VersionNumber
			result.ReleasedVersion = &releasedVersion
			other.VersionStatus = models.StatusActive
			other.ReviewLockedBy = nil
			other.ReviewLockedAt = nil
			released = other
		}

		claimReason := fmt.Sprintf("version %d claimed for review", doc.VersionNumber)
		if err := docRepo.AcquireReviewLock(ctx, doc.ID, reviewerID, now, claimReason); err != nil {
			return err
		}

		oldStatus := doc.VersionStatus
		newStatus := models.StatusUnderReview
		err = auditRepo.Insert(ctx, &models.AuditEntry{
			ID:           uuid.New().String(),
			DocumentID:   doc.ID,
			LandID:       doc.LandID,
			Action:       models.AuditReviewLock,
			OldStatus:    &oldStatus,
			NewStatus:    &newStatus,
			ChangedBy:    reviewerID,
			ChangeReason: claimReason,
			Metadata: map[string]any{
				"version_number": doc.VersionNumber,
				"operation":      "claim_review",
			},
		})
		if err != nil {
			return err
		}

		doc.VersionStatus = models.StatusUnderReview
		doc.ReviewLockedBy = &reviewerID
		doc.ReviewLockedAt = &now
		claimed = doc
		return nil
	}, isGroupContention)
	if err != nil {
		if dbx.IsSerializationFailure(err) || isGroupContention(err) {
			return nil, common.ErrConflict
		}
		if errors.Is(err, common.ErrorNotFound) ||
			errors.Is(err, common.ErrAlreadyUnderReview) ||
			errors.Is(err, common.ErrValidation) ||
			errors.Is(err, common.ErrNotUnderReview) {
			return nil, err
		}
		return nil, fmt.Errorf("error claiming review: %w", err)
	}

	if result.ReleasedVersion != nil {
		result.Message = fmt.Sprintf("version %d claimed for review, version %d released", claimed.VersionNumber, *result.ReleasedVersion)
	} else {
		result.Message = fmt.Sprintf("version %d claimed for review", claimed.VersionNumber)
	}

	if released != nil {
		releaseNote := fmt.Sprintf("review moved to version %d", claimed.VersionNumber)
		notifyBestEffort(ctx, s.logger, s.notifier.NotifyStatusChange, eventFor(released, reviewerID, releaseNote))
	}
	notifyBestEffort(ctx, s.logger, s.notifier.NotifyReviewLock, eventFor(claimed, reviewerID, result.Message))

	return result, nil
}

// statusForResult maps a review decision to the resulting version status.
func statusForResult(result models.ReviewResult) (models.VersionStatus, error) {
	switch result {
	case models.ReviewApprove:
		return models.StatusApproved, nil
	case models.ReviewReject:
		return models.StatusRejected, nil
	case models.ReviewRequestChanges:
		return models.StatusActive, nil
	default:
		return "", fmt.Errorf("unknown review result %q: %w", result, common.ErrValidation)
	}
}

// Complete finishes the review held by reviewerID on documentID. The lock
// must be held by this reviewer; completing a version that is not under
// review, or locked by someone else, fails with ErrNotUnderReview. The
// decision, the status change and the lock release land in one transaction
// together with a status_change audit entry.
func (s *ReviewService) Complete(ctx context.Context, documentID, reviewerID string, result models.ReviewResult, comments string) (*CompletionResult, error) {
	if reviewerID == "" {
		return nil, fmt.Errorf("reviewer id is required: %w", common.ErrValidation)
	}
	newStatus, err := statusForResult(result)
	if err != nil {
		return nil, err
	}

	var completed *models.DocumentVersion

	err = dbx.WithTxRetry(ctx, s.db, nil, s.config.TxMaxRetries, s.config.TxRetryBaseDelay, func(ctx context.Context, tx dbx.DBTX) error {
		docRepo := s.repomanager.Documents(tx)
		auditRepo := s.repomanager.Audits(tx)

		doc, err := docRepo.GetByIDForUpdate(ctx, documentID)
		if err != nil {
			return err
		}

		if doc.VersionStatus != models.StatusUnderReview {
			return fmt.Errorf("version %d: %w", doc.VersionNumber, common.ErrNotUnderReview)
		}
		if doc.ReviewLockedBy == nil || *doc.ReviewLockedBy != reviewerID {
			return fmt.Errorf("review of version %d is held by another reviewer: %w",
				doc.VersionNumber, common.ErrNotUnderReview)
		}

		reason := fmt.Sprintf("review completed: %s", result)
		var approvedAt *time.Time
		if newStatus == models.StatusApproved {
			now := time.Now().UTC()
			approvedAt = &now
		}

		if err := docRepo.CompleteReview(ctx, doc.ID, reviewerID, newStatus, comments, reason, approvedAt); err != nil {
			return err
		}

		oldStatus := models.StatusUnderReview
		err = auditRepo.Insert(ctx, &models.AuditEntry{
			ID:           uuid.New().String(),
			DocumentID:   doc.ID,
			LandID:       doc.LandID,
			Action:       models.AuditStatusChange,
			OldStatus:    &oldStatus,
			NewStatus:    &newStatus,
			ChangedBy:    reviewerID,
			ChangeReason: reason,
			Metadata: map[string]any{
				"version_number": doc.VersionNumber,
				"review_result":  string(result),
				"comments":       comments,
				"operation":      "complete_review",
			},
		})
		if err != nil {
			return err
		}

		doc.VersionStatus = newStatus
		doc.ReviewLockedBy = nil
		doc.ReviewLockedAt = nil
		doc.AdminComments = comments
		completed = doc
		return nil
	})
	if err != nil {
		if dbx.IsSerializationFailure(err) {
			return nil, common.ErrConflict
		}
		if errors.Is(err, common.ErrorNotFound) || errors.Is(err, common.ErrNotUnderReview) {
			return nil, err
		}
		return nil, fmt.Errorf("error completing review: %w", err)
	}

	res := &CompletionResult{
		Message:   fmt.Sprintf("version %d review completed: %s", completed.VersionNumber, newStatus),
		NewStatus: newStatus,
	}

	notifyBestEffort(ctx, s.logger, s.notifier.NotifyStatusChange, eventFor(completed, reviewerID, res.Message))

	return res, nil
}
