// Package services contains the server-side business logic: the version
// lifecycle manager, the review lock manager and the purge path. Each
// operation runs as one unit of work against the repositories, with the
// transaction boundary owned here via dbx.WithTx / dbx.WithTxRetry.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/landvault/internal/common"
	"github.com/dmitrijs2005/landvault/internal/dbx"
	"github.com/dmitrijs2005/landvault/internal/logging"
	sc "github.com/dmitrijs2005/landvault/internal/server/config"
	"github.com/dmitrijs2005/landvault/internal/server/models"
	"github.com/dmitrijs2005/landvault/internal/server/notifications"
	"github.com/dmitrijs2005/landvault/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// VersionService is the version lifecycle manager: it creates new document
// versions, maintains the latest pointer per (land, type, slot) group and
// serves the read side (version lists, audit trail, slot summary).
type VersionService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	config      *sc.Config
	logger      logging.Logger
	notifier    notifications.Dispatcher
}

// NewVersionService constructs a VersionService using repositories and
// server config.
func NewVersionService(db *sql.DB, m repomanager.RepositoryManager, cfg *sc.Config, logger logging.Logger, notifier notifications.Dispatcher) *VersionService {
	return &VersionService{
		db:          db,
		repomanager: m,
		config:      cfg,
		logger:      logger,
		notifier:    notifier,
	}
}

// CreateVersionInput carries everything needed to register a new version.
type CreateVersionInput struct {
	LandID       string
	DocumentType string
	DocSlot      string
	Metadata     models.FileMetadata
	UploadedBy   string
	Notes        string
}

// CreateVersionResult is the created row plus a presigned PUT URL the caller
// uploads the file bytes to.
type CreateVersionResult struct {
	Document  *models.DocumentVersion
	UploadURL string
}

// CreateVersion registers a new document version in its group: the previous
// latest (if any) is locked, loses its latest flag and becomes the parent of
// the new row, which gets the next contiguous version number, status active
// and the latest flag. One version_upload audit entry is written in the same
// transaction; the upload notification is emitted after commit, best-effort.
func (s *VersionService) CreateVersion(ctx context.Context, in CreateVersionInput) (*CreateVersionResult, error) {
	docSlot, err := normalizeSlot(in.DocumentType, in.DocSlot)
	if err != nil {
		return nil, err
	}

	land, err := s.repomanager.Lands(s.db).GetByID(ctx, in.LandID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("land %s: %w", in.LandID, common.ErrorNotFound)
		}
		return nil, fmt.Errorf("error looking up land: %w", err)
	}

	storageKey, uploadURL, err := s.GetPresignedPutURL(ctx, land.ID)
	if err != nil {
		return nil, fmt.Errorf("error preparing upload url: %w", err)
	}

	doc := &models.DocumentVersion{
		ID:                  uuid.New().String(),
		LandID:              land.ID,
		DocumentType:        in.DocumentType,
		DocSlot:             docSlot,
		IsLatestVersion:     true,
		VersionStatus:       models.StatusActive,
		VersionChangeReason: in.Notes,
		FileName:            in.Metadata.FileName,
		FileSize:            in.Metadata.FileSize,
		StorageKey:          storageKey,
		UploadedBy:          in.UploadedBy,
	}

	err = dbx.WithTxRetry(ctx, s.db, nil, s.config.TxMaxRetries, s.config.TxRetryBaseDelay, func(ctx context.Context, tx dbx.DBTX) error {
		docRepo := s.repomanager.Documents(tx)
		auditRepo := s.repomanager.Audits(tx)

		prev, err := docRepo.GetLatestInGroupForUpdate(ctx, land.ID, in.DocumentType, docSlot)
		if err != nil {
			return err
		}

		doc.VersionNumber = 1
		doc.ParentDocumentID = nil
		var oldVersion *int
		if prev != nil {
			doc.VersionNumber = prev.VersionNumber + 1
			doc.ParentDocumentID = &prev.ID
			oldVersion = &prev.VersionNumber
			if err := docRepo.ClearLatest(ctx, prev.ID); err != nil {
				return err
			}
		}

		if err := docRepo.Insert(ctx, doc); err != nil {
			return err
		}

		newStatus := doc.VersionStatus
		return auditRepo.Insert(ctx, &models.AuditEntry{
			ID:               uuid.New().String(),
			DocumentID:       doc.ID,
			LandID:           doc.LandID,
			Action:           models.AuditVersionUpload,
			NewStatus:        &newStatus,
			OldVersionNumber: oldVersion,
			NewVersionNumber: &doc.VersionNumber,
			ChangedBy:        in.UploadedBy,
			ChangeReason:     in.Notes,
			Metadata: map[string]any{
				"file_name":     doc.FileName,
				"file_size":     doc.FileSize,
				"document_type": doc.DocumentType,
				"doc_slot":      doc.DocSlot,
				"is_latest":     true,
				"operation":     "create_version",
			},
		})
	}, isGroupContention)
	if err != nil {
		if dbx.IsSerializationFailure(err) || isGroupContention(err) {
			return nil, common.ErrConflict
		}
		return nil, fmt.Errorf("error creating version: %w", err)
	}

	notifyBestEffort(ctx, s.logger, s.notifier.NotifyVersionUpload, eventFor(doc, in.UploadedBy, in.Notes))

	return &CreateVersionResult{Document: doc, UploadURL: uploadURL}, nil
}

// GetVersion returns a single document version by ID.
func (s *VersionService) GetVersion(ctx context.Context, documentID string) (*models.DocumentVersion, error) {
	return s.repomanager.Documents(s.db).GetByID(ctx, documentID)
}

// ListVersions returns every version for a land and document type, newest
// first within each slot. Read-only.
func (s *VersionService) ListVersions(ctx context.Context, landID, documentType string) ([]*models.DocumentVersion, error) {
	return s.repomanager.Documents(s.db).ListVersions(ctx, landID, documentType)
}

// ListAuditTrail returns the audit entries for one document, newest first.
func (s *VersionService) ListAuditTrail(ctx context.Context, documentID string) ([]*models.AuditEntry, error) {
	if _, err := s.repomanager.Documents(s.db).GetByID(ctx, documentID); err != nil {
		return nil, err
	}
	return s.repomanager.Audits(s.db).ListByDocument(ctx, documentID)
}

// SlotStatusSummary returns the latest version of every slot for one land,
// grouped by document type. The rows come straight from the source-of-truth
// table, no caching.
func (s *VersionService) SlotStatusSummary(ctx context.Context, landID string) (map[string][]*models.SlotStatus, error) {
	if _, err := s.repomanager.Lands(s.db).GetByID(ctx, landID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("land %s: %w", landID, common.ErrorNotFound)
		}
		return nil, fmt.Errorf("error looking up land: %w", err)
	}

	rows, err := s.repomanager.Documents(s.db).SlotSummary(ctx, landID)
	if err != nil {
		return nil, fmt.Errorf("error building slot summary: %w", err)
	}

	summary := make(map[string][]*models.SlotStatus)
	for _, row := range rows {
		summary[row.DocumentType] = append(summary[row.DocumentType], row)
	}
	return summary, nil
}
