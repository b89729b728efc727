package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/landvault/internal/common"
	"github.com/dmitrijs2005/landvault/internal/dbx"
)

// PurgeResult reports how many rows a purge removed.
type PurgeResult struct {
	DocumentsDeleted int
	AuditsDeleted    int
}

// PurgeDocumentChain irreversibly deletes every version in one
// (land, type, slot) group together with its audit entries. Audit rows go
// first so the foreign key on audit_trail does not block the version
// delete. No audit entry survives a purge, the history is gone.
func (s *VersionService) PurgeDocumentChain(ctx context.Context, landID, documentType, docSlot string) (*PurgeResult, error) {
	slot, err := normalizeSlot(documentType, docSlot)
	if err != nil {
		return nil, err
	}

	if _, err := s.repomanager.Lands(s.db).GetByID(ctx, landID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("land %s: %w", landID, common.ErrorNotFound)
		}
		return nil, fmt.Errorf("error looking up land: %w", err)
	}

	result := &PurgeResult{}

	err = dbx.WithTxRetry(ctx, s.db, nil, s.config.TxMaxRetries, s.config.TxRetryBaseDelay, func(ctx context.Context, tx dbx.DBTX) error {
		docRepo := s.repomanager.Documents(tx)
		auditRepo := s.repomanager.Audits(tx)

		ids, err := docRepo.SelectGroupIDsForUpdate(ctx, landID, documentType, slot)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return fmt.Errorf("no versions in group %s/%s/%s: %w", landID, documentType, slot, common.ErrorNotFound)
		}

		audits, err := auditRepo.DeleteByDocumentIDs(ctx, ids)
		if err != nil {
			return err
		}

		docs, err := docRepo.DeleteByIDs(ctx, ids)
		if err != nil {
			return err
		}

		result.DocumentsDeleted = docs
		result.AuditsDeleted = audits
		return nil
	})
	if err != nil {
		if dbx.IsSerializationFailure(err) {
			return nil, common.ErrConflict
		}
		if errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("error purging document chain: %w", err)
	}

	s.logger.Info(ctx, "document chain purged",
		"land_id", landID,
		"document_type", documentType,
		"doc_slot", slot,
		"documents_deleted", result.DocumentsDeleted,
		"audits_deleted", result.AuditsDeleted,
	)

	return result, nil
}
