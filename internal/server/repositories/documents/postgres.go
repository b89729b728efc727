// Package documents provides the PostgreSQL-backed repository for document
// version rows. All group-level coordination (locking the latest row,
// finding the version currently under review) happens here with explicit
// SELECT ... FOR UPDATE queries; callers are expected to run the mutating
// sequences inside one transaction via dbx.WithTx.
package documents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/landvault/internal/common"
	"github.com/dmitrijs2005/landvault/internal/dbx"
	"github.com/dmitrijs2005/landvault/internal/server/models"
)

const documentColumns = `id, land_id, document_type, doc_slot, version_number, is_latest_version,
		parent_document_id, version_status, review_locked_by, review_locked_at,
		version_change_reason, admin_comments, approved_by, approved_at,
		file_name, file_size, storage_key, uploaded_by, created_at, updated_at`

// PostgresRepository implements document version storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.DocumentVersion, error) {
	doc := &models.DocumentVersion{}
	err := row.Scan(
		&doc.ID, &doc.LandID, &doc.DocumentType, &doc.DocSlot, &doc.VersionNumber, &doc.IsLatestVersion,
		&doc.ParentDocumentID, &doc.VersionStatus, &doc.ReviewLockedBy, &doc.ReviewLockedAt,
		&doc.VersionChangeReason, &doc.AdminComments, &doc.ApprovedBy, &doc.ApprovedAt,
		&doc.FileName, &doc.FileSize, &doc.StorageKey, &doc.UploadedBy, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Insert stores a new document version row.
func (r *PostgresRepository) Insert(ctx context.Context, doc *models.DocumentVersion) error {
	query := `
		INSERT INTO document_versions
			(id, land_id, document_type, doc_slot, version_number, is_latest_version,
			 parent_document_id, version_status, version_change_reason,
			 file_name, file_size, storage_key, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		doc.ID, doc.LandID, doc.DocumentType, doc.DocSlot, doc.VersionNumber, doc.IsLatestVersion,
		doc.ParentDocumentID, doc.VersionStatus, doc.VersionChangeReason,
		doc.FileName, doc.FileSize, doc.StorageKey, doc.UploadedBy,
	).Scan(&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetByID returns the document with the given ID, or common.ErrorNotFound.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.DocumentVersion, error) {
	query := `SELECT ` + documentColumns + ` FROM document_versions WHERE id = $1`
	doc, err := scanDocument(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return doc, nil
}

// GetByIDForUpdate is GetByID with a row lock; it must run inside a
// transaction.
func (r *PostgresRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.DocumentVersion, error) {
	query := `SELECT ` + documentColumns + ` FROM document_versions WHERE id = $1 FOR UPDATE`
	doc, err := scanDocument(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return doc, nil
}

// GetLatestInGroupForUpdate locks and returns the latest version in the
// (land, type, slot) group, or (nil, nil) if the group is empty.
func (r *PostgresRepository) GetLatestInGroupForUpdate(ctx context.Context, landID, documentType, docSlot string) (*models.DocumentVersion, error) {
	query := `SELECT ` + documentColumns + `
		FROM document_versions
		WHERE land_id = $1 AND document_type = $2 AND doc_slot = $3 AND is_latest_version
		FOR UPDATE`
	doc, err := scanDocument(r.db.QueryRowContext(ctx, query, landID, documentType, docSlot))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return doc, nil
}

// FindUnderReviewInGroupForUpdate locks and returns the version currently
// under review in the group, or (nil, nil) if there is none.
func (r *PostgresRepository) FindUnderReviewInGroupForUpdate(ctx context.Context, landID, documentType, docSlot string) (*models.DocumentVersion, error) {
	query := `SELECT ` + documentColumns + `
		FROM document_versions
		WHERE land_id = $1 AND document_type = $2 AND doc_slot = $3 AND version_status = 'under_review'
		FOR UPDATE`
	doc, err := scanDocument(r.db.QueryRowContext(ctx, query, landID, documentType, docSlot))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return doc, nil
}

// ClearLatest flips is_latest_version off for the given row, prior to
// inserting its successor.
func (r *PostgresRepository) ClearLatest(ctx context.Context, id string) error {
	query := `
		UPDATE document_versions
		SET is_latest_version = FALSE, updated_at = now()
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res)
}

// ListVersions returns all versions for a land and document type, newest
// first.
func (r *PostgresRepository) ListVersions(ctx context.Context, landID, documentType string) ([]*models.DocumentVersion, error) {
	query := `SELECT ` + documentColumns + `
		FROM document_versions
		WHERE land_id = $1 AND document_type = $2
		ORDER BY doc_slot, version_number DESC`
	rows, err := r.db.QueryContext(ctx, query, landID, documentType)
	if err != nil {
		return nil, fmt.Errorf("failed to select versions: %w", err)
	}
	defer rows.Close()

	var result []*models.DocumentVersion
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// AcquireReviewLock transitions an active version to under_review and
// records the lock holder. The status guard keeps the transition legal even
// if the caller's earlier read was stale.
func (r *PostgresRepository) AcquireReviewLock(ctx context.Context, id, reviewerID string, lockedAt time.Time, reason string) error {
	query := `
		UPDATE document_versions
		SET version_status = 'under_review', review_locked_by = $2, review_locked_at = $3,
			version_change_reason = $4, updated_at = now()
		WHERE id = $1 AND version_status = 'active'
	`
	res, err := r.db.ExecContext(ctx, query, id, reviewerID, lockedAt, reason)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res)
}

// ReleaseReviewLock returns an under_review version to the active pool and
// clears the lock fields.
func (r *PostgresRepository) ReleaseReviewLock(ctx context.Context, id, reason string) error {
	query := `
		UPDATE document_versions
		SET version_status = 'active', review_locked_by = NULL, review_locked_at = NULL,
			version_change_reason = $2, updated_at = now()
		WHERE id = $1 AND version_status = 'under_review'
	`
	res, err := r.db.ExecContext(ctx, query, id, reason)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res)
}

// CompleteReview finishes a review held by reviewerID, moving the version to
// newStatus and clearing the lock. If the row is not under review by that
// reviewer anymore, no row is updated and common.ErrNotUnderReview is
// returned.
func (r *PostgresRepository) CompleteReview(ctx context.Context, id, reviewerID string, newStatus models.VersionStatus, adminComments, reason string, approvedAt *time.Time) error {
	query := `
		UPDATE document_versions
		SET version_status = $3, review_locked_by = NULL, review_locked_at = NULL,
			admin_comments = $4, version_change_reason = $5,
			approved_by = CASE WHEN $6::timestamptz IS NULL THEN approved_by ELSE $2 END,
			approved_at = COALESCE($6, approved_at),
			updated_at = now()
		WHERE id = $1 AND version_status = 'under_review' AND review_locked_by = $2
	`
	res, err := r.db.ExecContext(ctx, query, id, reviewerID, newStatus, adminComments, reason, approvedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrNotUnderReview
	}
	return nil
}

// SlotSummary returns the latest version of every (document type, slot)
// group for one land, for the dashboard aggregate.
func (r *PostgresRepository) SlotSummary(ctx context.Context, landID string) ([]*models.SlotStatus, error) {
	query := `
		SELECT document_type, doc_slot, id, version_number, version_status, review_locked_by
		FROM document_versions
		WHERE land_id = $1 AND is_latest_version
		ORDER BY document_type, doc_slot
	`
	rows, err := r.db.QueryContext(ctx, query, landID)
	if err != nil {
		return nil, fmt.Errorf("failed to select slot summary: %w", err)
	}
	defer rows.Close()

	var result []*models.SlotStatus
	for rows.Next() {
		item := &models.SlotStatus{}
		if err := rows.Scan(
			&item.DocumentType, &item.DocSlot, &item.DocumentID,
			&item.VersionNumber, &item.VersionStatus, &item.ReviewedBy,
		); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// SelectGroupIDsForUpdate locks all versions of a group and returns their
// IDs, newest first. Used by the purge path.
func (r *PostgresRepository) SelectGroupIDsForUpdate(ctx context.Context, landID, documentType, docSlot string) ([]string, error) {
	query := `
		SELECT id FROM document_versions
		WHERE land_id = $1 AND document_type = $2 AND doc_slot = $3
		ORDER BY version_number DESC
		FOR UPDATE
	`
	rows, err := r.db.QueryContext(ctx, query, landID, documentType, docSlot)
	if err != nil {
		return nil, fmt.Errorf("failed to select group ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// DeleteByIDs removes the given version rows and returns how many were
// removed. The audit_trail foreign key cascades, but the purge deletes audit
// entries first so it can report both row counts.
func (r *PostgresRepository) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := `DELETE FROM document_versions WHERE id = ANY($1)`
	res, err := r.db.ExecContext(ctx, query, ids)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return int(n), nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
	return nil
}
