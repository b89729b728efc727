// Package audits provides the PostgreSQL-backed repository for the
// append-only audit trail. Entries are inserted in the same transaction as
// the mutation they describe and never updated; the only delete path exists
// so the hard-delete purge can clear entries ahead of their document rows.
package audits

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/landvault/internal/dbx"
	"github.com/dmitrijs2005/landvault/internal/server/models"
)

// PostgresRepository implements audit trail storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert appends one audit entry.
func (r *PostgresRepository) Insert(ctx context.Context, entry *models.AuditEntry) error {
	metadata := entry.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}

	query := `
		INSERT INTO audit_trail
			(id, document_id, land_id, action_type, old_status, new_status,
			 old_version_number, new_version_number, changed_by, change_reason, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb)
		RETURNING created_at
	`
	err = r.db.QueryRowContext(ctx, query,
		entry.ID, entry.DocumentID, entry.LandID, entry.Action, entry.OldStatus, entry.NewStatus,
		entry.OldVersionNumber, entry.NewVersionNumber, entry.ChangedBy, entry.ChangeReason, string(encoded),
	).Scan(&entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ListByDocument returns the audit entries for one document, newest first.
func (r *PostgresRepository) ListByDocument(ctx context.Context, documentID string) ([]*models.AuditEntry, error) {
	query := `
		SELECT id, document_id, land_id, action_type, old_status, new_status,
			old_version_number, new_version_number, changed_by, change_reason, metadata, created_at
		FROM audit_trail
		WHERE document_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to select audit entries: %w", err)
	}
	defer rows.Close()

	var result []*models.AuditEntry
	for rows.Next() {
		entry := &models.AuditEntry{}
		var metadataRaw []byte
		if err := rows.Scan(
			&entry.ID, &entry.DocumentID, &entry.LandID, &entry.Action, &entry.OldStatus, &entry.NewStatus,
			&entry.OldVersionNumber, &entry.NewVersionNumber, &entry.ChangedBy, &entry.ChangeReason,
			&metadataRaw, &entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(metadataRaw) > 0 {
			if err := json.Unmarshal(metadataRaw, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal audit metadata: %w", err)
			}
		}
		result = append(result, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteByDocumentIDs removes all audit entries for the given documents and
// returns how many rows were removed. Only the purge path calls this,
// immediately before deleting the document rows themselves.
func (r *PostgresRepository) DeleteByDocumentIDs(ctx context.Context, documentIDs []string) (int, error) {
	if len(documentIDs) == 0 {
		return 0, nil
	}
	query := `DELETE FROM audit_trail WHERE document_id = ANY($1)`
	res, err := r.db.ExecContext(ctx, query, documentIDs)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return int(n), nil
}
