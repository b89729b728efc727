package audits

import (
	"context"

	"github.com/dmitrijs2005/landvault/internal/server/models"
)

type Repository interface {
	Insert(ctx context.Context, entry *models.AuditEntry) error
	ListByDocument(ctx context.Context, documentID string) ([]*models.AuditEntry, error)
	DeleteByDocumentIDs(ctx context.Context, documentIDs []string) (int, error)
}
