package lands

import (
	"context"

	"github.com/dmitrijs2005/landvault/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, land *models.Land) (*models.Land, error)
	GetByID(ctx context.Context, id string) (*models.Land, error)
}
