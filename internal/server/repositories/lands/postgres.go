// Package lands provides a PostgreSQL-backed repository for land parcel
// records.
package lands

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/landvault/internal/common"
	"github.com/dmitrijs2005/landvault/internal/dbx"
	"github.com/dmitrijs2005/landvault/internal/server/models"
)

// PostgresRepository implements land storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new land parcel and returns it with the generated ID.
func (r *PostgresRepository) Create(ctx context.Context, land *models.Land) (*models.Land, error) {
	query :=
		`INSERT INTO lands (parcel_number, owner_id)
		 VALUES ($1, $2)
		 RETURNING id, created_at
		 `

	err := r.db.QueryRowContext(ctx, query, land.ParcelNumber, land.OwnerID).
		Scan(&land.ID, &land.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return land, nil
}

// GetByID returns the land with the given ID, or common.ErrorNotFound if it
// does not exist.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Land, error) {
	query :=
		`SELECT id, parcel_number, owner_id, created_at FROM lands
		 WHERE id = $1
		 `

	land := &models.Land{}
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&land.ID, &land.ParcelNumber, &land.OwnerID, &land.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return land, nil
}
