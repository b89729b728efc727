package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/landvault/internal/dbx"
	"github.com/dmitrijs2005/landvault/internal/server/repositories/audits"
	"github.com/dmitrijs2005/landvault/internal/server/repositories/documents"
	"github.com/dmitrijs2005/landvault/internal/server/repositories/lands"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	ValidateSchema(context.Context, *sql.DB) error
	Lands(db dbx.DBTX) lands.Repository
	Documents(db dbx.DBTX) documents.Repository
	Audits(db dbx.DBTX) audits.Repository
}
