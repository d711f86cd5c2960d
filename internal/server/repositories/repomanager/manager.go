package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/worldkeeper/internal/dbx"
	"github.com/dmitrijs2005/worldkeeper/internal/server/repositories/instances"
	"github.com/dmitrijs2005/worldkeeper/internal/server/repositories/users"
)

// RepositoryManager vends repository implementations bound to a DBTX, so
// services can run a repository over the pool or over a transaction, and
// exposes a schema migration hook.
type RepositoryManager interface {
	Users(db dbx.DBTX) users.Repository
	Instances(db dbx.DBTX) instances.Repository
	RunMigrations(ctx context.Context, db *sql.DB) error
}
