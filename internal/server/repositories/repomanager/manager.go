package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/gophaccounts/internal/dbx"
	"github.com/dmitrijs2005/gophaccounts/internal/server/repositories/authtokens"
	"github.com/dmitrijs2005/gophaccounts/internal/server/repositories/emailaddresses"
	"github.com/dmitrijs2005/gophaccounts/internal/server/repositories/users"
)

// RepositoryManager hands out repositories bound to a DBTX, so the same
// service code runs against the pool or inside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	EmailAddresses(db dbx.DBTX) emailaddresses.Repository
	AuthTokens(db dbx.DBTX) authtokens.Repository
}
