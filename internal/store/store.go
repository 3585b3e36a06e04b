// Package store defines the persistence capability the ledger core consumes:
// an atomic unit of work, snapshot reads, and row primitives keyed by id and
// scoped by tenant.
package store

import (
	"context"
	"errors"

	"github.com/ruralpay/ledger/internal/models"
)

// ErrClosed is returned by every operation on a closed store.
var ErrClosed = errors.New("ledger: store is closed")

// Reader holds the read primitives. Every read made through one Reader
// observes the same committed state.
type Reader interface {
	GetTenant(ctx context.Context, tenantID string) (*models.Tenant, error)
	GetAccount(ctx context.Context, tenantID, accountID string) (*models.Account, error)
	ListAccounts(ctx context.Context, tenantID string) ([]*models.Account, error)
	GetTransaction(ctx context.Context, tenantID, transactionID string) (*models.Transaction, error)
	GetTransactionByExternalID(ctx context.Context, tenantID, externalID string) (*models.Transaction, error)
	// ListPostedEntries returns the entries of POSTED transactions booked
	// against any of accountIDs.
	ListPostedEntries(ctx context.Context, tenantID string, accountIDs []string) ([]models.PostedEntry, error)
}

// Tx is the unit of work handed to RunInTx. Writes become visible to other
// readers only when the unit commits, and then all at once.
type Tx interface {
	Reader

	CreateTenant(ctx context.Context, t *models.Tenant) error
	UpdateTenant(ctx context.Context, t *models.Tenant) error
	// LockTenant serializes hierarchy changes within a tenant.
	LockTenant(ctx context.Context, tenantID string) (*models.Tenant, error)

	CreateAccount(ctx context.Context, a *models.Account) error
	UpdateAccount(ctx context.Context, a *models.Account) error

	// CreateTransaction writes the header and all entries.
	CreateTransaction(ctx context.Context, t *models.Transaction) error
	// LockTransaction reads the transaction holding its row lock until the
	// unit of work ends. It fails with models.ErrContention when the lock is
	// not acquired within the store's lock wait.
	LockTransaction(ctx context.Context, tenantID, transactionID string) (*models.Transaction, error)
	// UpdateTransactionStatus moves t from `from` to t.Status. It fails with
	// models.ErrStatusConflict when the stored status is no longer `from`.
	UpdateTransactionStatus(ctx context.Context, t *models.Transaction, from models.TransactionStatus) error
}

// Store is the ledger's entity store. The handle is opened at process start
// and closed at shutdown.
type Store interface {
	// RunInTx runs fn as one atomic unit: all of its writes commit, or none do.
	// The commit itself is not interrupted by ctx cancellation.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// View runs fn against a consistent read-only snapshot.
	View(ctx context.Context, fn func(ctx context.Context, r Reader) error) error

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
