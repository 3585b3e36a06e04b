package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/store"
)

// queryer is the subset of *sql.Tx the row primitives need.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const (
	tenantColumns      = `id, name, status, created_at, updated_at`
	accountColumns     = `id, tenant_id, name, status, parent_account_id, created_at, updated_at`
	transactionColumns = `id, tenant_id, account_id, memo, currency, COALESCE(external_id, ''), status, created_at, updated_at, posted_at, cancelled_at`
)

type reader struct {
	q queryer
}

var _ store.Reader = reader{}

type scanner interface {
	Scan(dest ...any) error
}

func scanTenant(row scanner) (*models.Tenant, error) {
	var t models.Tenant
	if err := row.Scan(&t.ID, &t.Name, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if isNoRows(err) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: scan tenant: %w", err)
	}
	return &t, nil
}

func scanAccount(row scanner) (*models.Account, error) {
	var (
		a      models.Account
		parent sql.NullString
	)
	if err := row.Scan(&a.ID, &a.TenantID, &a.Name, &a.Status, &parent, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if isNoRows(err) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: scan account: %w", err)
	}
	if parent.Valid {
		a.ParentAccountID = &parent.String
	}
	return &a, nil
}

func scanTransaction(row scanner) (*models.Transaction, error) {
	var (
		t           models.Transaction
		postedAt    sql.NullTime
		cancelledAt sql.NullTime
	)
	err := row.Scan(&t.ID, &t.TenantID, &t.AccountID, &t.Memo, &t.Currency, &t.ExternalID,
		&t.Status, &t.CreatedAt, &t.UpdatedAt, &postedAt, &cancelledAt)
	if err != nil {
		if isNoRows(err) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: scan transaction: %w", err)
	}
	if postedAt.Valid {
		t.PostedAt = &postedAt.Time
	}
	if cancelledAt.Valid {
		t.CancelledAt = &cancelledAt.Time
	}
	return &t, nil
}

func (r reader) GetTenant(ctx context.Context, tenantID string) (*models.Tenant, error) {
	return scanTenant(r.q.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM ledger_tenants WHERE id = $1`, tenantID))
}

func (r reader) GetAccount(ctx context.Context, tenantID, accountID string) (*models.Account, error) {
	return scanAccount(r.q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM ledger_accounts WHERE tenant_id = $1 AND id = $2`, tenantID, accountID))
}

func (r reader) ListAccounts(ctx context.Context, tenantID string) ([]*models.Account, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM ledger_accounts WHERE tenant_id = $1 ORDER BY created_at, id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]*models.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list accounts: %w", err)
	}
	return accounts, nil
}

func (r reader) GetTransaction(ctx context.Context, tenantID, transactionID string) (*models.Transaction, error) {
	t, err := scanTransaction(r.q.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM ledger_transactions WHERE tenant_id = $1 AND id = $2`,
		tenantID, transactionID))
	if err != nil {
		return nil, err
	}
	return r.withEntries(ctx, t)
}

func (r reader) GetTransactionByExternalID(ctx context.Context, tenantID, externalID string) (*models.Transaction, error) {
	t, err := scanTransaction(r.q.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM ledger_transactions WHERE tenant_id = $1 AND external_id = $2`,
		tenantID, externalID))
	if err != nil {
		return nil, err
	}
	return r.withEntries(ctx, t)
}

func (r reader) withEntries(ctx context.Context, t *models.Transaction) (*models.Transaction, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, transaction_id, position, account_id, direction, amount
		FROM ledger_entries WHERE transaction_id = $1 ORDER BY position`, t.ID)
	if err != nil {
		return nil, fmt.Errorf("postgres: load entries: %w", err)
	}
	defer rows.Close()

	t.Entries = make([]models.Entry, 0, 2)
	for rows.Next() {
		var e models.Entry
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.Position, &e.AccountID, &e.Direction, &e.Amount); err != nil {
			return nil, fmt.Errorf("postgres: scan entry: %w", err)
		}
		t.Entries = append(t.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: load entries: %w", err)
	}
	return t, nil
}

func (r reader) ListPostedEntries(ctx context.Context, tenantID string, accountIDs []string) ([]models.PostedEntry, error) {
	entries := make([]models.PostedEntry, 0)
	if len(accountIDs) == 0 {
		return entries, nil
	}

	rows, err := r.q.QueryContext(ctx, `
		SELECT e.transaction_id, e.account_id, e.direction, e.amount
		FROM ledger_entries e
		JOIN ledger_transactions t ON t.id = e.transaction_id
		WHERE t.tenant_id = $1 AND e.tenant_id = $1 AND t.status = $2 AND e.account_id = ANY($3)`,
		tenantID, models.StatusPosted, pq.Array(accountIDs))
	if err != nil {
		return nil, fmt.Errorf("postgres: list posted entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e models.PostedEntry
		if err := rows.Scan(&e.TransactionID, &e.AccountID, &e.Direction, &e.Amount); err != nil {
			return nil, fmt.Errorf("postgres: scan posted entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list posted entries: %w", err)
	}
	return entries, nil
}

// tx adds the write and locking primitives on top of reader.
type tx struct {
	reader
}

var _ store.Tx = (*tx)(nil)

func (t *tx) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO ledger_tenants (`+tenantColumns+`) VALUES ($1, $2, $3, $4, $5)`,
		tenant.ID, tenant.Name, tenant.Status, tenant.CreatedAt, tenant.UpdatedAt)
	if err != nil {
		return classify(fmt.Errorf("postgres: insert tenant: %w", err))
	}
	return nil
}

func (t *tx) UpdateTenant(ctx context.Context, tenant *models.Tenant) error {
	result, err := t.q.ExecContext(ctx,
		`UPDATE ledger_tenants SET name = $1, status = $2, updated_at = $3 WHERE id = $4`,
		tenant.Name, tenant.Status, tenant.UpdatedAt, tenant.ID)
	if err != nil {
		return classify(fmt.Errorf("postgres: update tenant: %w", err))
	}
	return expectOneRow(result, models.ErrNotFound)
}

func (t *tx) LockTenant(ctx context.Context, tenantID string) (*models.Tenant, error) {
	tenant, err := scanTenant(t.q.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM ledger_tenants WHERE id = $1 FOR UPDATE`, tenantID))
	if err != nil {
		return nil, classify(err)
	}
	return tenant, nil
}

func (t *tx) CreateAccount(ctx context.Context, a *models.Account) error {
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO ledger_accounts (`+accountColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.TenantID, a.Name, a.Status, nullString(a.ParentID()), a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return classify(fmt.Errorf("postgres: insert account: %w", err))
	}
	return nil
}

func (t *tx) UpdateAccount(ctx context.Context, a *models.Account) error {
	result, err := t.q.ExecContext(ctx,
		`UPDATE ledger_accounts SET name = $1, status = $2, parent_account_id = $3, updated_at = $4
		WHERE tenant_id = $5 AND id = $6`,
		a.Name, a.Status, nullString(a.ParentID()), a.UpdatedAt, a.TenantID, a.ID)
	if err != nil {
		return classify(fmt.Errorf("postgres: update account: %w", err))
	}
	return expectOneRow(result, models.ErrNotFound)
}

func (t *tx) CreateTransaction(ctx context.Context, txn *models.Transaction) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO ledger_transactions
			(id, tenant_id, account_id, memo, currency, external_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9)`,
		txn.ID, txn.TenantID, txn.AccountID, txn.Memo, txn.Currency, txn.ExternalID,
		txn.Status, txn.CreatedAt, txn.UpdatedAt)
	if err != nil {
		return classify(fmt.Errorf("postgres: insert transaction: %w", err))
	}

	for _, e := range txn.Entries {
		_, err := t.q.ExecContext(ctx, `
			INSERT INTO ledger_entries (id, transaction_id, tenant_id, position, account_id, direction, amount)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			e.ID, txn.ID, txn.TenantID, e.Position, e.AccountID, e.Direction, e.Amount)
		if err != nil {
			return classify(fmt.Errorf("postgres: insert entry %d: %w", e.Position, err))
		}
	}
	return nil
}

func (t *tx) LockTransaction(ctx context.Context, tenantID, transactionID string) (*models.Transaction, error) {
	txn, err := scanTransaction(t.q.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM ledger_transactions WHERE tenant_id = $1 AND id = $2 FOR UPDATE`,
		tenantID, transactionID))
	if err != nil {
		return nil, classify(err)
	}
	return t.withEntries(ctx, txn)
}

func (t *tx) UpdateTransactionStatus(ctx context.Context, txn *models.Transaction, from models.TransactionStatus) error {
	result, err := t.q.ExecContext(ctx, `
		UPDATE ledger_transactions
		SET status = $1, updated_at = $2, posted_at = $3, cancelled_at = $4
		WHERE tenant_id = $5 AND id = $6 AND status = $7`,
		txn.Status, txn.UpdatedAt, txn.PostedAt, txn.CancelledAt, txn.TenantID, txn.ID, from)
	if err != nil {
		return classify(fmt.Errorf("postgres: update transaction status: %w", err))
	}
	return expectOneRow(result, models.ErrStatusConflict)
}

func expectOneRow(result sql.Result, missing error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: rows affected: %w", err)
	}
	if n == 0 {
		return missing
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
