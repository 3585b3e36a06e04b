package memory

import (
	"context"

	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/store"
)

// tx stages writes on top of the committed maps. Only the holder of the
// writer slot mutates committed state, so reads here need no lock beyond the
// one taken per map access.
type tx struct {
	s *Store

	tenants      map[string]*models.Tenant
	accounts     map[string]*models.Account
	transactions map[string]*models.Transaction
	externalIDs  map[string]string
}

var _ store.Tx = (*tx)(nil)

func newTx(s *Store) *tx {
	return &tx{
		s:            s,
		tenants:      make(map[string]*models.Tenant),
		accounts:     make(map[string]*models.Account),
		transactions: make(map[string]*models.Transaction),
		externalIDs:  make(map[string]string),
	}
}

// apply publishes the staged writes. The caller holds s.mu for writing.
func (t *tx) apply() {
	for id, v := range t.tenants {
		t.s.tenants[id] = v
	}
	for key, v := range t.accounts {
		t.s.accounts[key] = v
	}
	for id, v := range t.transactions {
		t.s.transactions[id] = v
	}
	for k, v := range t.externalIDs {
		t.s.externalIDs[k] = v
	}
}

func (t *tx) committed() snapshot {
	return snapshot{s: t.s}
}

func (t *tx) GetTenant(ctx context.Context, tenantID string) (*models.Tenant, error) {
	if v, ok := t.tenants[tenantID]; ok {
		c := *v
		return &c, nil
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return t.committed().GetTenant(ctx, tenantID)
}

func (t *tx) GetAccount(ctx context.Context, tenantID, accountID string) (*models.Account, error) {
	if v, ok := t.accounts[accountKey(tenantID, accountID)]; ok {
		return v.Clone(), nil
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return t.committed().GetAccount(ctx, tenantID, accountID)
}

func (t *tx) ListAccounts(ctx context.Context, tenantID string) ([]*models.Account, error) {
	t.s.mu.RLock()
	base, err := t.committed().ListAccounts(ctx, tenantID)
	t.s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	result := make([]*models.Account, 0, len(base)+len(t.accounts))
	for _, a := range base {
		if staged, ok := t.accounts[accountKey(tenantID, a.ID)]; ok {
			result = append(result, staged.Clone())
			continue
		}
		result = append(result, a)
	}
	for _, a := range t.accounts {
		if a.TenantID != tenantID {
			continue
		}
		if !containsAccount(base, a.ID) {
			result = append(result, a.Clone())
		}
	}
	sortAccounts(result)
	return result, nil
}

func (t *tx) GetTransaction(ctx context.Context, tenantID, transactionID string) (*models.Transaction, error) {
	if v, ok := t.transactions[transactionID]; ok {
		if v.TenantID != tenantID {
			return nil, models.ErrNotFound
		}
		return v.Clone(), nil
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return t.committed().GetTransaction(ctx, tenantID, transactionID)
}

func (t *tx) GetTransactionByExternalID(ctx context.Context, tenantID, externalID string) (*models.Transaction, error) {
	if id, ok := t.externalIDs[externalKey(tenantID, externalID)]; ok {
		return t.GetTransaction(ctx, tenantID, id)
	}
	t.s.mu.RLock()
	id, ok := t.s.externalIDs[externalKey(tenantID, externalID)]
	t.s.mu.RUnlock()
	if !ok {
		return nil, models.ErrNotFound
	}
	return t.GetTransaction(ctx, tenantID, id)
}

func (t *tx) ListPostedEntries(_ context.Context, tenantID string, accountIDs []string) ([]models.PostedEntry, error) {
	t.s.mu.RLock()
	merged := make(map[string]*models.Transaction, len(t.s.transactions)+len(t.transactions))
	for id, v := range t.s.transactions {
		merged[id] = v
	}
	t.s.mu.RUnlock()
	for id, v := range t.transactions {
		merged[id] = v
	}
	return postedEntries(merged, tenantID, accountIDs), nil
}

func (t *tx) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	if _, err := t.GetTenant(ctx, tenant.ID); err == nil {
		return models.ErrAlreadyExists
	}
	c := *tenant
	t.tenants[tenant.ID] = &c
	return nil
}

func (t *tx) UpdateTenant(ctx context.Context, tenant *models.Tenant) error {
	if _, err := t.GetTenant(ctx, tenant.ID); err != nil {
		return err
	}
	c := *tenant
	t.tenants[tenant.ID] = &c
	return nil
}

// LockTenant only reads: the writer slot already excludes other writers.
func (t *tx) LockTenant(ctx context.Context, tenantID string) (*models.Tenant, error) {
	return t.GetTenant(ctx, tenantID)
}

func (t *tx) CreateAccount(ctx context.Context, a *models.Account) error {
	key := accountKey(a.TenantID, a.ID)
	t.s.mu.RLock()
	_, exists := t.s.accounts[key]
	t.s.mu.RUnlock()
	if _, staged := t.accounts[key]; exists || staged {
		return models.ErrAlreadyExists
	}
	t.accounts[key] = a.Clone()
	return nil
}

func (t *tx) UpdateAccount(ctx context.Context, a *models.Account) error {
	if _, err := t.GetAccount(ctx, a.TenantID, a.ID); err != nil {
		return err
	}
	t.accounts[accountKey(a.TenantID, a.ID)] = a.Clone()
	return nil
}

func (t *tx) CreateTransaction(ctx context.Context, txn *models.Transaction) error {
	t.s.mu.RLock()
	_, exists := t.s.transactions[txn.ID]
	t.s.mu.RUnlock()
	if _, staged := t.transactions[txn.ID]; exists || staged {
		return models.ErrAlreadyExists
	}
	if txn.ExternalID != "" {
		if _, err := t.GetTransactionByExternalID(ctx, txn.TenantID, txn.ExternalID); err == nil {
			return models.ErrAlreadyExists
		}
		t.externalIDs[externalKey(txn.TenantID, txn.ExternalID)] = txn.ID
	}
	t.transactions[txn.ID] = txn.Clone()
	return nil
}

// LockTransaction only reads: the writer slot was acquired with a bounded
// wait in RunInTx, which is where contention surfaces for this store.
func (t *tx) LockTransaction(ctx context.Context, tenantID, transactionID string) (*models.Transaction, error) {
	return t.GetTransaction(ctx, tenantID, transactionID)
}

func (t *tx) UpdateTransactionStatus(ctx context.Context, txn *models.Transaction, from models.TransactionStatus) error {
	current, err := t.GetTransaction(ctx, txn.TenantID, txn.ID)
	if err != nil {
		return err
	}
	if current.Status != from {
		return models.ErrStatusConflict
	}
	// entries are never rewritten by a status change
	updated := current.Clone()
	updated.Status = txn.Status
	updated.UpdatedAt = txn.UpdatedAt
	updated.PostedAt = txn.PostedAt
	updated.CancelledAt = txn.CancelledAt
	t.transactions[txn.ID] = updated.Clone()
	return nil
}

func containsAccount(accounts []*models.Account, id string) bool {
	for _, a := range accounts {
		if a.ID == id {
			return true
		}
	}
	return false
}
