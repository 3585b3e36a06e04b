// Package memory is an in-process implementation of store.Store. A single
// writer slot serializes units of work; readers take a snapshot under a read
// lock and never observe a partially applied unit.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/store"
)

var _ store.Store = (*Store)(nil)

const defaultLockWait = 2 * time.Second

type Store struct {
	mu sync.RWMutex

	tenants map[string]*models.Tenant
	// keyed by accountKey: account ids are unique within a tenant only
	accounts     map[string]*models.Account
	transactions map[string]*models.Transaction
	// tenantID + "/" + externalID -> transaction id
	externalIDs map[string]string

	writer   chan struct{}
	lockWait time.Duration
	closed   bool
}

type Option func(*Store)

// WithLockWait bounds how long RunInTx waits for the writer slot before
// failing with models.ErrContention.
func WithLockWait(d time.Duration) Option {
	return func(s *Store) {
		s.lockWait = d
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		tenants:      make(map[string]*models.Tenant),
		accounts:     make(map[string]*models.Account),
		transactions: make(map[string]*models.Transaction),
		externalIDs:  make(map[string]string),
		writer:       make(chan struct{}, 1),
		lockWait:     defaultLockWait,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if s.isClosed() {
		return store.ErrClosed
	}

	timer := time.NewTimer(s.lockWait)
	defer timer.Stop()
	select {
	case s.writer <- struct{}{}:
	case <-timer.C:
		return models.ErrContention
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.writer }()

	tx := newTx(s)
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tx.apply()
	return nil
}

func (s *Store) View(ctx context.Context, fn func(ctx context.Context, r store.Reader) error) error {
	if s.isClosed() {
		return store.ErrClosed
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(ctx, snapshot{s: s})
}

func (s *Store) Migrate(_ context.Context) error {
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	if s.isClosed() {
		return store.ErrClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func externalKey(tenantID, externalID string) string {
	return tenantID + "/" + externalID
}

func accountKey(tenantID, accountID string) string {
	return tenantID + "/" + accountID
}

// snapshot reads committed state. The caller holds s.mu for reading.
type snapshot struct {
	s *Store
}

func (r snapshot) GetTenant(_ context.Context, tenantID string) (*models.Tenant, error) {
	t, ok := r.s.tenants[tenantID]
	if !ok {
		return nil, models.ErrNotFound
	}
	c := *t
	return &c, nil
}

func (r snapshot) GetAccount(_ context.Context, tenantID, accountID string) (*models.Account, error) {
	a, ok := r.s.accounts[accountKey(tenantID, accountID)]
	if !ok {
		return nil, models.ErrNotFound
	}
	return a.Clone(), nil
}

func (r snapshot) ListAccounts(_ context.Context, tenantID string) ([]*models.Account, error) {
	result := make([]*models.Account, 0)
	for _, a := range r.s.accounts {
		if a.TenantID == tenantID {
			result = append(result, a.Clone())
		}
	}
	sortAccounts(result)
	return result, nil
}

func (r snapshot) GetTransaction(_ context.Context, tenantID, transactionID string) (*models.Transaction, error) {
	t, ok := r.s.transactions[transactionID]
	if !ok || t.TenantID != tenantID {
		return nil, models.ErrNotFound
	}
	return t.Clone(), nil
}

func (r snapshot) GetTransactionByExternalID(ctx context.Context, tenantID, externalID string) (*models.Transaction, error) {
	txID, ok := r.s.externalIDs[externalKey(tenantID, externalID)]
	if !ok {
		return nil, models.ErrNotFound
	}
	return r.GetTransaction(ctx, tenantID, txID)
}

func (r snapshot) ListPostedEntries(_ context.Context, tenantID string, accountIDs []string) ([]models.PostedEntry, error) {
	return postedEntries(r.s.transactions, tenantID, accountIDs), nil
}

func postedEntries(transactions map[string]*models.Transaction, tenantID string, accountIDs []string) []models.PostedEntry {
	want := make(map[string]struct{}, len(accountIDs))
	for _, id := range accountIDs {
		want[id] = struct{}{}
	}

	result := make([]models.PostedEntry, 0)
	for _, t := range transactions {
		if t.TenantID != tenantID || t.Status != models.StatusPosted {
			continue
		}
		for _, e := range t.Entries {
			if _, ok := want[e.AccountID]; !ok {
				continue
			}
			result = append(result, models.PostedEntry{
				TransactionID: t.ID,
				AccountID:     e.AccountID,
				Direction:     e.Direction,
				Amount:        e.Amount,
			})
		}
	}
	return result
}

func sortAccounts(accounts []*models.Account) {
	sort.Slice(accounts, func(i, j int) bool {
		if accounts[i].CreatedAt.Equal(accounts[j].CreatedAt) {
			return accounts[i].ID < accounts[j].ID
		}
		return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
	})
}
