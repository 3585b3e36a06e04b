package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/store"
)

// LedgerService is the only entry point that mutates the ledger. Every
// operation runs as one unit of work on the store; ledger errors are returned
// as-is and anything else is logged and surfaced as models.ErrRetryable.
type LedgerService struct {
	store      store.Store
	validator  *TransactionValidator
	inputs     *ValidationHelper
	projector  *Projector
	cache      BalanceCache
	audit      *AuditLogger
	logger     *zap.Logger
	currencies []string
	now        func() time.Time
	newID      func() string
}

type Option func(*LedgerService)

func WithLogger(logger *zap.Logger) Option {
	return func(s *LedgerService) {
		s.logger = logger
	}
}

func WithBalanceCache(cache BalanceCache) Option {
	return func(s *LedgerService) {
		s.cache = cache
	}
}

// WithCurrencies sets the supported currency codes. Defaults to USD.
func WithCurrencies(currencies []string) Option {
	return func(s *LedgerService) {
		s.currencies = currencies
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *LedgerService) {
		s.now = now
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(s *LedgerService) {
		s.newID = newID
	}
}

func NewLedgerService(s store.Store, opts ...Option) *LedgerService {
	svc := &LedgerService{
		store:  s,
		cache:  NoopBalanceCache(),
		logger: zap.NewNop(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(svc)
	}
	svc.validator = NewTransactionValidator(svc.currencies)
	svc.inputs = NewValidationHelper()
	svc.projector = NewProjector(s, svc.cache, svc.logger)
	svc.audit = NewAuditLogger(svc.logger)
	return svc
}

func (s *LedgerService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *LedgerService) CreateTenant(ctx context.Context, in CreateTenantInput) (*models.Tenant, error) {
	if err := s.inputs.ValidateInput(in); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	tenant := &models.Tenant{
		ID:        in.ID,
		Name:      in.Name,
		Status:    models.TenantStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if tenant.ID == "" {
		tenant.ID = s.newID()
	}

	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.CreateTenant(ctx, tenant)
	})
	if err != nil {
		return nil, s.fail("create_tenant", tenant.ID, tenant.ID, err)
	}

	s.audit.LogTenant(AuditTenantCreated, tenant)
	return tenant, nil
}

// SetTenantStatus toggles a tenant. Accounts of an INACTIVE tenant cannot own
// new transactions.
func (s *LedgerService) SetTenantStatus(ctx context.Context, in SetTenantStatusInput) (*models.Tenant, error) {
	if err := s.inputs.ValidateInput(in); err != nil {
		return nil, err
	}

	var tenant *models.Tenant
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		current, err := tx.LockTenant(ctx, in.TenantID)
		if err != nil {
			return err
		}
		current.Status = in.Status
		current.UpdatedAt = s.now().UTC()
		if err := tx.UpdateTenant(ctx, current); err != nil {
			return err
		}
		tenant = current
		return nil
	})
	if err != nil {
		return nil, s.fail("set_tenant_status", in.TenantID, in.TenantID, err)
	}

	s.audit.LogTenant(AuditTenantStatus, tenant)
	return tenant, nil
}

func (s *LedgerService) GetTenant(ctx context.Context, tenantID string) (*models.Tenant, error) {
	var tenant *models.Tenant
	err := s.store.View(ctx, func(ctx context.Context, r store.Reader) error {
		var err error
		tenant, err = r.GetTenant(ctx, tenantID)
		return err
	})
	if err != nil {
		return nil, s.fail("get_tenant", tenantID, tenantID, err)
	}
	return tenant, nil
}

func (s *LedgerService) CreateAccount(ctx context.Context, in CreateAccountInput) (*models.Account, error) {
	if err := s.inputs.ValidateInput(in); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	account := &models.Account{
		ID:        in.ID,
		TenantID:  in.TenantID,
		Name:      in.Name,
		Status:    models.AccountStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if account.ID == "" {
		account.ID = s.newID()
	}
	if in.ParentAccountID != "" {
		parent := in.ParentAccountID
		account.ParentAccountID = &parent
	}

	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.LockTenant(ctx, in.TenantID); err != nil {
			return err
		}
		if _, err := tx.GetAccount(ctx, in.TenantID, account.ID); err == nil {
			return models.ErrAlreadyExists
		} else if !errors.Is(err, models.ErrNotFound) {
			return err
		}
		if in.ParentAccountID != "" {
			accounts, err := tx.ListAccounts(ctx, in.TenantID)
			if err != nil {
				return err
			}
			if err := NewHierarchy(in.TenantID, accounts).ValidateParent(in.TenantID, account.ID, in.ParentAccountID); err != nil {
				return err
			}
		}
		return tx.CreateAccount(ctx, account)
	})
	if err != nil {
		return nil, s.fail("create_account", in.TenantID, account.ID, err)
	}

	s.audit.LogAccount(AuditAccountCreated, account)
	return account, nil
}

// ReparentAccount moves an account under a new parent, or to the root when
// ParentAccountID is empty. Hierarchy changes are serialized per tenant.
func (s *LedgerService) ReparentAccount(ctx context.Context, in ReparentAccountInput) (*models.Account, error) {
	if err := s.inputs.ValidateInput(in); err != nil {
		return nil, err
	}

	var (
		account *models.Account
		stale   []string
	)
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.LockTenant(ctx, in.TenantID); err != nil {
			return err
		}
		accounts, err := tx.ListAccounts(ctx, in.TenantID)
		if err != nil {
			return err
		}

		h := NewHierarchy(in.TenantID, accounts)
		current, ok := h.Account(in.AccountID)
		if !ok {
			return models.ErrNotFound
		}
		if err := h.ValidateParent(in.TenantID, in.AccountID, in.ParentAccountID); err != nil {
			return err
		}

		// tree balances change along both the old and the new parent chain
		oldChain, err := h.AncestorsOf(in.AccountID)
		if err != nil {
			return err
		}
		stale = append(stale, oldChain...)
		if in.ParentAccountID != "" {
			newChain, err := h.AncestorsOf(in.ParentAccountID)
			if err != nil {
				return err
			}
			stale = append(stale, in.ParentAccountID)
			stale = append(stale, newChain...)
		}

		updated := current.Clone()
		updated.ParentAccountID = nil
		if in.ParentAccountID != "" {
			parent := in.ParentAccountID
			updated.ParentAccountID = &parent
		}
		updated.UpdatedAt = s.now().UTC()
		if err := tx.UpdateAccount(ctx, updated); err != nil {
			return err
		}
		account = updated
		return nil
	})
	if err != nil {
		return nil, s.fail("reparent_account", in.TenantID, in.AccountID, err)
	}

	s.invalidate(ctx, in.TenantID, unique(stale))
	s.audit.LogAccount(AuditAccountReparented, account)
	return account, nil
}

func (s *LedgerService) SetAccountStatus(ctx context.Context, in SetAccountStatusInput) (*models.Account, error) {
	if err := s.inputs.ValidateInput(in); err != nil {
		return nil, err
	}

	var account *models.Account
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		// account rows are written under the tenant lock, as in ReparentAccount
		if _, err := tx.LockTenant(ctx, in.TenantID); err != nil {
			return err
		}
		current, err := tx.GetAccount(ctx, in.TenantID, in.AccountID)
		if err != nil {
			return err
		}
		current.Status = in.Status
		current.UpdatedAt = s.now().UTC()
		if err := tx.UpdateAccount(ctx, current); err != nil {
			return err
		}
		account = current
		return nil
	})
	if err != nil {
		return nil, s.fail("set_account_status", in.TenantID, in.AccountID, err)
	}

	s.audit.LogAccount(AuditAccountStatus, account)
	return account, nil
}

func (s *LedgerService) GetAccount(ctx context.Context, tenantID, accountID string) (*models.Account, error) {
	var account *models.Account
	err := s.store.View(ctx, func(ctx context.Context, r store.Reader) error {
		var err error
		account, err = r.GetAccount(ctx, tenantID, accountID)
		return err
	})
	if err != nil {
		return nil, s.fail("get_account", tenantID, accountID, err)
	}
	return account, nil
}

func (s *LedgerService) ListAccounts(ctx context.Context, tenantID string) ([]*models.Account, error) {
	var accounts []*models.Account
	err := s.store.View(ctx, func(ctx context.Context, r store.Reader) error {
		if _, err := r.GetTenant(ctx, tenantID); err != nil {
			return err
		}
		var err error
		accounts, err = r.ListAccounts(ctx, tenantID)
		return err
	})
	if err != nil {
		return nil, s.fail("list_accounts", tenantID, tenantID, err)
	}
	return accounts, nil
}

// CreateTransaction validates and stores a PENDING transaction with all of its
// entries. A request repeating the external id of a stored transaction
// returns that transaction unchanged.
func (s *LedgerService) CreateTransaction(ctx context.Context, in CreateTransactionInput) (*models.Transaction, error) {
	txn, _, err := s.SubmitTransaction(ctx, in)
	return txn, err
}

// SubmitTransaction is CreateTransaction that also reports whether the
// transaction was stored by this call (false on an external-id replay).
func (s *LedgerService) SubmitTransaction(ctx context.Context, in CreateTransactionInput) (*models.Transaction, bool, error) {
	if err := s.inputs.ValidateInput(in); err != nil {
		return nil, false, err
	}

	now := s.now().UTC()
	txn := &models.Transaction{
		ID:         s.newID(),
		TenantID:   in.TenantID,
		AccountID:  in.AccountID,
		Memo:       in.Memo,
		Currency:   in.Currency,
		ExternalID: in.ExternalID,
		Status:     models.StatusPending,
		Entries:    make([]models.Entry, 0, len(in.Entries)),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for i, e := range in.Entries {
		accountID := e.AccountID
		if accountID == "" {
			accountID = in.AccountID
		}
		txn.Entries = append(txn.Entries, models.Entry{
			ID:            s.newID(),
			TransactionID: txn.ID,
			Position:      i,
			AccountID:     accountID,
			Direction:     e.Direction,
			Amount:        e.Amount,
		})
	}

	var replayed *models.Transaction
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if in.ExternalID != "" {
			existing, err := tx.GetTransactionByExternalID(ctx, in.TenantID, in.ExternalID)
			if err == nil {
				replayed = existing
				return nil
			}
			if !errors.Is(err, models.ErrNotFound) {
				return err
			}
		}

		lookup, err := loadLookup(ctx, tx, in.TenantID, in.AccountID)
		if err != nil {
			return err
		}
		draft := TransactionDraft{
			TenantID:  txn.TenantID,
			AccountID: txn.AccountID,
			Currency:  txn.Currency,
			Entries:   txn.Entries,
		}
		if err := s.validator.Validate(draft, lookup); err != nil {
			return err
		}
		if err := checkEntryAccounts(ctx, tx, txn); err != nil {
			return err
		}
		return tx.CreateTransaction(ctx, txn)
	})
	// a concurrent request with the same external id won the insert
	if errors.Is(err, models.ErrAlreadyExists) && in.ExternalID != "" {
		if existing, ferr := s.findByExternalID(ctx, in.TenantID, in.ExternalID); ferr == nil {
			replayed, err = existing, nil
		}
	}
	if err != nil {
		return nil, false, s.fail("create_transaction", in.TenantID, txn.ID, err)
	}

	if replayed != nil {
		if replayed.AccountID != in.AccountID {
			return nil, false, fmt.Errorf("%w: external id %s belongs to transaction %s", models.ErrAlreadyExists, in.ExternalID, replayed.ID)
		}
		s.logger.Info("replayed transaction",
			zap.String("tenant_id", in.TenantID),
			zap.String("external_id", in.ExternalID),
			zap.String("transaction_id", replayed.ID))
		return replayed, false, nil
	}

	s.audit.LogTransaction(AuditTransactionCreated, txn)
	return txn, true, nil
}

func (s *LedgerService) findByExternalID(ctx context.Context, tenantID, externalID string) (*models.Transaction, error) {
	var txn *models.Transaction
	err := s.store.View(ctx, func(ctx context.Context, r store.Reader) error {
		var err error
		txn, err = r.GetTransactionByExternalID(ctx, tenantID, externalID)
		return err
	})
	return txn, err
}

// PostTransaction moves a PENDING transaction to POSTED after checking its
// stored entries still balance.
func (s *LedgerService) PostTransaction(ctx context.Context, in TransitionInput) (*models.Transaction, error) {
	return s.transition(ctx, in, models.StatusPosted)
}

func (s *LedgerService) CancelTransaction(ctx context.Context, in TransitionInput) (*models.Transaction, error) {
	return s.transition(ctx, in, models.StatusCancelled)
}

func (s *LedgerService) transition(ctx context.Context, in TransitionInput, target models.TransactionStatus) (*models.Transaction, error) {
	if err := s.inputs.ValidateInput(in); err != nil {
		return nil, err
	}

	var (
		txn   *models.Transaction
		stale []string
	)
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		current, err := tx.LockTransaction(ctx, in.TenantID, in.TransactionID)
		if err != nil {
			return err
		}
		if current.Status != models.StatusPending {
			return &models.TransitionError{TransactionID: current.ID, Current: current.Status, Attempted: target}
		}
		if target == models.StatusPosted {
			if err := checkStoredEntries(current.Entries); err != nil {
				return err
			}
		}

		now := s.now().UTC()
		updated := current.Clone()
		updated.Status = target
		updated.UpdatedAt = now
		if target == models.StatusPosted {
			updated.PostedAt = &now
		} else {
			updated.CancelledAt = &now
		}

		if err := tx.UpdateTransactionStatus(ctx, updated, models.StatusPending); err != nil {
			if !errors.Is(err, models.ErrStatusConflict) {
				return err
			}
			latest, rerr := tx.GetTransaction(ctx, in.TenantID, in.TransactionID)
			if rerr != nil {
				return rerr
			}
			return &models.TransitionError{TransactionID: latest.ID, Current: latest.Status, Attempted: target}
		}

		stale, err = s.affectedAccounts(ctx, tx, updated)
		if err != nil {
			return err
		}
		txn = updated
		return nil
	})
	if err != nil {
		return nil, s.fail("transition_"+string(target), in.TenantID, in.TransactionID, err)
	}

	s.invalidate(ctx, in.TenantID, stale)
	if target == models.StatusPosted {
		s.audit.LogTransaction(AuditTransactionPosted, txn)
	} else {
		s.audit.LogTransaction(AuditTransactionCancelled, txn)
	}
	return txn, nil
}

func (s *LedgerService) GetTransaction(ctx context.Context, tenantID, transactionID string) (*models.Transaction, error) {
	var txn *models.Transaction
	err := s.store.View(ctx, func(ctx context.Context, r store.Reader) error {
		var err error
		txn, err = r.GetTransaction(ctx, tenantID, transactionID)
		return err
	})
	if err != nil {
		return nil, s.fail("get_transaction", tenantID, transactionID, err)
	}
	return txn, nil
}

// GetBalance returns the balance of an account from POSTED transactions only,
// optionally including every descendant account.
func (s *LedgerService) GetBalance(ctx context.Context, in BalanceInput) (int64, error) {
	if err := s.inputs.ValidateInput(in); err != nil {
		return 0, err
	}
	balance, err := s.projector.BalanceOf(ctx, in.TenantID, in.AccountID, in.IncludeDescendants)
	if err != nil {
		return 0, s.fail("get_balance", in.TenantID, in.AccountID, err)
	}
	return balance, nil
}

// affectedAccounts lists the accounts whose balances a status change of txn
// touches: the entry accounts and all of their ancestors. A corrupted
// hierarchy only narrows the list to the entry accounts.
func (s *LedgerService) affectedAccounts(ctx context.Context, r store.Reader, txn *models.Transaction) ([]string, error) {
	direct := make([]string, 0, len(txn.Entries))
	for _, e := range txn.Entries {
		direct = append(direct, e.AccountID)
	}
	direct = unique(direct)

	accounts, err := r.ListAccounts(ctx, txn.TenantID)
	if err != nil {
		return nil, err
	}
	h := NewHierarchy(txn.TenantID, accounts)

	affected := append([]string(nil), direct...)
	for _, id := range direct {
		ancestors, err := h.AncestorsOf(id)
		if err != nil {
			s.logger.Warn("cannot resolve ancestors for cache invalidation",
				zap.String("tenant_id", txn.TenantID),
				zap.String("account_id", id),
				zap.Error(err))
			continue
		}
		affected = append(affected, ancestors...)
	}
	return unique(affected), nil
}

func (s *LedgerService) invalidate(ctx context.Context, tenantID string, accountIDs []string) {
	if len(accountIDs) == 0 {
		return
	}
	if err := s.cache.Invalidate(context.WithoutCancel(ctx), tenantID, accountIDs); err != nil {
		s.logger.Error("balance cache invalidation failed",
			zap.String("tenant_id", tenantID),
			zap.Strings("account_ids", accountIDs),
			zap.Error(err))
	}
}

// fail passes ledger errors through and hides every other failure behind
// models.ErrRetryable after logging it.
func (s *LedgerService) fail(operation, tenantID, entityID string, err error) error {
	if isLedgerError(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	s.logger.Error("ledger operation failed",
		zap.String("operation", operation),
		zap.String("tenant_id", tenantID),
		zap.String("entity_id", entityID),
		zap.Error(err))
	s.audit.LogError(operation, tenantID, entityID, err)
	return models.ErrRetryable
}

func isLedgerError(err error) bool {
	for _, target := range []error{
		models.ErrValidation,
		models.ErrInvalidHierarchy,
		models.ErrInvalidTransition,
		models.ErrNotFound,
		models.ErrInvalidInput,
		models.ErrAlreadyExists,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func loadLookup(ctx context.Context, r store.Reader, tenantID, accountID string) (StaticLookup, error) {
	lookup := StaticLookup{
		Tenants:  make(map[string]*models.Tenant, 1),
		Accounts: make(map[string]*models.Account, 1),
	}

	tenant, err := r.GetTenant(ctx, tenantID)
	switch {
	case err == nil:
		lookup.Tenants[tenant.ID] = tenant
	case !errors.Is(err, models.ErrNotFound):
		return lookup, err
	}

	account, err := r.GetAccount(ctx, tenantID, accountID)
	switch {
	case err == nil:
		lookup.Accounts[account.ID] = account
	case !errors.Is(err, models.ErrNotFound):
		return lookup, err
	}
	return lookup, nil
}

// checkEntryAccounts allows an entry to name an account other than the owning
// one only when it is an ACTIVE descendant of it.
func checkEntryAccounts(ctx context.Context, r store.Reader, txn *models.Transaction) error {
	var h *Hierarchy
	for i, e := range txn.Entries {
		if e.AccountID == txn.AccountID {
			continue
		}
		if h == nil {
			accounts, err := r.ListAccounts(ctx, txn.TenantID)
			if err != nil {
				return err
			}
			h = NewHierarchy(txn.TenantID, accounts)
		}

		account, ok := h.Account(e.AccountID)
		if !ok {
			return models.NewValidationError(models.RuleAccountNotEligible,
				"entry %d account %s does not exist", i, e.AccountID)
		}
		below, err := h.IsDescendant(txn.AccountID, e.AccountID)
		if err != nil {
			return err
		}
		if !below {
			return models.NewValidationError(models.RuleAccountNotEligible,
				"entry %d account %s is not a sub-account of %s", i, e.AccountID, txn.AccountID)
		}
		if !account.Active() {
			return models.NewValidationError(models.RuleAccountNotEligible,
				"entry %d account %s is %s", i, e.AccountID, account.Status)
		}
	}
	return nil
}

func checkStoredEntries(entries []models.Entry) error {
	if err := CheckEntryCount(entries); err != nil {
		return err
	}
	if err := CheckAmounts(entries); err != nil {
		return err
	}
	return CheckBalance(entries)
}

func unique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}
