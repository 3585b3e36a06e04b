package services

import (
	"math"
	"strings"

	"github.com/ruralpay/ledger/internal/models"
)

// DefaultCurrency is the only currency supported when none are configured.
const DefaultCurrency = "USD"

// TransactionDraft is a transaction that has not been persisted yet.
type TransactionDraft struct {
	TenantID  string
	AccountID string
	Currency  string
	Entries   []models.Entry
}

// AccountLookup resolves the owning account and its tenant of a draft.
type AccountLookup interface {
	LookupAccount(accountID string) (*models.Account, bool)
	LookupTenant(tenantID string) (*models.Tenant, bool)
}

// StaticLookup is an AccountLookup over preloaded rows.
type StaticLookup struct {
	Tenants  map[string]*models.Tenant
	Accounts map[string]*models.Account
}

func (l StaticLookup) LookupAccount(accountID string) (*models.Account, bool) {
	a, ok := l.Accounts[accountID]
	return a, ok
}

func (l StaticLookup) LookupTenant(tenantID string) (*models.Tenant, bool) {
	t, ok := l.Tenants[tenantID]
	return t, ok
}

// TransactionValidator applies the transaction rules in a fixed order and
// reports the first violation. It never touches the store.
type TransactionValidator struct {
	currencies map[string]struct{}
}

func NewTransactionValidator(currencies []string) *TransactionValidator {
	if len(currencies) == 0 {
		currencies = []string{DefaultCurrency}
	}
	set := make(map[string]struct{}, len(currencies))
	for _, c := range currencies {
		set[strings.ToUpper(strings.TrimSpace(c))] = struct{}{}
	}
	return &TransactionValidator{currencies: set}
}

func (v *TransactionValidator) Validate(draft TransactionDraft, lookup AccountLookup) error {
	if err := CheckEntryCount(draft.Entries); err != nil {
		return err
	}
	if err := CheckAmounts(draft.Entries); err != nil {
		return err
	}
	if err := v.CheckCurrency(draft.Currency); err != nil {
		return err
	}
	if err := CheckBalance(draft.Entries); err != nil {
		return err
	}
	return CheckAccountEligible(draft.TenantID, draft.AccountID, lookup)
}

func CheckEntryCount(entries []models.Entry) error {
	if len(entries) < 2 {
		return models.NewValidationError(models.RuleInsufficientEntries,
			"a transaction needs at least 2 entries, got %d", len(entries))
	}
	return nil
}

// CheckAmounts rejects non-positive amounts, unknown directions, and entry
// sets whose per-direction totals do not fit in an int64.
func CheckAmounts(entries []models.Entry) error {
	var debits, credits int64
	for i, e := range entries {
		if e.Amount <= 0 {
			return models.NewValidationError(models.RuleInvalidAmount,
				"entry %d amount must be positive, got %d", i, e.Amount)
		}
		var total *int64
		switch e.Direction {
		case models.DirectionDebit:
			total = &debits
		case models.DirectionCredit:
			total = &credits
		default:
			return models.NewValidationError(models.RuleInvalidAmount,
				"entry %d has unknown direction %q", i, e.Direction)
		}
		if *total > math.MaxInt64-e.Amount {
			return models.NewValidationError(models.RuleInvalidAmount,
				"entry %d overflows the %s total", i, e.Direction)
		}
		*total += e.Amount
	}
	return nil
}

func (v *TransactionValidator) CheckCurrency(currency string) error {
	if _, ok := v.currencies[currency]; !ok {
		return models.NewValidationError(models.RuleUnsupportedCurrency,
			"currency %q is not supported", currency)
	}
	return nil
}

// CheckBalance expects entries that already passed CheckAmounts.
func CheckBalance(entries []models.Entry) error {
	var debits, credits int64
	for _, e := range entries {
		if e.Direction == models.DirectionDebit {
			debits += e.Amount
		} else {
			credits += e.Amount
		}
	}
	if debits != credits {
		err := models.NewValidationError(models.RuleUnbalancedTransaction,
			"debits %d do not equal credits %d", debits, credits)
		err.Difference = debits - credits
		return err
	}
	return nil
}

func CheckAccountEligible(tenantID, accountID string, lookup AccountLookup) error {
	account, ok := lookup.LookupAccount(accountID)
	if !ok {
		return models.NewValidationError(models.RuleAccountNotEligible, "account %s does not exist", accountID)
	}
	if account.TenantID != tenantID {
		return models.NewValidationError(models.RuleAccountNotEligible, "account %s does not belong to tenant %s", accountID, tenantID)
	}
	if !account.Active() {
		return models.NewValidationError(models.RuleAccountNotEligible, "account %s is %s", accountID, account.Status)
	}
	tenant, ok := lookup.LookupTenant(tenantID)
	if !ok || !tenant.Active() {
		return models.NewValidationError(models.RuleAccountNotEligible, "tenant %s is not active", tenantID)
	}
	return nil
}
