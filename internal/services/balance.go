package services

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/store"
)

var errBalanceOverflow = errors.New("ledger: balance overflows int64")

// Projector derives account balances from POSTED entries. Credits increase a
// balance and debits decrease it.
type Projector struct {
	store  store.Store
	cache  BalanceCache
	logger *zap.Logger
}

func NewProjector(s store.Store, cache BalanceCache, logger *zap.Logger) *Projector {
	if cache == nil {
		cache = NoopBalanceCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Projector{store: s, cache: cache, logger: logger}
}

func (p *Projector) BalanceOf(ctx context.Context, tenantID, accountID string, includeDescendants bool) (int64, error) {
	key := BalanceKey{TenantID: tenantID, AccountID: accountID, IncludeDescendants: includeDescendants}

	cached, generation, hit, err := p.cache.Get(ctx, key)
	if err != nil {
		p.logger.Warn("balance cache read failed", zap.String("account_id", accountID), zap.Error(err))
	} else if hit {
		return cached, nil
	}

	var balance int64
	err = p.store.View(ctx, func(ctx context.Context, r store.Reader) error {
		var err error
		balance, err = project(ctx, r, tenantID, accountID, includeDescendants)
		return err
	})
	if err != nil {
		return 0, err
	}

	// a failed read above leaves generation at 0, which is still safe to write under
	if err := p.cache.Set(ctx, key, generation, balance); err != nil {
		p.logger.Warn("balance cache write failed", zap.String("account_id", accountID), zap.Error(err))
	}
	return balance, nil
}

func project(ctx context.Context, r store.Reader, tenantID, accountID string, includeDescendants bool) (int64, error) {
	if _, err := r.GetAccount(ctx, tenantID, accountID); err != nil {
		return 0, err
	}

	accountIDs := []string{accountID}
	if includeDescendants {
		accounts, err := r.ListAccounts(ctx, tenantID)
		if err != nil {
			return 0, err
		}
		descendants, err := NewHierarchy(tenantID, accounts).DescendantsOf(accountID)
		if err != nil {
			return 0, err
		}
		accountIDs = append(accountIDs, descendants...)
	}

	entries, err := r.ListPostedEntries(ctx, tenantID, accountIDs)
	if err != nil {
		return 0, err
	}
	return Fold(entries)
}

// Fold sums entries with credit-positive polarity.
func Fold(entries []models.PostedEntry) (int64, error) {
	var balance int64
	for _, e := range entries {
		delta := e.Amount
		if e.Direction == models.DirectionDebit {
			delta = -delta
		}
		if (delta > 0 && balance > math.MaxInt64-delta) || (delta < 0 && balance < math.MinInt64-delta) {
			return 0, fmt.Errorf("%w at transaction %s", errBalanceOverflow, e.TransactionID)
		}
		balance += delta
	}
	return balance, nil
}
