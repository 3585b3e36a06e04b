package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/store"
)

func seed(t *testing.T, s *Store) {
	t.Helper()
	now := time.Now().UTC()
	err := s.RunInTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if err := tx.CreateTenant(ctx, &models.Tenant{ID: "t1", Name: "Acme", Status: models.TenantStatusActive, CreatedAt: now}); err != nil {
			return err
		}
		if err := tx.CreateAccount(ctx, &models.Account{ID: "a1", TenantID: "t1", Name: "Ops", Status: models.AccountStatusActive, CreatedAt: now}); err != nil {
			return err
		}
		return tx.CreateTransaction(ctx, &models.Transaction{
			ID: "tx1", TenantID: "t1", AccountID: "a1", Currency: "USD", ExternalID: "ext-1",
			Status: models.StatusPending, CreatedAt: now,
			Entries: []models.Entry{
				{ID: "e1", TransactionID: "tx1", Position: 0, AccountID: "a1", Direction: models.DirectionDebit, Amount: 500},
				{ID: "e2", TransactionID: "tx1", Position: 1, AccountID: "a1", Direction: models.DirectionCredit, Amount: 500},
			},
		})
	})
	require.NoError(t, err)
}

func TestStore_RunInTx(t *testing.T) {
	t.Run("staged writes are invisible until commit", func(t *testing.T) {
		s := New()
		seed(t, s)

		err := s.RunInTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
			require.NoError(t, tx.CreateAccount(ctx, &models.Account{ID: "a2", TenantID: "t1", Name: "Cash", Status: models.AccountStatusActive}))

			// visible inside the unit
			_, err := tx.GetAccount(ctx, "t1", "a2")
			require.NoError(t, err)

			// not visible to a snapshot taken meanwhile
			verr := s.View(ctx, func(ctx context.Context, r store.Reader) error {
				_, err := r.GetAccount(ctx, "t1", "a2")
				return err
			})
			assert.ErrorIs(t, verr, models.ErrNotFound)
			return nil
		})
		require.NoError(t, err)

		err = s.View(context.Background(), func(ctx context.Context, r store.Reader) error {
			accounts, err := r.ListAccounts(ctx, "t1")
			assert.Len(t, accounts, 2)
			return err
		})
		require.NoError(t, err)
	})

	t.Run("failed unit leaves no trace", func(t *testing.T) {
		s := New()
		seed(t, s)
		boom := errors.New("boom")

		err := s.RunInTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
			require.NoError(t, tx.CreateAccount(ctx, &models.Account{ID: "a2", TenantID: "t1", Name: "Cash"}))
			return boom
		})
		assert.ErrorIs(t, err, boom)

		err = s.View(context.Background(), func(ctx context.Context, r store.Reader) error {
			_, err := r.GetAccount(ctx, "t1", "a2")
			return err
		})
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("busy writer slot is contention", func(t *testing.T) {
		s := New(WithLockWait(20 * time.Millisecond))

		held := make(chan struct{})
		release := make(chan struct{})
		done := make(chan error, 1)
		go func() {
			done <- s.RunInTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
				close(held)
				<-release
				return nil
			})
		}()

		<-held
		err := s.RunInTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
			return nil
		})
		close(release)

		assert.ErrorIs(t, err, models.ErrContention)
		assert.NoError(t, <-done)
	})

	t.Run("closed store", func(t *testing.T) {
		s := New()
		require.NoError(t, s.Close())
		err := s.RunInTx(context.Background(), func(ctx context.Context, tx store.Tx) error { return nil })
		assert.ErrorIs(t, err, store.ErrClosed)
		assert.ErrorIs(t, s.Ping(context.Background()), store.ErrClosed)
	})
}

func TestStore_TenantScoping(t *testing.T) {
	s := New()
	seed(t, s)

	err := s.View(context.Background(), func(ctx context.Context, r store.Reader) error {
		_, err := r.GetAccount(ctx, "other", "a1")
		assert.ErrorIs(t, err, models.ErrNotFound)

		_, err = r.GetTransaction(ctx, "other", "tx1")
		assert.ErrorIs(t, err, models.ErrNotFound)

		got, err := r.GetTransactionByExternalID(ctx, "t1", "ext-1")
		require.NoError(t, err)
		assert.Equal(t, "tx1", got.ID)

		_, err = r.GetTransactionByExternalID(ctx, "other", "ext-1")
		assert.ErrorIs(t, err, models.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_AccountIDsPerTenant(t *testing.T) {
	s := New()
	seed(t, s)
	now := time.Now().UTC()

	err := s.RunInTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if err := tx.CreateTenant(ctx, &models.Tenant{ID: "t2", Name: "Globex", Status: models.TenantStatusActive, CreatedAt: now}); err != nil {
			return err
		}
		if err := tx.CreateAccount(ctx, &models.Account{ID: "a1", TenantID: "t2", Name: "Globex ops", Status: models.AccountStatusActive, CreatedAt: now}); err != nil {
			return err
		}
		staged, err := tx.ListAccounts(ctx, "t2")
		require.NoError(t, err)
		assert.Len(t, staged, 1)
		return nil
	})
	require.NoError(t, err)

	err = s.View(context.Background(), func(ctx context.Context, r store.Reader) error {
		mine, err := r.GetAccount(ctx, "t1", "a1")
		require.NoError(t, err)
		assert.Equal(t, "Ops", mine.Name)

		theirs, err := r.GetAccount(ctx, "t2", "a1")
		require.NoError(t, err)
		assert.Equal(t, "Globex ops", theirs.Name)

		for _, tenantID := range []string{"t1", "t2"} {
			accounts, err := r.ListAccounts(ctx, tenantID)
			require.NoError(t, err)
			require.Len(t, accounts, 1)
			assert.Equal(t, tenantID, accounts[0].TenantID)
		}
		return nil
	})
	require.NoError(t, err)
}

func TestStore_CreateDuplicates(t *testing.T) {
	s := New()
	seed(t, s)

	err := s.RunInTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.CreateAccount(ctx, &models.Account{ID: "a1", TenantID: "t1"})
	})
	assert.ErrorIs(t, err, models.ErrAlreadyExists)

	err = s.RunInTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.CreateTransaction(ctx, &models.Transaction{ID: "tx2", TenantID: "t1", ExternalID: "ext-1"})
	})
	assert.ErrorIs(t, err, models.ErrAlreadyExists)
}

func TestStore_UpdateTransactionStatus(t *testing.T) {
	s := New()
	seed(t, s)
	now := time.Now().UTC()

	post := func() error {
		return s.RunInTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
			txn, err := tx.LockTransaction(ctx, "t1", "tx1")
			if err != nil {
				return err
			}
			txn.Status = models.StatusPosted
			txn.PostedAt = &now
			txn.Entries = nil
			return tx.UpdateTransactionStatus(ctx, txn, models.StatusPending)
		})
	}

	require.NoError(t, post())
	assert.ErrorIs(t, post(), models.ErrStatusConflict)

	err := s.View(context.Background(), func(ctx context.Context, r store.Reader) error {
		got, err := r.GetTransaction(ctx, "t1", "tx1")
		require.NoError(t, err)
		assert.Equal(t, models.StatusPosted, got.Status)
		assert.Len(t, got.Entries, 2, "status change keeps the entries")

		entries, err := r.ListPostedEntries(ctx, "t1", []string{"a1"})
		assert.Len(t, entries, 2)
		return err
	})
	require.NoError(t, err)
}

func TestStore_ReturnsCopies(t *testing.T) {
	s := New()
	seed(t, s)

	err := s.View(context.Background(), func(ctx context.Context, r store.Reader) error {
		got, err := r.GetTransaction(ctx, "t1", "tx1")
		require.NoError(t, err)
		got.Entries[0].Amount = 1
		got.Status = models.StatusCancelled

		again, err := r.GetTransaction(ctx, "t1", "tx1")
		require.NoError(t, err)
		assert.Equal(t, int64(500), again.Entries[0].Amount)
		assert.Equal(t, models.StatusPending, again.Status)
		return nil
	})
	require.NoError(t, err)
}
