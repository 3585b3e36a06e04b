// Package postgres implements store.Store on PostgreSQL through lib/pq.
//
// State transitions take a row lock with SELECT ... FOR UPDATE under a
// transaction-local lock_timeout, then compare-and-swap the status column.
// Snapshot reads run in REPEATABLE READ READ ONLY transactions.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/store"
)

var _ store.Store = (*Store)(nil)

// SQLSTATE codes mapped to models.ErrContention.
const (
	codeLockNotAvailable     = "55P03"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
)

type Store struct {
	db          *sql.DB
	lockTimeout time.Duration
	logger      *zap.Logger
}

type Option func(*Store)

// WithLockTimeout bounds how long a unit of work waits on a row lock.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.lockTimeout = d
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New wraps an open database handle. The store owns the handle from here on
// and closes it in Close.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:          db,
		lockTimeout: 2 * time.Second,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	// A unit of work that has started is not abandoned halfway by the caller.
	ctx = context.WithoutCancel(ctx)

	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return classify(fmt.Errorf("postgres: begin: %w", err))
	}
	defer sqlTx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := sqlTx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = %d", lockTimeoutMillis(s.lockTimeout))); err != nil {
		return classify(fmt.Errorf("postgres: set lock_timeout: %w", err))
	}

	if err := fn(ctx, &tx{reader: reader{q: sqlTx}}); err != nil {
		return classify(err)
	}

	if err := sqlTx.Commit(); err != nil {
		return classify(fmt.Errorf("postgres: commit: %w", err))
	}
	return nil
}

// lockTimeoutMillis rounds d up to whole milliseconds. Postgres reads a
// lock_timeout of 0 as no timeout, so any positive d stays at least 1ms.
func lockTimeoutMillis(d time.Duration) int64 {
	if d <= 0 {
		return 1
	}
	return int64((d + time.Millisecond - 1) / time.Millisecond)
}

func (s *Store) View(ctx context.Context, fn func(ctx context.Context, r store.Reader) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return classify(fmt.Errorf("postgres: begin read: %w", err))
	}
	defer sqlTx.Rollback() //nolint:errcheck // read-only

	if err := fn(ctx, reader{q: sqlTx}); err != nil {
		return classify(err)
	}
	return sqlTx.Commit()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// classify maps driver errors onto the ledger's store errors and leaves
// everything else untouched.
func classify(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case codeLockNotAvailable, codeSerializationFailure, codeDeadlockDetected:
		return fmt.Errorf("%w: %s", models.ErrContention, pqErr.Message)
	case codeUniqueViolation:
		return fmt.Errorf("%w: %s", models.ErrAlreadyExists, pqErr.Constraint)
	}
	return err
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
