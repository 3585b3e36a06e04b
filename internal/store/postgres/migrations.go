package postgres

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

type migration struct {
	version string
	name    string
	sql     string
}

// migrations are applied in order and recorded in ledger_migrations. Every
// statement is idempotent so a half-applied run can be repeated.
var migrations = []migration{
	{
		version: "001",
		name:    "tenants",
		sql: `CREATE TABLE IF NOT EXISTS ledger_tenants (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			status      TEXT NOT NULL CHECK (status IN ('ACTIVE', 'INACTIVE')),
			created_at  TIMESTAMPTZ NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL
		)`,
	},
	{
		version: "002",
		name:    "accounts",
		sql: `CREATE TABLE IF NOT EXISTS ledger_accounts (
			tenant_id          TEXT NOT NULL REFERENCES ledger_tenants (id),
			id                 TEXT NOT NULL,
			name               TEXT NOT NULL,
			status             TEXT NOT NULL CHECK (status IN ('ACTIVE', 'INACTIVE')),
			parent_account_id  TEXT,
			created_at         TIMESTAMPTZ NOT NULL,
			updated_at         TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (tenant_id, id),
			FOREIGN KEY (tenant_id, parent_account_id) REFERENCES ledger_accounts (tenant_id, id)
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_accounts_parent ON ledger_accounts (tenant_id, parent_account_id)`,
	},
	{
		version: "003",
		name:    "transactions",
		sql: `CREATE TABLE IF NOT EXISTS ledger_transactions (
			id            TEXT PRIMARY KEY,
			tenant_id     TEXT NOT NULL REFERENCES ledger_tenants (id),
			account_id    TEXT NOT NULL,
			memo          TEXT NOT NULL DEFAULT '',
			currency      TEXT NOT NULL,
			external_id   TEXT,
			status        TEXT NOT NULL CHECK (status IN ('PENDING', 'POSTED', 'CANCELLED')),
			created_at    TIMESTAMPTZ NOT NULL,
			updated_at    TIMESTAMPTZ NOT NULL,
			posted_at     TIMESTAMPTZ,
			cancelled_at  TIMESTAMPTZ,
			FOREIGN KEY (tenant_id, account_id) REFERENCES ledger_accounts (tenant_id, id)
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_transactions_tenant_status ON ledger_transactions (tenant_id, status);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_ledger_transactions_external
			ON ledger_transactions (tenant_id, external_id) WHERE external_id IS NOT NULL`,
	},
	{
		version: "004",
		name:    "entries",
		sql: `CREATE TABLE IF NOT EXISTS ledger_entries (
			id              TEXT PRIMARY KEY,
			transaction_id  TEXT NOT NULL REFERENCES ledger_transactions (id),
			tenant_id       TEXT NOT NULL,
			position        INTEGER NOT NULL,
			account_id      TEXT NOT NULL,
			direction       TEXT NOT NULL CHECK (direction IN ('DEBIT', 'CREDIT')),
			amount          BIGINT NOT NULL CHECK (amount > 0),
			UNIQUE (transaction_id, position),
			FOREIGN KEY (tenant_id, account_id) REFERENCES ledger_accounts (tenant_id, id)
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_entries_account ON ledger_entries (tenant_id, account_id)`,
	},
}

const createMigrationsTable = `CREATE TABLE IF NOT EXISTS ledger_migrations (
	version     TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	applied_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Migrate creates the ledger schema. Already applied versions are skipped.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createMigrationsTable); err != nil {
		return fmt.Errorf("postgres: create migrations table: %w", err)
	}

	for _, m := range migrations {
		if err := s.apply(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) apply(ctx context.Context, m migration) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin migration %s: %w", m.version, err)
	}
	defer sqlTx.Rollback() //nolint:errcheck // no-op after commit

	var applied bool
	err = sqlTx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM ledger_migrations WHERE version = $1)`, m.version).Scan(&applied)
	if err != nil {
		return fmt.Errorf("postgres: check migration %s: %w", m.version, err)
	}
	if applied {
		return nil
	}

	if _, err := sqlTx.ExecContext(ctx, m.sql); err != nil {
		return fmt.Errorf("postgres: apply migration %s_%s: %w", m.version, m.name, err)
	}
	if _, err := sqlTx.ExecContext(ctx,
		`INSERT INTO ledger_migrations (version, name) VALUES ($1, $2)`, m.version, m.name); err != nil {
		return fmt.Errorf("postgres: record migration %s: %w", m.version, err)
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit migration %s: %w", m.version, err)
	}

	s.logger.Info("applied migration", zap.String("version", m.version), zap.String("name", m.name))
	return nil
}
