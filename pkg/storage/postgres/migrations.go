package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/caravelhq/storefront/pkg/observability"
)

type migration struct {
	version int
	name    string
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		name:    "create_users",
		sql: `
			CREATE TABLE IF NOT EXISTS users (
				id BIGSERIAL PRIMARY KEY,
				email TEXT NOT NULL UNIQUE,
				password_hash TEXT NOT NULL DEFAULT '',
				display_name TEXT NOT NULL DEFAULT '',
				platform_admin BOOLEAN NOT NULL DEFAULT FALSE,
				is_active BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
		`,
	},
	{
		version: 2,
		name:    "create_companies",
		sql: `
			CREATE TABLE IF NOT EXISTS companies (
				id BIGSERIAL PRIMARY KEY,
				name TEXT NOT NULL UNIQUE,
				display_name TEXT NOT NULL DEFAULT '',
				is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
				deleted_at TIMESTAMPTZ,
				deleted_by BIGINT REFERENCES users(id),
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
		`,
	},
	{
		version: 3,
		name:    "create_memberships",
		sql: `
			CREATE TABLE IF NOT EXISTS memberships (
				id BIGSERIAL PRIMARY KEY,
				user_id BIGINT NOT NULL REFERENCES users(id),
				company_id BIGINT NOT NULL REFERENCES companies(id),
				roles JSONB NOT NULL DEFAULT '[]',
				permissions JSONB NOT NULL DEFAULT '[]',
				is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
				deleted_at TIMESTAMPTZ,
				deleted_by BIGINT REFERENCES users(id),
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				UNIQUE (user_id, company_id)
			);
			CREATE INDEX IF NOT EXISTS idx_memberships_user ON memberships(user_id) WHERE is_deleted = FALSE;
			CREATE INDEX IF NOT EXISTS idx_memberships_company ON memberships(company_id) WHERE is_deleted = FALSE;
		`,
	},
	{
		version: 4,
		name:    "create_refresh_tokens",
		sql: `
			CREATE TABLE IF NOT EXISTS refresh_tokens (
				id BIGSERIAL PRIMARY KEY,
				user_id BIGINT NOT NULL REFERENCES users(id),
				membership_id BIGINT NOT NULL REFERENCES memberships(id),
				code_hash TEXT NOT NULL UNIQUE,
				code_prefix TEXT NOT NULL,
				issued_at TIMESTAMPTZ NOT NULL,
				expires_at TIMESTAMPTZ NOT NULL,
				revoked_at TIMESTAMPTZ,
				replaced_by_hash TEXT
			);
			CREATE INDEX IF NOT EXISTS idx_refresh_tokens_user ON refresh_tokens(user_id) WHERE revoked_at IS NULL;
			CREATE INDEX IF NOT EXISTS idx_refresh_tokens_expires ON refresh_tokens(expires_at);
		`,
	},
	{
		version: 5,
		name:    "create_catalog",
		sql: `
			CREATE TABLE IF NOT EXISTS categories (
				id BIGSERIAL PRIMARY KEY,
				company_id BIGINT NOT NULL REFERENCES companies(id),
				name TEXT NOT NULL,
				slug TEXT NOT NULL,
				is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
				deleted_at TIMESTAMPTZ,
				deleted_by BIGINT REFERENCES users(id),
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				UNIQUE (company_id, slug)
			);
			CREATE TABLE IF NOT EXISTS products (
				id BIGSERIAL PRIMARY KEY,
				company_id BIGINT NOT NULL REFERENCES companies(id),
				category_id BIGINT REFERENCES categories(id),
				name TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				price_cents BIGINT NOT NULL DEFAULT 0,
				stock BIGINT NOT NULL DEFAULT 0,
				is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
				deleted_at TIMESTAMPTZ,
				deleted_by BIGINT REFERENCES users(id),
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_products_company ON products(company_id) WHERE is_deleted = FALSE;
			CREATE INDEX IF NOT EXISTS idx_categories_company ON categories(company_id) WHERE is_deleted = FALSE;
		`,
	},
	{
		version: 6,
		name:    "create_audit_events",
		sql: `
			CREATE TABLE IF NOT EXISTS audit_events (
				id BIGSERIAL PRIMARY KEY,
				timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				event_type TEXT NOT NULL,
				status TEXT NOT NULL,
				user_id BIGINT,
				company_id BIGINT,
				request_id TEXT NOT NULL DEFAULT '',
				ip_address TEXT NOT NULL DEFAULT '',
				message TEXT NOT NULL DEFAULT '',
				token_prefix TEXT NOT NULL DEFAULT ''
			);
			CREATE INDEX IF NOT EXISTS idx_audit_events_company ON audit_events(company_id, timestamp DESC);
			CREATE INDEX IF NOT EXISTS idx_audit_events_type ON audit_events(event_type, timestamp DESC);
		`,
	},
}

// Migrate applies pending schema migrations, each in its own transaction
func Migrate(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var current sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}

	for _, m := range migrations {
		if current.Valid && int64(m.version) <= current.Int64 {
			continue
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
		}
		logger.WithFields(map[string]interface{}{
			"version": m.version,
			"name":    m.name,
		}).Info("applied migration")
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.sql); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.version, m.name); err != nil {
		return err
	}
	return tx.Commit()
}
