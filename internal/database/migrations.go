package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// migrationLockID serializes concurrent RunMigrations calls across processes.
const migrationLockID = 72616231

// Notification channels raised by the schema triggers.
const (
	ChannelUserChanged     = "user_changed"
	ChannelMessagesChanged = "messages_changed"
)

// RunMigrations creates the database schema. Every statement is idempotent and
// the whole run holds an advisory lock, so parallel test binaries can share a database.
func RunMigrations(ctx context.Context, db DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL,
			password_hash TEXT NOT NULL DEFAULT '',
			income NUMERIC NOT NULL DEFAULT 0,
			budget_total NUMERIC NOT NULL DEFAULT 0,
			remaining_budget NUMERIC NOT NULL DEFAULT 0,
			budget JSONB NOT NULL DEFAULT '{}',
			recurring_entries JSONB NOT NULL DEFAULT '[]',
			group_ids TEXT[] NOT NULL DEFAULT '{}',
			profile_picture TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users (LOWER(email))`,
		`CREATE INDEX IF NOT EXISTS idx_users_phone ON users (phone)`,

		`CREATE TABLE IF NOT EXISTS groups (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			owner_id TEXT NOT NULL,
			members JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_groups_members ON groups USING GIN (members jsonb_path_ops)`,

		`CREATE TABLE IF NOT EXISTS shared_budgets (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			user_name TEXT NOT NULL DEFAULT '',
			user_phone TEXT NOT NULL DEFAULT '',
			group_id TEXT NOT NULL,
			budget JSONB NOT NULL DEFAULT '{}',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (user_id, group_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_shared_budgets_group_id ON shared_budgets (group_id)`,

		`CREATE TABLE IF NOT EXISTS group_budgets (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			group_id TEXT NOT NULL,
			owner_id TEXT NOT NULL,
			budget JSONB NOT NULL DEFAULT '{}',
			remaining_budget NUMERIC NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_group_budgets_group_id ON group_budgets (group_id)`,

		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			group_id TEXT NOT NULL,
			text TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT 'text',
			sender_id TEXT NOT NULL,
			sender_name TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			read_by TEXT[] NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_group_created ON messages (group_id, created_at)`,

		`CREATE OR REPLACE FUNCTION notify_user_changed() RETURNS trigger AS $$
		BEGIN
			IF TG_OP = 'DELETE' THEN
				PERFORM pg_notify('user_changed', OLD.id);
			ELSE
				PERFORM pg_notify('user_changed', NEW.id);
			END IF;
			RETURN NULL;
		END;
		$$ LANGUAGE plpgsql`,
		`DROP TRIGGER IF EXISTS users_notify ON users`,
		`CREATE TRIGGER users_notify AFTER UPDATE OR DELETE ON users
			FOR EACH ROW EXECUTE FUNCTION notify_user_changed()`,

		`CREATE OR REPLACE FUNCTION notify_messages_changed() RETURNS trigger AS $$
		BEGIN
			IF TG_OP = 'DELETE' THEN
				PERFORM pg_notify('messages_changed', OLD.group_id);
			ELSE
				PERFORM pg_notify('messages_changed', NEW.group_id);
			END IF;
			RETURN NULL;
		END;
		$$ LANGUAGE plpgsql`,
		`DROP TRIGGER IF EXISTS messages_notify ON messages`,
		`CREATE TRIGGER messages_notify AFTER INSERT OR UPDATE OR DELETE ON messages
			FOR EACH ROW EXECUTE FUNCTION notify_messages_changed()`,
	}

	return pgx.BeginFunc(ctx, db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockID); err != nil {
			return fmt.Errorf("failed to take migration lock: %w", err)
		}
		for i, migration := range migrations {
			if _, err := tx.Exec(ctx, migration); err != nil {
				return fmt.Errorf("migration %d failed: %w", i+1, err)
			}
		}
		return nil
	})
}
