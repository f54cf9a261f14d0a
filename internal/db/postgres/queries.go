// Package postgres — queries.go содержит схему леджера и применение миграций.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migration — одна версия схемы.
type Migration struct {
	Version int
	SQL     string
}

// migrations применяются строго по возрастанию версии.
var migrations = []Migration{
	{Version: 1, SQL: `
		CREATE TABLE IF NOT EXISTS users (
			id          BIGINT PRIMARY KEY,
			username    TEXT NOT NULL DEFAULT '',
			first_name  TEXT NOT NULL DEFAULT '',
			last_name   TEXT NOT NULL DEFAULT '',
			balance     BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
			is_admin    BOOLEAN NOT NULL DEFAULT FALSE,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS transactions (
			id          BIGSERIAL PRIMARY KEY,
			user_id     BIGINT NOT NULL REFERENCES users(id),
			delta       BIGINT NOT NULL,
			reason      TEXT NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id, created_at DESC);
	`},
	{Version: 2, SQL: `
		CREATE TABLE IF NOT EXISTS download_history (
			id           BIGSERIAL PRIMARY KEY,
			user_id      BIGINT NOT NULL REFERENCES users(id),
			job_id       TEXT NOT NULL,
			url          TEXT NOT NULL,
			title        TEXT NOT NULL DEFAULT '',
			kind         TEXT NOT NULL,
			quality      TEXT NOT NULL,
			destination  TEXT NOT NULL DEFAULT '',
			reference    TEXT NOT NULL DEFAULT '',
			size_bytes   BIGINT NOT NULL DEFAULT 0,
			status       TEXT NOT NULL,
			error        TEXT NOT NULL DEFAULT '',
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_history_user ON download_history(user_id, created_at DESC);
	`},
	{Version: 3, SQL: `
		ALTER TABLE users ADD COLUMN IF NOT EXISTS banned BOOLEAN NOT NULL DEFAULT FALSE;
	`},
}

// ExecMigrationSQL выполняет один SQL-запрос миграции в транзакции.
// Если запрос упадёт — транзакция откатится автоматически.
func ExecMigrationSQL(ctx context.Context, pool *pgxpool.Pool, version int, sql string) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	err = tx.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", version,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("ошибка проверки миграции: %w", err)
	}
	if exists {
		return nil
	}

	if _, err := tx.Exec(ctx, sql); err != nil {
		return fmt.Errorf("ошибка выполнения миграции %d: %w", version, err)
	}

	if _, err := tx.Exec(ctx,
		"INSERT INTO schema_migrations (version) VALUES ($1)", version,
	); err != nil {
		return fmt.Errorf("ошибка записи версии миграции: %w", err)
	}

	return tx.Commit(ctx)
}
