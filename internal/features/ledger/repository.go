// Package ledger — repository.go хранит леджер в PostgreSQL (таблицы users,
// transactions, download_history). Денежные операции выполняются в транзакциях БД.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/media-bot/internal/common"
)

// Repository — леджер в PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий леджера.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// EnsureUser создаёт пользователя с нулевым балансом или обновляет профиль.
// Пустые поля профиля не затирают сохранённые.
func (r *Repository) EnsureUser(ctx context.Context, p Profile) error {
	query := `
		INSERT INTO users (id, username, first_name, last_name, is_admin)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			username   = COALESCE(NULLIF(EXCLUDED.username, ''), users.username),
			first_name = COALESCE(NULLIF(EXCLUDED.first_name, ''), users.first_name),
			last_name  = COALESCE(NULLIF(EXCLUDED.last_name, ''), users.last_name),
			is_admin   = EXCLUDED.is_admin,
			updated_at = NOW()
	`
	_, err := r.db.Exec(ctx, query, p.ID, p.Username, p.FirstName, p.LastName, p.IsAdmin)
	if err != nil {
		return fmt.Errorf("ошибка сохранения пользователя: %w", err)
	}
	return nil
}

// GetUser возвращает пользователя без истории и транзакций (они читаются отдельно).
func (r *Repository) GetUser(ctx context.Context, userID int64) (*User, error) {
	query := `
		SELECT id, username, first_name, last_name, balance, is_admin, banned, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	var u User
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&u.ID, &u.Username, &u.FirstName, &u.LastName,
		&u.Balance, &u.IsAdmin, &u.Banned, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения пользователя: %w", err)
	}
	return &u, nil
}

// SetBanned ставит или снимает бан; неизвестный пользователь создаётся.
func (r *Repository) SetBanned(ctx context.Context, userID int64, banned bool) error {
	query := `
		INSERT INTO users (id, banned)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET
			banned     = EXCLUDED.banned,
			updated_at = NOW()
	`
	if _, err := r.db.Exec(ctx, query, userID, banned); err != nil {
		return fmt.Errorf("ошибка изменения бана: %w", err)
	}
	return nil
}

// ApplyDelta меняет баланс и записывает транзакцию.
// Строка пользователя блокируется FOR UPDATE, поэтому два списания
// одного пользователя выполняются по очереди.
func (r *Repository) ApplyDelta(ctx context.Context, userID int64, delta int64, reason string) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	var current int64
	err = tx.QueryRow(ctx, `
		SELECT balance FROM users WHERE id = $1 FOR UPDATE
	`, userID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, common.ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("ошибка получения баланса: %w", err)
	}

	if current+delta < 0 {
		return current, common.ErrInsufficientBalance
	}

	var updated int64
	err = tx.QueryRow(ctx, `
		UPDATE users
		SET balance = balance + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING balance
	`, userID, delta).Scan(&updated)
	if err != nil {
		return current, fmt.Errorf("ошибка изменения баланса: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO transactions (user_id, delta, reason)
		VALUES ($1, $2, $3)
	`, userID, delta, reason)
	if err != nil {
		return current, fmt.Errorf("ошибка записи транзакции: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return current, fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return updated, nil
}

// AddHistory записывает сводку задачи.
func (r *Repository) AddHistory(ctx context.Context, userID int64, e HistoryEntry) error {
	query := `
		INSERT INTO download_history
			(user_id, job_id, url, title, kind, quality, destination, reference, size_bytes, status, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.Exec(ctx, query,
		userID, e.JobID, e.URL, e.Title, e.Kind, e.Quality,
		e.Destination, e.Reference, e.SizeBytes, e.Status, e.Error,
	)
	if err != nil {
		return fmt.Errorf("ошибка записи истории: %w", err)
	}
	return nil
}

// ListHistory возвращает последние limit записей истории пользователя.
func (r *Repository) ListHistory(ctx context.Context, userID int64, limit int) ([]HistoryEntry, error) {
	query := `
		SELECT job_id, url, title, kind, quality, destination, reference, size_bytes, status, error, created_at
		FROM download_history
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, userID, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("ошибка получения истории: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(
			&e.JobID, &e.URL, &e.Title, &e.Kind, &e.Quality, &e.Destination,
			&e.Reference, &e.SizeBytes, &e.Status, &e.Error, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования истории: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListTransactions возвращает последние limit транзакций пользователя.
func (r *Repository) ListTransactions(ctx context.Context, userID int64, limit int) ([]Transaction, error) {
	query := `
		SELECT user_id, delta, reason, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, userID, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("ошибка получения транзакций: %w", err)
	}
	defer rows.Close()

	var txs []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.UserID, &t.Delta, &t.Reason, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования транзакции: %w", err)
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// ListUserIDs возвращает id всех пользователей.
func (r *Repository) ListUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения пользователей: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Stats считает пользователей, токены в обороте и загрузки.
func (r *Repository) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := r.db.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COALESCE(SUM(balance), 0) FROM users),
			(SELECT COUNT(*) FROM download_history WHERE status = $1),
			(SELECT COUNT(*) FROM download_history WHERE status <> $1)
	`, HistoryStatusCompleted).Scan(&st.Users, &st.CreditsInCirculation, &st.Downloads, &st.FailedDownloads)
	if err != nil {
		return Stats{}, fmt.Errorf("ошибка получения статистики: %w", err)
	}
	return st, nil
}

// Close закрывает пул соединений.
func (r *Repository) Close() error {
	r.db.Close()
	return nil
}

// sqlLimit превращает limit <= 0 («без ограничения») в очень большое число.
func sqlLimit(limit int) int {
	if limit <= 0 {
		return 1 << 30
	}
	return limit
}
