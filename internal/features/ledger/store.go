// Package ledger — store.go описывает хранилище леджера.
// Есть две реализации: JSON-файл (FileStore) и PostgreSQL (Repository).
package ledger

import "context"

// Store хранит пользователей, их транзакции и историю загрузок.
// Каждая мутация сохраняется до возврата из метода.
type Store interface {
	// EnsureUser создаёт пользователя с нулевым балансом или обновляет его профиль.
	EnsureUser(ctx context.Context, p Profile) error
	// GetUser возвращает пользователя или common.ErrUserNotFound.
	GetUser(ctx context.Context, userID int64) (*User, error)
	// ApplyDelta атомарно меняет баланс и записывает транзакцию.
	// Если баланс стал бы отрицательным, возвращает common.ErrInsufficientBalance и ничего не меняет.
	ApplyDelta(ctx context.Context, userID int64, delta int64, reason string) (int64, error)
	// AddHistory дописывает сводку задачи в историю пользователя.
	AddHistory(ctx context.Context, userID int64, entry HistoryEntry) error
	// ListHistory возвращает последние limit записей истории, новые первыми.
	ListHistory(ctx context.Context, userID int64, limit int) ([]HistoryEntry, error)
	// ListTransactions возвращает последние limit транзакций, новые первыми.
	ListTransactions(ctx context.Context, userID int64, limit int) ([]Transaction, error)
	// SetBanned ставит или снимает бан. Пользователь создаётся, если его ещё нет.
	SetBanned(ctx context.Context, userID int64, banned bool) error
	// ListUserIDs возвращает id всех известных пользователей.
	ListUserIDs(ctx context.Context) ([]int64, error)
	// Stats считает сводку для админки.
	Stats(ctx context.Context) (Stats, error)
	Close() error
}
