// Package ledger — filestore.go хранит леджер в одном JSON-файле.
// Форма файла: {"<user id>": {balance, history, transactions, ...}}.
// Файл перезаписывается целиком через временный файл и rename.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/media-bot/internal/common"
)

// FileStore — леджер в JSON-файле. Все операции под одним мьютексом.
type FileStore struct {
	path  string
	mu    sync.Mutex
	users map[int64]*User
	now   func() time.Time
}

// OpenFileStore читает леджер из path. Отсутствующий файл означает пустой леджер.
func OpenFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		path:  path,
		users: make(map[int64]*User),
		now:   time.Now,
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.WithField("path", path).Info("Файл леджера не найден, начинаем с пустого")
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("ошибка чтения леджера: %w", err)
	}

	if len(data) == 0 {
		return s, nil
	}

	var raw map[string]*User
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("повреждённый файл леджера %s: %w", path, err)
	}
	for key, u := range raw {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("некорректный id %q в леджере: %w", key, err)
		}
		if u == nil {
			continue
		}
		u.ID = id
		if u.Balance < 0 {
			return nil, fmt.Errorf("отрицательный баланс у пользователя %d в леджере", id)
		}
		s.users[id] = u
	}

	log.WithFields(log.Fields{
		"path":  path,
		"users": len(s.users),
	}).Info("Леджер загружен")
	return s, nil
}

func (s *FileStore) EnsureUser(ctx context.Context, p Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	u, ok := s.users[p.ID]
	if !ok {
		s.users[p.ID] = &User{
			ID:        p.ID,
			Username:  p.Username,
			FirstName: p.FirstName,
			LastName:  p.LastName,
			IsAdmin:   p.IsAdmin,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return s.persistLocked()
	}

	changed := u.IsAdmin != p.IsAdmin
	u.IsAdmin = p.IsAdmin
	// Пустой профиль (например, /addtoken по id) не затирает известные имена
	if p.Username != "" && p.Username != u.Username {
		u.Username, changed = p.Username, true
	}
	if p.FirstName != "" && p.FirstName != u.FirstName {
		u.FirstName, changed = p.FirstName, true
	}
	if p.LastName != "" && p.LastName != u.LastName {
		u.LastName, changed = p.LastName, true
	}
	if !changed {
		return nil
	}
	u.UpdatedAt = now
	return s.persistLocked()
}

func (s *FileStore) GetUser(ctx context.Context, userID int64) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, common.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (s *FileStore) SetBanned(ctx context.Context, userID int64, banned bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	u, ok := s.users[userID]
	if !ok {
		u = &User{ID: userID, CreatedAt: now}
		s.users[userID] = u
	} else if u.Banned == banned {
		return nil
	}
	prevBanned, prevUpdated := u.Banned, u.UpdatedAt
	u.Banned, u.UpdatedAt = banned, now

	if err := s.persistLocked(); err != nil {
		if !ok {
			delete(s.users, userID)
		} else {
			u.Banned, u.UpdatedAt = prevBanned, prevUpdated
		}
		return err
	}
	return nil
}

func (s *FileStore) ApplyDelta(ctx context.Context, userID int64, delta int64, reason string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return 0, common.ErrUserNotFound
	}
	if u.Balance+delta < 0 {
		return u.Balance, common.ErrInsufficientBalance
	}

	now := s.now()
	prevBalance, prevUpdated := u.Balance, u.UpdatedAt
	u.Balance += delta
	u.UpdatedAt = now
	u.Transactions = append(u.Transactions, Transaction{
		UserID:    userID,
		Delta:     delta,
		Reason:    reason,
		CreatedAt: now,
	})

	if err := s.persistLocked(); err != nil {
		// Память не должна расходиться с диском
		u.Balance, u.UpdatedAt = prevBalance, prevUpdated
		u.Transactions = u.Transactions[:len(u.Transactions)-1]
		return prevBalance, err
	}
	return u.Balance, nil
}

func (s *FileStore) AddHistory(ctx context.Context, userID int64, entry HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return common.ErrUserNotFound
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	u.History = append(u.History, entry)
	if err := s.persistLocked(); err != nil {
		u.History = u.History[:len(u.History)-1]
		return err
	}
	return nil
}

func (s *FileStore) ListHistory(ctx context.Context, userID int64, limit int) ([]HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	return lastReversed(u.History, limit), nil
}

func (s *FileStore) ListTransactions(ctx context.Context, userID int64, limit int) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	return lastReversed(u.Transactions, limit), nil
}

func (s *FileStore) ListUserIDs(ctx context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *FileStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st Stats
	st.Users = len(s.users)
	for _, u := range s.users {
		st.CreditsInCirculation += u.Balance
		for _, h := range u.History {
			if h.Status == HistoryStatusCompleted {
				st.Downloads++
			} else {
				st.FailedDownloads++
			}
		}
	}
	return st, nil
}

// Close ничего не делает: файл уже сохранён после последней мутации.
func (s *FileStore) Close() error { return nil }

// persistLocked записывает леджер во временный файл рядом с основным,
// делает fsync и атомарно подменяет основной файл через rename.
// Вызывать только под s.mu.
func (s *FileStore) persistLocked() error {
	raw := make(map[string]*User, len(s.users))
	for id, u := range s.users {
		raw[strconv.FormatInt(id, 10)] = u
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("ошибка сериализации леджера: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ошибка создания каталога леджера: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("ошибка записи леджера: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("ошибка fsync леджера: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("ошибка закрытия леджера: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("ошибка замены файла леджера: %w", err)
	}
	return nil
}

func cloneUser(u *User) *User {
	c := *u
	c.History = append([]HistoryEntry(nil), u.History...)
	c.Transactions = append([]Transaction(nil), u.Transactions...)
	return &c
}

// lastReversed возвращает до limit последних элементов в обратном порядке.
// limit <= 0 означает все элементы.
func lastReversed[T any](items []T, limit int) []T {
	n := len(items)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]T, 0, n)
	for i := len(items) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, items[i])
	}
	return out
}
