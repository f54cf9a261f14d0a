// Package ledger — service.go содержит бизнес-логику леджера:
// проверку сумм, сериализацию операций по пользователю и обход списаний для админов.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/media-bot/internal/common"
)

// AdminChecker сообщает, является ли пользователь администратором.
type AdminChecker func(userID int64) bool

// Service — единственное место, где меняются балансы.
type Service struct {
	store   Store
	isAdmin AdminChecker

	locksMu sync.Mutex
	locks   map[int64]*sync.Mutex
}

// NewService создаёт сервис леджера поверх хранилища.
func NewService(store Store, isAdmin AdminChecker) *Service {
	if isAdmin == nil {
		isAdmin = func(int64) bool { return false }
	}
	return &Service{
		store:   store,
		isAdmin: isAdmin,
		locks:   make(map[int64]*sync.Mutex),
	}
}

// userLock возвращает мьютекс пользователя. Мьютексы не удаляются:
// пользователей у бота немного, а удаление потребовало бы счётчика ссылок.
func (s *Service) userLock(userID int64) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	m, ok := s.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[userID] = m
	}
	return m
}

// EnsureUser регистрирует пользователя (или обновляет профиль) при первом обращении.
func (s *Service) EnsureUser(ctx context.Context, p Profile) error {
	p.IsAdmin = s.isAdmin(p.ID)
	return s.store.EnsureUser(ctx, p)
}

// IsAdmin сообщает, обходит ли пользователь списания.
func (s *Service) IsAdmin(userID int64) bool {
	return s.isAdmin(userID)
}

// GetBalance возвращает баланс. Неизвестный пользователь имеет 0 токенов.
func (s *Service) GetBalance(ctx context.Context, userID int64) (int64, error) {
	u, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, common.ErrUserNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return u.Balance, nil
}

// GetUser возвращает запись пользователя.
func (s *Service) GetUser(ctx context.Context, userID int64) (*User, error) {
	return s.store.GetUser(ctx, userID)
}

// Credit начисляет amount токенов и возвращает новый баланс.
// Пользователь создаётся, если его ещё нет в леджере.
func (s *Service) Credit(ctx context.Context, userID, amount int64, reason string) (int64, error) {
	if amount <= 0 {
		return 0, common.ErrInvalidAmount
	}

	m := s.userLock(userID)
	m.Lock()
	defer m.Unlock()

	if err := s.store.EnsureUser(ctx, Profile{ID: userID, IsAdmin: s.isAdmin(userID)}); err != nil {
		return 0, err
	}
	balance, err := s.store.ApplyDelta(ctx, userID, amount, reason)
	if err != nil {
		return 0, fmt.Errorf("ошибка начисления: %w", err)
	}

	log.WithFields(log.Fields{
		"user_id": userID,
		"amount":  amount,
		"reason":  reason,
		"balance": balance,
	}).Info("Токены начислены")
	return balance, nil
}

// Debit списывает amount токенов и возвращает новый баланс.
// Для админов списание не проводится, возвращается текущий баланс.
func (s *Service) Debit(ctx context.Context, userID, amount int64, reason string) (int64, error) {
	if amount <= 0 {
		return 0, common.ErrInvalidAmount
	}
	if s.isAdmin(userID) {
		return s.GetBalance(ctx, userID)
	}

	m := s.userLock(userID)
	m.Lock()
	defer m.Unlock()

	balance, err := s.store.ApplyDelta(ctx, userID, -amount, reason)
	switch {
	case errors.Is(err, common.ErrUserNotFound), errors.Is(err, common.ErrInsufficientBalance):
		return balance, common.ErrInsufficientBalance
	case err != nil:
		return balance, fmt.Errorf("ошибка списания: %w", err)
	}

	log.WithFields(log.Fields{
		"user_id": userID,
		"amount":  amount,
		"reason":  reason,
		"balance": balance,
	}).Info("Токены списаны")
	return balance, nil
}

// CanAfford проверяет баланс без списания. Админы могут всё.
func (s *Service) CanAfford(ctx context.Context, userID, amount int64) (bool, error) {
	if s.isAdmin(userID) {
		return true, nil
	}
	balance, err := s.GetBalance(ctx, userID)
	if err != nil {
		return false, err
	}
	return balance >= amount, nil
}

// RecordDownload сохраняет сводку задачи в историю пользователя.
func (s *Service) RecordDownload(ctx context.Context, userID int64, entry HistoryEntry) error {
	m := s.userLock(userID)
	m.Lock()
	defer m.Unlock()

	err := s.store.AddHistory(ctx, userID, entry)
	if errors.Is(err, common.ErrUserNotFound) {
		if err := s.store.EnsureUser(ctx, Profile{ID: userID, IsAdmin: s.isAdmin(userID)}); err != nil {
			return err
		}
		err = s.store.AddHistory(ctx, userID, entry)
	}
	return err
}

// SetBanned закрывает или открывает доступ пользователю. Админа забанить нельзя.
func (s *Service) SetBanned(ctx context.Context, userID int64, banned bool) error {
	if banned && s.isAdmin(userID) {
		return common.ErrBanAdmin
	}
	if err := s.store.SetBanned(ctx, userID, banned); err != nil {
		return err
	}
	log.WithFields(log.Fields{"user_id": userID, "banned": banned}).Info("Бан изменён")
	return nil
}

// IsBanned сообщает, забанен ли пользователь. При ошибке хранилища бана нет,
// доступ решает список разрешённых.
func (s *Service) IsBanned(ctx context.Context, userID int64) bool {
	if s.isAdmin(userID) {
		return false
	}
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if !errors.Is(err, common.ErrUserNotFound) {
			log.WithError(err).WithField("user_id", userID).Warn("Не удалось проверить бан")
		}
		return false
	}
	return u.Banned
}

// History возвращает последние загрузки пользователя, новые первыми.
func (s *Service) History(ctx context.Context, userID int64, limit int) ([]HistoryEntry, error) {
	return s.store.ListHistory(ctx, userID, limit)
}

// Transactions возвращает последние движения токенов пользователя.
func (s *Service) Transactions(ctx context.Context, userID int64, limit int) ([]Transaction, error) {
	return s.store.ListTransactions(ctx, userID, limit)
}

// UserIDs возвращает id всех пользователей (для рассылки).
func (s *Service) UserIDs(ctx context.Context) ([]int64, error) {
	return s.store.ListUserIDs(ctx)
}

// Stats возвращает сводку для админки.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	return s.store.Stats(ctx)
}

// Close закрывает хранилище.
func (s *Service) Close() error {
	return s.store.Close()
}
