// Package admin — service.go содержит логику аутентификации, управления сессиями,
// выдачи токенов и сбора статистики.
package admin

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/argon2"

	"serotonyl.ru/media-bot/internal/common"
	"serotonyl.ru/media-bot/internal/features/ledger"
)

const (
	maxLoginAttempts = 3
	attemptsWindow   = time.Hour
	sessionTTL       = 24 * time.Hour
	stateTTL         = 5 * time.Minute
)

// Service управляет админ-командами.
type Service struct {
	repo         *Repository
	ledger       *ledger.Service
	passwordHash string
	activeJobs   func() int
	states       map[int64]*AdminState // Состояния диалогов (in-memory)
	statesMu     sync.RWMutex
}

// NewService создаёт сервис админки.
// Пустой passwordHash отключает вход по паролю: достаточно быть в ADMIN_IDS.
func NewService(repo *Repository, ledgerService *ledger.Service, passwordHash string, activeJobs func() int) *Service {
	if activeJobs == nil {
		activeJobs = func() int { return 0 }
	}
	return &Service{
		repo:         repo,
		ledger:       ledgerService,
		passwordHash: strings.TrimSpace(passwordHash),
		activeJobs:   activeJobs,
		states:       make(map[int64]*AdminState),
	}
}

// IsAdmin проверяет, входит ли пользователь в ADMIN_IDS.
func (s *Service) IsAdmin(userID int64) bool {
	return s.ledger.IsAdmin(userID)
}

// PasswordRequired сообщает, нужен ли /login.
func (s *Service) PasswordRequired() bool {
	return s.passwordHash != ""
}

// VerifyPassword проверяет пароль администратора с использованием Argon2id.
// Включает защиту от brute-force: 3 неудачные попытки = блокировка на 1 час.
func (s *Service) VerifyPassword(userID int64, password string) error {
	if !s.IsAdmin(userID) {
		return common.ErrNotAdmin
	}
	if s.repo.GetRecentAttempts(userID, attemptsWindow) >= maxLoginAttempts {
		return common.ErrTooManyAttempts
	}

	match := verifyArgon2id(password, s.passwordHash)
	s.repo.LogAttempt(userID, match)

	if !match {
		log.WithField("user_id", userID).Warn("Неверный пароль админки")
		return common.ErrWrongPassword
	}

	s.repo.CreateSession(&AdminSession{
		UserID:       userID,
		SessionToken: generateSecureToken(),
		ExpiresAt:    s.repo.now().Add(sessionTTL),
	})
	log.WithField("user_id", userID).Info("Админ вошёл в панель")
	return nil
}

// HasActiveSession проверяет, есть ли у пользователя активная сессия.
func (s *Service) HasActiveSession(userID int64) bool {
	if !s.PasswordRequired() {
		return true
	}
	session, err := s.repo.GetActiveSession(userID)
	return err == nil && session != nil
}

// Authorize проверяет права на админ-команду и продлевает активность сессии.
func (s *Service) Authorize(userID int64) error {
	if !s.IsAdmin(userID) {
		return common.ErrNotAdmin
	}
	if !s.HasActiveSession(userID) {
		return common.ErrSessionExpired
	}
	s.repo.UpdateActivity(userID)
	return nil
}

// Logout завершает сессию.
func (s *Service) Logout(userID int64) {
	s.repo.DeactivateSession(userID)
	s.ClearState(userID)
}

// GrantTokens начисляет токены пользователю. Возвращает новый баланс.
func (s *Service) GrantTokens(ctx context.Context, adminID, userID, amount int64) (int64, error) {
	if err := s.Authorize(adminID); err != nil {
		return 0, err
	}
	balance, err := s.ledger.Credit(ctx, userID, amount, ledger.ReasonAdminGrant)
	if err != nil {
		return 0, err
	}
	log.WithFields(log.Fields{
		"admin_id": adminID,
		"user_id":  userID,
		"amount":   amount,
		"balance":  balance,
	}).Info("Админ начислил токены")
	return balance, nil
}

// Stats возвращает сводку по боту.
func (s *Service) Stats(ctx context.Context, adminID int64) (Stats, error) {
	if err := s.Authorize(adminID); err != nil {
		return Stats{}, err
	}
	st, err := s.ledger.Stats(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Stats: st, ActiveJobs: s.activeJobs()}, nil
}

// Recipients возвращает получателей рассылки (все известные пользователи, кроме отправителя).
func (s *Service) Recipients(ctx context.Context, adminID int64) ([]int64, error) {
	if err := s.Authorize(adminID); err != nil {
		return nil, err
	}
	ids, err := s.ledger.UserIDs(ctx)
	if err != nil {
		return nil, err
	}
	out := ids[:0]
	for _, id := range ids {
		if id != adminID {
			out = append(out, id)
		}
	}
	return out, nil
}

// SetBan банит или разбанивает пользователя.
func (s *Service) SetBan(ctx context.Context, adminID, userID int64, banned bool) error {
	if err := s.Authorize(adminID); err != nil {
		return err
	}
	if err := s.ledger.SetBanned(ctx, userID, banned); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"admin_id": adminID,
		"user_id":  userID,
		"banned":   banned,
	}).Info("Админ изменил бан")
	return nil
}

// Users возвращает известных пользователей по возрастанию id.
// Записи, пропавшие между чтением списка и профиля, пропускаются.
func (s *Service) Users(ctx context.Context, adminID int64) ([]*ledger.User, error) {
	if err := s.Authorize(adminID); err != nil {
		return nil, err
	}
	ids, err := s.ledger.UserIDs(ctx)
	if err != nil {
		return nil, err
	}
	users := make([]*ledger.User, 0, len(ids))
	for _, id := range ids {
		u, err := s.ledger.GetUser(ctx, id)
		if errors.Is(err, common.ErrUserNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

// GetState возвращает текущее состояние диалога.
func (s *Service) GetState(userID int64) *AdminState {
	s.statesMu.RLock()
	defer s.statesMu.RUnlock()

	state, ok := s.states[userID]
	if !ok {
		return nil
	}
	// Проверяем истечение
	if time.Now().After(state.ExpiresAt) {
		return nil
	}
	return state
}

// SetState устанавливает состояние диалога с 5-минутным таймаутом.
func (s *Service) SetState(userID int64, stateName string, data interface{}) {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()

	s.states[userID] = &AdminState{
		State:     stateName,
		Data:      data,
		ExpiresAt: time.Now().Add(stateTTL),
	}
}

// ClearState сбрасывает состояние диалога.
func (s *Service) ClearState(userID int64) {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()
	delete(s.states, userID)
}

// --- Криптографические утилиты ---

// verifyArgon2id проверяет пароль по хешу Argon2id.
// Формат хеша: $argon2id$v=19$m=65536,t=3,p=2$<salt_base64>$<hash_base64>
func verifyArgon2id(password, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		log.Error("Некорректный формат хеша Argon2id")
		return false
	}

	var memory uint32
	var iterations uint32
	var parallelism uint8
	_, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism)
	if err != nil {
		log.WithError(err).Error("Ошибка парсинга параметров Argon2id")
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования соли")
		return false
	}

	expectedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования хеша")
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(expectedHash)))

	// Сравнение в постоянном времени
	return subtle.ConstantTimeCompare(computedHash, expectedHash) == 1
}

// generateSecureToken генерирует токен сессии.
func generateSecureToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
	}
	return base64.URLEncoding.EncodeToString(b)
}

// HashPassword кодирует пароль в формат, который понимает verifyArgon2id.
func HashPassword(password string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("ошибка генерации соли: %w", err)
	}
	const (
		memory      = 64 * 1024
		iterations  = 3
		parallelism = 2
		keyLen      = 32
	)
	hash := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, keyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, memory, iterations, parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}
