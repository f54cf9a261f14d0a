// Package admin — repository.go хранит сессии и попытки входа в памяти процесса.
// После перезапуска бота админам нужно войти заново.
package admin

import (
	"fmt"
	"sync"
	"time"
)

// Repository — хранилище сессий и попыток входа.
type Repository struct {
	mu       sync.Mutex
	sessions map[int64]*AdminSession
	attempts map[int64][]LoginAttempt
	now      func() time.Time
}

// NewRepository создаёт репозиторий.
func NewRepository() *Repository {
	return &Repository{
		sessions: make(map[int64]*AdminSession),
		attempts: make(map[int64][]LoginAttempt),
		now:      time.Now,
	}
}

// CreateSession создаёт новую сессию администратора, заменяя старую.
func (r *Repository) CreateSession(session *AdminSession) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	s := *session
	s.AuthenticatedAt = now
	s.LastActivity = now
	r.sessions[s.UserID] = &s
}

// GetActiveSession возвращает активную сессию пользователя.
func (r *Repository) GetActiveSession(userID int64) (*AdminSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[userID]
	if !ok {
		return nil, fmt.Errorf("активная сессия не найдена")
	}
	if !r.now().Before(s.ExpiresAt) {
		delete(r.sessions, userID)
		return nil, fmt.Errorf("сессия истекла")
	}
	cp := *s
	return &cp, nil
}

// DeactivateSession завершает сессию.
func (r *Repository) DeactivateSession(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, userID)
}

// UpdateActivity обновляет время последней активности.
func (r *Repository) UpdateActivity(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[userID]; ok {
		s.LastActivity = r.now()
	}
}

// LogAttempt записывает попытку входа. Старые записи отбрасываются.
func (r *Repository) LogAttempt(userID int64, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	keep := r.attempts[userID][:0]
	for _, a := range r.attempts[userID] {
		if now.Sub(a.AttemptTime) < 24*time.Hour {
			keep = append(keep, a)
		}
	}
	r.attempts[userID] = append(keep, LoginAttempt{UserID: userID, AttemptTime: now, Success: success})
}

// GetRecentAttempts возвращает количество неудачных попыток за указанный период.
func (r *Repository) GetRecentAttempts(userID int64, period time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	since := r.now().Add(-period)
	count := 0
	for _, a := range r.attempts[userID] {
		if !a.Success && !a.AttemptTime.Before(since) {
			count++
		}
	}
	return count
}
