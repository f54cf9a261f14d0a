// Package admin реализует админ-команды с необязательной парольной аутентификацией.
// models.go описывает структуры сессий, попыток входа и состояния диалога.
package admin

import (
	"time"

	"serotonyl.ru/media-bot/internal/features/ledger"
)

// AdminSession — активная сессия администратора.
type AdminSession struct {
	UserID          int64
	SessionToken    string
	AuthenticatedAt time.Time
	ExpiresAt       time.Time
	LastActivity    time.Time
}

// LoginAttempt — попытка входа (для защиты от brute-force).
type LoginAttempt struct {
	UserID      int64
	AttemptTime time.Time
	Success     bool
}

// AdminState — состояние диалога с админом.
type AdminState struct {
	State     string      // Текущее состояние ("", "awaiting_password", ...)
	Data      interface{} // Данные контекста
	ExpiresAt time.Time   // Когда состояние истекает (5 минут)
}

// Возможные состояния админ-диалога
const (
	StateNone              = ""                   // Нет активного состояния
	StateAwaitingPassword  = "awaiting_password"  // Ждём пароль
	StateAwaitingBroadcast = "awaiting_broadcast" // Ждём текст рассылки
)

// Stats — сводка для /admin.
type Stats struct {
	ledger.Stats
	ActiveJobs int
}
