// Package ledger ведёт счёт токенов пользователей и историю их загрузок.
// models.go описывает записи пользователей, транзакций и истории.
package ledger

import (
	"strconv"
	"time"
)

// User — запись пользователя в леджере.
// Баланс никогда не бывает отрицательным; для админов списания не проводятся.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username,omitempty"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	Balance   int64     `json:"balance"`
	IsAdmin   bool      `json:"is_admin"`
	// Banned — доступ к боту закрыт администратором
	Banned    bool      `json:"banned,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// History — сводки завершённых задач, от старых к новым
	History []HistoryEntry `json:"history"`
	// Transactions — журнал движений токенов, только дописывается
	Transactions []Transaction `json:"transactions"`
}

// DisplayName возвращает @username, если он есть, иначе имя или id.
func (u *User) DisplayName() string {
	if u.Username != "" {
		return "@" + u.Username
	}
	if u.FirstName != "" {
		if u.LastName != "" {
			return u.FirstName + " " + u.LastName
		}
		return u.FirstName
	}
	return "id" + strconv.FormatInt(u.ID, 10)
}

// Profile — данные пользователя из Telegram, обновляются при каждом обращении.
type Profile struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
	IsAdmin   bool
}

// Transaction — одно движение токенов. Delta со знаком: + начисление, - списание.
type Transaction struct {
	UserID    int64     `json:"user_id"`
	Delta     int64     `json:"delta"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// Причины транзакций
const (
	ReasonDownload   = "download"    // Списание за загрузку
	ReasonAdminGrant = "admin_grant" // Начисление админом
	ReasonPurchase   = "purchase"    // Покупка пакета (начисляет админ после оплаты)
)

// HistoryEntry — сводка по задаче загрузки, сохраняется после её завершения.
type HistoryEntry struct {
	JobID       string    `json:"job_id"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Kind        string    `json:"kind"`
	Quality     string    `json:"quality"`
	Destination string    `json:"destination,omitempty"`
	Reference   string    `json:"reference,omitempty"`
	SizeBytes   int64     `json:"size_bytes,omitempty"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Итог задачи в истории
const (
	HistoryStatusCompleted = "completed"
	HistoryStatusFailed    = "failed"
)

// Stats — сводка для админ-панели.
type Stats struct {
	Users                int
	CreditsInCirculation int64
	Downloads            int
	FailedDownloads      int
}
