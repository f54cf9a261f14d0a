// Package filters решает, кого бот обслуживает.
package filters

import (
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/media-bot/internal/common"
)

// Не чаще одного отказа пользователю за этот интервал
const denyNoticeInterval = time.Hour

// AccessFilter пропускает админов и пользователей из списка разрешённых.
// Пустой список разрешённых означает, что ботом пользуются только админы.
// Забаненный пользователь не проходит, даже если он в списке.
type AccessFilter struct {
	isAdmin   func(int64) bool
	isAllowed func(int64) bool
	isBanned  func(int64) bool
	bot       common.Sender

	mu       sync.Mutex
	notified map[int64]time.Time
	now      func() time.Time
}

// NewAccessFilter создаёт фильтр. isBanned может быть nil.
func NewAccessFilter(isAdmin, isAllowed, isBanned func(int64) bool, bot common.Sender) *AccessFilter {
	if isBanned == nil {
		isBanned = func(int64) bool { return false }
	}
	return &AccessFilter{
		isAdmin:   isAdmin,
		isAllowed: isAllowed,
		isBanned:  isBanned,
		bot:       bot,
		notified:  make(map[int64]time.Time),
		now:       time.Now,
	}
}

// Authorized — админ или незабаненный пользователь из списка разрешённых.
func (f *AccessFilter) Authorized(userID int64) bool {
	if f.isAdmin(userID) {
		return true
	}
	return f.isAllowed(userID) && !f.isBanned(userID)
}

// CheckAccess проверяет сообщение. Бот работает только в личных чатах.
func (f *AccessFilter) CheckAccess(message *tgbotapi.Message) bool {
	if message == nil || message.Chat == nil {
		log.WithField("component", "AccessFilter").Warn("nil message/chat")
		return false
	}
	if message.From == nil {
		log.WithFields(log.Fields{
			"component": "AccessFilter",
			"chat_id":   message.Chat.ID,
			"chat_type": message.Chat.Type,
		}).Warn("nil message.From (service/channel message?)")
		return false
	}

	logger := log.WithFields(log.Fields{
		"component": "AccessFilter",
		"chat_id":   message.Chat.ID,
		"chat_type": message.Chat.Type,
		"user_id":   message.From.ID,
	})

	if !message.Chat.IsPrivate() {
		logger.Debug("deny: not a private chat")
		return false
	}
	if f.Authorized(message.From.ID) {
		return true
	}

	logger.Info("deny: user not in ADMIN_IDS/ALLOWED_USER_IDS or banned")
	f.notifyDenied(message.Chat.ID, message.From.ID)
	return false
}

// CheckCallback проверяет нажатие кнопки.
func (f *AccessFilter) CheckCallback(cb *tgbotapi.CallbackQuery) bool {
	if cb == nil || cb.From == nil {
		return false
	}
	if f.Authorized(cb.From.ID) {
		return true
	}
	log.WithFields(log.Fields{
		"component": "AccessFilter",
		"user_id":   cb.From.ID,
	}).Info("deny: callback from unauthorized user")
	answer := tgbotapi.NewCallback(cb.ID, common.UserMessage(common.ErrNotAuthorized))
	if _, err := f.bot.Request(answer); err != nil {
		log.WithError(err).Warn("failed to answer denied callback")
	}
	return false
}

func (f *AccessFilter) notifyDenied(chatID, userID int64) {
	f.mu.Lock()
	last, seen := f.notified[userID]
	now := f.now()
	if seen && now.Sub(last) < denyNoticeInterval {
		f.mu.Unlock()
		return
	}
	f.notified[userID] = now
	f.mu.Unlock()

	text := fmt.Sprintf("❌ %s\nВаш ID: %d — передайте его администратору.", common.UserMessage(common.ErrNotAuthorized), userID)
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := f.bot.Send(msg); err != nil {
		log.WithError(err).Warn("failed to send deny message")
	}
}
