// Package admin — handlers.go обрабатывает админ-команды в личных сообщениях:
// /login, /logout, /admin (статистика), /addtoken, /broadcast, /ban, /unban, /users.
package admin

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/media-bot/internal/common"
	"serotonyl.ru/media-bot/internal/features/ledger"
)

// Пауза между сообщениями рассылки (лимит Telegram ~30 сообщений в секунду)
const broadcastInterval = 40 * time.Millisecond

// Сколько строк показывает /users
const usersListLimit = 50

// Handler обрабатывает админ-команды.
type Handler struct {
	service *Service
	bot     common.Sender
	pause   time.Duration
}

// NewHandler создаёт обработчик админ-команд.
func NewHandler(service *Service, bot common.Sender) *Handler {
	return &Handler{
		service: service,
		bot:     bot,
		pause:   broadcastInterval,
	}
}

// HandleAdminMessage обрабатывает сообщение администратора в DM.
// Возвращает false, если сообщение не админское и его надо обработать дальше.
func (h *Handler) HandleAdminMessage(ctx context.Context, chatID, userID int64, messageID int, text string) bool {
	if !h.service.IsAdmin(userID) {
		return false
	}

	state := h.service.GetState(userID)

	// Ждём пароль: любое сообщение считается паролем
	if state != nil && state.State == StateAwaitingPassword {
		h.deleteMessage(chatID, messageID)
		h.handlePasswordInput(chatID, userID, text)
		return true
	}

	cmd, args := parseCommand(text)
	switch cmd {
	case "login":
		h.handleLogin(chatID, userID, messageID, args)
		return true

	case "logout":
		h.service.Logout(userID)
		h.sendMessage(chatID, "👋 Сессия завершена")
		return true

	case "admin", "stats":
		if h.requireSession(chatID, userID) {
			h.handleStats(ctx, chatID, userID)
		}
		return true

	case "addtoken":
		if h.requireSession(chatID, userID) {
			h.handleAddToken(ctx, chatID, userID, args)
		}
		return true

	case "ban", "unban":
		if h.requireSession(chatID, userID) {
			h.handleBan(ctx, chatID, userID, args, cmd == "ban")
		}
		return true

	case "users":
		if h.requireSession(chatID, userID) {
			h.handleUsers(ctx, chatID, userID)
		}
		return true

	case "broadcast":
		if !h.requireSession(chatID, userID) {
			return true
		}
		if len(args) == 0 {
			h.service.SetState(userID, StateAwaitingBroadcast, nil)
			h.sendMessage(chatID, "📢 Отправьте текст рассылки (или /cancel):")
			return true
		}
		h.handleBroadcast(ctx, chatID, userID, commandTail(text))
		return true

	case "cancel":
		if state != nil {
			h.service.ClearState(userID)
			h.sendMessage(chatID, "Отменено")
			return true
		}
		return false
	}

	if state != nil && state.State == StateAwaitingBroadcast && cmd == "" {
		h.service.ClearState(userID)
		h.handleBroadcast(ctx, chatID, userID, text)
		return true
	}
	return false
}

func (h *Handler) handleLogin(chatID, userID int64, messageID int, args []string) {
	if !h.service.PasswordRequired() {
		h.sendMessage(chatID, "✅ Пароль не требуется, команды доступны: /admin")
		return
	}
	if len(args) == 0 {
		h.service.SetState(userID, StateAwaitingPassword, nil)
		h.sendMessage(chatID, "🔐 Введите пароль для доступа к админке:")
		return
	}
	// не оставляем пароль в истории чата
	h.deleteMessage(chatID, messageID)
	h.handlePasswordInput(chatID, userID, strings.Join(args, " "))
}

// handlePasswordInput обрабатывает ввод пароля.
func (h *Handler) handlePasswordInput(chatID, userID int64, password string) {
	h.service.ClearState(userID)
	if err := h.service.VerifyPassword(userID, strings.TrimSpace(password)); err != nil {
		h.sendMessage(chatID, fmt.Sprintf("❌ %s", err.Error()))
		return
	}
	h.sendMessage(chatID, "✅ Аутентификация успешна! Команды: /admin")
}

// requireSession проверяет сессию; без неё просит пароль.
func (h *Handler) requireSession(chatID, userID int64) bool {
	err := h.service.Authorize(userID)
	if err == nil {
		return true
	}
	if errors.Is(err, common.ErrSessionExpired) {
		h.service.SetState(userID, StateAwaitingPassword, nil)
		h.sendMessage(chatID, "🔐 Введите пароль для доступа к админке:")
		return false
	}
	h.sendMessage(chatID, fmt.Sprintf("❌ %s", err.Error()))
	return false
}

func (h *Handler) handleStats(ctx context.Context, chatID, userID int64) {
	st, err := h.service.Stats(ctx, userID)
	if err != nil {
		log.WithError(err).Error("Ошибка получения статистики")
		h.sendMessage(chatID, "❌ Ошибка получения статистики")
		return
	}
	h.sendMessage(chatID, StatsText(st))
}

// StatsText формирует сводку для /admin.
func StatsText(st Stats) string {
	return fmt.Sprintf(
		"📊 Статистика\n\n"+
			"👥 Пользователей: %d\n"+
			"💰 Токенов на счетах: %s\n"+
			"✅ Загрузок: %d\n"+
			"❌ Ошибок: %d\n"+
			"⏳ Активных задач: %d\n\n"+
			"Команды:\n"+
			"/addtoken <user_id> <количество>\n"+
			"/broadcast <текст>\n"+
			"/users\n"+
			"/ban <user_id>, /unban <user_id>\n"+
			"/logout",
		st.Users, common.FormatNumber(st.CreditsInCirculation),
		st.Downloads, st.FailedDownloads, st.ActiveJobs,
	)
}

func (h *Handler) handleAddToken(ctx context.Context, chatID, adminID int64, args []string) {
	if len(args) != 2 {
		h.sendMessage(chatID, "Использование: /addtoken <user_id> <количество>")
		return
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		h.sendMessage(chatID, "❌ Некорректный user_id")
		return
	}
	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		h.sendMessage(chatID, "❌ Некорректное количество")
		return
	}

	balance, err := h.service.GrantTokens(ctx, adminID, userID, amount)
	if err != nil {
		if common.IsInternal(err) {
			log.WithError(err).WithField("user_id", userID).Error("Ошибка начисления токенов")
			h.sendMessage(chatID, "❌ Ошибка начисления токенов")
			return
		}
		h.sendMessage(chatID, fmt.Sprintf("❌ %s", err.Error()))
		return
	}

	h.sendMessage(chatID, fmt.Sprintf("✅ Начислено %s пользователю %d. Баланс: %s",
		common.FormatBalance(amount), userID, common.FormatBalance(balance)))
	h.sendMessage(userID, fmt.Sprintf("💰 Вам начислено %s. Баланс: %s",
		common.FormatBalance(amount), common.FormatBalance(balance)))
}

func (h *Handler) handleBan(ctx context.Context, chatID, adminID int64, args []string, banned bool) {
	cmd := "/unban"
	if banned {
		cmd = "/ban"
	}
	if len(args) != 1 {
		h.sendMessage(chatID, fmt.Sprintf("Использование: %s <user_id>", cmd))
		return
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		h.sendMessage(chatID, "❌ Некорректный user_id")
		return
	}

	if err := h.service.SetBan(ctx, adminID, userID, banned); err != nil {
		if errors.Is(err, common.ErrBanAdmin) {
			h.sendMessage(chatID, fmt.Sprintf("❌ %s", err.Error()))
			return
		}
		log.WithError(err).WithField("user_id", userID).Error("Ошибка изменения бана")
		h.sendMessage(chatID, "❌ Ошибка изменения бана")
		return
	}

	if banned {
		h.sendMessage(chatID, fmt.Sprintf("🚫 Пользователь %d забанен", userID))
		return
	}
	h.sendMessage(chatID, fmt.Sprintf("✅ Пользователь %d разбанен", userID))
}

func (h *Handler) handleUsers(ctx context.Context, chatID, adminID int64) {
	users, err := h.service.Users(ctx, adminID)
	if err != nil {
		log.WithError(err).Error("Ошибка получения пользователей")
		h.sendMessage(chatID, "❌ Ошибка получения пользователей")
		return
	}
	h.sendMessage(chatID, UsersText(users))
}

// UsersText формирует список для /users: id, имя, баланс и отметка бана.
func UsersText(users []*ledger.User) string {
	if len(users) == 0 {
		return "👥 Пользователей пока нет"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "👥 Пользователи (%d)\n", len(users))
	for i, u := range users {
		if i == usersListLimit {
			fmt.Fprintf(&b, "\n… и ещё %d", len(users)-usersListLimit)
			break
		}
		fmt.Fprintf(&b, "\n%d %s: %s", u.ID, u.DisplayName(), common.FormatBalance(u.Balance))
		switch {
		case u.IsAdmin:
			b.WriteString(" 👑")
		case u.Banned:
			b.WriteString(" 🚫")
		}
	}
	return b.String()
}

func (h *Handler) handleBroadcast(ctx context.Context, chatID, adminID int64, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		h.sendMessage(chatID, "❌ Пустой текст рассылки")
		return
	}
	ids, err := h.service.Recipients(ctx, adminID)
	if err != nil {
		log.WithError(err).Error("Ошибка получения получателей рассылки")
		h.sendMessage(chatID, "❌ Ошибка рассылки")
		return
	}

	sent := 0
	for i, id := range ids {
		if ctx.Err() != nil {
			break
		}
		if i > 0 && h.pause > 0 {
			time.Sleep(h.pause)
		}
		if _, err := h.bot.Send(tgbotapi.NewMessage(id, "📢 "+text)); err != nil {
			log.WithError(err).WithField("user_id", id).Debug("Не удалось отправить рассылку")
			continue
		}
		sent++
	}

	log.WithFields(log.Fields{
		"admin_id": adminID,
		"sent":     sent,
		"total":    len(ids),
	}).Info("Рассылка завершена")
	h.sendMessage(chatID, fmt.Sprintf("📢 Рассылка: доставлено %d из %d", sent, len(ids)))
}

// parseCommand разбирает "/cmd@bot arg1 arg2". Для не-команды cmd пустой.
func parseCommand(text string) (string, []string) {
	parts := strings.Fields(text)
	if len(parts) == 0 || !strings.HasPrefix(parts[0], "/") {
		return "", nil
	}
	cmd := strings.ToLower(strings.TrimPrefix(parts[0], "/"))
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	return cmd, parts[1:]
}

// commandTail возвращает текст после команды с сохранением переносов строк.
func commandTail(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexAny(text, " \n\t"); i >= 0 {
		return strings.TrimSpace(text[i+1:])
	}
	return ""
}

func (h *Handler) deleteMessage(chatID int64, messageID int) {
	if messageID == 0 {
		return
	}
	if _, err := h.bot.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		log.WithError(err).Debug("Не удалось удалить сообщение")
	}
}

func (h *Handler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки сообщения")
	}
}
