// Package ledger — handlers.go обрабатывает команды:
// /balance (баланс), /history (последние загрузки), /prices (пакеты токенов).
package ledger

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/media-bot/internal/common"
	"serotonyl.ru/media-bot/internal/config"
)

// Сколько записей истории показывать в /history
const historyLimit = 10

// Handler обрабатывает команды леджера.
type Handler struct {
	service  *Service
	bot      common.Sender
	packages []config.TokenPackage
	contact  string
}

// NewHandler создаёт обработчик команд леджера.
func NewHandler(service *Service, bot common.Sender, packages []config.TokenPackage, contact string) *Handler {
	return &Handler{
		service:  service,
		bot:      bot,
		packages: packages,
		contact:  contact,
	}
}

// HandleBalance показывает баланс.
//
//	💰 Баланс: 5 токенов
func (h *Handler) HandleBalance(ctx context.Context, chatID, userID int64) {
	text, err := h.BalanceText(ctx, userID)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка получения баланса")
		h.sendMessage(chatID, "❌ Ошибка получения баланса")
		return
	}
	h.sendMessage(chatID, text)
}

// BalanceText формирует текст баланса.
func (h *Handler) BalanceText(ctx context.Context, userID int64) (string, error) {
	if h.service.IsAdmin(userID) {
		return "💰 Баланс: безлимит (администратор)", nil
	}
	balance, err := h.service.GetBalance(ctx, userID)
	if err != nil {
		return "", err
	}
	text := fmt.Sprintf("💰 Баланс: %s\n1 токен = 1 загрузка", common.FormatBalance(balance))
	if balance == 0 {
		text += "\n\nПополнить: /prices"
	}
	return text, nil
}

// HandleHistory показывает последние загрузки.
func (h *Handler) HandleHistory(ctx context.Context, chatID, userID int64) {
	text, err := h.HistoryText(ctx, userID)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка получения истории")
		h.sendMessage(chatID, "❌ Ошибка получения истории")
		return
	}
	h.sendMessage(chatID, text)
}

// HistoryText формирует список последних загрузок.
func (h *Handler) HistoryText(ctx context.Context, userID int64) (string, error) {
	entries, err := h.service.History(ctx, userID, historyLimit)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "📋 У вас пока нет загрузок", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📋 Последние загрузки (%d):\n\n", len(entries)))
	for i, e := range entries {
		mark := "✅"
		if e.Status != HistoryStatusCompleted {
			mark = "❌"
		}
		title := e.Title
		if title == "" {
			title = e.URL
		}
		sb.WriteString(fmt.Sprintf("%d. %s %s\n   %s | %s %s",
			i+1, mark, title,
			common.FormatDateTime(e.CreatedAt), strings.ToUpper(e.Quality), e.Kind,
		))
		if e.SizeBytes > 0 {
			sb.WriteString(" | " + common.FormatFileSize(e.SizeBytes))
		}
		if e.Reference != "" {
			sb.WriteString("\n   " + e.Reference)
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// HandlePrices показывает пакеты токенов и контакт для покупки.
func (h *Handler) HandlePrices(chatID int64) {
	h.sendMessage(chatID, h.PricesText())
}

// PricesText формирует прайс-лист.
//
//	💳 Пакеты токенов:
//	• 1 токен — Rp 5.000
//	• 5 токенов — Rp 20.000
func (h *Handler) PricesText() string {
	if len(h.packages) == 0 {
		return fmt.Sprintf("💳 Для пополнения баланса напишите %s", h.contact)
	}
	var sb strings.Builder
	sb.WriteString("💳 Пакеты токенов:\n")
	for _, p := range h.packages {
		sb.WriteString(fmt.Sprintf("• %s — Rp %s\n", common.FormatBalance(p.Amount), common.FormatNumber(p.Price)))
	}
	sb.WriteString(fmt.Sprintf("\n1 токен = 1 загрузка. Для покупки напишите %s", h.contact))
	return sb.String()
}

// sendMessage — вспомогательный метод для отправки текстовых сообщений.
func (h *Handler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки сообщения")
	}
}
