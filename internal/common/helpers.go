// Package common содержит общие утилиты, используемые во всём проекте.
// Сюда входят: русская плюрализация, форматирование размеров и длительностей, работа с временем.
package common

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// PluralizeTokens возвращает правильную форму слова «токен» для числа n.
//
// Правила русского языка:
//   - n%10==1 И n%100!=11 → "токен" (1, 21, 31, 101, ...)
//   - n%10 в [2,3,4] И n%100 НЕ в [12,13,14] → "токена" (2, 3, 4, 22, 23, ...)
//   - Остальные случаи → "токенов" (0, 5-20, 25-30, 100, ...)
//
// Примеры:
//
//	PluralizeTokens(1)  → "токен"
//	PluralizeTokens(3)  → "токена"
//	PluralizeTokens(11) → "токенов"
func PluralizeTokens(n int64) string {
	return pluralize(n, "токен", "токена", "токенов")
}

// PluralizeVideos возвращает правильную форму слова «видео» в счёте («ролик»).
func PluralizeVideos(n int) string {
	return pluralize(int64(n), "ролик", "ролика", "роликов")
}

func pluralize(n int64, one, few, many string) string {
	absN := int64(math.Abs(float64(n)))
	lastDigit := absN % 10
	lastTwoDigits := absN % 100

	if lastDigit == 1 && lastTwoDigits != 11 {
		return one
	}
	if lastDigit >= 2 && lastDigit <= 4 && (lastTwoDigits < 12 || lastTwoDigits > 14) {
		return few
	}
	return many
}

// FormatBalance форматирует баланс в читабельную строку.
// Пример: FormatBalance(5) → "5 токенов"
func FormatBalance(balance int64) string {
	return fmt.Sprintf("%d %s", balance, PluralizeTokens(balance))
}

// FormatFileSize форматирует размер файла: 512 Б, 1.5 КБ, 23.4 МБ, 1.20 ГБ.
func FormatFileSize(size int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case size >= gb:
		return fmt.Sprintf("%.2f ГБ", float64(size)/gb)
	case size >= mb:
		return fmt.Sprintf("%.1f МБ", float64(size)/mb)
	case size >= kb:
		return fmt.Sprintf("%.1f КБ", float64(size)/kb)
	default:
		return fmt.Sprintf("%d Б", size)
	}
}

// FormatDuration форматирует длительность в секундах: 4:05 или 1:02:03.
// Для нуля и отрицательных значений возвращает "—".
func FormatDuration(seconds float64) string {
	if seconds <= 0 {
		return "—"
	}
	total := int64(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

var (
	locMu    sync.RWMutex
	location = time.UTC
)

// SetTimezone устанавливает часовой пояс для отображения дат.
// Вызывается один раз при старте из конфигурации.
func SetTimezone(name string) error {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return fmt.Errorf("неизвестный часовой пояс %q: %w", name, err)
	}
	locMu.Lock()
	location = loc
	locMu.Unlock()
	return nil
}

// Location возвращает часовой пояс бота.
func Location() *time.Location {
	locMu.RLock()
	defer locMu.RUnlock()
	return location
}

// FormatDateTime форматирует время в формат "02.01.2006 15:04" (день.месяц.год часы:минуты).
// Используется для отображения истории загрузок и транзакций.
func FormatDateTime(t time.Time) string {
	return t.In(Location()).Format("02.01.2006 15:04")
}
