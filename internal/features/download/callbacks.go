// Package download — callbacks.go кодирует и разбирает callback_data кнопок.
//
// Форматы (Telegram ограничивает callback_data 64 байтами):
//
//	q:<job_id>:<quality>  — выбор качества
//	d:<job_id>:<dest>     — выбор способа доставки
//	x:<job_id>            — отмена задачи
//	m:<item>              — пункт главного меню
package download

import (
	"fmt"
	"strings"

	"serotonyl.ru/media-bot/internal/features/media"
)

// Максимальная длина callback_data в Telegram
const maxCallbackData = 64

// Пункты главного меню.
const (
	MenuBalance = "balance"
	MenuHistory = "history"
	MenuPrices  = "prices"
	MenuHelp    = "help"
)

// Action — разобранное нажатие кнопки.
type Action interface {
	Encode() string
	action()
}

// SelectQualityAction — пользователь выбрал качество.
type SelectQualityAction struct {
	JobID   string
	Quality media.Quality
}

// SelectDestinationAction — пользователь выбрал, куда доставить файл.
type SelectDestinationAction struct {
	JobID       string
	Destination Destination
}

// CancelAction — пользователь нажал «Отмена».
type CancelAction struct {
	JobID string
}

// MenuAction — пункт главного меню.
type MenuAction struct {
	Item string
}

func (a SelectQualityAction) Encode() string     { return "q:" + a.JobID + ":" + string(a.Quality) }
func (a SelectDestinationAction) Encode() string { return "d:" + a.JobID + ":" + string(a.Destination) }
func (a CancelAction) Encode() string            { return "x:" + a.JobID }
func (a MenuAction) Encode() string              { return "m:" + a.Item }

func (SelectQualityAction) action()     {}
func (SelectDestinationAction) action() {}
func (CancelAction) action()            {}
func (MenuAction) action()              {}

// ParseCallback разбирает callback_data. Неизвестный формат возвращает ошибку.
func ParseCallback(data string) (Action, error) {
	if data == "" || len(data) > maxCallbackData {
		return nil, fmt.Errorf("некорректные данные кнопки: %q", data)
	}
	prefix, rest, ok := strings.Cut(data, ":")
	if !ok || rest == "" {
		return nil, fmt.Errorf("некорректные данные кнопки: %q", data)
	}

	switch prefix {
	case "q":
		id, q, ok := strings.Cut(rest, ":")
		if !ok || id == "" || q == "" {
			return nil, fmt.Errorf("некорректный выбор качества: %q", data)
		}
		return SelectQualityAction{JobID: id, Quality: media.Quality(q)}, nil
	case "d":
		id, dest, ok := strings.Cut(rest, ":")
		if !ok || id == "" || dest == "" {
			return nil, fmt.Errorf("некорректный выбор доставки: %q", data)
		}
		return SelectDestinationAction{JobID: id, Destination: Destination(dest)}, nil
	case "x":
		return CancelAction{JobID: rest}, nil
	case "m":
		return MenuAction{Item: rest}, nil
	default:
		return nil, fmt.Errorf("неизвестная кнопка: %q", data)
	}
}
