// Package common — errors.go определяет ошибки, которые используются во всех модулях бота.
// Координатор загрузок ловит их на своей границе и превращает в короткое
// сообщение для пользователя (см. UserMessage).
package common

import (
	"errors"
	"fmt"
)

// Ошибки ссылок и выбора формата
var (
	// ErrURLInvalid — ссылка не распознана как поддерживаемая
	ErrURLInvalid = errors.New("некорректная ссылка")
	// ErrURLUnavailable — видео удалено, приватное, с возрастным или региональным ограничением
	ErrURLUnavailable = errors.New("видео недоступно")
	// ErrUnsupportedSelection — пара (тип, качество) вне поддерживаемой таблицы
	ErrUnsupportedSelection = errors.New("неподдерживаемый формат")
)

// Ошибки леджера (токены)
var (
	// ErrInsufficientBalance — недостаточно токенов на счёте
	ErrInsufficientBalance = errors.New("недостаточно токенов на счёте")
	// ErrInvalidAmount — некорректная сумма (ноль или отрицательная)
	ErrInvalidAmount = errors.New("сумма должна быть положительной")
	// ErrUserNotFound — пользователь не найден в леджере
	ErrUserNotFound = errors.New("пользователь не найден")
)

// Ошибки выполнения задачи
var (
	// ErrNotAuthorized — пользователь не админ и не в списке разрешённых
	ErrNotAuthorized = errors.New("нет доступа к боту")
	// ErrFetchFailed — внешняя утилита загрузки завершилась с ошибкой (см. FetchError)
	ErrFetchFailed = errors.New("ошибка загрузки")
	// ErrPayloadTooLarge — файл больше лимита для отправки в чат
	ErrPayloadTooLarge = errors.New("файл слишком большой для отправки в чат")
	// ErrUploadFailed — rclone не смог загрузить файл в облако
	ErrUploadFailed = errors.New("ошибка загрузки в облако")
	// ErrTimeout — внешний процесс не уложился в таймаут
	ErrTimeout = errors.New("превышено время ожидания")
	// ErrCancelled — задачу отменил пользователь или админ
	ErrCancelled = errors.New("задача отменена")
	// ErrJobNotFound — задача не найдена или уже завершена
	ErrJobNotFound = errors.New("задача не найдена")
	// ErrInternal — всё, что не классифицировано выше
	ErrInternal = errors.New("внутренняя ошибка")
)

// Ошибки админки
var (
	// ErrNotAdmin — пользователь не является администратором
	ErrNotAdmin = errors.New("у вас нет прав администратора")
	// ErrWrongPassword — неверный пароль
	ErrWrongPassword = errors.New("неверный пароль")
	// ErrTooManyAttempts — слишком много неудачных попыток входа
	ErrTooManyAttempts = errors.New("слишком много попыток, подождите 1 час")
	// ErrSessionExpired — сессия истекла
	ErrSessionExpired = errors.New("сессия истекла, авторизуйтесь заново")
	// ErrBanAdmin — попытка забанить администратора
	ErrBanAdmin = errors.New("администратора нельзя забанить")
)

// FetchReason — класс сбоя внешней утилиты загрузки.
type FetchReason string

const (
	FetchNetwork FetchReason = "network"
	FetchDisk    FetchReason = "disk"
	FetchUnknown FetchReason = "unknown"
)

// FetchError — сбой загрузки с классом причины.
// errors.Is(err, ErrFetchFailed) == true для любого FetchError.
type FetchError struct {
	Reason FetchReason
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s (%s)", ErrFetchFailed.Error(), e.Reason)
}

// Is позволяет сравнивать FetchError с ErrFetchFailed.
func (e *FetchError) Is(target error) bool {
	return target == ErrFetchFailed
}

// NewFetchError создаёт ошибку загрузки с указанной причиной.
func NewFetchError(reason FetchReason) error {
	return &FetchError{Reason: reason}
}

// IsInternal сообщает, что ошибка не попала ни в один известный класс.
// Только такие ошибки логируются оператору как Error.
func IsInternal(err error) bool {
	if err == nil {
		return false
	}
	for _, known := range []error{
		ErrURLInvalid, ErrURLUnavailable, ErrUnsupportedSelection,
		ErrInsufficientBalance, ErrInvalidAmount, ErrUserNotFound,
		ErrNotAuthorized, ErrFetchFailed, ErrPayloadTooLarge,
		ErrUploadFailed, ErrTimeout, ErrCancelled, ErrJobNotFound,
	} {
		if errors.Is(err, known) {
			return false
		}
	}
	return true
}

// UserMessage превращает ошибку в короткий текст для чата.
// Сырой вывод утилит и внутренние детали сюда никогда не попадают.
func UserMessage(err error) string {
	var fe *FetchError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrURLInvalid):
		return "Ссылка не распознана. Пришлите ссылку на видео или плейлист YouTube."
	case errors.Is(err, ErrURLUnavailable):
		return "Видео недоступно: удалено, приватное или с возрастным/региональным ограничением."
	case errors.Is(err, ErrUnsupportedSelection):
		return "Такой формат не поддерживается."
	case errors.Is(err, ErrInsufficientBalance):
		return "Недостаточно токенов. Посмотрите /prices, чтобы пополнить баланс."
	case errors.Is(err, ErrNotAuthorized):
		return "У вас нет доступа к боту."
	case errors.As(err, &fe):
		switch fe.Reason {
		case FetchNetwork:
			return "Не удалось скачать: проблема с сетью. Попробуйте ещё раз позже."
		case FetchDisk:
			return "Не удалось скачать: на сервере закончилось место."
		default:
			return "Не удалось скачать файл."
		}
	case errors.Is(err, ErrPayloadTooLarge):
		return "Файл слишком большой для отправки в чат."
	case errors.Is(err, ErrUploadFailed):
		return "Не удалось загрузить файл в облако."
	case errors.Is(err, ErrTimeout):
		return "Превышено время ожидания."
	case errors.Is(err, ErrCancelled):
		return "Задача отменена."
	case errors.Is(err, ErrJobNotFound):
		return "Сессия устарела. Пришлите ссылку ещё раз."
	default:
		return "Что-то пошло не так. Попробуйте ещё раз."
	}
}
