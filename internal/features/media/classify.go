// Package media — classify.go переводит сбой внешней утилиты в ошибку из common.
// Сырой вывод остаётся в логах, пользователю он не показывается.
package media

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lrstanley/go-ytdlp"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/media-bot/internal/common"
)

type stderrRule struct {
	needle string
	err    error
}

// Правила проверяются по порядку, сравнение без учёта регистра.
var stderrRules = []stderrRule{
	// Диск
	{"no space left on device", common.NewFetchError(common.FetchDisk)},
	{"errno 28", common.NewFetchError(common.FetchDisk)},
	{"disk quota exceeded", common.NewFetchError(common.FetchDisk)},

	// Ссылка
	{"is not a valid url", common.ErrURLInvalid},
	{"unsupported url", common.ErrURLInvalid},
	{"incomplete youtube id", common.ErrURLInvalid},

	// Недоступное видео
	{"video unavailable", common.ErrURLUnavailable},
	{"not available", common.ErrURLUnavailable},
	{"private video", common.ErrURLUnavailable},
	{"confirm your age", common.ErrURLUnavailable},
	{"age-restricted", common.ErrURLUnavailable},
	{"inappropriate for some users", common.ErrURLUnavailable},
	{"copyright", common.ErrURLUnavailable},
	{"has been removed", common.ErrURLUnavailable},
	{"sign in", common.ErrURLUnavailable},
	{"members-only", common.ErrURLUnavailable},

	// Сеть
	{"http error 403", common.NewFetchError(common.FetchNetwork)},
	{"http error 429", common.NewFetchError(common.FetchNetwork)},
	{"http error 5", common.NewFetchError(common.FetchNetwork)},
	{"unable to download webpage", common.NewFetchError(common.FetchNetwork)},
	{"connection reset", common.NewFetchError(common.FetchNetwork)},
	{"connection refused", common.NewFetchError(common.FetchNetwork)},
	{"timed out", common.NewFetchError(common.FetchNetwork)},
	{"name resolution", common.NewFetchError(common.FetchNetwork)},
	{"network is unreachable", common.NewFetchError(common.FetchNetwork)},
	{"getaddrinfo failed", common.NewFetchError(common.FetchNetwork)},
}

// ClassifyStderr сопоставляет вывод утилиты с таблицей правил.
// Неизвестный вывод даёт FetchFailed{unknown}.
func ClassifyStderr(stderr string) error {
	lower := strings.ToLower(stderr)
	for _, r := range stderrRules {
		if strings.Contains(lower, r.needle) {
			return r.err
		}
	}
	return common.NewFetchError(common.FetchUnknown)
}

// classifyRun превращает результат Runner.Run в ошибку таксономии.
func classifyRun(tool string, res Result, err error) error {
	code := 0
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.Code
	}
	return classifyFailure(tool, code, string(res.Stderr), err)
}

// classifyYtDlp — то же для go-ytdlp. Библиотека не всегда оборачивает ошибку
// контекста, поэтому отмена и таймаут берутся из ctx.
func classifyYtDlp(ctx context.Context, res *ytdlp.Result, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	code, stderr := 0, ""
	if res != nil {
		code, stderr = res.ExitCode, res.Stderr
	}
	return classifyFailure(toolYtDlp, code, stderr, err)
}

// classifyFailure:
//   - дедлайн контекста → ErrTimeout
//   - отмена контекста → ErrCancelled
//   - ненулевой код выхода → по правилам stderr
//   - всё остальное (утилита не запустилась) → ErrInternal
func classifyFailure(tool string, exitCode int, stderr string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", tool, common.ErrTimeout)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", tool, common.ErrCancelled)
	}

	if exitCode != 0 {
		classified := ClassifyStderr(stderr)
		log.WithFields(log.Fields{
			"tool":      tool,
			"exit_code": exitCode,
			"class":     classified.Error(),
			"stderr":    tail(stderr, 2000),
		}).Warn("Внешняя утилита завершилась с ошибкой")
		return fmt.Errorf("%s: %w", tool, classified)
	}

	return fmt.Errorf("%s: %w: %v", tool, common.ErrInternal, err)
}

// tail возвращает последние n байт строки (для логов).
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "…" + s[len(s)-n:]
}
