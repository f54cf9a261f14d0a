// Package media — runner.go запускает rclone.
// Для rclone нет клиента-библиотеки, поэтому процесс запускается через os/exec;
// yt-dlp идёт через go-ytdlp (fetcher.go).
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// Command — что запустить.
type Command struct {
	Name string
	Args []string
}

// Result — вывод завершившегося процесса.
type Result struct {
	Stdout []byte
	Stderr []byte
}

// ExitError — процесс завершился с ненулевым кодом.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("процесс завершился с кодом %d", e.Code)
}

// Runner запускает процесс и ждёт его завершения.
// Отмена ctx убивает процесс; ошибка ctx возвращается как есть.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExecRunner — Runner на os/exec.
type ExecRunner struct {
	// WaitDelay — сколько ждать закрытия pipe после убийства процесса
	WaitDelay time.Duration
}

// NewExecRunner создаёт runner для реальных процессов.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{WaitDelay: 5 * time.Second}
}

func (r *ExecRunner) Run(ctx context.Context, c Command) (Result, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.WaitDelay = r.WaitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return res, &ExitError{Code: exitErr.ExitCode()}
	}
	if err != nil {
		return res, fmt.Errorf("не удалось запустить %s: %w", c.Name, err)
	}
	return res, nil
}
