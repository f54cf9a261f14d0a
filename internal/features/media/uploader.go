// Package media — uploader.go копирует готовый файл в облако через rclone
// и получает на него публичную ссылку.
package media

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/media-bot/internal/common"
)

const toolRclone = "rclone"

// Uploader запускает rclone.
type Uploader struct {
	runner Runner
	binary string
	remote string // "remote:folder"
}

// NewUploader создаёт обёртку над rclone.
func NewUploader(runner Runner, binary, remote string) *Uploader {
	if binary == "" {
		binary = toolRclone
	}
	return &Uploader{
		runner: runner,
		binary: binary,
		remote: strings.TrimRight(remote, "/"),
	}
}

// Enabled сообщает, настроен ли remote.
func (u *Uploader) Enabled() bool {
	return u != nil && u.remote != ""
}

// Upload копирует файл в remote[/subfolder] и возвращает ссылку.
// Если rclone link не сработал, ссылкой становится путь в облаке.
// Ошибки: ErrUploadFailed, ErrTimeout, ErrCancelled.
func (u *Uploader) Upload(ctx context.Context, path, subfolder string) (string, error) {
	if !u.Enabled() {
		return "", common.ErrUploadFailed
	}

	dest := u.remote
	if sub := strings.Trim(subfolder, "/"); sub != "" {
		dest = dest + "/" + sub
	}

	res, err := u.runner.Run(ctx, Command{
		Name: u.binary,
		Args: []string{"copy", path, dest},
	})
	if err != nil {
		classified := classifyRun(toolRclone, res, err)
		if ctx.Err() != nil {
			return "", classified
		}
		return "", fmt.Errorf("%w: %v", common.ErrUploadFailed, classified)
	}

	remotePath := dest + "/" + filepath.Base(path)
	res, err = u.runner.Run(ctx, Command{
		Name: u.binary,
		Args: []string{"link", remotePath},
	})
	if err == nil {
		if link := strings.TrimSpace(string(res.Stdout)); link != "" {
			return link, nil
		}
	}

	log.WithFields(log.Fields{
		"remote_path": remotePath,
		"stderr":      tail(string(res.Stderr), 500),
	}).Warn("rclone link не вернул ссылку, отдаём путь в облаке")
	return remotePath, nil
}
