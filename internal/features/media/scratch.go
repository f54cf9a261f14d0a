// Package media — scratch.go выдаёт каждой задаче свой временный каталог
// и удаляет его после завершения.
package media

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Area — временный каталог задачи.
type Area interface {
	Path() string
	// Release удаляет каталог. Повторные вызовы ничего не делают.
	Release() error
}

// Scratch — корень для временных каталогов задач.
type Scratch struct {
	root string
}

// NewScratch создаёт корень, если его нет.
func NewScratch(root string) (*Scratch, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("ошибка создания каталога загрузок: %w", err)
	}
	return &Scratch{root: root}, nil
}

// Root возвращает корневой каталог.
func (s *Scratch) Root() string { return s.root }

// Acquire создаёт каталог задачи. Каталог с таким id не должен существовать.
func (s *Scratch) Acquire(jobID string) (Area, error) {
	dir := filepath.Join(s.root, jobID)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ошибка создания каталога задачи: %w", err)
	}
	return &scratchArea{dir: dir}, nil
}

// Sweep удаляет каталоги старше maxAge (остатки после падения процесса).
// Возвращает число удалённых каталогов.
func (s *Scratch) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return 0, fmt.Errorf("ошибка чтения каталога загрузок: %w", err)
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.root, e.Name())
		if err := os.RemoveAll(path); err != nil {
			log.WithError(err).WithField("path", path).Warn("Не удалось удалить старый каталог")
			continue
		}
		removed++
	}
	return removed, nil
}

type scratchArea struct {
	dir  string
	once sync.Once
	err  error
}

func (a *scratchArea) Path() string { return a.dir }

func (a *scratchArea) Release() error {
	a.once.Do(func() {
		a.err = os.RemoveAll(a.dir)
		if a.err != nil {
			log.WithError(a.err).WithField("path", a.dir).Error("Ошибка удаления каталога задачи")
		}
	})
	return a.err
}
