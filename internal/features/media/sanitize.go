// Package media — sanitize.go чистит имя готового файла: убирает запрещённые
// символы и ограничивает длину, сохраняя расширение.
package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	illegalChars    = `<>:"/\|?*`
	defaultBaseName = "download"
)

// SanitizeFilename возвращает безопасное имя длиной не больше maxLen байт.
// Расширение сохраняется, если оно само по себе короче лимита.
func SanitizeFilename(name string, maxLen int) string {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	ext = cleanPart(ext)
	if len(ext) >= maxLen || ext == "." {
		ext = ""
	}

	base = cleanPart(base)
	base = strings.Trim(base, " ._")
	if base == "" {
		base = defaultBaseName
	}

	if limit := maxLen - len(ext); len(base) > limit {
		base = truncateUTF8(base, limit)
		base = strings.TrimRight(base, " ._")
		if base == "" {
			base = defaultBaseName[:min(len(defaultBaseName), limit)]
		}
	}
	return base + ext
}

func cleanPart(s string) string {
	var sb strings.Builder
	lastUnderscore := false
	for _, r := range s {
		switch {
		case r == utf8.RuneError, unicode.IsControl(r):
			continue
		case strings.ContainsRune(illegalChars, r):
			r = '_'
		}
		if r == '_' {
			if lastUnderscore {
				continue
			}
			lastUnderscore = true
		} else {
			lastUnderscore = false
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// truncateUTF8 обрезает строку до n байт, не разрывая многобайтовый символ.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// SanitizeFile переименовывает файл в безопасное имя в том же каталоге.
// Возвращает новый путь (или старый, если имя уже было безопасным).
func SanitizeFile(path string, maxLen int) (string, error) {
	dir, name := filepath.Split(path)
	clean := SanitizeFilename(name, maxLen)
	if clean == name {
		return path, nil
	}
	target := filepath.Join(dir, clean)
	if _, err := os.Stat(target); err == nil {
		return "", fmt.Errorf("файл %s уже существует", clean)
	}
	if err := os.Rename(path, target); err != nil {
		return "", fmt.Errorf("ошибка переименования файла: %w", err)
	}
	return target, nil
}
