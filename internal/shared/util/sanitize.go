package util

import (
	"errors"
	"path"
	"strings"
	"unicode"
)

const maxFileNameRunes = 120

// SanitizeFileName removes path separators, control characters and whitespace runs,
// and rejects traversal patterns.
func SanitizeFileName(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", errors.New("invalid file name")
	}
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r == '/' || r == '\\' || unicode.IsSpace(r) || unicode.IsControl(r):
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		default:
			b.WriteRune(r)
			lastUnderscore = false
		}
	}
	s := strings.Trim(b.String(), "_")
	if s == "" {
		return "", errors.New("invalid file name")
	}
	if runes := []rune(s); len(runes) > maxFileNameRunes {
		ext := path.Ext(s)
		keep := maxFileNameRunes - len([]rune(ext))
		if keep < 1 {
			keep = maxFileNameRunes
			ext = ""
		}
		s = string(runes[:keep]) + ext
	}
	return s, nil
}

// CleanObjectKey normalizes a slash-separated storage key and rejects traversal.
func CleanObjectKey(key string) (string, error) {
	trimmed := strings.TrimLeft(strings.TrimSpace(key), "/")
	if trimmed == "" {
		return "", errors.New("invalid storage key")
	}
	clean := path.Clean(trimmed)
	if clean == "." || strings.HasPrefix(clean, "..") {
		return "", errors.New("invalid storage key")
	}
	return clean, nil
}
