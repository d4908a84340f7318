package item

import (
	"errors"
	"strings"
)

// ErrInvalidName is returned when a name is empty or unusable after
// sanitization.
var ErrInvalidName = errors.New("invalid name")

const maxNameLength = 255

// sanitizeName strips characters that would break path materialization or
// confuse downstream filesystems, trims surrounding whitespace and
// trailing dots, and caps the length. Returns ErrInvalidName when nothing
// usable remains.
func sanitizeName(name string) (string, error) {
	var b strings.Builder
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			continue
		}
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			continue
		}
		b.WriteRune(r)
	}
	clean := strings.TrimSpace(b.String())
	clean = strings.TrimRight(clean, ".")
	clean = strings.TrimSpace(clean)

	if clean == "" || clean == "." || clean == ".." {
		return "", ErrInvalidName
	}
	if runes := []rune(clean); len(runes) > maxNameLength {
		clean = string(runes[:maxNameLength])
	}
	return clean, nil
}

// parentPathOf strips the last path segment, yielding the ancestor prefix
// an item's siblings share. Root-level items yield "".
func parentPathOf(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return ""
	}
	return path[:idx]
}
