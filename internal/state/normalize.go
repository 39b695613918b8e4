package state

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// NormalizeKey canonicalizes a collection path so that equivalent spellings
// ("~/pics", "/home/u/pics/", "./pics/../pics") share one record. Symlinks are
// resolved only when the path exists.
func NormalizeKey(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrInvalidKey
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		switch {
		case trimmed == "~":
			trimmed = home
		case trimmed[1] == '/' || trimmed[1] == filepath.Separator:
			trimmed = filepath.Join(home, trimmed[2:])
		}
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", trimmed, err)
	}
	abs = filepath.Clean(abs)
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return abs, nil
}
