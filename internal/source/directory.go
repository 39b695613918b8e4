package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// DirectorySource lists the top-level regular files of a directory whose
// names match the configured globs, in natural order.
type DirectorySource struct {
	matcher *Matcher
}

// NewDirectorySource builds a source for a filter preset ("all", "png",
// "jpg", "custom"). custom is only consulted for the custom preset.
func NewDirectorySource(preset, custom string) (*DirectorySource, error) {
	pattern, err := PatternForPreset(preset, custom)
	if err != nil {
		return nil, err
	}
	matcher, err := NewMatcher(pattern)
	if err != nil {
		return nil, err
	}
	return &DirectorySource{matcher: matcher}, nil
}

// Resolve implements Source.
func (s *DirectorySource) Resolve(ctx context.Context, key string) ([]Item, error) {
	info, err := os.Stat(key)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("stat collection %s: %w", key, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrNotFound, key)
	}

	entries, err := os.ReadDir(key)
	if err != nil {
		return nil, fmt.Errorf("read collection %s: %w", key, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !s.matcher.Match(entry.Name()) {
			continue
		}
		full := filepath.Join(key, entry.Name())
		// Stat follows symlinks so linked files count as regular files.
		fi, err := os.Stat(full)
		if err != nil || !fi.Mode().IsRegular() {
			continue
		}
		names = append(names, entry.Name())
	}
	SortNatural(names)

	items := make([]Item, len(names))
	for i, name := range names {
		items[i] = Item{ID: name, Path: filepath.Join(key, name)}
	}
	return items, nil
}
