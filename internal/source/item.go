package source

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when the collection key does not name a usable
// directory or manifest.
var ErrNotFound = errors.New("collection not found")

// Item is one element of a collection snapshot.
type Item struct {
	// ID identifies the item in logs and results. Directory sources use the
	// file name; manifest entries may override it.
	ID string `json:"id"`
	// Path is the absolute path handed to the pipeline step.
	Path string `json:"path"`
}

// BaseName is the file name without its extension.
func (i Item) BaseName() string {
	name := filepath.Base(i.Path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// Format is the lowercased extension without the dot, "png" when absent.
func (i Item) Format() string {
	ext := strings.TrimPrefix(filepath.Ext(i.Path), ".")
	if ext == "" {
		return "png"
	}
	return strings.ToLower(ext)
}

// DirName is the name of the directory holding the item.
func (i Item) DirName() string {
	return filepath.Base(filepath.Dir(i.Path))
}

// Source resolves a normalized collection key into an ordered snapshot.
// Implementations must be deterministic for an unchanged collection.
type Source interface {
	Resolve(ctx context.Context, key string) ([]Item, error)
}

// Func adapts a plain function into a Source.
type Func func(ctx context.Context, key string) ([]Item, error)

// Resolve implements Source.
func (f Func) Resolve(ctx context.Context, key string) ([]Item, error) {
	return f(ctx, key)
}
