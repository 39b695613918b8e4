package source

import (
	"context"
	"os"
)

// AutoSource routes manifest files to ManifestSource and everything else to
// the directory source.
type AutoSource struct {
	Directory *DirectorySource
	Manifest  ManifestSource
}

// NewAutoSource builds an AutoSource whose directory half uses the given preset.
func NewAutoSource(preset, custom string) (*AutoSource, error) {
	dir, err := NewDirectorySource(preset, custom)
	if err != nil {
		return nil, err
	}
	return &AutoSource{Directory: dir}, nil
}

// Resolve implements Source.
func (s *AutoSource) Resolve(ctx context.Context, key string) ([]Item, error) {
	if IsManifest(key) {
		if info, err := os.Stat(key); err == nil && info.Mode().IsRegular() {
			return s.Manifest.Resolve(ctx, key)
		}
	}
	return s.Directory.Resolve(ctx, key)
}
