package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ManifestSource reads an explicit item list from a YAML or JSON file. Item
// order is the manifest order. Relative paths resolve against the manifest's
// directory.
//
// Accepted shapes:
//
//	items:
//	  - path: a.png
//	  - id: cover
//	    path: art/cover.jpg
//
// or a bare sequence of paths. JSON files are parsed by the same decoder.
type ManifestSource struct{}

type manifestEntry struct {
	ID   string `yaml:"id"`
	Path string `yaml:"path"`
}

// UnmarshalYAML accepts either a scalar path or a mapping.
func (e *manifestEntry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		e.Path = node.Value
		return nil
	}
	type plain manifestEntry
	return node.Decode((*plain)(e))
}

type manifestDoc struct {
	Items []manifestEntry `yaml:"items"`
}

// IsManifest reports whether path has a manifest extension.
func IsManifest(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// Resolve implements Source.
func (ManifestSource) Resolve(ctx context.Context, key string) ([]Item, error) {
	data, err := os.ReadFile(key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("read manifest %s: %w", key, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := decodeManifest(data)
	if err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", key, err)
	}

	base := filepath.Dir(key)
	items := make([]Item, 0, len(entries))
	for idx, entry := range entries {
		path := strings.TrimSpace(entry.Path)
		if path == "" {
			return nil, fmt.Errorf("parse manifest %s: entry %d has no path", key, idx)
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(base, path)
		}
		id := strings.TrimSpace(entry.ID)
		if id == "" {
			id = filepath.Base(path)
		}
		items = append(items, Item{ID: id, Path: filepath.Clean(path)})
	}
	return items, nil
}

func decodeManifest(data []byte) ([]manifestEntry, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		return nil, nil
	}
	node := root.Content[0]
	switch node.Kind {
	case yaml.SequenceNode:
		var entries []manifestEntry
		if err := node.Decode(&entries); err != nil {
			return nil, err
		}
		return entries, nil
	case yaml.MappingNode:
		var doc manifestDoc
		if err := node.Decode(&doc); err != nil {
			return nil, err
		}
		return doc.Items, nil
	default:
		return nil, fmt.Errorf("expected a list or an items mapping")
	}
}
