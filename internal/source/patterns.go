package source

import (
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
)

// DefaultPattern is used by the "all" preset and as the fallback for an empty
// custom pattern.
const DefaultPattern = "*.png,*.jpg,*.jpeg,*.webp"

// Filter presets accepted by PatternForPreset.
const (
	PresetAll    = "all"
	PresetPNG    = "png"
	PresetJPG    = "jpg"
	PresetCustom = "custom"
)

var presetPatterns = map[string]string{
	PresetAll: DefaultPattern,
	PresetPNG: "*.png",
	PresetJPG: "*.jpg,*.jpeg",
}

// PatternForPreset returns the comma-separated glob list for preset. The
// custom preset uses custom, falling back to DefaultPattern when blank.
func PatternForPreset(preset, custom string) (string, error) {
	preset = strings.ToLower(strings.TrimSpace(preset))
	if preset == "" {
		preset = PresetAll
	}
	if preset == PresetCustom {
		if trimmed := strings.TrimSpace(custom); trimmed != "" {
			return trimmed, nil
		}
		return DefaultPattern, nil
	}
	pattern, ok := presetPatterns[preset]
	if !ok {
		return "", fmt.Errorf("unknown filter preset %q", preset)
	}
	return pattern, nil
}

// Matcher tests file names against a set of case-insensitive globs.
type Matcher struct {
	patterns []string
}

// foldCase returns the case-folded form of s. A Caser carries state, so a
// fresh one is built per call to keep Matcher safe for concurrent use.
func foldCase(s string) string {
	return cases.Fold().String(s)
}

// NewMatcher parses a comma-separated glob list. Blank entries are dropped;
// malformed globs are rejected.
func NewMatcher(patternList string) (*Matcher, error) {
	var patterns []string
	for _, raw := range strings.Split(patternList, ",") {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		folded := foldCase(trimmed)
		if _, err := filepath.Match(folded, ""); err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", trimmed, err)
		}
		patterns = append(patterns, folded)
	}
	return &Matcher{patterns: patterns}, nil
}

// Patterns returns the folded globs.
func (m *Matcher) Patterns() []string {
	return append([]string(nil), m.patterns...)
}

// Match reports whether name matches any pattern.
func (m *Matcher) Match(name string) bool {
	folded := foldCase(name)
	for _, pattern := range m.patterns {
		if ok, _ := filepath.Match(pattern, folded); ok {
			return true
		}
	}
	return false
}
