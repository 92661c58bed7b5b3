package patterns

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gobwas/glob"
)

// Matcher handles pattern matching for watch and ignore patterns.
//
// Patterns use '/' as separator: '*' stays within one path segment and '**'
// spans segments. A pattern matches a path when it matches any trailing run
// of the path's segments, so "*.png" matches by file name and "assets/**"
// matches anything below an assets directory wherever it sits.
type Matcher struct {
	watchPatterns  []glob.Glob
	ignorePatterns []glob.Glob
	mu             sync.RWMutex
}

// NewMatcher creates a new pattern matcher
func NewMatcher() *Matcher {
	return &Matcher{}
}

// SetWatchPatterns replaces the watch patterns
func (m *Matcher) SetWatchPatterns(patterns []string) error {
	compiled, err := compile(patterns)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.watchPatterns = compiled
	m.mu.Unlock()
	return nil
}

// SetIgnorePatterns replaces the ignore patterns
func (m *Matcher) SetIgnorePatterns(patterns []string) error {
	compiled, err := compile(patterns)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.ignorePatterns = compiled
	m.mu.Unlock()
	return nil
}

// AddIgnorePatterns appends to the ignore patterns
func (m *Matcher) AddIgnorePatterns(patterns []string) error {
	compiled, err := compile(patterns)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.ignorePatterns = append(m.ignorePatterns, compiled...)
	m.mu.Unlock()
	return nil
}

// AddWatchPatterns appends to the watch patterns
func (m *Matcher) AddWatchPatterns(patterns []string) error {
	compiled, err := compile(patterns)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.watchPatterns = append(m.watchPatterns, compiled...)
	m.mu.Unlock()
	return nil
}

// IsIgnored checks if a path matches any ignore pattern
func (m *Matcher) IsIgnored(path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return matchAny(m.ignorePatterns, path)
}

// IsIgnoredDir checks a directory path, so that "build/**" also covers
// the build directory itself.
func (m *Matcher) IsIgnoredDir(path string) bool {
	return m.IsIgnored(strings.TrimSuffix(filepath.ToSlash(path), "/") + "/")
}

// IsWatched checks if a path matches any watch pattern.
// Returns false if no watch patterns are defined (STRICT MODE)
func (m *Matcher) IsWatched(path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return matchAny(m.watchPatterns, path)
}

// Allows reports whether events for path should be queued
func (m *Matcher) Allows(path string) bool {
	return !m.IsIgnored(path) && m.IsWatched(path)
}

// ReadPatternFile reads one pattern per line. Blank lines and lines
// starting with '#' are skipped. A missing file yields no patterns.
func ReadPatternFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return patterns, nil
}

func compile(patterns []string) ([]glob.Glob, error) {
	compiled := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" || strings.HasPrefix(pattern, "#") {
			continue
		}

		pattern = filepath.ToSlash(pattern)
		// "dir/" means the directory and everything below it
		if strings.HasSuffix(pattern, "/") {
			pattern += "**"
		}

		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", pattern, err)
		}
		compiled = append(compiled, g)
	}
	return compiled, nil
}

func matchAny(globs []glob.Glob, path string) bool {
	if len(globs) == 0 {
		return false
	}
	candidates := suffixes(path)
	for _, g := range globs {
		for _, c := range candidates {
			if g.Match(c) {
				return true
			}
		}
	}
	return false
}

// suffixes returns path and every trailing run of its segments, the file
// name last.
func suffixes(path string) []string {
	normalized := strings.TrimLeft(filepath.ToSlash(path), "/")
	if normalized == "" {
		return nil
	}

	parts := strings.Split(normalized, "/")
	out := make([]string, 0, len(parts))
	for i := range parts {
		if s := strings.Join(parts[i:], "/"); s != "" {
			out = append(out, s)
		}
	}
	return out
}
