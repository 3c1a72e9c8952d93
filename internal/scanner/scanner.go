// Package scanner finds the C translation units to analyse. Directories
// are walked recursively and .ptrinferignore files, with gitignore-style
// patterns, prune what is collected.
package scanner

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// IgnoreFileName is the per-directory ignore file.
const IgnoreFileName = ".ptrinferignore"

// Options configures the scanner behavior.
type Options struct {
	SkipHidden      bool     // Skip hidden files and directories (starting with .)
	IncludeHeaders  bool     // Collect .h files as units of their own
	DefaultExcludes []string // Directory names never entered
	IgnoreFileName  string
}

// DefaultOptions returns scanner options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		SkipHidden:     true,
		IncludeHeaders: true,
		IgnoreFileName: IgnoreFileName,
		DefaultExcludes: []string{
			".git",
			".hg",
			".svn",
			"build",
			"CMakeFiles",
			"node_modules",
			"vendor",
			"third_party",
		},
	}
}

// Scanner collects C source files.
type Scanner struct {
	opts Options
}

// New creates a new Scanner with the given options.
func New(opts Options) *Scanner {
	if opts.IgnoreFileName == "" {
		opts.IgnoreFileName = IgnoreFileName
	}
	return &Scanner{opts: opts}
}

// IsSource reports whether path has a C source extension accepted by the
// scanner.
func (s *Scanner) IsSource(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".c":
		return true
	case ".h":
		return s.opts.IncludeHeaders
	}
	return false
}

// Collect expands paths into a sorted, de-duplicated list of source
// files. Files named explicitly are kept whatever their extension;
// directories are walked.
func (s *Scanner) Collect(paths []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		if !info.IsDir() {
			add(filepath.Clean(p))
			continue
		}
		files, err := s.Scan(p)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			add(f)
		}
	}
	slices.Sort(out)
	return out, nil
}

// Scan walks root and returns the source files under it, joined with
// root.
func (s *Scanner) Scan(root string) ([]string, error) {
	root = filepath.Clean(root)
	var (
		files []string
		sets  []ignoreSet
	)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			// Unreadable entries are skipped.
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." {
				if s.skipDir(d.Name()) || ignored(sets, rel, true) {
					return filepath.SkipDir
				}
			}
			patterns, err := s.loadIgnore(path)
			if err != nil {
				return fmt.Errorf("loading %s: %w", filepath.Join(path, s.opts.IgnoreFileName), err)
			}
			if len(patterns) > 0 {
				base := rel
				if base == "." {
					base = ""
				}
				sets = append(sets, ignoreSet{base: base, patterns: patterns})
			}
			return nil
		}

		if s.opts.SkipHidden && strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if !d.Type().IsRegular() || !s.IsSource(path) {
			return nil
		}
		if ignored(sets, rel, false) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}
	return files, nil
}

func (s *Scanner) skipDir(name string) bool {
	if s.opts.SkipHidden && strings.HasPrefix(name, ".") {
		return true
	}
	return slices.ContainsFunc(s.opts.DefaultExcludes, func(ex string) bool {
		return strings.EqualFold(ex, name)
	})
}

func (s *Scanner) loadIgnore(dir string) ([]IgnorePattern, error) {
	f, err := os.Open(filepath.Join(dir, s.opts.IgnoreFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	return ReadIgnorePatterns(f)
}

// Collect expands paths with default options.
func Collect(paths []string) ([]string, error) {
	return New(DefaultOptions()).Collect(paths)
}
