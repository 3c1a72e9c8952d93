package scanner

import (
	"bufio"
	"io"
	"path"
	"strings"
)

// IgnorePattern is one line of a .ptrinferignore file, using gitignore
// syntax: "!" negates, a trailing "/" matches directories only, a leading
// "/" anchors at the ignore file's directory and "**" spans directories.
type IgnorePattern struct {
	raw      string
	negate   bool
	dirOnly  bool
	anchored bool
	segments []string
}

// ParseIgnorePattern parses a gitignore-style pattern string.
func ParseIgnorePattern(line string) IgnorePattern {
	p := IgnorePattern{raw: line}
	if strings.HasPrefix(line, "!") {
		p.negate = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		p.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		p.anchored = true
		line = line[1:]
	}
	p.segments = strings.Split(line, "/")
	// A pattern with an inner slash is relative to the ignore file.
	if len(p.segments) > 1 {
		p.anchored = true
	}
	return p
}

// IsNegation reports whether the pattern re-includes what it matches.
func (p IgnorePattern) IsNegation() bool { return p.negate }

func (p IgnorePattern) String() string { return p.raw }

// Match reports whether rel, a slash-separated path relative to the
// ignore file's directory, is matched. isDir tells whether rel names a
// directory.
func (p IgnorePattern) Match(rel string, isDir bool) bool {
	if p.dirOnly && !isDir {
		return false
	}
	parts := strings.Split(rel, "/")
	if p.anchored {
		return matchSegments(p.segments, parts)
	}
	// Unanchored single-segment patterns match the last component.
	return matchSegments(p.segments, parts[len(parts)-1:])
}

func matchSegments(pattern, parts []string) bool {
	if len(pattern) == 0 {
		return len(parts) == 0
	}
	if pattern[0] == "**" {
		for i := 0; i <= len(parts); i++ {
			if matchSegments(pattern[1:], parts[i:]) {
				return true
			}
		}
		return false
	}
	if len(parts) == 0 {
		return false
	}
	ok, err := path.Match(pattern[0], parts[0])
	if err != nil || !ok {
		return false
	}
	return matchSegments(pattern[1:], parts[1:])
}

// ReadIgnorePatterns reads patterns from r, skipping blank lines and
// comments.
func ReadIgnorePatterns(r io.Reader) ([]IgnorePattern, error) {
	var patterns []IgnorePattern
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, ParseIgnorePattern(line))
	}
	return patterns, sc.Err()
}

// ignoreSet holds the patterns of one ignore file and the directory they
// are relative to.
type ignoreSet struct {
	base     string
	patterns []IgnorePattern
}

// ignored applies gitignore semantics over stacked ignore files: later
// patterns win, so a negation can re-include an earlier match.
func ignored(sets []ignoreSet, rel string, isDir bool) bool {
	result := false
	for _, s := range sets {
		local := rel
		if s.base != "" {
			if !strings.HasPrefix(rel, s.base+"/") {
				continue
			}
			local = strings.TrimPrefix(rel, s.base+"/")
		}
		for _, p := range s.patterns {
			if p.Match(local, isDir) {
				result = !p.negate
			}
		}
	}
	return result
}
