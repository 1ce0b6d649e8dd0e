// Package ignore decides which files a project scan should skip.
//
// Patterns come from built-in defaults for build output and vendored
// dependencies, followed by the project's .codeparseignore file when one
// exists. Syntax follows .gitignore:
//
//	# comment
//	*.pb.go          match files by name at any depth
//	vendor/          directories only (trailing slash)
//	**/testdata/     any depth
//	!keep.pb.go      negate an earlier pattern
//	/rootonly        anchored to the project root
//
// Globs are evaluated with doublestar, so "**" and "{a,b}" work anywhere.
package ignore

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// FileName is the per-project ignore file read by New.
const FileName = ".codeparseignore"

// Matcher tests whether a path should be ignored. It is immutable after
// construction and safe for concurrent use.
type Matcher struct {
	rules []rule
}

type rule struct {
	pattern  string
	negation bool
	dirOnly  bool
	anchored bool
}

// Defaults apply even without an ignore file.
var Defaults = []string{
	// Version control and tool state
	".git/",
	".svn/",
	".hg/",
	".codeparse/",
	".idea/",
	".vscode/",

	// Dependencies
	"node_modules/",
	"vendor/",
	".venv/",
	"venv/",
	"site-packages/",
	".bundle/",
	"deps/",
	"_opam/",

	// Build output
	"dist/",
	"build/",
	"target/",
	"out/",
	"bin/",
	"obj/",
	"_build/",
	".build/",
	".gradle/",
	"__pycache__/",
	"*.egg-info/",
	"cmake-build-*/",
	".next/",
	".nuxt/",
	"coverage/",

	// Generated sources
	"*.pb.go",
	"*_generated.go",
	"*.gen.go",
	"*.pb.{ts,js}",
	"*.min.{js,css}",

	".DS_Store",
	"*.lock",
}

// New returns a Matcher with Defaults plus projectRoot/.codeparseignore.
// A missing file is not an error.
func New(projectRoot string) (*Matcher, error) {
	m := NewFromDefaults()
	if err := m.loadFile(filepath.Join(projectRoot, FileName)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return m, nil
}

// NewFromDefaults returns a Matcher with only the built-in defaults.
func NewFromDefaults() *Matcher {
	return NewFromPatterns(Defaults...)
}

// NewFromPatterns returns a Matcher with exactly the given patterns.
func NewFromPatterns(patterns ...string) *Matcher {
	m := &Matcher{}
	for _, p := range patterns {
		m.add(p)
	}
	return m
}

// NewEmpty returns a Matcher that ignores nothing.
func NewEmpty() *Matcher {
	return &Matcher{}
}

// ShouldIgnore reports whether path, relative to the project root, is
// ignored. isDir must be true for directories. Files inside an ignored
// directory are ignored too.
func (m *Matcher) ShouldIgnore(p string, isDir bool) bool {
	p = strings.TrimSuffix(filepath.ToSlash(p), "/")
	if p == "" || p == "." {
		return false
	}

	// Last matching rule wins.
	ignored, matched := false, false
	for _, r := range m.rules {
		if r.dirOnly && !isDir {
			continue
		}
		if r.match(p) {
			ignored = !r.negation
			matched = true
		}
	}
	if ignored {
		return true
	}
	// An explicit negation beats an ignored parent.
	if matched || isDir {
		return false
	}

	for dir := path.Dir(p); dir != "." && dir != "/"; dir = path.Dir(dir) {
		if m.ShouldIgnore(dir, true) {
			return true
		}
	}
	return false
}

// ShouldIgnoreDir is ShouldIgnore(path, true).
func (m *Matcher) ShouldIgnoreDir(path string) bool {
	return m.ShouldIgnore(path, true)
}

// ShouldIgnoreFile is ShouldIgnore(path, false).
func (m *Matcher) ShouldIgnoreFile(path string) bool {
	return m.ShouldIgnore(path, false)
}

// SkipFunc adapts the matcher to filepath.WalkDir callbacks, where paths
// are absolute or relative to the walk root rather than the project root.
//
//	skip := matcher.SkipFunc(root)
//	filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
//	    if skip(p, d) {
//	        if d.IsDir() {
//	            return filepath.SkipDir
//	        }
//	        return nil
//	    }
//	    ...
//	})
func (m *Matcher) SkipFunc(projectRoot string) func(path string, d fs.DirEntry) bool {
	return func(p string, d fs.DirEntry) bool {
		rel, err := filepath.Rel(projectRoot, p)
		if err != nil {
			rel = p
		}
		return m.ShouldIgnore(rel, d != nil && d.IsDir())
	}
}

func (m *Matcher) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m.add(line)
	}
	return scanner.Err()
}

func (m *Matcher) add(pattern string) {
	r := rule{}
	if strings.HasPrefix(pattern, "!") {
		r.negation = true
		pattern = pattern[1:]
	}
	if strings.HasSuffix(pattern, "/") {
		r.dirOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}
	if strings.HasPrefix(pattern, "/") {
		r.anchored = true
		pattern = strings.TrimPrefix(pattern, "/")
	}
	// Any interior slash anchors the pattern, as in gitignore.
	if strings.Contains(pattern, "/") {
		r.anchored = true
	}
	if pattern == "" || !doublestar.ValidatePattern(pattern) {
		return
	}
	r.pattern = pattern
	m.rules = append(m.rules, r)
}

// match tests a rule against a slash-separated path relative to the root.
func (r *rule) match(p string) bool {
	if r.anchored {
		ok, _ := doublestar.Match(r.pattern, p)
		return ok
	}
	if ok, _ := doublestar.Match(r.pattern, path.Base(p)); ok {
		return true
	}
	ok, _ := doublestar.Match("**/"+r.pattern, p)
	return ok
}
