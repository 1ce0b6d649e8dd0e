// Package parser routes source files to structural parsers.
//
// A Registry maps file extensions to parser factories and hands out one
// lazily built parser per extension. Parsers are either hand-written
// (markdown), backed by a grammar compiled into the binary, or backed by a
// native grammar that the grammar package downloads and loads at runtime.
package parser

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// CodeParser turns one file into an ordered sequence of chunks.
// Implementations must be safe for concurrent use: the registry hands the
// same instance to every caller.
type CodeParser interface {
	// Language is the canonical language id, e.g. "python".
	Language() string
	// Supports reports whether this parser can currently parse path.
	// Grammar-backed parsers answer false while their grammar is missing.
	Supports(path string) bool
	// Parse reads path and splits it into chunks.
	Parse(ctx context.Context, path string) ([]Chunk, error)
}

// Factory builds a parser. It is called at most once per registration.
type Factory func() CodeParser

// Chunk is one structural unit of a source file.
type Chunk struct {
	Language  string `json:"lang"`
	FilePath  string `json:"file"`
	Kind      string `json:"kind"`           // node kind, "section", ...
	Name      string `json:"name,omitempty"` // declared name, heading text
	Content   string `json:"content"`
	StartLine int    `json:"start"` // 1-indexed
	EndLine   int    `json:"end"`   // 1-indexed, inclusive
}

// ValidationError reports invalid registration arguments.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// GrammarUnavailableError is returned by grammar-backed parsers when no
// grammar for their language can be loaded. Callers skip the file.
type GrammarUnavailableError struct {
	Language string
	Err      error
}

func (e *GrammarUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("no grammar available for %s", e.Language)
	}
	return fmt.Sprintf("no grammar available for %s: %v", e.Language, e.Err)
}

func (e *GrammarUnavailableError) Unwrap() error {
	return e.Err
}

// NormalizeExtension lower-cases ext and strips surrounding space and a
// leading dot: ".PY" and "py" both become "py".
func NormalizeExtension(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// ExtensionOf returns the normalized extension of path, or "" when it has
// none. Dotfiles such as ".bashrc" have no extension.
func ExtensionOf(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	if ext == "" || ext == base {
		return ""
	}
	return NormalizeExtension(ext)
}

// extensionSet builds a lookup set of normalized extensions.
func extensionSet(extensions []string) map[string]bool {
	set := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		if n := NormalizeExtension(ext); n != "" {
			set[n] = true
		}
	}
	return set
}
