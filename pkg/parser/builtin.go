package parser

import (
	"context"
	"errors"
	"sort"
	"sync"
	"unsafe"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	tree_sitter_zig "github.com/tree-sitter-grammars/tree-sitter-zig/bindings/go"
	tree_sitter_c "github.com/tree-sitter/tree-sitter-c/bindings/go"
	tree_sitter_cpp "github.com/tree-sitter/tree-sitter-cpp/bindings/go"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_java "github.com/tree-sitter/tree-sitter-java/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

// builtinGrammar is a grammar linked into the binary through its CGO
// binding.
type builtinGrammar struct {
	language   string
	extensions []string
	supply     LanguageSupplier
}

func compiledIn(provider func() unsafe.Pointer) LanguageSupplier {
	load := sync.OnceValue(func() *tree_sitter.Language {
		return tree_sitter.NewLanguage(provider())
	})
	return func(context.Context) (*tree_sitter.Language, error) {
		if l := load(); l != nil {
			return l, nil
		}
		return nil, errors.New("compiled-in grammar has no language")
	}
}

// builtins are always available and never downloaded. TSX needs its own
// grammar but is still reported as typescript.
var builtins = []builtinGrammar{
	{"go", []string{"go"}, compiledIn(tree_sitter_go.Language)},
	{"python", []string{"py", "pyw", "pyi"}, compiledIn(tree_sitter_python.Language)},
	{"javascript", []string{"js", "jsx", "mjs", "cjs"}, compiledIn(tree_sitter_javascript.Language)},
	{"typescript", []string{"ts", "mts", "cts"}, compiledIn(tree_sitter_typescript.LanguageTypescript)},
	{"typescript", []string{"tsx"}, compiledIn(tree_sitter_typescript.LanguageTSX)},
	{"rust", []string{"rs"}, compiledIn(tree_sitter_rust.Language)},
	{"java", []string{"java"}, compiledIn(tree_sitter_java.Language)},
	{"c", []string{"c", "h"}, compiledIn(tree_sitter_c.Language)},
	{"cpp", []string{"cpp", "cc", "cxx", "hpp", "hh", "hxx"}, compiledIn(tree_sitter_cpp.Language)},
	{"zig", []string{"zig"}, compiledIn(tree_sitter_zig.Language)},
}

func (b builtinGrammar) factory() Factory {
	return func() CodeParser {
		return NewTreeSitterParser(b.language, b.supply, b.extensions...)
	}
}

// BuiltinLanguages returns the languages whose grammars are compiled in.
func BuiltinLanguages() []string {
	seen := make(map[string]bool, len(builtins))
	var names []string
	for _, b := range builtins {
		if !seen[b.language] {
			seen[b.language] = true
			names = append(names, b.language)
		}
	}
	sort.Strings(names)
	return names
}

// IsBuiltin reports whether language has a compiled-in grammar.
func IsBuiltin(language string) bool {
	for _, b := range builtins {
		if b.language == language {
			return true
		}
	}
	return false
}
