package parser

import (
	"fmt"

	"github.com/jmylchreest/codeparse/pkg/grammar"
)

// NewDefaultRegistry returns a registry with the markdown parser, every
// compiled-in grammar and, when grammars is non-nil, a grammar-backed parser
// for every downloadable language.
func NewDefaultRegistry(grammars *grammar.Manager) *Registry {
	r := NewRegistry()
	for _, b := range builtins {
		mustRegister(r, b.factory(), b.extensions...)
	}
	mustRegister(r, func() CodeParser { return NewMarkdownParser() }, markdownExtensions...)

	if grammars == nil {
		return r
	}
	for _, spec := range grammar.Specs() {
		mustRegister(r, func() CodeParser { return NewGrammarParser(grammars, spec) }, spec.Extensions...)
	}
	return r
}

// mustRegister panics on a registration error; the tables above are static.
func mustRegister(r *Registry, f Factory, extensions ...string) {
	if err := r.Register(f, extensions...); err != nil {
		panic(fmt.Sprintf("parser: bad default registration %v: %v", extensions, err))
	}
}
