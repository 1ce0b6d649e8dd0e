package parser

import (
	"context"
	"fmt"
	"os"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/jmylchreest/codeparse/pkg/grammar"
)

// LanguageSupplier returns the tree-sitter language to parse with, or an
// error when none is available. Suppliers are expected to memoize; ctx
// bounds any download a supplier performs.
type LanguageSupplier func(ctx context.Context) (*tree_sitter.Language, error)

// TreeSitterParser chunks a file into the top-level declarations of its
// syntax tree. A run of comments directly above a declaration is folded
// into it; any other comment run becomes a chunk of its own.
type TreeSitterParser struct {
	language   string
	extensions map[string]bool
	supply     LanguageSupplier
	available  func() bool
	spec       *grammar.GrammarSpec
}

// NewTreeSitterParser returns a parser for language over the given
// extensions, using supply to obtain the grammar.
func NewTreeSitterParser(language string, supply LanguageSupplier, extensions ...string) *TreeSitterParser {
	return &TreeSitterParser{
		language:   language,
		extensions: extensionSet(extensions),
		supply:     supply,
		available: func() bool {
			_, err := supply(context.Background())
			return err == nil
		},
	}
}

// NewGrammarParser returns a parser backed by a runtime-loaded grammar.
// The grammar is loaded on first use. When nothing is cached the parser
// reports no support, unless the manager auto-downloads, in which case
// Parse downloads the grammar under its context.
func NewGrammarParser(m *grammar.Manager, spec *grammar.GrammarSpec) *TreeSitterParser {
	supply := func(ctx context.Context) (*tree_sitter.Language, error) {
		b, err := m.EnsureLanguage(ctx, spec)
		if err != nil {
			return nil, err
		}
		return b.Language, nil
	}
	p := NewTreeSitterParser(spec.Language, supply, spec.Extensions...)
	p.available = func() bool {
		_, ok := m.LoadLanguage(spec)
		return ok || m.AutoDownload()
	}
	p.spec = spec
	return p
}

// Language implements CodeParser.
func (p *TreeSitterParser) Language() string { return p.language }

// GrammarSpec returns the runtime grammar behind this parser, or nil for a
// compiled-in one.
func (p *TreeSitterParser) GrammarSpec() *grammar.GrammarSpec { return p.spec }

// Supports implements CodeParser. It never downloads.
func (p *TreeSitterParser) Supports(path string) bool {
	return p.extensions[ExtensionOf(path)] && p.available()
}

// Parse implements CodeParser.
func (p *TreeSitterParser) Parse(ctx context.Context, path string) ([]Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lang, err := p.resolveLanguage(ctx)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return p.chunk(ctx, lang, content, path)
}

// ParseContent chunks content as if it had been read from path.
func (p *TreeSitterParser) ParseContent(ctx context.Context, content []byte, path string) ([]Chunk, error) {
	lang, err := p.resolveLanguage(ctx)
	if err != nil {
		return nil, err
	}
	return p.chunk(ctx, lang, content, path)
}

func (p *TreeSitterParser) resolveLanguage(ctx context.Context) (*tree_sitter.Language, error) {
	lang, err := p.supply(ctx)
	if err != nil {
		return nil, &GrammarUnavailableError{Language: p.language, Err: err}
	}
	return lang, nil
}

func (p *TreeSitterParser) chunk(ctx context.Context, lang *tree_sitter.Language, content []byte, path string) ([]Chunk, error) {
	ts := tree_sitter.NewParser()
	defer ts.Close()
	if err := ts.SetLanguage(lang); err != nil {
		return nil, fmt.Errorf("set language %q: %w", p.language, err)
	}

	tree := ts.Parse(content, nil)
	if tree == nil {
		return nil, nil
	}
	defer tree.Close()

	root := tree.RootNode()
	var chunks []Chunk
	// first and last comment of the run above the current node
	var lead, prev *tree_sitter.Node

	emit := func(first, last *tree_sitter.Node, kind, name string) {
		chunks = append(chunks, Chunk{
			Language:  p.language,
			FilePath:  path,
			Kind:      kind,
			Name:      name,
			Content:   string(content[first.StartByte():min(last.EndByte(), uint(len(content)))]),
			StartLine: int(first.StartPosition().Row) + 1,
			EndLine:   int(last.EndPosition().Row) + 1,
		})
	}

	for i := uint(0); i < root.NamedChildCount(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		node := root.NamedChild(i)
		if node == nil {
			continue
		}
		if isComment(node) {
			if prev != nil && node.StartPosition().Row-prev.EndPosition().Row > 1 {
				emit(lead, prev, "comment", "")
				lead = nil
			}
			if lead == nil {
				lead = node
			}
			prev = node
			continue
		}

		start := node
		if prev != nil {
			if node.StartPosition().Row-prev.EndPosition().Row <= 1 {
				start = lead
			} else {
				emit(lead, prev, "comment", "")
			}
		}
		lead, prev = nil, nil

		emit(start, node, node.Kind(), declaredName(node, content))
	}
	if lead != nil {
		emit(lead, prev, "comment", "")
	}
	return chunks, nil
}

func isComment(n *tree_sitter.Node) bool {
	return strings.Contains(n.Kind(), "comment")
}

// declaredName finds the identifier a declaration introduces. Grammars put
// it in a "name" field, in a nested declarator (C family) or in a single
// spec child (Go type and var blocks).
func declaredName(n *tree_sitter.Node, content []byte) string {
	for depth := 0; n != nil && depth < 4; depth++ {
		if name := n.ChildByFieldName("name"); name != nil {
			return name.Utf8Text(content)
		}
		if decl := n.ChildByFieldName("declarator"); decl != nil {
			if strings.HasSuffix(decl.Kind(), "identifier") {
				return decl.Utf8Text(content)
			}
			n = decl
			continue
		}
		if n.NamedChildCount() == 0 {
			return ""
		}
		n = n.NamedChild(0)
		if strings.HasSuffix(n.Kind(), "identifier") {
			return n.Utf8Text(content)
		}
	}
	return ""
}
