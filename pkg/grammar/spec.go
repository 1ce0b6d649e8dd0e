package grammar

import (
	"slices"
	"sort"
	"strings"
)

// GrammarSpec describes one language's native grammar binding. The table
// below is never mutated; Lookup and Specs hand out copies of it.
type GrammarSpec struct {
	// Language is the canonical language id (e.g., "ruby").
	Language string
	// Symbol is the C function exported by the shared library
	// (e.g., "tree_sitter_ruby").
	Symbol string
	// LibraryName is the base name of the shared library without
	// platform suffix (e.g., "tree-sitter-ruby").
	LibraryName string
	// ConfigKey pins a version via configuration (e.g., "grammar.versions.ruby").
	ConfigKey string
	// EnvKey pins a version via the environment
	// (e.g., "CODEPARSE_GRAMMAR_RUBY_VERSION").
	EnvKey string
	// Repository identifies the grammar's source on the distribution
	// server (e.g., "tree-sitter/tree-sitter-ruby").
	Repository string
	// DefaultVersion is downloaded when nothing pins another version.
	DefaultVersion string
	// Extensions are the file extensions, without a leading dot, that a
	// parser backed by this grammar handles.
	Extensions []string
}

func newSpec(language, repository, symbol, defaultVersion string, extensions ...string) *GrammarSpec {
	envLang := strings.ToUpper(strings.ReplaceAll(language, "-", "_"))
	return &GrammarSpec{
		Language:       language,
		Symbol:         symbol,
		LibraryName:    "tree-sitter-" + language,
		ConfigKey:      "grammar.versions." + language,
		EnvKey:         "CODEPARSE_GRAMMAR_" + envLang + "_VERSION",
		Repository:     repository,
		DefaultVersion: defaultVersion,
		Extensions:     extensions,
	}
}

// specs lists every grammar that is downloaded at runtime rather than
// compiled into the binary.
var specs = []*GrammarSpec{
	newSpec("bash", "tree-sitter/tree-sitter-bash", "tree_sitter_bash", "0.25.1", "sh", "bash", "zsh"),
	newSpec("csharp", "tree-sitter/tree-sitter-c-sharp", "tree_sitter_c_sharp", "0.23.1", "cs"),
	newSpec("css", "tree-sitter/tree-sitter-css", "tree_sitter_css", "0.25.0", "css", "scss"),
	newSpec("elixir", "tree-sitter/tree-sitter-elixir", "tree_sitter_elixir", "0.3.4", "ex", "exs"),
	newSpec("elm", "elm-tooling/tree-sitter-elm", "tree_sitter_elm", "5.7.0", "elm"),
	newSpec("groovy", "amaanq/tree-sitter-groovy", "tree_sitter_groovy", "0.1.2", "groovy", "gradle"),
	newSpec("hcl", "tree-sitter-grammars/tree-sitter-hcl", "tree_sitter_hcl", "1.2.0", "hcl", "tf"),
	newSpec("html", "tree-sitter/tree-sitter-html", "tree_sitter_html", "0.23.2", "html", "htm"),
	newSpec("kotlin", "tree-sitter-grammars/tree-sitter-kotlin", "tree_sitter_kotlin", "1.1.0", "kt", "kts"),
	newSpec("lua", "tree-sitter-grammars/tree-sitter-lua", "tree_sitter_lua", "0.4.1", "lua"),
	newSpec("ocaml", "tree-sitter/tree-sitter-ocaml", "tree_sitter_ocaml", "0.24.2", "ml", "mli"),
	newSpec("php", "tree-sitter/tree-sitter-php", "tree_sitter_php", "0.24.2", "php"),
	newSpec("protobuf", "coder3101/tree-sitter-proto", "tree_sitter_proto", "0.2.0", "proto"),
	newSpec("ruby", "tree-sitter/tree-sitter-ruby", "tree_sitter_ruby", "0.23.1", "rb", "rake", "gemspec"),
	newSpec("scala", "tree-sitter/tree-sitter-scala", "tree_sitter_scala", "0.24.0", "scala", "sc"),
	newSpec("sql", "DerekStride/tree-sitter-sql", "tree_sitter_sql", "0.3.11", "sql"),
	newSpec("swift", "alex-pinkus/tree-sitter-swift", "tree_sitter_swift", "0.7.1", "swift"),
	newSpec("toml", "tree-sitter-grammars/tree-sitter-toml", "tree_sitter_toml", "0.7.0", "toml"),
	newSpec("yaml", "tree-sitter-grammars/tree-sitter-yaml", "tree_sitter_yaml", "0.7.2", "yaml", "yml"),
}

var specIndex = func() map[string]*GrammarSpec {
	m := make(map[string]*GrammarSpec, len(specs))
	for _, s := range specs {
		m[s.Language] = s
	}
	return m
}()

// Lookup returns a copy of the spec for a language id.
func Lookup(language string) (*GrammarSpec, bool) {
	s, ok := specIndex[strings.ToLower(strings.TrimSpace(language))]
	if !ok {
		return nil, false
	}
	return s.clone(), true
}

// Specs returns copies of all downloadable grammar specs sorted by language.
func Specs() []*GrammarSpec {
	out := make([]*GrammarSpec, len(specs))
	for i, s := range specs {
		out[i] = s.clone()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Language < out[j].Language })
	return out
}

// Languages returns the language ids of all downloadable grammars, sorted.
func Languages() []string {
	names := make([]string, 0, len(specs))
	for _, s := range Specs() {
		names = append(names, s.Language)
	}
	return names
}

func (s *GrammarSpec) clone() *GrammarSpec {
	c := *s
	c.Extensions = slices.Clone(s.Extensions)
	return &c
}

// AssetName returns the file name of the grammar binary for the given
// platform, e.g. "tree-sitter-ruby-linux-x86_64.so".
func (s *GrammarSpec) AssetName(platform, ext string) string {
	return s.LibraryName + "-" + platform + ext
}

// BinaryName returns the file name the binary is stored under inside a
// cached version directory, e.g. "tree-sitter-ruby.so".
func (s *GrammarSpec) BinaryName(ext string) string {
	return s.LibraryName + ext
}
