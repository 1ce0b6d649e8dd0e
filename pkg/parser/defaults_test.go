package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/codeparse/pkg/grammar"
)

func TestDefaultRegistryWithoutGrammars(t *testing.T) {
	r := NewDefaultRegistry(nil)

	for ext, lang := range map[string]string{
		"go": "go", "py": "python", "tsx": "typescript", "h": "c",
		"hpp": "cpp", "zig": "zig", "md": "markdown",
	} {
		p, ok := r.FindParser("file." + ext)
		require.True(t, ok, ext)
		assert.Equal(t, lang, p.Language(), ext)
	}

	_, ok := r.FindParser("app.rb")
	assert.False(t, ok, "runtime grammars need a manager")
}

func TestDefaultRegistryLanguagesMatch(t *testing.T) {
	r := NewDefaultRegistry(testManager(t))

	want := map[string]string{}
	for _, b := range builtins {
		for _, ext := range b.extensions {
			want[ext] = b.language
		}
	}
	for _, ext := range markdownExtensions {
		want[ext] = "markdown"
	}
	for _, spec := range grammar.Specs() {
		for _, ext := range spec.Extensions {
			want[ext] = spec.Language
		}
	}

	assert.Len(t, r.SupportedExtensions(), len(want))
	for _, ext := range r.SupportedExtensions() {
		for _, variant := range []string{ext, strings.ToUpper(ext)} {
			p, ok := r.FindParser("dir/file." + variant)
			require.True(t, ok, variant)
			assert.Equal(t, want[ext], p.Language(), variant)
		}
	}
}
