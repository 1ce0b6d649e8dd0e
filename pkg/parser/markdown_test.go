package parser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkdownParser(t *testing.T) {
	src := "Intro text.\n" +
		"\n" +
		"# Title\n" +
		"Some words.\n" +
		"\n" +
		"## Install ##\n" +
		"```sh\n" +
		"# not a heading\n" +
		"```\n" +
		"#hashtag is text\n" +
		"### Usage\n" +
		"Run it.\n"

	path := writeFile(t, t.TempDir(), "README.md", src)
	p := NewMarkdownParser()
	require.True(t, p.Supports(path))

	chunks, err := p.Parse(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, chunks, 4)

	assert.Equal(t, "preamble", chunks[0].Kind)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 2, chunks[0].EndLine)

	assert.Equal(t, "title", chunks[1].Kind)
	assert.Equal(t, "Title", chunks[1].Name)
	assert.Equal(t, 3, chunks[1].StartLine)
	assert.Equal(t, 5, chunks[1].EndLine)

	assert.Equal(t, "section", chunks[2].Kind)
	assert.Equal(t, "Install", chunks[2].Name)
	assert.Equal(t, 6, chunks[2].StartLine)
	assert.Equal(t, 10, chunks[2].EndLine)
	assert.Contains(t, chunks[2].Content, "# not a heading")

	assert.Equal(t, "Usage", chunks[3].Name)
	assert.Equal(t, 11, chunks[3].StartLine)
	assert.Equal(t, 12, chunks[3].EndLine)
	assert.Equal(t, "markdown", chunks[3].Language)
}

func TestMarkdownParserNoHeadings(t *testing.T) {
	chunks := NewMarkdownParser().ParseContent([]byte("just text\n"), "notes.md")
	require.Len(t, chunks, 1)
	assert.Equal(t, "preamble", chunks[0].Kind)

	assert.Empty(t, NewMarkdownParser().ParseContent([]byte("\n\n"), "empty.md"))
}

func TestHeading(t *testing.T) {
	tests := []struct {
		line  string
		level int
		text  string
		ok    bool
	}{
		{"# A", 1, "A", true},
		{"###### Six", 6, "Six", true},
		{"####### Seven", 0, "", false},
		{"   ## Indented", 2, "Indented", true},
		{"    # Code", 0, "", false},
		{"#", 1, "", true},
		{"#tag", 0, "", false},
		{"## Closed ##", 2, "Closed", true},
	}
	for _, tt := range tests {
		level, text, ok := heading(tt.line)
		assert.Equal(t, tt.ok, ok, tt.line)
		assert.Equal(t, tt.level, level, tt.line)
		assert.Equal(t, tt.text, text, tt.line)
	}
}
