package parser

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"strings"
)

var markdownExtensions = []string{"md", "markdown", "mdx"}

// MarkdownParser splits markdown into one chunk per ATX heading section.
// Text before the first heading becomes a "preamble" chunk. Headings
// inside fenced code blocks are ignored.
type MarkdownParser struct{}

// NewMarkdownParser returns a markdown parser.
func NewMarkdownParser() *MarkdownParser { return &MarkdownParser{} }

// Language implements CodeParser.
func (*MarkdownParser) Language() string { return "markdown" }

// Supports implements CodeParser.
func (*MarkdownParser) Supports(path string) bool {
	ext := ExtensionOf(path)
	for _, e := range markdownExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// Parse implements CodeParser.
func (p *MarkdownParser) Parse(ctx context.Context, path string) ([]Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return p.ParseContent(content, path), nil
}

// ParseContent chunks content as if it had been read from path.
func (p *MarkdownParser) ParseContent(content []byte, path string) []Chunk {
	var (
		chunks []Chunk
		lines  []string
		kind   = "preamble"
		name   string
		start  = 1
		lineNo int
		fence  string
		flush  = func(end int) {
			text := strings.Join(lines, "\n")
			if strings.TrimSpace(text) != "" {
				chunks = append(chunks, Chunk{
					Language:  p.Language(),
					FilePath:  path,
					Kind:      kind,
					Name:      name,
					Content:   text,
					StartLine: start,
					EndLine:   end,
				})
			}
			lines = lines[:0]
		}
	)

	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if fence != "" {
			if strings.HasPrefix(trimmed, fence) {
				fence = ""
			}
		} else if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			fence = trimmed[:3]
		} else if level, text, ok := heading(line); ok {
			flush(lineNo - 1)
			kind = "section"
			if level == 1 {
				kind = "title"
			}
			name = text
			start = lineNo
		}
		lines = append(lines, line)
	}
	flush(lineNo)
	return chunks
}

// heading parses an ATX heading: up to three spaces, 1-6 '#', then a space
// or end of line.
func heading(line string) (int, string, bool) {
	s := strings.TrimLeft(line, " ")
	if len(line)-len(s) > 3 {
		return 0, "", false
	}
	level := 0
	for level < len(s) && s[level] == '#' {
		level++
	}
	if level == 0 || level > 6 {
		return 0, "", false
	}
	rest := s[level:]
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		return 0, "", false
	}
	text := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(rest), "#"))
	return level, text, true
}
