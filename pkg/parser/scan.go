package parser

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/jmylchreest/codeparse/pkg/grammar"
	"github.com/jmylchreest/codeparse/pkg/ignore"
)

// Where a language's parser comes from.
const (
	SourceBuiltin   = "builtin"   // compiled-in grammar or hand-written parser
	SourceInstalled = "installed" // runtime grammar present in the cache
	SourceAvailable = "available" // runtime grammar that can be downloaded
)

// LanguageStatus describes one language found by a scan.
type LanguageStatus struct {
	Language string `json:"language"`
	Files    int    `json:"files"`
	Source   string `json:"source"`
	Version  string `json:"version,omitempty"` // active version when installed
}

// ScanResult summarises the languages of a project tree.
type ScanResult struct {
	Languages    []LanguageStatus `json:"languages"`
	TotalFiles   int              `json:"totalFiles"`
	Unrecognised int              `json:"unrecognised"` // files no parser claims
}

// Needed returns the downloadable languages that are not cached yet.
func (r *ScanResult) Needed() []string {
	var names []string
	for _, s := range r.Languages {
		if s.Source == SourceAvailable {
			names = append(names, s.Language)
		}
	}
	sort.Strings(names)
	return names
}

// grammarBacked is implemented by parsers that need a runtime grammar.
type grammarBacked interface {
	GrammarSpec() *grammar.GrammarSpec
}

// ScanProject walks root, skipping what matcher ignores, and reports per
// language how many files it holds and where its parser comes from. The
// cache is consulted through grammars; no grammar is loaded.
func ScanProject(ctx context.Context, root string, reg *Registry, grammars *grammar.Manager, matcher *ignore.Matcher) (*ScanResult, error) {
	if matcher == nil {
		matcher = ignore.NewFromDefaults()
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	skip := matcher.SkipFunc(absRoot)

	result := &ScanResult{}
	counts := make(map[string]int)
	specs := make(map[string]*grammar.GrammarSpec)

	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if skip(path, d) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		p, ok := reg.FindParser(path)
		if !ok {
			result.Unrecognised++
			return nil
		}
		lang := p.Language()
		counts[lang]++
		result.TotalFiles++
		if gb, ok := p.(grammarBacked); ok && gb.GrammarSpec() != nil {
			specs[lang] = gb.GrammarSpec()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for lang, n := range counts {
		status := LanguageStatus{Language: lang, Files: n, Source: SourceBuiltin}
		if spec, ok := specs[lang]; ok {
			status.Source = SourceAvailable
			if grammars != nil {
				v, cached, err := grammars.ActiveVersion(spec.Language)
				if err != nil {
					return nil, err
				}
				if cached {
					status.Source = SourceInstalled
					status.Version = v
				}
			}
		}
		result.Languages = append(result.Languages, status)
	}

	order := map[string]int{SourceBuiltin: 0, SourceInstalled: 1, SourceAvailable: 2}
	sort.Slice(result.Languages, func(i, j int) bool {
		a, b := result.Languages[i], result.Languages[j]
		if order[a.Source] != order[b.Source] {
			return order[a.Source] < order[b.Source]
		}
		if a.Files != b.Files {
			return a.Files > b.Files
		}
		return a.Language < b.Language
	})
	return result, nil
}
