package grammar

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// openFunc opens a shared library and resolves a grammar's entry point.
type openFunc func(libPath, symbol string) (*tree_sitter.Language, uintptr, error)

// Binding is a loaded native grammar.
type Binding struct {
	Language *tree_sitter.Language
	Spec     *GrammarSpec
	Version  string
	Path     string

	handle uintptr
}

// NativeLoader returns a memoized accessor for spec's active grammar. The
// native load happens once, on first call; concurrent callers wait for
// the same load, and its outcome (success or failure) is reused until the
// language's active version changes.
func (m *Manager) NativeLoader(spec *GrammarSpec) func() (*Binding, error) {
	return func() (*Binding, error) {
		return m.cell(spec)()
	}
}

// LanguageSupplier is NativeLoader reduced to the tree-sitter language.
func (m *Manager) LanguageSupplier(spec *GrammarSpec) func() (*tree_sitter.Language, bool) {
	load := m.NativeLoader(spec)
	return func() (*tree_sitter.Language, bool) {
		b, err := load()
		if err != nil {
			return nil, false
		}
		return b.Language, true
	}
}

// LoadLanguage returns the active grammar for spec, or false when none is
// available. It never fails: a missing or broken grammar only means this
// language cannot be parsed.
func (m *Manager) LoadLanguage(spec *GrammarSpec) (*Binding, bool) {
	b, err := m.NativeLoader(spec)()
	if err != nil {
		return nil, false
	}
	return b, true
}

// Invalidate drops the memoized binding of language so the next access
// loads the then-active version. Bindings already handed out stay valid.
func (m *Manager) Invalidate(language string) {
	m.cellsMu.Lock()
	delete(m.cells, language)
	m.cellsMu.Unlock()
}

// Close releases every native library handle opened by this manager.
// Bindings must not be used afterwards.
func (m *Manager) Close() error {
	m.cellsMu.Lock()
	m.cells = make(map[string]func() (*Binding, error))
	m.cellsMu.Unlock()

	m.loadedMu.Lock()
	defer m.loadedMu.Unlock()
	var errs []error
	for _, b := range m.loaded {
		if err := closeLibrary(b.handle); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", b.Path, err))
		}
	}
	m.loaded = nil
	return errors.Join(errs...)
}

func (m *Manager) cell(spec *GrammarSpec) func() (*Binding, error) {
	m.cellsMu.Lock()
	defer m.cellsMu.Unlock()
	if c, ok := m.cells[spec.Language]; ok {
		return c
	}
	c := sync.OnceValues(func() (*Binding, error) {
		b, err := m.loadActive(spec)
		if err != nil {
			m.logger.Printf("grammar %s unavailable: %v", spec.Language, err)
		}
		return b, err
	})
	m.cells[spec.Language] = c
	return c
}

// EnsureLanguage is NativeLoader for callers that may wait on the network.
// When nothing is cached and the manager auto-downloads, the resolved
// version is downloaded under ctx and then loaded. A cancelled download is
// not remembered: the next call tries again.
func (m *Manager) EnsureLanguage(ctx context.Context, spec *GrammarSpec) (*Binding, error) {
	b, err := m.NativeLoader(spec)()
	var nf *GrammarNotFoundError
	if err == nil || !m.autoDownload || !errors.As(err, &nf) {
		return b, err
	}
	if _, err := m.DownloadGrammar(ctx, spec, "", nil); err != nil {
		return nil, err
	}
	return m.NativeLoader(spec)()
}

// AutoDownload reports whether EnsureLanguage downloads missing grammars.
func (m *Manager) AutoDownload() bool { return m.autoDownload }

// loadActive opens the active version of spec while holding the language
// read lock, so cleanup cannot remove the directory mid-load.
func (m *Manager) loadActive(spec *GrammarSpec) (*Binding, error) {
	if err := validateSegment("language", spec.Language); err != nil {
		return nil, err
	}
	lock := m.lock(spec.Language)
	lock.RLock()
	defer lock.RUnlock()

	versions, err := m.listVersions(spec.Language)
	if err != nil {
		return nil, err
	}
	version, ok := m.activeVersion(spec.Language, versions)
	if !ok {
		return nil, &GrammarNotFoundError{Language: spec.Language}
	}

	path := m.binaryPath(spec.Language, version)
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		return nil, &GrammarNotFoundError{Language: spec.Language, Version: version}
	}
	if m.verifyOnLoad {
		if err := m.verify(spec.Language, version); err != nil {
			return nil, err
		}
	}

	lang, handle, err := m.open(path, spec.Symbol)
	if err != nil {
		return nil, fmt.Errorf("grammar %s@%s: %w", spec.Language, version, err)
	}

	b := &Binding{Language: lang, Spec: spec, Version: version, Path: path, handle: handle}
	m.loadedMu.Lock()
	m.loaded = append(m.loaded, b)
	m.loadedMu.Unlock()

	m.logger.Printf("loaded grammar %s@%s from %s", spec.Language, version, path)
	return b, nil
}
