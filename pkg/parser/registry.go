package parser

import (
	"fmt"
	"sort"
	"sync"
)

type entry struct {
	instance func() CodeParser
}

// Registry maps normalized file extensions to parser factories. Each
// registration builds its parser once, on the first lookup that needs it.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register maps every extension to factory, replacing earlier mappings and
// dropping their cached parsers. Extensions are case-insensitive and may
// carry a leading dot.
func (r *Registry) Register(factory Factory, extensions ...string) error {
	if factory == nil {
		return &ValidationError{Field: "factory", Reason: "must not be nil"}
	}
	if len(extensions) == 0 {
		return &ValidationError{Field: "extensions", Reason: "must not be empty"}
	}
	keys := make([]string, len(extensions))
	for i, ext := range extensions {
		keys[i] = NormalizeExtension(ext)
		if keys[i] == "" {
			return &ValidationError{Field: "extensions", Reason: fmt.Sprintf("extension %d is blank", i)}
		}
	}

	e := &entry{instance: sync.OnceValue(func() CodeParser { return factory() })}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range keys {
		r.entries[k] = e
	}
	return nil
}

// Unregister removes extension and its cached parser. It reports whether
// the extension was registered.
func (r *Registry) Unregister(extension string) bool {
	key := NormalizeExtension(extension)

	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[key]
	delete(r.entries, key)
	return ok
}

// FindParser returns the parser for path's extension, building it on first
// use. Concurrent first lookups share one instance. Paths without an
// extension or with an unregistered one yield false.
//
// The parser is built while the registry is read-locked, so a factory must
// not call back into the registry.
func (r *Registry) FindParser(path string) (CodeParser, bool) {
	ext := ExtensionOf(path)
	if ext == "" {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[ext]
	if !ok {
		return nil, false
	}
	p := e.instance()
	return p, p != nil
}

// SupportedExtensions returns every registered extension, sorted.
func (r *Registry) SupportedExtensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make([]string, 0, len(r.entries))
	for ext := range r.entries {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
