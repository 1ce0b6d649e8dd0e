package grammar

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watch observes the cache root until ctx is done. Whenever another process
// publishes, removes or rolls back a version, the affected language's
// memoized binding is dropped so the next access loads the new active
// version.
func (m *Manager) Watch(ctx context.Context) error {
	if err := ensureDir(m.root); err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(m.root); err != nil {
		return &FilesystemError{Op: "watch", Path: m.root, Err: err}
	}
	languages, err := m.CachedLanguages()
	if err != nil {
		return err
	}
	for _, lang := range languages {
		if err := w.Add(m.languageDir(lang)); err != nil {
			m.logger.Printf("not watching %s: %v", lang, err)
		}
	}
	m.logger.Printf("watching grammar cache %s (%d languages)", m.root, len(languages))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			m.handleCacheEvent(w, ev)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			m.logger.Printf("watch error: %v", err)
		}
	}
}

func (m *Manager) handleCacheEvent(w *fsnotify.Watcher, ev fsnotify.Event) {
	if ev.Op == fsnotify.Chmod {
		return
	}
	rel, err := filepath.Rel(m.root, ev.Name)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	lang := parts[0]
	if strings.HasPrefix(lang, ".") {
		return
	}

	if len(parts) == 1 {
		if ev.Has(fsnotify.Create) {
			if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
				_ = w.Add(ev.Name)
			}
		}
		m.Invalidate(lang)
		return
	}

	// Staging, trash and temp files come and go during every publish; only
	// the final rename into a visible name matters.
	if strings.HasPrefix(parts[1], ".") {
		return
	}
	m.logger.Printf("cache change %s (%s), reloading %s on next use", rel, ev.Op, lang)
	m.Invalidate(lang)
}
