package grammar

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleCacheEvent(t *testing.T) {
	m, f := loaderManager(t)
	seedVersion(t, m, "ruby", "0.23.1", "native")
	w, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer w.Close()

	_, ok := m.LoadLanguage(rubySpec())
	require.True(t, ok)
	require.Equal(t, int32(1), f.calls.Load())

	ignored := []fsnotify.Event{
		{Name: filepath.Join(m.Root(), "ruby", ".staging-01J0000000000000000000000"), Op: fsnotify.Create},
		{Name: filepath.Join(m.Root(), ".lock"), Op: fsnotify.Create},
		{Name: filepath.Join(m.Root(), "ruby", "0.23.1"), Op: fsnotify.Chmod},
		{Name: filepath.Dir(m.Root()), Op: fsnotify.Remove},
	}
	for _, ev := range ignored {
		m.handleCacheEvent(w, ev)
	}
	_, ok = m.LoadLanguage(rubySpec())
	require.True(t, ok)
	assert.Equal(t, int32(1), f.calls.Load(), "ignored events keep the binding")

	m.handleCacheEvent(w, fsnotify.Event{Name: filepath.Join(m.Root(), "ruby", "active"), Op: fsnotify.Write})
	_, ok = m.LoadLanguage(rubySpec())
	require.True(t, ok)
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestWatchStopsOnCancel(t *testing.T) {
	m := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
