package grammar

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
)

// fakeOpener stands in for dlopen: it hands out the compiled-in Go grammar
// and counts how often a native load was attempted.
type fakeOpener struct {
	calls atomic.Int32
	paths sync.Map
	err   error
}

func (f *fakeOpener) open(path, symbol string) (*tree_sitter.Language, uintptr, error) {
	f.calls.Add(1)
	f.paths.Store(path, symbol)
	if f.err != nil {
		return nil, 0, f.err
	}
	return tree_sitter.NewLanguage(tree_sitter_go.Language()), 0, nil
}

func loaderManager(t *testing.T, opts ...Option) (*Manager, *fakeOpener) {
	t.Helper()
	m := newTestManager(t, opts...)
	f := &fakeOpener{}
	m.open = f.open
	return m, f
}

func TestLoadLanguageAbsent(t *testing.T) {
	m, f := loaderManager(t)

	b, ok := m.LoadLanguage(rubySpec())
	assert.False(t, ok)
	assert.Nil(t, b)
	assert.Zero(t, f.calls.Load(), "nothing to open")
}

func TestLoadLanguage(t *testing.T) {
	m, f := loaderManager(t)
	bin := seedVersion(t, m, "ruby", "0.23.1", "native")

	b, ok := m.LoadLanguage(rubySpec())
	require.True(t, ok)
	assert.Equal(t, "0.23.1", b.Version)
	assert.Equal(t, bin, b.Path)
	assert.NotNil(t, b.Language)

	symbol, _ := f.paths.Load(bin)
	assert.Equal(t, "tree_sitter_ruby", symbol)
}

func TestNativeLoaderMemoizesSuccess(t *testing.T) {
	m, f := loaderManager(t)
	seedVersion(t, m, "ruby", "0.23.1", "native")
	load := m.NativeLoader(rubySpec())

	var wg sync.WaitGroup
	bindings := make([]*Binding, 16)
	for i := range bindings {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := load()
			assert.NoError(t, err)
			bindings[i] = b
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), f.calls.Load())
	for _, b := range bindings {
		assert.Same(t, bindings[0], b)
	}

	supply := m.LanguageSupplier(rubySpec())
	lang, ok := supply()
	require.True(t, ok)
	assert.Same(t, bindings[0].Language, lang)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestNativeLoaderMemoizesFailure(t *testing.T) {
	m, f := loaderManager(t)
	load := m.NativeLoader(rubySpec())

	_, err := load()
	var nf *GrammarNotFoundError
	require.ErrorAs(t, err, &nf)

	// Appearing on disk does not help until the cell is dropped.
	seedVersion(t, m, "ruby", "0.23.1", "native")
	_, err = load()
	require.ErrorAs(t, err, &nf)
	assert.Zero(t, f.calls.Load())

	m.Invalidate("ruby")
	b, err := load()
	require.NoError(t, err)
	assert.Equal(t, "0.23.1", b.Version)
}

func TestNativeLoaderOpenFailure(t *testing.T) {
	m, f := loaderManager(t)
	f.err = errors.New("bad ELF header")
	seedVersion(t, m, "ruby", "0.23.1", "native")

	_, ok := m.LoadLanguage(rubySpec())
	assert.False(t, ok)
	_, ok = m.LoadLanguage(rubySpec())
	assert.False(t, ok)
	assert.Equal(t, int32(1), f.calls.Load(), "failure is cached too")
}

func TestRollbackReloadsBinding(t *testing.T) {
	m, f := loaderManager(t)
	seedVersion(t, m, "ruby", "0.22.0", "old")
	seedVersion(t, m, "ruby", "0.23.1", "new")
	load := m.NativeLoader(rubySpec())

	first, err := load()
	require.NoError(t, err)
	assert.Equal(t, "0.23.1", first.Version)

	res, err := m.RollbackToPrevious("ruby")
	require.NoError(t, err)
	require.True(t, res.Success)

	second, err := load()
	require.NoError(t, err)
	assert.Equal(t, "0.22.0", second.Version)
	assert.Equal(t, "0.23.1", first.Version, "held bindings are not mutated")
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestLoadVerifiesIntegrity(t *testing.T) {
	m, f := loaderManager(t)
	bin := seedVersion(t, m, "ruby", "0.23.1", "original")
	require.NoError(t, os.WriteFile(bin, []byte("tampered"), 0o755))

	_, ok := m.LoadLanguage(rubySpec())
	assert.False(t, ok)
	assert.Zero(t, f.calls.Load())

	lax, lf := loaderManager(t, WithVerifyOnLoad(false))
	bin = seedVersion(t, lax, "ruby", "0.23.1", "original")
	require.NoError(t, os.WriteFile(bin, []byte("tampered"), 0o755))

	_, ok = lax.LoadLanguage(rubySpec())
	assert.True(t, ok)
	assert.Equal(t, int32(1), lf.calls.Load())
}

func TestLoadSkipsEmptyBinary(t *testing.T) {
	m, f := loaderManager(t, WithVerifyOnLoad(false))
	bin := seedVersion(t, m, "ruby", "0.23.1", "x")
	require.NoError(t, os.Truncate(bin, 0))

	_, ok := m.LoadLanguage(rubySpec())
	assert.False(t, ok)
	assert.Zero(t, f.calls.Load())
}

func TestEnsureLanguageDownloadsOnFirstUse(t *testing.T) {
	var hits atomic.Int32
	srv := assetServer(t, []byte("downloaded"), &hits)
	m := downloadManager(t, srv, WithAutoDownload(true))
	f := &fakeOpener{}
	m.open = f.open

	_, ok := m.LoadLanguage(rubySpec())
	assert.False(t, ok)
	assert.Zero(t, hits.Load(), "plain loads never touch the network")

	b, err := m.EnsureLanguage(context.Background(), rubySpec())
	require.NoError(t, err)
	assert.Equal(t, "0.23.1", b.Version)
	assert.Equal(t, int32(1), f.calls.Load())
	assert.Equal(t, int32(1), hits.Load())

	versions, _ := m.CachedVersions("ruby")
	assert.Equal(t, []string{"0.23.1"}, versions)

	_, err = m.EnsureLanguage(context.Background(), rubySpec())
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load(), "cached after the first download")
}

func TestEnsureLanguageWithoutAutoDownload(t *testing.T) {
	var hits atomic.Int32
	srv := assetServer(t, []byte("downloaded"), &hits)
	m := downloadManager(t, srv)

	_, err := m.EnsureLanguage(context.Background(), rubySpec())
	var nf *GrammarNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Zero(t, hits.Load())
	assert.False(t, m.AutoDownload())
}

func TestEnsureLanguageHonoursDeadline(t *testing.T) {
	var slow atomic.Bool
	slow.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if slow.Load() {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(5 * time.Second):
			}
		}
		_, _ = w.Write([]byte("downloaded"))
	}))
	t.Cleanup(srv.Close)
	m := downloadManager(t, srv, WithAutoDownload(true))
	f := &fakeOpener{}
	m.open = f.open

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := m.EnsureLanguage(ctx, rubySpec())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Empty(t, visibleEntries(t, m, "ruby"), "nothing published")

	slow.Store(false)
	b, err := m.EnsureLanguage(context.Background(), rubySpec())
	require.NoError(t, err, "a cancelled download is retried")
	assert.Equal(t, "0.23.1", b.Version)
}

func TestDownloadInvalidatesBinding(t *testing.T) {
	srv := assetServer(t, []byte("downloaded"), nil)
	m := downloadManager(t, srv)
	f := &fakeOpener{}
	m.open = f.open
	seedVersion(t, m, "ruby", "0.22.0", "old")

	b, ok := m.LoadLanguage(rubySpec())
	require.True(t, ok)
	assert.Equal(t, "0.22.0", b.Version)

	_, err := m.DownloadGrammar(context.Background(), rubySpec(), "0.23.1", nil)
	require.NoError(t, err)

	b, ok = m.LoadLanguage(rubySpec())
	require.True(t, ok)
	assert.Equal(t, "0.23.1", b.Version)
}

func TestCloseDropsBindings(t *testing.T) {
	m, f := loaderManager(t)
	seedVersion(t, m, "ruby", "0.23.1", "native")

	_, ok := m.LoadLanguage(rubySpec())
	require.True(t, ok)
	require.NoError(t, m.Close())

	_, ok = m.LoadLanguage(rubySpec())
	require.True(t, ok)
	assert.Equal(t, int32(2), f.calls.Load())
}
