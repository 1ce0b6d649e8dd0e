package parser

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubParser struct {
	lang string
}

func (s *stubParser) Language() string                               { return s.lang }
func (s *stubParser) Supports(string) bool                           { return true }
func (s *stubParser) Parse(context.Context, string) ([]Chunk, error) { return nil, nil }

func stubFactory(lang string, built *atomic.Int32) Factory {
	return func() CodeParser {
		if built != nil {
			built.Add(1)
		}
		return &stubParser{lang: lang}
	}
}

// ---------------------------------------------------------------------------
// Register / FindParser
// ---------------------------------------------------------------------------

func TestFindParser(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(stubFactory("python", nil), "py"))

	p, ok := r.FindParser("main.py")
	require.True(t, ok)
	assert.Equal(t, "python", p.Language())

	_, ok = r.FindParser("README.md")
	assert.False(t, ok)
}

func TestFindParserCaseInsensitive(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(stubFactory("python", nil), ".PY", "Pyi"))

	for _, path := range []string{"a.py", "b.PY", "c.Py", "dir/d.pyi", "e.PYI"} {
		p, ok := r.FindParser(path)
		require.True(t, ok, path)
		assert.Equal(t, "python", p.Language(), path)
	}
	assert.Equal(t, []string{"py", "pyi"}, r.SupportedExtensions())
}

func TestFindParserWithoutExtension(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(stubFactory("bash", nil), "bashrc", "sh"))

	for _, path := range []string{"Makefile", ".bashrc", "dir.d/file", "trailing."} {
		_, ok := r.FindParser(path)
		assert.False(t, ok, path)
	}
}

func TestFindParserCachesInstance(t *testing.T) {
	var built atomic.Int32
	r := NewRegistry()
	require.NoError(t, r.Register(stubFactory("go", &built), "go"))

	a, _ := r.FindParser("a.go")
	b, _ := r.FindParser("b.go")
	assert.Same(t, a, b)
	assert.Equal(t, int32(1), built.Load())
}

func TestFindParserIsLazy(t *testing.T) {
	var built atomic.Int32
	r := NewRegistry()
	require.NoError(t, r.Register(stubFactory("go", &built), "go"))
	assert.Zero(t, built.Load())
}

func TestRegisterOverwrites(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(stubFactory("old", nil), "x"))
	old, _ := r.FindParser("f.x")

	require.NoError(t, r.Register(stubFactory("new", nil), "x"))
	p, ok := r.FindParser("f.x")
	require.True(t, ok)
	assert.Equal(t, "new", p.Language())
	assert.NotSame(t, old, p)
}

func TestRegisterValidation(t *testing.T) {
	r := NewRegistry()
	var vErr *ValidationError

	require.ErrorAs(t, r.Register(nil, "py"), &vErr)
	assert.Equal(t, "factory", vErr.Field)

	require.ErrorAs(t, r.Register(stubFactory("python", nil)), &vErr)
	assert.Equal(t, "extensions", vErr.Field)

	require.ErrorAs(t, r.Register(stubFactory("python", nil), "py", "  "), &vErr)
	require.ErrorAs(t, r.Register(stubFactory("python", nil), "."), &vErr)

	assert.Empty(t, r.SupportedExtensions(), "failed registrations leave no trace")
}

// ---------------------------------------------------------------------------
// Unregister
// ---------------------------------------------------------------------------

func TestUnregister(t *testing.T) {
	var built atomic.Int32
	r := NewRegistry()
	require.NoError(t, r.Register(stubFactory("python", &built), "py"))
	first, ok := r.FindParser("a.py")
	require.True(t, ok)

	assert.True(t, r.Unregister(".PY"))
	_, ok = r.FindParser("a.py")
	assert.False(t, ok)
	assert.False(t, r.Unregister("py"))

	require.NoError(t, r.Register(stubFactory("python", &built), "py"))
	second, ok := r.FindParser("a.py")
	require.True(t, ok)
	assert.NotSame(t, first, second, "no stale instance after re-registration")
	assert.Equal(t, int32(2), built.Load())
}

func TestUnregisterKeepsSiblingExtensions(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(stubFactory("c", nil), "c", "h"))
	r.Unregister("h")

	_, ok := r.FindParser("x.h")
	assert.False(t, ok)
	_, ok = r.FindParser("x.c")
	assert.True(t, ok)
}

// ---------------------------------------------------------------------------
// Concurrency
// ---------------------------------------------------------------------------

func TestConcurrentFirstLookupBuildsOnce(t *testing.T) {
	var built atomic.Int32
	r := NewRegistry()
	require.NoError(t, r.Register(stubFactory("rust", &built), "rs"))

	var wg sync.WaitGroup
	got := make([]CodeParser, 32)
	for i := range got {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[i], _ = r.FindParser("lib.rs")
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), built.Load())
	for _, p := range got {
		assert.Same(t, got[0], p)
	}
}

func TestConcurrentLookupsRaceRegistration(t *testing.T) {
	r := NewRegistry()
	var registered atomic.Bool

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				p, ok := r.FindParser("main.py")
				if ok {
					assert.True(t, registered.Load(), "parser visible before Register returned")
					assert.Equal(t, "python", p.Language())
				}
			}
		}()
	}

	// Set before Register, so any lookup that succeeds must observe it.
	registered.Store(true)
	require.NoError(t, r.Register(stubFactory("python", nil), "py"))

	close(stop)
	wg.Wait()
}

func TestConcurrentLookupsRaceUnregister(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(stubFactory("python", nil), "py"))

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 1000 {
				if p, ok := r.FindParser("main.py"); ok {
					assert.Equal(t, "python", p.Language())
				}
			}
		}()
	}
	r.Unregister("py")
	wg.Wait()

	_, ok := r.FindParser("main.py")
	assert.False(t, ok)
}
