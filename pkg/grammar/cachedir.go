package grammar

import (
	"os"
	"path/filepath"

	"github.com/jmylchreest/codeparse/internal/opt"
)

// CacheDirEnv is the environment variable that overrides the cache root
// when no configuration value is set.
const CacheDirEnv = "CODEPARSE_GRAMMAR_CACHE"

// DefaultCacheSubdir is joined to the user's home directory when neither
// configuration nor environment name a cache root.
var DefaultCacheSubdir = filepath.Join(".codeparse", "grammars")

// CacheDirInputs are the explicit inputs of cache root resolution.
type CacheDirInputs struct {
	Configured opt.Value[string] // grammar.cache_dir
	Env        opt.Value[string] // CODEPARSE_GRAMMAR_CACHE
	Home       opt.Value[string] // user home directory
}

// EnvCacheDirInputs gathers the environment-derived inputs for the
// running process. The configured value is left to the caller.
func EnvCacheDirInputs(configured opt.Value[string]) CacheDirInputs {
	home := opt.None[string]()
	if h, err := os.UserHomeDir(); err == nil {
		home = opt.NonBlank(h)
	}
	return CacheDirInputs{
		Configured: configured,
		Env:        opt.Env(CacheDirEnv),
		Home:       home,
	}
}

// ResolveCacheDir picks the cache root: configuration first, then the
// environment, then DefaultCacheSubdir under the home directory. It does not
// touch the filesystem.
func ResolveCacheDir(in CacheDirInputs) (string, error) {
	if dir, ok := opt.First(in.Configured, in.Env).Get(); ok {
		return filepath.Clean(dir), nil
	}
	if home, ok := in.Home.Get(); ok {
		return filepath.Join(home, DefaultCacheSubdir), nil
	}
	return "", &ConfigurationError{Reason: "no cache directory configured and no home directory available"}
}

// ensureDir creates dir if needed, reporting failures as configuration
// errors since they mean the cache root is unusable.
func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &ConfigurationError{Reason: "cannot create cache directory " + dir, Err: err}
	}
	return nil
}
