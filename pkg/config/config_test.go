package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/codeparse/pkg/grammar"
)

// clearEnv blanks every variable Load or the grammar cache consults.
func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv(EnvConfigFile, "")
	t.Setenv(grammar.CacheDirEnv, "")
	for k := range envKeys {
		t.Setenv(EnvPrefix+k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Grammar, cfg.Grammar)
	assert.Empty(t, cfg.File)
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `{
		"grammar": {
			"cache_dir": "/srv/grammars",
			"max_versions": 5,
			"auto_download": true,
			"versions": {"ruby": "0.22.0"}
		}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.File)
	assert.Equal(t, "/srv/grammars", cfg.Grammar.CacheDir)
	assert.Equal(t, 5, cfg.Grammar.MaxVersions)
	assert.True(t, cfg.Grammar.AutoDownload)
	assert.Equal(t, grammar.DefaultWorkers, cfg.Grammar.Workers, "unset keys keep defaults")
	assert.True(t, cfg.Grammar.VerifyOnLoad)
}

func TestLoadFileFromEnv(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `{"grammar": {"workers": 2}}`)
	t.Setenv(EnvConfigFile, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Grammar.Workers)
}

func TestLoadDefaultFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".codeparse"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFile), []byte(`{"grammar": {"workers": 7}}`), 0o644))
	t.Chdir(dir)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Grammar.Workers)
	assert.Equal(t, DefaultFile, cfg.File)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoadMalformedFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeConfig(t, `{"grammar": `))
	assert.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `{"grammar": {"workers": 2, "base_url": "https://file.example/{asset}"}}`)
	t.Setenv("CODEPARSE_GRAMMAR_WORKERS", "9")
	t.Setenv("CODEPARSE_GRAMMAR_VERIFY_ON_LOAD", "false")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Grammar.Workers)
	assert.False(t, cfg.Grammar.VerifyOnLoad)
	assert.Equal(t, "https://file.example/{asset}", cfg.Grammar.BaseURL)
}

func TestCacheDirEnvDoesNotOverrideFile(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()
	path := writeConfig(t, `{"grammar": {"cache_dir": "`+filepath.ToSlash(root)+`"}}`)
	t.Setenv(grammar.CacheDirEnv, filepath.Join(t.TempDir(), "env"))

	cfg, err := Load(path)
	require.NoError(t, err)
	dir, err := cfg.CacheDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(root), dir)
}

func TestCacheDirFallsBackToEnv(t *testing.T) {
	clearEnv(t)
	envDir := filepath.Join(t.TempDir(), "env")
	t.Setenv(grammar.CacheDirEnv, envDir)

	dir, err := Default().CacheDir()
	require.NoError(t, err)
	assert.Equal(t, envDir, dir)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero max versions", func(c *Config) { c.Grammar.MaxVersions = 0 }},
		{"zero workers", func(c *Config) { c.Grammar.Workers = 0 }},
		{"unknown pin", func(c *Config) { c.Grammar.Versions = map[string]string{"cobol": "1.0.0"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeConfig(t, `{"grammar": {"max_versions": 0}}`))
	assert.ErrorContains(t, err, "max_versions")
}

func TestVersionPin(t *testing.T) {
	cfg := Default()
	cfg.Grammar.Versions = map[string]string{"ruby": "0.22.0", "lua": "  "}

	v, ok := cfg.VersionPin("grammar.versions.ruby").Get()
	assert.True(t, ok)
	assert.Equal(t, "0.22.0", v)

	assert.False(t, cfg.VersionPin("grammar.versions.lua").IsSome(), "blank pins are absent")
	assert.False(t, cfg.VersionPin("grammar.versions.php").IsSome())
	assert.False(t, cfg.VersionPin("ruby").IsSome())
}

func TestGrammarManager(t *testing.T) {
	clearEnv(t)
	t.Setenv("CODEPARSE_GRAMMAR_RUBY_VERSION", "0.21.0")
	cfg := Default()
	cfg.Grammar.CacheDir = t.TempDir()
	cfg.Grammar.Versions = map[string]string{"ruby": "0.22.0"}

	m, err := cfg.GrammarManager()
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(cfg.Grammar.CacheDir), m.Root())

	ruby, _ := grammar.Lookup("ruby")
	assert.Equal(t, "0.22.0", m.ResolveVersion(ruby), "config pin beats the environment")

	lua, _ := grammar.Lookup("lua")
	assert.Equal(t, lua.DefaultVersion, m.ResolveVersion(lua))
}
