package grammar

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/codeparse/internal/opt"
)

func TestResolveCacheDir(t *testing.T) {
	home := filepath.Join("home", "dev")
	tests := []struct {
		name string
		in   CacheDirInputs
		want string
	}{
		{
			name: "config wins over env",
			in:   CacheDirInputs{Configured: opt.Some("/cfg/grammars"), Env: opt.Some("/env/grammars"), Home: opt.Some(home)},
			want: filepath.Clean("/cfg/grammars"),
		},
		{
			name: "env when no config",
			in:   CacheDirInputs{Env: opt.Some("/env/grammars"), Home: opt.Some(home)},
			want: filepath.Clean("/env/grammars"),
		},
		{
			name: "home default",
			in:   CacheDirInputs{Home: opt.Some(home)},
			want: filepath.Join(home, ".codeparse", "grammars"),
		},
		{
			name: "blank config is absent",
			in:   CacheDirInputs{Configured: opt.NonBlank("  "), Env: opt.Some("/env/grammars")},
			want: filepath.Clean("/env/grammars"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveCacheDir(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveCacheDirNothingResolves(t *testing.T) {
	_, err := ResolveCacheDir(CacheDirInputs{})
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestEnvCacheDirInputs(t *testing.T) {
	t.Setenv(CacheDirEnv, "/from/env")

	in := EnvCacheDirInputs(opt.None[string]())
	got, err := ResolveCacheDir(in)
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean("/from/env"), got)

	in = EnvCacheDirInputs(opt.Some("/from/config"))
	got, err = ResolveCacheDir(in)
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean("/from/config"), got)
}
