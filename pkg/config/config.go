// Package config loads codeparse settings from built-in defaults, an
// optional JSON file and CODEPARSE_* environment variables, in increasing
// priority.
//
// The grammar cache directory and per-language version pins are the
// exception: their environment variables (CODEPARSE_GRAMMAR_CACHE,
// CODEPARSE_GRAMMAR_<LANG>_VERSION) rank below the file and are resolved by
// the grammar package, not here.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/jmylchreest/codeparse/internal/opt"
	"github.com/jmylchreest/codeparse/pkg/grammar"
)

const (
	// EnvPrefix prefixes every environment variable read by Load.
	EnvPrefix = "CODEPARSE_"
	// EnvConfigFile names the config file, overriding DefaultFile.
	EnvConfigFile = "CODEPARSE_CONFIG"
)

// DefaultFile is the project-relative config file read when no other is
// named. It is optional.
var DefaultFile = filepath.Join(".codeparse", "config.json")

// envKeys maps the environment variables Load honours to config keys.
var envKeys = map[string]string{
	"GRAMMAR_BASE_URL":       "grammar.base_url",
	"GRAMMAR_MAX_VERSIONS":   "grammar.max_versions",
	"GRAMMAR_WORKERS":        "grammar.workers",
	"GRAMMAR_AUTO_DOWNLOAD":  "grammar.auto_download",
	"GRAMMAR_VERIFY_ON_LOAD": "grammar.verify_on_load",
}

// Config is the full codeparse configuration.
type Config struct {
	Grammar GrammarConfig `koanf:"grammar"`

	// File is the config file that was read, if any.
	File string `koanf:"-"`
}

// GrammarConfig configures the runtime grammar cache.
type GrammarConfig struct {
	CacheDir     string            `koanf:"cache_dir"`
	BaseURL      string            `koanf:"base_url"`
	MaxVersions  int               `koanf:"max_versions"`
	Workers      int               `koanf:"workers"`
	AutoDownload bool              `koanf:"auto_download"`
	VerifyOnLoad bool              `koanf:"verify_on_load"`
	Versions     map[string]string `koanf:"versions"`
}

func defaults() map[string]any {
	return map[string]any{
		"grammar.base_url":       grammar.DefaultGrammarURL,
		"grammar.max_versions":   grammar.DefaultMaxVersions,
		"grammar.workers":        grammar.DefaultWorkers,
		"grammar.auto_download":  false,
		"grammar.verify_on_load": true,
	}
}

// Load builds the configuration. path names the JSON file; when empty,
// CODEPARSE_CONFIG and then DefaultFile are tried, and a missing default
// file is not an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	explicit := opt.First(opt.NonBlank(path), opt.Env(EnvConfigFile))
	cfgFile := explicit.Or(DefaultFile)
	loaded := ""
	if _, err := os.Stat(cfgFile); err == nil || explicit.IsSome() {
		if err := k.Load(file.Provider(cfgFile), json.Parser()); err != nil {
			return nil, fmt.Errorf("loading %s: %w", cfgFile, err)
		}
		loaded = cfgFile
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", cfgFile, err)
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix:        EnvPrefix,
		TransformFunc: transformEnv,
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.File = loaded
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// transformEnv keeps only the non-blank variables listed in envKeys.
func transformEnv(key, value string) (string, any) {
	mapped, ok := envKeys[strings.TrimPrefix(key, EnvPrefix)]
	if !ok || strings.TrimSpace(value) == "" {
		return "", nil
	}
	return mapped, value
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Grammar.MaxVersions < 1 {
		return fmt.Errorf("grammar.max_versions must be at least 1, got %d", c.Grammar.MaxVersions)
	}
	if c.Grammar.Workers < 1 {
		return fmt.Errorf("grammar.workers must be at least 1, got %d", c.Grammar.Workers)
	}
	for lang := range c.Grammar.Versions {
		if _, ok := grammar.Lookup(lang); !ok {
			return fmt.Errorf("grammar.versions.%s: unknown grammar", lang)
		}
	}
	return nil
}

// VersionPin looks up a pinned version by GrammarSpec.ConfigKey, e.g.
// "grammar.versions.ruby".
func (c *Config) VersionPin(key string) opt.Value[string] {
	lang, ok := strings.CutPrefix(key, "grammar.versions.")
	if !ok {
		return opt.None[string]()
	}
	return opt.NonBlank(c.Grammar.Versions[lang])
}

// CacheDir resolves the grammar cache root from this configuration, the
// environment and the home directory.
func (c *Config) CacheDir() (string, error) {
	return grammar.ResolveCacheDir(grammar.EnvCacheDirInputs(opt.NonBlank(c.Grammar.CacheDir)))
}

// GrammarManager opens the grammar cache described by this configuration.
// Extra options are applied last.
func (c *Config) GrammarManager(extra ...grammar.Option) (*grammar.Manager, error) {
	root, err := c.CacheDir()
	if err != nil {
		return nil, err
	}
	opts := []grammar.Option{
		grammar.WithBaseURL(c.Grammar.BaseURL),
		grammar.WithWorkers(c.Grammar.Workers),
		grammar.WithAutoDownload(c.Grammar.AutoDownload),
		grammar.WithVerifyOnLoad(c.Grammar.VerifyOnLoad),
		grammar.WithVersionPins(c.VersionPin),
	}
	return grammar.NewManager(root, append(opts, extra...)...)
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{Grammar: GrammarConfig{
		BaseURL:      grammar.DefaultGrammarURL,
		MaxVersions:  grammar.DefaultMaxVersions,
		Workers:      grammar.DefaultWorkers,
		VerifyOnLoad: true,
	}}
}
