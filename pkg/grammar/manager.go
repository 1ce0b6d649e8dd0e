// Package grammar manages native tree-sitter grammars that are downloaded at
// runtime rather than compiled into the binary.
//
// Grammars live in a versioned on-disk cache:
//
//	{root}/{language}/{version}/{platform}/{binary, metadata.json}
//	{root}/{language}/active
//
// The Manager downloads, verifies and atomically publishes versions, lists
// and inspects them, repoints the active version (rollback), removes old
// versions and loads the active binary once per language via purego.
package grammar

import (
	"errors"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/jmylchreest/codeparse/internal/opt"
	buildinfo "github.com/jmylchreest/codeparse/internal/version"
	"github.com/jmylchreest/codeparse/pkg/httputil"
)

const (
	// DefaultGrammarURL is the default URL template for grammar assets.
	// Placeholders: {repository}, {language}, {version}, {platform}, {asset}.
	DefaultGrammarURL = "https://github.com/{repository}/releases/download/v{version}/{asset}"

	// DefaultWorkers bounds concurrent downloads and cleanup fan-out.
	DefaultWorkers = 4

	activeFile    = "active"
	stagingPrefix = ".staging-"
	trashPrefix   = ".trash-"
)

var grammarLog = log.New(os.Stderr, "[codeparse:grammar] ", log.Ltime)

// Manager owns the grammar cache rooted at a single directory. It is safe
// for concurrent use.
type Manager struct {
	root         string
	platform     Platform
	baseURL      string
	client       *httputil.Client
	logger       *log.Logger
	pins         func(key string) opt.Value[string]
	autoDownload bool
	verifyOnLoad bool
	open         openFunc
	workers      int
	pool         *semaphore.Weighted

	downloads singleflight.Group

	locksMu sync.Mutex
	locks   map[string]*sync.RWMutex

	cellsMu sync.Mutex
	cells   map[string]func() (*Binding, error)

	loadedMu sync.Mutex
	loaded   []*Binding
}

// Option configures a Manager.
type Option func(*Manager)

// WithBaseURL sets the URL template for grammar downloads.
func WithBaseURL(urlTemplate string) Option {
	return func(m *Manager) {
		if urlTemplate != "" {
			m.baseURL = urlTemplate
		}
	}
}

// WithHTTPClient replaces the download client.
func WithHTTPClient(c *httputil.Client) Option {
	return func(m *Manager) { m.client = c }
}

// WithLogger replaces the default stderr logger.
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithWorkers bounds the number of concurrent downloads.
func WithWorkers(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.workers = n
		}
	}
}

// WithVersionPins supplies configured version pins, looked up by
// GrammarSpec.ConfigKey.
func WithVersionPins(lookup func(key string) opt.Value[string]) Option {
	return func(m *Manager) { m.pins = lookup }
}

// WithAutoDownload makes EnsureLanguage download the resolved version of a
// language when nothing is cached yet.
func WithAutoDownload(enabled bool) Option {
	return func(m *Manager) { m.autoDownload = enabled }
}

// WithVerifyOnLoad re-hashes a cached binary against its sidecar before
// loading it.
func WithVerifyOnLoad(enabled bool) Option {
	return func(m *Manager) { m.verifyOnLoad = enabled }
}

// WithPlatform overrides the detected platform.
func WithPlatform(p Platform) Option {
	return func(m *Manager) { m.platform = p }
}

// NewManager creates a Manager for the cache rooted at root. The directory
// is not created until something needs to be written.
func NewManager(root string, opts ...Option) (*Manager, error) {
	if strings.TrimSpace(root) == "" {
		return nil, &ConfigurationError{Reason: "cache root is empty"}
	}

	m := &Manager{
		root:         filepath.Clean(root),
		platform:     CurrentPlatform(),
		baseURL:      DefaultGrammarURL,
		logger:       grammarLog,
		pins:         func(string) opt.Value[string] { return opt.None[string]() },
		verifyOnLoad: true,
		open:         openLibrary,
		workers:      DefaultWorkers,
		locks:        make(map[string]*sync.RWMutex),
		cells:        make(map[string]func() (*Binding, error)),
	}
	for _, o := range opts {
		o(m)
	}
	if m.client == nil {
		m.client = httputil.NewClient(httputil.WithUserAgent(buildinfo.UserAgent()))
	}
	m.pool = semaphore.NewWeighted(int64(m.workers))
	return m, nil
}

// Root returns the cache root directory.
func (m *Manager) Root() string { return m.root }

// Platform returns the platform whose binaries this manager stores.
func (m *Manager) Platform() Platform { return m.platform }

// ResolveVersion returns the version to download for spec when the caller
// does not name one: configuration pin, then environment pin, then the
// spec's default.
func (m *Manager) ResolveVersion(spec *GrammarSpec) string {
	return opt.First(m.pins(spec.ConfigKey), opt.Env(spec.EnvKey)).Or(spec.DefaultVersion)
}

// CachedVersions lists the cached versions of language, newest first. A
// language that was never cached yields an empty list.
func (m *Manager) CachedVersions(language string) ([]string, error) {
	if err := validateSegment("language", language); err != nil {
		return nil, err
	}
	lock := m.lock(language)
	lock.RLock()
	defer lock.RUnlock()
	return m.listVersions(language)
}

// ActiveVersion returns the version used when none is requested: the one
// named by the active pointer if it is still cached, otherwise the highest
// cached version that has a binary for this platform.
func (m *Manager) ActiveVersion(language string) (string, bool, error) {
	if err := validateSegment("language", language); err != nil {
		return "", false, err
	}
	lock := m.lock(language)
	lock.RLock()
	defer lock.RUnlock()

	versions, err := m.listVersions(language)
	if err != nil {
		return "", false, err
	}
	v, ok := m.activeVersion(language, versions)
	return v, ok, nil
}

// VersionInfo returns the metadata of a cached version. An empty version
// selects the highest cached version. Absence is reported with ok=false.
func (m *Manager) VersionInfo(language, version string) (VersionMetadata, bool, error) {
	if err := validateSegment("language", language); err != nil {
		return VersionMetadata{}, false, err
	}
	if version != "" {
		if err := validateSegment("version", version); err != nil {
			return VersionMetadata{}, false, err
		}
	}

	lock := m.lock(language)
	lock.RLock()
	defer lock.RUnlock()

	if version == "" {
		versions, err := m.listVersions(language)
		if err != nil || len(versions) == 0 {
			return VersionMetadata{}, false, err
		}
		version = versions[0]
	}
	return readMetadata(filepath.Join(m.platformDir(language, version), MetadataFile))
}

// VersionHistory lists every cached version of language, newest first,
// with its metadata and whether it is active.
func (m *Manager) VersionHistory(language string) ([]VersionHistoryEntry, error) {
	if err := validateSegment("language", language); err != nil {
		return nil, err
	}
	lock := m.lock(language)
	lock.RLock()
	defer lock.RUnlock()

	versions, err := m.listVersions(language)
	if err != nil {
		return nil, err
	}
	active, _ := m.activeVersion(language, versions)

	entries := make([]VersionHistoryEntry, 0, len(versions))
	for _, v := range versions {
		entry := VersionHistoryEntry{Version: v, Active: v == active}
		md, ok, err := readMetadata(filepath.Join(m.platformDir(language, v), MetadataFile))
		if err != nil {
			return nil, err
		}
		if ok {
			entry.Metadata = &md
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// CachedLanguages lists the languages that have a directory in the cache.
func (m *Manager) CachedLanguages() ([]string, error) {
	return listSubdirs(m.root)
}

// listVersions reads the version directories of language. Caller holds the
// language lock.
func (m *Manager) listVersions(language string) ([]string, error) {
	versions, err := listSubdirs(m.languageDir(language))
	if err != nil {
		return nil, err
	}
	sortVersionsDesc(versions)
	return versions, nil
}

// activeVersion resolves the active version from the pointer file and the
// given listing. Without a usable pointer the newest version that has a
// binary for this platform wins, then simply the newest. Caller holds the
// language lock.
func (m *Manager) activeVersion(language string, versions []string) (string, bool) {
	if len(versions) == 0 {
		return "", false
	}
	data, err := os.ReadFile(filepath.Join(m.languageDir(language), activeFile))
	if err == nil {
		if pinned := strings.TrimSpace(string(data)); slices.Contains(versions, pinned) {
			return pinned, true
		}
	}
	for _, v := range versions {
		if m.hasBinary(language, v) {
			return v, true
		}
	}
	return versions[0], true
}

// hasBinary reports whether version holds a non-empty binary for this
// platform.
func (m *Manager) hasBinary(language, version string) bool {
	info, err := os.Stat(m.binaryPath(language, version))
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// setActive rewrites the active pointer. Caller holds the write lock.
func (m *Manager) setActive(language, version string) error {
	return writeFileAtomic(filepath.Join(m.languageDir(language), activeFile), []byte(version+"\n"), 0o644)
}

func (m *Manager) lock(language string) *sync.RWMutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[language]
	if !ok {
		l = &sync.RWMutex{}
		m.locks[language] = l
	}
	return l
}

func (m *Manager) languageDir(language string) string {
	return filepath.Join(m.root, language)
}

func (m *Manager) versionDir(language, version string) string {
	return filepath.Join(m.root, language, version)
}

func (m *Manager) platformDir(language, version string) string {
	return filepath.Join(m.root, language, version, m.platform.Name())
}

// binaryPath returns where the binary of a cached version lives. Languages
// without a spec fall back to the default library naming.
func (m *Manager) binaryPath(language, version string) string {
	name := "tree-sitter-" + language + m.platform.Ext
	if spec, ok := Lookup(language); ok {
		name = spec.BinaryName(m.platform.Ext)
	}
	return filepath.Join(m.platformDir(language, version), name)
}

// listSubdirs returns the visible subdirectory names of dir. A missing dir
// yields an empty list.
func listSubdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, &FilesystemError{Op: "list", Path: dir, Err: err}
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// validateSegment rejects values that cannot safely be used as a single
// path segment inside the cache.
func validateSegment(field, value string) error {
	switch {
	case strings.TrimSpace(value) == "":
		return &ValidationError{Field: field, Reason: "must not be empty"}
	case strings.ContainsAny(value, `/\`), value == "..", strings.HasPrefix(value, "."):
		return &ValidationError{Field: field, Reason: "must be a plain name, got " + value}
	}
	return nil
}
