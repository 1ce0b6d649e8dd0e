package grammar

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrEmptyFile is wrapped by VerifyDownloadedFile when a file has no content.
var ErrEmptyFile = errors.New("file is empty")

// Progress is one report of a running download.
type Progress struct {
	Downloaded int64
	Total      int64 // -1 when the server did not declare a size
	Message    string
}

// ProgressFunc receives progress reports. It is called from the
// downloading goroutine and must not block.
type ProgressFunc func(Progress)

// DownloadResult is delivered by DownloadGrammarAsync.
type DownloadResult struct {
	Metadata *VersionMetadata
	Err      error
}

// DownloadGrammar downloads version of spec (the resolved version when
// empty) into a private staging directory, verifies it and atomically
// publishes it as the language's active version.
//
// Concurrent calls for the same language and version share one download.
// On failure nothing of the attempt remains visible and previously cached
// versions are untouched.
func (m *Manager) DownloadGrammar(ctx context.Context, spec *GrammarSpec, version string, progress ProgressFunc) (*VersionMetadata, error) {
	return m.download(ctx, spec, version, progress, true)
}

// DownloadGrammarAsync runs DownloadGrammar in the background. The channel
// receives exactly one result and is then closed.
func (m *Manager) DownloadGrammarAsync(ctx context.Context, spec *GrammarSpec, version string, progress ProgressFunc) <-chan DownloadResult {
	ch := make(chan DownloadResult, 1)
	go func() {
		defer close(ch)
		md, err := m.DownloadGrammar(ctx, spec, version, progress)
		ch <- DownloadResult{Metadata: md, Err: err}
	}()
	return ch
}

func (m *Manager) download(ctx context.Context, spec *GrammarSpec, version string, progress ProgressFunc, invalidate bool) (*VersionMetadata, error) {
	if spec == nil {
		return nil, &ValidationError{Field: "spec", Reason: "must not be nil"}
	}
	if version == "" {
		version = m.ResolveVersion(spec)
	}
	if err := validateSegment("language", spec.Language); err != nil {
		return nil, err
	}
	if err := validateSegment("version", version); err != nil {
		return nil, err
	}

	v, err, _ := m.downloads.Do(spec.Language+"@"+version, func() (any, error) {
		return m.fetchAndPublish(ctx, spec, version, progress)
	})
	if err != nil {
		return nil, err
	}
	if invalidate {
		m.Invalidate(spec.Language)
	}
	md := *v.(*VersionMetadata)
	return &md, nil
}

func (m *Manager) fetchAndPublish(ctx context.Context, spec *GrammarSpec, version string, progress ProgressFunc) (*VersionMetadata, error) {
	fail := func(err error) error {
		return &DownloadFailedError{Language: spec.Language, Version: version, Err: err}
	}

	if err := m.pool.Acquire(ctx, 1); err != nil {
		return nil, fail(err)
	}
	defer m.pool.Release(1)

	langDir := m.languageDir(spec.Language)
	if err := ensureDir(langDir); err != nil {
		return nil, err
	}

	staging := filepath.Join(langDir, stagingPrefix+ulid.Make().String())
	defer os.RemoveAll(staging)

	stagePlatform := filepath.Join(staging, m.platform.Name())
	if err := os.MkdirAll(stagePlatform, 0o755); err != nil {
		return nil, fail(&FilesystemError{Op: "create", Path: stagePlatform, Err: err})
	}

	url := m.assetURL(spec, version)
	m.logger.Printf("downloading %s@%s from %s", spec.Language, version, url)

	binPath := filepath.Join(stagePlatform, spec.BinaryName(m.platform.Ext))
	written, streamed, err := m.fetchTo(ctx, url, binPath, progress)
	if err != nil {
		return nil, fail(err)
	}
	if err := VerifyDownloadedFile(binPath, progress); err != nil {
		return nil, fail(err)
	}
	sum, err := CalculateSHA256(binPath)
	if err != nil {
		return nil, fail(err)
	}
	if sum != streamed {
		return nil, fail(&IntegrityError{Path: binPath, Expected: streamed, Actual: sum})
	}

	md := VersionMetadata{
		Language:     spec.Language,
		Version:      version,
		Repository:   spec.Repository,
		DownloadedAt: time.Now().UTC().Truncate(time.Second),
		Platform:     m.platform.Name(),
		FileSize:     written,
		SHA256:       sum,
	}
	if err := writeMetadata(stagePlatform, md); err != nil {
		return nil, fail(err)
	}

	lock := m.lock(spec.Language)
	lock.Lock()
	defer lock.Unlock()

	if err := m.publish(spec.Language, version, staging); err != nil {
		return nil, fail(err)
	}
	if err := m.setActive(spec.Language, version); err != nil {
		return nil, fail(err)
	}

	m.logger.Printf("installed %s@%s (%d bytes, sha256 %s)", spec.Language, version, written, sum[:12])
	return &md, nil
}

// fetchTo streams url into path, hashing and reporting progress as it goes.
// It returns the byte count and the hex digest of what was written.
func (m *Manager) fetchTo(ctx context.Context, url, path string, progress ProgressFunc) (int64, string, error) {
	asset, err := m.client.Fetch(ctx, url)
	if err != nil {
		return 0, "", err
	}
	defer asset.Body.Close()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return 0, "", &FilesystemError{Op: "create", Path: path, Err: err}
	}

	hasher := sha256.New()
	pw := &progressWriter{fn: progress, total: asset.Size, name: filepath.Base(path)}
	n, err := io.Copy(io.MultiWriter(f, hasher, pw), asset.Body)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = &FilesystemError{Op: "close", Path: path, Err: cerr}
	}
	if err != nil {
		return n, "", err
	}
	if asset.Size >= 0 && n != asset.Size {
		return n, "", fmt.Errorf("truncated download: got %d of %d bytes", n, asset.Size)
	}
	return n, hex.EncodeToString(hasher.Sum(nil)), nil
}

// publish moves a verified staging directory into place. Caller holds the
// language write lock.
func (m *Manager) publish(language, version, staging string) error {
	dst := m.versionDir(language, version)
	if _, err := os.Stat(dst); errors.Is(err, fs.ErrNotExist) {
		if err := os.Rename(staging, dst); err != nil {
			return &FilesystemError{Op: "publish", Path: dst, Err: err}
		}
		return nil
	}

	// The version already exists (another platform, or a re-download):
	// swap in only this platform's directory.
	src := filepath.Join(staging, m.platform.Name())
	target := m.platformDir(language, version)

	var trash string
	if _, err := os.Stat(target); err == nil {
		trash = filepath.Join(m.languageDir(language), trashPrefix+ulid.Make().String())
		if err := os.Rename(target, trash); err != nil {
			return &FilesystemError{Op: "publish", Path: target, Err: err}
		}
	}
	if err := os.Rename(src, target); err != nil {
		if trash != "" {
			_ = os.Rename(trash, target)
		}
		return &FilesystemError{Op: "publish", Path: target, Err: err}
	}
	if trash != "" {
		_ = os.RemoveAll(trash)
	}
	return nil
}

// assetURL expands the URL template for one asset.
func (m *Manager) assetURL(spec *GrammarSpec, version string) string {
	r := strings.NewReplacer(
		"{repository}", spec.Repository,
		"{language}", spec.Language,
		"{version}", version,
		"{platform}", m.platform.Name(),
		"{asset}", spec.AssetName(m.platform.Name(), m.platform.Ext),
		"{os}", m.platform.OS,
		"{arch}", m.platform.Arch,
	)
	return r.Replace(m.baseURL)
}

type progressWriter struct {
	fn      ProgressFunc
	total   int64
	written int64
	name    string
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.written += int64(len(p))
	if w.fn != nil {
		w.fn(Progress{
			Downloaded: w.written,
			Total:      w.total,
			Message:    fmt.Sprintf("Downloading %s", w.name),
		})
	}
	return len(p), nil
}

// VerifyDownloadedFile checks that path is a non-empty regular file and
// reports its final size through progress.
func VerifyDownloadedFile(path string, progress ProgressFunc) error {
	info, err := os.Stat(path)
	if err != nil {
		return &FilesystemError{Op: "verify", Path: path, Err: err}
	}
	if info.IsDir() {
		return &FilesystemError{Op: "verify", Path: path, Err: errors.New("is a directory")}
	}
	if info.Size() == 0 {
		return &FilesystemError{Op: "verify", Path: path, Err: ErrEmptyFile}
	}
	if progress != nil {
		progress(Progress{
			Downloaded: info.Size(),
			Total:      info.Size(),
			Message:    fmt.Sprintf("Verified %s: %d bytes", filepath.Base(path), info.Size()),
		})
	}
	return nil
}

// CalculateSHA256 returns the hex SHA-256 digest of the file at path.
func CalculateSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &FilesystemError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", &FilesystemError{Op: "read", Path: path, Err: err}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
