package grammar

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// libraryPattern matches native library file names on any platform.
const libraryPattern = "*.{so,dylib,dll}"

// CacheStats walks the cache tree once and aggregates its contents. Hidden
// entries (staging, trash, temp files) are not counted. A cache that does
// not exist yet reports zeros.
func (m *Manager) CacheStats() (CacheStats, error) {
	var st CacheStats
	err := filepath.WalkDir(m.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Entries can vanish under a concurrent cleanup.
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if path == m.root {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(m.root, path)
		if err != nil {
			return err
		}
		depth := strings.Count(rel, string(filepath.Separator)) + 1

		if d.IsDir() {
			switch depth {
			case 1:
				st.Languages++
			case 2:
				st.Versions++
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		st.Files++
		st.TotalBytes += info.Size()
		if ok, _ := doublestar.Match(libraryPattern, d.Name()); ok {
			st.LibraryFiles++
			st.LibraryBytes += info.Size()
		} else if d.Name() == MetadataFile {
			st.MetadataFiles++
		}
		return nil
	})
	if err != nil {
		return CacheStats{}, &FilesystemError{Op: "walk", Path: m.root, Err: err}
	}
	return st, nil
}

// VerifyVersion re-hashes the cached binary of language@version and checks
// it against the size and digest recorded in its sidecar. A version without
// a sidecar only has to be non-empty.
func (m *Manager) VerifyVersion(language, version string) error {
	if err := validateSegment("language", language); err != nil {
		return err
	}
	if err := validateSegment("version", version); err != nil {
		return err
	}
	lock := m.lock(language)
	lock.RLock()
	defer lock.RUnlock()
	return m.verify(language, version)
}

// verify is VerifyVersion without locking.
func (m *Manager) verify(language, version string) error {
	bin := m.binaryPath(language, version)
	if err := VerifyDownloadedFile(bin, nil); err != nil {
		return err
	}

	md, ok, err := readMetadata(filepath.Join(m.platformDir(language, version), MetadataFile))
	if err != nil || !ok {
		return err
	}

	info, err := os.Stat(bin)
	if err != nil {
		return &FilesystemError{Op: "stat", Path: bin, Err: err}
	}
	if md.FileSize > 0 && info.Size() != md.FileSize {
		return &IntegrityError{
			Path:     bin,
			Expected: fmt.Sprintf("%d bytes", md.FileSize),
			Actual:   fmt.Sprintf("%d bytes", info.Size()),
		}
	}
	if md.SHA256 == "" {
		return nil
	}
	sum, err := CalculateSHA256(bin)
	if err != nil {
		return err
	}
	if !strings.EqualFold(sum, md.SHA256) {
		return &IntegrityError{Path: bin, Expected: md.SHA256, Actual: sum}
	}
	return nil
}
