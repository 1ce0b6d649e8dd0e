package grammar

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxVersions is how many versions per language cleanup retains by
// default.
const DefaultMaxVersions = 3

// staleAfter is the age past which abandoned staging and trash directories
// are swept.
const staleAfter = time.Hour

// CleanupOldVersions keeps the maxVersions newest versions of language and
// deletes the rest, returning how many were removed. The active version is
// always kept; when it is older than the window, it is kept together with
// the maxVersions-1 newest others.
func (m *Manager) CleanupOldVersions(language string, maxVersions int) (int, error) {
	if maxVersions < 1 {
		return 0, &ValidationError{Field: "maxVersions", Reason: fmt.Sprintf("must be at least 1, got %d", maxVersions)}
	}
	if err := validateSegment("language", language); err != nil {
		return 0, err
	}

	lock := m.lock(language)
	lock.Lock()
	defer lock.Unlock()

	m.sweepStale(language)

	versions, err := m.listVersions(language)
	if err != nil {
		return 0, err
	}

	keep := make(map[string]bool, maxVersions)
	if active, ok := m.activeVersion(language, versions); ok {
		keep[active] = true
	}
	for _, v := range versions {
		if len(keep) >= maxVersions {
			break
		}
		keep[v] = true
	}

	removed := 0
	for _, v := range versions {
		if keep[v] {
			continue
		}
		if err := m.removeVersion(language, v); err != nil {
			return removed, err
		}
		removed++
		m.logger.Printf("removed %s@%s", language, v)
	}
	return removed, nil
}

// CleanupAllOldVersions applies CleanupOldVersions to every cached language
// and returns the total removed. Languages are processed in parallel; the
// first error is returned after all of them finish.
func (m *Manager) CleanupAllOldVersions(maxVersions int) (int, error) {
	if maxVersions < 1 {
		return 0, &ValidationError{Field: "maxVersions", Reason: fmt.Sprintf("must be at least 1, got %d", maxVersions)}
	}
	languages, err := m.CachedLanguages()
	if err != nil {
		return 0, err
	}

	var total atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(m.workers)
	for _, lang := range languages {
		g.Go(func() error {
			n, err := m.CleanupOldVersions(lang, maxVersions)
			total.Add(int64(n))
			if err != nil {
				return fmt.Errorf("cleaning %s: %w", lang, err)
			}
			return nil
		})
	}
	err = g.Wait()
	return int(total.Load()), err
}

// removeVersion hides a version directory by renaming it out of the listing,
// then deletes it. Caller holds the language write lock.
func (m *Manager) removeVersion(language, version string) error {
	dir := m.versionDir(language, version)
	trash := filepath.Join(m.languageDir(language), trashPrefix+ulid.Make().String())
	if err := os.Rename(dir, trash); err != nil {
		return &FilesystemError{Op: "remove", Path: dir, Err: err}
	}
	if err := os.RemoveAll(trash); err != nil {
		// Already invisible to readers; a later sweep retries.
		m.logger.Printf("leaving %s behind: %v", trash, err)
	}
	return nil
}

// sweepStale deletes staging and trash directories of language whose ULID
// is older than staleAfter. Caller holds the language write lock.
func (m *Manager) sweepStale(language string) {
	dir := m.languageDir(language)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-staleAfter)
	for _, e := range entries {
		name := e.Name()
		var id string
		switch {
		case strings.HasPrefix(name, stagingPrefix):
			id = strings.TrimPrefix(name, stagingPrefix)
		case strings.HasPrefix(name, trashPrefix):
			id = strings.TrimPrefix(name, trashPrefix)
		default:
			continue
		}
		if parsed, err := ulid.ParseStrict(id); err == nil && ulid.Time(parsed.Time()).After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, name)); err == nil {
			m.logger.Printf("swept stale %s", filepath.Join(language, name))
		}
	}
}
