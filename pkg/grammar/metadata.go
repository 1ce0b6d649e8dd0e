package grammar

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// MetadataFile is the sidecar stored beside every cached grammar binary.
const MetadataFile = "metadata.json"

// VersionMetadata records the provenance of one cached grammar binary.
// It is written once, when a download has been verified, and removed only
// together with its version directory.
type VersionMetadata struct {
	Language     string    `json:"language"`
	Version      string    `json:"version"`
	Repository   string    `json:"repository"`
	DownloadedAt time.Time `json:"downloadedAt"`
	Platform     string    `json:"platform"`
	FileSize     int64     `json:"fileSize"`
	SHA256       string    `json:"sha256,omitempty"`
}

// CacheStats aggregates the contents of the whole cache tree.
type CacheStats struct {
	Languages     int   `json:"languages"`
	Versions      int   `json:"versions"`
	Files         int   `json:"files"`
	LibraryFiles  int   `json:"libraryFiles"`
	MetadataFiles int   `json:"metadataFiles"`
	TotalBytes    int64 `json:"totalBytes"`
	LibraryBytes  int64 `json:"libraryBytes"`
}

// VersionHistoryEntry describes one cached version of a language.
type VersionHistoryEntry struct {
	Version  string           `json:"version"`
	Metadata *VersionMetadata `json:"metadata,omitempty"`
	Active   bool             `json:"active"`
}

// RollbackResult reports the outcome of a rollback request.
type RollbackResult struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	ActiveVersion string `json:"activeVersion,omitempty"`
}

// readMetadata loads a sidecar. A missing file is reported as absent, not
// as an error.
func readMetadata(path string) (VersionMetadata, bool, error) {
	var md VersionMetadata
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return md, false, nil
		}
		return md, false, &FilesystemError{Op: "read", Path: path, Err: err}
	}
	if err := json.Unmarshal(data, &md); err != nil {
		return md, false, fmt.Errorf("parsing %s: %w", path, err)
	}
	return md, true, nil
}

func writeMetadata(dir string, md VersionMetadata) error {
	data, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(dir, MetadataFile), append(data, '\n'), 0o644)
}

// writeFileAtomic writes data next to path and renames it into place so
// readers see either the old or the new content.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return &FilesystemError{Op: "create", Path: path, Err: err}
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return &FilesystemError{Op: "write", Path: tmpPath, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return &FilesystemError{Op: "close", Path: tmpPath, Err: err}
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		os.Remove(tmpPath)
		return &FilesystemError{Op: "chmod", Path: tmpPath, Err: err}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return &FilesystemError{Op: "rename", Path: path, Err: err}
	}
	return nil
}
