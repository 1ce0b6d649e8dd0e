package grammar

import "fmt"

// ConfigurationError is returned when the cache root cannot be resolved or
// created. Only operations that need to write to the cache fail with it.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("grammar cache configuration: %s: %v", e.Reason, e.Err)
	}
	return "grammar cache configuration: " + e.Reason
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// DownloadFailedError is returned when a grammar download, its verification
// or its publication fails. Previously cached versions are unaffected.
type DownloadFailedError struct {
	Language string
	Version  string
	Err      error
}

func (e *DownloadFailedError) Error() string {
	return fmt.Sprintf("failed to download grammar %s@%s: %v", e.Language, e.Version, e.Err)
}

func (e *DownloadFailedError) Unwrap() error {
	return e.Err
}

// ValidationError reports an invalid argument passed by the caller.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// FilesystemError wraps a failure to read, write or delete a cache path.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error {
	return e.Err
}

// IntegrityError is returned when a cached binary no longer matches the
// size or digest recorded in its metadata sidecar.
type IntegrityError struct {
	Path     string
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed for %s: expected %s, got %s", e.Path, e.Expected, e.Actual)
}

// GrammarNotFoundError is returned by native loaders when no usable
// version of a language is cached. Callers treat it as "no grammar for
// this language", never as fatal.
type GrammarNotFoundError struct {
	Language string
	Version  string
}

func (e *GrammarNotFoundError) Error() string {
	if e.Version != "" {
		return fmt.Sprintf("grammar %s@%s not found", e.Language, e.Version)
	}
	return fmt.Sprintf("grammar %q not found", e.Language)
}
