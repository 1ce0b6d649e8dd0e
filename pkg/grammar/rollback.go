package grammar

import (
	"fmt"
	"slices"
)

// RollbackToVersion makes version the active version of language. Nothing
// is deleted. A version that is not cached yields an unsuccessful result.
func (m *Manager) RollbackToVersion(language, version string) (RollbackResult, error) {
	if err := validateSegment("language", language); err != nil {
		return RollbackResult{}, err
	}
	if err := validateSegment("version", version); err != nil {
		return RollbackResult{}, err
	}

	return m.repoint(language, func(versions []string, current string) (string, string) {
		if !slices.Contains(versions, version) {
			return "", fmt.Sprintf("version %s of %s is not cached", version, language)
		}
		return version, ""
	})
}

// RollbackToPrevious activates the cached version immediately below the
// current active one.
func (m *Manager) RollbackToPrevious(language string) (RollbackResult, error) {
	if err := validateSegment("language", language); err != nil {
		return RollbackResult{}, err
	}

	return m.repoint(language, func(versions []string, current string) (string, string) {
		if len(versions) == 0 {
			return "", fmt.Sprintf("no cached versions of %s", language)
		}
		i := slices.Index(versions, current)
		if i < 0 || i+1 >= len(versions) {
			return "", fmt.Sprintf("no version of %s older than %s", language, current)
		}
		return versions[i+1], ""
	})
}

// repoint selects a new active version under the language write lock.
// pick returns the target, or an empty target and the reason it failed.
func (m *Manager) repoint(language string, pick func(versions []string, current string) (string, string)) (RollbackResult, error) {
	result, changed, err := func() (RollbackResult, bool, error) {
		lock := m.lock(language)
		lock.Lock()
		defer lock.Unlock()

		versions, err := m.listVersions(language)
		if err != nil {
			return RollbackResult{}, false, err
		}
		current, _ := m.activeVersion(language, versions)

		target, reason := pick(versions, current)
		if target == "" {
			return RollbackResult{Success: false, Message: reason, ActiveVersion: current}, false, nil
		}
		if target == current {
			return RollbackResult{
				Success:       true,
				Message:       fmt.Sprintf("%s@%s is already active", language, target),
				ActiveVersion: target,
			}, false, nil
		}
		if err := m.setActive(language, target); err != nil {
			return RollbackResult{}, false, err
		}
		return RollbackResult{
			Success:       true,
			Message:       fmt.Sprintf("rolled back %s from %s to %s", language, current, target),
			ActiveVersion: target,
		}, true, nil
	}()

	if changed {
		m.Invalidate(language)
		m.logger.Print(result.Message)
	}
	return result, err
}
