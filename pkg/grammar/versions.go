package grammar

import (
	"sort"

	"github.com/Masterminds/semver/v3"
)

// compareVersions orders two version strings by semantic version.
// Strings that are not valid semver sort below every valid one and are
// compared lexically among themselves.
func compareVersions(a, b string) int {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)

	switch {
	case errA == nil && errB == nil:
		if c := va.Compare(vb); c != 0 {
			return c
		}
		// "v1.0.0" and "1.0.0" are equal in semver; keep the order stable.
		return compareStrings(a, b)
	case errA == nil:
		return 1
	case errB == nil:
		return -1
	default:
		return compareStrings(a, b)
	}
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// sortVersionsDesc sorts versions newest first, in place.
func sortVersionsDesc(versions []string) {
	sort.SliceStable(versions, func(i, j int) bool {
		return compareVersions(versions[i], versions[j]) > 0
	})
}
