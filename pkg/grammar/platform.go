package grammar

import "runtime"

// Platform identifies which native build of a grammar the host can load.
type Platform struct {
	OS   string // "linux", "macos", "windows", ...
	Arch string // "x86_64", "aarch64", ...
	Ext  string // ".so", ".dylib", ".dll"
}

// Name returns the platform identifier used in cache paths and asset
// names, e.g. "linux-x86_64".
func (p Platform) Name() string {
	return p.OS + "-" + p.Arch
}

// CurrentPlatform returns the platform of the running process.
func CurrentPlatform() Platform {
	return platformFor(runtime.GOOS, runtime.GOARCH)
}

// PlatformName returns the identifier of the running platform.
func PlatformName() string {
	return CurrentPlatform().Name()
}

// PlatformLibraryExtension returns the native library suffix of the
// running platform.
func PlatformLibraryExtension() string {
	return CurrentPlatform().Ext
}

func platformFor(goos, goarch string) Platform {
	p := Platform{OS: goos, Arch: goarch}

	switch goos {
	case "darwin":
		p.OS = "macos"
		p.Ext = ".dylib"
	case "windows":
		p.Ext = ".dll"
	default: // linux, freebsd, etc.
		p.Ext = ".so"
	}

	switch goarch {
	case "amd64":
		p.Arch = "x86_64"
	case "arm64":
		p.Arch = "aarch64"
	case "386":
		p.Arch = "x86"
	}

	return p
}
