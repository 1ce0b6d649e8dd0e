//go:build !windows

package grammar

import (
	"fmt"
	"unsafe"

	"github.com/ebitengine/purego"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// closeLibrary releases a handle obtained from openLibrary.
func closeLibrary(handle uintptr) error {
	if handle == 0 {
		return nil
	}
	return purego.Dlclose(handle)
}

// openLibrary dlopens a grammar shared library and calls its entry point
// to obtain the tree-sitter language.
func openLibrary(libPath, symbol string) (lang *tree_sitter.Language, handle uintptr, err error) {
	handle, err = purego.Dlopen(libPath, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return nil, 0, fmt.Errorf("dlopen %s: %w", libPath, err)
	}

	// RegisterLibFunc panics when the symbol is missing.
	defer func() {
		if r := recover(); r != nil {
			_ = purego.Dlclose(handle)
			lang, handle = nil, 0
			err = fmt.Errorf("symbol %s not found in %s: %v", symbol, libPath, r)
		}
	}()

	var langFn func() unsafe.Pointer
	purego.RegisterLibFunc(&langFn, handle, symbol)

	ptr := langFn()
	if ptr == nil {
		_ = purego.Dlclose(handle)
		return nil, 0, fmt.Errorf("symbol %s returned NULL", symbol)
	}
	return tree_sitter.NewLanguage(ptr), handle, nil
}
