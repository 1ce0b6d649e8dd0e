//go:build windows

package grammar

import (
	"fmt"
	"syscall"
	"unsafe"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// closeLibrary releases a handle obtained from openLibrary.
func closeLibrary(handle uintptr) error {
	if handle == 0 {
		return nil
	}
	return syscall.FreeLibrary(syscall.Handle(handle))
}

// openLibrary loads a grammar DLL and calls its entry point to obtain the
// tree-sitter language.
func openLibrary(libPath, symbol string) (*tree_sitter.Language, uintptr, error) {
	dll, err := syscall.LoadDLL(libPath)
	if err != nil {
		return nil, 0, fmt.Errorf("LoadDLL %s: %w", libPath, err)
	}

	proc, err := dll.FindProc(symbol)
	if err != nil {
		_ = dll.Release()
		return nil, 0, fmt.Errorf("FindProc %s in %s: %w", symbol, libPath, err)
	}

	ret, _, _ := proc.Call()
	if ret == 0 {
		_ = dll.Release()
		return nil, 0, fmt.Errorf("symbol %s returned NULL", symbol)
	}

	lang := tree_sitter.NewLanguage(unsafe.Pointer(ret)) //nolint:govet // ret is a C pointer, not a Go pointer
	return lang, uintptr(dll.Handle), nil
}
