// Package main provides the CLI for codeparse.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmylchreest/codeparse/internal/version"
	"github.com/jmylchreest/codeparse/pkg/config"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	if err := runCommand(cmd, args); err != nil {
		fatal("%v", err)
	}
}

func runCommand(cmd string, args []string) error {
	switch cmd {
	case "grammar":
		return cmdGrammarDispatcher(args)
	case "parse":
		return cmdParse(args)
	case "help", "-h", "--help":
		printUsage()
		return nil
	case "version", "-v", "--version":
		return cmdVersion(args)
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func cmdVersion(args []string) error {
	if hasFlag(args, "--json") {
		fmt.Println(version.JSON())
		return nil
	}
	fmt.Println(version.String())
	return nil
}

// loadConfig reads --config=PATH when given, otherwise the project's
// .codeparse/config.json if there is one.
func loadConfig(args []string) (*config.Config, error) {
	path := parseFlag(args, "--config=")
	if path == "" && os.Getenv(config.EnvConfigFile) == "" {
		candidate := filepath.Join(projectRoot(), config.DefaultFile)
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
		}
	}
	return config.Load(path)
}

func printUsage() {
	fmt.Printf(`codeparse %s - structural source parsing with on-demand tree-sitter grammars

Usage:
  codeparse <command> [arguments]

Commands:
  grammar    Manage the grammar cache (list, install, versions, info, rollback, cleanup, stats, scan, watch)
  parse      Split source files into chunks
  version    Show version information

Global options:
  --config=PATH   Config file (default: .codeparse/config.json in the project root)

Environment:
  CODEPARSE_CONFIG                  Config file path
  CODEPARSE_GRAMMAR_CACHE           Grammar cache root when grammar.cache_dir is unset
                                    (default: ~/.codeparse/grammars)
  CODEPARSE_GRAMMAR_<LANG>_VERSION  Version to download when grammar.versions.<lang> is unset
  CODEPARSE_GRAMMAR_BASE_URL        Download URL template
  CODEPARSE_GRAMMAR_MAX_VERSIONS    Versions kept per language by cleanup (default: 3)
  CODEPARSE_GRAMMAR_WORKERS         Concurrent downloads (default: 4)
  CODEPARSE_GRAMMAR_AUTO_DOWNLOAD   Download missing grammars on first use (default: false)
  CODEPARSE_GRAMMAR_VERIFY_ON_LOAD  Check binaries against their metadata before loading (default: true)

Examples:
  codeparse grammar scan                       # Which grammars does this project need?
  codeparse grammar scan --install             # ...and download them
  codeparse grammar install ruby lua@0.4.0
  codeparse grammar versions ruby
  codeparse grammar rollback ruby              # Back to the previous cached version
  codeparse grammar rollback ruby 0.22.0
  codeparse grammar cleanup --keep=2
  codeparse parse main.go README.md --json
`, version.String())
}

// projectRoot is the nearest directory above the working directory that
// holds a .codeparse or .git entry, or the working directory itself.
func projectRoot() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	if dir, ok := enclosingDir(cwd, ".codeparse", ".git"); ok {
		return dir
	}
	return cwd
}

// enclosingDir walks from start towards the filesystem root and returns the
// first directory containing any of markers.
func enclosingDir(start string, markers ...string) (string, bool) {
	for dir := filepath.Clean(start); ; {
		for _, marker := range markers {
			if _, err := os.Lstat(filepath.Join(dir, marker)); err == nil {
				return dir, true
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}
