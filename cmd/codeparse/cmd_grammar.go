package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/jmylchreest/codeparse/pkg/config"
	"github.com/jmylchreest/codeparse/pkg/grammar"
	"github.com/jmylchreest/codeparse/pkg/ignore"
	"github.com/jmylchreest/codeparse/pkg/parser"
)

// cmdGrammarDispatcher routes grammar subcommands.
func cmdGrammarDispatcher(args []string) error {
	if len(args) < 1 {
		printGrammarUsage()
		return nil
	}

	subcmd := args[0]
	subargs := args[1:]

	switch subcmd {
	case "list", "ls":
		return cmdGrammarList(subargs)
	case "install":
		return cmdGrammarInstall(subargs)
	case "versions":
		return cmdGrammarVersions(subargs)
	case "info":
		return cmdGrammarInfo(subargs)
	case "rollback":
		return cmdGrammarRollback(subargs)
	case "cleanup":
		return cmdGrammarCleanup(subargs)
	case "stats":
		return cmdGrammarStats(subargs)
	case "scan":
		return cmdGrammarScan(subargs)
	case "watch":
		return cmdGrammarWatch(subargs)
	case "help", "-h", "--help":
		printGrammarUsage()
		return nil
	default:
		return fmt.Errorf("unknown grammar subcommand: %s", subcmd)
	}
}

func printGrammarUsage() {
	fmt.Println(`codeparse grammar - Manage the tree-sitter grammar cache

Usage:
  codeparse grammar <subcommand> [arguments]

Subcommands:
  list                        List compiled-in and downloadable grammars with their active versions
  install <lang[@ver]>...     Download grammars (--all for every downloadable grammar)
  versions <lang>             Show cached versions, newest first
  info <lang> [version]       Show metadata of a cached version (--verify to check the binary)
  rollback <lang> [version]   Activate the given version, or the one before the active version
  cleanup [lang]              Remove old versions (--keep=N, default grammar.max_versions)
  stats                       Summarise the cache
  scan [path]                 Detect project languages (--install downloads what is missing)
  watch                       Log cache changes made by other processes until interrupted

Common options:
  --json           Output as JSON (list, versions, info, stats, scan)

Examples:
  codeparse grammar install ruby kotlin
  codeparse grammar install ruby@0.22.0
  codeparse grammar info ruby --verify
  codeparse grammar cleanup ruby --keep=1`)
}

// openCache loads the configuration and opens the grammar cache it names.
func openCache(args []string, opts ...grammar.Option) (*config.Config, *grammar.Manager, error) {
	cfg, err := loadConfig(args)
	if err != nil {
		return nil, nil, err
	}
	m, err := cfg.GrammarManager(opts...)
	if err != nil {
		return nil, nil, err
	}
	return cfg, m, nil
}

// quietLogger keeps manager chatter out of command output unless asked for.
func quietLogger(args []string) grammar.Option {
	if hasFlag(args, "--verbose") {
		return grammar.WithLogger(log.New(os.Stderr, "[grammar] ", 0))
	}
	return grammar.WithLogger(log.New(io.Discard, "", 0))
}

func lookupSpec(lang string) (*grammar.GrammarSpec, error) {
	spec, ok := grammar.Lookup(lang)
	if !ok {
		if parser.IsBuiltin(lang) {
			return nil, fmt.Errorf("%s is compiled in and needs no download", lang)
		}
		return nil, fmt.Errorf("unknown grammar: %s (see 'codeparse grammar list')", lang)
	}
	return spec, nil
}

func newTable(header ...any) *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header(header...)
	return table
}

type grammarListEntry struct {
	Language string `json:"language"`
	Status   string `json:"status"`
	Version  string `json:"version,omitempty"`
	Default  string `json:"default,omitempty"`
}

// cmdGrammarList shows grammar status.
func cmdGrammarList(args []string) error {
	_, m, err := openCache(args, quietLogger(args))
	if err != nil {
		return err
	}

	var entries []grammarListEntry
	for _, lang := range parser.BuiltinLanguages() {
		entries = append(entries, grammarListEntry{Language: lang, Status: parser.SourceBuiltin})
	}
	for _, spec := range grammar.Specs() {
		e := grammarListEntry{Language: spec.Language, Status: parser.SourceAvailable, Default: m.ResolveVersion(spec)}
		v, ok, err := m.ActiveVersion(spec.Language)
		if err != nil {
			return err
		}
		if ok {
			e.Status = parser.SourceInstalled
			e.Version = v
		}
		entries = append(entries, e)
	}

	if hasFlag(args, "--json") {
		return printJSON(entries)
	}

	table := newTable("GRAMMAR", "STATUS", "ACTIVE", "DEFAULT")
	for _, e := range entries {
		if err := table.Append(e.Language, e.Status, dash(e.Version), dash(e.Default)); err != nil {
			return err
		}
	}
	return table.Render()
}

// cmdGrammarInstall downloads grammar shared libraries.
func cmdGrammarInstall(args []string) error {
	_, m, err := openCache(args, quietLogger(args))
	if err != nil {
		return err
	}

	var targets []string
	if hasFlag(args, "--all") {
		targets = grammar.Languages()
	} else {
		targets = positional(args)
	}
	if len(targets) == 0 {
		fmt.Println("No grammars to install. Specify language names or use --all.")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	type job struct {
		name string
		res  <-chan grammar.DownloadResult
	}
	var jobs []job
	var failed []string
	for _, target := range targets {
		lang, ver := splitVersion(target)
		spec, err := lookupSpec(lang)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			failed = append(failed, lang)
			continue
		}
		jobs = append(jobs, job{name: lang, res: m.DownloadGrammarAsync(ctx, spec, ver, progressLines(os.Stderr, lang))})
	}

	for _, j := range jobs {
		r := <-j.res
		if r.Err != nil {
			fmt.Printf("%s... FAILED: %v\n", j.name, r.Err)
			failed = append(failed, j.name)
			continue
		}
		fmt.Printf("%s %s... done (%s)\n", j.name, r.Metadata.Version, humanBytes(r.Metadata.FileSize))
	}

	if len(failed) > 0 {
		return fmt.Errorf("failed to install: %s", strings.Join(failed, ", "))
	}
	return nil
}

// cmdGrammarVersions lists the cached versions of one language.
func cmdGrammarVersions(args []string) error {
	names := positional(args)
	if len(names) != 1 {
		return fmt.Errorf("usage: codeparse grammar versions <language>")
	}
	_, m, err := openCache(args, quietLogger(args))
	if err != nil {
		return err
	}

	history, err := m.VersionHistory(names[0])
	if err != nil {
		return err
	}
	if hasFlag(args, "--json") {
		return printJSON(history)
	}
	if len(history) == 0 {
		fmt.Printf("No cached versions of %s.\n", names[0])
		return nil
	}

	table := newTable("VERSION", "ACTIVE", "SIZE", "DOWNLOADED")
	for _, h := range history {
		active, size, when := "", "-", "-"
		if h.Active {
			active = "*"
		}
		if h.Metadata != nil {
			size = humanBytes(h.Metadata.FileSize)
			when = h.Metadata.DownloadedAt.Local().Format(time.DateTime)
		}
		if err := table.Append(h.Version, active, size, when); err != nil {
			return err
		}
	}
	return table.Render()
}

// cmdGrammarInfo prints the metadata of one cached version, the active one
// when no version is given.
func cmdGrammarInfo(args []string) error {
	names := positional(args)
	if len(names) < 1 || len(names) > 2 {
		return fmt.Errorf("usage: codeparse grammar info <language> [version]")
	}
	_, m, err := openCache(args, quietLogger(args))
	if err != nil {
		return err
	}

	lang := names[0]
	var ver string
	if len(names) == 2 {
		ver = names[1]
	} else {
		active, ok, err := m.ActiveVersion(lang)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no cached versions of %s", lang)
		}
		ver = active
	}

	md, ok, err := m.VersionInfo(lang, ver)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no metadata for %s %s", lang, ver)
	}

	verified := ""
	if hasFlag(args, "--verify") {
		if err := m.VerifyVersion(lang, ver); err != nil {
			return err
		}
		verified = "ok"
	}

	if hasFlag(args, "--json") {
		return printJSON(struct {
			grammar.VersionMetadata
			Verified string `json:"verified,omitempty"`
		}{md, verified})
	}

	fmt.Printf("Language:    %s\n", md.Language)
	fmt.Printf("Version:     %s\n", md.Version)
	fmt.Printf("Repository:  %s\n", md.Repository)
	fmt.Printf("Platform:    %s\n", md.Platform)
	fmt.Printf("Size:        %s (%d bytes)\n", humanBytes(md.FileSize), md.FileSize)
	fmt.Printf("SHA-256:     %s\n", dash(md.SHA256))
	fmt.Printf("Downloaded:  %s\n", md.DownloadedAt.Local().Format(time.RFC1123))
	if verified != "" {
		fmt.Printf("Verified:    %s\n", verified)
	}
	return nil
}

// cmdGrammarRollback repoints a language's active version.
func cmdGrammarRollback(args []string) error {
	names := positional(args)
	if len(names) < 1 || len(names) > 2 {
		return fmt.Errorf("usage: codeparse grammar rollback <language> [version]")
	}
	_, m, err := openCache(args, quietLogger(args))
	if err != nil {
		return err
	}

	var res grammar.RollbackResult
	if len(names) == 2 {
		res, err = m.RollbackToVersion(names[0], names[1])
	} else {
		res, err = m.RollbackToPrevious(names[0])
	}
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("rollback failed: %s", res.Message)
	}
	fmt.Println(res.Message)
	return nil
}

// cmdGrammarCleanup removes old versions of one or every language.
func cmdGrammarCleanup(args []string) error {
	cfg, m, err := openCache(args, quietLogger(args))
	if err != nil {
		return err
	}
	keep, err := parseIntFlag(args, "--keep=", cfg.Grammar.MaxVersions)
	if err != nil {
		return err
	}

	var removed int
	if names := positional(args); len(names) > 0 {
		for _, lang := range names {
			n, err := m.CleanupOldVersions(lang, keep)
			if err != nil {
				return err
			}
			removed += n
		}
	} else {
		removed, err = m.CleanupAllOldVersions(keep)
		if err != nil {
			return err
		}
	}

	if removed == 0 {
		fmt.Println("Nothing to clean up.")
		return nil
	}
	fmt.Printf("Removed %d old version(s), keeping at most %d per language.\n", removed, keep)
	return nil
}

// cmdGrammarStats summarises the cache tree.
func cmdGrammarStats(args []string) error {
	_, m, err := openCache(args, quietLogger(args))
	if err != nil {
		return err
	}
	stats, err := m.CacheStats()
	if err != nil {
		return err
	}
	if hasFlag(args, "--json") {
		return printJSON(stats)
	}

	fmt.Printf("Cache:       %s\n", m.Root())
	fmt.Printf("Platform:    %s\n", m.Platform().Name())
	fmt.Printf("Languages:   %d\n", stats.Languages)
	fmt.Printf("Versions:    %d\n", stats.Versions)
	fmt.Printf("Libraries:   %d (%s)\n", stats.LibraryFiles, humanBytes(stats.LibraryBytes))
	fmt.Printf("Metadata:    %d\n", stats.MetadataFiles)
	fmt.Printf("Total:       %d files, %s\n", stats.Files, humanBytes(stats.TotalBytes))
	return nil
}

// cmdGrammarScan scans the project for languages and reports grammar status.
func cmdGrammarScan(args []string) error {
	root := projectRoot()
	if names := positional(args); len(names) > 0 {
		root = names[0]
	}
	_, m, err := openCache(args, quietLogger(args))
	if err != nil {
		return err
	}

	matcher, err := ignore.New(root)
	if err != nil {
		matcher = ignore.NewFromDefaults()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	result, err := parser.ScanProject(ctx, root, parser.NewDefaultRegistry(m), m, matcher)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if hasFlag(args, "--install") {
		if err := installNeeded(ctx, m, result.Needed()); err != nil {
			return err
		}
		if result, err = parser.ScanProject(ctx, root, parser.NewDefaultRegistry(m), m, matcher); err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}
	}

	if hasFlag(args, "--json") {
		return printJSON(result)
	}
	if len(result.Languages) == 0 {
		fmt.Println("No recognised source files found.")
		return nil
	}

	table := newTable("LANGUAGE", "FILES", "STATUS", "ACTION")
	for _, s := range result.Languages {
		action := "-"
		switch s.Source {
		case parser.SourceInstalled:
			action = s.Version
		case parser.SourceAvailable:
			action = "codeparse grammar install " + s.Language
		}
		if err := table.Append(s.Language, fmt.Sprint(s.Files), s.Source, action); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	if needed := result.Needed(); len(needed) > 0 {
		fmt.Printf("\n%d language(s) can be installed. Run: codeparse grammar scan --install\n", len(needed))
	}
	return nil
}

func installNeeded(ctx context.Context, m *grammar.Manager, needed []string) error {
	var failed []string
	for _, lang := range needed {
		spec, err := lookupSpec(lang)
		if err != nil {
			return err
		}
		fmt.Printf("Installing %s...\n", lang)
		r := <-m.DownloadGrammarAsync(ctx, spec, "", progressLines(os.Stderr, lang))
		if r.Err != nil {
			fmt.Printf("%s... FAILED: %v\n", lang, r.Err)
			failed = append(failed, lang)
			continue
		}
		fmt.Printf("%s %s... done\n", lang, r.Metadata.Version)
	}
	if len(failed) > 0 {
		return fmt.Errorf("failed to install: %s", strings.Join(failed, ", "))
	}
	return nil
}

// cmdGrammarWatch follows cache changes until interrupted.
func cmdGrammarWatch(args []string) error {
	_, m, err := openCache(args, grammar.WithLogger(log.New(os.Stderr, "[grammar] ", log.Ltime)))
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return m.Watch(ctx)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
