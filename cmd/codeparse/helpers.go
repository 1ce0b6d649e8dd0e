package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jmylchreest/codeparse/pkg/grammar"
)

// fatal prints an error message and exits with code 1.
func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// parseFlag extracts a flag value from args (e.g., "--key=value").
func parseFlag(args []string, prefix string) string {
	for _, arg := range args {
		if strings.HasPrefix(arg, prefix) {
			return strings.TrimPrefix(arg, prefix)
		}
	}
	return ""
}

// parseIntFlag is parseFlag for integers; absent means fallback.
func parseIntFlag(args []string, prefix string, fallback int) (int, error) {
	raw := parseFlag(args, prefix)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s expects a number, got %q", strings.TrimSuffix(prefix, "="), raw)
	}
	return n, nil
}

// hasFlag checks if a flag is present in args.
func hasFlag(args []string, flag string) bool {
	for _, arg := range args {
		if arg == flag {
			return true
		}
	}
	return false
}

// positional returns the arguments that are not flags.
func positional(args []string) []string {
	var out []string
	for _, arg := range args {
		if !strings.HasPrefix(arg, "--") {
			out = append(out, arg)
		}
	}
	return out
}

// splitVersion splits "ruby@0.23.1" into language and version.
func splitVersion(arg string) (string, string) {
	lang, ver, _ := strings.Cut(arg, "@")
	return strings.ToLower(strings.TrimSpace(lang)), strings.TrimSpace(ver)
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// humanBytes formats a byte count for tables.
func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// progressLines returns a ProgressFunc that writes one line to w each time a
// download of name passes another quarter of its size, or another MiB when
// the size is unknown. Each line is written whole so that concurrent
// downloads do not interleave mid-line.
func progressLines(w io.Writer, name string) grammar.ProgressFunc {
	last := int64(-1)
	return func(p grammar.Progress) {
		var step int64
		if p.Total > 0 {
			step = p.Downloaded * 4 / p.Total
		} else {
			step = p.Downloaded >> 20
		}
		if step <= last {
			return
		}
		last = step
		fmt.Fprintln(w, formatProgress(name, p))
	}
}

// formatProgress renders one progress report, e.g.
// "ruby: 512.0 KiB / 1.0 MiB (50%)".
func formatProgress(name string, p grammar.Progress) string {
	if p.Total <= 0 {
		return fmt.Sprintf("%s: %s", name, humanBytes(p.Downloaded))
	}
	return fmt.Sprintf("%s: %s / %s (%d%%)", name, humanBytes(p.Downloaded), humanBytes(p.Total), p.Downloaded*100/p.Total)
}
