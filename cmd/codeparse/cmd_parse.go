package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/jmylchreest/codeparse/pkg/grammar"
	"github.com/jmylchreest/codeparse/pkg/parser"
)

// cmdParse splits each file argument into chunks. Files no parser claims,
// or whose grammar is missing, are reported and skipped.
func cmdParse(args []string) error {
	files := positional(args)
	if len(files) == 0 {
		fmt.Println(`Usage: codeparse parse <file>... [--json] [--auto-download] [--verbose]

Splits files into structural chunks: top-level declarations for source
code, heading sections for markdown. Grammar-backed languages need a cached
grammar; --auto-download fetches a missing one on first use.`)
		return nil
	}

	opts := []grammar.Option{quietLogger(args)}
	if hasFlag(args, "--auto-download") {
		opts = append(opts, grammar.WithAutoDownload(true))
	}
	_, m, err := openCache(args, opts...)
	if err != nil {
		return err
	}
	defer m.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	reg := parser.NewDefaultRegistry(m)
	var all []parser.Chunk
	var skipped []string
	for _, path := range files {
		p, ok := reg.FindParser(path)
		if !ok {
			fmt.Fprintf(os.Stderr, "%s: no parser for this file type\n", path)
			skipped = append(skipped, path)
			continue
		}
		chunks, err := p.Parse(ctx, path)
		if err != nil {
			var missing *parser.GrammarUnavailableError
			if errors.As(err, &missing) {
				fmt.Fprintf(os.Stderr, "%s: %v (run: codeparse grammar install %s)\n", path, err, missing.Language)
				skipped = append(skipped, path)
				continue
			}
			return fmt.Errorf("%s: %w", path, err)
		}
		all = append(all, chunks...)
	}

	if hasFlag(args, "--json") {
		if all == nil {
			all = []parser.Chunk{}
		}
		if err := printJSON(all); err != nil {
			return err
		}
	} else {
		for _, c := range all {
			label := c.Kind
			if c.Name != "" {
				label += " " + c.Name
			}
			fmt.Printf("%s:%d-%d  [%s] %s\n", c.FilePath, c.StartLine, c.EndLine, c.Language, label)
		}
	}

	if len(skipped) == len(files) {
		return fmt.Errorf("nothing parsed: %s", strings.Join(skipped, ", "))
	}
	return nil
}
