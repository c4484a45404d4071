// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asar

// Command asar packs, unpacks, and patches ASAR archives.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/woozymasta/asar"
)

// Default input names used when no pathname is given.
const (
	defaultBasename = "app"
	defaultFilename = defaultBasename + ".asar"
	defaultSubstDir = "output"
	headerDumpExt   = "_header.json"
)

type config struct {
	pathname   string
	output     string
	substitute string
	external   string
	backupKeep int
	repack     bool
	unpack     bool
	dump       bool
	noJunk     bool
	integrity  bool
	verbose    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one CLI invocation and returns process exit code.
func run(ctx context.Context, args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("asar", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var cfg config
	fs.BoolVar(&cfg.repack, "r", false, `repack directory; output defaults to "<directory>.asar"`)
	fs.BoolVar(&cfg.unpack, "u", false, "unpack archive; output defaults to archive name without extension")
	fs.StringVar(&cfg.substitute, "s", "", `replace files matching comma separated masks with files from output directory (default "output")`)
	fs.StringVar(&cfg.external, "e", "", "externalize files matching comma separated masks or paths")
	fs.StringVar(&cfg.output, "o", "", "output file or directory")
	fs.BoolVar(&cfg.noJunk, "n", false, "ignore common junk files on repack")
	fs.BoolVar(&cfg.integrity, "i", false, "add file integrity info on repack")
	fs.BoolVar(&cfg.dump, "d", false, "dump raw JSON header (after patching with -e)")
	fs.IntVar(&cfg.backupKeep, "b", 0, "backup generations kept before in-place edits")
	fs.BoolVar(&cfg.verbose, "v", false, "verbose logging")
	fs.Usage = func() {
		_, _ = fmt.Fprintf(stderr, "usage: asar [flags] [pathname]\n\nTool to unpack and repack Electron ASAR files.\n\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}

		return 2
	}
	cfg.pathname = fs.Arg(0)

	modes := 0
	for _, set := range []bool{cfg.repack, cfg.unpack, cfg.substitute != ""} {
		if set {
			modes++
		}
	}
	if modes > 1 {
		_, _ = fmt.Fprintln(stderr, "error: -r, -u and -s are mutually exclusive")
		fs.Usage()
		return 2
	}

	level := slog.LevelInfo
	if cfg.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	var err error
	switch {
	case cfg.repack:
		err = runRepack(ctx, cfg, logger, stdout)
	case cfg.substitute != "":
		err = runSubstitute(cfg, logger, stdout)
	case cfg.external != "":
		err = runExternalize(cfg, logger, stdout)
	case cfg.dump:
		err = runDump(cfg, stdout)
	case cfg.unpack:
		err = runUnpack(ctx, cfg, logger, stdout)
	default:
		fs.Usage()
		return 2
	}

	if err != nil {
		_, _ = fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	return 0
}

func runRepack(ctx context.Context, cfg config, logger *slog.Logger, stdout io.Writer) error {
	dir := cfg.pathname
	if dir == "" {
		dir = defaultBasename
	}

	dst := cfg.output
	if dst == "" {
		dst = filepath.Clean(dir) + ".asar"
	}

	opts := asar.BuildOptions{
		Logger:          logger,
		Integrity:       cfg.integrity,
		ScanUnpackedDir: true,
	}
	if cfg.noJunk {
		opts.Ignore = asar.DefaultIgnorePatterns
	}

	res, err := asar.PackDir(ctx, dir, dst, opts)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(stdout, "packed %d files (%d external) into %s\n", res.Files, len(res.UnpackedPaths), dst)
	return nil
}

func runUnpack(ctx context.Context, cfg config, logger *slog.Logger, stdout io.Writer) error {
	archivePath := archiveName(cfg.pathname)
	dst := cfg.output
	if dst == "" {
		dst = strings.TrimSuffix(archivePath, filepath.Ext(archivePath))
	}

	r, err := asar.Open(archivePath)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	res, err := r.Extract(ctx, dst, asar.ExtractOptions{Logger: logger})
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(stdout, "extracted %d files to %s (%d skipped)\n", res.Files, dst, len(res.Skipped))
	return nil
}

func runSubstitute(cfg config, logger *slog.Logger, stdout io.Writer) error {
	dir := cfg.output
	if dir == "" {
		dir = defaultSubstDir
	}

	ed, err := asar.OpenEditor(archiveName(cfg.pathname), asar.EditOptions{Logger: logger, BackupKeep: cfg.backupKeep})
	if err != nil {
		return err
	}
	defer func() { _ = ed.Close() }()

	res, err := ed.ReplaceFromDir(splitPatterns(cfg.substitute), dir)
	if err != nil {
		return err
	}

	for _, failed := range res.Failed {
		_, _ = fmt.Fprintf(stdout, "failed: %v\n", failed)
	}
	_, _ = fmt.Fprintf(stdout, "replaced %d files\n", res.Count())
	return nil
}

func runExternalize(cfg config, logger *slog.Logger, stdout io.Writer) error {
	archivePath := archiveName(cfg.pathname)
	ed, err := asar.OpenEditor(archivePath, asar.EditOptions{Logger: logger, BackupKeep: cfg.backupKeep})
	if err != nil {
		return err
	}
	defer func() { _ = ed.Close() }()

	res, err := ed.Externalize(splitPatterns(cfg.external), asar.ExternalizeOptions{})
	if err != nil {
		return err
	}

	for _, failed := range res.Failed {
		_, _ = fmt.Fprintf(stdout, "failed: %v\n", failed)
	}
	_, _ = fmt.Fprintf(stdout, "externalized %d files\n", res.Count())

	if !cfg.dump {
		return nil
	}

	return writeHeaderDump(ed.Reader().RawHeader(), dumpPath(cfg, archivePath), stdout)
}

func runDump(cfg config, stdout io.Writer) error {
	archivePath := archiveName(cfg.pathname)
	raw, err := asar.ReadRawHeader(archivePath)
	if err != nil {
		return err
	}

	return writeHeaderDump(raw, dumpPath(cfg, archivePath), stdout)
}

func writeHeaderDump(raw []byte, path string, stdout io.Writer) error {
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write header dump: %w", err)
	}

	_, _ = fmt.Fprintf(stdout, "JSON header written to %s\n", path)
	return nil
}

func dumpPath(cfg config, archivePath string) string {
	if cfg.output != "" {
		return cfg.output
	}

	return archivePath + headerDumpExt
}

func archiveName(pathname string) string {
	if pathname == "" {
		return defaultFilename
	}

	return pathname
}

// splitPatterns splits comma separated masks; glob masks get forward slashes.
func splitPatterns(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.HasPrefix(part, asar.RegexpPatternPrefix) {
			part = strings.ReplaceAll(part, `\`, "/")
		}

		out = append(out, part)
	}

	return out
}
