// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asar

package asar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Output permissions for extracted items.
const (
	extractDirMode        os.FileMode = 0o755
	extractFileMode       os.FileMode = 0o644
	extractExecutableMode os.FileMode = 0o755
)

// extractSession carries per-call state of one Extract run.
type extractSession struct {
	r           *Reader
	log         *slog.Logger
	result      *ExtractResult
	onEntryDone func(entry EntryInfo, written int64, outputPath string)
	dstRoot     string
	unpackedDir string
	prefix      string
	buf         []byte
	chunkSize   int
}

// Extract recreates the archive tree under dstDir. Inline entries are copied
// from the content region, external entries from the sibling ".unpacked"
// directory; missing external files are skipped with a warning.
// Extraction is sequential and idempotent: existing files are overwritten.
func (r *Reader) Extract(ctx context.Context, dstDir string, opts ExtractOptions) (*ExtractResult, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}

	if ctx == nil {
		ctx = context.Background()
	}

	opts.applyDefaults()

	dstRootAbs, err := filepath.Abs(dstDir)
	if err != nil {
		return nil, fmt.Errorf("resolve output dir: %w", err)
	}

	if err := os.MkdirAll(dstRootAbs, extractDirMode); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	unpackedDir := opts.UnpackedDir
	if unpackedDir == "" {
		unpackedDir = r.UnpackedDir()
	}

	s := &extractSession{
		r:           r,
		log:         opts.Logger,
		result:      &ExtractResult{},
		onEntryDone: opts.OnEntryDone,
		dstRoot:     dstRootAbs,
		unpackedDir: unpackedDir,
		prefix:      NormalizePath(opts.Prefix),
		chunkSize:   opts.ChunkSize,
	}

	if err := s.extractDirectory(ctx, r.Files(), ""); err != nil {
		return s.result, err
	}

	s.log.Info("extract completed",
		slog.String("destination", dstRootAbs),
		slog.Int("files", s.result.Files),
		slog.Int("skipped", len(s.result.Skipped)),
	)

	return s.result, nil
}

// extractDirectory recreates one directory level and recurses into children.
func (s *extractSession) extractDirectory(ctx context.Context, dir *Directory, relDir string) error {
	for name, e := range dir.All() {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := validateEntryName(name); err != nil {
			return fmt.Errorf("entry %q in %q: %w", name, relDir, err)
		}

		p := joinArchivePath(relDir, name)
		inPrefix := hasPathPrefix(p, s.prefix)

		if e.IsDir() {
			if !inPrefix && !isPrefixAncestor(p, s.prefix) {
				continue
			}

			if err := os.MkdirAll(s.outputPath(p), extractDirMode); err != nil {
				return fmt.Errorf("create output directory %s: %w", p, err)
			}

			if inPrefix {
				s.result.Directories++
			}

			if err := s.extractDirectory(ctx, e.Files, p); err != nil {
				return err
			}

			continue
		}

		if !inPrefix {
			continue
		}

		if err := s.extractFile(p, e); err != nil {
			return err
		}
	}

	return nil
}

// extractFile writes one file entry to destination.
func (s *extractSession) extractFile(p string, e *Entry) error {
	info := entryInfoOf(p, e)
	outPath := s.outputPath(p)

	var (
		written int64
		err     error
	)
	if e.IsInline() {
		written, err = s.extractInline(outPath, info, e)
	} else {
		var copied bool
		written, copied, err = s.copyExternal(outPath, info, e)
		if err == nil && !copied {
			return nil
		}
	}
	if err != nil {
		return err
	}

	s.result.Files++
	s.result.Bytes += written
	s.log.Debug("extracted", slog.String("path", p), slog.Int64("bytes", written))

	if s.onEntryDone != nil {
		s.onEntryDone(info, written, outPath)
	}

	return nil
}

// extractInline copies entry bytes from content region.
func (s *extractSession) extractInline(outPath string, info EntryInfo, e *Entry) (int64, error) {
	sr, err := s.r.entrySection(&info)
	if err != nil {
		return 0, err
	}

	file, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fileModeOf(e))
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", info.Path, err)
	}

	written, copyErr := copyExtractData(file, sr, s.buffer(extractChunkSize(e, s.chunkSize)))
	closeErr := file.Close()
	if copyErr != nil {
		return written, fmt.Errorf("write %s: %w", info.Path, copyErr)
	}

	if closeErr != nil {
		return written, fmt.Errorf("close %s: %w", info.Path, closeErr)
	}

	if written != info.Size {
		return written, fmt.Errorf("write %s: short payload (%d/%d): %w", info.Path, written, info.Size, io.ErrUnexpectedEOF)
	}

	return written, nil
}

// copyExternal copies entry from the unpacked sibling directory.
// It reports copied=false when the source is missing.
func (s *extractSession) copyExternal(outPath string, info EntryInfo, e *Entry) (int64, bool, error) {
	if s.unpackedDir == "" {
		s.skip(info.Path, "no unpacked directory for reader")
		return 0, false, nil
	}

	if st, err := os.Stat(s.unpackedDir); err != nil || !st.IsDir() {
		s.skip(info.Path, "unpacked directory missing")
		return 0, false, nil
	}

	src, err := os.Open(filepath.Join(s.unpackedDir, filepath.FromSlash(info.Path)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.skip(info.Path, "unpacked file missing")
			return 0, false, nil
		}

		return 0, false, fmt.Errorf("open unpacked %s: %w", info.Path, err)
	}
	defer func() { _ = src.Close() }()

	file, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fileModeOf(e))
	if err != nil {
		return 0, false, fmt.Errorf("open %s: %w", info.Path, err)
	}

	written, copyErr := copyExtractData(file, src, s.buffer(s.chunkSize))
	closeErr := file.Close()
	if copyErr != nil {
		return written, false, fmt.Errorf("copy unpacked %s: %w", info.Path, copyErr)
	}

	if closeErr != nil {
		return written, false, fmt.Errorf("close %s: %w", info.Path, closeErr)
	}

	return written, true, nil
}

// skip records a non-fatal missing external entry.
func (s *extractSession) skip(p string, reason string) {
	s.result.Skipped = append(s.result.Skipped, p)
	s.log.Warn("skipping unpacked file",
		slog.String("path", p),
		slog.String("reason", reason),
		slog.String("unpacked_dir", s.unpackedDir),
	)
}

// outputPath maps archive path to absolute destination path.
func (s *extractSession) outputPath(p string) string {
	return filepath.Join(s.dstRoot, filepath.FromSlash(p))
}

// buffer returns reusable copy buffer of exactly n bytes, growing it when needed.
func (s *extractSession) buffer(n int) []byte {
	if cap(s.buf) < n {
		s.buf = make([]byte, n)
	}

	return s.buf[:n]
}

// extractChunkSize selects copy chunk: integrity block size clamped to MaxBlockSize, else fallback.
func extractChunkSize(e *Entry, fallback int) int {
	if e.Integrity == nil || e.Integrity.BlockSize <= 0 {
		return fallback
	}

	return int(min(e.Integrity.BlockSize, MaxBlockSize))
}

// fileModeOf returns output permissions for entry.
func fileModeOf(e *Entry) os.FileMode {
	if e.Executable {
		return extractExecutableMode
	}

	return extractFileMode
}

// copyExtractData copies one entry stream to output file using fixed buffer.
func copyExtractData(dst *os.File, src io.Reader, buf []byte) (int64, error) {
	if len(buf) == 0 {
		return 0, io.ErrShortBuffer
	}

	var total int64
	for {
		readN, readErr := src.Read(buf)
		if readN > 0 {
			writeN, writeErr := dst.Write(buf[:readN])
			total += int64(writeN)

			if writeErr != nil {
				return total, writeErr
			}

			if writeN != readN {
				return total, io.ErrShortWrite
			}
		}

		if readErr == nil {
			continue
		}

		if readErr == io.EOF {
			return total, nil
		}

		return total, readErr
	}
}

// validateEntryName rejects names that could escape the destination root.
func validateEntryName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return ErrInvalidExtractPath
	case strings.ContainsAny(name, "/\\\x00"):
		return ErrInvalidExtractPath
	case hasWindowsAbsDrivePrefix(name + "/"):
		return ErrInvalidExtractPath
	}

	return nil
}

// hasWindowsAbsDrivePrefix reports whether path starts with drive-root prefix like C:/.
func hasWindowsAbsDrivePrefix(path string) bool {
	if len(path) < 3 {
		return false
	}

	return isASCIIAlpha(path[0]) && path[1] == ':' && path[2] == '/'
}

// isASCIIAlpha reports whether byte is ASCII latin letter.
func isASCIIAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
