// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asar

package asar

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Replace overwrites stored bytes of one inline entry with contents of newContentPath.
// Text entries may shrink and are padded with PadByte; other entries must match exactly.
// Offset and size never change. Integrity, when present, is refreshed in the header.
// The refreshed header is written before the payload and restored if the payload
// write fails.
func (e *Editor) Replace(relPath string, newContentPath string) error {
	if err := e.r.checkOpen(); err != nil {
		return err
	}

	p, err := normalizeArchiveEntryPath(relPath)
	if err != nil {
		return err
	}

	entry, ok := e.r.Files().Lookup(p)
	if !ok || entry.IsDir() {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, relPath)
	}

	if !entry.IsInline() {
		return fmt.Errorf("%w: %s", ErrEntryNotInline, p)
	}

	src, err := e.openReplacement(p, entry, newContentPath)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	var header *Header
	if entry.Integrity != nil && !e.opts.SkipIntegrityRefresh {
		header, err = e.refreshedIntegrityHeader(p, entry, src.reader())
		if err != nil {
			return err
		}
	}

	if err := e.beforeMutation(); err != nil {
		return err
	}

	off := e.r.DataStart() + entry.Offset
	err = e.commitReplacement(header, func() error {
		return e.writePayload(src.reader(), off, entry.Size)
	})
	if err != nil {
		return fmt.Errorf("replace %s: %w", p, err)
	}

	e.log.Debug("replaced", slog.String("path", p), slog.Int64("size", entry.Size))
	return nil
}

// ReplaceFromDir replaces every inline entry matching patterns with dir/<path>.
// Entries without a counterpart in dir are left alone; per-entry failures are
// collected and the batch continues.
func (e *Editor) ReplaceFromDir(patterns []string, dir string) (*PatchResult, error) {
	if err := e.r.checkOpen(); err != nil {
		return nil, err
	}

	st, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, dir)
		}

		return nil, fmt.Errorf("stat %s: %w", dir, err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrNotFound, dir)
	}

	matcher, err := newSelectionMatcher(patterns, e.opts.MatcherOptions)
	if err != nil {
		return nil, err
	}

	res := &PatchResult{}
	for _, ref := range selectFiles(e.r.Files(), matcher) {
		if !ref.entry.IsInline() {
			e.log.Debug("skipping external entry", slog.String("path", ref.path))
			continue
		}

		src := filepath.Join(dir, filepath.FromSlash(ref.path))
		if _, err := os.Stat(src); errors.Is(err, os.ErrNotExist) {
			continue
		}

		if err := e.Replace(ref.path, src); err != nil {
			if errors.Is(err, ErrClosed) {
				return res, err
			}

			e.log.Warn("replace failed", slog.String("path", ref.path), slog.Any("error", err))
			res.Failed = append(res.Failed, &EntryError{Path: ref.path, Err: err})
			continue
		}

		res.Patched = append(res.Patched, ref.path)
	}

	e.log.Info("replaced", slog.Int("patched", len(res.Patched)), slog.Int("failed", len(res.Failed)))
	return res, nil
}

// replacementSource is an opened replacement file fitted to an entry slot.
type replacementSource struct {
	file *os.File
	size int64
	slot int64
	pad  byte
}

// reader returns a fresh stream of slot bytes: file contents followed by padding.
func (s *replacementSource) reader() io.Reader {
	return io.MultiReader(
		io.NewSectionReader(s.file, 0, s.size),
		&padReader{n: s.slot - s.size, b: s.pad},
	)
}

// Close closes replacement file.
func (s *replacementSource) Close() error {
	return s.file.Close()
}

// padReader yields n copies of b.
type padReader struct {
	n int64
	b byte
}

// Read implements io.Reader.
func (r *padReader) Read(p []byte) (int, error) {
	if r.n <= 0 {
		return 0, io.EOF
	}

	if int64(len(p)) > r.n {
		p = p[:r.n]
	}
	for i := range p {
		p[i] = r.b
	}

	r.n -= int64(len(p))
	return len(p), nil
}

// openReplacement opens replacement file and checks it against the slot size policy.
func (e *Editor) openReplacement(p string, entry *Entry, src string) (*replacementSource, error) {
	f, err := os.Open(src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, src)
		}

		return nil, fmt.Errorf("open %s: %w", src, err)
	}

	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat %s: %w", src, err)
	}

	size := st.Size()
	switch {
	case size == entry.Size:
	case e.isText(p) && size < entry.Size:
	default:
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s is %d bytes, slot is %d", ErrSizeMismatch, p, size, entry.Size)
	}

	return &replacementSource{file: f, size: size, slot: entry.Size, pad: e.opts.PadByte}, nil
}

// commitReplacement writes prepared header, then runs payload write.
// A failed payload write restores the previous header.
func (e *Editor) commitReplacement(header *Header, write func() error) error {
	if header == nil {
		return write()
	}

	previous := e.r.Header()
	if err := e.commitHeader(header); err != nil {
		return fmt.Errorf("refresh integrity: %w", err)
	}

	if err := write(); err != nil {
		if restoreErr := e.commitHeader(previous); restoreErr != nil {
			return errors.Join(err, fmt.Errorf("restore header: %w", restoreErr))
		}

		return err
	}

	return nil
}

// writePayload streams exactly size bytes from src into archive at off.
func (e *Editor) writePayload(src io.Reader, off int64, size int64) error {
	if off < 0 || off+size > e.r.size {
		return fmt.Errorf("%w: write [%d,%d) outside archive of %d bytes", ErrSizeOverflow, off, off+size, e.r.size)
	}

	buf := make([]byte, min(int64(e.opts.ChunkSize), max(size, 1)))
	n, err := copyPayloadBounded(io.NewOffsetWriter(e.r.file, off), src, size, buf)
	if err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	if n != size {
		return fmt.Errorf("%w: wrote %d of %d bytes", ErrSizeMismatch, n, size)
	}

	return e.r.file.Sync()
}

// refreshedIntegrityHeader re-renders entry fragment with digests of payload
// and returns verified patched header.
func (e *Editor) refreshedIntegrityHeader(p string, entry *Entry, payload io.Reader) (*Header, error) {
	integrity, err := ComputeIntegrityFromReader(payload, entry.Integrity.Algorithm, entry.Integrity.BlockSize)
	if err != nil {
		return nil, fmt.Errorf("integrity %s: %w", p, err)
	}

	if integrity.Equal(entry.Integrity) {
		return nil, nil
	}

	updated := *entry
	updated.Integrity = integrity

	fragment, ok := fitFragment(appendEntry(nil, &updated), entry.span.len())
	if !ok {
		return nil, fmt.Errorf("%w: integrity of %s", ErrPatchOverflow, p)
	}

	return e.prepareHeader([]spanEdit{{path: p, span: entry.span, fragment: fragment}})
}
