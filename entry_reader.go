// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asar

package asar

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// nopCloser wraps a reader and provides a no-op close.
type nopCloser struct {
	io.Reader
}

// Close closes nopCloser (no-op).
func (nopCloser) Close() error {
	return nil
}

// entrySection returns section reader over inline entry payload.
func (r *Reader) entrySection(info *EntryInfo) (*io.SectionReader, error) {
	if !info.IsInline() {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotInline, info.Path)
	}

	return io.NewSectionReader(r.ra, r.DataStart()+info.Offset, info.Size), nil
}

// OpenEntry opens named file entry for reading. External entries are opened
// from the sibling ".unpacked" directory.
func (r *Reader) OpenEntry(name string) (io.ReadCloser, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}

	info, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}

	if info.IsInline() {
		sr, err := r.entrySection(&info)
		if err != nil {
			return nil, err
		}

		return nopCloser{Reader: sr}, nil
	}

	unpackedDir := r.UnpackedDir()
	if unpackedDir == "" {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotInline, info.Path)
	}

	f, err := os.Open(filepath.Join(unpackedDir, filepath.FromSlash(info.Path)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: unpacked %s", ErrNotFound, info.Path)
		}

		return nil, fmt.Errorf("open unpacked %s: %w", info.Path, err)
	}

	return f, nil
}

// ReadEntry reads full content of the named entry.
func (r *Reader) ReadEntry(name string) ([]byte, error) {
	rc, err := r.OpenEntry(name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	return io.ReadAll(rc)
}

// VerifyEntry re-hashes stored bytes of the named entry against its integrity record.
// Entries without integrity are accepted as-is.
func (r *Reader) VerifyEntry(name string) error {
	info, err := r.Lookup(name)
	if err != nil {
		return err
	}

	if info.Integrity == nil {
		return nil
	}

	rc, err := r.OpenEntry(name)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	if err := verifyIntegrity(rc, info.Integrity); err != nil {
		return fmt.Errorf("verify %s: %w", info.Path, err)
	}

	return nil
}
