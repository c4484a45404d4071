// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asar

package asar

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ReadRawHeader opens an archive and returns stored JSON index bytes without
// validating payload bounds.
func ReadRawHeader(path string) ([]byte, error) {
	f, size, err := openFileWithSize(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	h, err := decodeHeader(f, size)
	if err != nil {
		return nil, err
	}

	return h.RawJSON(), nil
}

// ListEntries opens an archive and returns file entry metadata without payload reads.
func ListEntries(path string) ([]EntryInfo, error) {
	f, size, err := openFileWithSize(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	return ListEntriesFromReaderAt(f, size)
}

// ListEntriesFromReaderAt parses file entry metadata from a random-access source.
func ListEntriesFromReaderAt(ra io.ReaderAt, size int64) ([]EntryInfo, error) {
	r, err := NewReaderFromReaderAt(ra, size)
	if err != nil {
		return nil, err
	}

	return r.Entries(), nil
}

// openFileWithSize opens a file and returns a handle plus current size.
func openFileWithSize(path string) (*os.File, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, fmt.Errorf("%w: archive %s", ErrNotFound, path)
		}

		return nil, 0, fmt.Errorf("open archive: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("stat: %w", err)
	}

	return f, fi.Size(), nil
}
