// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asar

package asar

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// Reader provides access to a parsed ASAR archive.
type Reader struct {
	// ra is the underlying random-access reader used for payload reads.
	ra io.ReaderAt
	// file is set when Reader owns an *os.File opened via Open.
	file *os.File
	// header is decoded header with span-annotated index.
	header *Header
	// path is archive file path; empty for ReaderAt-based readers.
	path string
	// size is total source size in bytes.
	size int64
	// mu guards closed state and header swaps after patching.
	mu sync.Mutex
	// closed reports whether Close was already called.
	closed bool
}

// Open opens archive file by path and decodes its header.
func Open(path string) (*Reader, error) {
	return openArchive(path, os.O_RDONLY)
}

// openArchive opens archive with given file flags and parses header.
func openArchive(path string, flag int) (*Reader, error) {
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: archive %s", ErrNotFound, path)
		}

		return nil, fmt.Errorf("open archive: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat: %w", err)
	}

	r, err := NewReaderFromReaderAt(f, fi.Size())
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	r.file = f
	r.path = path
	return r, nil
}

// NewReaderFromReaderAt parses archive from existing ReaderAt and known size.
func NewReaderFromReaderAt(ra io.ReaderAt, size int64) (*Reader, error) {
	if ra == nil {
		return nil, ErrNilReader
	}

	header, err := decodeHeader(ra, size)
	if err != nil {
		return nil, err
	}

	if err := validateEntryBounds(header, size); err != nil {
		return nil, err
	}

	return &Reader{ra: ra, size: size, header: header}, nil
}

// Header returns decoded header.
func (r *Reader) Header() *Header {
	if r == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.header
}

// Files returns root directory of the index.
func (r *Reader) Files() *Directory {
	h := r.Header()
	if h == nil {
		return nil
	}

	return h.Files
}

// Path returns archive file path, empty for ReaderAt-based readers.
func (r *Reader) Path() string {
	if r == nil {
		return ""
	}

	return r.path
}

// Size returns archive size in bytes.
func (r *Reader) Size() int64 {
	if r == nil {
		return 0
	}

	return r.size
}

// DataStart returns absolute offset of the content region.
func (r *Reader) DataStart() int64 {
	h := r.Header()
	if h == nil {
		return 0
	}

	return h.DataStart()
}

// RawHeader returns stored JSON index bytes.
func (r *Reader) RawHeader() []byte {
	h := r.Header()
	if h == nil {
		return nil
	}

	return h.RawJSON()
}

// Entries returns all file entries in index order.
func (r *Reader) Entries() []EntryInfo {
	files := r.Files()
	if files == nil {
		return nil
	}

	refs := collectFiles(files)
	out := make([]EntryInfo, len(refs))
	for i, ref := range refs {
		out[i] = entryInfoOf(ref.path, ref.entry)
	}

	return out
}

// EntriesWithPrefix returns file entries equal to prefix or inside it.
func (r *Reader) EntriesWithPrefix(prefix string) []EntryInfo {
	return filterEntriesByPrefix(r.Entries(), prefix)
}

// Lookup returns metadata of one file entry by archive path.
func (r *Reader) Lookup(name string) (EntryInfo, error) {
	p, err := normalizeArchiveEntryPath(name)
	if err != nil {
		return EntryInfo{}, err
	}

	e, ok := r.Files().Lookup(p)
	if !ok || e.IsDir() {
		return EntryInfo{}, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}

	return entryInfoOf(p, e), nil
}

// UnpackedDir returns sibling directory holding externally stored files.
func (r *Reader) UnpackedDir() string {
	if r == nil || r.path == "" {
		return ""
	}

	return r.path + UnpackedDirSuffix
}

// Close closes the underlying file if reader owns one.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	r.closed = true
	if r.file != nil {
		return r.file.Close()
	}

	return nil
}

// checkOpen returns ErrClosed after Close.
func (r *Reader) checkOpen() error {
	if r == nil || r.ra == nil {
		return ErrNilReader
	}

	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return ErrClosed
	}

	return nil
}

// replaceHeader swaps decoded header after successful in-place patch.
func (r *Reader) replaceHeader(h *Header) {
	r.mu.Lock()
	r.header = h
	r.mu.Unlock()
}

// validateEntryBounds checks every inline entry lies inside the content region.
func validateEntryBounds(h *Header, totalSize int64) error {
	dataLen := totalSize - h.DataStart()
	for _, ref := range collectFiles(h.Files) {
		if !ref.entry.IsInline() {
			continue
		}

		end := ref.entry.Offset + ref.entry.Size
		if end < ref.entry.Offset || end > dataLen {
			return fmt.Errorf("%w: entry %s payload out of file bounds", ErrFormat, ref.path)
		}
	}

	return nil
}
