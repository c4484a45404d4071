// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asar

package asar

import (
	"errors"
	"fmt"
)

// Sentinel errors for ASAR operations. Use errors.Is in callers.
var (
	// ErrFormat means the archive header is malformed, truncated, or has a bad signature.
	ErrFormat = errors.New("invalid ASAR archive: malformed header")
	// ErrNotFound means a source directory, source file, or archive file is missing.
	ErrNotFound = errors.New("path not found")
	// ErrUnsupportedAlgorithm means the integrity digest algorithm is unknown.
	ErrUnsupportedAlgorithm = errors.New("unsupported digest algorithm")
	// ErrSizeMismatch means replacement content does not fit the stored entry slot.
	ErrSizeMismatch = errors.New("content size mismatch")
	// ErrPatchOverflow means a replacement header fragment is longer than the original one.
	ErrPatchOverflow = errors.New("header patch fragment overflows original span")
	// ErrHeaderLengthChanged means a patched header no longer matches its original byte length.
	ErrHeaderLengthChanged = errors.New("patched header length changed")
	// ErrIntegrityMismatch means stored bytes do not match recorded integrity digests.
	ErrIntegrityMismatch = errors.New("integrity mismatch")
	// ErrEntryNotFound means the entry is not present in the archive index.
	ErrEntryNotFound = errors.New("entry not found")
	// ErrEntryNotInline means the entry has no bytes inside the archive content region.
	ErrEntryNotInline = errors.New("entry is not stored inline")
	// ErrInvalidPattern means one or more match patterns could not be compiled.
	ErrInvalidPattern = errors.New("invalid match pattern")
	// ErrInvalidEntryPath means an entry path is empty or invalid after normalization.
	ErrInvalidEntryPath = errors.New("invalid entry path")
	// ErrInvalidExtractPath means archive entry path is invalid for extraction destination.
	ErrInvalidExtractPath = errors.New("invalid extract path")
	// ErrNilReader means the reader is nil.
	ErrNilReader = errors.New("reader is nil")
	// ErrNilWriter means the writer is nil.
	ErrNilWriter = errors.New("writer is nil")
	// ErrClosed means the reader or editor is already closed.
	ErrClosed = errors.New("archive already closed")
	// ErrReadOnly means a mutating operation was requested on a read-only handle.
	ErrReadOnly = errors.New("archive opened read-only")
	// ErrSizeOverflow means a size exceeds the 32-bit header fields or platform limits.
	ErrSizeOverflow = errors.New("size exceeds format limit")
)

// EntryError reports one failed entry in a batch operation.
type EntryError struct {
	// Err is the underlying failure, usually wrapping a sentinel error.
	Err error `json:"-" yaml:"-"`
	// Path is archive-relative entry path.
	Path string `json:"path" yaml:"path"`
}

// Error implements error.
func (e *EntryError) Error() string {
	return fmt.Sprintf("entry %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *EntryError) Unwrap() error {
	return e.Err
}
