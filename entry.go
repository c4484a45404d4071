// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asar

package asar

import (
	"errors"
	"iter"
	"slices"
)

// SkipDir is returned by Walk callbacks to skip descending into a directory.
// Returned for a file entry it is ignored.
var SkipDir = errors.New("skip directory")

// Entry is one node of the archive index: a file or a directory.
// Directories have non-nil Files; every other field is meaningful only for files.
type Entry struct {
	// Files holds children of a directory entry in insertion order.
	Files *Directory
	// Integrity is optional digest record of file contents.
	Integrity *Integrity
	// Size is file size in bytes.
	Size int64
	// Offset is payload position relative to content region start; valid when HasOffset.
	Offset int64
	// span is raw byte range of this entry's JSON object inside the decoded header.
	span byteSpan
	// HasOffset reports whether file bytes are stored inline.
	HasOffset bool
	// Unpacked reports whether file bytes live in the sibling ".unpacked" directory.
	Unpacked bool
	// Executable is informational exec flag.
	Executable bool
}

// byteSpan is a half-open [start, end) range within header JSON bytes.
type byteSpan struct {
	start int
	end   int
}

// valid reports whether span was recorded during decode.
func (s byteSpan) valid() bool {
	return s.end > s.start
}

// len returns span length in bytes.
func (s byteSpan) len() int {
	return s.end - s.start
}

// newFileEntry returns empty file entry.
func newFileEntry(size int64) *Entry {
	return &Entry{Size: size}
}

// newDirEntry returns empty directory entry.
func newDirEntry() *Entry {
	return &Entry{Files: NewDirectory()}
}

// IsDir reports whether entry is a directory.
func (e *Entry) IsDir() bool {
	return e != nil && e.Files != nil
}

// IsInline reports whether entry bytes are present in the archive content region.
func (e *Entry) IsInline() bool {
	return e != nil && e.Files == nil && !e.Unpacked && e.HasOffset
}

// Directory is an insertion-ordered mapping of names to entries.
type Directory struct {
	entries map[string]*Entry
	names   []string
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{entries: make(map[string]*Entry)}
}

// Len returns number of direct children.
func (d *Directory) Len() int {
	if d == nil {
		return 0
	}

	return len(d.names)
}

// Names returns child names in insertion order.
func (d *Directory) Names() []string {
	if d == nil {
		return nil
	}

	return slices.Clone(d.names)
}

// Get returns direct child by name.
func (d *Directory) Get(name string) (*Entry, bool) {
	if d == nil {
		return nil, false
	}

	e, ok := d.entries[name]
	return e, ok
}

// Set inserts or replaces child. New names are appended, existing names keep their position.
func (d *Directory) Set(name string, e *Entry) {
	if _, exists := d.entries[name]; !exists {
		d.names = append(d.names, name)
	}

	d.entries[name] = e
}

// All iterates direct children in insertion order.
func (d *Directory) All() iter.Seq2[string, *Entry] {
	return func(yield func(string, *Entry) bool) {
		if d == nil {
			return
		}

		for _, name := range d.names {
			if !yield(name, d.entries[name]) {
				return
			}
		}
	}
}

// Lookup resolves slash-separated archive path relative to this directory.
func (d *Directory) Lookup(p string) (*Entry, bool) {
	normalized := NormalizePath(p)
	if normalized == "" {
		return nil, false
	}

	current := d
	segments := splitArchivePath(normalized)
	for i, segment := range segments {
		e, ok := current.Get(segment)
		if !ok {
			return nil, false
		}

		if i == len(segments)-1 {
			return e, true
		}

		if !e.IsDir() {
			return nil, false
		}

		current = e.Files
	}

	return nil, false
}

// Walk visits all entries depth-first in pre-order, following insertion order.
// Returning SkipDir for a directory skips its children.
func (d *Directory) Walk(fn func(p string, e *Entry) error) error {
	return d.walk("", fn)
}

// walk is recursive Walk implementation.
func (d *Directory) walk(parent string, fn func(p string, e *Entry) error) error {
	for name, e := range d.All() {
		p := joinArchivePath(parent, name)
		err := fn(p, e)
		if errors.Is(err, SkipDir) {
			continue
		}

		if err != nil {
			return err
		}

		if e.IsDir() {
			if err := e.Files.walk(p, fn); err != nil {
				return err
			}
		}
	}

	return nil
}

// EntryInfo describes one file entry with its archive-relative path.
type EntryInfo struct {
	// Integrity is optional digest record.
	Integrity *Integrity `json:"integrity,omitempty" yaml:"integrity,omitempty"`
	// Path is slash-separated archive path.
	Path string `json:"path" yaml:"path"`
	// Size is file size in bytes.
	Size int64 `json:"size" yaml:"size"`
	// Offset is payload offset relative to content region; -1 when not stored inline.
	Offset int64 `json:"offset" yaml:"offset"`
	// Unpacked reports whether bytes live in the sibling ".unpacked" directory.
	Unpacked bool `json:"unpacked,omitempty" yaml:"unpacked,omitempty"`
	// Executable is informational exec flag.
	Executable bool `json:"executable,omitempty" yaml:"executable,omitempty"`
}

// IsInline reports whether entry bytes are present in archive content region.
func (e *EntryInfo) IsInline() bool {
	return !e.Unpacked && e.Offset >= 0
}

// fileRef pairs file entry with its archive path.
type fileRef struct {
	entry *Entry
	path  string
}

// collectFiles returns all file entries in depth-first pre-order.
func collectFiles(root *Directory) []fileRef {
	refs := make([]fileRef, 0, 64)
	_ = root.Walk(func(p string, e *Entry) error {
		if !e.IsDir() {
			refs = append(refs, fileRef{path: p, entry: e})
		}

		return nil
	})

	return refs
}

// entryInfoOf converts internal entry to public file metadata.
func entryInfoOf(p string, e *Entry) EntryInfo {
	info := EntryInfo{
		Path:       p,
		Size:       e.Size,
		Offset:     -1,
		Unpacked:   e.Unpacked,
		Executable: e.Executable,
		Integrity:  e.Integrity,
	}
	if e.HasOffset {
		info.Offset = e.Offset
	}

	return info
}
