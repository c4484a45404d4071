// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asar

package asar

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
)

// spanEdit is one same-length fragment substitution inside raw header JSON.
type spanEdit struct {
	path     string
	fragment []byte
	span     byteSpan
}

// Externalize marks every inline file entry matching patterns as unpacked by
// rewriting only its JSON fragment. Payload bytes stay in the content region
// unreferenced. Entries whose fragment cannot fit are reported in Failed.
// Patterns are anchored to archive root; see newSelectionMatcher.
func (e *Editor) Externalize(patterns []string, opts ExternalizeOptions) (*PatchResult, error) {
	if err := e.r.checkOpen(); err != nil {
		return nil, err
	}

	matcher, err := newSelectionMatcher(patterns, e.opts.MatcherOptions)
	if err != nil {
		return nil, err
	}

	res := &PatchResult{}
	edits := make([]spanEdit, 0, 8)
	for _, ref := range selectFiles(e.r.Files(), matcher) {
		if ref.entry.Unpacked {
			e.log.Debug("already unpacked", slog.String("path", ref.path))
			continue
		}

		if !ref.entry.span.valid() {
			res.Failed = append(res.Failed, &EntryError{Path: ref.path, Err: fmt.Errorf("%w: entry span unknown", ErrFormat)})
			continue
		}

		fragment, err := externalizeFragment(ref.entry, ref.entry.span.len())
		if err != nil {
			e.log.Warn("cannot externalize", slog.String("path", ref.path), slog.Any("error", err))
			res.Failed = append(res.Failed, &EntryError{Path: ref.path, Err: err})
			continue
		}

		edits = append(edits, spanEdit{path: ref.path, span: ref.entry.span, fragment: fragment})
	}

	if len(edits) == 0 {
		return res, nil
	}

	if err := e.beforeMutation(); err != nil {
		return nil, err
	}

	if opts.CopyToUnpacked {
		kept := edits[:0]
		for _, ed := range edits {
			if err := e.copyEntryToUnpacked(ed.path); err != nil {
				res.Failed = append(res.Failed, &EntryError{Path: ed.path, Err: err})
				continue
			}

			kept = append(kept, ed)
		}
		edits = kept

		if len(edits) == 0 {
			return res, nil
		}
	}

	if err := e.commitSpanEdits(edits); err != nil {
		return nil, err
	}

	for _, ed := range edits {
		res.Patched = append(res.Patched, ed.path)
	}

	e.log.Info("externalized", slog.Int("patched", len(res.Patched)), slog.Int("failed", len(res.Failed)))
	return res, nil
}

// externalizeFragment renders unpacked form of entry fitted to n bytes.
// Candidates are tried from most to least informative.
func externalizeFragment(entry *Entry, n int) ([]byte, error) {
	full := *entry
	full.Files = nil
	full.Unpacked = true
	full.HasOffset = false
	full.Offset = 0

	candidates := [][]byte{
		appendEntry(nil, &full),
		strconv.AppendInt([]byte(`{"size":`), entry.Size, 10),
		[]byte(`{"unpacked":true}`),
	}
	candidates[1] = append(candidates[1], `,"unpacked":true}`...)

	for _, candidate := range candidates {
		if fragment, ok := fitFragment(candidate, n); ok {
			return fragment, nil
		}
	}

	return nil, fmt.Errorf("%w: %d-byte span", ErrPatchOverflow, n)
}

// fitFragment pads JSON object with spaces before its closing brace to exactly n bytes.
func fitFragment(candidate []byte, n int) ([]byte, bool) {
	if len(candidate) == 0 || len(candidate) > n || candidate[len(candidate)-1] != '}' {
		return nil, false
	}

	out := make([]byte, 0, n)
	out = append(out, candidate[:len(candidate)-1]...)
	for len(out) < n-1 {
		out = append(out, ' ')
	}

	return append(out, '}'), true
}

// applySpanEdits returns patched copy of raw header JSON.
// Buffer length must stay identical, otherwise nothing is returned.
func applySpanEdits(raw []byte, edits []spanEdit) ([]byte, error) {
	out := bytes.Clone(raw)
	for _, ed := range edits {
		if ed.span.end > len(out) || ed.span.start < 0 {
			return nil, fmt.Errorf("%w: span of %s outside header", ErrFormat, ed.path)
		}

		if len(ed.fragment) != ed.span.len() {
			return nil, fmt.Errorf("%w: %s fragment is %d bytes, span is %d", ErrPatchOverflow, ed.path, len(ed.fragment), ed.span.len())
		}

		copy(out[ed.span.start:ed.span.end], ed.fragment)
	}

	if len(out) != len(raw) {
		return nil, fmt.Errorf("%w: %d -> %d bytes", ErrHeaderLengthChanged, len(raw), len(out))
	}

	return out, nil
}

// prepareHeader applies edits and re-decodes the result without touching disk.
func (e *Editor) prepareHeader(edits []spanEdit) (*Header, error) {
	current := e.r.Header()
	patched, err := applySpanEdits(current.raw, edits)
	if err != nil {
		return nil, err
	}

	files, err := decodeIndex(patched)
	if err != nil {
		return nil, fmt.Errorf("patched index does not decode: %w", err)
	}

	return &Header{
		Files:       files,
		raw:         patched,
		JSONSize:    current.JSONSize,
		AlignedSize: current.AlignedSize,
	}, nil
}

// commitHeader writes prepared header JSON at its original offset and swaps reader state.
func (e *Editor) commitHeader(h *Header) error {
	if len(h.raw) != len(e.r.Header().raw) {
		return fmt.Errorf("%w: %d -> %d bytes", ErrHeaderLengthChanged, len(e.r.Header().raw), len(h.raw))
	}

	if err := e.writeAt(h.raw, headerPrefixSize); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	e.r.replaceHeader(h)
	return nil
}

// commitSpanEdits prepares, verifies and writes header edits in one step.
func (e *Editor) commitSpanEdits(edits []spanEdit) error {
	h, err := e.prepareHeader(edits)
	if err != nil {
		return err
	}

	return e.commitHeader(h)
}

// copyEntryToUnpacked materializes inline entry bytes into "<archive>.unpacked/<path>".
func (e *Editor) copyEntryToUnpacked(p string) error {
	info, err := e.r.Lookup(p)
	if err != nil {
		return err
	}

	sr, err := e.r.entrySection(&info)
	if err != nil {
		return err
	}

	dst := filepath.Join(e.r.UnpackedDir(), filepath.FromSlash(p))
	if err := os.MkdirAll(filepath.Dir(dst), extractDirMode); err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fileModeOf(&Entry{Executable: info.Executable}))
	if err != nil {
		return err
	}

	written, copyErr := copyExtractData(out, sr, make([]byte, min(info.Size+1, DefaultChunkSize)))
	closeErr := out.Close()
	if copyErr != nil {
		return copyErr
	}
	if closeErr != nil {
		return closeErr
	}

	if written != info.Size {
		return fmt.Errorf("%w: copied %d of %d bytes", ErrSizeMismatch, written, info.Size)
	}

	return nil
}
