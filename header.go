// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asar

package asar

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Header is decoded archive header: 16-byte size prefix plus JSON index.
type Header struct {
	// Files is root directory of the index.
	Files *Directory
	// raw holds JSON index bytes exactly as stored (padding stripped).
	raw []byte
	// JSONSize is declared raw JSON length from prefix field at offset 12.
	JSONSize uint32
	// AlignedSize is JSON region length including NUL padding.
	AlignedSize uint32
}

// DataStart returns absolute file offset of the content region.
func (h *Header) DataStart() int64 {
	return headerPrefixSize + int64(h.AlignedSize)
}

// RawJSON returns a copy of stored JSON index bytes.
func (h *Header) RawJSON() []byte {
	return bytes.Clone(h.raw)
}

// alignedJSONSize rounds n up to 4-byte boundary.
func alignedJSONSize(n int) int {
	return n + (4-n%4)%4
}

// encodeHeader renders full header region for given index tree.
func encodeHeader(root *Directory) ([]byte, error) {
	data := encodeIndex(root)
	aligned := alignedJSONSize(len(data))
	if uint64(aligned)+8 > math.MaxUint32 {
		return nil, fmt.Errorf("%w: index JSON is %d bytes", ErrSizeOverflow, len(data))
	}

	out := make([]byte, headerPrefixSize+aligned)
	binary.LittleEndian.PutUint32(out[0:4], headerSignature)
	binary.LittleEndian.PutUint32(out[4:8], uint32(aligned+8))   //nolint:gosec // bounded above
	binary.LittleEndian.PutUint32(out[8:12], uint32(aligned+4))  //nolint:gosec // bounded above
	binary.LittleEndian.PutUint32(out[12:16], uint32(len(data))) //nolint:gosec // bounded above
	copy(out[headerPrefixSize:], data)

	return out, nil
}

// decodeHeader reads prefix and JSON index from archive of known size.
func decodeHeader(ra io.ReaderAt, size int64) (*Header, error) {
	if ra == nil {
		return nil, ErrNilReader
	}
	if size < headerPrefixSize {
		return nil, fmt.Errorf("%w: short header (%d bytes)", ErrFormat, size)
	}

	var prefix [headerPrefixSize]byte
	if _, err := ra.ReadAt(prefix[:], 0); err != nil {
		return nil, fmt.Errorf("%w: read prefix: %w", ErrFormat, err)
	}

	if sig := binary.LittleEndian.Uint32(prefix[0:4]); sig != headerSignature {
		return nil, fmt.Errorf("%w: signature %d", ErrFormat, sig)
	}

	totalSize := binary.LittleEndian.Uint32(prefix[4:8])
	if totalSize < 8 {
		return nil, fmt.Errorf("%w: total size %d", ErrFormat, totalSize)
	}

	aligned := totalSize - 8
	if int64(aligned) > size-headerPrefixSize {
		return nil, fmt.Errorf("%w: index length %d exceeds file size %d", ErrFormat, aligned, size)
	}

	jsonSize := binary.LittleEndian.Uint32(prefix[12:16])
	if int64(jsonSize) > size-headerPrefixSize {
		return nil, fmt.Errorf("%w: json size %d exceeds file size %d", ErrFormat, jsonSize, size)
	}

	buf := make([]byte, aligned)
	if _, err := ra.ReadAt(buf, headerPrefixSize); err != nil {
		return nil, fmt.Errorf("%w: read index: %w", ErrFormat, err)
	}

	raw := buf
	if jsonSize <= aligned {
		raw = buf[:jsonSize]
	}
	raw = bytes.TrimRight(raw, "\x00")

	files, err := decodeIndex(raw)
	if err != nil {
		return nil, err
	}

	return &Header{
		Files:       files,
		raw:         raw,
		JSONSize:    jsonSize,
		AlignedSize: aligned,
	}, nil
}
