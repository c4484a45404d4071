// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asar

package asar

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"unicode/utf8"
)

// JSON keys of the archive index.
const (
	keyFiles      = "files"
	keySize       = "size"
	keyOffset     = "offset"
	keyUnpacked   = "unpacked"
	keyExecutable = "executable"
	keyIntegrity  = "integrity"
)

// decodeIndex parses header JSON into ordered directory tree and records
// byte span of every entry object relative to data start.
func decodeIndex(data []byte) (*Directory, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	var files *Directory
	for dec.More() {
		key, err := readKey(dec)
		if err != nil {
			return nil, err
		}

		if key != keyFiles {
			if err := skipValue(dec); err != nil {
				return nil, err
			}
			continue
		}

		files, err = decodeDirectory(dec)
		if err != nil {
			return nil, err
		}
	}

	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after index", ErrFormat)
	}

	if files == nil {
		return nil, fmt.Errorf("%w: index has no %q mapping", ErrFormat, keyFiles)
	}

	return files, nil
}

// decodeDirectory parses one {"name": entry, ...} mapping.
func decodeDirectory(dec *json.Decoder) (*Directory, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	dir := NewDirectory()
	for dec.More() {
		name, err := readKey(dec)
		if err != nil {
			return nil, err
		}

		entry, err := decodeEntry(dec)
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", name, err)
		}

		dir.Set(name, entry)
	}

	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}

	return dir, nil
}

// decodeEntry parses one entry object and records its exact byte span.
func decodeEntry(dec *json.Decoder) (*Entry, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	entry := &Entry{}
	// Delimiters are one byte, so the object starts right before current offset.
	entry.span.start = int(dec.InputOffset()) - 1

	for dec.More() {
		key, err := readKey(dec)
		if err != nil {
			return nil, err
		}

		switch key {
		case keyFiles:
			entry.Files, err = decodeDirectory(dec)
		case keySize:
			entry.Size, err = readInt(dec, key)
		case keyOffset:
			entry.Offset, err = readInt(dec, key)
			entry.HasOffset = err == nil
		case keyUnpacked:
			entry.Unpacked, err = readBool(dec, key)
		case keyExecutable:
			entry.Executable, err = readBool(dec, key)
		case keyIntegrity:
			entry.Integrity = &Integrity{}
			if decodeErr := dec.Decode(entry.Integrity); decodeErr != nil {
				err = fmt.Errorf("%w: integrity: %w", ErrFormat, decodeErr)
			}
		default:
			err = skipValue(dec)
		}
		if err != nil {
			return nil, err
		}
	}

	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}

	entry.span.end = int(dec.InputOffset())

	return entry, nil
}

// expectDelim reads next token and requires given delimiter.
func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFormat, err)
	}

	if delim, ok := tok.(json.Delim); !ok || delim != want {
		return fmt.Errorf("%w: expected %q, got %v", ErrFormat, want, tok)
	}

	return nil
}

// readKey reads object key token.
func readKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrFormat, err)
	}

	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("%w: expected key, got %v", ErrFormat, tok)
	}

	return key, nil
}

// readInt reads non-negative integer given as JSON number or decimal string.
func readInt(dec *json.Decoder, key string) (int64, error) {
	tok, err := dec.Token()
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrFormat, key, err)
	}

	var raw string
	switch v := tok.(type) {
	case json.Number:
		raw = v.String()
	case string:
		raw = v
	default:
		return 0, fmt.Errorf("%w: %s has type %T", ErrFormat, key, tok)
	}

	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s value %q", ErrFormat, key, raw)
	}

	return n, nil
}

// readBool reads JSON boolean.
func readBool(dec *json.Decoder, key string) (bool, error) {
	tok, err := dec.Token()
	if err != nil {
		return false, fmt.Errorf("%w: %s: %w", ErrFormat, key, err)
	}

	v, ok := tok.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s has type %T", ErrFormat, key, tok)
	}

	return v, nil
}

// skipValue consumes one JSON value of any shape.
func skipValue(dec *json.Decoder) error {
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("%w: %w", ErrFormat, err)
	}

	return nil
}

// encodeIndex renders compact index JSON preserving insertion order.
func encodeIndex(root *Directory) []byte {
	b := make([]byte, 0, 256+root.Len()*64)
	b = append(b, `{"files":`...)
	b = appendDirectory(b, root)

	return append(b, '}')
}

// appendDirectory renders directory mapping.
func appendDirectory(b []byte, d *Directory) []byte {
	b = append(b, '{')
	first := true
	for name, e := range d.All() {
		if !first {
			b = append(b, ',')
		}
		first = false

		b = appendJSONString(b, name)
		b = append(b, ':')
		b = appendEntry(b, e)
	}

	return append(b, '}')
}

// appendEntry renders one entry in field order size, integrity, unpacked, offset, executable.
func appendEntry(b []byte, e *Entry) []byte {
	if e.IsDir() {
		b = append(b, `{"files":`...)
		b = appendDirectory(b, e.Files)
		return append(b, '}')
	}

	b = append(b, `{"size":`...)
	b = strconv.AppendInt(b, e.Size, 10)

	if e.Integrity != nil {
		b = append(b, `,"integrity":`...)
		b = appendIntegrity(b, e.Integrity)
	}

	if e.Unpacked {
		b = append(b, `,"unpacked":true`...)
	} else if e.HasOffset {
		b = append(b, `,"offset":"`...)
		b = strconv.AppendInt(b, e.Offset, 10)
		b = append(b, '"')
	}

	if e.Executable {
		b = append(b, `,"executable":true`...)
	}

	return append(b, '}')
}

// appendIntegrity renders integrity object.
func appendIntegrity(b []byte, in *Integrity) []byte {
	b = append(b, `{"algorithm":`...)
	b = appendJSONString(b, in.Algorithm)
	b = append(b, `,"hash":`...)
	b = appendJSONString(b, in.Hash)
	b = append(b, `,"blockSize":`...)
	b = strconv.AppendInt(b, in.BlockSize, 10)
	b = append(b, `,"blocks":[`...)
	for i, block := range in.Blocks {
		if i > 0 {
			b = append(b, ',')
		}

		b = appendJSONString(b, block)
	}

	return append(b, "]}"...)
}

// appendJSONString writes s as JSON string keeping non-ASCII runes as raw UTF-8.
func appendJSONString(b []byte, s string) []byte {
	const hexDigits = "0123456789abcdef"

	b = append(b, '"')
	for i := 0; i < len(s); {
		c := s[i]
		if c >= utf8.RuneSelf {
			r, size := utf8.DecodeRuneInString(s[i:])
			if r == utf8.RuneError && size == 1 {
				b = append(b, `�`...)
			} else {
				b = append(b, s[i:i+size]...)
			}
			i += size
			continue
		}

		switch c {
		case '"', '\\':
			b = append(b, '\\', c)
		case '\n':
			b = append(b, '\\', 'n')
		case '\r':
			b = append(b, '\\', 'r')
		case '\t':
			b = append(b, '\\', 't')
		case '\b':
			b = append(b, '\\', 'b')
		case '\f':
			b = append(b, '\\', 'f')
		default:
			if c < 0x20 {
				b = append(b, '\\', 'u', '0', '0', hexDigits[c>>4], hexDigits[c&0xf])
			} else {
				b = append(b, c)
			}
		}
		i++
	}

	return append(b, '"')
}
