// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asar

package asar

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestEncodeHeader_Scenario(t *testing.T) {
	t.Parallel()

	root := NewDirectory()
	root.Set("a.txt", &Entry{Size: 2, Offset: 0, HasOffset: true})
	sub := newDirEntry()
	sub.Files.Set("b.txt", &Entry{Size: 3, Offset: 2, HasOffset: true})
	root.Set("sub", sub)

	want := `{"files":{"a.txt":{"size":2,"offset":"0"},"sub":{"files":{"b.txt":{"size":3,"offset":"2"}}}}}`
	if got := string(encodeIndex(root)); got != want {
		t.Fatalf("encodeIndex=%s, want %s", got, want)
	}

	header, err := encodeHeader(root)
	if err != nil {
		t.Fatalf("encodeHeader: %v", err)
	}

	aligned := alignedJSONSize(len(want))
	if len(header) != headerPrefixSize+aligned {
		t.Fatalf("header len=%d, want %d", len(header), headerPrefixSize+aligned)
	}

	fields := []struct {
		name string
		off  int
		want uint32
	}{
		{name: "signature", off: 0, want: 4},
		{name: "total", off: 4, want: uint32(aligned + 8)},
		{name: "wrapper", off: 8, want: uint32(aligned + 4)},
		{name: "json", off: 12, want: uint32(len(want))},
	}
	for _, f := range fields {
		if got := binary.LittleEndian.Uint32(header[f.off:]); got != f.want {
			t.Fatalf("%s field=%d, want %d", f.name, got, f.want)
		}
	}

	padding := header[headerPrefixSize+len(want):]
	if !bytes.Equal(padding, make([]byte, len(padding))) {
		t.Fatalf("padding=%v, want NUL bytes", padding)
	}
}

func TestAlignedJSONSize(t *testing.T) {
	t.Parallel()

	cases := map[int]int{0: 0, 1: 4, 3: 4, 4: 4, 5: 8, 97: 100}
	for in, want := range cases {
		if got := alignedJSONSize(in); got != want {
			t.Fatalf("alignedJSONSize(%d)=%d, want %d", in, got, want)
		}
	}
}

func TestDecodeHeader_RoundTrip(t *testing.T) {
	t.Parallel()

	root := NewDirectory()
	root.Set("a.txt", &Entry{Size: 2, Offset: 0, HasOffset: true, Executable: true})
	root.Set("native.node", &Entry{Size: 10, Unpacked: true})
	dir := newDirEntry()
	dir.Files.Set("z.js", &Entry{Size: 1, Offset: 2, HasOffset: true})
	dir.Files.Set("a.js", &Entry{Size: 1, Offset: 3, HasOffset: true})
	root.Set("lib", dir)

	data, err := encodeHeader(root)
	if err != nil {
		t.Fatalf("encodeHeader: %v", err)
	}
	data = append(data, "hixy"...)

	h, err := decodeHeader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("decodeHeader: %v", err)
	}

	if got := h.Files.Names(); len(got) != 3 || got[0] != "a.txt" || got[1] != "native.node" || got[2] != "lib" {
		t.Fatalf("root names=%v", got)
	}

	lib, ok := h.Files.Get("lib")
	if !ok || !lib.IsDir() {
		t.Fatalf("lib missing or not a dir")
	}
	if got := lib.Files.Names(); got[0] != "z.js" || got[1] != "a.js" {
		t.Fatalf("lib names=%v, want insertion order", got)
	}

	a, _ := h.Files.Get("a.txt")
	if !a.IsInline() || !a.Executable || a.Size != 2 {
		t.Fatalf("a.txt decoded as %+v", a)
	}

	native, _ := h.Files.Get("native.node")
	if native.IsInline() || !native.Unpacked || native.Size != 10 {
		t.Fatalf("native.node decoded as %+v", native)
	}

	if !bytes.Equal(encodeIndex(h.Files), h.raw) {
		t.Fatalf("re-encoded index differs:\n%s\n%s", encodeIndex(h.Files), h.raw)
	}

	if h.DataStart() != int64(len(data)-4) {
		t.Fatalf("DataStart=%d, want %d", h.DataStart(), len(data)-4)
	}
}

func TestDecodeIndex_RecordsSpans(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"files":{"a.txt":{"size":2,"offset":"0"},"sub":{"files":{"b.txt":{"size":3, "offset":"2"}}}}}`)
	root, err := decodeIndex(raw)
	if err != nil {
		t.Fatalf("decodeIndex: %v", err)
	}

	cases := map[string]string{
		"a.txt":     `{"size":2,"offset":"0"}`,
		"sub/b.txt": `{"size":3, "offset":"2"}`,
	}
	for p, want := range cases {
		e, ok := root.Lookup(p)
		if !ok {
			t.Fatalf("lookup %s failed", p)
		}

		if got := string(raw[e.span.start:e.span.end]); got != want {
			t.Fatalf("span of %s=%q, want %q", p, got, want)
		}
	}
}

func TestDecodeIndex_NumericOffsetAndUnknownKeys(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"files":{"a":{"size":5,"offset":7,"link":"x","extra":{"k":[1,2]}}},"meta":true}`)
	root, err := decodeIndex(raw)
	if err != nil {
		t.Fatalf("decodeIndex: %v", err)
	}

	a, ok := root.Get("a")
	if !ok || a.Offset != 7 || !a.HasOffset || a.Size != 5 {
		t.Fatalf("a decoded as %+v", a)
	}
}

func TestDecodeIndex_Integrity(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"files":{"a":{"size":1,"integrity":{"algorithm":"SHA256","hash":"ab","blockSize":4,"blocks":["ab"]},"offset":"0"}}}`)
	root, err := decodeIndex(raw)
	if err != nil {
		t.Fatalf("decodeIndex: %v", err)
	}

	a, _ := root.Get("a")
	if a.Integrity == nil || a.Integrity.Algorithm != "SHA256" || a.Integrity.BlockSize != 4 || len(a.Integrity.Blocks) != 1 {
		t.Fatalf("integrity=%+v", a.Integrity)
	}

	if got := string(encodeIndex(root)); got != string(raw) {
		t.Fatalf("encodeIndex=%s, want %s", got, raw)
	}
}

func TestDecodeHeader_FormatErrors(t *testing.T) {
	t.Parallel()

	valid, err := encodeHeader(NewDirectory())
	if err != nil {
		t.Fatalf("encodeHeader: %v", err)
	}

	badSignature := bytes.Clone(valid)
	binary.LittleEndian.PutUint32(badSignature[0:4], 5)

	hugeTotal := bytes.Clone(valid)
	binary.LittleEndian.PutUint32(hugeTotal[4:8], 1<<20)

	hugeJSON := bytes.Clone(valid)
	binary.LittleEndian.PutUint32(hugeJSON[12:16], 1<<20)

	cases := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "short prefix", data: valid[:10]},
		{name: "bad signature", data: badSignature},
		{name: "total exceeds file", data: hugeTotal},
		{name: "json exceeds file", data: hugeJSON},
		{name: "invalid json", data: rawHeader(`{"files":{`)},
		{name: "no files key", data: rawHeader(`{"other":{}}`)},
		{name: "trailing data", data: rawHeader(`{"files":{}}{}`)},
		{name: "negative size", data: rawHeader(`{"files":{"a":{"size":-1,"offset":"0"}}}`)},
		{name: "bad offset", data: rawHeader(`{"files":{"a":{"size":1,"offset":"x"}}}`)},
		{name: "not object", data: rawHeader(`[]`)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := decodeHeader(bytes.NewReader(tc.data), int64(len(tc.data)))
			if !errors.Is(err, ErrFormat) {
				t.Fatalf("decodeHeader err=%v, want ErrFormat", err)
			}
		})
	}
}

func TestAppendJSONString(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"plain":     `"plain"`,
		`q"b\`:      `"q\"b\\"`,
		"nl\n\t":    `"nl\n\t"`,
		"ctl\x01":   `"ctl\u0001"`,
		"юникод.js": `"юникод.js"`,
	}
	for in, want := range cases {
		if got := string(appendJSONString(nil, in)); got != want {
			t.Fatalf("appendJSONString(%q)=%s, want %s", in, got, want)
		}
	}
}

// rawHeader wraps JSON text into a header prefix without validating it.
func rawHeader(jsonText string) []byte {
	aligned := alignedJSONSize(len(jsonText))
	out := make([]byte, headerPrefixSize+aligned)
	binary.LittleEndian.PutUint32(out[0:4], headerSignature)
	binary.LittleEndian.PutUint32(out[4:8], uint32(aligned+8))
	binary.LittleEndian.PutUint32(out[8:12], uint32(aligned+4))
	binary.LittleEndian.PutUint32(out[12:16], uint32(len(jsonText)))
	copy(out[headerPrefixSize:], jsonText)

	return out
}
