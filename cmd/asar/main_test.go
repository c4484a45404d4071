// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asar

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woozymasta/asar"
)

func TestRun_RepackUnpackRoundTrip(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	src := filepath.Join(root, "app")
	writeTree(t, src, map[string]string{
		"main.js":         "console.log(1)",
		"lib/util.js":     "module.exports = {}",
		"Thumbs.db":       "junk",
		"lib/.DS_Store":   "junk",
		"img/logo.png":    "PNG",
		"lib/deep/a.json": `{"a":1}`,
	})

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-r", "-n", "-i", src}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "packed 4 files")

	archive := src + ".asar"
	r, err := asar.Open(archive)
	require.NoError(t, err)
	for _, info := range r.Entries() {
		require.NotNil(t, info.Integrity, info.Path)
		require.NoError(t, r.VerifyEntry(info.Path))
	}
	require.NoError(t, r.Close())

	outDir := filepath.Join(root, "unpacked")
	stdout.Reset()
	code = run(context.Background(), []string{"-u", "-o", outDir, archive}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	got, err := os.ReadFile(filepath.Join(outDir, "lib", "deep", "a.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(got))

	_, err = os.Stat(filepath.Join(outDir, "Thumbs.db"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRun_UnpackDefaultOutput(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	archive := packArchive(t, root, map[string]string{"a.txt": "a"})

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-u", archive}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	got, err := os.ReadFile(filepath.Join(root, "app", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "a", string(got))
}

func TestRun_DumpHeader(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	archive := packArchive(t, root, map[string]string{"a.txt": "a", "b/c.txt": "c"})

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-d", archive}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	raw, err := os.ReadFile(archive + headerDumpExt)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Contains(t, doc, "files")
}

func TestRun_ExternalizeAndDump(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	archive := packArchive(t, root, map[string]string{
		"main.js":          "main",
		"native/addon.dll": "addon",
	})
	before, err := os.ReadFile(archive)
	require.NoError(t, err)

	dump := filepath.Join(root, "header.json")
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-e", "*.dll", "-d", "-o", dump, "-b", "1", archive}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "externalized 1 files")

	after, err := os.ReadFile(archive)
	require.NoError(t, err)
	assert.Len(t, after, len(before))

	info, err := asarLookup(archive, "native/addon.dll")
	require.NoError(t, err)
	assert.True(t, info.Unpacked)

	raw, err := os.ReadFile(dump)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"unpacked":true`)

	_, err = os.Stat(archive + ".bak")
	require.NoError(t, err)
}

func TestRun_Substitute(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	archive := packArchive(t, root, map[string]string{
		"js/a.js":   "aaaaaa",
		"img/b.png": "bbbb",
	})

	patchDir := filepath.Join(root, "patch")
	writeTree(t, patchDir, map[string]string{
		"js/a.js":   "AAA",
		"img/b.png": "BB",
	})

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-s", "*.js, *.png", "-o", patchDir, archive}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "replaced 1 files")
	assert.Contains(t, stdout.String(), "img/b.png")

	r, err := asar.Open(archive)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	got, err := r.ReadEntry("js/a.js")
	require.NoError(t, err)
	assert.Equal(t, "AAA   ", string(got))

	got, err = r.ReadEntry("img/b.png")
	require.NoError(t, err)
	assert.Equal(t, "bbbb", string(got))
}

func TestRun_UsageErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		args []string
		want int
	}{
		{name: "no mode", args: nil, want: 2},
		{name: "exclusive modes", args: []string{"-r", "-u", "x"}, want: 2},
		{name: "unknown flag", args: []string{"-zzz"}, want: 2},
		{name: "missing archive", args: []string{"-u", filepath.Join(t.TempDir(), "none.asar")}, want: 1},
		{name: "missing source dir", args: []string{"-r", filepath.Join(t.TempDir(), "none")}, want: 1},
		{name: "help", args: []string{"-h"}, want: 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var stdout, stderr bytes.Buffer
			assert.Equal(t, tc.want, run(context.Background(), tc.args, &stdout, &stderr))
		})
	}
}

func TestSplitPatterns(t *testing.T) {
	t.Parallel()

	got := splitPatterns(` *.dll ,, native\x.node,re:^a/.*\.js$ `)
	assert.Equal(t, []string{"*.dll", "native/x.node", `re:^a/.*\.js$`}, got)
	assert.Empty(t, splitPatterns(" , "))
}

func packArchive(t *testing.T, root string, files map[string]string) string {
	t.Helper()

	src := filepath.Join(root, "app")
	writeTree(t, src, files)

	archive := filepath.Join(root, "app.asar")
	_, err := asar.PackDir(context.Background(), src, archive, asar.BuildOptions{})
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(src))

	return archive
}

func asarLookup(archive string, path string) (asar.EntryInfo, error) {
	r, err := asar.Open(archive)
	if err != nil {
		return asar.EntryInfo{}, err
	}
	defer func() { _ = r.Close() }()

	return r.Lookup(path)
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()

	for rel, data := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(data), 0o644))
	}
}
