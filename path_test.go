// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Maxim Levchenko (WoozyMasta)
// Source: github.com/woozymasta/asar

package asar

import (
	"errors"
	"testing"
)

func TestNormalizePath(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "slash", in: "/", want: ""},
		{name: "clean", in: "resources/app/main.js", want: "resources/app/main.js"},
		{name: "leading slash", in: "/node_modules/a.node", want: "node_modules/a.node"},
		{name: "windows", in: `.\resources\app\`, want: "resources/app"},
		{name: "dot segments", in: "./a/../b//c.txt", want: "b/c.txt"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := NormalizePath(tc.in)
			if got != tc.want {
				t.Fatalf("NormalizePath(%q)=%q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeArchiveEntryPath(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		t.Parallel()

		got, err := normalizeArchiveEntryPath(`.\lib/native\addon.node`)
		if err != nil {
			t.Fatalf("normalizeArchiveEntryPath: %v", err)
		}

		want := "lib/native/addon.node"
		if got != want {
			t.Fatalf("normalizeArchiveEntryPath=%q, want %q", got, want)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		t.Parallel()

		_, err := normalizeArchiveEntryPath("/")
		if !errors.Is(err, ErrInvalidEntryPath) {
			t.Fatalf("expected ErrInvalidEntryPath, got %v", err)
		}
	})
}

func TestSplitArchivePath(t *testing.T) {
	t.Parallel()

	if got := splitArchivePath(""); got != nil {
		t.Fatalf("splitArchivePath(\"\")=%v, want nil", got)
	}

	got := splitArchivePath("a/b/c.txt")
	if len(got) != 3 || got[0] != "a" || got[2] != "c.txt" {
		t.Fatalf("splitArchivePath=%v", got)
	}

	if joined := joinArchivePath("", "a.txt"); joined != "a.txt" {
		t.Fatalf("joinArchivePath root=%q", joined)
	}
	if joined := joinArchivePath("sub", "b.txt"); joined != "sub/b.txt" {
		t.Fatalf("joinArchivePath nested=%q", joined)
	}
}
