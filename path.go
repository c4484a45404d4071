// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asar

package asar

import (
	"fmt"
	"path"
	"strings"
)

// NormalizePath converts an archive/internal path to normalized slash-separated form.
// It trims spaces, accepts both "/" and "\", removes leading "./" and "/", and cleans "." segments.
func NormalizePath(raw string) string {
	raw = normalizePathForMatching(raw)
	raw = strings.TrimPrefix(raw, "/")
	raw = path.Clean("/" + raw)
	raw = strings.TrimPrefix(raw, "/")
	if raw == "." {
		return ""
	}

	return strings.TrimSuffix(raw, "/")
}

// normalizePathForMatching normalizes user/input paths for matcher use.
func normalizePathForMatching(path string) string {
	path = strings.TrimSpace(path)
	path = strings.ReplaceAll(path, `\`, `/`)
	path = strings.TrimPrefix(path, "./")
	return path
}

// normalizeArchiveEntryPath converts input path to canonical archive lookup form.
func normalizeArchiveEntryPath(raw string) (string, error) {
	normalizedPath := NormalizePath(raw)
	if normalizedPath == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidEntryPath, raw)
	}

	return normalizedPath, nil
}

// joinArchivePath appends one entry name to a parent archive path.
func joinArchivePath(parent string, name string) string {
	if parent == "" {
		return name
	}

	return parent + "/" + name
}

// splitArchivePath splits a normalized archive path into its segments.
func splitArchivePath(p string) []string {
	if p == "" {
		return nil
	}

	return strings.Split(p, "/")
}
