// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asar

package asar

import "strings"

// filterEntriesByPrefix keeps entries under prefix (or exact match if it points to a file).
func filterEntriesByPrefix(entries []EntryInfo, prefix string) []EntryInfo {
	prefix = NormalizePath(prefix)
	if prefix == "" {
		return entries
	}

	out := make([]EntryInfo, 0, len(entries))
	for _, entry := range entries {
		if hasPathPrefix(entry.Path, prefix) {
			out = append(out, entry)
		}
	}

	return out
}

// hasPathPrefix reports whether normalized path equals prefix or lies inside it.
func hasPathPrefix(entryPath string, prefix string) bool {
	if prefix == "" {
		return true
	}

	entryPath = NormalizePath(entryPath)
	return entryPath == prefix || strings.HasPrefix(entryPath, prefix+"/")
}

// isPrefixAncestor reports whether directory path lies on the way to prefix.
func isPrefixAncestor(dirPath string, prefix string) bool {
	return prefix == "" || strings.HasPrefix(prefix, dirPath+"/")
}

// selectFiles returns file references matching selection matcher, in index order.
func selectFiles(root *Directory, matcher *pathMatcher) []fileRef {
	if matcher == nil {
		return nil
	}

	refs := collectFiles(root)
	out := make([]fileRef, 0, len(refs))
	for _, ref := range refs {
		if matcher.Match(ref.path) {
			out = append(out, ref)
		}
	}

	return out
}
